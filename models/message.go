package models

import (
	"time"

	"github.com/google/uuid"
)

// Queue names. Data flows strictly forward through these; progress and
// failure events flow sideways to any observer.
const (
	QueueAnalysisRequest        = "analysis.request"
	QueueAnalysisCompleted      = "analysis.completed"
	QueueAnalysisFailed         = "analysis.failed"
	QueueConversionRequest      = "conversion.request"
	QueueConversionCompleted    = "conversion.completed"
	QueueConversionFailed       = "conversion.failed"
	QueueConversionProgress     = "conversion.progress"
	QueuePartConversionRequest  = "part.conversion.request"
	QueuePartConversionComplete = "part.conversion.completed"
	QueuePartConversionFailed   = "part.conversion.failed"
	QueueMergeRequest           = "merge.request"
	QueueStorageRequest         = "storage.request"
	QueueStorageCompleted       = "storage.completed"
	QueueStorageFailed          = "storage.failed"
	QueueChunkingRequest        = "chunking.request"
)

// Event type discriminants.
const (
	EventAnalysisRequest         = "ANALYSIS_REQUEST"
	EventAnalysisCompleted       = "ANALYSIS_COMPLETED"
	EventAnalysisFailed          = "ANALYSIS_FAILED"
	EventConversionRequest       = "CONVERSION_REQUEST"
	EventConversionCompleted     = "CONVERSION_COMPLETED"
	EventConversionFailed        = "CONVERSION_FAILED"
	EventConversionProgress      = "CONVERSION_PROGRESS"
	EventPartConversionRequest   = "PART_CONVERSION_REQUEST"
	EventPartConversionCompleted = "PART_CONVERSION_COMPLETED"
	EventPartConversionFailed    = "PART_CONVERSION_FAILED"
	EventMergeRequest            = "MERGE_REQUEST"
	EventMergeFailed             = "MERGE_FAILED"
	EventStorageRequest          = "STORAGE_REQUEST"
	EventStorageCompleted        = "STORAGE_COMPLETED"
	EventStorageFailed           = "STORAGE_FAILED"
)

const DefaultMaxRetries = 3

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Envelope is the common header carried by every pipeline message.
// MessageID is unique per publish; a retry gets a fresh one, so it is
// not a dedup key across retries.
type Envelope struct {
	MessageID  string    `json:"messageId"`
	Timestamp  time.Time `json:"timestamp"`
	EventType  string    `json:"eventType"`
	ItemID     string    `json:"itemId"`
	RetryCount int       `json:"retryCount"`
	MaxRetries int       `json:"maxRetries"`
	Priority   Priority  `json:"priority,omitempty"`
}

func NewEnvelope(eventType, itemID string) Envelope {
	return Envelope{
		MessageID:  uuid.New().String(),
		Timestamp:  time.Now(),
		EventType:  eventType,
		ItemID:     itemID,
		RetryCount: 0,
		MaxRetries: DefaultMaxRetries,
		Priority:   PriorityNormal,
	}
}

func (e Envelope) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// Retry returns the envelope for the republished request: same logical
// message, fresh messageId, retryCount+1.
func (e Envelope) Retry() Envelope {
	e.MessageID = uuid.New().String()
	e.Timestamp = time.Now()
	e.RetryCount++
	return e
}

// AnalysisRequest asks the analysis stage to inspect a stored document.
type AnalysisRequest struct {
	Envelope
	SourceLocation string `json:"sourceLocation"`
	FileName       string `json:"fileName,omitempty"`
}

// PageRange is a contiguous 1-based page segment of a split document.
type PageRange struct {
	PartIndex int `json:"partIndex"`
	StartPage int `json:"startPage"`
	EndPage   int `json:"endPage"`
}

type AnalysisCompleted struct {
	Envelope
	SourceLocation string      `json:"sourceLocation"`
	PageCount      int         `json:"pageCount"`
	TotalParts     int         `json:"totalParts"`
	PageRanges     []PageRange `json:"pageRanges,omitempty"`
}

type ConversionRequest struct {
	Envelope
	SourceLocation string `json:"sourceLocation"`
}

type ConversionCompleted struct {
	Envelope
	MarkdownContent string `json:"markdownContent"`
	ProcessingTime  int64  `json:"processingTime"`
}

type PartConversionRequest struct {
	Envelope
	PartIndex      int    `json:"partIndex"`
	TotalParts     int    `json:"totalParts"`
	SourceLocation string `json:"sourceLocation"`
	StartPage      int    `json:"startPage,omitempty"`
	EndPage        int    `json:"endPage,omitempty"`
}

type PartConversionCompleted struct {
	Envelope
	PartIndex      int    `json:"partIndex"`
	TotalParts     int    `json:"totalParts"`
	OutputLocation string `json:"outputLocation"`
	ProcessingTime int64  `json:"processingTime"`
}

type MergeRequest struct {
	Envelope
	TotalParts int `json:"totalParts"`
}

// StorageMetadata rides on a storage request so the storage worker can
// tell a merged document from a single-shot conversion.
type StorageMetadata struct {
	PartIndex *int `json:"partIndex,omitempty"`
	IsPart    bool `json:"isPart,omitempty"`
	Merged    bool `json:"merged,omitempty"`
}

type StorageRequest struct {
	Envelope
	MarkdownContent string           `json:"markdownContent"`
	Metadata        *StorageMetadata `json:"metadata,omitempty"`
}

type StorageCompleted struct {
	Envelope
	ProcessingTime int64 `json:"processingTime"`
}

// FailureEvent is the shape of every *.failed message.
type FailureEvent struct {
	Envelope
	PartIndex      *int   `json:"partIndex,omitempty"`
	Error          string `json:"error"`
	CanRetry       bool   `json:"canRetry"`
	ProcessingTime int64  `json:"processingTime"`
}

// ProgressEvent flows on conversion.progress for any observer.
type ProgressEvent struct {
	Envelope
	Status   ProcessingStatus `json:"status"`
	Message  string           `json:"message,omitempty"`
	Progress *int             `json:"progress,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// ChunkTask is handed to the downstream chunking/embedding service once
// a document's markdown is stored.
type ChunkTask struct {
	DocID     string    `json:"doc_id"`
	FileName  string    `json:"file_name"`
	CreatedAt time.Time `json:"created_at"`
}
