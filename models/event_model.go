package models

import "time"

type DocumentEventType string

const (
	EventDocumentProcessing DocumentEventType = "processing"
	EventDocumentCompleted  DocumentEventType = "completed"
	EventDocumentFailed     DocumentEventType = "failed"

	// EventChunkingSkipped reports that a stored document could not be
	// handed off for chunking; the document itself is intact.
	EventChunkingSkipped DocumentEventType = "chunking_skipped"
)

type PartProgressInfo struct {
	CompletedParts  int `json:"completed_parts"`
	FailedParts     int `json:"failed_parts"`
	ProcessingParts int `json:"processing_parts"`
	TotalParts      int `json:"total_parts"`
	Percentage      int `json:"percentage"`
}

// DocumentEvent is the sideways progress event published on redis
// pub/sub for observers (UI, websockets), distinct from the broker's
// conversion.progress queue.
type DocumentEvent struct {
	Type      DocumentEventType `json:"type"`
	DocID     string            `json:"doc_id"`
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	Error     string            `json:"error,omitempty"`
	Progress  *PartProgressInfo `json:"progress,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
