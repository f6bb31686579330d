package models

import "time"

type UploadReq struct {
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	ContentType string `json:"content_type"`
	UserID      string `json:"user_id"`
}

type UploadResp struct {
	DocId     string            `json:"doc_id"`
	UploadURL string            `json:"upload_url"`
	FileKey   string            `json:"file_key"`
	Fields    map[string]string `json:"fields,omitempty"`
	Expires   time.Time         `json:"expires"`
	Provider  string            `json:"provider"` // "minio" or "s3"
}

type ConfirmUploadReq struct {
	DocId    string `json:"doc_id"`
	Priority string `json:"priority,omitempty"`
}

type ConfirmUploadResp struct {
	Message string `json:"message"`
	DocId   string `json:"doc_id"`
	Status  string `json:"status"`
}

// StatusResp merges the repository row with the live tracker aggregate.
type StatusResp struct {
	DocId           string `json:"doc_id"`
	Status          string `json:"status"`
	TotalPages      int32  `json:"total_pages"`
	TotalParts      int    `json:"total_parts"`
	CompletedParts  []int  `json:"completed_parts,omitempty"`
	FailedParts     []int  `json:"failed_parts,omitempty"`
	ProcessingParts []int  `json:"processing_parts,omitempty"`
	PendingParts    []int  `json:"pending_parts,omitempty"`
	Error           string `json:"error,omitempty"`
}
