package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// DocumentMeta is the per-document record in postgres. The aggregate
// part-level state lives in the tracker; this row carries the
// user-visible status and the final markdown.
type DocumentMeta struct {
	FileID string `gorm:"column:file_id;type:varchar(255);primaryKey" json:"file_id"`

	UserID     string `gorm:"column:user_id;type:varchar(255);index:idx_user_id" json:"user_id"`
	Filename   string `gorm:"column:filename;type:varchar(512);not null" json:"filename"`
	FileKey    string `gorm:"column:file_key;type:varchar(255);not null;index:idx_file_key" json:"file_key"`
	FileSize   int64  `gorm:"column:file_size;type:bigint" json:"file_size"`
	FileHash   string `gorm:"column:file_hash;type:varchar(64);index:idx_file_hash" json:"file_hash"`
	TotalPages int32  `gorm:"column:total_pages;type:int" json:"total_pages"`
	TotalParts int32  `gorm:"column:total_parts;type:int" json:"total_parts"`

	Status       string `gorm:"column:status;type:varchar(50);default:'pending';index:idx_status" json:"status"`
	ErrorDetails string `gorm:"column:error_details;type:text" json:"error_details,omitempty"`

	MarkdownContent string         `gorm:"column:markdown_content;type:text" json:"markdown_content,omitempty"`
	Sections        pq.StringArray `gorm:"column:sections;type:text[]" json:"sections,omitempty"`

	CreatedAt   time.Time  `gorm:"column:created_at;type:timestamp" json:"created_at"`
	StartedAt   *time.Time `gorm:"column:started_at;type:timestamp" json:"started_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at;type:timestamp" json:"completed_at,omitempty"`
}

func (DocumentMeta) TableName() string {
	return "document_meta"
}

func (d *DocumentMeta) BeforeCreate(tx *gorm.DB) error {
	if d.Status == "" {
		d.Status = string(StatusPending)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	return nil
}

func (d *DocumentMeta) IsCompleted() bool {
	return d.Status == string(StatusCompleted)
}

func (d *DocumentMeta) IsFailed() bool {
	return d.Status == string(StatusFailed)
}
