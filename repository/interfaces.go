package repository

import (
	"context"

	"github.com/wjixiang/aikb/models"
)

// DocumentRepository is the persistence contract the pipeline writes
// against. The document row is the user-visible source of truth for an
// item's terminal outcome.
type DocumentRepository interface {
	Create(ctx context.Context, doc *models.DocumentMeta) error

	GetMetadata(ctx context.Context, itemID string) (*models.DocumentMeta, error)
	UpdateMetadata(ctx context.Context, itemID string, doc *models.DocumentMeta) error
	UpdateStatus(ctx context.Context, itemID string, status models.ProcessingStatus) error

	SaveMarkdown(ctx context.Context, itemID string, markdown string) error
	UpdateSections(ctx context.Context, itemID string, sections []string) error
	MarkCompleted(ctx context.Context, itemID string) error
	MarkFailed(ctx context.Context, itemID string, errorDetails string) error
}
