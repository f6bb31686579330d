package repository

import (
	"context"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/wjixiang/aikb/models"
)

type documentRepository struct {
	DB *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{DB: db}
}

func (r *documentRepository) Create(ctx context.Context, doc *models.DocumentMeta) error {
	return r.DB.WithContext(ctx).Create(doc).Error
}

func (r *documentRepository) GetMetadata(ctx context.Context, itemID string) (*models.DocumentMeta, error) {
	var doc models.DocumentMeta
	err := r.DB.WithContext(ctx).Where("file_id = ?", itemID).First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) UpdateMetadata(ctx context.Context, itemID string, doc *models.DocumentMeta) error {
	return r.DB.WithContext(ctx).
		Model(&models.DocumentMeta{}).
		Where("file_id = ?", itemID).
		Updates(map[string]interface{}{
			"file_hash":   doc.FileHash,
			"file_size":   doc.FileSize,
			"total_pages": doc.TotalPages,
			"total_parts": doc.TotalParts,
			"started_at":  doc.StartedAt,
		}).Error
}

func (r *documentRepository) UpdateStatus(ctx context.Context, itemID string, status models.ProcessingStatus) error {
	return r.DB.WithContext(ctx).
		Model(&models.DocumentMeta{}).
		Where("file_id = ?", itemID).
		Update("status", string(status)).Error
}

func (r *documentRepository) SaveMarkdown(ctx context.Context, itemID string, markdown string) error {
	return r.DB.WithContext(ctx).
		Model(&models.DocumentMeta{}).
		Where("file_id = ?", itemID).
		Update("markdown_content", markdown).Error
}

func (r *documentRepository) UpdateSections(ctx context.Context, itemID string, sections []string) error {
	return r.DB.WithContext(ctx).
		Model(&models.DocumentMeta{}).
		Where("file_id = ?", itemID).
		Update("sections", pq.Array(sections)).Error
}

func (r *documentRepository) MarkCompleted(ctx context.Context, itemID string) error {
	now := time.Now()
	return r.DB.WithContext(ctx).
		Model(&models.DocumentMeta{}).
		Where("file_id = ?", itemID).
		Updates(map[string]interface{}{
			"status":       string(models.StatusCompleted),
			"completed_at": now,
		}).Error
}

func (r *documentRepository) MarkFailed(ctx context.Context, itemID string, errorDetails string) error {
	now := time.Now()
	return r.DB.WithContext(ctx).
		Model(&models.DocumentMeta{}).
		Where("file_id = ?", itemID).
		Updates(map[string]interface{}{
			"status":        string(models.StatusFailed),
			"error_details": errorDetails,
			"completed_at":  now,
		}).Error
}
