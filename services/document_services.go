package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wjixiang/aikb/models"
	"github.com/wjixiang/aikb/pkg/logging"
	"github.com/wjixiang/aikb/platform/broker"
	"github.com/wjixiang/aikb/platform/cache"
	"github.com/wjixiang/aikb/platform/storage"
	"github.com/wjixiang/aikb/repository"
	"github.com/wjixiang/aikb/tracker"
)

// DocumentService is the API-facing side of the pipeline: presigned
// uploads in, analysis requests out, status reads combining the
// repository row with the live tracker aggregate.
type DocumentService struct {
	docRepo        repository.DocumentRepository
	broker         broker.Broker
	storageService *storage.Service
	partTracker    *tracker.PartTracker
	statusCache    *cache.TypedCache[models.StatusResp]
}

func NewDocumentService(
	docRepo repository.DocumentRepository,
	b broker.Broker,
	storageService *storage.Service,
	partTracker *tracker.PartTracker,
	cacheService cache.CacheService) *DocumentService {
	return &DocumentService{
		docRepo:        docRepo,
		broker:         b,
		storageService: storageService,
		partTracker:    partTracker,
		statusCache:    cache.NewTypedCache[models.StatusResp](cacheService),
	}
}

func (s *DocumentService) RequestUpload(ctx context.Context, req models.UploadReq) (*models.UploadResp, error) {
	docID := uuid.New().String()
	if req.FileSize > 50*1024*1024 {
		return nil, fmt.Errorf("file too large: max 50MB")
	}
	if req.ContentType != "application/pdf" {
		return nil, fmt.Errorf("unsupported file type: only pdf")
	}
	res, err := s.storageService.GeneratePresignedPostUpload(
		req.FileName, 50*1024*1024, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned URL: %v", err)
	}

	doc := models.DocumentMeta{
		FileID:    docID,
		UserID:    req.UserID,
		Filename:  req.FileName,
		FileKey:   res.FileKey,
		FileSize:  req.FileSize,
		Status:    string(models.StatusPending),
		CreatedAt: time.Now(),
	}
	if err := s.docRepo.Create(ctx, &doc); err != nil {
		logging.Logger.Error("failed to create document", "error", err, "docID", docID)
		return nil, fmt.Errorf("failed to create document: %v", err)
	}
	return res, nil
}

// ConfirmUpload verifies the object landed in the bucket and starts the
// pipeline by publishing the analysis request.
func (s *DocumentService) ConfirmUpload(ctx context.Context, req models.ConfirmUploadReq) (*models.ConfirmUploadResp, error) {
	info, err := s.docRepo.GetMetadata(ctx, req.DocId)
	if err != nil {
		logging.Logger.Error("fail GetMetadata", "error", err, "docID", req.DocId)
		return nil, err
	}
	ok, err := s.storageService.FileExists(info.FileKey)
	if err != nil {
		logging.Logger.Error("fail FileExists", "error", err)
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("file does not exist in storage")
	}
	if info.Status != string(models.StatusPending) {
		return nil, fmt.Errorf("document %s already submitted", req.DocId)
	}

	msg := models.AnalysisRequest{
		Envelope:       models.NewEnvelope(models.EventAnalysisRequest, info.FileID),
		SourceLocation: info.FileKey,
		FileName:       info.Filename,
	}
	if req.Priority == string(models.PriorityHigh) {
		msg.Priority = models.PriorityHigh
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	if err := s.broker.Publish(ctx, models.QueueAnalysisRequest, body); err != nil {
		logging.Logger.Error("fail publishing analysis request", "error", err, "docID", req.DocId)
		return nil, err
	}
	if err := s.docRepo.UpdateStatus(ctx, info.FileID, models.StatusProcessing); err != nil {
		logging.Logger.Error("fail UpdateStatus", "error", err, "docID", req.DocId)
	}

	return &models.ConfirmUploadResp{
		Message: "Upload confirmed successfully",
		DocId:   info.FileID,
		Status:  "queued",
	}, nil
}

// GetStatus serves the aggregate view. Cached briefly because the UI
// polls it; the tracker snapshot wins over the (possibly older) row for
// a live item.
func (s *DocumentService) GetStatus(ctx context.Context, docID string) (*models.StatusResp, error) {
	cacheKey := "status:" + docID
	if cached, ok, err := s.statusCache.Get(cacheKey); ok && err == nil {
		return &cached, nil
	}

	doc, err := s.docRepo.GetMetadata(ctx, docID)
	if err != nil {
		return nil, err
	}

	resp := models.StatusResp{
		DocId:      doc.FileID,
		Status:     doc.Status,
		TotalPages: doc.TotalPages,
		TotalParts: int(doc.TotalParts),
		Error:      doc.ErrorDetails,
	}
	if snap := s.partTracker.Snapshot(docID); snap != nil {
		resp.Status = string(snap.Status())
		resp.TotalParts = snap.TotalParts
		resp.CompletedParts = snap.CompletedParts
		resp.FailedParts = snap.FailedParts
		resp.ProcessingParts = snap.ProcessingParts
		resp.PendingParts = snap.PendingParts
		if resp.Error == "" && len(snap.Errors) > 0 {
			resp.Error = snap.Errors[0]
		}
	}

	if err := s.statusCache.Set(cacheKey, resp, 5*time.Second); err != nil {
		logging.Logger.Error("fail to cache status", "error", err, "docID", docID)
	}
	return &resp, nil
}

func (s *DocumentService) GetMarkdown(ctx context.Context, docID string) (string, error) {
	doc, err := s.docRepo.GetMetadata(ctx, docID)
	if err != nil {
		return "", err
	}
	if !doc.IsCompleted() {
		return "", fmt.Errorf("document %s is not completed", docID)
	}
	return doc.MarkdownContent, nil
}

func (s *DocumentService) GetSections(ctx context.Context, docID string) ([]string, error) {
	doc, err := s.docRepo.GetMetadata(ctx, docID)
	if err != nil {
		return nil, err
	}
	return doc.Sections, nil
}
