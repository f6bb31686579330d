package workers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wjixiang/aikb/models"
	"github.com/wjixiang/aikb/pkg/logging"
	"github.com/wjixiang/aikb/platform/broker"
	"github.com/wjixiang/aikb/repository"
	"github.com/wjixiang/aikb/services"
	"github.com/wjixiang/aikb/tracker"
)

// StorageWorker persists the final markdown and closes out the item:
// database row, completion event, downstream chunking hand-off.
type StorageWorker struct {
	broker   broker.Broker
	repo     repository.DocumentRepository
	tracker  *tracker.PartTracker
	notifier ProgressNotifier
	cfg      Config
}

func NewStorageWorker(
	b broker.Broker,
	repo repository.DocumentRepository,
	t *tracker.PartTracker,
	notifier ProgressNotifier,
	cfg Config,
) *StorageWorker {
	return &StorageWorker{
		broker:   b,
		repo:     repo,
		tracker:  t,
		notifier: notifier,
		cfg:      cfg,
	}
}

func (w *StorageWorker) Start(ctx context.Context) error {
	return w.broker.Consume(ctx, models.QueueStorageRequest, w.handle,
		broker.ConsumeOptions{ManualAck: true, Prefetch: w.cfg.Prefetch})
}

func (w *StorageWorker) handle(ctx context.Context, d *broker.Delivery) error {
	started := time.Now()

	var req models.StorageRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		logging.Logger.Error("fail decoding storage request", "error", err)
		nackMessage(d)
		return err
	}

	if err := w.persist(ctx, &req); err != nil {
		retried, pubErr := retryOrFail(ctx, w.broker, models.QueueStorageRequest, req.Envelope,
			func(env models.Envelope) interface{} {
				next := req
				next.Envelope = env
				return next
			},
			models.QueueStorageFailed, models.EventStorageFailed, nil, err, started)
		if pubErr != nil {
			requeueMessage(d)
			return pubErr
		}
		if !retried {
			w.failDocument(ctx, req.ItemID, err)
		}
		ackMessage(d)
		return nil
	}

	w.finish(ctx, &req, started)
	ackMessage(d)
	return nil
}

func (w *StorageWorker) persist(ctx context.Context, req *models.StorageRequest) error {
	if err := w.repo.SaveMarkdown(ctx, req.ItemID, req.MarkdownContent); err != nil {
		return models.NewTransientError("store", "save markdown", err)
	}
	sections := services.ExtractSections(req.MarkdownContent)
	if err := w.repo.UpdateSections(ctx, req.ItemID, sections); err != nil {
		return models.NewTransientError("store", "save sections", err)
	}
	if err := w.repo.MarkCompleted(ctx, req.ItemID); err != nil {
		return models.NewTransientError("store", "mark completed", err)
	}
	return nil
}

// finish emits the post-persist notifications. The document is already
// durably stored, so failures here are logged and dropped rather than
// re-running the write path.
func (w *StorageWorker) finish(ctx context.Context, req *models.StorageRequest, started time.Time) {
	elapsed := time.Since(started).Milliseconds()

	completedEnv := req.Envelope
	completedEnv.EventType = models.EventStorageCompleted
	completed := models.StorageCompleted{
		Envelope:       completedEnv,
		ProcessingTime: elapsed,
	}
	if err := publishJSON(ctx, w.broker, models.QueueStorageCompleted, completed); err != nil {
		logging.Logger.Error("fail publishing storage completed", "error", err, "itemID", req.ItemID)
	}

	fileName := ""
	if meta, err := w.repo.GetMetadata(ctx, req.ItemID); err == nil {
		fileName = meta.Filename
	} else {
		logging.Logger.Error("fail reading metadata for chunk task", "error", err, "itemID", req.ItemID)
	}
	task := models.ChunkTask{
		DocID:     req.ItemID,
		FileName:  fileName,
		CreatedAt: time.Now(),
	}
	if err := publishJSON(ctx, w.broker, models.QueueChunkingRequest, task); err != nil {
		logging.Logger.Error("fail publishing chunk task", "error", err, "itemID", req.ItemID)
		notify(w.notifier, &models.DocumentEvent{
			Type:    models.EventChunkingSkipped,
			DocID:   req.ItemID,
			Status:  string(models.StatusCompleted),
			Message: "document stored but chunking could not be enqueued",
			Error:   err.Error(),
		})
	}

	notify(w.notifier, &models.DocumentEvent{
		Type:    models.EventDocumentCompleted,
		DocID:   req.ItemID,
		Status:  string(models.StatusCompleted),
		Message: "document stored",
	})

	w.tracker.Cleanup(req.ItemID)
	logging.Logger.Info("document stored",
		"itemID", req.ItemID,
		"merged", req.Metadata != nil && req.Metadata.Merged,
		"time", elapsed)
}

func (w *StorageWorker) failDocument(ctx context.Context, itemID string, cause error) {
	if err := w.repo.MarkFailed(ctx, itemID, cause.Error()); err != nil {
		logging.Logger.Error("fail MarkFailed", "error", err, "itemID", itemID)
	}
	notify(w.notifier, &models.DocumentEvent{
		Type:    models.EventDocumentFailed,
		DocID:   itemID,
		Status:  string(models.StatusFailed),
		Message: "storage failed",
		Error:   cause.Error(),
	})
	w.tracker.Cleanup(itemID)
}
