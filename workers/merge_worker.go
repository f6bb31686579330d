package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wjixiang/aikb/models"
	"github.com/wjixiang/aikb/pkg/logging"
	"github.com/wjixiang/aikb/platform/broker"
	"github.com/wjixiang/aikb/platform/storage"
	"github.com/wjixiang/aikb/repository"
	"github.com/wjixiang/aikb/services"
	"github.com/wjixiang/aikb/tracker"
)

// MergeWorker assembles the per-part markdown artifacts into one
// document. Parts are read and joined strictly by part index, so the
// merged output is deterministic regardless of completion order.
type MergeWorker struct {
	broker   broker.Broker
	store    ObjectStore
	repo     repository.DocumentRepository
	tracker  *tracker.PartTracker
	notifier ProgressNotifier
	cfg      Config
}

func NewMergeWorker(
	b broker.Broker,
	store ObjectStore,
	repo repository.DocumentRepository,
	t *tracker.PartTracker,
	notifier ProgressNotifier,
	cfg Config,
) *MergeWorker {
	return &MergeWorker{
		broker:   b,
		store:    store,
		repo:     repo,
		tracker:  t,
		notifier: notifier,
		cfg:      cfg,
	}
}

func (w *MergeWorker) Start(ctx context.Context) error {
	return w.broker.Consume(ctx, models.QueueMergeRequest, w.handle,
		broker.ConsumeOptions{ManualAck: true, Prefetch: w.cfg.Prefetch})
}

func (w *MergeWorker) handle(ctx context.Context, d *broker.Delivery) error {
	started := time.Now()

	var req models.MergeRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		logging.Logger.Error("fail decoding merge request", "error", err)
		nackMessage(d)
		return err
	}

	merged, err := w.merge(ctx, &req)
	if err == nil {
		err = w.requestStorage(ctx, &req, merged)
	}
	if err != nil {
		retried, pubErr := retryOrFail(ctx, w.broker, models.QueueMergeRequest, req.Envelope,
			func(env models.Envelope) interface{} {
				next := req
				next.Envelope = env
				return next
			},
			models.QueueConversionFailed, models.EventMergeFailed, nil, err, started)
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

	logging.Logger.Info("parts merged",
		"itemID", req.ItemID,
		"totalParts", req.TotalParts,
		"time", time.Since(started).Milliseconds())
	ackMessage(d)
	return nil
}

func (w *MergeWorker) merge(ctx context.Context, req *models.MergeRequest) (string, error) {
	parts := make([]string, 0, req.TotalParts)
	for i := 0; i < req.TotalParts; i++ {
		key := storage.PartMarkdownKey(req.ItemID, i)
		data, err := w.store.GetObject(ctx, key)
		if err != nil {
			// A missing artifact cannot heal on retry: the part claimed
			// completion, so its output should exist.
			if errors.Is(err, storage.ErrObjectNotFound) {
				return "", models.NewPermanentError("merge",
					fmt.Sprintf("part %d artifact missing", i), err)
			}
			return "", models.NewTransientError("merge",
				fmt.Sprintf("read part %d artifact", i), err)
		}
		parts = append(parts, string(data))
	}
	return services.MergeParts(parts), nil
}

func (w *MergeWorker) requestStorage(ctx context.Context, req *models.MergeRequest, merged string) error {
	env := models.NewEnvelope(models.EventStorageRequest, req.ItemID)
	env.MaxRetries = w.cfg.MaxRetries
	env.Priority = req.Priority
	store := models.StorageRequest{
		Envelope:        env,
		MarkdownContent: merged,
		Metadata:        &models.StorageMetadata{Merged: true},
	}
	if err := publishJSON(ctx, w.broker, models.QueueStorageRequest, store); err != nil {
		return models.NewTransientError("merge", "publish storage request", err)
	}
	return nil
}

func (w *MergeWorker) failDocument(ctx context.Context, itemID string, cause error) {
	if err := w.repo.MarkFailed(ctx, itemID, cause.Error()); err != nil {
		logging.Logger.Error("fail MarkFailed", "error", err, "itemID", itemID)
	}
	notify(w.notifier, &models.DocumentEvent{
		Type:    models.EventDocumentFailed,
		DocID:   itemID,
		Status:  string(models.StatusFailed),
		Message: "merge failed",
		Error:   cause.Error(),
	})
	w.tracker.Cleanup(itemID)
}
