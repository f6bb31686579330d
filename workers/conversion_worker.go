package workers

import (
	"context"
	"encoding/json"
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

// ConversionWorker runs the external converter for whole documents and
// for split parts. The two inputs are separate consumers on separate
// queues so part traffic cannot starve single-shot documents.
type ConversionWorker struct {
	broker    broker.Broker
	store     ObjectStore
	repo      repository.DocumentRepository
	converter services.Converter
	tracker   *tracker.PartTracker
	notifier  ProgressNotifier
	cfg       Config
}

func NewConversionWorker(
	b broker.Broker,
	store ObjectStore,
	repo repository.DocumentRepository,
	converter services.Converter,
	t *tracker.PartTracker,
	notifier ProgressNotifier,
	cfg Config,
) *ConversionWorker {
	return &ConversionWorker{
		broker:    b,
		store:     store,
		repo:      repo,
		converter: converter,
		tracker:   t,
		notifier:  notifier,
		cfg:       cfg,
	}
}

func (w *ConversionWorker) Start(ctx context.Context) error {
	opts := broker.ConsumeOptions{ManualAck: true, Prefetch: w.cfg.Prefetch}
	if err := w.broker.Consume(ctx, models.QueueConversionRequest, w.handleWhole, opts); err != nil {
		return err
	}
	return w.broker.Consume(ctx, models.QueuePartConversionRequest, w.handlePart, opts)
}

func (w *ConversionWorker) handleWhole(ctx context.Context, d *broker.Delivery) error {
	started := time.Now()

	var req models.ConversionRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		logging.Logger.Error("fail decoding conversion request", "error", err)
		nackMessage(d)
		return err
	}

	w.publishProgress(ctx, req.Envelope, models.StatusProcessing, "converting document", nil, "")

	markdown, err := w.converter.Convert(ctx, req.SourceLocation)
	if err == nil {
		err = w.completeWhole(ctx, &req, markdown, started)
	}
	if err != nil {
		retried, pubErr := retryOrFail(ctx, w.broker, models.QueueConversionRequest, req.Envelope,
			func(env models.Envelope) interface{} {
				next := req
				next.Envelope = env
				return next
			},
			models.QueueConversionFailed, models.EventConversionFailed, nil, err, started)
		if pubErr != nil {
			requeueMessage(d)
			return pubErr
		}
		if !retried {
			w.failDocument(ctx, req.ItemID, "conversion failed", err)
		}
		ackMessage(d)
		return nil
	}

	logging.Logger.Info("document converted",
		"itemID", req.ItemID, "time", time.Since(started).Milliseconds())
	ackMessage(d)
	return nil
}

func (w *ConversionWorker) completeWhole(ctx context.Context, req *models.ConversionRequest, markdown string, started time.Time) error {
	elapsed := time.Since(started).Milliseconds()

	completedEnv := req.Envelope
	completedEnv.EventType = models.EventConversionCompleted
	completed := models.ConversionCompleted{
		Envelope:        completedEnv,
		MarkdownContent: markdown,
		ProcessingTime:  elapsed,
	}
	if err := publishJSON(ctx, w.broker, models.QueueConversionCompleted, completed); err != nil {
		return models.NewTransientError("convert", "publish conversion completed", err)
	}

	storeEnv := models.NewEnvelope(models.EventStorageRequest, req.ItemID)
	storeEnv.MaxRetries = w.cfg.MaxRetries
	storeEnv.Priority = req.Priority
	store := models.StorageRequest{
		Envelope:        storeEnv,
		MarkdownContent: markdown,
	}
	if err := publishJSON(ctx, w.broker, models.QueueStorageRequest, store); err != nil {
		return models.NewTransientError("convert", "publish storage request", err)
	}
	return nil
}

func (w *ConversionWorker) handlePart(ctx context.Context, d *broker.Delivery) error {
	started := time.Now()

	var req models.PartConversionRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		logging.Logger.Error("fail decoding part conversion request", "error", err)
		nackMessage(d)
		return err
	}

	if err := w.tracker.RecordPartStatus(req.ItemID, req.PartIndex, models.StatusProcessing, ""); err != nil {
		// A replay after the item completed and was cleaned up; the
		// outcome is already recorded, so drop the duplicate.
		logging.Logger.Warn("dropping part request for untracked item",
			"itemID", req.ItemID, "partIndex", req.PartIndex, "error", err)
		ackMessage(d)
		return nil
	}

	w.publishProgress(ctx, req.Envelope, models.StatusProcessing,
		fmt.Sprintf("converting part %d/%d", req.PartIndex+1, req.TotalParts), nil, "")

	err := w.convertPart(ctx, &req, started)
	if err != nil {
		if recErr := w.tracker.RecordPartStatus(req.ItemID, req.PartIndex, models.StatusFailed, err.Error()); recErr != nil {
			logging.Logger.Error("fail recording part failure",
				"error", recErr, "itemID", req.ItemID, "partIndex", req.PartIndex)
		}
		partIndex := req.PartIndex
		retried, pubErr := retryOrFail(ctx, w.broker, models.QueuePartConversionRequest, req.Envelope,
			func(env models.Envelope) interface{} {
				next := req
				next.Envelope = env
				return next
			},
			models.QueuePartConversionFailed, models.EventPartConversionFailed, &partIndex, err, started)
		if pubErr != nil {
			requeueMessage(d)
			return pubErr
		}
		if !retried {
			if exErr := w.tracker.MarkPartExhausted(req.ItemID, req.PartIndex); exErr != nil {
				logging.Logger.Error("fail marking part exhausted",
					"error", exErr, "itemID", req.ItemID, "partIndex", req.PartIndex)
			}
			w.failDocument(ctx, req.ItemID,
				fmt.Sprintf("part %d conversion failed", req.PartIndex), err)
		}
		ackMessage(d)
		return nil
	}

	ackMessage(d)
	return nil
}

func (w *ConversionWorker) convertPart(ctx context.Context, req *models.PartConversionRequest, started time.Time) error {
	markdown, err := w.converter.Convert(ctx, req.SourceLocation)
	if err != nil {
		return err
	}

	outputKey := storage.PartMarkdownKey(req.ItemID, req.PartIndex)
	if err := w.store.PutObject(ctx, outputKey, []byte(markdown), "text/markdown"); err != nil {
		return models.NewTransientError("convert", "store part markdown", err)
	}

	// The artifact exists before the status flips to completed, so a
	// claimed merge never reads a missing part.
	if err := w.tracker.RecordPartStatus(req.ItemID, req.PartIndex, models.StatusCompleted, ""); err != nil {
		return models.NewTransientError("convert", "record part completion", err)
	}

	elapsed := time.Since(started).Milliseconds()
	completedEnv := req.Envelope
	completedEnv.EventType = models.EventPartConversionCompleted
	completed := models.PartConversionCompleted{
		Envelope:       completedEnv,
		PartIndex:      req.PartIndex,
		TotalParts:     req.TotalParts,
		OutputLocation: outputKey,
		ProcessingTime: elapsed,
	}
	if err := publishJSON(ctx, w.broker, models.QueuePartConversionComplete, completed); err != nil {
		logging.Logger.Error("fail publishing part completed",
			"error", err, "itemID", req.ItemID, "partIndex", req.PartIndex)
	}

	w.notifyPartProgress(req.ItemID)
	logging.Logger.Info("part converted",
		"itemID", req.ItemID, "partIndex", req.PartIndex, "time", elapsed)

	// Exactly one completion claims the merge, even when duplicates of
	// the final part race.
	if w.tracker.TryClaimMerge(req.ItemID) {
		mergeEnv := models.NewEnvelope(models.EventMergeRequest, req.ItemID)
		mergeEnv.MaxRetries = w.cfg.MaxRetries
		mergeEnv.Priority = req.Priority
		merge := models.MergeRequest{
			Envelope:   mergeEnv,
			TotalParts: req.TotalParts,
		}
		if err := publishJSON(ctx, w.broker, models.QueueMergeRequest, merge); err != nil {
			// Give the claim back, otherwise no redelivery could ever
			// request the merge and the item would never finish.
			w.tracker.ReleaseMerge(req.ItemID)
			return models.NewTransientError("convert", "publish merge request", err)
		}
		logging.Logger.Info("merge requested", "itemID", req.ItemID, "totalParts", req.TotalParts)
	}
	return nil
}

func (w *ConversionWorker) publishProgress(
	ctx context.Context,
	env models.Envelope,
	status models.ProcessingStatus,
	message string,
	progress *int,
	errMsg string,
) {
	progEnv := env
	progEnv.EventType = models.EventConversionProgress
	event := models.ProgressEvent{
		Envelope: progEnv,
		Status:   status,
		Message:  message,
		Progress: progress,
		Error:    errMsg,
	}
	if err := publishJSON(ctx, w.broker, models.QueueConversionProgress, event); err != nil {
		logging.Logger.Error("fail publishing conversion progress",
			"error", err, "itemID", env.ItemID)
	}
}

func (w *ConversionWorker) notifyPartProgress(itemID string) {
	snap := w.tracker.Snapshot(itemID)
	if snap == nil {
		return
	}
	percentage := 0
	if snap.TotalParts > 0 {
		percentage = len(snap.CompletedParts) * 100 / snap.TotalParts
	}
	notify(w.notifier, &models.DocumentEvent{
		Type:   models.EventDocumentProcessing,
		DocID:  itemID,
		Status: string(snap.Status()),
		Message: fmt.Sprintf("%d/%d parts converted",
			len(snap.CompletedParts), snap.TotalParts),
		Progress: &models.PartProgressInfo{
			CompletedParts:  len(snap.CompletedParts),
			FailedParts:     len(snap.FailedParts),
			ProcessingParts: len(snap.ProcessingParts),
			TotalParts:      snap.TotalParts,
			Percentage:      percentage,
		},
	})
}

func (w *ConversionWorker) failDocument(ctx context.Context, itemID, message string, cause error) {
	if err := w.repo.MarkFailed(ctx, itemID, cause.Error()); err != nil {
		logging.Logger.Error("fail MarkFailed", "error", err, "itemID", itemID)
	}
	notify(w.notifier, &models.DocumentEvent{
		Type:    models.EventDocumentFailed,
		DocID:   itemID,
		Status:  string(models.StatusFailed),
		Message: message,
		Error:   cause.Error(),
	})
}
