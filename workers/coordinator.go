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
)

// Coordinator routes an analyzed document into the conversion paths:
// single-shot documents become one conversion request; split documents
// are physically cut into part PDFs and fanned out as part requests.
type Coordinator struct {
	broker    broker.Broker
	store     ObjectStore
	repo      repository.DocumentRepository
	extractor RangeExtractor
	notifier  ProgressNotifier
	cfg       Config
}

func NewCoordinator(
	b broker.Broker,
	store ObjectStore,
	repo repository.DocumentRepository,
	extractor RangeExtractor,
	notifier ProgressNotifier,
	cfg Config,
) *Coordinator {
	return &Coordinator{
		broker:    b,
		store:     store,
		repo:      repo,
		extractor: extractor,
		notifier:  notifier,
		cfg:       cfg,
	}
}

func (c *Coordinator) Start(ctx context.Context) error {
	return c.broker.Consume(ctx, models.QueueAnalysisCompleted, c.handle,
		broker.ConsumeOptions{ManualAck: true, Prefetch: c.cfg.Prefetch})
}

func (c *Coordinator) handle(ctx context.Context, d *broker.Delivery) error {
	started := time.Now()

	var msg models.AnalysisCompleted
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		logging.Logger.Error("fail decoding analysis result", "error", err)
		nackMessage(d)
		return err
	}

	var err error
	if msg.TotalParts <= 1 {
		err = c.dispatchWhole(ctx, &msg)
	} else {
		err = c.dispatchParts(ctx, &msg)
	}
	if err != nil {
		retried, pubErr := retryOrFail(ctx, c.broker, models.QueueAnalysisCompleted, msg.Envelope,
			func(env models.Envelope) interface{} {
				next := msg
				next.Envelope = env
				return next
			},
			models.QueueConversionFailed, models.EventConversionFailed, nil, err, started)
		if pubErr != nil {
			requeueMessage(d)
			return pubErr
		}
		if !retried {
			c.failDocument(ctx, msg.ItemID, err)
		}
		ackMessage(d)
		return nil
	}

	ackMessage(d)
	return nil
}

func (c *Coordinator) dispatchWhole(ctx context.Context, msg *models.AnalysisCompleted) error {
	env := models.NewEnvelope(models.EventConversionRequest, msg.ItemID)
	env.MaxRetries = c.cfg.MaxRetries
	env.Priority = msg.Priority
	req := models.ConversionRequest{
		Envelope:       env,
		SourceLocation: msg.SourceLocation,
	}
	if err := publishJSON(ctx, c.broker, models.QueueConversionRequest, req); err != nil {
		return models.NewTransientError("coordinate", "publish conversion request", err)
	}
	logging.Logger.Info("conversion requested", "itemID", msg.ItemID, "pages", msg.PageCount)
	return nil
}

// dispatchParts cuts the source into standalone part PDFs before any
// part request goes out, so a consumed request always has its input in
// object storage. Replays overwrite the same part keys, which is safe.
func (c *Coordinator) dispatchParts(ctx context.Context, msg *models.AnalysisCompleted) error {
	if len(msg.PageRanges) != msg.TotalParts {
		return models.NewPermanentError("coordinate",
			fmt.Sprintf("analysis result lists %d ranges for %d parts", len(msg.PageRanges), msg.TotalParts), nil)
	}

	pdf, err := c.store.GetObject(ctx, msg.SourceLocation)
	if err != nil {
		return models.NewTransientError("coordinate", "read source document", err)
	}

	keys := make([]string, msg.TotalParts)
	for _, r := range msg.PageRanges {
		part, err := c.extractor.ExtractRange(pdf, r.StartPage, r.EndPage)
		if err != nil {
			return err
		}
		key := storage.PartPDFKey(msg.ItemID, r.PartIndex)
		if err := c.store.PutObject(ctx, key, part, "application/pdf"); err != nil {
			return models.NewTransientError("coordinate", "store part pdf", err)
		}
		keys[r.PartIndex] = key
	}

	for _, r := range msg.PageRanges {
		env := models.NewEnvelope(models.EventPartConversionRequest, msg.ItemID)
		env.MaxRetries = c.cfg.MaxRetries
		env.Priority = msg.Priority
		req := models.PartConversionRequest{
			Envelope:       env,
			PartIndex:      r.PartIndex,
			TotalParts:     msg.TotalParts,
			SourceLocation: keys[r.PartIndex],
			StartPage:      r.StartPage,
			EndPage:        r.EndPage,
		}
		if err := publishJSON(ctx, c.broker, models.QueuePartConversionRequest, req); err != nil {
			return models.NewTransientError("coordinate", "publish part conversion request", err)
		}
	}

	logging.Logger.Info("part conversions requested",
		"itemID", msg.ItemID, "totalParts", msg.TotalParts, "pages", msg.PageCount)
	return nil
}

func (c *Coordinator) failDocument(ctx context.Context, itemID string, cause error) {
	if err := c.repo.MarkFailed(ctx, itemID, cause.Error()); err != nil {
		logging.Logger.Error("fail MarkFailed", "error", err, "itemID", itemID)
	}
	notify(c.notifier, &models.DocumentEvent{
		Type:    models.EventDocumentFailed,
		DocID:   itemID,
		Status:  string(models.StatusFailed),
		Message: "conversion dispatch failed",
		Error:   cause.Error(),
	})
}
