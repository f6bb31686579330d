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

// AnalysisWorker inspects a submitted document and decides single-shot
// vs split processing. Inspection failures are permanent: the document
// must be re-submitted, so there is no retry path here.
type AnalysisWorker struct {
	broker   broker.Broker
	store    ObjectStore
	repo     repository.DocumentRepository
	analyzer PageAnalyzer
	tracker  *tracker.PartTracker
	notifier ProgressNotifier
	cfg      Config
}

func NewAnalysisWorker(
	b broker.Broker,
	store ObjectStore,
	repo repository.DocumentRepository,
	analyzer PageAnalyzer,
	t *tracker.PartTracker,
	notifier ProgressNotifier,
	cfg Config,
) *AnalysisWorker {
	return &AnalysisWorker{
		broker:   b,
		store:    store,
		repo:     repo,
		analyzer: analyzer,
		tracker:  t,
		notifier: notifier,
		cfg:      cfg,
	}
}

func (w *AnalysisWorker) Start(ctx context.Context) error {
	return w.broker.Consume(ctx, models.QueueAnalysisRequest, w.handle,
		broker.ConsumeOptions{ManualAck: true, Prefetch: w.cfg.Prefetch})
}

func (w *AnalysisWorker) handle(ctx context.Context, d *broker.Delivery) error {
	started := time.Now()

	var req models.AnalysisRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		logging.Logger.Error("fail decoding analysis request", "error", err)
		nackMessage(d)
		return err
	}

	logging.Logger.Info("analyzing document", "itemID", req.ItemID, "source", req.SourceLocation)

	pageCount, ranges, err := w.analyze(ctx, &req)
	if err != nil {
		w.fail(ctx, &req, err, started)
		nackMessage(d)
		return err
	}

	totalParts := len(ranges)
	if err := w.tracker.Initialize(req.ItemID, totalParts); err != nil {
		w.fail(ctx, &req, err, started)
		nackMessage(d)
		return err
	}

	now := time.Now()
	meta := &models.DocumentMeta{
		TotalPages: int32(pageCount),
		TotalParts: int32(totalParts),
		StartedAt:  &now,
	}
	if err := w.repo.UpdateMetadata(ctx, req.ItemID, meta); err != nil {
		logging.Logger.Error("fail UpdateMetadata", "error", err, "itemID", req.ItemID)
	}

	completedEnv := req.Envelope
	completedEnv.EventType = models.EventAnalysisCompleted
	completed := models.AnalysisCompleted{
		Envelope:       completedEnv,
		SourceLocation: req.SourceLocation,
		PageCount:      pageCount,
		TotalParts:     totalParts,
		PageRanges:     ranges,
	}
	if err := publishJSON(ctx, w.broker, models.QueueAnalysisCompleted, completed); err != nil {
		logging.Logger.Error("fail publishing analysis completed", "error", err, "itemID", req.ItemID)
		requeueMessage(d)
		return err
	}

	notify(w.notifier, &models.DocumentEvent{
		Type:    models.EventDocumentProcessing,
		DocID:   req.ItemID,
		Status:  string(models.StatusProcessing),
		Message: analysisMessage(totalParts),
	})

	logging.Logger.Info("analysis completed",
		"itemID", req.ItemID,
		"pages", pageCount,
		"totalParts", totalParts,
		"time", time.Since(started).Milliseconds())
	ackMessage(d)
	return nil
}

func (w *AnalysisWorker) analyze(ctx context.Context, req *models.AnalysisRequest) (int, []models.PageRange, error) {
	pdf, err := w.store.GetObject(ctx, req.SourceLocation)
	if err != nil {
		return 0, nil, models.NewPermanentError("analyze", "read source document", err)
	}
	pageCount, err := w.analyzer.PageCount(pdf)
	if err != nil {
		return 0, nil, err
	}

	if pageCount <= w.cfg.SplitThresholdPages {
		return pageCount, []models.PageRange{{PartIndex: 0, StartPage: 1, EndPage: pageCount}}, nil
	}
	return pageCount, services.PlanPageRanges(pageCount, w.cfg.SplitSize), nil
}

func (w *AnalysisWorker) fail(ctx context.Context, req *models.AnalysisRequest, cause error, started time.Time) {
	failEnv := req.Envelope
	failEnv.EventType = models.EventAnalysisFailed
	event := models.FailureEvent{
		Envelope:       failEnv,
		Error:          cause.Error(),
		CanRetry:       false,
		ProcessingTime: time.Since(started).Milliseconds(),
	}
	if err := publishJSON(ctx, w.broker, models.QueueAnalysisFailed, event); err != nil {
		logging.Logger.Error("fail publishing analysis failed", "error", err, "itemID", req.ItemID)
	}
	if err := w.repo.MarkFailed(ctx, req.ItemID, cause.Error()); err != nil {
		logging.Logger.Error("fail MarkFailed", "error", err, "itemID", req.ItemID)
	}
	notify(w.notifier, &models.DocumentEvent{
		Type:    models.EventDocumentFailed,
		DocID:   req.ItemID,
		Status:  string(models.StatusFailed),
		Message: "analysis failed",
		Error:   cause.Error(),
	})
	logging.Logger.Error("analysis failed", "itemID", req.ItemID, "error", cause)
}

func analysisMessage(totalParts int) string {
	if totalParts == 1 {
		return "document queued for conversion"
	}
	return "document split into parts for conversion"
}
