package bootstrap

import (
	"context"

	"github.com/wjixiang/aikb/config"
	"github.com/wjixiang/aikb/workers"
)

type Workers struct {
	Analysis   *workers.AnalysisWorker
	Coordinate *workers.Coordinator
	Conversion *workers.ConversionWorker
	Merge      *workers.MergeWorker
	Storage    *workers.StorageWorker
}

func NewWorkers(cfg *config.Config, repos *Repositories, services *Services, infra *Infrastructure) *Workers {
	wcfg := workers.Config{
		SplitThresholdPages: cfg.SplitThresholdPages,
		SplitSize:           cfg.SplitSize,
		MaxRetries:          cfg.MaxRetries,
		Prefetch:            cfg.PrefetchCount,
	}
	return &Workers{
		Analysis: workers.NewAnalysisWorker(
			infra.Broker, infra.Storage, repos.DocumentRepository,
			services.PDFSplitter, services.PartTracker, infra.EventPublisher, wcfg),
		Coordinate: workers.NewCoordinator(
			infra.Broker, infra.Storage, repos.DocumentRepository,
			services.PDFSplitter, infra.EventPublisher, wcfg),
		Conversion: workers.NewConversionWorker(
			infra.Broker, infra.Storage, repos.DocumentRepository,
			services.Converter, services.PartTracker, infra.EventPublisher, wcfg),
		Merge: workers.NewMergeWorker(
			infra.Broker, infra.Storage, repos.DocumentRepository,
			services.PartTracker, infra.EventPublisher, wcfg),
		Storage: workers.NewStorageWorker(
			infra.Broker, repos.DocumentRepository,
			services.PartTracker, infra.EventPublisher, wcfg),
	}
}

// Start registers every pipeline consumer. Consumers run until ctx is
// canceled.
func (w *Workers) Start(ctx context.Context) error {
	if err := w.Analysis.Start(ctx); err != nil {
		return err
	}
	if err := w.Coordinate.Start(ctx); err != nil {
		return err
	}
	if err := w.Conversion.Start(ctx); err != nil {
		return err
	}
	if err := w.Merge.Start(ctx); err != nil {
		return err
	}
	return w.Storage.Start(ctx)
}
