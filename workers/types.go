package workers

import (
	"context"

	"github.com/wjixiang/aikb/models"
)

// ObjectStore is the slice of the storage service the workers touch:
// source PDFs, split part PDFs and per-part markdown artifacts.
type ObjectStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// PageAnalyzer counts pages for the split decision.
type PageAnalyzer interface {
	PageCount(pdf []byte) (int, error)
}

// RangeExtractor produces a standalone PDF for one page range.
type RangeExtractor interface {
	ExtractRange(pdf []byte, startPage, endPage int) ([]byte, error)
}

// ProgressNotifier fans document progress out to observers. Best-effort;
// workers ignore its errors beyond logging.
type ProgressNotifier interface {
	PublishDocumentEvent(event *models.DocumentEvent) error
}

// Config carries the pipeline knobs the workers need.
type Config struct {
	SplitThresholdPages int
	SplitSize           int
	MaxRetries          int
	Prefetch            int
}
