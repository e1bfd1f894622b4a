package ports

import (
	"context"

	"ReviewInsights/internal/domain"
)

// ReviewSource scrapes every review reachable from a product locator.
// It runs inside the isolated extraction worker and may fail or panic.
type ReviewSource interface {
	Fetch(ctx context.Context, locator string) (domain.Dataset, error)
}

// Extractor runs a ReviewSource behind an isolation boundary. It never fails: any
// problem on the worker side is reported as an empty dataset.
type Extractor interface {
	Extract(ctx context.Context, locator string) domain.Dataset
}

// Model is a loaded classification session; it must be closed to free its weights.
type Model interface {
	Predict(ctx context.Context, texts []string) ([]domain.Label, error)
	Close() error
}

// ModelLoader opens one Model per analysis invocation.
type ModelLoader interface {
	Load(ctx context.Context) (Model, error)
}

// Summarizer extracts pros, cons and a synopsis from concatenated review text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (domain.Summary, error)
}
