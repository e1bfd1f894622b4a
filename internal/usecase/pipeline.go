package usecase

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ReviewInsights/internal/domain"
	"ReviewInsights/internal/ports"
	"ReviewInsights/internal/stream"
)

var errNoAggregator = errors.New("pipeline has no aggregator")

// Classifier labels a dataset, reporting progress as it goes.
type Classifier interface {
	Classify(ctx context.Context, dataset domain.Dataset, batchSize int) <-chan stream.Event[domain.Classification]
}

// Aggregator turns a classified dataset into the final insight.
type Aggregator interface {
	Aggregate(ctx context.Context, locator string, dataset domain.Dataset, classification domain.Classification) (domain.InsightRecord, error)
}

// PipelineDeps wires all driven adapters into the analysis pipeline.
type PipelineDeps struct {
	Extractor  ports.Extractor
	Classifier Classifier
	Aggregator Aggregator
	BatchSize  int
	Logger     *zap.SugaredLogger
}

// Pipeline implements the extract, classify, aggregate workflow for one locator at a time.
type Pipeline struct {
	extractor  ports.Extractor
	classifier Classifier
	aggregator Aggregator
	batchSize  int
	logger     *zap.SugaredLogger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Pipeline{
		extractor:  deps.Extractor,
		classifier: deps.Classifier,
		aggregator: deps.Aggregator,
		batchSize:  deps.BatchSize,
		logger:     logger,
	}
}

// Run analyzes locator and streams the classifier's progress followed by exactly one terminal
// event: a Final insight (possibly error-shaped) or a Failure for hard errors. The channel is
// closed afterwards. Callers that stop reading early must cancel ctx.
func (p *Pipeline) Run(ctx context.Context, locator string) <-chan stream.Event[domain.InsightRecord] {
	out := make(chan stream.Event[domain.InsightRecord])
	log := p.logger.With("request_id", uuid.NewString(), "locator", locator)

	go func() {
		defer close(out)

		started := time.Now()
		log.Infow("analysis started")

		var dataset domain.Dataset
		if p.extractor != nil {
			dataset = p.extractor.Extract(ctx, locator)
		}
		if ctx.Err() != nil {
			log.Infow("analysis abandoned", "stage", "extract")
			return
		}
		log.Debugw("extracted", "records", len(dataset))

		classified := p.classify(ctx, dataset)
		events := stream.Relay(ctx, classified, func(ctx context.Context, c domain.Classification) (domain.InsightRecord, error) {
			return p.aggregate(ctx, locator, dataset, c)
		})

		for ev := range events {
			if ev.IsTerminal() {
				p.logOutcome(log, ev, time.Since(started))
			}
			if !stream.Send(ctx, out, ev) {
				log.Infow("analysis abandoned", "stage", "stream")
				return
			}
		}
	}()

	return out
}

// Analyze runs the pipeline to completion, reporting each progress fraction to onProgress.
func (p *Pipeline) Analyze(ctx context.Context, locator string, onProgress func(int)) (domain.InsightRecord, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	return stream.Drain(ctx, p.Run(ctx, locator), onProgress)
}

func (p *Pipeline) classify(ctx context.Context, dataset domain.Dataset) <-chan stream.Event[domain.Classification] {
	if p.classifier != nil {
		return p.classifier.Classify(ctx, dataset, p.batchSize)
	}
	ch := make(chan stream.Event[domain.Classification], 1)
	ch <- stream.Final(domain.Classification{})
	close(ch)
	return ch
}

func (p *Pipeline) aggregate(ctx context.Context, locator string, dataset domain.Dataset, c domain.Classification) (domain.InsightRecord, error) {
	if p.aggregator == nil {
		return domain.InsightRecord{}, errNoAggregator
	}
	return p.aggregator.Aggregate(ctx, locator, dataset, c)
}

func (p *Pipeline) logOutcome(log *zap.SugaredLogger, ev stream.Event[domain.InsightRecord], elapsed time.Duration) {
	if err := ev.Err(); err != nil {
		log.Errorw("analysis failed", "elapsed", elapsed, "error", err)
		return
	}
	rec, _ := ev.Value()
	if rec.Failed() {
		log.Warnw("analysis produced no insight", "elapsed", elapsed, "reason", rec.Error)
		return
	}
	log.Infow("analysis finished", "elapsed", elapsed, "positive", rec.PositiveCount, "negative", rec.NegativeCount)
}
