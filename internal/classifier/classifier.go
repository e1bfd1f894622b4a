// Package classifier labels review bodies in fixed-size batches and reports progress after each batch.
package classifier

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"ReviewInsights/internal/domain"
	"ReviewInsights/internal/ports"
	"ReviewInsights/internal/stream"
)

// DefaultBatchSize applies when a caller passes a non-positive size.
const DefaultBatchSize = 32

var (
	punctuationExpr = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	digitsExpr      = regexp.MustCompile(`\p{Nd}+`)
)

// Classifier runs a binary sentiment model over a dataset.
type Classifier struct {
	loader ports.ModelLoader
	logger *zap.SugaredLogger
}

// New wires a model loader; a model is loaded per Classify call and released before it ends.
func New(loader ports.ModelLoader, log *zap.SugaredLogger) *Classifier {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Classifier{loader: loader, logger: log}
}

// Classify emits Progress(100*(i+1)/total) after batch i and then one terminal event.
// Records without a body are skipped; if none remain the only event is a Final with an
// empty classification. Consumers that stop reading must cancel ctx.
func (c *Classifier) Classify(ctx context.Context, dataset domain.Dataset, batchSize int) <-chan stream.Event[domain.Classification] {
	out := make(chan stream.Event[domain.Classification])

	go func() {
		defer close(out)

		result, err := c.run(ctx, dataset, batchSize, out)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warnw("classification failed", "error", err)
			stream.Send(ctx, out, stream.Failure[domain.Classification](err))
			return
		}
		stream.Send(ctx, out, stream.Final(result))
	}()

	return out
}

func (c *Classifier) run(ctx context.Context, dataset domain.Dataset, batchSize int, out chan<- stream.Event[domain.Classification]) (domain.Classification, error) {
	records := dataset.Classifiable()
	if len(records) == 0 {
		return domain.Classification{Records: []domain.ClassifiedRecord{}}, nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if c.loader == nil {
		return domain.Classification{}, errors.New("classifier has no model loader")
	}

	model, err := c.loader.Load(ctx)
	if err != nil {
		return domain.Classification{}, errors.Wrap(err, "load model")
	}
	release := sync.OnceFunc(func() {
		if err := model.Close(); err != nil {
			c.logger.Warnw("release model", "error", err)
		}
	})
	defer release()

	total := (len(records) + batchSize - 1) / batchSize
	classified := make([]domain.ClassifiedRecord, 0, len(records))

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return domain.Classification{}, err
		}

		batch := records[i*batchSize : min((i+1)*batchSize, len(records))]
		texts := make([]string, len(batch))
		for j, rec := range batch {
			texts[j] = Normalize(rec.Body)
		}

		labels, err := model.Predict(ctx, texts)
		if err != nil {
			return domain.Classification{}, errors.Wrapf(err, "batch %d/%d", i+1, total)
		}
		if err := checkLabels(labels, len(batch)); err != nil {
			return domain.Classification{}, errors.Wrapf(err, "batch %d/%d", i+1, total)
		}

		for j, rec := range batch {
			classified = append(classified, domain.ClassifiedRecord{
				Body:        rec.Body,
				Helpfulness: rec.Helpfulness,
				Label:       labels[j],
			})
		}

		if i == total-1 {
			// Free the model before the terminal event so consumers never wait on it.
			release()
		}
		if !stream.Send(ctx, out, stream.Progress[domain.Classification](100*(i+1)/total)) {
			return domain.Classification{}, ctx.Err()
		}
	}

	c.logger.Debugw("classification done", "records", len(classified), "batches", total)
	return domain.Classification{Records: classified}, nil
}

func checkLabels(labels []domain.Label, want int) error {
	if len(labels) != want {
		return errors.Mark(errors.Newf("model returned %d labels for %d texts", len(labels), want), domain.ErrClassifierContract)
	}
	for _, l := range labels {
		if !l.Valid() {
			return errors.Mark(errors.Newf("model returned unknown label %d", l), domain.ErrClassifierContract)
		}
	}
	return nil
}

// Normalize lowercases text and strips punctuation and digits before inference.
func Normalize(text string) string {
	text = strings.ToLower(text)
	text = punctuationExpr.ReplaceAllString(text, "")
	text = digitsExpr.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
