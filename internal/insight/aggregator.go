// Package insight turns a dataset and its classification into the final per-product record.
package insight

import (
	"context"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"ReviewInsights/internal/domain"
	"ReviewInsights/internal/ports"
)

const (
	// DefaultTopK is how many reviews feed the summarizer.
	DefaultTopK = 10

	// NoDataMessage is the error shape reason when extraction returned nothing.
	NoDataMessage = "No data was scraped. Please check the URL and try again."
	// NoTextMessage is the reason when records exist but none carries a body.
	NoTextMessage = "No review text was found for this product."
)

// Aggregator combines label counts, the summarizer's pros/cons and product fields.
type Aggregator struct {
	summarizer ports.Summarizer
	topK       int
	logger     *zap.SugaredLogger
}

// NewAggregator wires a summarizer; topK <= 0 uses DefaultTopK.
func NewAggregator(summarizer ports.Summarizer, topK int, log *zap.SugaredLogger) *Aggregator {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Aggregator{summarizer: summarizer, topK: topK, logger: log}
}

// Aggregate builds the insight for locator. An empty dataset, or one without any review text,
// yields the error-shaped record and never reaches the summarizer. Summarizer errors are returned.
func (a *Aggregator) Aggregate(ctx context.Context, locator string, dataset domain.Dataset, classification domain.Classification) (domain.InsightRecord, error) {
	if len(dataset) == 0 {
		return domain.FailedInsight(locator, NoDataMessage), nil
	}
	if len(classification.Records) == 0 {
		return domain.FailedInsight(locator, NoTextMessage), nil
	}
	if a.summarizer == nil {
		return domain.InsightRecord{}, errors.New("aggregator has no summarizer")
	}

	text := SummaryInput(classification, a.topK)
	a.logger.Debugw("summarize", "locator", locator, "reviews", min(a.topK, len(classification.Records)), "chars", len(text))

	summary, err := a.summarizer.Summarize(ctx, text)
	if err != nil {
		return domain.InsightRecord{}, errors.Wrap(err, "summarize reviews")
	}

	positive, negative := classification.Counts()
	first := dataset[0]

	record := domain.InsightRecord{
		ProductName:   first.ProductName,
		Price:         first.Price,
		ImageURL:      first.ImageURL,
		Pros:          summary.Pros,
		Cons:          summary.Cons,
		Summary:       summary.Summary,
		PositiveCount: positive,
		NegativeCount: negative,
	}
	switch {
	case first.AverageRating != nil:
		record.AverageRating = *first.AverageRating
	case first.Rating != nil:
		record.AverageRating = *first.Rating
	}

	return record, nil
}

// SummaryInput joins the bodies of the topK records with the lowest helpfulness, in stable
// ascending order, separated by single spaces.
func SummaryInput(classification domain.Classification, topK int) string {
	records := make([]domain.ClassifiedRecord, len(classification.Records))
	copy(records, classification.Records)
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Helpfulness < records[j].Helpfulness
	})
	if topK > 0 && len(records) > topK {
		records = records[:topK]
	}

	bodies := make([]string, len(records))
	for i, rec := range records {
		bodies[i] = rec.Body
	}
	return strings.Join(bodies, " ")
}
