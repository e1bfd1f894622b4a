package insight

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ReviewInsights/internal/domain"
)

type recordingSummarizer struct {
	inputs []string
	reply  domain.Summary
	err    error
}

func (s *recordingSummarizer) Summarize(_ context.Context, text string) (domain.Summary, error) {
	s.inputs = append(s.inputs, text)
	return s.reply, s.err
}

func ptr(v float64) *float64 { return &v }

func classified(helpfulness ...int) domain.Classification {
	var c domain.Classification
	for i, h := range helpfulness {
		c.Records = append(c.Records, domain.ClassifiedRecord{
			Body:        string(rune('a' + i)),
			Helpfulness: h,
			Label:       domain.Label(i % 2),
		})
	}
	return c
}

func TestAggregateEmptyDatasetSkipsSummarizer(t *testing.T) {
	t.Parallel()

	s := &recordingSummarizer{}
	rec, err := NewAggregator(s, 10, nil).Aggregate(context.Background(), "https://shop.example.com/p", nil, domain.Classification{})
	require.NoError(t, err)
	assert.Equal(t, domain.FailedInsight("https://shop.example.com/p", NoDataMessage), rec)
	assert.Empty(t, s.inputs)
}

func TestAggregateWithoutReviewTextSkipsSummarizer(t *testing.T) {
	t.Parallel()

	s := &recordingSummarizer{}
	dataset := domain.Dataset{{ProductName: "Kettle"}, {ProductName: "Kettle", Body: " "}}
	rec, err := NewAggregator(s, 10, nil).Aggregate(context.Background(), "loc", dataset, domain.Classification{})
	require.NoError(t, err)
	assert.True(t, rec.Failed())
	assert.Equal(t, "loc", rec.ProductName)
	assert.Empty(t, s.inputs)
}

func TestSummaryInputIsStableAscendingTopK(t *testing.T) {
	t.Parallel()

	// helpfulness [5,5,1,3], K=2 selects the records with 1 and 3.
	assert.Equal(t, "c d", SummaryInput(classified(5, 5, 1, 3), 2))
	// ties keep their original order
	assert.Equal(t, "c d a", SummaryInput(classified(5, 5, 1, 3), 3))
	assert.Equal(t, "c d a b", SummaryInput(classified(5, 5, 1, 3), 10))
}

func TestAggregateBuildsRecord(t *testing.T) {
	t.Parallel()

	s := &recordingSummarizer{reply: domain.Summary{Pros: []string{"fast"}, Cons: []string{}, Summary: "Good."}}
	dataset := domain.Dataset{
		{ProductName: "Kettle", Price: "$20", ImageURL: "https://img", AverageRating: ptr(4.5), Body: "a"},
		{ProductName: "Other", Price: "$99", AverageRating: ptr(1), Body: "b"},
	}

	rec, err := NewAggregator(s, 2, nil).Aggregate(context.Background(), "loc", dataset, classified(5, 5, 1, 3))
	require.NoError(t, err)

	assert.Equal(t, domain.InsightRecord{
		ProductName:   "Kettle",
		Price:         "$20",
		ImageURL:      "https://img",
		Pros:          []string{"fast"},
		Cons:          []string{},
		Summary:       "Good.",
		AverageRating: 4.5,
		PositiveCount: 2,
		NegativeCount: 2,
	}, rec)
	assert.Equal(t, []string{"c d"}, s.inputs, "counts use every record, the summarizer only the top K")
}

func TestAggregateAverageRatingFallback(t *testing.T) {
	t.Parallel()

	s := &recordingSummarizer{reply: domain.Summary{Pros: []string{}, Cons: []string{}, Summary: "ok"}}
	agg := NewAggregator(s, 0, nil)

	rec, err := agg.Aggregate(context.Background(), "loc", domain.Dataset{{Body: "a", Rating: ptr(3)}}, classified(1))
	require.NoError(t, err)
	assert.Equal(t, 3.0, rec.AverageRating)

	rec, err = agg.Aggregate(context.Background(), "loc", domain.Dataset{{Body: "a"}}, classified(1))
	require.NoError(t, err)
	assert.Zero(t, rec.AverageRating)
}

func TestAggregateIsIdempotent(t *testing.T) {
	t.Parallel()

	s := &recordingSummarizer{reply: domain.Summary{Pros: []string{"x"}, Cons: []string{"y"}, Summary: "z"}}
	agg := NewAggregator(s, 10, nil)
	dataset := domain.Dataset{{ProductName: "Kettle", Body: "a"}}

	first, err := agg.Aggregate(context.Background(), "loc", dataset, classified(1, 2))
	require.NoError(t, err)
	second, err := agg.Aggregate(context.Background(), "loc", dataset, classified(1, 2))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, s.inputs[0], s.inputs[1])
}

func TestAggregateSummarizerErrorIsHard(t *testing.T) {
	t.Parallel()

	s := &recordingSummarizer{err: errors.Mark(errors.New("prose reply"), domain.ErrSummaryContract)}
	rec, err := NewAggregator(s, 10, nil).Aggregate(context.Background(), "loc", domain.Dataset{{Body: "a"}}, classified(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSummaryContract))
	assert.False(t, rec.Failed(), "contract violations are not reported as the error-shaped record")
}
