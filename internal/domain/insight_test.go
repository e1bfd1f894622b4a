package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsightRecordMarshalFailedShape(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(FailedInsight("https://example.com/p/1", "no data"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"product_name":"https://example.com/p/1","error":"no data"}`, string(raw))
}

func TestInsightRecordMarshalPopulatedShape(t *testing.T) {
	t.Parallel()

	rec := InsightRecord{
		ProductName:   "Kettle",
		Price:         "$19.99",
		ImageURL:      "https://img.example.com/k.jpg",
		Pros:          []string{"fast"},
		Summary:       "Boils water.",
		AverageRating: 4.5,
		PositiveCount: 2,
		NegativeCount: 1,
	}

	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"product_name":"Kettle","price":"$19.99","image_url":"https://img.example.com/k.jpg",
		"pros":["fast"],"cons":[],"summary":"Boils water.","average_rating":4.5,
		"positive_count":2,"negative_count":1
	}`, string(raw))

	var back InsightRecord
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.False(t, back.Failed())
	assert.Equal(t, 2, back.PositiveCount)
}

func TestDatasetClassifiable(t *testing.T) {
	t.Parallel()

	ds := Dataset{{Body: "good"}, {Body: "   "}, {}, {Body: "bad"}}
	got := ds.Classifiable()
	require.Len(t, got, 2)
	assert.Equal(t, "good", got[0].Body)
	assert.Equal(t, "bad", got[1].Body)
}

func TestClassificationCounts(t *testing.T) {
	t.Parallel()

	c := Classification{Records: []ClassifiedRecord{
		{Label: LabelPositive}, {Label: LabelNegative}, {Label: LabelPositive},
	}}
	pos, neg := c.Counts()
	assert.Equal(t, 2, pos)
	assert.Equal(t, 1, neg)
}
