package domain

import "encoding/json"

// InsightRecord is the terminal artifact of one analysis request.
// When Error is set only ProductName (holding the original locator) is meaningful.
type InsightRecord struct {
	ProductName   string
	Price         string
	ImageURL      string
	Pros          []string
	Cons          []string
	Summary       string
	AverageRating float64
	PositiveCount int
	NegativeCount int
	Error         string
}

// FailedInsight builds the error-shaped record for a locator.
func FailedInsight(locator, reason string) InsightRecord {
	return InsightRecord{ProductName: locator, Error: reason}
}

// Failed reports whether the record carries the error shape.
func (r InsightRecord) Failed() bool {
	return r.Error != ""
}

type insightJSON struct {
	ProductName   string   `json:"product_name"`
	Price         string   `json:"price"`
	ImageURL      string   `json:"image_url"`
	Pros          []string `json:"pros"`
	Cons          []string `json:"cons"`
	Summary       string   `json:"summary"`
	AverageRating float64  `json:"average_rating"`
	PositiveCount int      `json:"positive_count"`
	NegativeCount int      `json:"negative_count"`
}

type failedInsightJSON struct {
	ProductName string `json:"product_name"`
	Error       string `json:"error"`
}

// MarshalJSON emits exactly one of the two record shapes.
func (r InsightRecord) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(failedInsightJSON{ProductName: r.ProductName, Error: r.Error})
	}

	pros, cons := r.Pros, r.Cons
	if pros == nil {
		pros = []string{}
	}
	if cons == nil {
		cons = []string{}
	}

	return json.Marshal(insightJSON{
		ProductName:   r.ProductName,
		Price:         r.Price,
		ImageURL:      r.ImageURL,
		Pros:          pros,
		Cons:          cons,
		Summary:       r.Summary,
		AverageRating: r.AverageRating,
		PositiveCount: r.PositiveCount,
		NegativeCount: r.NegativeCount,
	})
}

// UnmarshalJSON accepts either record shape.
func (r *InsightRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		insightJSON
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = InsightRecord{
		ProductName:   raw.ProductName,
		Price:         raw.Price,
		ImageURL:      raw.ImageURL,
		Pros:          raw.Pros,
		Cons:          raw.Cons,
		Summary:       raw.Summary,
		AverageRating: raw.AverageRating,
		PositiveCount: raw.PositiveCount,
		NegativeCount: raw.NegativeCount,
		Error:         raw.Error,
	}
	return nil
}
