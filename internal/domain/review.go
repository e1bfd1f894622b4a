package domain

import "strings"

// ExtractedRecord is one opinion unit (a single review) scraped from a product page.
// ProductName, Price, ImageURL and AverageRating are page-level fields repeated on every record.
type ExtractedRecord struct {
	ProductName   string   `json:"product_name,omitempty"`
	Price         string   `json:"price,omitempty"`
	ImageURL      string   `json:"image_url,omitempty"`
	AverageRating *float64 `json:"average_rating,omitempty"`
	Body          string   `json:"body,omitempty"`
	Helpfulness   int      `json:"helpfulness"`
	Rating        *float64 `json:"rating,omitempty"`
}

// HasBody reports whether the record carries text worth classifying.
func (r ExtractedRecord) HasBody() bool {
	return strings.TrimSpace(r.Body) != ""
}

// Dataset is the ordered output of one extraction run. An empty dataset is valid.
type Dataset []ExtractedRecord

// Classifiable returns the records with a non-empty body, preserving order.
func (d Dataset) Classifiable() []ExtractedRecord {
	out := make([]ExtractedRecord, 0, len(d))
	for _, rec := range d {
		if rec.HasBody() {
			out = append(out, rec)
		}
	}
	return out
}

// Label is a binary sentiment prediction.
type Label int

const (
	LabelNegative Label = 0
	LabelPositive Label = 1
)

// Valid reports whether the label is one of the two known classes.
func (l Label) Valid() bool {
	return l == LabelNegative || l == LabelPositive
}

// ClassifiedRecord pairs a predicted label with the fields later used for summarization.
type ClassifiedRecord struct {
	Body        string `json:"body"`
	Helpfulness int    `json:"helpfulness"`
	Label       Label  `json:"label"`
}

// Classification is aligned by index with Dataset.Classifiable().
type Classification struct {
	Records []ClassifiedRecord `json:"records"`
}

// Counts returns the number of positive and negative labels.
func (c Classification) Counts() (positive, negative int) {
	for _, rec := range c.Records {
		switch rec.Label {
		case LabelPositive:
			positive++
		case LabelNegative:
			negative++
		}
	}
	return positive, negative
}

// Summary is the three-field reply expected from the summarization collaborator.
type Summary struct {
	Pros    []string `json:"pros" validate:"required"`
	Cons    []string `json:"cons" validate:"required"`
	Summary string   `json:"summary" validate:"required"`
}
