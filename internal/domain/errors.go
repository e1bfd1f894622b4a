package domain

import "github.com/cockroachdb/errors"

var (
	// ErrSummaryContract marks a summarizer reply that does not match {pros, cons, summary}.
	ErrSummaryContract = errors.New("summarizer reply violates the pros/cons/summary contract")

	// ErrClassifierContract marks a model reply with the wrong label count or unknown labels.
	ErrClassifierContract = errors.New("classifier reply violates the label contract")

	// ErrStreamTruncated is reported when an upstream stage closes without a terminal event.
	ErrStreamTruncated = errors.New("event stream ended without a terminal event")
)
