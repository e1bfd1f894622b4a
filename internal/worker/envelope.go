package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"

	"ReviewInsights/internal/domain"
	"ReviewInsights/internal/ports"
)

// ErrExtraction is returned by Serve, after the envelope is written, when the source failed or
// panicked, so the worker process exits non-zero.
var ErrExtraction = errors.New("extraction failed")

// envelope is the single JSON document a worker writes to stdout.
type envelope struct {
	Records domain.Dataset `json:"records"`
	Error   string         `json:"error,omitempty"`
}

// Serve runs source for locator inside the worker process and writes the envelope to w.
// Source errors and panics are reported in the envelope, never as a crash, and Serve then
// returns ErrExtraction.
func Serve(ctx context.Context, source ports.ReviewSource, locator string, w io.Writer) error {
	env := fetch(ctx, source, locator)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		return errors.Wrap(err, "write envelope")
	}
	if env.Error != "" {
		return errors.Wrapf(ErrExtraction, "%s", env.Error)
	}
	return nil
}

func fetch(ctx context.Context, source ports.ReviewSource, locator string) (env envelope) {
	defer func() {
		if r := recover(); r != nil {
			env = envelope{Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	records, err := source.Fetch(ctx, locator)
	if err != nil {
		return envelope{Error: err.Error()}
	}
	if records == nil {
		records = domain.Dataset{}
	}
	return envelope{Records: records}
}

func decodeEnvelope(raw []byte) (domain.Dataset, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(err, "decode worker output")
	}
	if env.Error != "" {
		return nil, errors.Newf("worker reported: %s", env.Error)
	}
	return env.Records, nil
}
