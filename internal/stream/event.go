// Package stream carries progress-then-terminal event sequences between pipeline stages.
//
// A well-formed sequence is zero or more Progress events with non-decreasing fractions followed by
// exactly one terminal event: Final (a value) or Failure (a hard error). Producers send with Send so
// that a consumer that stops receiving, and cancels its context, never leaves them blocked.
package stream

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

var errUnspecified = errors.New("unspecified stage failure")

type kind uint8

const (
	kindProgress kind = iota
	kindFinal
	kindFailure
)

// Event is one element of a stage's output sequence.
type Event[T any] struct {
	kind     kind
	progress int
	value    T
	err      error
}

// Progress builds a checkpoint event; fraction is clamped to [0, 100].
func Progress[T any](fraction int) Event[T] {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 100 {
		fraction = 100
	}
	return Event[T]{kind: kindProgress, progress: fraction}
}

// Final builds the successful terminal event.
func Final[T any](v T) Event[T] {
	return Event[T]{kind: kindFinal, value: v}
}

// Failure builds the hard-failure terminal event.
func Failure[T any](err error) Event[T] {
	if err == nil {
		err = errUnspecified
	}
	return Event[T]{kind: kindFailure, err: err}
}

// IsTerminal reports whether the event ends the sequence.
func (e Event[T]) IsTerminal() bool {
	return e.kind != kindProgress
}

// Fraction returns the progress percentage and whether the event is a checkpoint.
func (e Event[T]) Fraction() (int, bool) {
	return e.progress, e.kind == kindProgress
}

// Value returns the final payload and whether the event is a successful terminal.
func (e Event[T]) Value() (T, bool) {
	return e.value, e.kind == kindFinal
}

// Err returns the hard-failure cause, nil for every other event.
func (e Event[T]) Err() error {
	if e.kind == kindFailure {
		return e.err
	}
	return nil
}

// MarshalJSON renders the event as one self-contained object:
// {"progress":n}, {"result":...} or {"error":"..."}.
func (e Event[T]) MarshalJSON() ([]byte, error) {
	switch e.kind {
	case kindFinal:
		return json.Marshal(struct {
			Result T `json:"result"`
		}{Result: e.value})
	case kindFailure:
		return json.Marshal(struct {
			Error string `json:"error"`
		}{Error: e.err.Error()})
	default:
		return json.Marshal(struct {
			Progress int `json:"progress"`
		}{Progress: e.progress})
	}
}

// Send delivers ev on ch unless ctx is cancelled first. It returns false when the consumer is gone.
func Send[T any](ctx context.Context, ch chan<- Event[T], ev Event[T]) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
