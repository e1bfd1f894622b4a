package stream

import (
	"context"

	"github.com/cockroachdb/errors"

	"ReviewInsights/internal/domain"
)

// FinishFunc turns the upstream final value into the downstream one.
type FinishFunc[A, B any] func(ctx context.Context, upstream A) (B, error)

// Relay flattens src and finish into one sequence. Progress events pass through unchanged,
// src's Final is consumed by finish whose result becomes the only terminal event, and a
// Failure from src is forwarded without calling finish.
func Relay[A, B any](ctx context.Context, src <-chan Event[A], finish FinishFunc[A, B]) <-chan Event[B] {
	out := make(chan Event[B])

	go func() {
		defer close(out)

		for {
			var (
				ev Event[A]
				ok bool
			)
			select {
			case <-ctx.Done():
				return
			case ev, ok = <-src:
			}

			if !ok {
				Send(ctx, out, Failure[B](domain.ErrStreamTruncated))
				return
			}

			if fraction, isProgress := ev.Fraction(); isProgress {
				if !Send(ctx, out, Progress[B](fraction)) {
					return
				}
				continue
			}

			if err := ev.Err(); err != nil {
				Send(ctx, out, Failure[B](err))
				return
			}

			upstream, _ := ev.Value()
			result, err := finish(ctx, upstream)
			if err != nil {
				Send(ctx, out, Failure[B](err))
				return
			}
			Send(ctx, out, Final(result))
			return
		}
	}()

	return out
}

// Drain consumes a sequence, reporting each checkpoint to onProgress, and returns the terminal outcome.
func Drain[T any](ctx context.Context, src <-chan Event[T], onProgress func(int)) (T, error) {
	var zero T
	for {
		select {
		case <-ctx.Done():
			return zero, errors.Wrap(ctx.Err(), "stream abandoned")
		case ev, ok := <-src:
			if !ok {
				return zero, domain.ErrStreamTruncated
			}
			if fraction, isProgress := ev.Fraction(); isProgress {
				if onProgress != nil {
					onProgress(fraction)
				}
				continue
			}
			if err := ev.Err(); err != nil {
				return zero, err
			}
			v, _ := ev.Value()
			return v, nil
		}
	}
}
