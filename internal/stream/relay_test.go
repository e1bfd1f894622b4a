package stream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ReviewInsights/internal/domain"
)

func emit[T any](events ...Event[T]) <-chan Event[T] {
	ch := make(chan Event[T], len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func collect[T any](t *testing.T, ch <-chan Event[T]) []Event[T] {
	t.Helper()
	var out []Event[T]
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("stream did not close")
		}
	}
}

func TestRelayForwardsProgressThenFinishes(t *testing.T) {
	t.Parallel()

	src := emit(Progress[int](33), Progress[int](66), Progress[int](100), Final(3))
	var finishCalls int
	out := Relay(context.Background(), src, func(_ context.Context, n int) (string, error) {
		finishCalls++
		return "got-" + string(rune('0'+n)), nil
	})

	events := collect(t, out)
	require.Len(t, events, 4)
	for i, want := range []int{33, 66, 100} {
		got, ok := events[i].Fraction()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	v, ok := events[3].Value()
	require.True(t, ok)
	assert.Equal(t, "got-3", v)
	assert.Equal(t, 1, finishCalls)
}

func TestRelayForwardsUpstreamFailureWithoutFinish(t *testing.T) {
	t.Parallel()

	boom := errors.New("model exploded")
	src := emit(Progress[int](50), Failure[int](boom))
	out := Relay(context.Background(), src, func(context.Context, int) (int, error) {
		t.Errorf("finish must not run after an upstream failure")
		return 0, nil
	})

	events := collect(t, out)
	require.Len(t, events, 2)
	assert.ErrorIs(t, events[1].Err(), boom)
}

func TestRelayFinishErrorBecomesFailure(t *testing.T) {
	t.Parallel()

	out := Relay(context.Background(), emit(Final(1)), func(context.Context, int) (int, error) {
		return 0, domain.ErrSummaryContract
	})

	events := collect(t, out)
	require.Len(t, events, 1)
	assert.True(t, errors.Is(events[0].Err(), domain.ErrSummaryContract))
}

func TestRelayReportsTruncatedSource(t *testing.T) {
	t.Parallel()

	out := Relay(context.Background(), emit(Progress[int](10)), func(context.Context, int) (int, error) {
		return 0, nil
	})

	events := collect(t, out)
	require.Len(t, events, 2)
	assert.ErrorIs(t, events[1].Err(), domain.ErrStreamTruncated)
}

func TestRelayStopsWhenConsumerLeaves(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	src := make(chan Event[int])
	producerDone := make(chan struct{})

	go func() {
		defer close(producerDone)
		defer close(src)
		for i := 1; i <= 100; i++ {
			if !Send(ctx, src, Progress[int](i)) {
				return
			}
		}
		Send(ctx, src, Final(1))
	}()

	out := Relay(ctx, src, func(context.Context, int) (int, error) { return 1, nil })
	<-out
	cancel()

	select {
	case <-producerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("producer stayed blocked after the consumer cancelled")
	}
}

func TestEventJSON(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		ev   Event[map[string]int]
		want string
	}{
		"progress": {Progress[map[string]int](42), `{"progress":42}`},
		"final":    {Final(map[string]int{"a": 1}), `{"result":{"a":1}}`},
		"failure":  {Failure[map[string]int](errors.New("bad reply")), `{"error":"bad reply"}`},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			raw, err := json.Marshal(tc.ev)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(raw))
		})
	}
}

func TestProgressClamps(t *testing.T) {
	t.Parallel()

	low, _ := Progress[int](-5).Fraction()
	high, _ := Progress[int](250).Fraction()
	assert.Equal(t, 0, low)
	assert.Equal(t, 100, high)
}

func TestDrain(t *testing.T) {
	t.Parallel()

	var seen []int
	v, err := Drain(context.Background(), emit(Progress[int](50), Progress[int](100), Final(7)), func(p int) {
		seen = append(seen, p)
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, []int{50, 100}, seen)
}
