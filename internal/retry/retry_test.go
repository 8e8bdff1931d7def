package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errStale = errors.New("stale")

func isStale(err error) bool { return errors.Is(err, errStale) }

func noSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var waits []time.Duration
	orig := sleep
	sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	t.Cleanup(func() { sleep = orig })
	return &waits
}

func TestDoSucceedsOnThirdAttempt(t *testing.T) {
	waits := noSleep(t)
	calls := 0
	out := Do(context.Background(), Policy{Attempts: 3, Backoff: time.Second, Retryable: isStale},
		func(ctx context.Context, attempt int) error {
			calls++
			if attempt < 3 {
				return errStale
			}
			return nil
		})
	if out.Err != nil {
		t.Fatalf("Do() err = %v; want nil", out.Err)
	}
	if out.Attempts != 3 || calls != 3 {
		t.Fatalf("attempts = %d, calls = %d; want 3, 3", out.Attempts, calls)
	}
	if len(*waits) != 2 || (*waits)[0] != time.Second {
		t.Fatalf("backoffs = %v; want two 1s waits", *waits)
	}
}

func TestDoExhausted(t *testing.T) {
	noSleep(t)
	out := Do(context.Background(), Policy{Attempts: 3, Retryable: isStale},
		func(ctx context.Context, attempt int) error { return errStale })
	if !out.Exhausted() {
		t.Fatalf("Exhausted() = false; err = %v", out.Err)
	}
	if !errors.Is(out.Err, errStale) {
		t.Fatalf("err = %v; want wrapped stale", out.Err)
	}
	if out.Attempts != 3 {
		t.Fatalf("attempts = %d; want 3", out.Attempts)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	noSleep(t)
	boom := errors.New("timeout")
	calls := 0
	out := Do(context.Background(), Policy{Attempts: 3, Retryable: isStale},
		func(ctx context.Context, attempt int) error {
			calls++
			return boom
		})
	if calls != 1 || out.Exhausted() || !errors.Is(out.Err, boom) {
		t.Fatalf("calls = %d, out = %+v; want single non-exhausted failure", calls, out)
	}
}

func TestDoHonoursCancelDuringBackoff(t *testing.T) {
	noSleep(t)
	ctx, cancel := context.WithCancel(context.Background())
	out := Do(ctx, Policy{Attempts: 5, Retryable: isStale},
		func(ctx context.Context, attempt int) error {
			cancel()
			return errStale
		})
	if !errors.Is(out.Err, context.Canceled) || out.Attempts != 1 {
		t.Fatalf("out = %+v; want cancel after first attempt", out)
	}
}

func TestDoReturnsSleepError(t *testing.T) {
	halt := errors.New("halt")
	calls := 0
	out := Do(context.Background(), Policy{
		Attempts:  3,
		Backoff:   time.Second,
		Retryable: isStale,
		Sleep:     func(ctx context.Context, d time.Duration) error { return halt },
	}, func(ctx context.Context, attempt int) error {
		calls++
		return errStale
	})
	if calls != 1 || out.Exhausted() || !errors.Is(out.Err, halt) {
		t.Fatalf("calls = %d, out = %+v; want one attempt ending in the sleep error", calls, out)
	}
}

func TestDoRetriesEverythingWithoutPredicate(t *testing.T) {
	noSleep(t)
	boom := errors.New("boom")
	out := Do(context.Background(), Policy{Attempts: 2},
		func(ctx context.Context, attempt int) error { return boom })
	if !out.Exhausted() || out.Attempts != 2 {
		t.Fatalf("out = %+v; want exhausted after 2 attempts", out)
	}
}
