// Package retry runs an operation a bounded number of times.
package retry

import (
	"context"
	"errors"
	"time"

	retrygo "github.com/avast/retry-go/v4"
)

// ErrExhausted wraps the last error once every attempt has failed with a
// retryable error.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Policy bounds a retry loop. Retryable decides which errors earn another
// attempt; a nil Retryable retries every error. Sleep overrides the backoff
// wait.
type Policy struct {
	Attempts  int
	Backoff   time.Duration
	Retryable func(error) bool
	Sleep     func(ctx context.Context, d time.Duration) error
}

// Outcome describes how a Do call ended.
type Outcome struct {
	Attempts int
	Err      error
}

// Exhausted reports whether Do gave up after retryable failures.
func (o Outcome) Exhausted() bool {
	return errors.Is(o.Err, ErrExhausted)
}

var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoffTimer feeds retry-go's delay through a context-aware sleep. A failed
// sleep cancels the loop context with the sleep error as cause.
type backoffTimer struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	wait   func(ctx context.Context, d time.Duration) error
}

func (b backoffTimer) After(d time.Duration) <-chan time.Time {
	if err := b.wait(b.ctx, d); err != nil {
		b.cancel(err)
		return nil
	}
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

// Do calls fn until it succeeds, returns a non-retryable error, the policy
// runs out of attempts, or ctx is done during a backoff. fn receives the
// 1-based attempt number.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) Outcome {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	wait := sleep
	if p.Sleep != nil {
		wait = p.Sleep
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = func(error) bool { return true }
	}

	loopCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	calls := 0
	var last error
	err := retrygo.Do(
		func() error {
			calls++
			last = fn(ctx, calls)
			return last
		},
		retrygo.Attempts(uint(attempts)),
		retrygo.Delay(p.Backoff),
		retrygo.DelayType(retrygo.FixedDelay),
		retrygo.RetryIf(retryable),
		retrygo.Context(loopCtx),
		retrygo.WithTimer(backoffTimer{ctx: loopCtx, cancel: cancel, wait: wait}),
		retrygo.LastErrorOnly(true),
	)

	switch {
	case err == nil:
		return Outcome{Attempts: calls}
	case calls == 0 || (loopCtx.Err() != nil && !errors.Is(err, last)):
		return Outcome{Attempts: calls, Err: context.Cause(loopCtx)}
	case calls == attempts && retryable(last):
		return Outcome{Attempts: calls, Err: errors.Join(ErrExhausted, last)}
	default:
		return Outcome{Attempts: calls, Err: last}
	}
}
