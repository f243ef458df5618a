// Package retry runs fallible operations with exponential backoff and
// jitter. It knows nothing about the operations it wraps.
package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 100 * time.Millisecond
	DefaultJitter      = 100 * time.Millisecond
)

// Backoff configures Do. The zero value is usable and means the defaults.
type Backoff struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Jitter is the width of the uniform random window added to each delay.
	// Zero makes delays deterministic.
	Jitter time.Duration

	// Retryable decides whether a failure gets another attempt. Nil retries
	// everything.
	Retryable func(error) bool
	// OnRetry is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)

	// Sleep suspends for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Rand returns a value in [0, n). Nil uses math/rand/v2.
	Rand func(n int64) int64
}

// Default returns a Backoff with the package defaults filled in.
func Default() Backoff {
	return Backoff{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Jitter:      DefaultJitter,
	}
}

// Delay returns the wait after the failure of 0-based attempt n:
// 2^n * BaseDelay + rand[0, Jitter).
func (b Backoff) Delay(n int) time.Duration {
	base := b.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	d := base << uint(n)

	if b.Jitter > 0 {
		rnd := b.Rand
		if rnd == nil {
			rnd = rand.Int64N
		}
		d += time.Duration(rnd(int64(b.Jitter)))
	}
	return d
}

func (b Backoff) attempts() int {
	if b.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return b.MaxAttempts
}

// Do calls op until it succeeds, returns a non-retryable error, or the
// attempt budget runs out. The final error is returned unchanged.
func Do[T any](ctx context.Context, b Backoff, op func(ctx context.Context) (T, error)) (T, error) {
	sleep := b.Sleep
	if sleep == nil {
		sleep = timerSleep
	}

	var (
		zero T
		err  error
	)
	max := b.attempts()
	for attempt := 0; attempt < max; attempt++ {
		var out T
		out, err = op(ctx)
		if err == nil {
			return out, nil
		}
		if b.Retryable != nil && !b.Retryable(err) {
			return zero, err
		}
		if attempt == max-1 {
			break
		}

		delay := b.Delay(attempt)
		if b.OnRetry != nil {
			b.OnRetry(attempt+1, delay, err)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return zero, serr
		}
	}
	return zero, err
}

// Run is Do for operations without a result.
func Run(ctx context.Context, b Backoff, op func(ctx context.Context) error) error {
	_, err := Do(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func timerSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
