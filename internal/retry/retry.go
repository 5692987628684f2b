// Package retry runs store round-trips under an exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vyud-ai/vyud/internal/storeerr"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
)

// Policy retries operations that fail with transient errors. Non-transient
// errors are returned immediately.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Log         *slog.Logger

	// Sleep overrides how backoff delays are waited out (tests).
	Sleep func(ctx context.Context, d time.Duration) error
	// Classify overrides transient detection.
	Classify func(error) bool
}

// Default returns the production policy: 5 attempts, 1s doubling to 10s.
func Default(log *slog.Logger) Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Log:         log,
	}
}

// Do runs fn until it succeeds, fails permanently, the context is done or
// the attempt budget is spent. The final transient error keeps its
// storeerr.ErrTransient marker so callers can report the outage.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%s: %w (last error: %v)", op, err, lastErr)
			}
			return fmt.Errorf("%s: %w", op, err)
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !p.transient(err) || errors.Is(err, context.Canceled) {
			return err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		delay := p.hintedDelay(err, attempt)
		if p.Log != nil {
			p.Log.Warn("store call failed, retrying",
				"op", op,
				"attempt", attempt,
				"max_attempts", attempts,
				"delay", delay.String(),
				"err", err,
			)
		}
		if err := p.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s: %w (last error: %v)", op, err, lastErr)
		}
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, storeerr.Transient(lastErr))
}

// Delay returns the backoff before the retry that follows attempt (1-based):
// base, base*2, base*4, ... capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if base <= 0 {
		return 0
	}
	if attempt <= 0 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

func (p Policy) hintedDelay(err error, attempt int) time.Duration {
	var hinted interface{ RetryAfter() time.Duration }
	if errors.As(err, &hinted) {
		if d := hinted.RetryAfter(); d > 0 {
			maxDelay := p.MaxDelay
			if maxDelay <= 0 {
				maxDelay = DefaultMaxDelay
			}
			if d > maxDelay {
				return maxDelay
			}
			return d
		}
	}
	return p.Delay(attempt)
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) transient(err error) bool {
	if p.Classify != nil {
		return p.Classify(err)
	}
	return storeerr.IsTransient(err)
}

func (p Policy) sleep(ctx context.Context, delay time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, delay)
	}
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
