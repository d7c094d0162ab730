// Package backoff provides a reusable retry policy with exponential delay.
package backoff

import (
	"context"
	"fmt"
	"time"
)

// Default policy values.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 5 * time.Second
	DefaultMultiplier  = 2.0
	DefaultMaxDelay    = 2 * time.Minute
)

// Policy describes a bounded retry strategy: up to MaxAttempts tries with a
// delay that starts at BaseDelay and grows by Multiplier between attempts,
// capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// Default returns the default retry policy.
func Default() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Multiplier:  DefaultMultiplier,
		MaxDelay:    DefaultMaxDelay,
	}
}

// normalized fills zero fields with defaults.
func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.Multiplier <= 1 {
		p.Multiplier = DefaultMultiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	return p
}

// Delay returns the wait before the given retry. attempt is zero-based: the
// delay after the first failed try is Delay(0).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Retry calls fn until it succeeds, the attempt budget is exhausted, or ctx
// is cancelled. The inter-attempt sleep observes ctx. onRetry, if non-nil,
// is invoked before each wait with the 1-based attempt number, the upcoming
// delay, and the error that caused the retry.
func (p Policy) Retry(ctx context.Context, fn func() error, onRetry func(attempt int, delay time.Duration, err error)) error {
	p = p.normalized()

	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt+1, delay, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("backoff: %d attempts: %w", p.MaxAttempts, err)
}
