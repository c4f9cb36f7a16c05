// Package retry provides a bounded retry combinator for venue calls, with a
// fixed attempt budget, a backoff that can grow per attempt, and respect for
// server-supplied retry-after hints.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/songsb13/arbot/internal/domain"
)

// Policy controls how Do retries.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Delay is the wait before the second attempt.
	Delay time.Duration
	// Factor multiplies the delay after each failure; 0 or 1 keeps it fixed.
	Factor float64
	// MaxDelay caps the grown delay; 0 means uncapped.
	MaxDelay time.Duration
}

// DefaultPolicy matches the common venue-call budget: three tries with a
// fixed one-second pause.
var DefaultPolicy = Policy{Attempts: 3, Delay: time.Second}

// Do runs fn until it succeeds, the attempt budget is exhausted, or ctx is
// cancelled. A domain.VenueError carrying a RetryAfter hint overrides the
// policy delay for that attempt. The last error is returned with the attempt
// count attached.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	delay := p.Delay
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= p.Attempts {
			return fmt.Errorf("retry: %d attempt(s) failed: %w", attempt, err)
		}

		wait := delay
		if hint := domain.RetryAfterHint(err); hint > 0 {
			wait = hint
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if p.Factor > 1 {
			delay = time.Duration(float64(delay) * p.Factor)
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}
	}
}
