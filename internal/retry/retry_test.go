package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/songsb13/arbot/internal/domain"
)

func TestDoStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 5, Delay: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoExhaustsBudget(t *testing.T) {
	sentinel := errors.New("down")
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 4, Delay: time.Millisecond}, func(context.Context) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want wrapped sentinel", err)
	}
	if calls != 4 {
		t.Fatalf("calls = %d, want 4", calls)
	}
}

func TestDoHonorsRetryAfterHint(t *testing.T) {
	hint := 30 * time.Millisecond
	start := time.Now()
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 2, Delay: time.Millisecond}, func(context.Context) error {
		calls++
		if calls == 1 {
			return &domain.VenueError{Venue: "test", Op: "balances", RetryAfter: hint, Err: errors.New("rate limited")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if elapsed := time.Since(start); elapsed < hint {
		t.Fatalf("elapsed %s, want at least the %s hint", elapsed, hint)
	}
}

func TestDoRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, Policy{Attempts: 3, Delay: time.Minute}, func(context.Context) error {
		return errors.New("always")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
