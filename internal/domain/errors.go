package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDataNotReady means no sealed batch exists yet for a symbol. It is
	// transient and expected; callers retry after a short delay.
	ErrDataNotReady = errors.New("market data not ready")

	ErrNotFound     = errors.New("not found")
	ErrNotTradeable = errors.New("symbol not tradeable")
	ErrWSDisconnect = errors.New("websocket disconnected")
)

// VenueError wraps a failed call to an exchange. RetryAfter, when non-zero,
// is the venue's hint for how long to back off before the next attempt.
type VenueError struct {
	Venue      string
	Op         string
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *VenueError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: %s: %v (retry after %s)", e.Venue, e.Op, e.Err, e.RetryAfter)
	}
	return fmt.Sprintf("%s: %s: %v", e.Venue, e.Op, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *VenueError) Unwrap() error { return e.Err }

// RetryAfterHint extracts the backoff hint from an error chain, or 0.
func RetryAfterHint(err error) time.Duration {
	var ve *VenueError
	if errors.As(err, &ve) {
		return ve.RetryAfter
	}
	return 0
}
