package internal

import (
	"context"
	"time"
)

// DefaultTimeout bounds operations whose caller did not pick one.
const DefaultTimeout = 5 * time.Second

// WithTimeout returns a context bounded by duration, falling back to
// DefaultTimeout when duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = DefaultTimeout
	}
	return context.WithTimeout(ctx, duration)
}
