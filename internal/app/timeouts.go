package app

import (
	"context"
	"time"
)

// Timeouts bound each call to an external dependency. Zero means no bound
// beyond the caller's context.
type Timeouts struct {
	Storage   time.Duration
	Embedding time.Duration
	Index     time.Duration
	LLM       time.Duration
	Identity  time.Duration
	Database  time.Duration
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
