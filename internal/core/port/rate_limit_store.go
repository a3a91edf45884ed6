package port

import (
	"context"
	"time"
)

// RateLimitStore records request attempts per identifier inside a sliding
// window. Identifiers are caller-defined keys, typically "<rule>:<client-ip>".
type RateLimitStore interface {
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error)
}
