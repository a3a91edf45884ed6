package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tejash-sr/agri/internal/core/port"
)

var errNonPositiveWindow = errors.New("window must be positive")

// SlidingWindowConfig tunes key naming and retention for the limiter.
type SlidingWindowConfig struct {
	KeyPrefix string
	TTL       time.Duration
}

// RateLimitRepository keeps one sorted set per identifier, members scored by
// attempt time in nanoseconds. Trimming and counting both operate on score
// ranges, so the window slides without any bucketing error.
type RateLimitRepository struct {
	client *redis.Client
	cfg    SlidingWindowConfig
}

// NewRateLimitRepository constructs the Redis-backed sliding window store.
func NewRateLimitRepository(client *redis.Client, cfg SlidingWindowConfig) *RateLimitRepository {
	return &RateLimitRepository{client: client, cfg: cfg}
}

// RecordAttempt adds one attempt at the given instant. The key TTL keeps
// abandoned identifiers from accumulating forever.
func (r *RateLimitRepository) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	key := r.key(identifier)
	nanos := at.UnixNano()

	// The member carries a uuid suffix so attempts landing on the same
	// nanosecond stay distinct set members and still count separately.
	member := strconv.FormatInt(nanos, 10) + ":" + uuid.NewString()
	if err := r.client.ZAdd(ctx, key, redis.Z{Score: float64(nanos), Member: member}).Err(); err != nil {
		return fmt.Errorf("redis zadd: %w", err)
	}

	if r.cfg.TTL > 0 {
		if err := r.client.Expire(ctx, key, r.cfg.TTL).Err(); err != nil {
			return fmt.Errorf("redis expire: %w", err)
		}
	}

	return nil
}

// CountAttempts reports how many attempts fall inside the window ending at reference.
func (r *RateLimitRepository) CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	if window <= 0 {
		return 0, errNonPositiveWindow
	}

	min, max := windowBounds(window, reference)
	count, err := r.client.ZCount(ctx, r.key(identifier), min, max).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcount: %w", err)
	}

	return int(count), nil
}

// TrimWindow drops every attempt older than the window.
func (r *RateLimitRepository) TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error {
	if window <= 0 {
		return errNonPositiveWindow
	}

	threshold, _ := windowBounds(window, reference)
	if err := r.client.ZRemRangeByScore(ctx, r.key(identifier), "-inf", threshold).Err(); err != nil {
		return fmt.Errorf("redis zremrangebyscore: %w", err)
	}

	return nil
}

// OldestAttempt returns the earliest attempt still inside the window, used to
// compute when the limit resets for the caller.
func (r *RateLimitRepository) OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	if window <= 0 {
		return time.Time{}, false, errNonPositiveWindow
	}

	min, max := windowBounds(window, reference)
	values, err := r.client.ZRangeByScore(ctx, r.key(identifier), &redis.ZRangeBy{
		Min:   min,
		Max:   max,
		Count: 1,
	}).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis zrangebyscore: %w", err)
	}
	if len(values) == 0 {
		return time.Time{}, false, nil
	}

	stamp, _, _ := strings.Cut(values[0], ":")
	nanos, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse attempt timestamp: %w", err)
	}

	return time.Unix(0, nanos), true, nil
}

func windowBounds(window time.Duration, reference time.Time) (min, max string) {
	min = strconv.FormatFloat(float64(reference.Add(-window).UnixNano()), 'f', -1, 64)
	max = strconv.FormatFloat(float64(reference.UnixNano()), 'f', -1, 64)
	return min, max
}

func (r *RateLimitRepository) key(identifier string) string {
	if r.cfg.KeyPrefix == "" {
		return identifier
	}
	return r.cfg.KeyPrefix + ":" + identifier
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
