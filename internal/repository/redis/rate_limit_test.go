package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestRateLimitRepository_RecordAndCount(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{
		KeyPrefix: "agri:rate-limit",
		TTL:       30 * time.Minute,
	})

	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	window := 15 * time.Minute

	for i := 0; i < 5; i++ {
		if err := repo.RecordAttempt(ctx, "login:10.0.0.1", now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}

	count, err := repo.CountAttempts(ctx, "login:10.0.0.1", window, now.Add(5*time.Second))
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected 5 attempts, got %d", count)
	}
}

func TestRateLimitRepository_SameInstantAttemptsCountSeparately(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{
		KeyPrefix: "agri:rate-limit",
		TTL:       30 * time.Minute,
	})

	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := repo.RecordAttempt(ctx, "login:10.0.0.1", now); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}

	count, err := repo.CountAttempts(ctx, "login:10.0.0.1", 15*time.Minute, now)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 attempts, got %d", count)
	}

	oldest, ok, err := repo.OldestAttempt(ctx, "login:10.0.0.1", 15*time.Minute, now)
	if err != nil {
		t.Fatalf("OldestAttempt returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected an oldest attempt")
	}
	if !oldest.Equal(now) {
		t.Fatalf("expected oldest attempt at %v, got %v", now, oldest)
	}
}

func TestRateLimitRepository_RecordAppliesTTL(t *testing.T) {
	client, server := newTestRedis(t)
	ttl := 30 * time.Minute
	repo := NewRateLimitRepository(client, SlidingWindowConfig{
		KeyPrefix: "agri:rate-limit",
		TTL:       ttl,
	})

	if err := repo.RecordAttempt(context.Background(), "login:10.0.0.1", time.Now().UTC()); err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}

	remaining := server.TTL("agri:rate-limit:login:10.0.0.1")
	if remaining <= 0 || remaining > ttl {
		t.Fatalf("expected ttl within (0, %v], got %v", ttl, remaining)
	}
}

func TestRateLimitRepository_TrimWindow(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "agri:rate-limit"})

	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	window := 15 * time.Minute

	_ = repo.RecordAttempt(ctx, "login:10.0.0.1", now.Add(-20*time.Minute))
	_ = repo.RecordAttempt(ctx, "login:10.0.0.1", now.Add(-time.Minute))

	if err := repo.TrimWindow(ctx, "login:10.0.0.1", window, now); err != nil {
		t.Fatalf("TrimWindow returned error: %v", err)
	}

	count, err := repo.CountAttempts(ctx, "login:10.0.0.1", window, now)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected trimmed window to keep 1 attempt, got %d", count)
	}
}

func TestRateLimitRepository_OldestAttempt(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "agri:rate-limit"})

	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	window := 15 * time.Minute

	earliest := now.Add(-10 * time.Minute)
	_ = repo.RecordAttempt(ctx, "login:10.0.0.1", now.Add(-5*time.Minute))
	_ = repo.RecordAttempt(ctx, "login:10.0.0.1", earliest)
	_ = repo.RecordAttempt(ctx, "login:10.0.0.1", now.Add(-30*time.Minute))

	oldest, ok, err := repo.OldestAttempt(ctx, "login:10.0.0.1", window, now)
	if err != nil {
		t.Fatalf("OldestAttempt returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected an attempt inside the window")
	}
	if !oldest.Equal(earliest) {
		t.Fatalf("expected %v, got %v", earliest, oldest)
	}
}

func TestRateLimitRepository_OldestAttemptEmpty(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "agri:rate-limit"})

	_, ok, err := repo.OldestAttempt(context.Background(), "login:10.0.0.9", time.Minute, time.Now().UTC())
	if err != nil {
		t.Fatalf("OldestAttempt returned error: %v", err)
	}
	if ok {
		t.Fatal("expected no attempts for unknown identifier")
	}
}
