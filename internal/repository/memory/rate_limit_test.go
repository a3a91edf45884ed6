package memory

import (
	"context"
	"testing"
	"time"
)

func TestRateLimitStoreCountsWithinWindow(t *testing.T) {
	store := NewRateLimitStore()
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	window := 15 * time.Minute

	for i := 0; i < 5; i++ {
		if err := store.RecordAttempt(ctx, "login:10.0.0.1", now.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}

	count, err := store.CountAttempts(ctx, "login:10.0.0.1", window, now.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected 5 attempts, got %d", count)
	}
}

func TestRateLimitStoreAgesOutOldAttempts(t *testing.T) {
	store := NewRateLimitStore()
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	window := 15 * time.Minute

	_ = store.RecordAttempt(ctx, "login:10.0.0.1", now.Add(-20*time.Minute))
	_ = store.RecordAttempt(ctx, "login:10.0.0.1", now.Add(-time.Minute))

	count, err := store.CountAttempts(ctx, "login:10.0.0.1", window, now)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected only in-window attempt, got %d", count)
	}
}

func TestRateLimitStoreIsolatesIdentifiers(t *testing.T) {
	store := NewRateLimitStore()
	ctx := context.Background()
	now := time.Now().UTC()

	_ = store.RecordAttempt(ctx, "login:10.0.0.1", now)
	_ = store.RecordAttempt(ctx, "login:10.0.0.2", now)

	count, err := store.CountAttempts(ctx, "login:10.0.0.1", time.Minute, now)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("identifier isolation broken: got %d", count)
	}
}

func TestTrimWindowDeletesEmptyKeys(t *testing.T) {
	store := NewRateLimitStore()
	ctx := context.Background()
	now := time.Now().UTC()

	_ = store.RecordAttempt(ctx, "login:10.0.0.1", now.Add(-time.Hour))

	if err := store.TrimWindow(ctx, "login:10.0.0.1", 15*time.Minute, now); err != nil {
		t.Fatalf("TrimWindow returned error: %v", err)
	}

	store.mu.Lock()
	_, exists := store.attempts["login:10.0.0.1"]
	store.mu.Unlock()
	if exists {
		t.Fatal("expected fully trimmed key to be removed")
	}
}

func TestOldestAttemptReturnsEarliestInWindow(t *testing.T) {
	store := NewRateLimitStore()
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	window := 15 * time.Minute

	earliest := now.Add(-10 * time.Minute)
	_ = store.RecordAttempt(ctx, "login:10.0.0.1", now.Add(-5*time.Minute))
	_ = store.RecordAttempt(ctx, "login:10.0.0.1", earliest)
	_ = store.RecordAttempt(ctx, "login:10.0.0.1", now.Add(-30*time.Minute))

	oldest, ok, err := store.OldestAttempt(ctx, "login:10.0.0.1", window, now)
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

func TestOldestAttemptEmptyWindow(t *testing.T) {
	store := NewRateLimitStore()

	_, ok, err := store.OldestAttempt(context.Background(), "login:10.0.0.1", time.Minute, time.Now().UTC())
	if err != nil {
		t.Fatalf("OldestAttempt returned error: %v", err)
	}
	if ok {
		t.Fatal("expected no attempts for unknown identifier")
	}
}

func TestRejectsNonPositiveWindow(t *testing.T) {
	store := NewRateLimitStore()
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := store.CountAttempts(ctx, "k", 0, now); err == nil {
		t.Fatal("CountAttempts accepted zero window")
	}
	if err := store.TrimWindow(ctx, "k", -time.Minute, now); err == nil {
		t.Fatal("TrimWindow accepted negative window")
	}
	if _, _, err := store.OldestAttempt(ctx, "k", 0, now); err == nil {
		t.Fatal("OldestAttempt accepted zero window")
	}
}
