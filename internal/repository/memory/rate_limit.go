// Package memory provides process-local store implementations for
// single-instance deployments and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tejash-sr/agri/internal/core/port"
)

// RateLimitStore keeps sliding-window attempts in process memory,
// one timestamp slice per action:caller key.
type RateLimitStore struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
}

// NewRateLimitStore constructs an empty in-memory store.
func NewRateLimitStore() *RateLimitStore {
	return &RateLimitStore{
		attempts: make(map[string][]time.Time),
	}
}

// RecordAttempt appends an attempt timestamp for the identifier.
func (s *RateLimitStore) RecordAttempt(_ context.Context, identifier string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts[identifier] = append(s.attempts[identifier], at)
	return nil
}

// CountAttempts returns how many attempts fall inside the window ending at reference time.
func (s *RateLimitStore) CountAttempts(_ context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	if window <= 0 {
		return 0, errors.New("window must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := reference.Add(-window)
	count := 0
	for _, at := range s.attempts[identifier] {
		if at.After(cutoff) && !at.After(reference) {
			count++
		}
	}
	return count, nil
}

// TrimWindow discards attempts older than the window relative to reference time.
func (s *RateLimitStore) TrimWindow(_ context.Context, identifier string, window time.Duration, reference time.Time) error {
	if window <= 0 {
		return errors.New("window must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := reference.Add(-window)
	kept := s.attempts[identifier][:0]
	for _, at := range s.attempts[identifier] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}

	if len(kept) == 0 {
		delete(s.attempts, identifier)
		return nil
	}

	s.attempts[identifier] = kept
	return nil
}

// OldestAttempt returns the earliest attempt remaining inside the active window.
func (s *RateLimitStore) OldestAttempt(_ context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	if window <= 0 {
		return time.Time{}, false, errors.New("window must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := reference.Add(-window)
	inWindow := make([]time.Time, 0, len(s.attempts[identifier]))
	for _, at := range s.attempts[identifier] {
		if at.After(cutoff) && !at.After(reference) {
			inWindow = append(inWindow, at)
		}
	}

	if len(inWindow) == 0 {
		return time.Time{}, false, nil
	}

	sort.Slice(inWindow, func(i, j int) bool { return inWindow[i].Before(inWindow[j]) })
	return inWindow[0], true, nil
}

var _ port.RateLimitStore = (*RateLimitStore)(nil)
