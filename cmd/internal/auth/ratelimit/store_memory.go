package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// MemoryStore keeps timestamps per key in process.
type MemoryStore struct {
	mu     sync.Mutex
	events map[string][]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]time.Time)}
}

// trim drops entries outside (at-window, at]. Caller holds mu.
func (s *MemoryStore) trim(key string, at time.Time, window time.Duration) []time.Time {
	cut := at.Add(-window)
	src := s.events[key]
	dst := src[:0]
	for _, t := range src {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}
	if len(dst) == 0 {
		delete(s.events, key)
		return nil
	}
	s.events[key] = dst
	return dst
}

func (s *MemoryStore) Add(ctx context.Context, key string, at time.Time, window time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := append(s.trim(key, at, window), at)
	s.events[key] = kept
	return len(kept), nil
}

func (s *MemoryStore) Reserve(ctx context.Context, key string, at time.Time, window time.Duration, limit int) (Reservation, error) {
	if err := ctx.Err(); err != nil {
		return Reservation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.trim(key, at, window)
	if len(kept) >= limit {
		return Reservation{Count: len(kept), Oldest: oldestOf(kept)}, nil
	}
	kept = append(kept, at)
	s.events[key] = kept
	return Reservation{
		Admitted: true,
		Count:    len(kept),
		Oldest:   oldestOf(kept),
		Member:   strconv.FormatInt(at.UnixNano(), 10),
	}, nil
}

// Release drops one attempt recorded at the instant encoded in member.
func (s *MemoryStore) Release(_ context.Context, key, member string) error {
	ns, err := strconv.ParseInt(member, 10, 64)
	if err != nil {
		return fmt.Errorf("ratelimit: bad reservation member %q", member)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.events[key]
	for i, t := range src {
		if t.UnixNano() == ns {
			src = append(src[:i], src[i+1:]...)
			break
		}
	}
	if len(src) == 0 {
		delete(s.events, key)
		return nil
	}
	s.events[key] = src
	return nil
}

func oldestOf(ts []time.Time) time.Time {
	if len(ts) == 0 {
		return time.Time{}
	}
	oldest := ts[0]
	for _, t := range ts[1:] {
		if t.Before(oldest) {
			oldest = t
		}
	}
	return oldest
}

func (s *MemoryStore) Count(ctx context.Context, key string, at time.Time, window time.Duration) (int, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return 0, time.Time{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.trim(key, at, window)
	return len(kept), oldestOf(kept), nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.events, key)
	s.mu.Unlock()
	return nil
}
