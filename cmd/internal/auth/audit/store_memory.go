package audit

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps events in process. Intended for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append stores a copy of e.
func (s *MemoryStore) Append(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.Metadata = cloneMetadata(e.Metadata)

	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) filtered(f Filter) []Event {
	s.mu.RLock()
	out := make([]Event, 0, len(s.events))
	for _, e := range s.events {
		if e.matches(f) {
			e.Metadata = cloneMetadata(e.Metadata)
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Event) int {
		if c := b.OccurredAt.Compare(a.OccurredAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

// Query returns a newest-first slice of matches plus the total match count.
func (s *MemoryStore) Query(_ context.Context, f Filter, limit, offset int) ([]Event, int, error) {
	all := s.filtered(f)
	total := len(all)
	if offset >= total {
		return []Event{}, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

// Count returns the number of matches.
func (s *MemoryStore) Count(_ context.Context, f Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.events {
		if e.matches(f) {
			n++
		}
	}
	return n, nil
}

// Stats aggregates the whole trail.
func (s *MemoryStore) Stats(_ context.Context, since time.Time) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{ByType: make(map[EventType]int)}
	principals := make(map[string]struct{})
	origins := make(map[string]struct{})

	for _, e := range s.events {
		st.Total++
		if !e.OccurredAt.Before(since) {
			st.Last24h++
		}
		st.ByType[e.Type]++
		if e.PrincipalID != "" {
			principals[e.PrincipalID] = struct{}{}
		}
		if e.Origin != "" {
			origins[e.Origin] = struct{}{}
		}
	}
	st.UniquePrincipals = len(principals)
	st.UniqueOrigins = len(origins)
	return st, nil
}

// Top ranks keys by count, ties broken by key ascending.
func (s *MemoryStore) Top(_ context.Context, d Dimension, since time.Time, limit int) ([]Ranked, error) {
	s.mu.RLock()
	counts := make(map[string]int)
	for _, e := range s.events {
		if e.OccurredAt.Before(since) {
			continue
		}
		var key string
		switch d {
		case DimensionPrincipal:
			key = e.PrincipalID
		case DimensionEventType:
			key = string(e.Type)
		case DimensionOrigin:
			key = e.Origin
		}
		if key != "" {
			counts[key]++
		}
	}
	s.mu.RUnlock()

	out := make([]Ranked, 0, len(counts))
	for k, n := range counts {
		out = append(out, Ranked{Key: k, Count: n})
	}
	slices.SortFunc(out, func(a, b Ranked) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteBefore removes events strictly older than cutoff.
func (s *MemoryStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var removed int64
	for _, e := range s.events {
		if e.OccurredAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	clear(s.events[len(kept):])
	s.events = kept
	return removed, nil
}
