package session

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu     sync.Mutex
	byHash map[string]*Record
	byID   map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byHash: make(map[string]*Record),
		byID:   make(map[string]*Record),
	}
}

func copyRecord(r *Record) Record {
	out := *r
	if r.RevokedAt != nil {
		t := *r.RevokedAt
		out.RevokedAt = &t
	}
	return out
}

// closeLocked marks r inactive; first reason and time win. Caller holds mu.
func closeLocked(r *Record, reason string, now time.Time) {
	r.Active = false
	if r.RevokeReason == "" {
		r.RevokeReason = reason
	}
	if r.RevokedAt == nil {
		t := now
		r.RevokedAt = &t
	}
}

func (s *MemoryStore) Insert(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byHash[r.TokenHash]; ok {
		return ErrTokenCollision
	}
	if _, ok := s.byID[r.ID]; ok {
		return ErrTokenCollision
	}
	r.Active = true
	r.LastActivityAt = r.CreatedAt
	r.RevokeReason = ""
	r.RevokedAt = nil

	stored := &r
	s.byHash[r.TokenHash] = stored
	s.byID[r.ID] = stored
	return nil
}

func (s *MemoryStore) Touch(ctx context.Context, tokenHash string, now time.Time) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byHash[tokenHash]
	if !ok || !r.Active {
		return Record{}, errNotFound
	}
	if !r.ExpiresAt.After(now) {
		closeLocked(r, ReasonTimeout, now)
		return Record{}, errNotFound
	}
	r.LastActivityAt = now
	return copyRecord(r), nil
}

func (s *MemoryStore) revoke(r *Record, ok bool, reason string, now time.Time) (Record, bool, error) {
	if !ok {
		return Record{}, false, nil
	}
	closeLocked(r, reason, now)
	return copyRecord(r), true, nil
}

func (s *MemoryStore) RevokeByHash(_ context.Context, tokenHash, reason string, now time.Time) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byHash[tokenHash]
	return s.revoke(r, ok, reason, now)
}

func (s *MemoryStore) RevokeByID(_ context.Context, id, reason string, now time.Time) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	return s.revoke(r, ok, reason, now)
}

func (s *MemoryStore) RevokeAll(_ context.Context, principalID, reason string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, r := range s.byID {
		if r.PrincipalID == principalID && r.Active {
			closeLocked(r, reason, now)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListActive(_ context.Context, principalID string, now time.Time) ([]Record, error) {
	s.mu.Lock()
	var out []Record
	for _, r := range s.byID {
		if r.PrincipalID == principalID && r.Active && r.ExpiresAt.After(now) {
			out = append(out, copyRecord(r))
		}
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b Record) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}
