package blocklist

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

type MemoryStore struct {
	mu     sync.RWMutex
	blocks map[string]Block
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blocks: make(map[string]Block)}
}

func (s *MemoryStore) Upsert(ctx context.Context, b Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.blocks[b.Origin]; ok {
		b.CreatedAt = prev.CreatedAt
	}
	if b.ExpiresAt != nil {
		exp := *b.ExpiresAt
		b.ExpiresAt = &exp
	}
	s.blocks[b.Origin] = b
	return nil
}

func (s *MemoryStore) Active(ctx context.Context, origin string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	b, ok := s.blocks[origin]
	s.mu.RUnlock()
	return ok && b.ActiveAt(now), nil
}

func (s *MemoryStore) Delete(_ context.Context, origin string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.blocks[origin]
	delete(s.blocks, origin)
	return ok, nil
}

func (s *MemoryStore) ListActive(_ context.Context, now time.Time) ([]Block, error) {
	s.mu.RLock()
	out := make([]Block, 0, len(s.blocks))
	for _, b := range s.blocks {
		if b.ActiveAt(now) {
			out = append(out, b)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Block) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Origin, b.Origin)
	})
	return out, nil
}
