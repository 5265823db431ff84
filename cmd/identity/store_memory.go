package identity

import (
	"context"
	"slices"
	"sync"
	"time"

	"warden/cmd/identity/ids"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]Principal
	byHandle map[string]string
	byEmail  map[string]string
	creds    map[string]Credential
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]Principal),
		byHandle: make(map[string]string),
		byEmail:  make(map[string]string),
		creds:    make(map[string]Credential),
	}
}

// Create inserts a principal, enforcing case-insensitive handle and email uniqueness.
func (s *MemoryStore) Create(ctx context.Context, in CreateInput) (Principal, error) {
	const op = "identity.MemoryStore.Create"

	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}
	in, err := validateCreate(op, in)
	if err != nil {
		return Principal{}, err
	}

	id, err := ids.NewULID(in.Now)
	if err != nil {
		return Principal{}, err
	}

	p := Principal{
		ID:         id,
		Handle:     in.Handle,
		HandleNorm: NormalizeHandle(in.Handle),
		Email:      in.Email,
		Status:     in.Status,
		CreatedAt:  in.Now,
		UpdatedAt:  in.Now,
	}
	if in.Email != "" {
		p.EmailNorm = NormalizeEmail(in.Email)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byHandle[p.HandleNorm]; ok {
		return Principal{}, ConflictError{Op: op, Field: "handle"}
	}
	if p.EmailNorm != "" {
		if _, ok := s.byEmail[p.EmailNorm]; ok {
			return Principal{}, ConflictError{Op: op, Field: "email"}
		}
		s.byEmail[p.EmailNorm] = p.ID
	}
	s.byHandle[p.HandleNorm] = p.ID
	s.byID[p.ID] = p

	return p, nil
}

// GetByID loads a principal by ID.
func (s *MemoryStore) GetByID(_ context.Context, id string) (Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[id]
	if !ok {
		return Principal{}, NotFoundError{Op: "identity.MemoryStore.GetByID", Resource: "principal"}
	}
	return p, nil
}

// GetByIdentifier resolves a handle or an email to a principal.
func (s *MemoryStore) GetByIdentifier(_ context.Context, identifier string) (Principal, error) {
	norm := NormalizeIdentifier(identifier)

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHandle[norm]
	if !ok {
		id, ok = s.byEmail[norm]
	}
	if !ok {
		return Principal{}, NotFoundError{Op: "identity.MemoryStore.GetByIdentifier", Resource: "principal"}
	}
	return s.byID[id], nil
}

// SetStatus unconditionally sets a principal's status.
func (s *MemoryStore) SetStatus(_ context.Context, id string, to Status, now time.Time) (Principal, error) {
	const op = "identity.MemoryStore.SetStatus"
	if !to.Valid() {
		return Principal{}, invalid(op, "unknown status")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return Principal{}, NotFoundError{Op: op, Resource: "principal"}
	}
	p.Status = to
	p.UpdatedAt = now
	s.byID[id] = p
	return p, nil
}

// TransitionStatus is a compare-and-set on status under the store lock.
func (s *MemoryStore) TransitionStatus(_ context.Context, id string, to Status, from []Status, now time.Time) (bool, error) {
	const op = "identity.MemoryStore.TransitionStatus"
	if !to.Valid() {
		return false, invalid(op, "unknown status")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return false, NotFoundError{Op: op, Resource: "principal"}
	}
	if p.Status == to || !slices.Contains(from, p.Status) {
		return false, nil
	}
	p.Status = to
	p.UpdatedAt = now
	s.byID[id] = p
	return true, nil
}

// SetCredential replaces the principal's credential hash.
func (s *MemoryStore) SetCredential(_ context.Context, principalID, hash string, now time.Time) error {
	const op = "identity.MemoryStore.SetCredential"
	if trimmed(hash) == "" {
		return invalid(op, "empty credential hash")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[principalID]; !ok {
		return NotFoundError{Op: op, Resource: "principal"}
	}
	s.creds[principalID] = Credential{PrincipalID: principalID, Hash: hash, UpdatedAt: now}
	return nil
}

// GetCredential loads the principal's credential.
func (s *MemoryStore) GetCredential(_ context.Context, principalID string) (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.creds[principalID]
	if !ok {
		return Credential{}, NotFoundError{Op: "identity.MemoryStore.GetCredential", Resource: "credential"}
	}
	return c, nil
}
