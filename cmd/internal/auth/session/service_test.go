package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"warden/cmd/identity"
	"warden/cmd/security/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc        *Service
	store      *MemoryStore
	principals *identity.MemoryStore
	clock      *clock
	alice      identity.Principal
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()

	c := &clock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	principals := identity.NewMemoryStore()
	alice, err := principals.Create(ctx, identity.CreateInput{
		Handle: "alice",
		Email:  "alice@example.com",
		Status: identity.StatusActive,
		Now:    c.t,
	})
	require.NoError(t, err)

	store := NewMemoryStore()
	svc, err := NewService(DefaultConfig(), store, principals,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithClock(c.now),
		WithHasher(token.NewHasher([]byte("0123456789abcdef0123456789abcdef"))),
	)
	require.NoError(t, err)

	return fixture{svc: svc, store: store, principals: principals, clock: c, alice: alice}
}

func TestService_CreateAndValidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	issued, err := f.svc.Create(ctx, f.alice.ID, false, Fingerprint{Origin: "10.0.0.1", ClientAgent: "curl/8"})
	require.NoError(t, err)
	assert.Len(t, issued.Token, 43)
	assert.Equal(t, f.clock.t.Add(24*time.Hour), issued.ExpiresAt)

	f.clock.advance(time.Minute)
	view, err := f.svc.Validate(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, issued.SessionID, view.SessionID)
	assert.Equal(t, "alice", view.Principal.Handle)
	assert.Equal(t, identity.StatusActive, view.Principal.Status)
	assert.Equal(t, "10.0.0.1", view.Fingerprint.Origin)
	assert.Equal(t, f.clock.t, view.LastActivityAt)
}

func TestService_TokenIsStoredHashed(t *testing.T) {
	f := newFixture(t)

	issued, err := f.svc.Create(context.Background(), f.alice.ID, false, Fingerprint{})
	require.NoError(t, err)

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	_, plain := f.store.byHash[issued.Token]
	assert.False(t, plain)
	assert.Len(t, f.store.byHash, 1)
	for hash := range f.store.byHash {
		assert.Len(t, hash, 64)
	}
}

func TestService_RememberMeTTL(t *testing.T) {
	f := newFixture(t)

	issued, err := f.svc.Create(context.Background(), f.alice.ID, true, Fingerprint{})
	require.NoError(t, err)
	assert.Equal(t, f.clock.t.Add(30*24*time.Hour), issued.ExpiresAt)
}

func TestService_ExpiredSessionIsClosedAsTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	issued, err := f.svc.Create(ctx, f.alice.ID, false, Fingerprint{})
	require.NoError(t, err)

	f.clock.advance(24 * time.Hour)
	_, err = f.svc.Validate(ctx, issued.Token)
	assert.ErrorIs(t, err, ErrInvalid)

	rec := f.store.byID[issued.SessionID]
	assert.False(t, rec.Active)
	assert.Equal(t, ReasonTimeout, rec.RevokeReason)
}

func TestService_ValidateRejectsGarbage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, tok := range []string{"", "   ", "not-a-token", string(make([]byte, token.MaxEncodedLen+1))} {
		_, err := f.svc.Validate(ctx, tok)
		assert.ErrorIs(t, err, ErrInvalid)
	}
}

func TestService_RevokeIsIdempotentAndFirstReasonWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	issued, err := f.svc.Create(ctx, f.alice.ID, false, Fingerprint{})
	require.NoError(t, err)

	r, err := f.svc.Revoke(ctx, issued.Token, ReasonUser)
	require.NoError(t, err)
	assert.True(t, r.Found)
	assert.Equal(t, issued.SessionID, r.SessionID)
	assert.Equal(t, f.alice.ID, r.PrincipalID)

	f.clock.advance(time.Minute)
	_, err = f.svc.RevokeByID(ctx, issued.SessionID, ReasonAdmin)
	require.NoError(t, err)

	rec := f.store.byID[issued.SessionID]
	assert.Equal(t, ReasonUser, rec.RevokeReason)
	require.NotNil(t, rec.RevokedAt)
	assert.Equal(t, f.clock.t.Add(-time.Minute), *rec.RevokedAt)

	_, err = f.svc.Validate(ctx, issued.Token)
	assert.ErrorIs(t, err, ErrInvalid)

	r, err = f.svc.Revoke(ctx, "unknown-token", ReasonUser)
	require.NoError(t, err)
	assert.False(t, r.Found)
}

func TestService_RevokeAllAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var tokens []string
	for i := 0; i < 3; i++ {
		issued, err := f.svc.Create(ctx, f.alice.ID, false, Fingerprint{Origin: "10.0.0.1"})
		require.NoError(t, err)
		tokens = append(tokens, issued.Token)
		f.clock.advance(time.Second)
	}

	list, err := f.svc.ListActive(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Len(t, list, 3)
	assert.True(t, list[0].CreatedAt.After(list[2].CreatedAt))

	n, err := f.svc.RevokeAll(ctx, f.alice.ID, ReasonAccountSuspended)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for _, tok := range tokens {
		_, err := f.svc.Validate(ctx, tok)
		assert.ErrorIs(t, err, ErrInvalid)
	}

	list, err = f.svc.ListActive(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_ValidateUnknownPrincipal(t *testing.T) {
	f := newFixture(t)

	issued, err := f.svc.Create(context.Background(), "01J0000000000000000000GONE", false, Fingerprint{})
	require.NoError(t, err)

	_, err = f.svc.Validate(context.Background(), issued.Token)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestMemoryStore_InsertCollision(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, st.Insert(ctx, Record{ID: "a", TokenHash: "h", PrincipalID: "p", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))
	err := st.Insert(ctx, Record{ID: "b", TokenHash: "h", PrincipalID: "q", CreatedAt: now, ExpiresAt: now.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrTokenCollision)

	got, err := st.Touch(ctx, "h", now)
	require.NoError(t, err)
	assert.Equal(t, "p", got.PrincipalID)
}

func TestNewService_RequireHMAC(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireHMAC = true
	_, err := NewService(cfg, NewMemoryStore(), identity.NewMemoryStore(), nil)
	assert.ErrorIs(t, err, ErrConfig)
}
