package blocklist

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newService(t *testing.T) (*Service, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(NewMemoryStore(), log, WithClock(c.now)), c
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "10.0.0.1", want: "10.0.0.1"},
		{in: " ::ffff:10.0.0.1 ", want: "10.0.0.1"},
		{in: "2001:DB8::1", want: "2001:db8::1"},
		{in: "fe80::1%eth0", want: "fe80::1"},
		{in: "10.0.0.1:443", want: "10.0.0.1"},
		{in: "[2001:db8::1]:8443", want: "2001:db8::1"},
		{in: "Unknown-Host", want: "unknown-host"},
		{in: "   ", wantErr: true},
	}

	for _, tt := range tests {
		got, err := Canonical(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidOrigin, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestService_TimedBlockExpires(t *testing.T) {
	s, c := newService(t)
	ctx := context.Background()

	b, err := s.Block(ctx, "10.0.0.1", time.Hour, "rate_limited")
	require.NoError(t, err)
	require.NotNil(t, b.ExpiresAt)

	blocked, err := s.IsBlocked(ctx, "::ffff:10.0.0.1")
	require.NoError(t, err)
	assert.True(t, blocked)

	c.t = c.t.Add(time.Hour)
	blocked, err = s.IsBlocked(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestService_PermanentBlockAndLastWriteWins(t *testing.T) {
	s, c := newService(t)
	ctx := context.Background()

	_, err := s.Block(ctx, "10.0.0.2", 0, "manual")
	require.NoError(t, err)

	c.t = c.t.Add(365 * 24 * time.Hour)
	blocked, err := s.IsBlocked(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, blocked)

	_, err = s.Block(ctx, "10.0.0.2", time.Minute, "downgraded")
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "downgraded", list[0].Reason)
	require.NotNil(t, list[0].ExpiresAt)

	c.t = c.t.Add(2 * time.Minute)
	list, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_UnblockIsIdempotent(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	_, err := s.Block(ctx, "10.0.0.3", 0, "manual")
	require.NoError(t, err)

	removed, err := s.Unblock(ctx, "10.0.0.3")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Unblock(ctx, "10.0.0.3")
	require.NoError(t, err)
	assert.False(t, removed)

	blocked, err := s.IsBlocked(ctx, "10.0.0.3")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestService_RejectsBadInput(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	_, err := s.Block(ctx, "", time.Hour, "x")
	assert.ErrorIs(t, err, ErrInvalidOrigin)

	_, err = s.Block(ctx, "10.0.0.1", -time.Second, "x")
	assert.Error(t, err)
}
