package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"warden/cmd/security/password"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPasswordConfig() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

type failingCreds struct{ err error }

func (f failingCreds) GetCredential(context.Context, string) (Credential, error) {
	return Credential{}, f.err
}

func TestArgon2Verifier(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemoryStore()
	p, err := st.Create(ctx, CreateInput{Handle: "alice", Status: StatusActive})
	require.NoError(t, err)

	v, err := NewArgon2Verifier(fastPasswordConfig(), st)
	require.NoError(t, err)

	hash, err := v.Hash("Passw0rd!")
	require.NoError(t, err)
	require.NoError(t, st.SetCredential(ctx, p.ID, hash, time.Now()))

	ok, err := v.Verify(ctx, p.ID, "Passw0rd!")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Verify(ctx, p.ID, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = v.Verify(ctx, "", "Passw0rd!")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = v.Verify(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ", "Passw0rd!")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgon2Verifier_StoreFailureSurfaces(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	v, err := NewArgon2Verifier(fastPasswordConfig(), failingCreds{err: boom})
	require.NoError(t, err)

	ok, err := v.Verify(context.Background(), "someone", "x")
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
}

func TestArgon2Verifier_CorruptHash(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemoryStore()
	p, err := st.Create(ctx, CreateInput{Handle: "corrupt"})
	require.NoError(t, err)
	require.NoError(t, st.SetCredential(ctx, p.ID, "not-a-hash", time.Now()))

	v, err := NewArgon2Verifier(fastPasswordConfig(), st)
	require.NoError(t, err)

	ok, err := v.Verify(ctx, p.ID, "anything")
	assert.False(t, ok)
	assert.ErrorIs(t, err, password.ErrInvalidHash)
}

func TestNormalizeIdentifier(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "bob", NormalizeIdentifier("  BoB "))
	assert.Equal(t, "bob@example.com", NormalizeIdentifier("Bob@Example.COM"))
	assert.False(t, IsEmailLike("@nope"))
	assert.False(t, IsEmailLike("nope@"))
}
