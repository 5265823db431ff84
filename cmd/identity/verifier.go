package identity

import (
	"context"
	"strings"

	"warden/cmd/security/password"
)

// CredentialVerifier checks a presented secret against a principal's stored credential.
//
// Implementations must do comparable work whether or not the principal exists:
// an empty or unknown principalID returns (false, nil) after a dummy comparison.
type CredentialVerifier interface {
	Verify(ctx context.Context, principalID, secret string) (bool, error)
}

// CredentialReader is the slice of Store the verifier needs.
type CredentialReader interface {
	GetCredential(ctx context.Context, principalID string) (Credential, error)
}

// Argon2Verifier is the default CredentialVerifier, backed by Argon2id hashes.
type Argon2Verifier struct {
	cfg   password.Config
	creds CredentialReader
	dummy string
}

// NewArgon2Verifier builds a verifier and precomputes the dummy hash used for unknown principals.
func NewArgon2Verifier(cfg password.Config, creds CredentialReader) (*Argon2Verifier, error) {
	dummyCfg := cfg
	dummyCfg.Policy.EnforceStrength = false
	dummy, err := dummyCfg.Hash("warden-timing-dummy-Secret-1!")
	if err != nil {
		return nil, err
	}
	return &Argon2Verifier{cfg: cfg, creds: creds, dummy: dummy}, nil
}

// Hash produces a storable credential hash for secret, enforcing the password policy.
func (v *Argon2Verifier) Hash(secret string) (string, error) {
	return v.cfg.Hash(secret)
}

// Verify implements CredentialVerifier.
// A store failure other than not-found is returned so callers can fail closed.
func (v *Argon2Verifier) Verify(ctx context.Context, principalID, secret string) (bool, error) {
	if strings.TrimSpace(principalID) == "" {
		v.burn(secret)
		return false, nil
	}

	cred, err := v.creds.GetCredential(ctx, principalID)
	if err != nil {
		v.burn(secret)
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	ok, err := v.cfg.Verify(cred.Hash, secret)
	if err != nil {
		return false, OpError{Op: "identity.Verify", Kind: err, Msg: "stored credential unreadable"}
	}
	return ok, nil
}

func (v *Argon2Verifier) burn(secret string) {
	_, _ = v.cfg.Verify(v.dummy, secret)
}
