package app

import (
	"context"
	"fmt"
	"time"

	"warden/cmd/identity"
)

// BootstrapConfig seeds one active principal at startup, for first-run and dev setups.
type BootstrapConfig struct {
	Handle string
	Email  string
	Secret string
}

func loadBootstrapConfig() BootstrapConfig {
	return BootstrapConfig{
		Handle: EnvString("WARDEN_BOOTSTRAP_HANDLE", ""),
		Email:  EnvString("WARDEN_BOOTSTRAP_EMAIL", ""),
		Secret: EnvString("WARDEN_BOOTSTRAP_SECRET", ""),
	}
}

type credentialHasher interface {
	Hash(secret string) (string, error)
}

// bootstrapPrincipal creates the configured principal unless it already exists.
// An existing principal is left untouched, secret included.
func bootstrapPrincipal(ctx context.Context, bc BootstrapConfig, principals identity.Store, hasher credentialHasher, log Logger) error {
	if bc.Handle == "" {
		return nil
	}
	if bc.Secret == "" {
		return fmt.Errorf("%w: WARDEN_BOOTSTRAP_SECRET is required with WARDEN_BOOTSTRAP_HANDLE", ErrConfig)
	}

	_, err := principals.GetByIdentifier(ctx, bc.Handle)
	switch {
	case err == nil:
		log.Info("bootstrap.principal.exists", "handle", bc.Handle)
		return nil
	case !identity.IsNotFound(err):
		return fmt.Errorf("bootstrap lookup: %w", err)
	}

	hash, err := hasher.Hash(bc.Secret)
	if err != nil {
		return fmt.Errorf("bootstrap secret: %w", err)
	}

	now := time.Now().UTC()
	p, err := principals.Create(ctx, identity.CreateInput{
		Handle: bc.Handle,
		Email:  bc.Email,
		Status: identity.StatusActive,
		Now:    now,
	})
	if err != nil {
		return fmt.Errorf("bootstrap create: %w", err)
	}
	if err := principals.SetCredential(ctx, p.ID, hash, now); err != nil {
		return fmt.Errorf("bootstrap credential: %w", err)
	}

	log.Info("bootstrap.principal.created", "principal_id", p.ID, "handle", p.Handle)
	return nil
}
