package out

import (
	"context"

	"github.com/bnema/hearth/internal/domain"
)

// CredentialStore persists registry credentials for later pulls.
type CredentialStore interface {
	Store(ctx context.Context, auth domain.RegistryAuth) error
	// Lookup returns the stored credentials for a registry server.
	Lookup(ctx context.Context, server string) (domain.RegistryAuth, bool, error)
}
