// Package out defines output ports (interfaces) for infrastructure.
// These interfaces define the contract between use cases and driven adapters
// (Docker, systemd, the host filesystem, etc.).
package out

import (
	"context"

	"github.com/bnema/hearth/internal/domain"
)

// ContainerRuntime defines the contract for container engine operations.
// This interface abstracts the underlying engine (Docker, Podman, etc.).
type ContainerRuntime interface {
	// Runtime information
	Ping(ctx context.Context) error
	Version(ctx context.Context) (string, error)
	WaitReady(ctx context.Context) error

	// Image operations
	PullImage(ctx context.Context, image string) error
	PullImageWithAuth(ctx context.Context, image string, auth domain.RegistryAuth) error

	// Registry authentication. Returns an identity token when the registry issues one.
	RegistryLogin(ctx context.Context, auth domain.RegistryAuth) (string, error)

	// Network management
	CreateNetwork(ctx context.Context, name string, options map[string]string) error
	NetworkExists(ctx context.Context, name string) (bool, error)
}
