// Package in defines input ports (interfaces) for use cases.
// These interfaces define the contract between driving adapters (the CLI)
// and the bootstrap use cases.
package in

import (
	"context"

	"github.com/bnema/hearth/internal/domain"
)

// DiskProvisioner ensures the data device is formatted once and durably mounted.
type DiskProvisioner interface {
	Ensure(ctx context.Context) (domain.StepResult, error)
}

// ConfigMaterializer renders the reverse-proxy configuration.
type ConfigMaterializer interface {
	// Render returns the configuration without writing it.
	Render(ctx context.Context) ([]byte, error)
	// Materialize renders and fully replaces the configuration file.
	Materialize(ctx context.Context) (domain.StepResult, error)
}

// NetworkFabric ensures the managed container network exists.
type NetworkFabric interface {
	Ensure(ctx context.Context) (domain.StepResult, error)
}

// RegistryAuthenticator logs in to the image registry when credentials are set.
// It never fails the run.
type RegistryAuthenticator interface {
	Authenticate(ctx context.Context) domain.StepResult
}

// ImagePrefetcher warms the local image cache. It never fails the run.
type ImagePrefetcher interface {
	Prefetch(ctx context.Context) domain.StepResult
}

// UnitSynthesizer turns the desired services into supervisor units.
type UnitSynthesizer interface {
	Definitions(ctx context.Context) ([]domain.ServiceDefinition, error)
	Synthesize(ctx context.Context) ([]domain.UnitFile, domain.StepResult, error)
}

// ServiceActivator hands units to the supervisor and drives their lifecycle.
type ServiceActivator interface {
	Activate(ctx context.Context, units []domain.UnitFile) (domain.StepResult, error)
	Deactivate(ctx context.Context, units []domain.UnitFile) (domain.StepResult, error)
	Status(ctx context.Context, units []domain.UnitFile) ([]domain.UnitState, error)
}

// Bootstrapper runs every step in order and reports what happened.
type Bootstrapper interface {
	Run(ctx context.Context) (domain.Report, error)
	// Down stops and removes the managed units. Host storage is left alone.
	Down(ctx context.Context) (domain.StepResult, error)
	Status(ctx context.Context) ([]domain.UnitState, error)
}
