package out

import (
	"context"

	"github.com/bnema/hearth/internal/domain"
)

// Supervisor abstracts the host process supervisor (systemd).
type Supervisor interface {
	// Register writes the unit definition so the supervisor can load it.
	Register(ctx context.Context, unit domain.UnitFile) error
	// Reload makes the supervisor pick up registered definitions.
	Reload(ctx context.Context) error
	// Enable marks units to start on every boot.
	Enable(ctx context.Context, names ...string) error
	// Start (re)starts a unit, replacing a running instance.
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	// Remove disables the unit and deletes its definition.
	Remove(ctx context.Context, name string) error
	Status(ctx context.Context, names ...string) ([]domain.UnitState, error)
}
