package out

import (
	"context"

	"github.com/bnema/hearth/internal/domain"
)

// BlockDevices probes and formats block devices.
type BlockDevices interface {
	// Stat fails with domain.ErrDeviceNotFound when the path does not exist and
	// domain.ErrNotBlockDevice when it is not a block device.
	Stat(ctx context.Context, path string) error
	// Probe returns the signature found on the device. An empty signature means
	// the probe positively found nothing; any doubt is an error.
	Probe(ctx context.Context, path string) (domain.Signature, error)
	Format(ctx context.Context, path, fsType, label string, options []string) error
}

// MountTable manages durable mount records and applies them.
type MountTable interface {
	// Lookup returns the record for a mount point, if any.
	Lookup(ctx context.Context, mountPoint string) (*domain.MountRecord, error)
	// Add appends a record. Callers check Lookup first.
	Add(ctx context.Context, record domain.MountRecord) error
	// MountAll mounts every record that is not mounted yet.
	MountAll(ctx context.Context) error
}
