// Package disk implements the data volume provisioning use case.
package disk

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bnema/zerowrap"

	"github.com/bnema/hearth/internal/boundaries/out"
	"github.com/bnema/hearth/internal/domain"
)

// Config describes the data volume.
type Config struct {
	Device        string
	MountPoint    string
	FSType        string
	Label         string
	FormatOptions []string
	MountOptions  []string
	Mode          fs.FileMode
	OwnerUID      int // -1 leaves ownership unchanged
	OwnerGID      int
	Subdirs       []string // created relative to MountPoint
}

// Service implements the DiskProvisioner interface.
type Service struct {
	devices out.BlockDevices
	mounts  out.MountTable
	files   out.FileSystem
	config  Config
}

// NewService creates a new disk provisioning service.
func NewService(devices out.BlockDevices, mounts out.MountTable, files out.FileSystem, config Config) *Service {
	if config.FSType == "" {
		config.FSType = "ext4"
	}
	if len(config.MountOptions) == 0 {
		config.MountOptions = []string{"discard", "defaults", "nofail"}
	}
	return &Service{
		devices: devices,
		mounts:  mounts,
		files:   files,
		config:  config,
	}
}

// Ensure formats the device if and only if the probe positively found no
// signature, then makes sure it is durably mounted.
func (s *Service) Ensure(ctx context.Context) (domain.StepResult, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "EnsureDisk",
		"device":              s.config.Device,
		"mount_point":         s.config.MountPoint,
	})
	log := zerowrap.FromCtx(ctx)

	result := domain.StepResult{Step: domain.StepDisk}

	if err := s.devices.Stat(ctx, s.config.Device); err != nil {
		return result, log.WrapErr(err, "data device unavailable")
	}

	formatted, err := s.ensureFilesystem(ctx, &result)
	if err != nil {
		return result, err
	}

	if err := s.files.MkdirAll(s.config.MountPoint, 0o755); err != nil {
		return result, log.WrapErr(err, "failed to create mount point")
	}

	if err := s.ensureMountRecord(ctx, &result); err != nil {
		return result, err
	}

	if err := s.mounts.MountAll(ctx); err != nil {
		return result, log.WrapErr(err, "failed to mount data device")
	}

	if err := s.preparePermissions(); err != nil {
		return result, log.WrapErr(err, "failed to prepare mount point")
	}

	result.Finish()
	log.Info().Bool("formatted", formatted).Str("outcome", string(result.Outcome)).Msg("data volume ready")
	return result, nil
}

func (s *Service) ensureFilesystem(ctx context.Context, result *domain.StepResult) (bool, error) {
	log := zerowrap.FromCtx(ctx)

	sig, err := s.devices.Probe(ctx, s.config.Device)
	if err != nil {
		// never guess: a wrong "blank" answer destroys data
		return false, log.WrapErr(err, "refusing to continue without a conclusive probe")
	}

	if sig.Present() {
		kind := sig.Type
		if kind == "" {
			kind = sig.PTType + " partition table"
		}
		result.Add(fmt.Sprintf("existing %s signature kept", kind))
		return false, nil
	}

	if err := s.devices.Format(ctx, s.config.Device, s.config.FSType, s.config.Label, s.config.FormatOptions); err != nil {
		return false, log.WrapErr(err, "failed to format blank device")
	}
	result.MarkChanged()
	result.Add(fmt.Sprintf("formatted %s as %s", s.config.Device, s.config.FSType))
	return true, nil
}

func (s *Service) ensureMountRecord(ctx context.Context, result *domain.StepResult) error {
	log := zerowrap.FromCtx(ctx)

	want := domain.MountRecord{
		Device:     s.config.Device,
		MountPoint: s.config.MountPoint,
		FSType:     s.config.FSType,
		Options:    s.config.MountOptions,
		Dump:       0,
		Pass:       2,
	}

	existing, err := s.mounts.Lookup(ctx, s.config.MountPoint)
	if err != nil {
		return log.WrapErr(err, "failed to read mount table")
	}

	if existing != nil {
		if !existing.Equivalent(want) {
			log.Warn().
				Str("existing_device", existing.Device).
				Str("existing_fs", existing.FSType).
				Str("existing_options", strings.Join(existing.Options, ",")).
				Msg("mount point already has a different record, leaving it untouched")
			result.Add("existing mount record differs, kept")
		}
		return nil
	}

	if err := s.mounts.Add(ctx, want); err != nil {
		return log.WrapErr(err, "failed to add mount record")
	}
	result.MarkChanged()
	result.Add("mount record added")
	return nil
}

func (s *Service) preparePermissions() error {
	if s.config.Mode != 0 {
		if err := s.files.Chmod(s.config.MountPoint, s.config.Mode); err != nil {
			return err
		}
	}
	if s.config.OwnerUID >= 0 || s.config.OwnerGID >= 0 {
		if err := s.files.Chown(s.config.MountPoint, s.config.OwnerUID, s.config.OwnerGID); err != nil {
			return err
		}
	}

	for _, sub := range s.config.Subdirs {
		dir := filepath.Join(s.config.MountPoint, sub)
		if err := s.files.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		if s.config.Mode != 0 {
			if err := s.files.Chmod(dir, s.config.Mode); err != nil {
				return err
			}
		}
	}
	return nil
}
