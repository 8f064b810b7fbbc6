// Package blockdev probes and formats block devices with the util-linux and
// e2fsprogs tools.
package blockdev

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"

	"github.com/bnema/zerowrap"
	"golang.org/x/sys/unix"

	"github.com/bnema/hearth/internal/domain"
	"github.com/bnema/hearth/pkg/shell"
)

// blkid exits 2 when it positively found nothing on the device.
const blkidNothingFound = 2

var fsTypePattern = regexp.MustCompile(`^[a-z0-9]+$`)

// Devices implements the BlockDevices interface.
type Devices struct {
	runner        shell.Runner
	allowNonBlock bool
}

// NewDevices creates a block device adapter. allowNonBlock accepts regular
// files as devices, which is only useful for loopback images and tests.
func NewDevices(runner shell.Runner, allowNonBlock bool) *Devices {
	return &Devices{runner: runner, allowNonBlock: allowNonBlock}
}

// Stat checks that path exists and is a block device.
func (d *Devices) Stat(ctx context.Context, path string) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "blockdev",
		zerowrap.FieldAction:  "Stat",
		"device":              path,
	})
	log := zerowrap.FromCtx(ctx)

	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		if errors.Is(err, unix.ENOENT) || errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrDeviceNotFound, path)
		}
		return log.WrapErr(err, "failed to stat device")
	}

	if st.Mode&unix.S_IFMT != unix.S_IFBLK {
		if d.allowNonBlock && st.Mode&unix.S_IFMT == unix.S_IFREG {
			log.Warn().Msg("device is a regular file, accepted by configuration")
			return nil
		}
		return fmt.Errorf("%w: %s", domain.ErrNotBlockDevice, path)
	}
	return nil
}

// Probe runs a low-level blkid probe. Exit 0 means a signature was found,
// exit 2 means the device is blank, anything else is a failed probe.
func (d *Devices) Probe(ctx context.Context, path string) (domain.Signature, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "blockdev",
		zerowrap.FieldAction:  "Probe",
		"device":              path,
	})
	log := zerowrap.FromCtx(ctx)

	res, err := d.runner.Run(ctx, "blkid", "-p", "-o", "export", path)
	if err != nil {
		if shell.ExitCode(err) == blkidNothingFound {
			log.Debug().Msg("no signature found")
			return domain.Signature{}, nil
		}
		return domain.Signature{}, log.WrapErr(fmt.Errorf("%w: %w", domain.ErrProbeFailed, err), "blkid probe failed")
	}

	sig := parseExport(res.Stdout)
	if !sig.Present() {
		// blkid reported success without a type we understand; treat the
		// device as occupied so it is never formatted.
		sig.Type = "unknown"
	}
	log.Debug().Str("type", sig.Type).Str("pttype", sig.PTType).Msg("signature found")
	return sig, nil
}

// Format creates a filesystem with mkfs.<fsType>. No force flag is passed so
// mkfs itself refuses devices that carry a signature.
func (d *Devices) Format(ctx context.Context, path, fsType, label string, options []string) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "blockdev",
		zerowrap.FieldAction:  "Format",
		"device":              path,
		"fs_type":             fsType,
	})
	log := zerowrap.FromCtx(ctx)

	if !fsTypePattern.MatchString(fsType) {
		return fmt.Errorf("%w: filesystem type %q", domain.ErrInvalidConfig, fsType)
	}

	args := append([]string(nil), options...)
	if label != "" {
		args = append(args, "-L", label)
	}
	args = append(args, path)

	log.Info().Str("args", strings.Join(args, " ")).Msg("formatting device")
	if _, err := d.runner.Run(ctx, "mkfs."+fsType, args...); err != nil {
		return log.WrapErr(fmt.Errorf("%w: %w", domain.ErrFormatFailed, err), "mkfs failed")
	}

	log.Info().Msg("device formatted")
	return nil
}

func parseExport(out []byte) domain.Signature {
	var sig domain.Signature
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "TYPE":
			sig.Type = value
		case "PTTYPE":
			sig.PTType = value
		case "UUID":
			sig.UUID = value
		case "LABEL":
			sig.Label = value
		}
	}
	return sig
}
