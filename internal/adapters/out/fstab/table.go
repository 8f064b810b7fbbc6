// Package fstab manages durable mount records in /etc/fstab.
package fstab

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bnema/zerowrap"
	gofstab "github.com/deniswernert/go-fstab"
	"github.com/spf13/afero"

	"github.com/bnema/hearth/internal/adapters/out/filesystem"
	"github.com/bnema/hearth/internal/domain"
	"github.com/bnema/hearth/pkg/shell"
)

// DefaultPath is the system mount table.
const DefaultPath = "/etc/fstab"

// Table implements the MountTable interface on an fstab file.
type Table struct {
	path   string
	fs     afero.Fs
	runner shell.Runner
}

// NewTable creates a mount table adapter for the fstab file at path.
func NewTable(path string, fsys afero.Fs, runner shell.Runner) *Table {
	if path == "" {
		path = DefaultPath
	}
	return &Table{path: path, fs: fsys, runner: runner}
}

// Lookup returns the record whose mount point matches, or nil.
func (t *Table) Lookup(ctx context.Context, mountPoint string) (*domain.MountRecord, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "fstab",
		zerowrap.FieldAction:  "Lookup",
		"mount_point":         mountPoint,
	})
	log := zerowrap.FromCtx(ctx)

	data, err := afero.ReadFile(t.fs, t.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, log.WrapErr(err, "failed to read mount table")
	}

	mounts, err := gofstab.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, log.WrapErr(err, "failed to parse mount table")
	}

	want := filepath.Clean(mountPoint)
	for _, m := range mounts {
		if m == nil || filepath.Clean(m.File) != want {
			continue
		}
		rec := toRecord(m)
		return &rec, nil
	}
	return nil, nil
}

// Add appends one record. The file is rewritten atomically with its previous
// content preserved byte for byte.
func (t *Table) Add(ctx context.Context, record domain.MountRecord) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "fstab",
		zerowrap.FieldAction:  "Add",
		"device":              record.Device,
		"mount_point":         record.MountPoint,
	})
	log := zerowrap.FromCtx(ctx)

	line := FormatRecord(record)
	if _, err := gofstab.ParseLine(line); err != nil {
		return log.WrapErr(err, "generated mount record does not parse")
	}

	perm := fs.FileMode(0o644)
	data, err := afero.ReadFile(t.fs, t.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		data = nil
	case err != nil:
		return log.WrapErr(err, "failed to read mount table")
	default:
		if info, statErr := t.fs.Stat(t.path); statErr == nil {
			perm = info.Mode().Perm()
		}
	}

	var buf bytes.Buffer
	buf.Write(data)
	if len(data) > 0 && !bytes.HasSuffix(data, []byte("\n")) {
		buf.WriteByte('\n')
	}
	buf.WriteString(line)
	buf.WriteByte('\n')

	if err := filesystem.WriteFileAtomic(t.fs, t.path, buf.Bytes(), perm); err != nil {
		return log.WrapErr(err, "failed to write mount table")
	}

	log.Info().Str("record", line).Msg("mount record added")
	return nil
}

// MountAll asks the kernel to mount every record not mounted yet.
func (t *Table) MountAll(ctx context.Context) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "fstab",
		zerowrap.FieldAction:  "MountAll",
	})
	log := zerowrap.FromCtx(ctx)

	args := []string{"-a"}
	if t.path != DefaultPath {
		args = append(args, "--fstab", t.path)
	}
	if _, err := t.runner.Run(ctx, "mount", args...); err != nil {
		return log.WrapErr(fmt.Errorf("%w: %w", domain.ErrMountFailed, err), "mount -a failed")
	}
	return nil
}

// FormatRecord renders a record as a single fstab line.
func FormatRecord(r domain.MountRecord) string {
	opts := "defaults"
	if len(r.Options) > 0 {
		opts = strings.Join(r.Options, ",")
	}
	return fmt.Sprintf("%s %s %s %s %d %d", r.Device, r.MountPoint, r.FSType, opts, r.Dump, r.Pass)
}

func toRecord(m *gofstab.Mount) domain.MountRecord {
	opts := make([]string, 0, len(m.MntOps))
	for k, v := range m.MntOps {
		if v == "" {
			opts = append(opts, k)
			continue
		}
		opts = append(opts, k+"="+v)
	}
	sort.Strings(opts)

	return domain.MountRecord{
		Device:     m.Spec,
		MountPoint: m.File,
		FSType:     m.VfsType,
		Options:    opts,
		Dump:       m.Freq,
		Pass:       m.PassNo,
	}
}
