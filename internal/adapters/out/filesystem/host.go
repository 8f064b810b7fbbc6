// Package filesystem implements host file access.
package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

// Host implements the FileSystem interface on an afero filesystem, the OS
// filesystem in production.
type Host struct {
	fs afero.Fs
}

// NewHost creates a host filesystem adapter on the root filesystem.
func NewHost() *Host {
	return &Host{fs: afero.NewOsFs()}
}

// NewHostWithFs creates a host adapter backed by fsys.
func NewHostWithFs(fsys afero.Fs) *Host {
	return &Host{fs: fsys}
}

// Fs exposes the backing filesystem to adapters that share it.
func (h *Host) Fs() afero.Fs {
	return h.fs
}

// MkdirAll creates path and any missing parents.
func (h *Host) MkdirAll(path string, perm fs.FileMode) error {
	if err := h.fs.MkdirAll(path, perm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// WriteFile replaces path atomically, creating the parent directory if needed.
func (h *Host) WriteFile(path string, data []byte, perm fs.FileMode) error {
	if err := h.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := WriteFileAtomic(h.fs, path, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadFile returns the content of path. A missing file yields fs.ErrNotExist.
func (h *Host) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(h.fs, path)
}

// Chmod sets the permission bits of path.
func (h *Host) Chmod(path string, perm fs.FileMode) error {
	if err := h.fs.Chmod(path, perm); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	return nil
}

// Chown changes ownership of path. A negative id leaves that id unchanged.
func (h *Host) Chown(path string, uid, gid int) error {
	if err := h.fs.Chown(path, uid, gid); err != nil {
		return fmt.Errorf("failed to chown %s: %w", path, err)
	}
	return nil
}

// Remove deletes path. A missing file is not an error.
func (h *Host) Remove(path string) error {
	if err := h.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path. Atomicity holds only within one filesystem.
func WriteFileAtomic(fsys afero.Fs, path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := afero.TempFile(fsys, dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = fsys.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := fsys.Chmod(tmpName, perm); err != nil {
		return err
	}
	if err := fsys.Rename(tmpName, path); err != nil {
		return err
	}

	// fsync the directory so the rename survives power loss
	d, err := fsys.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
