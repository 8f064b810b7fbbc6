package out

import (
	"io/fs"
)

// FileSystem is the slice of host filesystem access the use cases need.
type FileSystem interface {
	MkdirAll(path string, perm fs.FileMode) error
	// WriteFile replaces the file atomically.
	WriteFile(path string, data []byte, perm fs.FileMode) error
	ReadFile(path string) ([]byte, error)
	Chmod(path string, perm fs.FileMode) error
	Chown(path string, uid, gid int) error
	// Remove deletes a file. A missing file is not an error.
	Remove(path string) error
}
