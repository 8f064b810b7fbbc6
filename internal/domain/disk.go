package domain

import (
	"path/filepath"
	"slices"
	"strings"
)

// Signature is what a low-level probe found on a block device.
type Signature struct {
	Type   string // filesystem type, e.g. "ext4"
	PTType string // partition table type, e.g. "gpt"
	UUID   string
	Label  string
}

// Present reports whether the device carries any signature at all.
// A partition table counts: formatting over it would destroy data too.
func (s Signature) Present() bool {
	return s.Type != "" || s.PTType != ""
}

// BlockDevice is the data volume attached by the provisioning layer.
type BlockDevice struct {
	Path       string
	MountPoint string
	Signature  Signature
}

// Formatted reports whether the device already holds a filesystem signature.
func (d BlockDevice) Formatted() bool {
	return d.Signature.Present()
}

// MountRecord is one durable entry of the host mount table.
type MountRecord struct {
	Device     string
	MountPoint string
	FSType     string
	Options    []string
	Dump       int
	Pass       int
}

// Equivalent reports whether two records describe the same mount.
// Option order and trailing slashes are ignored.
func (r MountRecord) Equivalent(o MountRecord) bool {
	if r.Device != o.Device || filepath.Clean(r.MountPoint) != filepath.Clean(o.MountPoint) ||
		r.FSType != o.FSType || r.Dump != o.Dump || r.Pass != o.Pass {
		return false
	}
	a := slices.Clone(r.Options)
	b := slices.Clone(o.Options)
	slices.Sort(a)
	slices.Sort(b)
	return strings.Join(a, ",") == strings.Join(b, ",")
}
