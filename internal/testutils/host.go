package testutils

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/bnema/hearth/internal/adapters/out/systemd"
	"github.com/bnema/hearth/internal/domain"
)

// FakeDevices simulates attached block devices. Formatting a device gives it
// an ext4 signature.
type FakeDevices struct {
	mu         sync.Mutex
	signatures map[string]domain.Signature
	formats    map[string]int
	ProbeErr   error
}

// NewFakeDevices creates a fake with blank devices at paths.
func NewFakeDevices(paths ...string) *FakeDevices {
	d := &FakeDevices{
		signatures: make(map[string]domain.Signature),
		formats:    make(map[string]int),
	}
	for _, p := range paths {
		d.signatures[p] = domain.Signature{}
	}
	return d
}

// SetSignature pretends path already carries sig.
func (d *FakeDevices) SetSignature(path string, sig domain.Signature) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.signatures[path] = sig
}

// Formats returns how many times path was formatted.
func (d *FakeDevices) Formats(path string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.formats[path]
}

func (d *FakeDevices) Stat(_ context.Context, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.signatures[path]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrDeviceNotFound, path)
	}
	return nil
}

func (d *FakeDevices) Probe(_ context.Context, path string) (domain.Signature, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ProbeErr != nil {
		return domain.Signature{}, d.ProbeErr
	}
	sig, ok := d.signatures[path]
	if !ok {
		return domain.Signature{}, fmt.Errorf("%w: %s", domain.ErrDeviceNotFound, path)
	}
	return sig, nil
}

func (d *FakeDevices) Format(_ context.Context, path, fsType, label string, _ []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.signatures[path]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrDeviceNotFound, path)
	}
	d.signatures[path] = domain.Signature{Type: fsType, Label: label, UUID: "0000-fake"}
	d.formats[path]++
	return nil
}

// FakeRuntime simulates a container engine.
type FakeRuntime struct {
	mu             sync.Mutex
	EngineVersion  string
	networks       map[string]map[string]string
	networkCreates int
	pulls          []string
	logins         []domain.RegistryAuth
	LoginErr       error
	PullErr        map[string]error
}

// NewFakeRuntime creates an engine reporting version 27.0.0 with no networks.
func NewFakeRuntime() *FakeRuntime {
	return &FakeRuntime{
		EngineVersion: "27.0.0",
		networks:      make(map[string]map[string]string),
		PullErr:       make(map[string]error),
	}
}

func (r *FakeRuntime) Ping(context.Context) error {
	return nil
}

func (r *FakeRuntime) WaitReady(context.Context) error {
	return nil
}

func (r *FakeRuntime) Version(context.Context) (string, error) {
	return r.EngineVersion, nil
}

func (r *FakeRuntime) PullImage(ctx context.Context, image string) error {
	return r.PullImageWithAuth(ctx, image, domain.RegistryAuth{})
}

func (r *FakeRuntime) PullImageWithAuth(_ context.Context, image string, _ domain.RegistryAuth) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pulls = append(r.pulls, image)
	return r.PullErr[image]
}

func (r *FakeRuntime) RegistryLogin(_ context.Context, auth domain.RegistryAuth) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins = append(r.logins, auth)
	return "", r.LoginErr
}

func (r *FakeRuntime) CreateNetwork(_ context.Context, name string, options map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.networks[name]; ok {
		return fmt.Errorf("%w: %s", domain.ErrNetworkExists, name)
	}
	r.networks[name] = options
	r.networkCreates++
	return nil
}

func (r *FakeRuntime) NetworkExists(_ context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.networks[name]
	return ok, nil
}

// NetworkCreates returns how many networks were created.
func (r *FakeRuntime) NetworkCreates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.networkCreates
}

// Pulls returns the images pulled so far, in order.
func (r *FakeRuntime) Pulls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.pulls)
}

// Logins returns the login attempts made so far.
func (r *FakeRuntime) Logins() []domain.RegistryAuth {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.logins)
}

// FakeSupervisor registers units through real unit files and keeps the
// supervisor state in memory. Each start counts as one container recreation.
type FakeSupervisor struct {
	mu       sync.Mutex
	files    *systemd.UnitFiles
	units    map[string]domain.UnitFile
	enabled  map[string]bool
	active   map[string]bool
	starts   map[string]int
	reloads  int
	StartErr map[string]error
}

// NewFakeSupervisor creates a supervisor writing definitions through files.
func NewFakeSupervisor(files *systemd.UnitFiles) *FakeSupervisor {
	return &FakeSupervisor{
		files:    files,
		units:    make(map[string]domain.UnitFile),
		enabled:  make(map[string]bool),
		active:   make(map[string]bool),
		starts:   make(map[string]int),
		StartErr: make(map[string]error),
	}
}

func (s *FakeSupervisor) Register(_ context.Context, unit domain.UnitFile) error {
	if err := s.files.Write(unit); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[unit.Name] = unit
	return nil
}

func (s *FakeSupervisor) Reload(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloads++
	return nil
}

func (s *FakeSupervisor) Enable(_ context.Context, names ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		if _, ok := s.units[n]; !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnitNotFound, n)
		}
		s.enabled[n] = true
	}
	return nil
}

func (s *FakeSupervisor) Start(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.units[name]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnitNotFound, name)
	}
	if err := s.StartErr[name]; err != nil {
		s.active[name] = false
		return err
	}
	s.active[name] = true
	s.starts[name]++
	return nil
}

func (s *FakeSupervisor) Stop(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.units[name]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnitNotFound, name)
	}
	s.active[name] = false
	return nil
}

func (s *FakeSupervisor) Remove(_ context.Context, name string) error {
	s.mu.Lock()
	unit, ok := s.units[name]
	delete(s.units, name)
	delete(s.enabled, name)
	delete(s.active, name)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnitNotFound, name)
	}
	return s.files.Remove(unit.Name)
}

func (s *FakeSupervisor) Status(_ context.Context, names ...string) ([]domain.UnitState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	states := make([]domain.UnitState, 0, len(names))
	for _, n := range names {
		st := domain.UnitState{Name: n, LoadState: "not-found", ActiveState: "inactive", SubState: "dead"}
		if _, ok := s.units[n]; ok {
			st.LoadState = "loaded"
			if s.active[n] {
				st.ActiveState, st.SubState = "active", "running"
			}
		}
		states = append(states, st)
	}
	return states, nil
}

// Starts returns how many times name was (re)started.
func (s *FakeSupervisor) Starts(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts[name]
}

// Reloads returns how many times the supervisor was reloaded.
func (s *FakeSupervisor) Reloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloads
}

// Enabled reports whether name is enabled for boot.
func (s *FakeSupervisor) Enabled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled[name]
}

// Registered returns the names of the registered units, sorted.
func (s *FakeSupervisor) Registered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.units))
	for n := range s.units {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
