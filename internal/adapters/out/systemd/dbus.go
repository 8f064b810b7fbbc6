package systemd

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/zerowrap"
	"github.com/coreos/go-systemd/v22/dbus"
	godbus "github.com/godbus/dbus/v5"

	"github.com/bnema/hearth/internal/domain"
)

const (
	jobDone    = "done"
	noSuchUnit = "org.freedesktop.systemd1.NoSuchUnit"
)

// dbusConn is the slice of *dbus.Conn the supervisor uses.
type dbusConn interface {
	ReloadContext(ctx context.Context) error
	EnableUnitFilesContext(ctx context.Context, files []string, runtime bool, force bool) (bool, []dbus.EnableUnitFileChange, error)
	DisableUnitFilesContext(ctx context.Context, files []string, runtime bool) ([]dbus.DisableUnitFileChange, error)
	RestartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	StopUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	ListUnitsByNamesContext(ctx context.Context, units []string) ([]dbus.UnitStatus, error)
	Close()
}

// DBus implements the Supervisor interface over the systemd D-Bus API.
type DBus struct {
	conn  dbusConn
	units *UnitFiles
}

// NewDBus connects to the system bus.
func NewDBus(ctx context.Context, units *UnitFiles) (*DBus, error) {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to systemd: %w", err)
	}
	return newDBusWithConn(conn, units), nil
}

func newDBusWithConn(conn dbusConn, units *UnitFiles) *DBus {
	return &DBus{conn: conn, units: units}
}

// Close releases the bus connection.
func (s *DBus) Close() error {
	s.conn.Close()
	return nil
}

// Register writes the unit and environment files.
func (s *DBus) Register(ctx context.Context, uf domain.UnitFile) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "systemd-dbus",
		zerowrap.FieldAction:  "Register",
		"unit":                uf.Name,
	})
	log := zerowrap.FromCtx(ctx)

	if err := s.units.Write(uf); err != nil {
		return log.WrapErr(err, "failed to write unit")
	}
	log.Debug().Msg("unit written")
	return nil
}

// Reload asks systemd to re-read unit definitions.
func (s *DBus) Reload(ctx context.Context) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "systemd-dbus",
		zerowrap.FieldAction:  "Reload",
	})
	log := zerowrap.FromCtx(ctx)

	if err := s.conn.ReloadContext(ctx); err != nil {
		return log.WrapErr(err, "daemon reload failed")
	}
	return nil
}

// Enable links the units into their install targets.
func (s *DBus) Enable(ctx context.Context, names ...string) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "systemd-dbus",
		zerowrap.FieldAction:  "Enable",
	})
	log := zerowrap.FromCtx(ctx)

	paths := make([]string, 0, len(names))
	for _, n := range names {
		paths = append(paths, s.units.UnitPath(n))
	}
	_, changes, err := s.conn.EnableUnitFilesContext(ctx, paths, false, true)
	if err != nil {
		return log.WrapErr(err, "enable failed")
	}
	log.Debug().Int("changes", len(changes)).Msg("units enabled")
	return nil
}

// Start restarts the unit and waits for the job result.
func (s *DBus) Start(ctx context.Context, name string) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "systemd-dbus",
		zerowrap.FieldAction:  "Start",
		"unit":                name,
	})
	log := zerowrap.FromCtx(ctx)

	ch := make(chan string, 1)
	if _, err := s.conn.RestartUnitContext(ctx, name, "replace", ch); err != nil {
		return log.WrapErr(fmt.Errorf("%w: %w", domain.ErrUnitStartFailed, err), "restart job rejected")
	}
	return s.await(ctx, name, ch)
}

// Stop stops the unit and waits for the job result.
func (s *DBus) Stop(ctx context.Context, name string) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "systemd-dbus",
		zerowrap.FieldAction:  "Stop",
		"unit":                name,
	})
	log := zerowrap.FromCtx(ctx)

	ch := make(chan string, 1)
	if _, err := s.conn.StopUnitContext(ctx, name, "replace", ch); err != nil {
		return log.WrapErr(unitError(err), "stop job rejected")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case result := <-ch:
		if result != jobDone {
			log.Warn().Str("result", result).Msg("stop job did not complete")
		}
		return nil
	}
}

// Remove disables the unit and deletes its files.
func (s *DBus) Remove(ctx context.Context, name string) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "systemd-dbus",
		zerowrap.FieldAction:  "Remove",
		"unit":                name,
	})
	log := zerowrap.FromCtx(ctx)

	if _, err := s.conn.DisableUnitFilesContext(ctx, []string{name}, false); err != nil {
		log.Warn().Err(err).Msg("disable failed, removing files anyway")
	}
	if err := s.units.Remove(name); err != nil {
		return log.WrapErr(err, "failed to remove unit files")
	}
	return nil
}

// Status reports the supervisor state of each unit.
func (s *DBus) Status(ctx context.Context, names ...string) ([]domain.UnitState, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "systemd-dbus",
		zerowrap.FieldAction:  "Status",
	})
	log := zerowrap.FromCtx(ctx)

	statuses, err := s.conn.ListUnitsByNamesContext(ctx, names)
	if err != nil {
		return nil, log.WrapErr(err, "failed to list units")
	}

	states := make([]domain.UnitState, 0, len(statuses))
	for _, st := range statuses {
		states = append(states, domain.UnitState{
			Name:        st.Name,
			LoadState:   st.LoadState,
			ActiveState: st.ActiveState,
			SubState:    st.SubState,
		})
	}
	return states, nil
}

func (s *DBus) await(ctx context.Context, name string, ch <-chan string) error {
	log := zerowrap.FromCtx(ctx)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case result := <-ch:
		if result != jobDone {
			return log.WrapErr(fmt.Errorf("%w: %s finished with %q", domain.ErrUnitStartFailed, name, result), "start job failed")
		}
		log.Info().Msg("unit started")
		return nil
	}
}

func unitError(err error) error {
	var derr godbus.Error
	if errors.As(err, &derr) && derr.Name == noSuchUnit {
		return fmt.Errorf("%w: %w", domain.ErrUnitNotFound, err)
	}
	return err
}
