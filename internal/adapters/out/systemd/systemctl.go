package systemd

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/bnema/zerowrap"

	"github.com/bnema/hearth/internal/domain"
	"github.com/bnema/hearth/pkg/shell"
)

// Systemctl implements the Supervisor interface by shelling out to systemctl.
// It is the fallback when the system bus is unavailable.
type Systemctl struct {
	runner shell.Runner
	units  *UnitFiles
}

// NewSystemctl creates a systemctl-backed supervisor.
func NewSystemctl(runner shell.Runner, units *UnitFiles) *Systemctl {
	return &Systemctl{runner: runner, units: units}
}

// Register writes the unit and environment files.
func (s *Systemctl) Register(ctx context.Context, uf domain.UnitFile) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "systemctl",
		zerowrap.FieldAction:  "Register",
		"unit":                uf.Name,
	})
	log := zerowrap.FromCtx(ctx)

	if err := s.units.Write(uf); err != nil {
		return log.WrapErr(err, "failed to write unit")
	}
	return nil
}

// Reload runs systemctl daemon-reload.
func (s *Systemctl) Reload(ctx context.Context) error {
	return s.run(ctx, "Reload", "daemon-reload")
}

// Enable runs systemctl enable for the units.
func (s *Systemctl) Enable(ctx context.Context, names ...string) error {
	return s.run(ctx, "Enable", append([]string{"enable"}, names...)...)
}

// Start runs systemctl restart, which blocks until the start job finishes.
func (s *Systemctl) Start(ctx context.Context, name string) error {
	if err := s.run(ctx, "Start", "restart", name); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUnitStartFailed, err)
	}
	return nil
}

// exitNotLoaded is systemctl's exit status for a unit it does not know.
const exitNotLoaded = 5

// Stop runs systemctl stop.
func (s *Systemctl) Stop(ctx context.Context, name string) error {
	err := s.run(ctx, "Stop", "stop", name)
	if err != nil && shell.ExitCode(err) == exitNotLoaded {
		return fmt.Errorf("%w: %w", domain.ErrUnitNotFound, err)
	}
	return err
}

// Remove disables the unit and deletes its files.
func (s *Systemctl) Remove(ctx context.Context, name string) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "systemctl",
		zerowrap.FieldAction:  "Remove",
		"unit":                name,
	})
	log := zerowrap.FromCtx(ctx)

	if _, err := s.runner.Run(ctx, "systemctl", "disable", name); err != nil {
		log.Warn().Err(err).Msg("disable failed, removing files anyway")
	}
	if err := s.units.Remove(name); err != nil {
		return log.WrapErr(err, "failed to remove unit files")
	}
	return nil
}

// Status parses systemctl show output for each unit.
func (s *Systemctl) Status(ctx context.Context, names ...string) ([]domain.UnitState, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "systemctl",
		zerowrap.FieldAction:  "Status",
	})
	log := zerowrap.FromCtx(ctx)

	if len(names) == 0 {
		return nil, nil
	}

	args := append([]string{"show", "--property=Id,LoadState,ActiveState,SubState"}, names...)
	res, err := s.runner.Run(ctx, "systemctl", args...)
	if err != nil {
		return nil, log.WrapErr(err, "systemctl show failed")
	}
	return parseShow(res.Stdout), nil
}

func (s *Systemctl) run(ctx context.Context, action string, args ...string) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "systemctl",
		zerowrap.FieldAction:  action,
	})
	log := zerowrap.FromCtx(ctx)

	if _, err := s.runner.Run(ctx, "systemctl", args...); err != nil {
		return log.WrapErr(err, "systemctl "+args[0]+" failed")
	}
	return nil
}

// parseShow splits systemctl show output into one state per blank-line
// separated block.
func parseShow(out []byte) []domain.UnitState {
	var states []domain.UnitState
	var cur domain.UnitState
	flush := func() {
		if cur.Name != "" {
			states = append(states, cur)
		}
		cur = domain.UnitState{}
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "Id":
			cur.Name = value
		case "LoadState":
			cur.LoadState = value
		case "ActiveState":
			cur.ActiveState = value
		case "SubState":
			cur.SubState = value
		}
	}
	flush()
	return states
}
