// Package activate registers synthesized units with the host supervisor and
// brings them to the running state.
package activate

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/bnema/zerowrap"

	"github.com/bnema/hearth/internal/boundaries/out"
	"github.com/bnema/hearth/internal/domain"
)

// Service implements the ServiceActivator interface.
type Service struct {
	supervisor out.Supervisor
}

// NewService creates a service activator.
func NewService(supervisor out.Supervisor) *Service {
	return &Service{supervisor: supervisor}
}

// Activate registers, enables and restarts every unit. Registration, reload
// and enablement failures are fatal. A unit that fails to start degrades the
// step; its restart policy keeps retrying it.
func (s *Service) Activate(ctx context.Context, units []domain.UnitFile) (domain.StepResult, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "ActivateServices",
	})
	log := zerowrap.FromCtx(ctx)

	result := domain.StepResult{Step: domain.StepActivation}

	ordered, err := Order(units)
	if err != nil {
		return result, log.WrapErr(err, "failed to order units")
	}

	names := make([]string, 0, len(ordered))
	for _, u := range ordered {
		if err := s.supervisor.Register(ctx, u); err != nil {
			return result, log.WrapErrWithFields(err, "failed to register unit", map[string]any{"unit": u.Name})
		}
		names = append(names, u.Name)
	}

	if err := s.supervisor.Reload(ctx); err != nil {
		return result, log.WrapErr(err, "failed to reload supervisor")
	}
	if err := s.supervisor.Enable(ctx, names...); err != nil {
		return result, log.WrapErr(err, "failed to enable units")
	}

	for _, name := range names {
		if err := s.supervisor.Start(ctx, name); err != nil {
			log.Warn().Err(err).Str("unit", name).Msg("unit did not start, leaving it to its restart policy")
			result.Degrade(fmt.Sprintf("%s: start failed: %v", name, err))
			continue
		}
		log.Info().Str("unit", name).Msg("unit restarted")
		result.Add(name + " restarted")
		result.MarkChanged()
	}

	result.Finish()
	return result, nil
}

// Deactivate stops and removes units in reverse dependency order, then
// reloads the supervisor once. Units the supervisor does not know are skipped.
func (s *Service) Deactivate(ctx context.Context, units []domain.UnitFile) (domain.StepResult, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "DeactivateServices",
	})
	log := zerowrap.FromCtx(ctx)

	result := domain.StepResult{Step: domain.StepActivation}

	ordered, err := Order(units)
	if err != nil {
		return result, log.WrapErr(err, "failed to order units")
	}
	slices.Reverse(ordered)

	removed := false
	for _, u := range ordered {
		if err := s.supervisor.Stop(ctx, u.Name); err != nil && !isUnknownUnit(err) {
			log.Warn().Err(err).Str("unit", u.Name).Msg("failed to stop unit")
			result.Degrade(fmt.Sprintf("%s: stop failed: %v", u.Name, err))
		}
		if err := s.supervisor.Remove(ctx, u.Name); err != nil {
			if isUnknownUnit(err) {
				continue
			}
			return result, log.WrapErrWithFields(err, "failed to remove unit", map[string]any{"unit": u.Name})
		}
		result.Add(u.Name + " removed")
		result.MarkChanged()
		removed = true
	}

	// drop the removed definitions from the supervisor's loaded set
	if removed {
		if err := s.supervisor.Reload(ctx); err != nil {
			return result, log.WrapErr(err, "failed to reload supervisor")
		}
	}

	result.Finish()
	return result, nil
}

// Status returns the supervisor state of each unit.
func (s *Service) Status(ctx context.Context, units []domain.UnitFile) ([]domain.UnitState, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "ServiceStatus",
	})
	log := zerowrap.FromCtx(ctx)

	names := make([]string, len(units))
	for i, u := range units {
		names[i] = u.Name
	}
	states, err := s.supervisor.Status(ctx, names...)
	if err != nil {
		return nil, log.WrapErr(err, "failed to query unit state")
	}
	return states, nil
}

// Order sorts units so each comes after the units it declares in After.
// Units without a mutual constraint keep their input order.
func Order(units []domain.UnitFile) ([]domain.UnitFile, error) {
	index := make(map[string]int, len(units))
	for i, u := range units {
		index[u.Name] = i
	}

	indegree := make([]int, len(units))
	dependents := make([][]int, len(units))
	for i, u := range units {
		for _, dep := range u.After {
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("%w: %s is ordered after %q", domain.ErrUnknownService, u.Name, dep)
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	ordered := make([]domain.UnitFile, 0, len(units))
	done := make([]bool, len(units))
	for len(ordered) < len(units) {
		next := -1
		for i := range units {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			var stuck []string
			for i, u := range units {
				if !done[i] {
					stuck = append(stuck, u.Name)
				}
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrDependencyCycle, stuck)
		}
		done[next] = true
		ordered = append(ordered, units[next])
		for _, d := range dependents[next] {
			indegree[d]--
		}
	}
	return ordered, nil
}

func isUnknownUnit(err error) bool {
	return errors.Is(err, domain.ErrUnitNotFound)
}
