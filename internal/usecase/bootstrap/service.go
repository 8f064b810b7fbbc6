// Package bootstrap runs the convergence steps in order, once per boot.
package bootstrap

import (
	"context"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/google/uuid"

	"github.com/bnema/hearth/internal/boundaries/in"
	"github.com/bnema/hearth/internal/domain"
)

// Steps are the components a run drives, in execution order.
type Steps struct {
	Disk      in.DiskProvisioner
	Config    in.ConfigMaterializer
	Network   in.NetworkFabric
	Registry  in.RegistryAuthenticator
	Images    in.ImagePrefetcher
	Units     in.UnitSynthesizer
	Activator in.ServiceActivator
}

// Service implements the Bootstrapper interface.
type Service struct {
	steps Steps
	now   func() time.Time
	newID func() string
}

// NewService creates the orchestrator.
func NewService(steps Steps) *Service {
	return &Service{
		steps: steps,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Run executes every step sequentially. A fatal error stops the run; the
// returned report then ends with the failed step.
func (s *Service) Run(ctx context.Context) (domain.Report, error) {
	report := domain.Report{RunID: s.newID(), Started: s.now()}

	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "Bootstrap",
		"run_id":              report.RunID,
	})
	log := zerowrap.FromCtx(ctx)
	log.Info().Msg("bootstrap started")

	fatal := []struct {
		name string
		fn   func(context.Context) (domain.StepResult, error)
	}{
		{domain.StepDisk, s.steps.Disk.Ensure},
		{domain.StepProxy, s.steps.Config.Materialize},
		{domain.StepNetwork, s.steps.Network.Ensure},
	}
	for _, st := range fatal {
		if err := s.record(ctx, &report, st.name, st.fn); err != nil {
			return s.finish(ctx, report), err
		}
	}

	_ = s.record(ctx, &report, domain.StepRegistry, func(ctx context.Context) (domain.StepResult, error) {
		return s.steps.Registry.Authenticate(ctx), nil
	})
	_ = s.record(ctx, &report, domain.StepImages, func(ctx context.Context) (domain.StepResult, error) {
		return s.steps.Images.Prefetch(ctx), nil
	})

	var units []domain.UnitFile
	err := s.record(ctx, &report, domain.StepUnits, func(ctx context.Context) (domain.StepResult, error) {
		var (
			result domain.StepResult
			err    error
		)
		units, result, err = s.steps.Units.Synthesize(ctx)
		return result, err
	})
	if err != nil {
		return s.finish(ctx, report), err
	}

	err = s.record(ctx, &report, domain.StepActivation, func(ctx context.Context) (domain.StepResult, error) {
		return s.steps.Activator.Activate(ctx, units)
	})
	return s.finish(ctx, report), err
}

// Down stops and removes the managed units.
func (s *Service) Down(ctx context.Context) (domain.StepResult, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "Down",
	})
	log := zerowrap.FromCtx(ctx)

	units, _, err := s.steps.Units.Synthesize(ctx)
	if err != nil {
		return domain.StepResult{Step: domain.StepActivation}, log.WrapErr(err, "failed to synthesize units")
	}
	return s.steps.Activator.Deactivate(ctx, units)
}

// Status reports the supervisor state of the managed units.
func (s *Service) Status(ctx context.Context) ([]domain.UnitState, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "Status",
	})
	log := zerowrap.FromCtx(ctx)

	units, _, err := s.steps.Units.Synthesize(ctx)
	if err != nil {
		return nil, log.WrapErr(err, "failed to synthesize units")
	}
	return s.steps.Activator.Status(ctx, units)
}

func (s *Service) record(ctx context.Context, report *domain.Report, name string, fn func(context.Context) (domain.StepResult, error)) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{"step": name})
	log := zerowrap.FromCtx(ctx)

	started := s.now()
	result, err := fn(ctx)
	result.Step = name
	result.Duration = s.now().Sub(started)

	if err != nil {
		result.Outcome = domain.OutcomeFailed
		result.Add(err.Error())
		report.Steps = append(report.Steps, result)
		log.Error().Err(err).Msg("step failed, aborting run")
		return err
	}

	result.Finish()
	report.Steps = append(report.Steps, result)
	log.Info().Str("outcome", string(result.Outcome)).Dur("duration", result.Duration).Msg("step finished")
	return nil
}

func (s *Service) finish(ctx context.Context, report domain.Report) domain.Report {
	report.Elapsed = s.now().Sub(report.Started)
	log := zerowrap.FromCtx(ctx)
	switch {
	case report.Failed():
		log.Error().Dur("elapsed", report.Elapsed).Msg("bootstrap aborted")
	case report.Degraded():
		log.Warn().Dur("elapsed", report.Elapsed).Msg("bootstrap finished degraded")
	default:
		log.Info().Dur("elapsed", report.Elapsed).Msg("bootstrap finished")
	}
	return report
}
