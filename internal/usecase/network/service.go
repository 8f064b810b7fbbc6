// Package network implements the managed network use case.
package network

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/bnema/zerowrap"

	"github.com/bnema/hearth/internal/boundaries/out"
	"github.com/bnema/hearth/internal/domain"
)

// Config names the network and the engine it needs.
type Config struct {
	Name             string
	Driver           string
	MinEngineVersion string // semver constraint, empty disables the check
}

// Service implements the NetworkFabric interface.
type Service struct {
	runtime out.ContainerRuntime
	config  Config
}

// NewService creates a new network service.
func NewService(runtime out.ContainerRuntime, config Config) *Service {
	if config.Driver == "" {
		config.Driver = "bridge"
	}
	return &Service{runtime: runtime, config: config}
}

// Ensure waits for the engine and creates the network if it is missing.
func (s *Service) Ensure(ctx context.Context) (domain.StepResult, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "EnsureNetwork",
		"network":             s.config.Name,
	})
	log := zerowrap.FromCtx(ctx)

	result := domain.StepResult{Step: domain.StepNetwork}

	if err := s.runtime.WaitReady(ctx); err != nil {
		return result, log.WrapErr(err, "container engine unavailable")
	}

	if err := s.checkEngineVersion(ctx, &result); err != nil {
		return result, err
	}

	exists, err := s.runtime.NetworkExists(ctx, s.config.Name)
	if err != nil {
		return result, log.WrapErr(err, "failed to inspect network")
	}
	if exists {
		result.Finish()
		log.Debug().Msg("network already present")
		return result, nil
	}

	err = s.runtime.CreateNetwork(ctx, s.config.Name, map[string]string{"driver": s.config.Driver})
	switch {
	case errors.Is(err, domain.ErrNetworkExists):
		// lost a race with another creator, which is the state we wanted
		result.Finish()
		return result, nil
	case err != nil:
		return result, log.WrapErr(err, "failed to create network")
	}

	result.MarkChanged()
	result.Add("created network " + s.config.Name)
	log.Info().Str("driver", s.config.Driver).Msg("network created")
	return result, nil
}

func (s *Service) checkEngineVersion(ctx context.Context, result *domain.StepResult) error {
	if s.config.MinEngineVersion == "" {
		return nil
	}
	log := zerowrap.FromCtx(ctx)

	constraint, err := semver.NewConstraint(s.config.MinEngineVersion)
	if err != nil {
		return fmt.Errorf("%w: engine version constraint %q: %w", domain.ErrInvalidConfig, s.config.MinEngineVersion, err)
	}

	raw, err := s.runtime.Version(ctx)
	if err != nil {
		return log.WrapErr(err, "failed to read engine version")
	}

	version, err := semver.NewVersion(raw)
	if err != nil {
		log.Warn().Str("version", raw).Msg("engine version is not semver, skipping check")
		return nil
	}
	core, _ := version.SetPrerelease("")
	if !constraint.Check(&core) {
		return fmt.Errorf("%w: engine %s does not satisfy %s", domain.ErrEngineNotReady, raw, s.config.MinEngineVersion)
	}
	result.Add("engine " + raw)
	return nil
}
