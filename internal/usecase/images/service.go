// Package images implements the best-effort image prefetch use case.
package images

import (
	"context"
	"errors"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/cenkalti/backoff/v4"

	"github.com/bnema/hearth/internal/boundaries/out"
	"github.com/bnema/hearth/internal/domain"
	"github.com/bnema/hearth/internal/usecase/registry"
)

// Config lists the images to warm and how hard to try.
type Config struct {
	Images          []string
	Retries         int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Service implements the ImagePrefetcher interface.
type Service struct {
	runtime out.ContainerRuntime
	creds   out.CredentialStore
	config  Config
}

// NewService creates a new image prefetch service.
func NewService(runtime out.ContainerRuntime, creds out.CredentialStore, config Config) *Service {
	if config.InitialInterval <= 0 {
		config.InitialInterval = time.Second
	}
	if config.MaxInterval <= 0 {
		config.MaxInterval = 10 * time.Second
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	return &Service{
		runtime: runtime,
		creds:   creds,
		config:  config,
	}
}

// Prefetch pulls every image. Failures are logged and reported as degraded;
// the supervisor pulls again when it starts the container.
func (s *Service) Prefetch(ctx context.Context) domain.StepResult {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "PrefetchImages",
		"count":               len(s.config.Images),
	})
	log := zerowrap.FromCtx(ctx)

	result := domain.StepResult{Step: domain.StepImages}
	seen := make(map[string]bool, len(s.config.Images))

	for _, image := range s.config.Images {
		if image == "" || seen[image] {
			continue
		}
		seen[image] = true

		if err := s.pull(ctx, image); err != nil {
			result.Degrade("pull " + image + " failed")
			log.Warn().Err(err).Str("image", image).Msg("image prefetch failed, continuing")
			continue
		}
		result.MarkChanged()
		result.Add("pulled " + image)
	}

	result.Finish()
	return result
}

func (s *Service) pull(ctx context.Context, image string) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{"image": image})
	log := zerowrap.FromCtx(ctx)

	auth := s.lookupAuth(ctx, image)

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(s.config.InitialInterval),
		backoff.WithMaxInterval(s.config.MaxInterval),
		backoff.WithMaxElapsedTime(0),
	)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := s.runtime.PullImageWithAuth(ctx, image, auth)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrUnauthorized) {
			return backoff.Permanent(err)
		}
		log.Debug().Err(err).Int("attempt", attempt).Msg("pull attempt failed")
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.config.Retries)), ctx))
}

// lookupAuth returns stored credentials for the image's registry, or an
// empty auth for an anonymous pull.
func (s *Service) lookupAuth(ctx context.Context, image string) domain.RegistryAuth {
	log := zerowrap.FromCtx(ctx)

	server, err := registry.ServerFor(image)
	if err != nil {
		log.Warn().Err(err).Msg("cannot derive registry, pulling anonymously")
		return domain.RegistryAuth{}
	}

	auth, ok, err := s.creds.Lookup(ctx, server)
	if err != nil {
		log.Warn().Err(err).Msg("credential lookup failed, pulling anonymously")
		return domain.RegistryAuth{}
	}
	if !ok {
		return domain.RegistryAuth{}
	}
	return auth
}
