// Package registry implements the optional registry login use case.
package registry

import (
	"context"
	"fmt"

	"github.com/bnema/zerowrap"
	"github.com/google/go-containerregistry/pkg/name"

	"github.com/bnema/hearth/internal/boundaries/out"
	"github.com/bnema/hearth/internal/domain"
)

// dockerHubServer is the key the docker CLI stores Docker Hub credentials under.
const dockerHubServer = "https://index.docker.io/v1/"

// Config carries the credentials supplied by the provisioning layer.
// Server may be empty, in which case it is derived from Image.
type Config struct {
	Server   string
	Username string
	Password string
	Image    string
}

// Service implements the RegistryAuthenticator interface.
type Service struct {
	runtime out.ContainerRuntime
	creds   out.CredentialStore
	config  Config
}

// NewService creates a new registry login service.
func NewService(runtime out.ContainerRuntime, creds out.CredentialStore, config Config) *Service {
	return &Service{
		runtime: runtime,
		creds:   creds,
		config:  config,
	}
}

// Authenticate logs in when both username and password are set. Missing
// credentials skip the step; a rejected login degrades it.
func (s *Service) Authenticate(ctx context.Context) domain.StepResult {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "RegistryLogin",
	})
	log := zerowrap.FromCtx(ctx)

	result := domain.StepResult{Step: domain.StepRegistry}

	if s.config.Username == "" || s.config.Password == "" {
		result.Outcome = domain.OutcomeSkipped
		result.Add("no registry credentials supplied")
		log.Debug().Msg("registry credentials not set, skipping login")
		return result
	}

	server := s.config.Server
	if server == "" {
		derived, err := ServerFor(s.config.Image)
		if err != nil {
			result.Degrade(err.Error())
			log.Warn().Err(err).Msg("cannot derive registry from image")
			return result
		}
		server = derived
	}

	auth := domain.RegistryAuth{
		Server:   server,
		Username: s.config.Username,
		Password: s.config.Password,
	}
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		"server":   server,
		"username": auth.Username,
	})
	log = zerowrap.FromCtx(ctx)

	token, err := s.runtime.RegistryLogin(ctx, auth)
	if err != nil {
		result.Degrade("login to " + server + " failed")
		log.Warn().Err(err).Msg("registry login failed, pulls will be anonymous")
		return result
	}
	auth.IdentityToken = token

	if err := s.creds.Store(ctx, auth); err != nil {
		result.Degrade("credentials for " + server + " not persisted")
		log.Warn().Err(err).Msg("failed to persist registry credentials")
		return result
	}

	result.MarkChanged()
	result.Add("logged in to " + server)
	log.Info().Msg("registry login succeeded")
	return result
}

// ServerFor returns the credential key of the registry hosting image.
func ServerFor(image string) (string, error) {
	ref, err := name.ParseReference(image)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", domain.ErrInvalidImageFormat, image, err)
	}
	server := ref.Context().RegistryStr()
	if server == name.DefaultRegistry {
		return dockerHubServer, nil
	}
	return server, nil
}
