package images

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/bnema/hearth/internal/boundaries/out/mocks"
	"github.com/bnema/hearth/internal/domain"
)

func testContext() context.Context {
	return zerowrap.WithCtx(context.Background(), zerowrap.Default())
}

func fastConfig(images ...string) Config {
	return Config{
		Images:          images,
		Retries:         2,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestService_Prefetch_PullsEveryImageOnce(t *testing.T) {
	runtime := mocks.NewMockContainerRuntime(t)
	creds := mocks.NewMockCredentialStore(t)

	creds.On("Lookup", mock.Anything, "ghcr.io").Return(domain.RegistryAuth{}, false, nil)
	creds.On("Lookup", mock.Anything, "https://index.docker.io/v1/").Return(domain.RegistryAuth{}, false, nil)
	runtime.On("PullImageWithAuth", mock.Anything, "ghcr.io/acme/app:v1", domain.RegistryAuth{}).Return(nil).Once()
	runtime.On("PullImageWithAuth", mock.Anything, "caddy:2", domain.RegistryAuth{}).Return(nil).Once()

	svc := NewService(runtime, creds, fastConfig("ghcr.io/acme/app:v1", "caddy:2", "caddy:2"))
	result := svc.Prefetch(testContext())

	assert.Equal(t, domain.OutcomeChanged, result.Outcome)
	assert.Equal(t, []string{"pulled ghcr.io/acme/app:v1", "pulled caddy:2"}, result.Details)
}

func TestService_Prefetch_UsesStoredCredentials(t *testing.T) {
	runtime := mocks.NewMockContainerRuntime(t)
	creds := mocks.NewMockCredentialStore(t)

	auth := domain.RegistryAuth{Server: "ghcr.io", Username: "bot", Password: "secret"}
	creds.On("Lookup", mock.Anything, "ghcr.io").Return(auth, true, nil)
	runtime.On("PullImageWithAuth", mock.Anything, "ghcr.io/acme/app:v1", auth).Return(nil)

	result := NewService(runtime, creds, fastConfig("ghcr.io/acme/app:v1")).Prefetch(testContext())

	assert.Equal(t, domain.OutcomeChanged, result.Outcome)
}

func TestService_Prefetch_RetriesThenSucceeds(t *testing.T) {
	runtime := mocks.NewMockContainerRuntime(t)
	creds := mocks.NewMockCredentialStore(t)

	creds.On("Lookup", mock.Anything, mock.Anything).Return(domain.RegistryAuth{}, false, nil)
	runtime.On("PullImageWithAuth", mock.Anything, "caddy:2", mock.Anything).Return(errors.New("tls handshake timeout")).Once()
	runtime.On("PullImageWithAuth", mock.Anything, "caddy:2", mock.Anything).Return(nil).Once()

	result := NewService(runtime, creds, fastConfig("caddy:2")).Prefetch(testContext())

	assert.Equal(t, domain.OutcomeChanged, result.Outcome)
}

func TestService_Prefetch_FailureIsSwallowed(t *testing.T) {
	runtime := mocks.NewMockContainerRuntime(t)
	creds := mocks.NewMockCredentialStore(t)

	creds.On("Lookup", mock.Anything, mock.Anything).Return(domain.RegistryAuth{}, false, nil)
	runtime.On("PullImageWithAuth", mock.Anything, "ghcr.io/acme/app:v1", mock.Anything).Return(domain.ErrImagePullFailed).Times(3)
	runtime.On("PullImageWithAuth", mock.Anything, "caddy:2", mock.Anything).Return(nil).Once()

	result := NewService(runtime, creds, fastConfig("ghcr.io/acme/app:v1", "caddy:2")).Prefetch(testContext())

	assert.Equal(t, domain.OutcomeDegraded, result.Outcome)
	assert.Equal(t, []string{"pull ghcr.io/acme/app:v1 failed", "pulled caddy:2"}, result.Details)
}

func TestService_Prefetch_UnauthorizedIsNotRetried(t *testing.T) {
	runtime := mocks.NewMockContainerRuntime(t)
	creds := mocks.NewMockCredentialStore(t)

	creds.On("Lookup", mock.Anything, mock.Anything).Return(domain.RegistryAuth{}, false, nil)
	runtime.On("PullImageWithAuth", mock.Anything, "ghcr.io/acme/private:v1", mock.Anything).Return(domain.ErrUnauthorized).Once()

	result := NewService(runtime, creds, fastConfig("ghcr.io/acme/private:v1")).Prefetch(testContext())

	assert.Equal(t, domain.OutcomeDegraded, result.Outcome)
}

func TestService_Prefetch_CredentialLookupErrorFallsBackToAnonymous(t *testing.T) {
	runtime := mocks.NewMockContainerRuntime(t)
	creds := mocks.NewMockCredentialStore(t)

	creds.On("Lookup", mock.Anything, "ghcr.io").Return(domain.RegistryAuth{}, false, errors.New("corrupt config.json"))
	runtime.On("PullImageWithAuth", mock.Anything, "ghcr.io/acme/app:v1", domain.RegistryAuth{}).Return(nil)

	result := NewService(runtime, creds, fastConfig("ghcr.io/acme/app:v1")).Prefetch(testContext())

	assert.Equal(t, domain.OutcomeChanged, result.Outcome)
}
