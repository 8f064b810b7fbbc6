// Package docker implements the container runtime adapter using Docker API.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/cenkalti/backoff/v4"
	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"

	"github.com/bnema/hearth/internal/domain"
)

const defaultReadyTimeout = 60 * time.Second

// Runtime implements the ContainerRuntime interface using Docker API.
type Runtime struct {
	client       *client.Client
	readyTimeout time.Duration
}

// NewRuntime creates a new Docker runtime instance. An empty host uses the
// DOCKER_HOST environment or the default socket.
func NewRuntime(host string, readyTimeout time.Duration) (*Runtime, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	return NewRuntimeWithClient(cli, readyTimeout), nil
}

// NewRuntimeWithClient creates a new Docker runtime instance with a custom client (for testing).
func NewRuntimeWithClient(cli *client.Client, readyTimeout time.Duration) *Runtime {
	if readyTimeout <= 0 {
		readyTimeout = defaultReadyTimeout
	}
	return &Runtime{
		client:       cli,
		readyTimeout: readyTimeout,
	}
}

// Close releases the underlying client.
func (r *Runtime) Close() error {
	return r.client.Close()
}

// Ping checks if Docker is responsive.
func (r *Runtime) Ping(ctx context.Context) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "docker",
		zerowrap.FieldAction:  "Ping",
	})
	log := zerowrap.FromCtx(ctx)

	_, err := r.client.Ping(ctx)
	if err != nil {
		return log.WrapErr(err, "Docker ping failed")
	}
	return nil
}

// Version returns Docker version.
func (r *Runtime) Version(ctx context.Context) (string, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "docker",
		zerowrap.FieldAction:  "Version",
	})
	log := zerowrap.FromCtx(ctx)

	version, err := r.client.ServerVersion(ctx)
	if err != nil {
		return "", log.WrapErr(err, "failed to get Docker version")
	}
	return version.Version, nil
}

// WaitReady polls the daemon until it answers or the ready timeout elapses.
// Only connection failures are retried; any other error is returned at once.
func (r *Runtime) WaitReady(ctx context.Context) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "docker",
		zerowrap.FieldAction:  "WaitReady",
		"timeout":             r.readyTimeout.String(),
	})
	log := zerowrap.FromCtx(ctx)

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(100*time.Millisecond),
		backoff.WithMaxInterval(2*time.Second),
		backoff.WithMaxElapsedTime(r.readyTimeout),
	)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		_, err := r.client.Ping(ctx)
		if err == nil {
			return nil
		}
		if !client.IsErrConnectionFailed(err) {
			return backoff.Permanent(err)
		}
		log.Debug().Int("attempt", attempts).Msg("docker daemon not reachable yet")
		return err
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return log.WrapErr(fmt.Errorf("%w: %w", domain.ErrEngineNotReady, err), "docker daemon did not become ready")
	}

	log.Debug().Int("attempts", attempts).Msg("docker daemon ready")
	return nil
}

// PullImage pulls an image.
func (r *Runtime) PullImage(ctx context.Context, imageRef string) error {
	return r.PullImageWithAuth(ctx, imageRef, domain.RegistryAuth{})
}

// PullImageWithAuth pulls an image, sending credentials when auth is set.
func (r *Runtime) PullImageWithAuth(ctx context.Context, imageRef string, auth domain.RegistryAuth) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "docker",
		zerowrap.FieldAction:  "PullImage",
		"image":               imageRef,
		"authenticated":       !auth.Empty(),
	})
	log := zerowrap.FromCtx(ctx)

	opts := image.PullOptions{}
	if !auth.Empty() || auth.IdentityToken != "" {
		encoded, err := registry.EncodeAuthConfig(authConfig(auth))
		if err != nil {
			return log.WrapErr(err, "failed to encode auth config")
		}
		opts.RegistryAuth = encoded
	}

	log.Info().Msg("pulling image")

	reader, err := r.client.ImagePull(ctx, imageRef, opts)
	if err != nil {
		return log.WrapErr(pullError(err), "failed to pull image")
	}
	defer reader.Close()

	// The pull only completes once the progress stream is drained. Registry
	// failures after the 200 response arrive as error messages in the stream.
	if err := jsonmessage.DisplayJSONMessagesStream(reader, io.Discard, 0, false, nil); err != nil {
		return log.WrapErr(streamError(err), "failed to pull image")
	}

	log.Info().Msg("image pulled successfully")
	return nil
}

// RegistryLogin validates credentials against the registry through the daemon.
func (r *Runtime) RegistryLogin(ctx context.Context, auth domain.RegistryAuth) (string, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "docker",
		zerowrap.FieldAction:  "RegistryLogin",
		"server":              auth.Server,
		"username":            auth.Username,
	})
	log := zerowrap.FromCtx(ctx)

	if auth.Empty() {
		return "", domain.ErrCredentialsNotSet
	}

	resp, err := r.client.RegistryLogin(ctx, authConfig(auth))
	if err != nil {
		if cerrdefs.IsUnauthorized(err) || cerrdefs.IsPermissionDenied(err) {
			err = fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
		}
		return "", log.WrapErr(err, "registry login failed")
	}

	log.Info().Str("status", resp.Status).Msg("registry login succeeded")
	return resp.IdentityToken, nil
}

// CreateNetwork creates a new Docker network. A name conflict is reported as
// domain.ErrNetworkExists.
func (r *Runtime) CreateNetwork(ctx context.Context, name string, options map[string]string) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "docker",
		zerowrap.FieldAction:  "CreateNetwork",
		"network":             name,
	})
	log := zerowrap.FromCtx(ctx)

	driver := "bridge"
	if driverOption, exists := options["driver"]; exists && driverOption != "" {
		driver = driverOption
	}

	createOptions := network.CreateOptions{
		Driver: driver,
		Labels: map[string]string{
			domain.LabelManaged: "true",
		},
	}
	for key, value := range options {
		if key != "driver" {
			createOptions.Labels["hearth."+key] = value
		}
	}

	_, err := r.client.NetworkCreate(ctx, name, createOptions)
	if err != nil {
		if cerrdefs.IsConflict(err) || cerrdefs.IsAlreadyExists(err) {
			log.Debug().Msg("network already exists")
			return fmt.Errorf("%w: %s", domain.ErrNetworkExists, name)
		}
		return log.WrapErr(err, "failed to create network")
	}

	log.Info().Str("driver", driver).Msg("network created")
	return nil
}

// NetworkExists checks if a Docker network exists.
func (r *Runtime) NetworkExists(ctx context.Context, name string) (bool, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "docker",
		zerowrap.FieldAction:  "NetworkExists",
		"network":             name,
	})
	log := zerowrap.FromCtx(ctx)

	_, err := r.client.NetworkInspect(ctx, name, network.InspectOptions{})
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return false, nil
		}
		return false, log.WrapErr(err, "failed to inspect network")
	}
	return true, nil
}

func authConfig(auth domain.RegistryAuth) registry.AuthConfig {
	return registry.AuthConfig{
		Username:      auth.Username,
		Password:      auth.Password,
		ServerAddress: auth.Server,
		IdentityToken: auth.IdentityToken,
	}
}

func pullError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if cerrdefs.IsUnauthorized(err) || cerrdefs.IsPermissionDenied(err) {
		return fmt.Errorf("%w: %w: %w", domain.ErrImagePullFailed, domain.ErrUnauthorized, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrImagePullFailed, err)
}

// streamError classifies a failure reported inside the pull progress stream.
func streamError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var jerr *jsonmessage.JSONError
	if errors.As(err, &jerr) {
		if jerr.Code == http.StatusUnauthorized || strings.Contains(strings.ToLower(jerr.Message), "unauthorized") {
			return fmt.Errorf("%w: %w: %w", domain.ErrImagePullFailed, domain.ErrUnauthorized, err)
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrImagePullFailed, err)
}
