package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bnema/zerowrap"

	"github.com/bnema/hearth/internal/adapters/out/blockdev"
	"github.com/bnema/hearth/internal/adapters/out/credstore"
	"github.com/bnema/hearth/internal/adapters/out/docker"
	"github.com/bnema/hearth/internal/adapters/out/filesystem"
	"github.com/bnema/hearth/internal/adapters/out/fstab"
	"github.com/bnema/hearth/internal/adapters/out/systemd"
	"github.com/bnema/hearth/internal/boundaries/in"
	"github.com/bnema/hearth/internal/boundaries/out"
	"github.com/bnema/hearth/internal/domain"
	"github.com/bnema/hearth/internal/usecase/activate"
	"github.com/bnema/hearth/internal/usecase/bootstrap"
	"github.com/bnema/hearth/internal/usecase/disk"
	"github.com/bnema/hearth/internal/usecase/images"
	"github.com/bnema/hearth/internal/usecase/network"
	"github.com/bnema/hearth/internal/usecase/proxyconfig"
	"github.com/bnema/hearth/internal/usecase/registry"
	"github.com/bnema/hearth/internal/usecase/units"
	"github.com/bnema/hearth/pkg/shell"
)

// Host bundles the driven adapters a kernel runs against.
type Host struct {
	Files       *filesystem.Host
	Devices     out.BlockDevices
	Mounts      out.MountTable
	Runtime     out.ContainerRuntime
	Credentials out.CredentialStore
	Supervisor  out.Supervisor
	UnitFiles   *systemd.UnitFiles

	closers []func() error
}

// Close releases engine and bus connections.
func (h *Host) Close() error {
	var errs []error
	for _, c := range h.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Kernel provides the bootstrap operations for local CLI execution.
type Kernel struct {
	cfg       Config
	log       zerowrap.Logger
	host      *Host
	bootstrap in.Bootstrapper
	proxy     in.ConfigMaterializer
	units     in.UnitSynthesizer
	cleanup   func()
	sources   []string
}

// NewKernel loads configuration, creates the logger and wires every step
// against the real host.
func NewKernel(ctx context.Context, opts Options) (*Kernel, error) {
	v, cfg, err := initConfig(opts)
	if err != nil {
		return nil, err
	}

	log, cleanup, err := initLogger(cfg)
	if err != nil {
		return nil, err
	}
	if cleanup == nil {
		cleanup = func() {}
	}

	ctx = zerowrap.WithCtx(ctx, log)
	host, err := newHost(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, err
	}

	k := newKernel(cfg, log, host)
	k.cleanup = cleanup
	configFile := v.ConfigFileUsed()
	if configFile == "" {
		configFile = configFileFor(opts)
	}
	k.sources = watchedFiles(configFile, opts.InputsPath)
	return k, nil
}

// newHost creates the production adapters.
func newHost(ctx context.Context, cfg Config) (*Host, error) {
	log := zerowrap.FromCtx(ctx)

	files := filesystem.NewHost()
	runner := shell.NewExecRunner()

	runtime, err := docker.NewRuntime(cfg.Docker.Host, cfg.Docker.ReadyTimeout)
	if err != nil {
		return nil, log.WrapErr(err, "failed to create Docker runtime")
	}

	unitFiles := systemd.NewUnitFiles(cfg.Systemd.UnitDir, cfg.Systemd.EnvDir, files)
	host := &Host{
		Files:       files,
		Devices:     blockdev.NewDevices(runner, cfg.Disk.AllowNonBlock),
		Mounts:      fstab.NewTable(cfg.Disk.Fstab, files.Fs(), runner),
		Runtime:     runtime,
		Credentials: credstore.NewDockerConfig(cfg.Registry.CredentialsPath, files),
		UnitFiles:   unitFiles,
		closers:     []func() error{runtime.Close},
	}

	supervisor, closer, err := createSupervisor(ctx, cfg.Systemd.Backend, unitFiles, runner)
	if err != nil {
		_ = host.Close()
		return nil, err
	}
	host.Supervisor = supervisor
	if closer != nil {
		host.closers = append(host.closers, closer)
	}
	return host, nil
}

// createSupervisor picks the supervisor backend. "auto" prefers D-Bus and
// falls back to systemctl when the system bus is unreachable.
func createSupervisor(ctx context.Context, backend string, unitFiles *systemd.UnitFiles, runner shell.Runner) (out.Supervisor, func() error, error) {
	log := zerowrap.FromCtx(ctx)

	switch backend {
	case "systemctl":
		return systemd.NewSystemctl(runner, unitFiles), nil, nil
	case "dbus", "auto", "":
		bus, err := systemd.NewDBus(ctx, unitFiles)
		if err == nil {
			return bus, bus.Close, nil
		}
		if backend == "dbus" {
			return nil, nil, log.WrapErr(err, "failed to connect to systemd over D-Bus")
		}
		log.Warn().Err(err).Msg("system bus unavailable, using systemctl")
		return systemd.NewSystemctl(runner, unitFiles), nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown supervisor backend %q", domain.ErrInvalidConfig, backend)
	}
}

// newKernel wires the use cases against host.
func newKernel(cfg Config, log zerowrap.Logger, host *Host) *Kernel {
	mode, _ := parseMode(cfg.Disk.Mode)
	appEnv, _ := parseEnv(cfg.App.Env)
	proxyEnv, _ := parseEnv(cfg.Proxy.Env)
	ddnsEnv, _ := parseEnv(cfg.DDNS.Env)

	unitsSvc := units.NewService(units.Config{
		Docker:          cfg.Docker.Binary,
		Network:         cfg.Docker.Network,
		EnvDir:          cfg.Systemd.EnvDir,
		DataDir:         cfg.Disk.MountPoint,
		ProxyConfigPath: cfg.Proxy.ConfigPath,
		StopTimeout:     cfg.Systemd.StopTimeout,
		RestartSec:      cfg.Systemd.RestartSec,
		App: units.AppConfig{
			Name:       cfg.App.Name,
			Image:      cfg.App.Image,
			Port:       cfg.App.Port,
			HostPort:   cfg.App.HostPort,
			DataTarget: cfg.App.DataTarget,
			Env:        appEnv,
		},
		Proxy: units.ProxyConfig{
			Name:  cfg.Proxy.Name,
			Image: cfg.Proxy.Image,
			Ports: cfg.Proxy.Ports,
			Env:   proxyEnv,
		},
		DDNS: units.DDNSConfig{
			Name:         cfg.DDNS.Name,
			Image:        cfg.DDNS.Image,
			Subdomain:    cfg.DDNS.Subdomain,
			Token:        cfg.DDNS.Token,
			SubdomainVar: cfg.DDNS.SubdomainVar,
			TokenVar:     cfg.DDNS.TokenVar,
			Env:          ddnsEnv,
		},
	})

	diskSvc := disk.NewService(host.Devices, host.Mounts, host.Files, disk.Config{
		Device:        cfg.Disk.Device,
		MountPoint:    cfg.Disk.MountPoint,
		FSType:        cfg.Disk.FSType,
		Label:         cfg.Disk.Label,
		FormatOptions: cfg.Disk.FormatOptions,
		MountOptions:  cfg.Disk.MountOptions,
		Mode:          mode,
		OwnerUID:      cfg.Disk.OwnerUID,
		OwnerGID:      cfg.Disk.OwnerGID,
		Subdirs:       unitsSvc.DataDirs(),
	})

	proxySvc := proxyconfig.NewService(host.Files, proxyconfig.Config{
		Path:     cfg.Proxy.ConfigPath,
		FQDN:     cfg.Site.FQDN,
		Upstream: fmt.Sprintf("%s:%d", cfg.App.Name, cfg.App.Port),
		Email:    cfg.Site.Email,
	})

	networkSvc := network.NewService(host.Runtime, network.Config{
		Name:             cfg.Docker.Network,
		Driver:           cfg.Docker.NetworkDriver,
		MinEngineVersion: cfg.Docker.MinVersion,
	})

	registrySvc := registry.NewService(host.Runtime, host.Credentials, registry.Config{
		Server:   cfg.Registry.Server,
		Username: cfg.Registry.Username,
		Password: cfg.Registry.Password,
		Image:    cfg.App.Image,
	})

	imagesSvc := images.NewService(host.Runtime, host.Credentials, images.Config{
		Images:          []string{cfg.App.Image, cfg.Proxy.Image, cfg.DDNS.Image},
		Retries:         cfg.Images.PullRetries,
		InitialInterval: cfg.Images.InitialInterval,
		MaxInterval:     cfg.Images.MaxInterval,
	})

	bootstrapSvc := bootstrap.NewService(bootstrap.Steps{
		Disk:      diskSvc,
		Config:    proxySvc,
		Network:   networkSvc,
		Registry:  registrySvc,
		Images:    imagesSvc,
		Units:     unitsSvc,
		Activator: activate.NewService(host.Supervisor),
	})

	return &Kernel{
		cfg:       cfg,
		log:       log,
		host:      host,
		bootstrap: bootstrapSvc,
		proxy:     proxySvc,
		units:     unitsSvc,
		cleanup:   func() {},
	}
}

// Close releases host connections and flushes the log file.
func (k *Kernel) Close() error {
	if k == nil {
		return nil
	}
	err := k.host.Close()
	if k.cleanup != nil {
		k.cleanup()
	}
	return err
}

func (k *Kernel) context(ctx context.Context) context.Context {
	return zerowrap.WithCtx(ctx, k.log)
}

// Run executes one bootstrap run.
func (k *Kernel) Run(ctx context.Context) (domain.Report, error) {
	return k.bootstrap.Run(k.context(ctx))
}

// Down stops and removes the managed units.
func (k *Kernel) Down(ctx context.Context) (domain.StepResult, error) {
	return k.bootstrap.Down(k.context(ctx))
}

// Status reports the supervisor state of the managed units.
func (k *Kernel) Status(ctx context.Context) ([]domain.UnitState, error) {
	return k.bootstrap.Status(k.context(ctx))
}

// RenderedUnit is a unit as it would be written to disk.
type RenderedUnit struct {
	Name    string
	Path    string
	Content string
	EnvPath string
	EnvKeys []string // values are secret and never rendered
}

// Preview is everything a run would write, computed without touching the host.
type Preview struct {
	ProxyConfigPath string
	ProxyConfig     string
	Units           []RenderedUnit
}

// Render computes the proxy configuration and units without side effects.
func (k *Kernel) Render(ctx context.Context) (Preview, error) {
	ctx = k.context(ctx)
	log := zerowrap.FromCtx(ctx)

	caddyfile, err := k.proxy.Render(ctx)
	if err != nil {
		return Preview{}, log.WrapErr(err, "failed to render proxy configuration")
	}

	unitFiles, _, err := k.units.Synthesize(ctx)
	if err != nil {
		return Preview{}, log.WrapErr(err, "failed to synthesize units")
	}

	preview := Preview{
		ProxyConfigPath: k.cfg.Proxy.ConfigPath,
		ProxyConfig:     string(caddyfile),
	}
	for _, uf := range unitFiles {
		body, err := systemd.Render(uf)
		if err != nil {
			return Preview{}, log.WrapErr(err, "failed to serialize unit")
		}
		keys := make([]string, 0, len(uf.Env))
		for key := range uf.Env {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		preview.Units = append(preview.Units, RenderedUnit{
			Name:    uf.Name,
			Path:    k.host.UnitFiles.UnitPath(uf.Name),
			Content: strings.TrimRight(string(body), "\n") + "\n",
			EnvPath: k.host.UnitFiles.EnvPath(uf.Service),
			EnvKeys: keys,
		})
	}
	return preview, nil
}
