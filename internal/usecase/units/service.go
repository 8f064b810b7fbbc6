// Package units synthesizes the managed service definitions and renders them
// as supervisor units.
package units

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bnema/zerowrap"
	"github.com/docker/go-connections/nat"
	"github.com/google/go-containerregistry/pkg/name"

	"github.com/bnema/hearth/internal/domain"
)

var (
	serviceNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)
	envKeyPattern      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// AppConfig describes the application container.
type AppConfig struct {
	Name       string
	Image      string
	Port       int // port the application listens on inside the container
	HostPort   int // loopback port on the host, defaults to Port
	DataTarget string
	Env        map[string]string
}

// ProxyConfig describes the reverse-proxy container.
type ProxyConfig struct {
	Name  string
	Image string
	Ports []string // docker publish specs
	Env   map[string]string
}

// DDNSConfig describes the dynamic-DNS updater container.
type DDNSConfig struct {
	Name         string
	Image        string
	Subdomain    string
	Token        string
	SubdomainVar string
	TokenVar     string
	Env          map[string]string
}

// Config holds everything the three definitions are derived from.
type Config struct {
	Docker          string // docker CLI used by the unit commands
	Network         string
	EnvDir          string
	DataDir         string // mounted data volume
	ProxyConfigPath string
	StopTimeout     int
	RestartSec      int

	App   AppConfig
	Proxy ProxyConfig
	DDNS  DDNSConfig
}

// Service implements the UnitSynthesizer interface.
type Service struct {
	config Config
}

// NewService creates a unit synthesizer, filling unset fields with defaults.
func NewService(config Config) *Service {
	if config.Docker == "" {
		config.Docker = "/usr/bin/docker"
	}
	if config.EnvDir == "" {
		config.EnvDir = "/etc/hearth/env"
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = 10
	}
	if config.RestartSec <= 0 {
		config.RestartSec = 5
	}
	if config.App.HostPort == 0 {
		config.App.HostPort = config.App.Port
	}
	if config.DDNS.SubdomainVar == "" {
		config.DDNS.SubdomainVar = "SUBDOMAINS"
	}
	if config.DDNS.TokenVar == "" {
		config.DDNS.TokenVar = "TOKEN"
	}
	return &Service{config: config}
}

// DataDirs lists the directories, relative to the data volume, that the
// definitions mount read-write. The disk step prepares exactly these.
func (s *Service) DataDirs() []string {
	c := s.config
	return []string{c.appDir(), c.proxyDataDir(), c.proxyConfigDir(), c.ddnsDir()}
}

// Each service keeps its state under its own name on the data volume.
func (c Config) appDir() string {
	return c.App.Name
}

func (c Config) proxyDataDir() string {
	return filepath.Join(c.Proxy.Name, "data")
}

func (c Config) proxyConfigDir() string {
	return filepath.Join(c.Proxy.Name, "config")
}

func (c Config) ddnsDir() string {
	return c.DDNS.Name
}

// Definitions builds the application, reverse-proxy and dynamic-DNS
// service definitions.
func (s *Service) Definitions(_ context.Context) ([]domain.ServiceDefinition, error) {
	c := s.config

	if c.App.Port <= 0 || c.App.Port > 65535 || c.App.HostPort <= 0 || c.App.HostPort > 65535 {
		return nil, fmt.Errorf("%w: app port %d/%d", domain.ErrInvalidConfig, c.App.Port, c.App.HostPort)
	}
	if c.DDNS.Subdomain == "" || c.DDNS.Token == "" {
		return nil, fmt.Errorf("%w: dynamic DNS subdomain and token are required", domain.ErrInvalidConfig)
	}

	proxyPorts, err := ParsePorts(c.Proxy.Ports)
	if err != nil {
		return nil, err
	}

	app := domain.ServiceDefinition{
		Name:        c.App.Name,
		Description: "hearth application " + c.App.Name,
		Image:       c.App.Image,
		Restart:     domain.RestartAlways,
		Network:     c.Network,
		Ports: []domain.PortBinding{{
			HostIP:        "127.0.0.1",
			HostPort:      strconv.Itoa(c.App.HostPort),
			ContainerPort: strconv.Itoa(c.App.Port),
			Protocol:      "tcp",
		}},
		Volumes: []domain.VolumeMount{
			{Source: filepath.Join(c.DataDir, c.appDir()), Target: c.App.DataTarget},
		},
		Env:         copyEnv(c.App.Env),
		StopTimeout: c.StopTimeout,
	}

	proxy := domain.ServiceDefinition{
		Name:        c.Proxy.Name,
		Description: "hearth reverse proxy " + c.Proxy.Name,
		Image:       c.Proxy.Image,
		Restart:     domain.RestartAlways,
		Network:     c.Network,
		Ports:       proxyPorts,
		Volumes: []domain.VolumeMount{
			{Source: c.ProxyConfigPath, Target: "/etc/caddy/Caddyfile", ReadOnly: true},
			{Source: filepath.Join(c.DataDir, c.proxyDataDir()), Target: "/data"},
			{Source: filepath.Join(c.DataDir, c.proxyConfigDir()), Target: "/config"},
		},
		Env:         copyEnv(c.Proxy.Env),
		DependsOn:   []string{c.App.Name},
		StopTimeout: c.StopTimeout,
	}

	ddnsEnv := copyEnv(c.DDNS.Env)
	ddnsEnv[c.DDNS.SubdomainVar] = c.DDNS.Subdomain
	ddnsEnv[c.DDNS.TokenVar] = c.DDNS.Token
	ddns := domain.ServiceDefinition{
		Name:        c.DDNS.Name,
		Description: "hearth dynamic DNS updater " + c.DDNS.Name,
		Image:       c.DDNS.Image,
		Restart:     domain.RestartAlways,
		Network:     c.Network,
		Volumes: []domain.VolumeMount{
			{Source: filepath.Join(c.DataDir, c.ddnsDir()), Target: "/config"},
		},
		Env:         ddnsEnv,
		StopTimeout: c.StopTimeout,
	}

	return []domain.ServiceDefinition{app, proxy, ddns}, nil
}

// Synthesize renders every definition as a unit file.
func (s *Service) Synthesize(ctx context.Context) ([]domain.UnitFile, domain.StepResult, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "SynthesizeUnits",
	})
	log := zerowrap.FromCtx(ctx)

	result := domain.StepResult{Step: domain.StepUnits}

	defs, err := s.Definitions(ctx)
	if err != nil {
		return nil, result, log.WrapErr(err, "failed to build service definitions")
	}

	units, err := s.Render(defs)
	if err != nil {
		return nil, result, log.WrapErr(err, "failed to render units")
	}

	for _, u := range units {
		result.Add(u.Name)
	}
	result.Finish()
	log.Debug().Int("units", len(units)).Msg("units synthesized")
	return units, result, nil
}

// Render validates the definitions and turns each into a unit file.
func (s *Service) Render(defs []domain.ServiceDefinition) ([]domain.UnitFile, error) {
	known := make(map[string]bool, len(defs))
	for _, d := range defs {
		if err := validate(d); err != nil {
			return nil, err
		}
		if known[d.Name] {
			return nil, fmt.Errorf("%w: duplicate service %q", domain.ErrInvalidConfig, d.Name)
		}
		known[d.Name] = true
	}

	units := make([]domain.UnitFile, 0, len(defs))
	for _, d := range defs {
		after := make([]string, 0, len(d.DependsOn))
		for _, dep := range d.DependsOn {
			if !known[dep] {
				return nil, fmt.Errorf("%w: %s depends on %q", domain.ErrUnknownService, d.Name, dep)
			}
			after = append(after, domain.ServiceDefinition{Name: dep}.UnitName())
		}

		units = append(units, domain.UnitFile{
			Name:    d.UnitName(),
			Service: d.Name,
			Options: s.options(d, after),
			Env:     copyEnv(d.Env),
			After:   after,
		})
	}
	return units, nil
}

func (s *Service) options(d domain.ServiceDefinition, deps []string) []domain.UnitOption {
	docker := s.config.Docker
	envFile := filepath.Join(s.config.EnvDir, d.Name+".env")

	opts := []domain.UnitOption{
		{Section: "Unit", Name: "Description", Value: d.Description},
		{Section: "Unit", Name: "After", Value: strings.Join(append([]string{"docker.service", "network-online.target"}, deps...), " ")},
		{Section: "Unit", Name: "Requires", Value: "docker.service"},
		{Section: "Unit", Name: "Wants", Value: strings.Join(append([]string{"network-online.target"}, deps...), " ")},

		{Section: "Service", Name: "EnvironmentFile", Value: "-" + envFile},
		{Section: "Service", Name: "ExecStartPre", Value: "-" + execLine(docker, "rm", "-f", d.Name)},
		{Section: "Service", Name: "ExecStart", Value: execLine(runArgs(docker, d)...)},
		{Section: "Service", Name: "ExecStop", Value: execLine(docker, "stop", "-t", strconv.Itoa(d.StopTimeout), d.Name)},
		{Section: "Service", Name: "Restart", Value: string(d.Restart)},
		{Section: "Service", Name: "RestartSec", Value: strconv.Itoa(s.config.RestartSec)},
		{Section: "Service", Name: "TimeoutStartSec", Value: "0"},

		{Section: "Install", Name: "WantedBy", Value: "multi-user.target"},
	}
	return opts
}

func runArgs(docker string, d domain.ServiceDefinition) []string {
	args := []string{docker, "run", "--name", d.Name}
	if d.Network != "" {
		args = append(args, "--network", d.Network)
	}
	args = append(args, "--label", domain.LabelManaged+"=true")

	for _, p := range d.Ports {
		args = append(args, "-p", publishSpec(p))
	}
	for _, v := range d.Volumes {
		spec := v.Source + ":" + v.Target
		if v.ReadOnly {
			spec += ":ro"
		}
		args = append(args, "-v", spec)
	}
	// values come from the EnvironmentFile, only keys appear here
	for _, k := range sortedKeys(d.Env) {
		args = append(args, "-e", k)
	}
	return append(args, d.Image)
}

func publishSpec(p domain.PortBinding) string {
	proto := p.Protocol
	if proto == "" {
		proto = "tcp"
	}
	spec := p.HostPort + ":" + p.ContainerPort + "/" + proto
	if p.HostIP == "" {
		return spec
	}
	host := p.HostIP
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return host + ":" + spec
}

// ParsePorts converts docker publish specs into port bindings.
func ParsePorts(specs []string) ([]domain.PortBinding, error) {
	var ports []domain.PortBinding
	for _, spec := range specs {
		mappings, err := nat.ParsePortSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("%w: port %q: %w", domain.ErrInvalidConfig, spec, err)
		}
		for _, m := range mappings {
			if m.Binding.HostPort == "" {
				return nil, fmt.Errorf("%w: port %q has no host port", domain.ErrInvalidConfig, spec)
			}
			ports = append(ports, domain.PortBinding{
				HostIP:        m.Binding.HostIP,
				HostPort:      m.Binding.HostPort,
				ContainerPort: m.Port.Port(),
				Protocol:      m.Port.Proto(),
			})
		}
	}
	return ports, nil
}

func validate(d domain.ServiceDefinition) error {
	if !serviceNamePattern.MatchString(d.Name) {
		return fmt.Errorf("%w: service name %q", domain.ErrInvalidConfig, d.Name)
	}
	if _, err := name.ParseReference(d.Image); err != nil {
		return fmt.Errorf("%w: %s image %q: %w", domain.ErrInvalidImageFormat, d.Name, d.Image, err)
	}
	if strings.ContainsAny(d.Description, "\n\r") {
		return fmt.Errorf("%w: %s description spans lines", domain.ErrInvalidConfig, d.Name)
	}
	for k, v := range d.Env {
		if !envKeyPattern.MatchString(k) {
			return fmt.Errorf("%w: %s env key %q", domain.ErrInvalidConfig, d.Name, k)
		}
		if strings.ContainsAny(v, "\x00\n\r") {
			return fmt.Errorf("%w: %s env %s must be a single line", domain.ErrInvalidConfig, d.Name, k)
		}
	}
	for _, v := range d.Volumes {
		if !filepath.IsAbs(v.Source) || !filepath.IsAbs(v.Target) || strings.ContainsAny(v.Source+v.Target, ":\n") {
			return fmt.Errorf("%w: %s volume %s:%s", domain.ErrInvalidConfig, d.Name, v.Source, v.Target)
		}
	}
	for _, p := range d.Ports {
		if _, err := nat.ParsePortSpec(publishSpec(p)); err != nil {
			return fmt.Errorf("%w: %s port: %w", domain.ErrInvalidConfig, d.Name, err)
		}
	}
	return nil
}

// execLine joins a command for an Exec*= directive. Specifiers and variable
// references are escaped so arguments reach the process verbatim.
func execLine(args ...string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = quoteArg(a)
	}
	return strings.Join(quoted, " ")
}

var quoteReplacer = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func quoteArg(s string) string {
	s = strings.ReplaceAll(s, "%", "%%")
	s = strings.ReplaceAll(s, "$", "$$")
	if s == "" || s == ";" || strings.ContainsAny(s, " \t\"'\\") {
		return `"` + quoteReplacer.Replace(s) + `"`
	}
	return s
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
