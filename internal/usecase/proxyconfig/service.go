// Package proxyconfig renders the reverse-proxy configuration file.
package proxyconfig

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"text/template"

	"github.com/bnema/zerowrap"

	"github.com/bnema/hearth/internal/boundaries/out"
	"github.com/bnema/hearth/internal/domain"
)

//go:embed Caddyfile.tmpl
var caddyfileTemplate string

var (
	tmpl = template.Must(template.New("Caddyfile").Option("missingkey=error").Parse(caddyfileTemplate))

	hostnamePattern = regexp.MustCompile(`^(\*\.)?([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)*[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)
	upstreamPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+:[0-9]{1,5}$`)
	emailPattern    = regexp.MustCompile(`^[^\s{}@]+@[^\s{}@]+$`)
)

// Config locates the rendered file and the values it is rendered from.
type Config struct {
	Path     string
	FQDN     string
	Upstream string
	Email    string // optional ACME account address
}

// Service implements the ConfigMaterializer interface.
type Service struct {
	files  out.FileSystem
	config Config
}

// NewService creates a new proxy config service.
func NewService(files out.FileSystem, config Config) *Service {
	return &Service{files: files, config: config}
}

type templateData struct {
	FQDN     string
	Upstream string
	Email    string
}

// Render returns the configuration content. It is a pure function of the
// site and has no side effects.
func (s *Service) Render(_ context.Context) ([]byte, error) {
	return Render(domain.ProxySite{FQDN: s.config.FQDN, Upstream: s.config.Upstream}, s.config.Email)
}

// Materialize renders the configuration and replaces the file on disk.
func (s *Service) Materialize(ctx context.Context) (domain.StepResult, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "MaterializeProxyConfig",
		"path":                s.config.Path,
		"fqdn":                s.config.FQDN,
	})
	log := zerowrap.FromCtx(ctx)

	result := domain.StepResult{Step: domain.StepProxy}

	content, err := s.Render(ctx)
	if err != nil {
		return result, log.WrapErr(err, "failed to render proxy config")
	}

	previous, err := s.files.ReadFile(s.config.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("could not read previous proxy config")
	}

	// always rewritten, the file is derived and never merged
	if err := s.files.WriteFile(s.config.Path, content, 0o644); err != nil {
		return result, log.WrapErr(err, "failed to write proxy config")
	}

	if !bytes.Equal(previous, content) {
		result.MarkChanged()
		result.Add("routes " + s.config.FQDN + " to " + s.config.Upstream)
	}
	result.Finish()

	log.Info().Str("outcome", string(result.Outcome)).Msg("proxy config written")
	return result, nil
}

// Render produces the Caddyfile for site.
func Render(site domain.ProxySite, email string) ([]byte, error) {
	if !hostnamePattern.MatchString(site.FQDN) {
		return nil, fmt.Errorf("%w: fqdn %q is not a hostname", domain.ErrInvalidConfig, site.FQDN)
	}
	if !upstreamPattern.MatchString(site.Upstream) {
		return nil, fmt.Errorf("%w: upstream %q must be host:port", domain.ErrInvalidConfig, site.Upstream)
	}
	if email != "" && !emailPattern.MatchString(email) {
		return nil, fmt.Errorf("%w: acme email %q", domain.ErrInvalidConfig, email)
	}

	var buf bytes.Buffer
	err := tmpl.Execute(&buf, templateData{FQDN: site.FQDN, Upstream: site.Upstream, Email: email})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRenderFailed, err)
	}
	return buf.Bytes(), nil
}
