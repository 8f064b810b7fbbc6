// Package systemd registers and drives hearth units on the host supervisor.
package systemd

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/coreos/go-systemd/v22/unit"

	"github.com/bnema/hearth/internal/boundaries/out"
	"github.com/bnema/hearth/internal/domain"
)

const (
	// DefaultUnitDir is where administrator units live.
	DefaultUnitDir = "/etc/systemd/system"
	// DefaultEnvDir holds the per-service environment files.
	DefaultEnvDir = "/etc/hearth/env"
)

// UnitFiles writes unit definitions and their environment files.
type UnitFiles struct {
	unitDir string
	envDir  string
	files   out.FileSystem
}

// NewUnitFiles creates a unit file writer.
func NewUnitFiles(unitDir, envDir string, files out.FileSystem) *UnitFiles {
	if unitDir == "" {
		unitDir = DefaultUnitDir
	}
	if envDir == "" {
		envDir = DefaultEnvDir
	}
	return &UnitFiles{unitDir: unitDir, envDir: envDir, files: files}
}

// UnitPath returns the path of a unit definition.
func (u *UnitFiles) UnitPath(name string) string {
	return filepath.Join(u.unitDir, name)
}

// EnvPath returns the environment file path for a service name.
func (u *UnitFiles) EnvPath(service string) string {
	return filepath.Join(u.envDir, service+".env")
}

// Write renders the unit and its environment file. The environment file is
// written first so a unit never references a missing or stale one.
func (u *UnitFiles) Write(uf domain.UnitFile) error {
	env, err := MarshalEnv(uf.Env)
	if err != nil {
		return fmt.Errorf("%w: encode environment for %s: %w", domain.ErrUnitRegistration, uf.Name, err)
	}
	if err := u.files.MkdirAll(u.envDir, 0o700); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUnitRegistration, err)
	}
	if err := u.files.WriteFile(u.EnvPath(uf.Service), []byte(env), 0o600); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUnitRegistration, err)
	}

	body, err := Render(uf)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUnitRegistration, err)
	}
	if err := u.files.WriteFile(u.UnitPath(uf.Name), body, 0o644); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUnitRegistration, err)
	}
	return nil
}

// Remove deletes a unit definition and its environment file.
func (u *UnitFiles) Remove(name string) error {
	if err := u.files.Remove(u.UnitPath(name)); err != nil {
		return err
	}
	return u.files.Remove(u.EnvPath(ServiceName(name)))
}

// Render serializes the unit options in systemd's INI dialect.
func Render(uf domain.UnitFile) ([]byte, error) {
	opts := make([]*unit.UnitOption, 0, len(uf.Options))
	for _, o := range uf.Options {
		opts = append(opts, unit.NewUnitOption(o.Section, o.Name, o.Value))
	}
	return io.ReadAll(unit.Serialize(opts))
}

var envEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`", `$`, `\$`)

// MarshalEnv encodes env as an EnvironmentFile, one double-quoted KEY="value"
// line per key in sorted order. Values cannot span lines.
func MarshalEnv(env map[string]string) (string, error) {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v := env[k]
		if strings.ContainsAny(k, "=\n\r \t") || k == "" {
			return "", fmt.Errorf("invalid environment key %q", k)
		}
		if strings.ContainsAny(v, "\n\r\x00") {
			return "", fmt.Errorf("environment value for %s spans lines", k)
		}
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(envEscaper.Replace(v))
		b.WriteString("\"\n")
	}
	return b.String(), nil
}

// ServiceName strips the unit prefix and suffix from a unit name.
func ServiceName(unitName string) string {
	return strings.TrimSuffix(strings.TrimPrefix(unitName, domain.UnitPrefix), ".service")
}
