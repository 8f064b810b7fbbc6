// Package credstore persists registry credentials in the Docker client
// config file so later pulls by the engine CLI are authenticated.
package credstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bnema/zerowrap"

	"github.com/bnema/hearth/internal/boundaries/out"
	"github.com/bnema/hearth/internal/domain"
)

// DefaultPath is where root's docker CLI looks for credentials.
const DefaultPath = "/root/.docker/config.json"

type authEntry struct {
	Auth          string `json:"auth,omitempty"`
	IdentityToken string `json:"identitytoken,omitempty"`
}

// DockerConfig implements the CredentialStore interface on a config.json file.
// Keys other than "auths" are preserved untouched.
type DockerConfig struct {
	path  string
	files out.FileSystem
}

// NewDockerConfig creates a credential store backed by the file at path.
func NewDockerConfig(path string, files out.FileSystem) *DockerConfig {
	if path == "" {
		path = DefaultPath
	}
	return &DockerConfig{path: path, files: files}
}

// Store merges the credentials for auth.Server into the config file.
func (s *DockerConfig) Store(ctx context.Context, auth domain.RegistryAuth) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "credstore",
		zerowrap.FieldAction:  "Store",
		"server":              auth.Server,
		"path":                s.path,
	})
	log := zerowrap.FromCtx(ctx)

	if auth.Server == "" {
		return fmt.Errorf("%w: registry server is empty", domain.ErrInvalidConfig)
	}

	doc, auths, err := s.load()
	if err != nil {
		return log.WrapErr(err, "failed to load docker config")
	}

	entry := authEntry{IdentityToken: auth.IdentityToken}
	if !auth.Empty() {
		entry.Auth = base64.StdEncoding.EncodeToString([]byte(auth.Username + ":" + auth.Password))
	}
	auths[auth.Server] = entry

	rawAuths, err := json.Marshal(auths)
	if err != nil {
		return log.WrapErr(err, "failed to encode auths")
	}
	doc["auths"] = rawAuths

	data, err := json.MarshalIndent(doc, "", "\t")
	if err != nil {
		return log.WrapErr(err, "failed to encode docker config")
	}

	if err := s.files.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return log.WrapErr(err, "failed to create docker config directory")
	}
	if err := s.files.WriteFile(s.path, append(data, '\n'), 0o600); err != nil {
		return log.WrapErr(err, "failed to write docker config")
	}

	log.Info().Msg("registry credentials stored")
	return nil
}

// Lookup returns the credentials stored for server.
func (s *DockerConfig) Lookup(ctx context.Context, server string) (domain.RegistryAuth, bool, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "credstore",
		zerowrap.FieldAction:  "Lookup",
		"server":              server,
	})
	log := zerowrap.FromCtx(ctx)

	_, auths, err := s.load()
	if err != nil {
		return domain.RegistryAuth{}, false, log.WrapErr(err, "failed to load docker config")
	}

	entry, ok := auths[server]
	if !ok {
		return domain.RegistryAuth{}, false, nil
	}

	auth := domain.RegistryAuth{Server: server, IdentityToken: entry.IdentityToken}
	if entry.Auth != "" {
		decoded, err := base64.StdEncoding.DecodeString(entry.Auth)
		if err != nil {
			return domain.RegistryAuth{}, false, log.WrapErr(err, "stored auth is not base64")
		}
		user, pass, found := strings.Cut(string(decoded), ":")
		if !found {
			return domain.RegistryAuth{}, false, fmt.Errorf("stored auth for %s is malformed", server)
		}
		auth.Username, auth.Password = user, pass
	}
	return auth, true, nil
}

func (s *DockerConfig) load() (map[string]json.RawMessage, map[string]authEntry, error) {
	doc := map[string]json.RawMessage{}
	auths := map[string]authEntry{}

	data, err := s.files.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return doc, auths, nil
		}
		return nil, nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return doc, auths, nil
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if raw, ok := doc["auths"]; ok {
		if err := json.Unmarshal(raw, &auths); err != nil {
			return nil, nil, fmt.Errorf("parse auths in %s: %w", s.path, err)
		}
	}
	return doc, auths, nil
}
