package docker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/docker/docker/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/hearth/internal/domain"
)

func testContext() context.Context {
	return zerowrap.WithCtx(context.Background(), zerowrap.Default())
}

func newTestRuntime(t *testing.T, handler http.HandlerFunc) *Runtime {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	host := strings.TrimPrefix(server.URL, "http://")
	cli, err := client.NewClientWithOpts(client.WithHost("tcp://"+host), client.WithVersion("1.41"), client.WithHTTPClient(server.Client()))
	require.NoError(t, err)

	return NewRuntimeWithClient(cli, 500*time.Millisecond)
}

func TestRuntime_NetworkExists(t *testing.T) {
	runtime := newTestRuntime(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1.41/networks/hearth", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Id":"n1","Name":"hearth","Driver":"bridge"}`))
	})

	exists, err := runtime.NetworkExists(testContext(), "hearth")

	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRuntime_NetworkExists_NotFound(t *testing.T) {
	runtime := newTestRuntime(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"network hearth not found"}`))
	})

	exists, err := runtime.NetworkExists(testContext(), "hearth")

	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRuntime_CreateNetwork(t *testing.T) {
	runtime := newTestRuntime(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1.41/networks/create", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hearth", body["Name"])
		assert.Equal(t, "bridge", body["Driver"])
		labels, _ := body["Labels"].(map[string]any)
		assert.Equal(t, "true", labels[domain.LabelManaged])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"Id":"n1"}`))
	})

	err := runtime.CreateNetwork(testContext(), "hearth", nil)

	assert.NoError(t, err)
}

func TestRuntime_CreateNetwork_Conflict(t *testing.T) {
	runtime := newTestRuntime(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"network with name hearth already exists"}`))
	})

	err := runtime.CreateNetwork(testContext(), "hearth", map[string]string{"driver": "bridge"})

	assert.ErrorIs(t, err, domain.ErrNetworkExists)
}

func TestRuntime_CreateNetwork_ServerError(t *testing.T) {
	runtime := newTestRuntime(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	})

	err := runtime.CreateNetwork(testContext(), "hearth", nil)

	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNetworkExists)
}

func TestRuntime_PullImageWithAuth(t *testing.T) {
	var gotAuth string
	runtime := newTestRuntime(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1.41/images/create", r.URL.Path)
		assert.Equal(t, "ghcr.io/acme/app", r.URL.Query().Get("fromImage"))
		assert.Equal(t, "v1", r.URL.Query().Get("tag"))
		gotAuth = r.Header.Get("X-Registry-Auth")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"Pulling from acme/app"}` + "\n" + `{"status":"Downloaded newer image"}`))
	})

	err := runtime.PullImageWithAuth(testContext(), "ghcr.io/acme/app:v1", domain.RegistryAuth{
		Server:   "ghcr.io",
		Username: "bot",
		Password: "secret",
	})
	require.NoError(t, err)
	require.NotEmpty(t, gotAuth)

	raw, err := base64.URLEncoding.DecodeString(gotAuth)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "bot", decoded["username"])
	assert.Equal(t, "ghcr.io", decoded["serveraddress"])
}

func TestRuntime_PullImage_Anonymous(t *testing.T) {
	runtime := newTestRuntime(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("X-Registry-Auth"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	assert.NoError(t, runtime.PullImage(testContext(), "caddy:2"))
}

func TestRuntime_PullImage_Failure(t *testing.T) {
	runtime := newTestRuntime(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"manifest unknown"}`))
	})

	err := runtime.PullImage(testContext(), "caddy:nope")

	assert.ErrorIs(t, err, domain.ErrImagePullFailed)
}

func TestRuntime_PullImage_ErrorInProgressStream(t *testing.T) {
	runtime := newTestRuntime(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"Pulling from library/caddy"}` + "\n" +
			`{"errorDetail":{"message":"toomanyrequests: rate limit exceeded"},"error":"toomanyrequests: rate limit exceeded"}` + "\n"))
	})

	err := runtime.PullImage(testContext(), "caddy:2")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrImagePullFailed)
	assert.NotErrorIs(t, err, domain.ErrUnauthorized)
	assert.Contains(t, err.Error(), "toomanyrequests")
}

func TestRuntime_PullImage_UnauthorizedInProgressStream(t *testing.T) {
	runtime := newTestRuntime(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"errorDetail":{"code":401,"message":"unauthorized: authentication required"},"error":"unauthorized: authentication required"}` + "\n"))
	})

	err := runtime.PullImage(testContext(), "ghcr.io/acme/private:v1")

	assert.ErrorIs(t, err, domain.ErrImagePullFailed)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRuntime_RegistryLogin(t *testing.T) {
	runtime := newTestRuntime(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1.41/auth", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "bot", body["username"])
		assert.Equal(t, "ghcr.io", body["serveraddress"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Status":"Login Succeeded","IdentityToken":"tok-123"}`))
	})

	token, err := runtime.RegistryLogin(testContext(), domain.RegistryAuth{
		Server:   "ghcr.io",
		Username: "bot",
		Password: "secret",
	})

	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)
}

func TestRuntime_RegistryLogin_Rejected(t *testing.T) {
	runtime := newTestRuntime(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"incorrect username or password"}`))
	})

	_, err := runtime.RegistryLogin(testContext(), domain.RegistryAuth{
		Server:   "ghcr.io",
		Username: "bot",
		Password: "wrong",
	})

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRuntime_RegistryLogin_MissingCredentials(t *testing.T) {
	runtime := newTestRuntime(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("daemon must not be contacted without credentials")
	})

	_, err := runtime.RegistryLogin(testContext(), domain.RegistryAuth{Server: "ghcr.io", Username: "bot"})

	assert.ErrorIs(t, err, domain.ErrCredentialsNotSet)
}

func TestRuntime_WaitReady(t *testing.T) {
	runtime := newTestRuntime(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_ping", r.URL.Path)
		w.Header().Set("API-Version", "1.41")
		_, _ = w.Write([]byte("OK"))
	})

	assert.NoError(t, runtime.WaitReady(testContext()))
}

func TestRuntime_WaitReady_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	host := strings.TrimPrefix(server.URL, "http://")
	server.Close()

	cli, err := client.NewClientWithOpts(client.WithHost("tcp://"+host), client.WithVersion("1.41"))
	require.NoError(t, err)
	runtime := NewRuntimeWithClient(cli, 300*time.Millisecond)

	err = runtime.WaitReady(testContext())

	assert.ErrorIs(t, err, domain.ErrEngineNotReady)
}
