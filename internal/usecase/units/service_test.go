package units

import (
	"context"
	"testing"

	"github.com/bnema/zerowrap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/hearth/internal/domain"
)

func testContext() context.Context {
	return zerowrap.WithCtx(context.Background(), zerowrap.Default())
}

func testConfig() Config {
	return Config{
		Network:         "hearth",
		DataDir:         "/mnt/disks/data",
		ProxyConfigPath: "/etc/hearth/Caddyfile",
		App:             AppConfig{Name: "app", Image: "ghcr.io/acme/app:1.2", Port: 8501, DataTarget: "/app/data", Env: map[string]string{"MODE": "prod"}},
		Proxy:           ProxyConfig{Name: "caddy", Image: "caddy:2", Ports: []string{"80:80", "443:443", "443:443/udp"}},
		DDNS:            DDNSConfig{Name: "ddns", Image: "lscr.io/linuxserver/duckdns:latest", Subdomain: "myhost", Token: "tok"},
	}
}

func option(t *testing.T, u domain.UnitFile, section, name string) []string {
	t.Helper()
	var values []string
	for _, o := range u.Options {
		if o.Section == section && o.Name == name {
			values = append(values, o.Value)
		}
	}
	return values
}

func TestService_Definitions(t *testing.T) {
	svc := NewService(testConfig())

	defs, err := svc.Definitions(testContext())
	require.NoError(t, err)
	require.Len(t, defs, 3)

	app, proxy, ddns := defs[0], defs[1], defs[2]

	assert.Equal(t, "app", app.Name)
	assert.Equal(t, []domain.PortBinding{{HostIP: "127.0.0.1", HostPort: "8501", ContainerPort: "8501", Protocol: "tcp"}}, app.Ports)
	assert.Equal(t, "/mnt/disks/data/app", app.Volumes[0].Source)
	assert.Empty(t, app.DependsOn)

	assert.Equal(t, []string{"app"}, proxy.DependsOn)
	assert.Len(t, proxy.Ports, 3)
	assert.Equal(t, "udp", proxy.Ports[2].Protocol)
	assert.True(t, proxy.Volumes[0].ReadOnly)
	assert.Equal(t, "/etc/caddy/Caddyfile", proxy.Volumes[0].Target)

	assert.Equal(t, "myhost", ddns.Env["SUBDOMAINS"])
	assert.Equal(t, "tok", ddns.Env["TOKEN"])
	assert.Empty(t, ddns.DependsOn)

	for _, d := range defs {
		assert.Equal(t, domain.RestartAlways, d.Restart)
		assert.Equal(t, "hearth", d.Network)
	}
}

func TestService_Definitions_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"missing ddns token", func(c *Config) { c.DDNS.Token = "" }},
		{"bad app port", func(c *Config) { c.App.Port = 70000 }},
		{"bad proxy port", func(c *Config) { c.Proxy.Ports = []string{"80:eighty"} }},
		{"no host port", func(c *Config) { c.Proxy.Ports = []string{"80"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(&cfg)

			_, err := NewService(cfg).Definitions(testContext())
			assert.ErrorIs(t, err, domain.ErrInvalidConfig)
		})
	}
}

func TestService_Synthesize(t *testing.T) {
	svc := NewService(testConfig())

	units, result, err := svc.Synthesize(testContext())
	require.NoError(t, err)
	require.Len(t, units, 3)

	assert.Equal(t, domain.StepUnits, result.Step)
	assert.Equal(t, domain.OutcomeUnchanged, result.Outcome)

	app, proxy := units[0], units[1]
	assert.Equal(t, "hearth-app.service", app.Name)
	assert.Equal(t, "app", app.Service)
	assert.Empty(t, app.After)
	assert.Equal(t, []string{"hearth-app.service"}, proxy.After)

	assert.Equal(t, []string{"docker.service network-online.target hearth-app.service"}, option(t, proxy, "Unit", "After"))
	assert.Equal(t, []string{"network-online.target hearth-app.service"}, option(t, proxy, "Unit", "Wants"))
	assert.Equal(t, []string{"docker.service"}, option(t, app, "Unit", "Requires"))

	assert.Equal(t, []string{"-/etc/hearth/env/app.env"}, option(t, app, "Service", "EnvironmentFile"))
	assert.Equal(t, []string{"-/usr/bin/docker rm -f app"}, option(t, app, "Service", "ExecStartPre"))
	assert.Equal(t, []string{
		"/usr/bin/docker run --name app --network hearth --label hearth.managed=true " +
			"-p 127.0.0.1:8501:8501/tcp -v /mnt/disks/data/app:/app/data -e MODE ghcr.io/acme/app:1.2",
	}, option(t, app, "Service", "ExecStart"))
	assert.Equal(t, []string{"/usr/bin/docker stop -t 10 app"}, option(t, app, "Service", "ExecStop"))
	assert.Equal(t, []string{"always"}, option(t, app, "Service", "Restart"))
	assert.Equal(t, []string{"5"}, option(t, app, "Service", "RestartSec"))
	assert.Equal(t, []string{"multi-user.target"}, option(t, app, "Install", "WantedBy"))

	assert.Equal(t, map[string]string{"MODE": "prod"}, app.Env)
}

func TestService_Synthesize_SecretsStayOutOfUnit(t *testing.T) {
	units, _, err := NewService(testConfig()).Synthesize(testContext())
	require.NoError(t, err)

	ddns := units[2]
	for _, o := range ddns.Options {
		assert.NotContains(t, o.Value, "tok", "%s=%s", o.Name, o.Value)
	}
	assert.Equal(t, "tok", ddns.Env["TOKEN"])
}

func TestService_Synthesize_Deterministic(t *testing.T) {
	cfg := testConfig()
	cfg.App.Env = map[string]string{"Z": "1", "A": "2", "M": "3"}

	first, _, err := NewService(cfg).Synthesize(testContext())
	require.NoError(t, err)
	second, _, err := NewService(cfg).Synthesize(testContext())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, option(t, first[0], "Service", "ExecStart")[0], "-e A -e M -e Z")
}

func TestService_DataDirsMatchMountedVolumes(t *testing.T) {
	cfg := testConfig()
	cfg.App.Name = "roleradar"
	cfg.DDNS.Name = "duckdns"
	svc := NewService(cfg)

	assert.Equal(t, []string{"roleradar", "caddy/data", "caddy/config", "duckdns"}, svc.DataDirs())

	defs, err := svc.Definitions(testContext())
	require.NoError(t, err)

	var mounted []string
	for _, d := range defs {
		for _, v := range d.Volumes {
			if !v.ReadOnly {
				mounted = append(mounted, v.Source)
			}
		}
	}
	var prepared []string
	for _, dir := range svc.DataDirs() {
		prepared = append(prepared, cfg.DataDir+"/"+dir)
	}
	assert.ElementsMatch(t, prepared, mounted)
}

func TestService_Render_Validation(t *testing.T) {
	base := domain.ServiceDefinition{Name: "web", Image: "nginx:1", Restart: domain.RestartAlways}

	tests := []struct {
		name    string
		defs    func() []domain.ServiceDefinition
		wantErr error
	}{
		{"bad name", func() []domain.ServiceDefinition {
			d := base
			d.Name = "Web!"
			return []domain.ServiceDefinition{d}
		}, domain.ErrInvalidConfig},
		{"bad image", func() []domain.ServiceDefinition {
			d := base
			d.Image = "UPPER::bad"
			return []domain.ServiceDefinition{d}
		}, domain.ErrInvalidImageFormat},
		{"unknown dependency", func() []domain.ServiceDefinition {
			d := base
			d.DependsOn = []string{"db"}
			return []domain.ServiceDefinition{d}
		}, domain.ErrUnknownService},
		{"duplicate", func() []domain.ServiceDefinition { return []domain.ServiceDefinition{base, base} }, domain.ErrInvalidConfig},
		{"bad env key", func() []domain.ServiceDefinition {
			d := base
			d.Env = map[string]string{"1BAD": "x"}
			return []domain.ServiceDefinition{d}
		}, domain.ErrInvalidConfig},
		{"relative volume", func() []domain.ServiceDefinition {
			d := base
			d.Volumes = []domain.VolumeMount{{Source: "data", Target: "/data"}}
			return []domain.ServiceDefinition{d}
		}, domain.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewService(testConfig()).Render(tt.defs())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestQuoteArg(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"50%", "50%%"},
		{"$HOME", "$$HOME"},
		{"two words", `"two words"`},
		{`say "hi"`, `"say \"hi\""`},
		{"", `""`},
		{";", `";"`},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, quoteArg(tt.in), tt.in)
	}
}

func TestPublishSpec(t *testing.T) {
	assert.Equal(t, "80:80/tcp", publishSpec(domain.PortBinding{HostPort: "80", ContainerPort: "80"}))
	assert.Equal(t, "[::1]:8080:80/tcp", publishSpec(domain.PortBinding{HostIP: "::1", HostPort: "8080", ContainerPort: "80", Protocol: "tcp"}))
}
