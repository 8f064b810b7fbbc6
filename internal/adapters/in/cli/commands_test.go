package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/bnema/hearth/internal/adapters/in/cli/ui/components"
	"github.com/bnema/hearth/internal/app"
	"github.com/bnema/hearth/internal/domain"
)

type fakeKernel struct {
	report  domain.Report
	runErr  error
	down    domain.StepResult
	states  []domain.UnitState
	preview app.Preview
	downs   int
	closed  bool
}

func (k *fakeKernel) Run(context.Context) (domain.Report, error) {
	return k.report, k.runErr
}

func (k *fakeKernel) Status(context.Context) ([]domain.UnitState, error) {
	return k.states, nil
}

func (k *fakeKernel) Render(context.Context) (app.Preview, error) {
	return k.preview, nil
}

func (k *fakeKernel) Close() error {
	k.closed = true
	return nil
}

func (k *fakeKernel) Down(context.Context) (domain.StepResult, error) {
	k.downs++
	return k.down, nil
}

func useKernel(t *testing.T, k *fakeKernel) *app.Options {
	t.Helper()
	var got app.Options
	prev := openKernel
	openKernel = func(_ context.Context, opts app.Options) (kernel, error) {
		got = opts
		return k, nil
	}
	t.Cleanup(func() { openKernel = prev })
	return &got
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func sampleReport() domain.Report {
	return domain.Report{
		RunID:   "run-1",
		Started: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Elapsed: 2 * time.Second,
		Steps: []domain.StepResult{
			{Step: domain.StepDisk, Outcome: domain.OutcomeChanged, Details: []string{"formatted /dev/sdb as ext4"}, Duration: time.Second},
			{Step: domain.StepImages, Outcome: domain.OutcomeDegraded, Details: []string{"pull caddy:2 failed"}},
		},
	}
}

func TestRunCmd_TextReport(t *testing.T) {
	k := &fakeKernel{report: sampleReport()}
	opts := useKernel(t, k)

	out, err := execute(t, "run", "--config", "/tmp/h.toml", "--inputs", "/tmp/in.env")
	require.NoError(t, err)

	assert.Equal(t, app.Options{ConfigPath: "/tmp/h.toml", InputsPath: "/tmp/in.env"}, *opts)
	assert.Contains(t, out, "disk")
	assert.Contains(t, out, "formatted /dev/sdb as ext4")
	assert.Contains(t, out, "finished degraded")
	assert.True(t, k.closed)
}

func TestRunCmd_JSONIncludesError(t *testing.T) {
	report := sampleReport()
	report.Steps[0].Outcome = domain.OutcomeFailed
	useKernel(t, &fakeKernel{report: report, runErr: domain.ErrDeviceNotFound})

	out, err := execute(t, "run", "-o", "json")
	require.ErrorIs(t, err, domain.ErrDeviceNotFound)

	var dto reportDTO
	require.NoError(t, json.Unmarshal([]byte(out), &dto))
	assert.True(t, dto.Failed)
	assert.Equal(t, "run-1", dto.RunID)
	assert.Equal(t, int64(2000), dto.ElapsedMS)
	assert.Equal(t, domain.ErrDeviceNotFound.Error(), dto.Error)
	require.Len(t, dto.Steps, 2)
	assert.Equal(t, "failed", dto.Steps[0].Outcome)
}

func TestRunCmd_YAML(t *testing.T) {
	useKernel(t, &fakeKernel{report: sampleReport()})

	out, err := execute(t, "run", "--output", "yaml")
	require.NoError(t, err)

	var dto reportDTO
	require.NoError(t, yaml.Unmarshal([]byte(out), &dto))
	assert.True(t, dto.Degraded)
	assert.Equal(t, "image-prefetch", dto.Steps[1].Step)
}

func TestRunCmd_UnknownOutput(t *testing.T) {
	useKernel(t, &fakeKernel{})
	_, err := execute(t, "run", "-o", "xml")
	assert.ErrorContains(t, err, "xml")
}

func TestRunCmd_KernelError(t *testing.T) {
	prev := openKernel
	openKernel = func(context.Context, app.Options) (kernel, error) { return nil, domain.ErrInvalidConfig }
	t.Cleanup(func() { openKernel = prev })

	_, err := execute(t, "run")
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestStatusCmd(t *testing.T) {
	useKernel(t, &fakeKernel{states: []domain.UnitState{
		{Name: "hearth-app.service", LoadState: "loaded", ActiveState: "active", SubState: "running"},
	}})

	out, err := execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "hearth-app.service")

	out, err = execute(t, "status", "-o", "json")
	require.NoError(t, err)
	var units []unitDTO
	require.NoError(t, json.Unmarshal([]byte(out), &units))
	assert.Equal(t, []unitDTO{{Name: "hearth-app.service", Load: "loaded", Active: "active", Sub: "running"}}, units)
}

func TestRenderCmd_HidesEnvValues(t *testing.T) {
	useKernel(t, &fakeKernel{preview: app.Preview{
		ProxyConfigPath: "/mnt/disks/data/caddy/Caddyfile",
		ProxyConfig:     "app.example.com {\n}\n",
		Units: []app.RenderedUnit{{
			Name:    "hearth-ddns.service",
			Path:    "/etc/systemd/system/hearth-ddns.service",
			Content: "[Unit]\n",
			EnvPath: "/etc/hearth/env/ddns.env",
			EnvKeys: []string{"SUBDOMAINS", "TOKEN"},
		}},
	}})

	out, err := execute(t, "render")
	require.NoError(t, err)
	assert.Contains(t, out, "/mnt/disks/data/caddy/Caddyfile")
	assert.Contains(t, out, "app.example.com {")
	assert.Contains(t, out, "SUBDOMAINS, TOKEN (values hidden)")

	out, err = execute(t, "render", "-o", "json")
	require.NoError(t, err)
	var dto previewDTO
	require.NoError(t, json.Unmarshal([]byte(out), &dto))
	assert.Equal(t, "/etc/hearth/env/ddns.env", dto.Units[0].EnvFile)
}

func TestDownCmd_RequiresYesWithoutTerminal(t *testing.T) {
	k := &fakeKernel{}
	useKernel(t, k)
	prev := stdinIsTerminal
	stdinIsTerminal = func() bool { return false }
	t.Cleanup(func() { stdinIsTerminal = prev })

	_, err := execute(t, "down")
	assert.ErrorContains(t, err, "--yes")
	assert.Zero(t, k.downs)

	out, err := execute(t, "down", "--yes")
	require.NoError(t, err)
	assert.Equal(t, 1, k.downs)
	assert.Contains(t, out, "hearth down")
}

func TestDownCmd_ConfirmDeclined(t *testing.T) {
	k := &fakeKernel{}
	useKernel(t, k)
	prevTTY, prevConfirm := stdinIsTerminal, confirm
	stdinIsTerminal = func() bool { return true }
	confirm = func(string, ...components.ConfirmOption) (bool, error) { return false, nil }
	t.Cleanup(func() { stdinIsTerminal, confirm = prevTTY, prevConfirm })

	out, err := execute(t, "down")
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled")
	assert.Zero(t, k.downs)
}

func TestWatchCmd_ReportsEveryRun(t *testing.T) {
	prev := runWatch
	runWatch = func(ctx context.Context, opts app.Options, debounce time.Duration, handle app.RunHandler) error {
		assert.Equal(t, 5*time.Second, debounce)
		handle(sampleReport(), nil)
		handle(domain.Report{}, errors.New("inputs unreadable"))
		return nil
	}
	t.Cleanup(func() { runWatch = prev })

	out, err := execute(t, "watch", "--debounce", "5s")
	require.NoError(t, err)
	assert.Contains(t, out, "formatted /dev/sdb as ext4")
	assert.Contains(t, out, "inputs unreadable")
}

func TestVersionCmd(t *testing.T) {
	SetVersionInfo("1.2.3", "abc", "")
	t.Cleanup(func() { SetVersionInfo("dev", "unknown", "unknown") })

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "hearth 1.2.3")
	assert.Contains(t, out, "Commit: abc")
}
