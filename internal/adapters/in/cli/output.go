package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bnema/hearth/internal/app"
	"github.com/bnema/hearth/internal/domain"
)

// Output formats accepted by --output.
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

func validateOutput(format string) error {
	switch format {
	case outputText, outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

// writeStructured encodes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("format %q is not structured", format)
	}
}

type stepDTO struct {
	Step       string   `json:"step" yaml:"step"`
	Outcome    string   `json:"outcome" yaml:"outcome"`
	DurationMS int64    `json:"duration_ms" yaml:"duration_ms"`
	Details    []string `json:"details,omitempty" yaml:"details,omitempty"`
}

type reportDTO struct {
	RunID     string    `json:"run_id" yaml:"run_id"`
	Started   time.Time `json:"started" yaml:"started"`
	ElapsedMS int64     `json:"elapsed_ms" yaml:"elapsed_ms"`
	Failed    bool      `json:"failed" yaml:"failed"`
	Degraded  bool      `json:"degraded" yaml:"degraded"`
	Steps     []stepDTO `json:"steps" yaml:"steps"`
	Error     string    `json:"error,omitempty" yaml:"error,omitempty"`
}

type unitDTO struct {
	Name   string `json:"name" yaml:"name"`
	Load   string `json:"load" yaml:"load"`
	Active string `json:"active" yaml:"active"`
	Sub    string `json:"sub" yaml:"sub"`
}

type fileDTO struct {
	Path    string `json:"path" yaml:"path"`
	Content string `json:"content" yaml:"content"`
}

type unitPreviewDTO struct {
	Name    string   `json:"name" yaml:"name"`
	Path    string   `json:"path" yaml:"path"`
	Content string   `json:"content" yaml:"content"`
	EnvFile string   `json:"env_file" yaml:"env_file"`
	EnvKeys []string `json:"env_keys" yaml:"env_keys"`
}

type previewDTO struct {
	ProxyConfig fileDTO          `json:"proxy_config" yaml:"proxy_config"`
	Units       []unitPreviewDTO `json:"units" yaml:"units"`
}

func toStepDTO(s domain.StepResult) stepDTO {
	return stepDTO{
		Step:       s.Step,
		Outcome:    string(s.Outcome),
		DurationMS: s.Duration.Milliseconds(),
		Details:    s.Details,
	}
}

func toReportDTO(r domain.Report, runErr error) reportDTO {
	dto := reportDTO{
		RunID:     r.RunID,
		Started:   r.Started,
		ElapsedMS: r.Elapsed.Milliseconds(),
		Failed:    r.Failed() || runErr != nil,
		Degraded:  r.Degraded(),
		Steps:     make([]stepDTO, 0, len(r.Steps)),
	}
	for _, s := range r.Steps {
		dto.Steps = append(dto.Steps, toStepDTO(s))
	}
	if runErr != nil {
		dto.Error = runErr.Error()
	}
	return dto
}

func toUnitDTOs(states []domain.UnitState) []unitDTO {
	out := make([]unitDTO, 0, len(states))
	for _, s := range states {
		out = append(out, unitDTO{Name: s.Name, Load: s.LoadState, Active: s.ActiveState, Sub: s.SubState})
	}
	return out
}

func toPreviewDTO(p app.Preview) previewDTO {
	dto := previewDTO{
		ProxyConfig: fileDTO{Path: p.ProxyConfigPath, Content: p.ProxyConfig},
		Units:       make([]unitPreviewDTO, 0, len(p.Units)),
	}
	for _, u := range p.Units {
		keys := u.EnvKeys
		if keys == nil {
			keys = []string{}
		}
		dto.Units = append(dto.Units, unitPreviewDTO{
			Name:    u.Name,
			Path:    u.Path,
			Content: u.Content,
			EnvFile: u.EnvPath,
			EnvKeys: keys,
		})
	}
	return dto
}
