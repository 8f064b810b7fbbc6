package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bnema/hearth/internal/adapters/in/cli/ui/components"
	"github.com/bnema/hearth/internal/adapters/in/cli/ui/styles"
	"github.com/bnema/hearth/internal/domain"
)

var cliWriteLine = func(w io.Writer, msg string) error {
	_, err := fmt.Fprintln(w, msg)
	return err
}

func cliRenderTitle(msg string) string {
	return styles.Theme.Title.Render(msg)
}

func cliRenderMuted(msg string) string {
	return styles.Theme.Muted.Render(msg)
}

func cliRenderMeta(label, value string) string {
	return styles.Theme.Bold.Render(label) + " " + styles.Theme.Muted.Render(value)
}

func cliRenderSuccess(msg string) string {
	return styles.RenderSuccess(msg)
}

func cliRenderWarning(msg string) string {
	return styles.RenderWarning(msg)
}

func cliRenderError(msg string) string {
	return styles.RenderError(msg)
}

func roundDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return d.Round(100 * time.Millisecond).String()
	case d >= time.Millisecond:
		return d.Round(time.Millisecond).String()
	default:
		return d.String()
	}
}

// renderReport draws the run summary: one table row per step plus a verdict.
func renderReport(w io.Writer, report domain.Report) error {
	rows := make([][]string, 0, len(report.Steps))
	for _, s := range report.Steps {
		rows = append(rows, []string{
			s.Step,
			styles.RenderBadge(string(s.Outcome)),
			roundDuration(s.Duration),
			strings.Join(s.Details, "; "),
		})
	}

	lines := []string{
		cliRenderTitle("hearth run") + " " + cliRenderMuted(report.RunID),
		components.ReportTable(rows),
	}
	elapsed := roundDuration(report.Elapsed)
	switch {
	case report.Failed():
		lines = append(lines, cliRenderError("bootstrap aborted after "+elapsed))
	case report.Degraded():
		lines = append(lines, cliRenderWarning("bootstrap finished degraded in "+elapsed))
	default:
		lines = append(lines, cliRenderSuccess("bootstrap finished in "+elapsed))
	}
	return cliWriteLine(w, strings.Join(lines, "\n"))
}

func renderUnits(w io.Writer, states []domain.UnitState) error {
	rows := make([][]string, 0, len(states))
	for _, s := range states {
		rows = append(rows, []string{s.Name, s.LoadState, styles.RenderBadge(s.ActiveState), s.SubState})
	}
	return cliWriteLine(w, components.UnitTable(rows))
}

func renderStep(w io.Writer, title string, result domain.StepResult) error {
	lines := []string{cliRenderTitle(title) + " " + styles.RenderBadge(string(result.Outcome))}
	for _, d := range result.Details {
		lines = append(lines, styles.RenderListItem(d))
	}
	return cliWriteLine(w, strings.Join(lines, "\n"))
}

func renderPreview(w io.Writer, p previewDTO) error {
	var b strings.Builder
	b.WriteString(cliRenderMeta("#", p.ProxyConfig.Path) + "\n")
	b.WriteString(p.ProxyConfig.Content)
	for _, u := range p.Units {
		b.WriteString("\n" + cliRenderMeta("#", u.Path) + "\n")
		b.WriteString(u.Content)
		if len(u.EnvKeys) > 0 {
			b.WriteString(cliRenderMeta("# env", u.EnvFile) + " " +
				cliRenderMuted(strings.Join(u.EnvKeys, ", ")+" (values hidden)") + "\n")
		}
	}
	return cliWriteLine(w, strings.TrimRight(b.String(), "\n"))
}
