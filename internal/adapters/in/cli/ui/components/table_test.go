package components

import (
	"regexp"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableRender_AppliesConfiguredColumnWidth(t *testing.T) {
	tableModel := NewTable(
		WithColumns([]TableColumn{{Title: "ID", Width: 5}}),
		WithRows([][]string{{"abc"}}),
		WithHeaderStyle(lipgloss.NewStyle()),
		WithCellStyle(lipgloss.NewStyle()),
	)

	rendered := stripANSI(tableModel.Render())
	lines := strings.Split(rendered, "\n")

	var rowLine string
	for _, line := range lines {
		if strings.Contains(line, "abc") {
			rowLine = line
			break
		}
	}

	require.NotEmpty(t, rowLine)
	assert.Contains(t, rowLine, "abc  ")
}

func TestTableRender_TruncatesLongCellTextWithEllipsis(t *testing.T) {
	tableModel := NewTable(
		WithColumns([]TableColumn{{Title: "ID", Width: 5}}),
		WithRows([][]string{{"abcdef"}}),
		WithHeaderStyle(lipgloss.NewStyle()),
		WithCellStyle(lipgloss.NewStyle()),
	)

	rendered := stripANSI(tableModel.Render())
	assert.Contains(t, rendered, "ab...")
	assert.NotContains(t, rendered, "abcdef")
}

func TestTruncateCell_LeavesShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "abc", truncateCell("abc", 5))
}

func TestTruncateCell_EdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		maxWidth int
		expected string
	}{
		{name: "zero width passthrough", value: "abcdef", maxWidth: 0, expected: "abcdef"},
		{name: "width three all dots", value: "abcdef", maxWidth: 3, expected: "..."},
		{name: "ascii truncates", value: "abcdef", maxWidth: 5, expected: "ab..."},
		{name: "cjk truncates by display width", value: "ä½ å¥½ä¸–ç•Œ", maxWidth: 5, expected: "ä½ ..."},
		{name: "grapheme-safe emoji truncation", value: "ðŸ‘¨â€ðŸ‘©â€ðŸ‘§â€ðŸ‘¦abcd", maxWidth: 5, expected: "ðŸ‘¨â€ðŸ‘©â€ðŸ‘§â€ðŸ‘¦..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateCell(tt.value, tt.maxWidth)
			assert.Equal(t, tt.expected, got)
			if tt.maxWidth > 0 {
				assert.LessOrEqual(t, runewidth.StringWidth(got), tt.maxWidth)
			}
		})
	}
}

func TestTruncateCell_AnsiInputPassthrough(t *testing.T) {
	styled := "\x1b[32mactive\x1b[0m"
	got := truncateCell(styled, 3)
	assert.Equal(t, styled, got)
	assert.Contains(t, got, "\x1b[")
}

func TestReportTable_RendersStepRows(t *testing.T) {
	rendered := stripANSI(ReportTable([][]string{
		{"disk", "changed", "1.2s", "formatted /dev/sdb as ext4"},
		{"network", "unchanged", "15ms", ""},
	}))
	for _, want := range []string{"Step", "Outcome", "disk", "changed", "network", "formatted /dev/sdb as ext4"} {
		assert.Contains(t, rendered, want)
	}
}

func TestUnitTable_Empty(t *testing.T) {
	rendered := stripANSI(UnitTable(nil))
	assert.Contains(t, rendered, "Unit")
	assert.Contains(t, rendered, "Active")
}

func TestConfirmModel_Keys(t *testing.T) {
	m := NewConfirm("Remove units?")
	assert.Contains(t, stripANSI(m.View()), "Remove units?")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.NotNil(t, cmd)
	assert.False(t, next.(ConfirmModel).Confirmed(), "no is the default")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	assert.True(t, next.(ConfirmModel).Confirmed())

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	next, _ = next.(ConfirmModel).Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, next.(ConfirmModel).Confirmed())
}

func stripANSI(input string) string {
	ansiPattern := regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)
	return ansiPattern.ReplaceAllString(input, "")
}
