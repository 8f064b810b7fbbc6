package components

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/hearth/internal/adapters/in/cli/ui/styles"
)

// ConfirmModel is a Yes/No confirmation prompt. No is focused by default.
type ConfirmModel struct {
	question    string
	description string
	focused     bool // true = Yes
	answered    bool
	confirmed   bool
}

// ConfirmOption configures a ConfirmModel.
type ConfirmOption func(*ConfirmModel)

// NewConfirm creates a new confirmation prompt.
func NewConfirm(question string, opts ...ConfirmOption) ConfirmModel {
	m := ConfirmModel{question: question}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// WithDescription adds a description below the question.
func WithDescription(desc string) ConfirmOption {
	return func(m *ConfirmModel) {
		m.description = desc
	}
}

// Init implements tea.Model.
func (m ConfirmModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "left", "right", "h", "l", "tab", "shift+tab":
		m.focused = !m.focused
	case "y", "Y":
		m.answered, m.confirmed = true, true
		return m, tea.Quit
	case "n", "N", "esc", "ctrl+c", "q":
		m.answered, m.confirmed = true, false
		return m, tea.Quit
	case "enter":
		m.answered, m.confirmed = true, m.focused
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m ConfirmModel) View() string {
	if m.answered {
		return ""
	}

	button := lipgloss.NewStyle().Padding(0, 2).Foreground(styles.ColorText)
	focused := lipgloss.NewStyle().Padding(0, 2).Bold(true).
		Foreground(styles.ColorBg).Background(styles.ColorPrimary)

	yes, no := button.Render("Yes"), focused.Render("No")
	if m.focused {
		yes, no = focused.Render("Yes"), button.Render("No")
	}

	var b strings.Builder
	b.WriteString(styles.Theme.Bold.Render(m.question) + "\n")
	if m.description != "" {
		b.WriteString(styles.Theme.Muted.Render(m.description) + "\n")
	}
	b.WriteString("\n" + lipgloss.JoinHorizontal(lipgloss.Center, yes, "  ", no) + "\n\n")
	b.WriteString(styles.RenderKeyHelp("y/n", "select") + "  " + styles.RenderKeyHelp("enter", "confirm"))
	return b.String()
}

// Confirmed returns true if the user answered yes.
func (m ConfirmModel) Confirmed() bool {
	return m.confirmed
}

// RunConfirm shows the prompt and blocks until it is answered.
func RunConfirm(question string, opts ...ConfirmOption) (bool, error) {
	final, err := tea.NewProgram(NewConfirm(question, opts...)).Run()
	if err != nil {
		return false, fmt.Errorf("error running confirmation: %w", err)
	}
	return final.(ConfirmModel).Confirmed(), nil
}
