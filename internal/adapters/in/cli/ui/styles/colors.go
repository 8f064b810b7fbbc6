// Package styles provides the terminal styling used by hearth's CLI output.
package styles

import "github.com/charmbracelet/lipgloss"

// Palette. Neon tones read well on the dark serial consoles most VMs expose.
var (
	Ember500 = lipgloss.Color("#ff8a3d")
	Ember700 = lipgloss.Color("#c2410c")

	Neutral200 = lipgloss.Color("#e5e5e5")
	Neutral500 = lipgloss.Color("#737373")
	Neutral700 = lipgloss.Color("#404040")
	Neutral800 = lipgloss.Color("#262626")

	NeonGreen  = lipgloss.Color("#00ff88")
	NeonCyan   = lipgloss.Color("#00ccff")
	NeonRed    = lipgloss.Color("#ff4444")
	NeonYellow = lipgloss.Color("#fbbf24")

	// Semantic colors
	ColorPrimary = Ember500
	ColorSuccess = NeonGreen
	ColorWarning = NeonYellow
	ColorError   = NeonRed
	ColorInfo    = NeonCyan

	ColorText      = Neutral200
	ColorTextMuted = Neutral500
	ColorBg        = lipgloss.Color("#000000")
	ColorBgMuted   = Neutral800
	ColorBorder    = Neutral700
)
