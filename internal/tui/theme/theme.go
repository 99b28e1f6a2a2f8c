// Package theme provides the Lip Gloss palette and reusable styles for the
// consumer TUI. It is a leaf package with no internal imports.
package theme

import "github.com/charmbracelet/lipgloss"

// Event colors.
var (
	ColorChord   = lipgloss.Color("#a855f7")
	ColorPitches = lipgloss.Color("#06b6d4")
	ColorSilence = lipgloss.Color("#4b5563")
)

// Keyboard colors.
var (
	ColorKeyHeld  = lipgloss.Color("#f59e0b")
	ColorKeyWhite = lipgloss.Color("#e5e7eb")
	ColorKeyBlack = lipgloss.Color("#6b7280")
)

// Meter thresholds.
var (
	ColorMeterLow  = lipgloss.Color("#22c55e") // <50%
	ColorMeterMid  = lipgloss.Color("#d97706") // 50-80%
	ColorMeterHigh = lipgloss.Color("#dc2626") // >80%
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// MeterColor returns the color for an activity level in [0, 1].
func MeterColor(level float64) lipgloss.Color {
	switch {
	case level > 0.8:
		return ColorMeterHigh
	case level > 0.5:
		return ColorMeterMid
	default:
		return ColorMeterLow
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleChord = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorChord)
)
