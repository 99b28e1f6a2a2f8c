package status

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/humanophone/humanophone/internal/tui/theme"
)

// Model holds the status bar state.
type Model struct {
	Connected bool
	URL       string
	Events    int
	Attempt   int
	RetryIn   time.Duration
	LastError string
	Width     int
}

// New creates a status bar model.
func New(url string) Model {
	return Model{URL: url}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	switch {
	case m.Connected:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	case m.Attempt > 0:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorWarning).Render(
			fmt.Sprintf("○ Reconnecting in %s (attempt %d)", m.RetryIn.Round(time.Millisecond), m.Attempt))
	default:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + m.URL + sep + fmt.Sprintf("%d events", m.Events)
	if !m.Connected && m.LastError != "" {
		content += sep + theme.StyleDimmed.Render(m.LastError)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
