// Package keyboard draws a one-line piano strip with the sounding pitches
// highlighted.
package keyboard

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/humanophone/humanophone/internal/theory"
	"github.com/humanophone/humanophone/internal/tui/theme"
)

// Default range covers C2 to C6.
const (
	DefaultLow  theory.Pitch = 36
	DefaultHigh theory.Pitch = 84
)

const (
	glyphHeld  = "■"
	glyphWhite = "□"
	glyphBlack = "▪"
)

var (
	styleHeld  = lipgloss.NewStyle().Foreground(theme.ColorKeyHeld)
	styleWhite = lipgloss.NewStyle().Foreground(theme.ColorKeyWhite)
	styleBlack = lipgloss.NewStyle().Foreground(theme.ColorKeyBlack)
)

func isBlack(p theory.Pitch) bool {
	switch p.Class() {
	case 1, 3, 6, 8, 10:
		return true
	}
	return false
}

// Range widens [DefaultLow, DefaultHigh] to whole octaves around notes.
func Range(notes theory.NoteSet) (lo, hi theory.Pitch) {
	lo, hi = DefaultLow, DefaultHigh
	for p := range notes {
		if p < lo {
			lo = p - theory.Pitch(p.Class())
		}
		if p > hi {
			hi = theory.Pitch(min(int(p)+11-p.Class(), int(theory.MaxPitch)))
		}
	}
	return lo, hi
}

// View renders the strip and an octave ruler under it.
func View(notes theory.NoteSet) string {
	lo, hi := Range(notes)

	var keys strings.Builder
	ruler := []byte(strings.Repeat(" ", int(hi-lo)+1))
	for p := lo; ; p++ {
		switch {
		case notes.Contains(p):
			keys.WriteString(styleHeld.Render(glyphHeld))
		case isBlack(p):
			keys.WriteString(styleBlack.Render(glyphBlack))
		default:
			keys.WriteString(styleWhite.Render(glyphWhite))
		}
		if p.Class() == 0 {
			copy(ruler[p-lo:], p.String())
		}
		if p == hi {
			break
		}
	}
	return keys.String() + "\n" + theme.StyleDimmed.Render(string(ruler))
}
