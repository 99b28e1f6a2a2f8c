// Package app is the consumer terminal UI: a Bubble Tea model showing the
// connection state and the chord or pitches currently sounding.
package app

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/humanophone/humanophone/internal/protocol"
	"github.com/humanophone/humanophone/internal/theory"
	"github.com/humanophone/humanophone/internal/tui/theme"
	"github.com/humanophone/humanophone/internal/tui/views/keyboard"
	"github.com/humanophone/humanophone/internal/tui/views/status"
)

const (
	fps        = 30
	meterWidth = 30
	meterDecay = 0.85
	meterFloor = 0.01
	springFreq = 6.0
	springDamp = 0.6
)

// EventMsg carries a relay event into the model.
type EventMsg struct {
	Event protocol.Message
}

// ConnectedMsg reports that the client has identified with the relay.
type ConnectedMsg struct{}

// RetryMsg reports a lost connection and the pause before the next attempt.
type RetryMsg struct {
	Attempt int
	Err     error
	Delay   time.Duration
}

type frameMsg time.Time

// Model is the root Bubble Tea model.
type Model struct {
	keys   KeyMap
	width  int
	height int

	statusBar status.Model

	// What is sounding now; nil after silence.
	current protocol.Message
	notes   theory.NoteSet
	history []string

	showKeyboard bool

	// Activity meter: each event raises the target and the spring chases it.
	spring harmonica.Spring
	target float64
	level  float64
	vel    float64
}

// New creates the root model for a consumer of url.
func New(url string) Model {
	return Model{
		keys:         DefaultKeyMap(),
		statusBar:    status.New(url),
		showKeyboard: true,
		spring:       harmonica.NewSpring(harmonica.FPS(fps), springFreq, springDamp),
	}
}

// Init starts the animation clock.
func (m Model) Init() tea.Cmd {
	return frame()
}

func frame() tea.Cmd {
	return tea.Tick(time.Second/fps, func(t time.Time) tea.Msg { return frameMsg(t) })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ConnectedMsg:
		m.statusBar.Connected = true
		m.statusBar.Attempt = 0
		m.statusBar.LastError = ""
		return m, nil

	case RetryMsg:
		m.statusBar.Connected = false
		m.statusBar.Attempt = msg.Attempt
		m.statusBar.RetryIn = msg.Delay
		if msg.Err != nil {
			m.statusBar.LastError = msg.Err.Error()
		}
		return m, nil

	case EventMsg:
		m.apply(msg.Event)
		return m, nil

	case frameMsg:
		m.level, m.vel = m.spring.Update(m.level, m.vel, m.target)
		m.target *= meterDecay
		if m.target < meterFloor {
			m.target = 0
		}
		return m, frame()
	}

	return m, nil
}

func (m *Model) apply(ev protocol.Message) {
	m.statusBar.Events++
	switch e := ev.(type) {
	case protocol.ChordEvent:
		m.current = e
		m.notes = e.Chord.Notes
		m.remember(e.Chord.Name())
		m.target = 1
	case protocol.PitchesEvent:
		m.current = e
		m.notes = e.Pitches
		m.remember(e.Pitches.String())
		m.target = 1
	case protocol.Silence:
		m.current = nil
		m.notes = nil
	}
}

const historySize = 8

func (m *Model) remember(s string) {
	m.history = append(m.history, s)
	if len(m.history) > historySize {
		m.history = m.history[len(m.history)-historySize:]
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Keyboard):
		m.showKeyboard = !m.showKeyboard
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		m.history = nil
		m.statusBar.Events = 0
		return m, nil
	}
	return m, nil
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	sections := []string{
		m.statusBar.View(),
		m.renderNow(),
	}
	if m.showKeyboard {
		sections = append(sections, keyboard.View(m.notes))
	}
	sections = append(sections,
		m.renderMeter(),
		m.renderHistory(),
		theme.StyleDimmed.Render("  k:keyboard  c:clear  q:quit"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderNow() string {
	var body string
	switch e := m.current.(type) {
	case protocol.ChordEvent:
		body = theme.StyleChord.Render(e.Chord.Name()) + "  " +
			theme.StyleDimmed.Render(e.Chord.Notes.String())
	case protocol.PitchesEvent:
		body = lipgloss.NewStyle().Foreground(theme.ColorPitches).Render(e.Pitches.String())
	default:
		body = lipgloss.NewStyle().Foreground(theme.ColorSilence).Render("silence")
	}
	return theme.StyleBorder.Padding(0, 2).Render(body)
}

func (m Model) renderMeter() string {
	level := m.level
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	filled := int(level * meterWidth)
	bar := lipgloss.NewStyle().Foreground(theme.MeterColor(level)).Render(strings.Repeat("█", filled)) +
		theme.StyleDimmed.Render(strings.Repeat("░", meterWidth-filled))
	return "  activity " + bar
}

func (m Model) renderHistory() string {
	if len(m.history) == 0 {
		return theme.StyleDimmed.Render("  Waiting for a publisher...")
	}
	return theme.StyleDimmed.Render("  recent: ") + strings.Join(m.history, " → ")
}
