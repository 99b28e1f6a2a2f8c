package client

import (
	"log/slog"

	"github.com/humanophone/humanophone/internal/protocol"
)

// LogRenderer prints events as structured log lines. It is the consumer's
// output when the terminal UI is off.
type LogRenderer struct {
	Logger *slog.Logger
}

func (r LogRenderer) Render(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.ChordEvent:
		r.Logger.Info("chord", "name", m.Chord.Name(), "notes", m.Chord.Notes.String())
	case protocol.PitchesEvent:
		r.Logger.Info("pitches", "notes", m.Pitches.String())
	case protocol.Silence:
		r.Logger.Info("silence")
	}
}
