package sequencer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/humanophone/humanophone/internal/protocol"
	"github.com/humanophone/humanophone/internal/theory"
)

// Song is a looped list of voicings, as stored in a song file:
//
//	title: ii-V-I in F
//	chords:
//	  - notes: [G3, Bb3, D4, F4, A4, C5]
//	  - notes: [C3, E3, G3, Bb3, D4]
type Song struct {
	Title  string    `yaml:"title"`
	Chords []Voicing `yaml:"chords"`
}

// Voicing is one step of a song. Notes are pitch names ("Bb3") or MIDI
// numbers ("58").
type Voicing struct {
	Notes []string `yaml:"notes"`
}

// DefaultSong is the progression played when no song file is configured.
func DefaultSong() Song {
	return Song{
		Title: "Gm11 C9 F6/9",
		Chords: []Voicing{
			{Notes: []string{"G3", "Bb3", "D4", "F4", "A4", "C5"}},
			{Notes: []string{"C3", "E3", "G3", "Bb3", "D4"}},
			{Notes: []string{"F3", "A3", "C4", "D4", "G4"}},
		},
	}
}

// LoadSong reads a YAML song file.
func LoadSong(path string) (Song, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Song{}, fmt.Errorf("read song file: %w", err)
	}
	return ParseSong(data)
}

// ParseSong decodes and validates a YAML song.
func ParseSong(data []byte) (Song, error) {
	var s Song
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return Song{}, errors.New("song file is empty")
		}
		return Song{}, fmt.Errorf("parse song file: %w", err)
	}
	if _, err := s.Publications(); err != nil {
		return Song{}, err
	}
	return s, nil
}

// WriteTemplate writes the default song as a starting point for a song file.
func WriteTemplate(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(DefaultSong()); err != nil {
		return fmt.Errorf("write song template: %w", err)
	}
	return enc.Close()
}

// Publications converts every voicing to the message a publisher sends for
// it: PublishChord when the notes spell a known chord, PublishPitches
// otherwise.
func (s Song) Publications() ([]protocol.Message, error) {
	if len(s.Chords) == 0 {
		return nil, errors.New("song has no chords")
	}
	out := make([]protocol.Message, 0, len(s.Chords))
	for i, v := range s.Chords {
		if len(v.Notes) == 0 {
			return nil, fmt.Errorf("chord %d: no notes", i+1)
		}
		notes := make(theory.NoteSet, len(v.Notes))
		for _, name := range v.Notes {
			p, err := theory.ParsePitch(name)
			if err != nil {
				return nil, fmt.Errorf("chord %d: %w", i+1, err)
			}
			notes.Add(p)
		}
		if chord, ok := theory.Detect(notes); ok {
			out = append(out, protocol.PublishChord{Chord: chord})
		} else {
			out = append(out, protocol.PublishPitches{Pitches: notes})
		}
	}
	return out, nil
}
