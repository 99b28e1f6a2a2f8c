// Package theory holds the musical value types carried by the relay: pitches,
// note sets and chord descriptors, plus a small chord detector used by
// publishers to name what is being played. The relay itself never looks inside
// these values; it only forwards them.
package theory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Pitch is a MIDI key number. Middle C (C4) is 60.
type Pitch uint8

// MaxPitch is the highest valid MIDI key.
const MaxPitch Pitch = 127

var classNames = [12]string{"C", "C#", "D", "Eb", "E", "F", "F#", "G", "Ab", "A", "Bb", "B"}

var classByName = map[string]int{
	"C": 0, "B#": 0,
	"C#": 1, "Db": 1,
	"D":  2,
	"D#": 3, "Eb": 3,
	"E": 4, "Fb": 4,
	"F": 5, "E#": 5,
	"F#": 6, "Gb": 6,
	"G":  7,
	"G#": 8, "Ab": 8,
	"A":  9,
	"A#": 10, "Bb": 10,
	"B": 11, "Cb": 11,
}

// Class returns the pitch class, 0 (C) through 11 (B).
func (p Pitch) Class() int { return int(p) % 12 }

// Octave returns the scientific pitch notation octave.
func (p Pitch) Octave() int { return int(p)/12 - 1 }

func (p Pitch) String() string {
	return classNames[p.Class()] + strconv.Itoa(p.Octave())
}

// ClassName returns the name of a pitch class without octave.
func ClassName(class int) string {
	return classNames[((class%12)+12)%12]
}

// ParsePitch parses scientific pitch notation ("C4", "Bb3", "F#-1") or a bare
// MIDI key number ("60").
func ParsePitch(s string) (Pitch, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty pitch")
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > int(MaxPitch) {
			return 0, fmt.Errorf("pitch %d out of range 0-%d", n, MaxPitch)
		}
		return Pitch(n), nil
	}

	nameLen := 1
	if len(s) > 1 && (s[1] == '#' || s[1] == 'b') {
		nameLen = 2
	}
	class, ok := classByName[strings.ToUpper(s[:1])+s[1:nameLen]]
	if !ok {
		return 0, fmt.Errorf("unknown pitch name %q", s)
	}
	octave, err := strconv.Atoi(s[nameLen:])
	if err != nil {
		return 0, fmt.Errorf("invalid octave in %q", s)
	}

	// B#/Cb cross the octave boundary.
	name := strings.ToUpper(s[:1]) + s[1:nameLen]
	switch name {
	case "B#":
		octave++
	case "Cb":
		octave--
	}

	n := (octave+1)*12 + class
	if n < 0 || n > int(MaxPitch) {
		return 0, fmt.Errorf("pitch %q out of range", s)
	}
	return Pitch(n), nil
}

// NoteSet is an unordered set of unique pitches.
type NoteSet map[Pitch]struct{}

// NewNoteSet builds a set from the given pitches, dropping duplicates.
func NewNoteSet(pitches ...Pitch) NoteSet {
	s := make(NoteSet, len(pitches))
	for _, p := range pitches {
		s[p] = struct{}{}
	}
	return s
}

func (s NoteSet) Add(p Pitch)    { s[p] = struct{}{} }
func (s NoteSet) Remove(p Pitch) { delete(s, p) }

func (s NoteSet) Contains(p Pitch) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the pitches in ascending order.
func (s NoteSet) Sorted() []Pitch {
	out := make([]Pitch, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s NoteSet) Clone() NoteSet {
	c := make(NoteSet, len(s))
	for p := range s {
		c[p] = struct{}{}
	}
	return c
}

func (s NoteSet) String() string {
	sorted := s.Sorted()
	names := make([]string, len(sorted))
	for i, p := range sorted {
		names[i] = p.String()
	}
	return "{" + strings.Join(names, " ") + "}"
}

// MarshalJSON encodes the set as an ascending array of key numbers.
func (s NoteSet) MarshalJSON() ([]byte, error) {
	keys := make([]int, 0, len(s))
	for _, p := range s.Sorted() {
		keys = append(keys, int(p))
	}
	return json.Marshal(keys)
}

func (s *NoteSet) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = NoteSet{}
		return nil
	}
	var keys []int
	if err := json.Unmarshal(data, &keys); err != nil {
		return fmt.Errorf("note set: %w", err)
	}
	set := make(NoteSet, len(keys))
	for _, k := range keys {
		if k < 0 || k > int(MaxPitch) {
			return fmt.Errorf("note set: pitch %d out of range 0-%d", k, MaxPitch)
		}
		set[Pitch(k)] = struct{}{}
	}
	*s = set
	return nil
}
