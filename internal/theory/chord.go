package theory

// ChordDescriptor names a chord detected from a set of pitches.
type ChordDescriptor struct {
	Root    Pitch   `json:"root"`
	Quality string  `json:"quality"`
	Notes   NoteSet `json:"notes"`
}

// Name renders the chord symbol, e.g. "Gm11" or "F6/9".
func (c ChordDescriptor) Name() string {
	return ClassName(c.Root.Class()) + c.Quality
}

func (c ChordDescriptor) String() string { return c.Name() }

type chordTemplate struct {
	quality   string
	intervals uint16
}

func mask(intervals ...int) uint16 {
	var m uint16
	for _, i := range intervals {
		m |= 1 << uint(i%12)
	}
	return m
}

// Quality suffixes follow common lead-sheet spelling; the empty suffix is a
// major triad.
var templates = []chordTemplate{
	{"", mask(0, 4, 7)},
	{"m", mask(0, 3, 7)},
	{"dim", mask(0, 3, 6)},
	{"aug", mask(0, 4, 8)},
	{"sus2", mask(0, 2, 7)},
	{"sus4", mask(0, 5, 7)},
	{"6", mask(0, 4, 7, 9)},
	{"m6", mask(0, 3, 7, 9)},
	{"7", mask(0, 4, 7, 10)},
	{"maj7", mask(0, 4, 7, 11)},
	{"m7", mask(0, 3, 7, 10)},
	{"mMaj7", mask(0, 3, 7, 11)},
	{"m7b5", mask(0, 3, 6, 10)},
	{"dim7", mask(0, 3, 6, 9)},
	{"7sus4", mask(0, 5, 7, 10)},
	{"add9", mask(0, 2, 4, 7)},
	{"madd9", mask(0, 2, 3, 7)},
	{"6/9", mask(0, 2, 4, 7, 9)},
	{"9", mask(0, 2, 4, 7, 10)},
	{"maj9", mask(0, 2, 4, 7, 11)},
	{"m9", mask(0, 2, 3, 7, 10)},
	{"11", mask(0, 2, 4, 5, 7, 10)},
	{"m11", mask(0, 2, 3, 5, 7, 10)},
	{"13", mask(0, 2, 4, 7, 9, 10)},
}

// Detect names the chord spelled by notes. The lowest sounding pitch is tried
// as the root first, then the remaining pitch classes in ascending order, so
// ambiguous spellings such as C6 / Am7 resolve by the bass note.
func Detect(notes NoteSet) (ChordDescriptor, bool) {
	sorted := notes.Sorted()
	if len(sorted) < 3 {
		return ChordDescriptor{}, false
	}

	var classes uint16
	for _, p := range sorted {
		classes |= 1 << uint(p.Class())
	}

	seen := uint16(0)
	for _, root := range sorted {
		c := root.Class()
		if seen&(1<<uint(c)) != 0 {
			continue
		}
		seen |= 1 << uint(c)

		relative := rotate(classes, c)
		for _, t := range templates {
			if t.intervals == relative {
				return ChordDescriptor{
					Root:    root,
					Quality: t.quality,
					Notes:   notes.Clone(),
				}, true
			}
		}
	}
	return ChordDescriptor{}, false
}

// rotate re-expresses a pitch class mask relative to root.
func rotate(classes uint16, root int) uint16 {
	var out uint16
	for c := 0; c < 12; c++ {
		if classes&(1<<uint(c)) != 0 {
			out |= 1 << uint((c-root+12)%12)
		}
	}
	return out
}
