// Package modulation holds the musical scale table shared by tracks and the
// sequencer clock's note quantization.
package modulation

// Scale represents a musical scale as semitone offsets within an octave.
type Scale struct {
	Name  string
	Notes []int
}

// Scales is the fixed catalog of scales a track's ScaleType may reference.
var Scales = map[string]Scale{
	"all": {
		Name:  "All Notes",
		Notes: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
	},
	"major": {
		Name:  "Major",
		Notes: []int{0, 2, 4, 5, 7, 9, 11},
	},
	"minor": {
		Name:  "Minor",
		Notes: []int{0, 2, 3, 5, 7, 8, 10},
	},
	"dorian": {
		Name:  "Dorian",
		Notes: []int{0, 2, 3, 5, 7, 9, 10},
	},
	"mixolydian": {
		Name:  "Mixolydian",
		Notes: []int{0, 2, 4, 5, 7, 9, 10},
	},
	"pentatonic": {
		Name:  "Pentatonic",
		Notes: []int{0, 2, 4, 7, 9},
	},
	"blues": {
		Name:  "Blues",
		Notes: []int{0, 3, 5, 6, 7, 10},
	},
	"chromatic": {
		Name:  "Chromatic",
		Notes: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
	},
}

// NoteNames are the twelve chromatic note names, index by scale root.
var NoteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// GetScaleNames returns every catalog scale name.
func GetScaleNames() []string {
	names := make([]string, 0, len(Scales))
	for name := range Scales {
		names = append(names, name)
	}
	return names
}

// QuantizeToScale snaps a MIDI note to the closest note in the named scale,
// transposed to scaleRoot. An unknown or "all"/"" scale name is a no-op.
func QuantizeToScale(note int, scaleName string, scaleRoot int) int {
	if scaleName == "all" || scaleName == "" {
		return note
	}
	scale, ok := Scales[scaleName]
	if !ok {
		return note
	}

	if note < 0 {
		octaves := (-note / 12) + 1
		note += octaves * 12
	}

	octave := note / 12
	noteInOctave := note % 12
	transposed := (noteInOctave - scaleRoot + 12) % 12

	minDistance := 12
	closest := transposed
	for _, scaleNote := range scale.Notes {
		d := transposed - scaleNote
		if d < 0 {
			d = -d
		}
		if d < minDistance {
			minDistance = d
			closest = scaleNote
		}
	}

	final := (closest + scaleRoot) % 12
	return octave*12 + final
}
