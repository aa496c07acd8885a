package midiio

import (
	"testing"

	"github.com/schollz/orchestron/internal/types"
	"github.com/stretchr/testify/assert"
	"gitlab.com/gomidi/midi/v2"
)

func TestTranslateAndEmitNoteOn(t *testing.T) {
	var emitted []types.MIDIEvent
	translateAndEmit(midi.NoteOn(2, 60, 100), func(e types.MIDIEvent) { emitted = append(emitted, e) })

	assert.Len(t, emitted, 1)
	assert.Equal(t, types.MIDINoteOn, emitted[0].Kind)
	assert.Equal(t, 2, emitted[0].Channel)
	assert.Equal(t, 60, emitted[0].Note)
	assert.Equal(t, float64(100), emitted[0].Velocity)
}

func TestTranslateAndEmitNoteOff(t *testing.T) {
	var emitted []types.MIDIEvent
	translateAndEmit(midi.NoteOff(2, 60), func(e types.MIDIEvent) { emitted = append(emitted, e) })

	assert.Len(t, emitted, 1)
	assert.Equal(t, types.MIDINoteOff, emitted[0].Kind)
	assert.Equal(t, 60, emitted[0].Note)
}

func TestTranslateAndEmitControlChange(t *testing.T) {
	var emitted []types.MIDIEvent
	translateAndEmit(midi.ControlChange(1, 74, 90), func(e types.MIDIEvent) { emitted = append(emitted, e) })

	assert.Len(t, emitted, 1)
	assert.Equal(t, types.MIDIControlChange, emitted[0].Kind)
	assert.Equal(t, 1, emitted[0].Channel)
	assert.Equal(t, 74, emitted[0].Controller)
	assert.Equal(t, float64(90), emitted[0].Value)
}
