package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineConfigKsmps(t *testing.T) {
	c := EngineConfig{SampleRate: 44100, ControlRate: 441, Channels: 2, SoftBuffer: 256, HardBuffer: 1024, ZeroDBFS: 1}
	assert.Equal(t, 100, c.Ksmps())
	require.NoError(t, c.Validate())
}

func TestEngineConfigValidateBounds(t *testing.T) {
	bad := EngineConfig{SampleRate: 1000, ControlRate: 441, Channels: 2, SoftBuffer: 256, HardBuffer: 1024, ZeroDBFS: 1}
	assert.Error(t, bad.Validate())
}

func TestGetChordNotesMajor(t *testing.T) {
	notes := GetChordNotes(60, ChordMajor, ChordAddNone, ChordTransposition(0))
	assert.Equal(t, []int{60, 64, 67}, notes)
}

func TestGetChordNotesMinor7(t *testing.T) {
	notes := GetChordNotes(60, ChordMinor, ChordAdd7, ChordTransposition(0))
	assert.Equal(t, []int{60, 63, 67, 70}, notes)
}

func TestGetChordNotesNoneIgnoresAddition(t *testing.T) {
	notes := GetChordNotes(60, ChordNone, ChordAdd9, ChordTransposition(0))
	assert.Equal(t, []int{60}, notes)
}

func TestTrackEffectiveStepCount(t *testing.T) {
	tr := Track{}
	tr.Pads[0].StepCount = 16
	tr.Pads[3].StepCount = 32
	assert.Equal(t, 32, tr.EffectiveStepCount())
}

func TestTrackEffectiveStepCountDefault(t *testing.T) {
	var tr Track
	assert.Equal(t, 16, tr.EffectiveStepCount())
}
