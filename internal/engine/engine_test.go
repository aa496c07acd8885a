package engine

import (
	"testing"

	"github.com/schollz/orchestron/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() types.EngineConfig {
	return types.EngineConfig{SampleRate: 44100, ControlRate: 4410, Channels: 2, SoftBuffer: 256, HardBuffer: 1024, ZeroDBFS: 1}
}

func TestMockSatisfiesAdapter(t *testing.T) {
	var _ Adapter = NewMock()
}

func TestMockRejectsPullBeforeStart(t *testing.T) {
	m := NewMock()
	require.NoError(t, m.Create(testConfig()))
	_, err := m.PullAudioBlock()
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestMockProducesSilenceAfterStart(t *testing.T) {
	m := NewMock()
	require.NoError(t, m.Create(testConfig()))
	require.NoError(t, m.Load("; empty document"))
	require.NoError(t, m.Start(StartOptions{Mode: ModeStreaming}))

	block, err := m.PullAudioBlock()
	require.NoError(t, err)
	require.NotEmpty(t, block)
	for _, sample := range block {
		assert.Equal(t, float32(0), sample)
	}

	metrics := m.Metrics()
	assert.Equal(t, "mock", metrics.Backend)
	assert.Equal(t, int64(1), metrics.BlocksProduced)
}

func TestMockRejectsCreateWithInvalidConfig(t *testing.T) {
	m := NewMock()
	bad := testConfig()
	bad.SampleRate = 1
	err := m.Create(bad)
	assert.Error(t, err)
}

func TestMockPushMIDIRequiresRunning(t *testing.T) {
	m := NewMock()
	require.NoError(t, m.Create(testConfig()))
	err := m.PushMIDI(types.MIDIEvent{Kind: types.MIDINoteOn, Channel: 1, Note: 60, Velocity: 100})
	assert.ErrorIs(t, err, ErrNotRunning)

	require.NoError(t, m.Load(""))
	require.NoError(t, m.Start(StartOptions{}))
	assert.NoError(t, m.PushMIDI(types.MIDIEvent{Kind: types.MIDINoteOn, Channel: 1, Note: 60, Velocity: 100}))
}

func TestMockStopIdempotent(t *testing.T) {
	m := NewMock()
	require.NoError(t, m.Create(testConfig()))
	require.NoError(t, m.Load(""))
	require.NoError(t, m.Start(StartOptions{}))
	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())
}
