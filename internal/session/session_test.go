package session

import (
	"context"
	"testing"
	"time"

	"github.com/schollz/orchestron/internal/engine"
	"github.com/schollz/orchestron/internal/persistence"
	"github.com/schollz/orchestron/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngineConfig() types.EngineConfig {
	return types.EngineConfig{SampleRate: 44100, ControlRate: 4410, Channels: 2, SoftBuffer: 64, HardBuffer: 256, ZeroDBFS: 1}
}

func newTestManager(t *testing.T) (*Manager, *persistence.Gateway) {
	t.Helper()
	gw, err := persistence.NewGateway(t.TempDir())
	require.NoError(t, err)
	mgr := NewManager(gw, func() engine.Adapter { return engine.NewMock() }, nil)
	return mgr, gw
}

func simplePatch(id string) types.Patch {
	return types.Patch{
		ID:     id,
		Engine: testEngineConfig(),
		Nodes: []types.Node{
			{ID: "n1", OpcodeName: "const_k", Params: map[string]types.ParamValue{"value": types.NumberParam(1)}},
		},
	}
}

func TestCreateRejectsDuplicateChannels(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.Create([]types.InstrumentAssignment{{PatchID: "a", MIDIChannel: 0}, {PatchID: "b", MIDIChannel: 0}})
	assert.Error(t, err)
}

func TestCreateStartsIdle(t *testing.T) {
	mgr, _ := newTestManager(t)
	s, err := mgr.Create([]types.InstrumentAssignment{{PatchID: "a", MIDIChannel: 0}})
	require.NoError(t, err)
	assert.Equal(t, types.SessionIdle, s.State())
}

func TestCompileSucceedsAndTransitionsToCompiled(t *testing.T) {
	mgr, gw := newTestManager(t)
	require.NoError(t, gw.SavePatch("p1", simplePatch("p1")))

	s, err := mgr.Create([]types.InstrumentAssignment{{PatchID: "p1", MIDIChannel: 0}})
	require.NoError(t, err)

	result, err := mgr.Compile(s.ID)
	require.NoError(t, err)
	require.Empty(t, result.Diagnostics)
	assert.Contains(t, result.Document, "sr = 44100")
	assert.Equal(t, types.SessionCompiled, s.State())
}

func TestCompileUnknownOpcodeReturnsDiagnosticsWithoutErrorState(t *testing.T) {
	mgr, gw := newTestManager(t)
	badPatch := types.Patch{ID: "bad", Engine: testEngineConfig(), Nodes: []types.Node{{ID: "n1", OpcodeName: "not-a-real-opcode"}}}
	require.NoError(t, gw.SavePatch("bad", badPatch))

	s, err := mgr.Create([]types.InstrumentAssignment{{PatchID: "bad", MIDIChannel: 0}})
	require.NoError(t, err)

	result, err := mgr.Compile(s.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Diagnostics)
	assert.Equal(t, types.SessionIdle, s.State())
}

func TestStartRequiresCompiledState(t *testing.T) {
	mgr, _ := newTestManager(t)
	s, err := mgr.Create([]types.InstrumentAssignment{{PatchID: "p1", MIDIChannel: 0}})
	require.NoError(t, err)

	err = mgr.Start(s.ID, StartOptions{})
	assert.Error(t, err)
}

func TestStartAndStopLifecycle(t *testing.T) {
	mgr, gw := newTestManager(t)
	require.NoError(t, gw.SavePatch("p1", simplePatch("p1")))

	s, err := mgr.Create([]types.InstrumentAssignment{{PatchID: "p1", MIDIChannel: 0}})
	require.NoError(t, err)
	_, err = mgr.Compile(s.ID)
	require.NoError(t, err)

	require.NoError(t, mgr.Start(s.ID, StartOptions{}))
	assert.Equal(t, types.SessionRunning, s.State())

	require.NoError(t, mgr.Stop(s.ID))
	assert.Equal(t, types.SessionCompiled, s.State())
}

func TestStopIsIdempotentWhenNotRunning(t *testing.T) {
	mgr, _ := newTestManager(t)
	s, err := mgr.Create([]types.InstrumentAssignment{{PatchID: "p1", MIDIChannel: 0}})
	require.NoError(t, err)
	assert.NoError(t, mgr.Stop(s.ID))
}

func TestStartWithPatternRunsClock(t *testing.T) {
	mgr, gw := newTestManager(t)
	require.NoError(t, gw.SavePatch("p1", simplePatch("p1")))

	s, err := mgr.Create([]types.InstrumentAssignment{{PatchID: "p1", MIDIChannel: 0}})
	require.NoError(t, err)
	_, err = mgr.Compile(s.ID)
	require.NoError(t, err)

	pad := types.Pad{StepCount: 4}
	pad.Steps[0] = types.Step{Note: 60, Velocity: 100}
	track := types.Track{ID: "t1", ActivePad: 0, QueuedPad: -1}
	track.Pads[0] = pad
	pattern := &types.Pattern{BPM: 120, Tracks: []types.Track{track}}

	require.NoError(t, mgr.Start(s.ID, StartOptions{Pattern: pattern}))
	assert.NotNil(t, s.Clock())

	require.NoError(t, mgr.Stop(s.ID))
	assert.Nil(t, s.Clock())
}

func TestPanicRequiresRunningEngine(t *testing.T) {
	mgr, _ := newTestManager(t)
	s, err := mgr.Create([]types.InstrumentAssignment{{PatchID: "p1", MIDIChannel: 0}})
	require.NoError(t, err)
	assert.ErrorIs(t, mgr.Panic(s.ID), engine.ErrNotRunning)
}

func TestSendMIDIEventRequiresRunningEngine(t *testing.T) {
	mgr, _ := newTestManager(t)
	s, err := mgr.Create([]types.InstrumentAssignment{{PatchID: "p1", MIDIChannel: 0}})
	require.NoError(t, err)
	assert.ErrorIs(t, mgr.SendMIDIEvent(s.ID, types.MIDIEvent{Kind: types.MIDINoteOn}), engine.ErrNotRunning)
}

func TestSubscribeReceivesCompileEvent(t *testing.T) {
	mgr, gw := newTestManager(t)
	require.NoError(t, gw.SavePatch("p1", simplePatch("p1")))

	s, err := mgr.Create([]types.InstrumentAssignment{{PatchID: "p1", MIDIChannel: 0}})
	require.NoError(t, err)

	sub := s.Subscribe()
	_, err = mgr.Compile(s.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.EventCompileOK, ev.Kind)
}

func TestStartSequencerRequiresPattern(t *testing.T) {
	mgr, gw := newTestManager(t)
	require.NoError(t, gw.SavePatch("p1", simplePatch("p1")))

	s, err := mgr.Create([]types.InstrumentAssignment{{PatchID: "p1", MIDIChannel: 0}})
	require.NoError(t, err)
	_, err = mgr.Compile(s.ID)
	require.NoError(t, err)
	require.NoError(t, mgr.Start(s.ID, StartOptions{}))

	assert.Error(t, mgr.StartSequencer(s.ID))

	require.NoError(t, mgr.Stop(s.ID))
}

func TestSetPatternStartsAndReplacesClock(t *testing.T) {
	mgr, gw := newTestManager(t)
	require.NoError(t, gw.SavePatch("p1", simplePatch("p1")))

	s, err := mgr.Create([]types.InstrumentAssignment{{PatchID: "p1", MIDIChannel: 0}})
	require.NoError(t, err)
	_, err = mgr.Compile(s.ID)
	require.NoError(t, err)
	require.NoError(t, mgr.Start(s.ID, StartOptions{}))
	assert.Nil(t, s.Clock())

	pad := types.Pad{StepCount: 4}
	track := types.Track{ID: "t1", ActivePad: 0, QueuedPad: -1}
	track.Pads[0] = pad
	pattern := &types.Pattern{BPM: 120, Tracks: []types.Track{track}}

	require.NoError(t, mgr.SetPattern(s.ID, pattern))
	assert.NotNil(t, s.Clock())

	require.NoError(t, mgr.StopSequencer(s.ID))
	assert.Nil(t, s.Clock())

	require.NoError(t, mgr.StartSequencer(s.ID))
	assert.NotNil(t, s.Clock())

	require.NoError(t, mgr.Stop(s.ID))
}

func TestSequencerStatusWithNoClockReturnsZeroValue(t *testing.T) {
	mgr, _ := newTestManager(t)
	s, err := mgr.Create([]types.InstrumentAssignment{{PatchID: "p1", MIDIChannel: 0}})
	require.NoError(t, err)

	status, err := mgr.SequencerStatus(s.ID)
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Empty(t, status.Tracks)
}

func TestBusSubscriberSeesDropsInOrderNotReordered(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe()

	for i := 0; i < busCapacity+50; i++ {
		b.Publish(types.Event{Kind: types.EventError, Message: "tick"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ev.Seq, uint64(50))

	prev := ev.Seq
	for i := 0; i < 10; i++ {
		next, err := sub.Next(ctx)
		require.NoError(t, err)
		assert.Greater(t, next.Seq, prev)
		prev = next.Seq
	}
}
