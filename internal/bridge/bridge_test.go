package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/schollz/orchestron/internal/engine"
	"github.com/schollz/orchestron/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngineConfig() types.EngineConfig {
	return types.EngineConfig{SampleRate: 48000, ControlRate: 4800, Channels: 2, SoftBuffer: 64, HardBuffer: 256, ZeroDBFS: 1}
}

func runningMockEngine(t *testing.T) engine.Adapter {
	t.Helper()
	eng := engine.NewMock()
	require.NoError(t, eng.Create(testEngineConfig()))
	require.NoError(t, eng.Start(engine.StartOptions{Mode: engine.ModeStreaming}))
	return eng
}

func TestAttachFillsQueueFromEngine(t *testing.T) {
	eng := runningMockEngine(t)
	b := New("s1", eng, testEngineConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, b.Attach(ctx))

	assert.Eventually(t, func() bool {
		return b.queue.Len() > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Detach())
}

func TestAttachTwiceReturnsError(t *testing.T) {
	eng := runningMockEngine(t)
	b := New("s1", eng, testEngineConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, b.Attach(ctx))
	assert.Error(t, b.Attach(ctx))

	require.NoError(t, b.Detach())
}

func TestDetachPublishesOffState(t *testing.T) {
	eng := runningMockEngine(t)
	var events []types.Event
	b := New("s1", eng, testEngineConfig(), func(ev types.Event) {
		events = append(events, ev)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, b.Attach(ctx))
	require.NoError(t, b.Detach())

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, types.EventBridgeStateChanged, last.Kind)
	assert.Equal(t, "off", last.Data["state"])
}

func TestDetachWithoutAttachIsNotAnError(t *testing.T) {
	eng := runningMockEngine(t)
	b := New("s1", eng, testEngineConfig(), nil)
	assert.NoError(t, b.Detach())
}

func TestProduceStopsWhenEngineNotRunning(t *testing.T) {
	eng := engine.NewMock() // never started: PullAudioBlock returns ErrNotRunning
	require.NoError(t, eng.Create(testEngineConfig()))
	b := New("s1", eng, testEngineConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, b.Attach(ctx))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, b.queue.Len())

	require.NoError(t, b.Detach())
}
