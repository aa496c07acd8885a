package engine

import (
	"sync"
	"time"

	"github.com/schollz/orchestron/internal/types"
)

// Mock produces silence at the configured sample rate, per spec.md §4.5.
// Used in tests and headless verification; nothing substitutes it
// automatically when the native engine fails to start.
type Mock struct {
	mu        sync.Mutex
	cfg       types.EngineConfig
	running   bool
	startedAt time.Time
	blocks    int64
	lastErr   string
}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) Create(cfg types.EngineConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.cfg = cfg
	return nil
}

func (m *Mock) Load(document string) error { return nil }

func (m *Mock) Start(opts StartOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
	m.startedAt = time.Now()
	return nil
}

func (m *Mock) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return nil
}

func (m *Mock) Panic() error { return nil }

func (m *Mock) PushMIDI(event types.MIDIEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return ErrNotRunning
	}
	return nil
}

func (m *Mock) PullAudioBlock() ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil, ErrNotRunning
	}
	m.blocks++
	channels := m.cfg.Channels
	if channels == 0 {
		channels = 2
	}
	return silentBlock(channels), nil
}

func (m *Mock) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	var uptime time.Duration
	if m.running {
		uptime = time.Since(m.startedAt)
	}
	return Metrics{Backend: "mock", BlocksProduced: m.blocks, Uptime: uptime, LastError: m.lastErr}
}
