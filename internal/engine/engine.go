// Package engine adapts a compiled patch document to a running synthesis
// process, per spec.md §4.5. Two backends satisfy the Adapter interface: a
// native backend that drives an external engine process over OSC, and a mock
// backend that produces silence for tests and headless verification.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/schollz/orchestron/internal/types"
)

// Mode selects how pulled audio is consumed.
type Mode int

const (
	ModeLocal Mode = iota
	ModeStreaming
)

// StartOptions configures Start.
type StartOptions struct {
	Mode Mode
}

// Metrics reports engine worker health for the /health/realtime endpoint.
type Metrics struct {
	Backend        string
	BlocksProduced int64
	Uptime         time.Duration
	LastError      string
}

// ErrWarmupTimeout is raised when native engine startup exceeds the 2 s bound
// from spec.md §5.
var ErrWarmupTimeout = errors.New("engine: warm-up exceeded 2s bound")

// ErrNotRunning is returned by operations that require a started engine.
var ErrNotRunning = errors.New("engine: not running")

// Adapter is the synthesis engine contract every backend implements.
type Adapter interface {
	Create(cfg types.EngineConfig) error
	Load(document string) error
	Start(opts StartOptions) error
	Stop() error
	Panic() error
	PushMIDI(event types.MIDIEvent) error
	PullAudioBlock() ([]float32, error)
	Metrics() Metrics
}

// blockFrames is the fixed stereo-interleaved frame count per pulled block.
const blockFrames = 256

func silentBlock(channels int) []float32 {
	return make([]float32, blockFrames*channels)
}

func backendLoadError(backend string, err error) error {
	return fmt.Errorf("engine: %s backend failed to load: %w", backend, err)
}
