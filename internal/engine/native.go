package engine

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/schollz/orchestron/internal/types"
)

// warmupBound is the documented 2s bound from spec.md §5 for engine start.
const warmupBound = 2 * time.Second

// Native binds an external synthesis engine process, feeding it a compiled
// document over a temp file and MIDI events over OSC, reading rendered audio
// back from its stdout pipe. Adapted from the teacher's sclang process
// lifecycle (collidertracker's internal/supercollider package).
type Native struct {
	mu       sync.Mutex
	cfg      types.EngineConfig
	docPath  string
	oscPort  int
	oscConn  *osc.Client
	cmd      *exec.Cmd
	running  bool
	blocks   int64
	lastErr  string
	started  time.Time
	audioCh  chan []float32
}

var _ Adapter = (*Native)(nil)

func NewNative() *Native {
	return &Native{oscPort: 57120 + rand.Intn(1000)}
}

func (n *Native) Create(cfg types.EngineConfig) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := cfg.Validate(); err != nil {
		return err
	}
	n.cfg = cfg
	n.oscConn = osc.NewClient("localhost", n.oscPort)
	return nil
}

func (n *Native) Load(document string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	f, err := os.CreateTemp("", "orchestron-*.csd")
	if err != nil {
		return fmt.Errorf("engine: failed to stage document: %w", err)
	}
	if _, err := f.WriteString(document); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("engine: failed to write document: %w", err)
	}
	f.Close()
	if n.docPath != "" {
		os.Remove(n.docPath)
	}
	n.docPath = f.Name()
	return nil
}

// Start launches the engine process and waits up to warmupBound for its
// audio pipe to become ready, per spec.md §5's documented warm-up bound.
func (n *Native) Start(opts StartOptions) error {
	n.mu.Lock()
	if n.docPath == "" {
		n.mu.Unlock()
		return fmt.Errorf("engine: Start called before Load")
	}

	enginePath, err := findEnginePath()
	if err != nil {
		n.mu.Unlock()
		return backendLoadError("native", err)
	}

	cmd := exec.Command(enginePath, "-o", "stdout", "--format=float", n.docPath)
	setupProcessGroup(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		n.mu.Unlock()
		return backendLoadError("native", err)
	}
	cmd.Stderr = log.Writer()

	if err := cmd.Start(); err != nil {
		n.mu.Unlock()
		return backendLoadError("native", err)
	}

	n.cmd = cmd
	n.audioCh = make(chan []float32, 8)
	n.started = time.Now()
	n.mu.Unlock()

	ready := make(chan error, 1)
	go n.pumpAudio(stdout, ready)

	select {
	case err := <-ready:
		if err != nil {
			n.Stop()
			return backendLoadError("native", err)
		}
	case <-time.After(warmupBound):
		n.Stop()
		return ErrWarmupTimeout
	}

	n.mu.Lock()
	n.running = true
	n.mu.Unlock()
	return nil
}

// pumpAudio decodes the engine's raw float32 stdout stream into fixed-size
// stereo blocks and forwards them on audioCh; the oldest unread block is
// dropped when the channel is full so the producer never blocks.
func (n *Native) pumpAudio(r *os.File, ready chan<- error) {
	defer r.Close()
	br := bufio.NewReaderSize(r, 1<<16)

	n.mu.Lock()
	channels := n.cfg.Channels
	n.mu.Unlock()
	if channels == 0 {
		channels = 2
	}

	samplesPerBlock := blockFrames * channels
	buf := make([]float32, samplesPerBlock)
	first := true

	for {
		for i := range buf {
			var bits uint32
			if err := binary.Read(br, binary.LittleEndian, &bits); err != nil {
				if first {
					ready <- err
				}
				n.mu.Lock()
				n.lastErr = err.Error()
				n.mu.Unlock()
				close(n.audioCh)
				return
			}
			buf[i] = math.Float32frombits(bits)
		}
		if first {
			first = false
			ready <- nil
		}
		block := make([]float32, samplesPerBlock)
		copy(block, buf)

		select {
		case n.audioCh <- block:
		default:
			select {
			case <-n.audioCh:
			default:
			}
			n.audioCh <- block
		}
	}
}

func (n *Native) Stop() error {
	n.mu.Lock()
	cmd := n.cmd
	docPath := n.docPath
	n.running = false
	n.cmd = nil
	n.docPath = ""
	n.mu.Unlock()

	killProcessGroup(cmd)
	if docPath != "" {
		os.Remove(docPath)
	}
	return nil
}

func (n *Native) Panic() error {
	n.mu.Lock()
	client := n.oscConn
	n.mu.Unlock()
	if client == nil {
		return ErrNotRunning
	}
	return client.Send(osc.NewMessage("/panic"))
}

// PushMIDI translates an engine event to an OSC message, following the
// wire shape of the teacher's sendOSCInstrumentMessage (typed /path,
// positional note/velocity fields, then named key/value pairs).
func (n *Native) PushMIDI(event types.MIDIEvent) error {
	n.mu.Lock()
	client := n.oscConn
	running := n.running
	n.mu.Unlock()
	if !running || client == nil {
		return ErrNotRunning
	}

	msg := osc.NewMessage("/midi")
	msg.Append(int32(event.Channel))
	msg.Append(string(event.Kind))
	msg.Append(int32(event.Note))
	msg.Append(float32(event.Velocity))
	msg.Append(int32(event.Controller))
	msg.Append(float32(event.Value))

	if err := client.Send(msg); err != nil {
		return fmt.Errorf("engine: push_midi failed: %w", err)
	}
	return nil
}

func (n *Native) PullAudioBlock() ([]float32, error) {
	n.mu.Lock()
	running := n.running
	ch := n.audioCh
	n.mu.Unlock()
	if !running {
		return nil, ErrNotRunning
	}
	block, ok := <-ch
	if !ok {
		return nil, fmt.Errorf("engine: native audio pipe closed")
	}
	n.mu.Lock()
	n.blocks++
	n.mu.Unlock()
	return block, nil
}

func (n *Native) Metrics() Metrics {
	n.mu.Lock()
	defer n.mu.Unlock()
	var uptime time.Duration
	if n.running {
		uptime = time.Since(n.started)
	}
	return Metrics{Backend: "native", BlocksProduced: n.blocks, Uptime: uptime, LastError: n.lastErr}
}

func findEnginePath() (string, error) {
	if path, err := exec.LookPath("csound"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("csound executable not found in PATH")
}
