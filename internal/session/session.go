// Package session is the runtime owner of spec.md §4.7: session lifecycle
// (create/compile/start/stop/panic), MIDI input binding, and the bounded
// event bus every other subsystem publishes onto. It is the multi-subsystem
// orchestrator the teacher's internal/model.Model plays for a single
// tracker instance, generalized here to own one struct per session rather
// than one struct for the whole process.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/schollz/orchestron/internal/compiler"
	"github.com/schollz/orchestron/internal/engine"
	"github.com/schollz/orchestron/internal/midiio"
	"github.com/schollz/orchestron/internal/music"
	"github.com/schollz/orchestron/internal/persistence"
	"github.com/schollz/orchestron/internal/sequencer"
	"github.com/schollz/orchestron/internal/types"
)

// AudioBridge is the narrow surface session needs from the browser audio
// bridge, kept as an interface here so this package never imports
// internal/bridge directly (bridge, in turn, pulls audio from an
// engine.Adapter session already owns).
type AudioBridge interface {
	Attach(ctx context.Context) error
	Detach() error
}

// CompileResult is compile's return value: the merged document plus every
// diagnostic collected across all assigned patches.
type CompileResult struct {
	Document    string
	Diagnostics []compiler.Diagnostic
}

// Session is one session's full runtime state. All mutating operations
// serialize through mu; status/compile-output reads may take an RLock.
type Session struct {
	ID string

	mu          sync.RWMutex
	state       types.SessionState
	assignments []types.InstrumentAssignment
	engineCfg   types.EngineConfig
	document    string
	diagnostics []compiler.Diagnostic

	eng       engine.Adapter
	clock     *sequencer.Clock
	clockStop context.CancelFunc
	midiInput *midiio.Input
	bridge    AudioBridge
	pattern   *types.Pattern

	bus *Bus
}

// State reports the current lifecycle state (spec.md §3).
func (s *Session) State() types.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Assignments returns a copy of the session's patch/channel bindings.
func (s *Session) Assignments() []types.InstrumentAssignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.InstrumentAssignment, len(s.assignments))
	copy(out, s.assignments)
	return out
}

// Subscribe returns a new read endpoint onto this session's event bus.
func (s *Session) Subscribe() *Subscription {
	return s.bus.Subscribe()
}

// Pattern returns the sequencer pattern the session was last started with,
// or nil if none was supplied — used by the sequencer status endpoint.
func (s *Session) Pattern() *types.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pattern
}

// Clock returns the running sequencer clock, or nil if the session has no
// pattern loaded or isn't running.
func (s *Session) Clock() *sequencer.Clock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock
}

// Diagnostics returns the diagnostics from the most recent compile.
func (s *Session) Diagnostics() []compiler.Diagnostic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.diagnostics
}

func validateAssignments(assignments []types.InstrumentAssignment) error {
	seen := map[int]bool{}
	for _, a := range assignments {
		if seen[a.MIDIChannel] {
			return fmt.Errorf("session: duplicate MIDI channel assignment: %d", a.MIDIChannel)
		}
		seen[a.MIDIChannel] = true
	}
	return nil
}

// EngineFactory builds a fresh engine.Adapter for each session start; the
// output mode is passed later to the adapter's Start. Manager is configured with one at construction, letting callers
// choose the native or mock backend without this package depending on the
// choice.
type EngineFactory func() engine.Adapter

// BridgeFactory builds an AudioBridge bound to sessionID's running engine,
// used only when Start is given engine.ModeStreaming. cfg is the session's
// canonical engine config, letting the bridge resample from cfg.SampleRate.
// emit lets the bridge publish connection-state transitions onto the
// session's own event bus without depending on the session package.
type BridgeFactory func(sessionID string, eng engine.Adapter, cfg types.EngineConfig, emit func(types.Event)) AudioBridge

// Manager owns every live session plus the shared persistence gateway
// patches/performances are loaded from.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	gateway    *persistence.Gateway
	newEngine  EngineFactory
	newBridge  BridgeFactory
}

// NewManager wires a Manager to gateway for patch/performance lookups and
// newEngine for building each session's synthesis backend. newBridge may be
// nil if streaming mode is never requested.
func NewManager(gateway *persistence.Gateway, newEngine EngineFactory, newBridge BridgeFactory) *Manager {
	return &Manager{
		sessions:  map[string]*Session{},
		gateway:   gateway,
		newEngine: newEngine,
		newBridge: newBridge,
	}
}

// Create validates assignments' channel uniqueness and registers a new idle
// session, per the `create` operation of spec.md §4.7.
func (m *Manager) Create(assignments []types.InstrumentAssignment) (*Session, error) {
	if err := validateAssignments(assignments); err != nil {
		return nil, err
	}
	s := &Session{
		ID:          uuid.NewString(),
		state:       types.SessionIdle,
		assignments: assignments,
		bus:         NewBus(),
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s, nil
}

// Get looks up a session by ID.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Compile loads every assigned patch, compiles it, and merges the results
// into one multi-instrument document, per the `compile` operation. Compile
// errors are returned as diagnostics without moving the session into the
// error state — the session simply does not advance past SessionIdle until
// a clean compile succeeds, since `start` requires SessionCompiled.
func (m *Manager) Compile(id string) (*CompileResult, error) {
	s, ok := m.Get(id)
	if !ok {
		return nil, fmt.Errorf("session: unknown id %q", id)
	}

	var instruments []compiler.Instrument
	var allDiags []compiler.Diagnostic
	var cfg types.EngineConfig
	cfgSet := false

	assignments := s.Assignments()
	for _, a := range assignments {
		patch, err := m.gateway.LoadPatch(a.PatchID)
		if err != nil {
			return nil, fmt.Errorf("session: failed to load patch %q: %w", a.PatchID, err)
		}
		if !cfgSet {
			cfg = patch.Engine
			cfgSet = true
		}
		prog, diags := compiler.Compile(patch, compiler.DefaultCatalog)
		allDiags = append(allDiags, diags...)
		if prog != nil {
			instruments = append(instruments, compiler.Instrument{Channel: a.MIDIChannel, Program: prog})
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(allDiags) > 0 {
		s.diagnostics = allDiags
		s.bus.Publish(types.Event{Kind: types.EventCompileFailed, SessionID: s.ID, Message: "compile produced diagnostics"})
		return &CompileResult{Diagnostics: allDiags}, nil
	}

	doc := compiler.Emit(cfg, instruments)
	s.engineCfg = cfg
	s.document = doc
	s.diagnostics = nil
	s.state = types.SessionCompiled
	s.bus.Publish(types.Event{Kind: types.EventCompileOK, SessionID: s.ID, Message: "compile succeeded"})
	return &CompileResult{Document: doc, Diagnostics: nil}, nil
}

// StartOptions configures Start: the engine output mode and an optional
// sequencer pattern. A nil or empty pattern starts the engine without a
// clock.
type StartOptions struct {
	Mode    engine.Mode
	Pattern *types.Pattern
}

func patternIsEmpty(p *types.Pattern) bool {
	return p == nil || (len(p.Tracks) == 0 && len(p.DrummerTracks) == 0 && len(p.ControllerTracks) == 0)
}

// Start creates the engine, loads the compiled document, starts the engine
// worker, starts the clock if a pattern is supplied, and opens the audio
// bridge if streaming was requested, per the `start` operation.
func (m *Manager) Start(id string, opts StartOptions) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("session: unknown id %q", id)
	}

	s.mu.Lock()
	if s.state != types.SessionCompiled {
		s.mu.Unlock()
		return fmt.Errorf("session: cannot start from state %s", s.state)
	}
	doc, cfg := s.document, s.engineCfg
	s.mu.Unlock()

	eng := m.newEngine()
	if err := eng.Create(cfg); err != nil {
		m.transitionError(s, err)
		return fmt.Errorf("session: engine create failed: %w", err)
	}
	if err := eng.Load(doc); err != nil {
		m.transitionError(s, err)
		return fmt.Errorf("session: engine load failed: %w", err)
	}
	if err := eng.Start(engine.StartOptions{Mode: opts.Mode}); err != nil {
		m.transitionError(s, err)
		return fmt.Errorf("session: engine start failed: %w", err)
	}

	s.mu.Lock()
	s.eng = eng
	s.pattern = opts.Pattern
	s.state = types.SessionRunning
	s.mu.Unlock()

	if !patternIsEmpty(opts.Pattern) {
		m.startClock(s, eng, opts.Pattern)
	}

	if opts.Mode == engine.ModeStreaming && m.newBridge != nil {
		br := m.newBridge(s.ID, eng, cfg, func(ev types.Event) {
			ev.SessionID = s.ID
			s.bus.Publish(ev)
		})
		if err := br.Attach(context.Background()); err != nil {
			s.bus.Publish(types.Event{Kind: types.EventError, SessionID: s.ID, Message: fmt.Sprintf("bridge attach failed: %v", err)})
		} else {
			s.mu.Lock()
			s.bridge = br
			s.mu.Unlock()
		}
	}

	s.bus.Publish(types.Event{Kind: types.EventEngineStateChanged, SessionID: s.ID, Message: "running"})
	return nil
}

// startClock builds and starts a clock over pattern wired to push its
// emitted MIDI events into eng, recording it on s for later Stop/QueuePad/
// SequencerStatus calls. Shared by Start and the standalone sequencer
// transport operations.
func (m *Manager) startClock(s *Session, eng engine.Adapter, pattern *types.Pattern) {
	clockCtx, cancel := context.WithCancel(context.Background())
	clock := sequencer.NewClock(pattern, func(ev types.MIDIEvent) {
		if err := eng.PushMIDI(ev); err != nil {
			s.bus.Publish(types.Event{Kind: types.EventError, SessionID: s.ID, Message: err.Error()})
		}
	})
	clock.Start(clockCtx)
	s.mu.Lock()
	s.clock = clock
	s.clockStop = cancel
	s.pattern = pattern
	s.mu.Unlock()
}

func (m *Manager) transitionError(s *Session, err error) {
	s.mu.Lock()
	s.state = types.SessionError
	s.mu.Unlock()
	s.bus.Publish(types.Event{Kind: types.EventError, SessionID: s.ID, Message: err.Error()})
}

// Stop stops the clock first, panics all notes off per channel, stops the
// engine, and closes the bridge, per the `stop` operation. Idempotent once
// the session is already idle/compiled.
func (m *Manager) Stop(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("session: unknown id %q", id)
	}

	s.mu.Lock()
	if s.state != types.SessionRunning && s.state != types.SessionError {
		s.mu.Unlock()
		return nil
	}
	clock, clockStop := s.clock, s.clockStop
	midiInput := s.midiInput
	br := s.bridge
	eng := s.eng
	s.mu.Unlock()

	if clock != nil {
		clockStop()
		clock.Stop()
	}
	if eng != nil {
		if err := eng.Panic(); err != nil {
			log.Printf("[SESSION] %s: panic during stop failed: %v", id, err)
		}
	}
	if midiInput != nil {
		midiInput.Close()
	}
	var stopErr error
	if eng != nil {
		stopErr = eng.Stop()
	}
	if br != nil {
		if err := br.Detach(); err != nil {
			log.Printf("[SESSION] %s: bridge detach failed: %v", id, err)
		}
	}

	s.mu.Lock()
	s.clock, s.clockStop, s.midiInput, s.bridge, s.eng = nil, nil, nil, nil, nil
	s.state = types.SessionCompiled
	s.mu.Unlock()

	s.bus.Publish(types.Event{Kind: types.EventEngineStateChanged, SessionID: s.ID, Message: "stopped"})
	if stopErr != nil {
		return fmt.Errorf("session: engine stop failed: %w", stopErr)
	}
	return nil
}

// Panic emits an all-notes-off on every assigned channel without changing
// session state, per the `panic` operation.
func (m *Manager) Panic(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("session: unknown id %q", id)
	}
	s.mu.RLock()
	eng := s.eng
	s.mu.RUnlock()
	if eng == nil {
		return engine.ErrNotRunning
	}
	err := eng.Panic()
	s.bus.Publish(types.Event{Kind: types.EventEngineStateChanged, SessionID: s.ID, Message: "panic"})
	return err
}

// BindMIDIInput opens name's MIDI input and translates its events into
// engine pushes, per the `bind_midi_input` operation. Binding failures are
// logged as events rather than failing the session, per spec.md §4.7's
// failure semantics, but are still returned to the caller so transport can
// surface a 404.
func (m *Manager) BindMIDIInput(id, name string) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("session: unknown id %q", id)
	}

	in, err := midiio.Bind(name, func(ev types.MIDIEvent) {
		s.mu.RLock()
		eng := s.eng
		s.mu.RUnlock()
		if eng != nil {
			if pushErr := eng.PushMIDI(ev); pushErr != nil {
				s.bus.Publish(types.Event{Kind: types.EventError, SessionID: s.ID, Message: pushErr.Error()})
			}
		}
		s.bus.Publish(types.Event{Kind: types.EventMidiIn, SessionID: s.ID, Message: fmt.Sprintf("%s ch=%d note=%s", ev.Kind, ev.Channel, music.MidiToNoteName(ev.Note))})
	})
	if err != nil {
		s.bus.Publish(types.Event{Kind: types.EventError, SessionID: s.ID, Message: err.Error()})
		return err
	}

	s.mu.Lock()
	if s.midiInput != nil {
		s.midiInput.Close()
	}
	s.midiInput = in
	s.mu.Unlock()
	return nil
}

// SendMIDIEvent directly injects ev into the running engine, per the
// `send_midi_event` operation (used by the UI piano roll / CC panel).
func (m *Manager) SendMIDIEvent(id string, ev types.MIDIEvent) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("session: unknown id %q", id)
	}
	s.mu.RLock()
	eng := s.eng
	s.mu.RUnlock()
	if eng == nil {
		return engine.ErrNotRunning
	}
	if err := eng.PushMIDI(ev); err != nil {
		return err
	}
	s.bus.Publish(types.Event{Kind: types.EventMidiIn, SessionID: s.ID, Message: "direct injection"})
	return nil
}

// QueuePad forwards to the running session's sequencer clock, implementing
// the `queue-pad` transport operation of §6.
func (m *Manager) QueuePad(id string, trackIndex, pad int) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("session: unknown id %q", id)
	}
	s.mu.RLock()
	clock := s.clock
	s.mu.RUnlock()
	if clock == nil {
		return fmt.Errorf("session: %s has no running sequencer", id)
	}
	clock.QueuePad(trackIndex, pad)
	return nil
}

// SetPattern replaces a running session's pattern, per the
// `sequencer/config` transport operation. If the clock is already running
// it is restarted against the new pattern immediately rather than waiting
// for the next session start.
func (m *Manager) SetPattern(id string, pattern *types.Pattern) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("session: unknown id %q", id)
	}

	s.mu.Lock()
	if s.state != types.SessionRunning {
		s.mu.Unlock()
		return fmt.Errorf("session: cannot set pattern from state %s", s.state)
	}
	eng := s.eng
	clock, clockStop := s.clock, s.clockStop
	s.clock, s.clockStop = nil, nil
	s.mu.Unlock()

	if clock != nil {
		clockStop()
		clock.Stop()
	}

	if patternIsEmpty(pattern) {
		s.mu.Lock()
		s.pattern = pattern
		s.mu.Unlock()
		return nil
	}
	m.startClock(s, eng, pattern)
	return nil
}

// StartSequencer starts the clock over the session's currently configured
// pattern, per the `sequencer/start` transport operation. The session must
// already be running and have a non-empty pattern (set at Start or via
// SetPattern); the clock must not already be running.
func (m *Manager) StartSequencer(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("session: unknown id %q", id)
	}

	s.mu.Lock()
	if s.state != types.SessionRunning {
		s.mu.Unlock()
		return fmt.Errorf("session: cannot start sequencer from state %s", s.state)
	}
	if s.clock != nil {
		s.mu.Unlock()
		return fmt.Errorf("session: sequencer already running")
	}
	eng, pattern := s.eng, s.pattern
	s.mu.Unlock()

	if patternIsEmpty(pattern) {
		return fmt.Errorf("session: no pattern configured")
	}
	m.startClock(s, eng, pattern)
	s.bus.Publish(types.Event{Kind: types.EventSequencerStatus, SessionID: s.ID, Message: "sequencer started"})
	return nil
}

// StopSequencer stops the clock without touching the engine or bridge, per
// the `sequencer/stop` transport operation. Idempotent when no clock runs.
func (m *Manager) StopSequencer(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("session: unknown id %q", id)
	}

	s.mu.Lock()
	clock, clockStop := s.clock, s.clockStop
	s.clock, s.clockStop = nil, nil
	s.mu.Unlock()

	if clock == nil {
		return nil
	}
	clockStop()
	clock.Stop()
	s.bus.Publish(types.Event{Kind: types.EventSequencerStatus, SessionID: s.ID, Message: "sequencer stopped"})
	return nil
}

// SequencerStatus snapshots the running clock's step/track state, per the
// `sequencer/status` transport operation. Returns the zero Status if no
// clock is currently running.
func (m *Manager) SequencerStatus(id string) (sequencer.Status, error) {
	s, ok := m.Get(id)
	if !ok {
		return sequencer.Status{}, fmt.Errorf("session: unknown id %q", id)
	}
	clock := s.Clock()
	if clock == nil {
		return sequencer.Status{}, nil
	}
	return clock.Status(), nil
}
