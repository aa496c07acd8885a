// Package sequencer drives the step clock described in spec.md §4.6: a
// dedicated per-session worker that promotes pad-loop state at step
// boundaries, dispatches note-on/note-off events through a binary min-heap,
// and samples controller curves.
package sequencer

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/schollz/orchestron/internal/modulation"
	"github.com/schollz/orchestron/internal/types"
)

const (
	defaultGateRatio   = 0.8
	minGateMillis      = 10
	curveOversample    = 8
	stopWatchdogMillis = 500
)

// trackRuntime is the mutable per-track playback state the clock owns,
// separate from the persisted types.Track document it reads pads/channel
// from.
type trackRuntime struct {
	track           *types.Track
	index           int
	activePad       int
	queuedPad       int // -1 when nothing queued
	padLoopPosition int
	localStep       int
	enabled         bool
	queuedEnabled   bool
}

// Clock is one session's sequencer worker.
type Clock struct {
	mu       sync.Mutex
	pattern  *types.Pattern
	tracks   []*trackRuntime
	offs     noteOffHeap
	lastCC   map[int]float64 // track index -> last emitted CC value
	emit     func(types.MIDIEvent)
	now      func() int64 // millis; overridable for deterministic tests
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	nextStep int64
}

// NewClock builds a Clock over pattern's tracks. Every track starts enabled
// with its persisted ActivePad and no queued pad.
func NewClock(pattern *types.Pattern, emit func(types.MIDIEvent)) *Clock {
	c := &Clock{
		pattern: pattern,
		emit:    emit,
		lastCC:  map[int]float64{},
		now:     func() int64 { return time.Now().UnixMilli() },
	}
	for i := range pattern.Tracks {
		t := &pattern.Tracks[i]
		c.tracks = append(c.tracks, &trackRuntime{
			track:           t,
			index:           i,
			activePad:       t.ActivePad,
			queuedPad:       -1,
			padLoopPosition: -1, // advances to 0 on the first boundary
			enabled:         true,
			queuedEnabled:   true,
		})
	}
	return c
}

// QueuePad arms trackIndex's pad to take effect at the next boundary,
// per the `queue-pad` transport operation.
func (c *Clock) QueuePad(trackIndex, pad int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if trackIndex < 0 || trackIndex >= len(c.tracks) {
		return
	}
	c.tracks[trackIndex].queuedPad = pad
}

// SetQueuedEnabled arms trackIndex's enabled state to take effect at the
// next boundary.
func (c *Clock) SetQueuedEnabled(trackIndex int, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if trackIndex < 0 || trackIndex >= len(c.tracks) {
		return
	}
	c.tracks[trackIndex].queuedEnabled = enabled
}

func stepDurationMillis(bpm float64) float64 {
	if bpm <= 0 {
		bpm = 120
	}
	return 60000.0 / bpm / 4.0
}

// tick runs one full step at stepStart (the step's nominal start time in
// clock milliseconds) and returns the emitted events in dispatch order.
func (c *Clock) tick(stepStart int64) []types.MIDIEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	var events []types.MIDIEvent
	stepDur := stepDurationMillis(c.pattern.BPM)
	nextStepStart := stepStart + int64(stepDur)

	// 1. Boundary actions, in track insertion order (ties broken by index,
	// which is identical to insertion order here).
	for _, t := range c.tracks {
		if t.localStep != 0 {
			continue
		}
		t.applyBoundary()
	}

	// 2. Dispatch.
	for _, t := range c.tracks {
		if !t.enabled {
			continue
		}
		events = append(events, c.dispatchTrack(t, stepStart, stepDur)...)
	}

	// 3. Note-offs due by the next step start.
	for _, off := range popDue(&c.offs, nextStepStart) {
		events = append(events, types.MIDIEvent{
			Kind:            types.MIDINoteOff,
			Channel:         off.Channel,
			Note:            off.Note,
			TimestampMillis: off.AtMillis,
		})
	}

	// 4. Controller curves.
	events = append(events, c.sampleControllers(stepStart, stepDur)...)

	// 5. Advance every track's local step, including disabled ones, so a
	// re-enabled track resumes in phase rather than restarting at step 0.
	for _, t := range c.tracks {
		count := t.track.EffectiveStepCount()
		if count <= 0 {
			count = 16
		}
		t.localStep = (t.localStep + 1) % count
	}

	for _, ev := range events {
		c.emit(ev)
	}
	return events
}

func (t *trackRuntime) applyBoundary() {
	t.enabled = t.queuedEnabled
	t.localStep = 0

	seq := t.track.PadLoopSequence
	if t.track.PadLoopEnabled && len(seq) > 0 {
		t.padLoopPosition++
		if t.padLoopPosition >= len(seq) {
			t.padLoopPosition = 0
		}
		if t.queuedPad != -1 {
			t.activePad = t.queuedPad
			t.queuedPad = -1
		} else {
			t.activePad = seq[t.padLoopPosition]
		}
		// A length-N sequence takes exactly N boundaries to exhaust: the
		// boundary that lands on the last entry disables the loop in the
		// same step, freezing on that entry rather than wrapping past it.
		if !t.track.PadLoopRepeat && t.padLoopPosition == len(seq)-1 {
			t.track.PadLoopEnabled = false
		}
		return
	}

	if t.queuedPad != -1 {
		t.activePad = t.queuedPad
		t.queuedPad = -1
	}
}

func (c *Clock) dispatchTrack(t *trackRuntime, stepStart int64, stepDur float64) []types.MIDIEvent {
	pad := t.track.Pads[t.activePad]
	if t.localStep >= pad.StepCount {
		return nil
	}
	step := pad.Steps[t.localStep]
	if step.Note < 0 {
		return nil
	}

	notes := types.GetChordNotes(step.Note, step.Chord, step.Add, step.Transpose)
	gateRatio := defaultGateRatio
	offAt := stepStart + int64(gateRatio*stepDur)
	if offAt-stepStart < minGateMillis {
		offAt = stepStart + minGateMillis
	}

	var events []types.MIDIEvent
	for _, n := range notes {
		n = modulation.QuantizeToScale(n, t.track.ScaleType, t.track.ScaleRoot)
		events = append(events, types.MIDIEvent{
			Kind:            types.MIDINoteOn,
			Channel:         t.track.MIDIChannel,
			Note:            n,
			Velocity:        float64(step.Velocity),
			TimestampMillis: stepStart,
		})
		heapPush(&c.offs, noteOff{AtMillis: offAt, Channel: t.track.MIDIChannel, Note: n})
	}
	return events
}

func (c *Clock) sampleControllers(stepStart int64, stepDur float64) []types.MIDIEvent {
	var events []types.MIDIEvent
	for idx := range c.pattern.ControllerTracks {
		ct := &c.pattern.ControllerTracks[idx]
		if !ct.Enabled {
			continue
		}
		pad := ct.Pads[ct.ActivePad]
		for _, pos := range oversamplePositions(curveOversample) {
			value := sampleCurve(pad, pos)
			key := idx
			if prev, ok := c.lastCC[key]; !ok || prev != value {
				c.lastCC[key] = value
				events = append(events, types.MIDIEvent{
					Kind:            types.MIDIControlChange,
					Channel:         ct.MIDIChannel,
					Controller:      ct.CC,
					Value:           value,
					TimestampMillis: stepStart + int64(pos*stepDur),
				})
			}
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].TimestampMillis < events[j].TimestampMillis })
	return events
}

// Start runs the clock loop until Stop is called or ctx is cancelled,
// per spec.md §4.6's realtime scheduling model.
func (c *Clock) Start(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.nextStep = c.now()
	c.mu.Unlock()

	go c.run(ctx)
}

func (c *Clock) run(ctx context.Context) {
	defer close(c.doneCh)
	log.Printf("[SEQUENCER] clock started")

	for {
		c.mu.Lock()
		stepStart := c.nextStep
		stepDur := stepDurationMillis(c.pattern.BPM)
		c.mu.Unlock()

		waitMillis := stepStart - c.now()
		if waitMillis > 0 {
			timer := time.NewTimer(time.Duration(waitMillis) * time.Millisecond)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				c.flushNoteOffs()
				return
			case <-c.stopCh:
				timer.Stop()
				c.flushNoteOffs()
				return
			}
		}

		c.tick(stepStart)

		c.mu.Lock()
		next := stepStart + int64(stepDur)
		// Drift correction: never schedule a step start in the past; skip
		// ahead rather than racing to catch up, per spec.md §4.6 step 5.
		if nowMillis := c.now(); next < nowMillis {
			next = nowMillis
		}
		c.nextStep = next
		c.mu.Unlock()
	}
}

func (c *Clock) flushNoteOffs() {
	c.mu.Lock()
	var offs []noteOff
	for c.offs.Len() > 0 {
		offs = append(offs, heapPop(&c.offs))
	}
	c.mu.Unlock()

	for _, off := range offs {
		c.emit(types.MIDIEvent{Kind: types.MIDINoteOff, Channel: off.Channel, Note: off.Note, TimestampMillis: off.AtMillis})
	}
	log.Printf("[SEQUENCER] flushed %d outstanding note-offs", len(offs))
}

// Stop signals the worker to exit and blocks until it does, or the 500ms
// watchdog fires, per spec.md §4.6's cancellation contract.
func (c *Clock) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	stopCh, doneCh := c.stopCh, c.doneCh
	c.running = false
	c.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
	case <-time.After(stopWatchdogMillis * time.Millisecond):
		log.Printf("[SEQUENCER] stop watchdog fired, clock did not exit in time")
	}
}

// TrackStatus snapshots one track's runtime state for the `sequencer/status`
// transport operation.
type TrackStatus struct {
	Index           int
	ActivePad       int
	QueuedPad       int
	Enabled         bool
	LocalStep       int
	PadLoopPosition int
}

// Status snapshots the clock as a whole: whether it's running, the nominal
// start time of the step currently scheduled, and every track's runtime.
type Status struct {
	Running bool
	StepAtMillis int64
	Tracks       []TrackStatus
}

// Status returns a point-in-time snapshot safe to call concurrently with the
// running clock.
func (c *Clock) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	tracks := make([]TrackStatus, len(c.tracks))
	for i, t := range c.tracks {
		tracks[i] = TrackStatus{
			Index:           t.index,
			ActivePad:       t.activePad,
			QueuedPad:       t.queuedPad,
			Enabled:         t.enabled,
			LocalStep:       t.localStep,
			PadLoopPosition: t.padLoopPosition,
		}
	}
	return Status{Running: c.running, StepAtMillis: c.nextStep, Tracks: tracks}
}
