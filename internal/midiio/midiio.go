// Package midiio owns external MIDI input device enumeration and event
// translation into internal/session.BindMIDIInput, per spec.md §4.7 and the
// gomidi/v2 dependency listed in SPEC_FULL.md's domain stack.
package midiio

import (
	"fmt"
	"log"

	"github.com/schollz/orchestron/internal/types"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// Devices lists the names of every available MIDI input port, for the
// `GET /midi/inputs` endpoint.
func Devices() []string {
	var names []string
	for _, in := range midi.GetInPorts() {
		names = append(names, in.String())
	}
	return names
}

// Input is one bound, listening MIDI input port.
type Input struct {
	name string
	port drivers.In
	stop func()
}

// Name reports the bound device's name.
func (i *Input) Name() string { return i.name }

// Close stops listening and releases the underlying port.
func (i *Input) Close() error {
	if i.stop != nil {
		i.stop()
	}
	return i.port.Close()
}

// Bind opens name's input port and starts translating its wire messages
// into types.MIDIEvent, delivered to emit as they arrive. Binding errors are
// non-fatal per spec.md §4.7 ("MIDI binding errors are non-fatal and logged
// as events") — callers are expected to publish the returned error onto the
// session event bus rather than fail the session.
func Bind(name string, emit func(types.MIDIEvent)) (*Input, error) {
	in, err := midi.FindInPort(name)
	if err != nil {
		return nil, fmt.Errorf("midiio: no input port matching %q: %w", name, err)
	}
	if err := in.Open(); err != nil {
		return nil, fmt.Errorf("midiio: failed to open input port %q: %w", name, err)
	}

	stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		translateAndEmit(msg, emit)
	})
	if err != nil {
		in.Close()
		return nil, fmt.Errorf("midiio: failed to listen on %q: %w", name, err)
	}

	log.Printf("[MIDIIO] bound input %q", name)
	return &Input{name: name, port: in, stop: stop}, nil
}

func translateAndEmit(msg midi.Message, emit func(types.MIDIEvent)) {
	var ch, key, vel uint8
	switch {
	case msg.GetNoteOn(&ch, &key, &vel):
		emit(types.MIDIEvent{Kind: types.MIDINoteOn, Channel: int(ch), Note: int(key), Velocity: float64(vel)})
	case msg.GetNoteOff(&ch, &key, &vel):
		emit(types.MIDIEvent{Kind: types.MIDINoteOff, Channel: int(ch), Note: int(key)})
	default:
		var ctrl, val uint8
		if msg.GetControlChange(&ch, &ctrl, &val) {
			emit(types.MIDIEvent{Kind: types.MIDIControlChange, Channel: int(ch), Controller: int(ctrl), Value: float64(val)})
		}
	}
}
