//go:build cgo

// Package midiinput connects a hardware MIDI keyboard to the engine's
// live note queue. It needs cgo for the rtmidi driver; without cgo the
// package is empty and callers fall back to a stub.
package midiinput

import (
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/songwalker/songwalker-go/internal/engine"
)

// Available reports whether MIDI input support was compiled in.
const Available = true

// Sink receives converted note events; engine.EnqueueNote satisfies it.
type Sink func(engine.NoteInput) bool

// Open connects to a MIDI input port and forwards note on/off to sink.
// portName selects by case-insensitive substring; empty picks the
// first port. The returned stop function closes the connection.
func Open(portName string, sink Sink) (stop func(), err error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmidi: %w", err)
	}
	ins, err := drv.Ins()
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("list midi inputs: %w", err)
	}
	var in drivers.In
	for _, cand := range ins {
		if portName == "" || strings.Contains(strings.ToLower(cand.String()), strings.ToLower(portName)) {
			in = cand
			break
		}
	}
	if in == nil {
		drv.Close()
		if portName == "" {
			return nil, fmt.Errorf("no midi input ports")
		}
		return nil, fmt.Errorf("no midi input port matching %q", portName)
	}
	if err := in.Open(); err != nil {
		drv.Close()
		return nil, fmt.Errorf("open %q: %w", in.String(), err)
	}

	stopListen, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		var ch, key, vel uint8
		switch {
		case msg.GetNoteStart(&ch, &key, &vel):
			sink(engine.NoteInput{On: true, MIDINote: int(key), Velocity: float64(vel), Channel: int(ch)})
		case msg.GetNoteEnd(&ch, &key):
			sink(engine.NoteInput{On: false, MIDINote: int(key), Channel: int(ch)})
		}
	})
	if err != nil {
		in.Close()
		drv.Close()
		return nil, fmt.Errorf("listen %q: %w", in.String(), err)
	}

	return func() {
		stopListen()
		in.Close()
		drv.Close()
	}, nil
}

// Ports lists available input port names.
func Ports() ([]string, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmidi: %w", err)
	}
	defer drv.Close()
	ins, err := drv.Ins()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}
	return names, nil
}
