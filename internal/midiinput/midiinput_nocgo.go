//go:build !cgo

package midiinput

import (
	"errors"

	"github.com/songwalker/songwalker-go/internal/engine"
)

// Available reports whether MIDI input support was compiled in.
const Available = false

type Sink func(engine.NoteInput) bool

var errNoCgo = errors.New("midi input requires a cgo build")

func Open(portName string, sink Sink) (func(), error) {
	return nil, errNoCgo
}

func Ports() ([]string, error) {
	return nil, errNoCgo
}
