// Package event defines timed song events and the bounded buffer that
// couples program execution to audio rendering.
package event

import (
	"fmt"

	"github.com/songwalker/songwalker-go/internal/preset"
)

// Kind discriminates event payloads.
type Kind int

const (
	// KindNote schedules a note with a gate length and instrument.
	KindNote Kind = iota
	// KindSetProperty changes a named property at a point in time.
	KindSetProperty
	// KindPresetRef announces that a preset id will be needed.
	KindPresetRef
	// KindTrackStart marks a call to a track with no definition.
	KindTrackStart
)

func (k Kind) String() string {
	switch k {
	case KindNote:
		return "note"
	case KindSetProperty:
		return "setProperty"
	case KindPresetRef:
		return "presetRef"
	case KindTrackStart:
		return "trackStart"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Event is one timed occurrence in a song. Beat is absolute from song
// start. Track is the emitting track's name, empty for the top level.
type Event struct {
	Beat  float64
	Kind  Kind
	Track string

	// Note fields.
	Pitch      string
	Velocity   float64
	Gate       float64
	Instrument preset.InstrumentConfig

	// SetProperty fields.
	Target string
	Value  string

	// PresetRef / TrackStart fields.
	Name string

	// Source span, carried for diagnostics.
	SpanStart, SpanEnd int
}
