package event

import "fmt"

// DefaultWindowBeats is the lead the producer may hold over playback.
const DefaultWindowBeats = 4.0

// beatEps absorbs float accumulation when comparing beat positions.
const beatEps = 1e-9

// Buffer is a bounded, time-ordered event queue between the song
// runner (producer) and the audio engine (consumer).
//
// The producer side is expected to stop executing before it would emit
// past the window; Push panics when that contract is broken, since an
// out-of-window event means unbounded lookahead and is a fatal bug in
// the scheduler, not a recoverable condition.
//
// Buffer is not safe for concurrent use. Producer and consumer run on
// the same goroutine: the runner fills between render blocks.
type Buffer struct {
	events   []Event
	playback float64
	window   float64
}

// NewBuffer creates a buffer with the given lead window in beats.
// Non-positive values select DefaultWindowBeats.
func NewBuffer(windowBeats float64) *Buffer {
	if windowBeats <= 0 {
		windowBeats = DefaultWindowBeats
	}
	return &Buffer{window: windowBeats}
}

// Window returns the lead window in beats.
func (b *Buffer) Window() float64 { return b.window }

// PlaybackBeat returns the consumer's current position.
func (b *Buffer) PlaybackBeat() float64 { return b.playback }

// Len returns the number of buffered events.
func (b *Buffer) Len() int { return len(b.events) }

// Lead returns how far the furthest buffered event runs ahead of
// playback, zero when empty.
func (b *Buffer) Lead() float64 {
	if len(b.events) == 0 {
		return 0
	}
	return b.events[len(b.events)-1].Beat - b.playback
}

// IsFull reports whether the lead has reached the window.
func (b *Buffer) IsFull() bool {
	return b.Lead() >= b.window-beatEps
}

// Push inserts an event in time order. Events at equal beats keep
// their push order. Events before the playback position are clamped
// to it so they still fire.
func (b *Buffer) Push(ev Event) {
	if ev.Beat-b.playback > b.window+beatEps {
		panic(fmt.Sprintf("event: push at beat %.4f exceeds lead window (playback %.4f, window %.4f)",
			ev.Beat, b.playback, b.window))
	}
	if ev.Beat < b.playback {
		ev.Beat = b.playback
	}
	// Insert from the tail: pushes are nearly sorted already.
	i := len(b.events)
	for i > 0 && b.events[i-1].Beat > ev.Beat+beatEps {
		i--
	}
	b.events = append(b.events, Event{})
	copy(b.events[i+1:], b.events[i:])
	b.events[i] = ev
}

// DrainUpTo removes and returns every event at or before beat, in
// order, and advances the playback position to beat. The returned
// slice aliases internal storage and is valid until the next call.
func (b *Buffer) DrainUpTo(beat float64) []Event {
	return b.DrainFiltered(beat, nil)
}

// DrainFiltered is DrainUpTo with a drop predicate: events for which
// drop returns true are consumed but not returned. Muting is applied
// here so a muted track's notes are discarded at the drain boundary
// while its property changes still pass through the caller's filter.
func (b *Buffer) DrainFiltered(beat float64, drop func(ev *Event) bool) []Event {
	n := 0
	for n < len(b.events) && b.events[n].Beat <= beat+beatEps {
		n++
	}
	out := b.events[:n]
	b.events = b.events[n:]
	if beat > b.playback {
		b.playback = beat
	}
	if drop == nil {
		return out
	}
	kept := out[:0]
	for i := range out {
		if !drop(&out[i]) {
			kept = append(kept, out[i])
		}
	}
	return kept
}

// PeekAhead returns a copy of the events in (from, from+window], for
// lookahead-based decisions. The buffer is not modified.
func (b *Buffer) PeekAhead(from, window float64) []Event {
	var out []Event
	for i := range b.events {
		if b.events[i].Beat <= from+beatEps {
			continue
		}
		if b.events[i].Beat > from+window+beatEps {
			break
		}
		out = append(out, b.events[i])
	}
	return out
}

// Reset discards all buffered events and moves playback to resumeBeat.
// Used by stop and seek.
func (b *Buffer) Reset(resumeBeat float64) {
	b.events = b.events[:0]
	b.playback = resumeBeat
}
