// Package runner executes a parsed program as a set of cooperative
// fibers, streaming timed events into a bounded buffer.
//
// Each track call runs on its own fiber with its own beat cursor.
// Fibers execute one statement per turn, round-robin, and a fiber only
// gets a turn while its cursor is inside the buffer's lead window over
// the playback position. Execution therefore pauses automatically when
// the buffer is full and resumes as the consumer drains it, which is
// what lets infinite songs run in constant memory.
package runner

import (
	"fmt"
	"math"
	"strconv"

	"github.com/songwalker/songwalker-go/internal/ast"
	"github.com/songwalker/songwalker-go/internal/event"
	"github.com/songwalker/songwalker-go/internal/preset"
)

// EndMode selects how a rendered song ends.
type EndMode int

const (
	// EndRelease stops after the last note's release finishes.
	EndRelease EndMode = iota
	// EndGate cuts at the last note-off, truncating releases.
	EndGate
	// EndTail is EndRelease plus the effects tail.
	EndTail
)

// ParseEndMode maps a program's endMode string.
func ParseEndMode(s string) (EndMode, error) {
	switch s {
	case "release":
		return EndRelease, nil
	case "gate":
		return EndGate, nil
	case "tail":
		return EndTail, nil
	}
	return EndRelease, fmt.Errorf("unknown end mode %q", s)
}

// SongState holds song-wide settings accumulated during execution.
type SongState struct {
	BPM         float64
	TuningPitch float64
	EndMode     EndMode
	Consts      map[string]preset.InstrumentConfig
}

// Diagnostic reports a per-track execution error. The offending fiber
// halts; the rest of the song keeps playing.
type Diagnostic struct {
	Track              string
	SpanStart, SpanEnd int
	Err                error
}

func (d Diagnostic) Error() string {
	if d.Track == "" {
		return fmt.Sprintf("song: %v", d.Err)
	}
	return fmt.Sprintf("track %s: %v", d.Track, d.Err)
}

// Runner drives a program's fibers against an event buffer.
type Runner struct {
	state  SongState
	buf    *event.Buffer
	tracks map[string]*ast.Statement
	fibers []*fiber
	diags  []Diagnostic
	extent float64
}

// New prepares a runner. Track definitions are collected up front so
// calls can precede the definition in source order; all other
// top-level statements run on the root fiber.
func New(prog *ast.Program, buf *event.Buffer) *Runner {
	r := &Runner{
		state: SongState{
			BPM:         120,
			TuningPitch: 440,
			Consts:      make(map[string]preset.InstrumentConfig),
		},
		buf:    buf,
		tracks: make(map[string]*ast.Statement),
	}
	for i := range prog.Statements {
		if s := &prog.Statements[i]; s.Kind == ast.KindTrackDef {
			r.tracks[s.Name] = s
		}
	}
	root := newFiber("", prog.Statements, 0, math.Inf(1), preset.Default(), 1, nil)
	r.fibers = append(r.fibers, root)
	return r
}

// Step runs fibers round-robin until none can make progress, either
// because every fiber is done or because each live fiber's cursor has
// reached the lead window. Returns the number of statements executed.
func (r *Runner) Step() int {
	return r.StepN(int(^uint(0) >> 1))
}

// StepN is Step with a statement budget, for callers that execute an
// unbounded window and need to bound a single scheduling call.
func (r *Runner) StepN(budget int) int {
	executed := 0
	for executed < budget {
		n := 0
		for i := 0; i < len(r.fibers) && executed+n < budget; i++ {
			f := r.fibers[i]
			if f.done {
				continue
			}
			if f.cursor > r.buf.PlaybackBeat()+r.buf.Window()+1e-9 {
				continue
			}
			r.stepFiber(f)
			n++
		}
		executed += n
		if n == 0 {
			break
		}
		r.compact()
	}
	return executed
}

func (r *Runner) compact() {
	kept := r.fibers[:0]
	for _, f := range r.fibers {
		if !f.done {
			kept = append(kept, f)
		}
	}
	r.fibers = kept
}

// Done reports whether every fiber has finished.
func (r *Runner) Done() bool {
	for _, f := range r.fibers {
		if !f.done {
			return false
		}
	}
	return true
}

// Stop halts all fibers. The caller owns resetting the buffer.
func (r *Runner) Stop() {
	for _, f := range r.fibers {
		f.done = true
	}
}

// ActiveFibers returns the number of unfinished fibers.
func (r *Runner) ActiveFibers() int {
	n := 0
	for _, f := range r.fibers {
		if !f.done {
			n++
		}
	}
	return n
}

// Diagnostics returns errors recorded so far, in occurrence order.
func (r *Runner) Diagnostics() []Diagnostic { return r.diags }

// State returns the accumulated song-wide state.
func (r *Runner) State() *SongState { return &r.state }

// Extent returns the furthest beat reached by any cursor or note end,
// the song's natural length once Done.
func (r *Runner) Extent() float64 { return r.extent }

func (r *Runner) fail(f *fiber, s *ast.Statement, err error) {
	r.diags = append(r.diags, Diagnostic{
		Track:     f.track,
		SpanStart: s.Span.Start,
		SpanEnd:   s.Span.End,
		Err:       err,
	})
	f.done = true
}

func (r *Runner) noteExtent(end float64) {
	if end > r.extent {
		r.extent = end
	}
}

func (r *Runner) emit(ev event.Event) {
	r.buf.Push(ev)
	r.noteExtent(ev.Beat + ev.Gate)
}

func (r *Runner) setProperty(f *fiber, s *ast.Statement) error {
	switch s.Target {
	case "track.beatsPerMinute":
		v, err := numberValue(s.Value)
		if err != nil || v <= 0 {
			return fmt.Errorf("beatsPerMinute wants a positive number")
		}
		r.state.BPM = v
		r.emit(event.Event{
			Beat: f.cursor, Kind: event.KindSetProperty, Track: f.track,
			Target: "track.beatsPerMinute", Value: formatNumber(v),
			SpanStart: s.Span.Start, SpanEnd: s.Span.End,
		})
	case "track.tuningPitch", "track.a4Frequency":
		v, err := numberValue(s.Value)
		if err != nil || v <= 0 {
			return fmt.Errorf("tuningPitch wants a positive number")
		}
		r.state.TuningPitch = v
		r.emit(event.Event{
			Beat: f.cursor, Kind: event.KindSetProperty, Track: f.track,
			Target: "track.tuningPitch", Value: formatNumber(v),
			SpanStart: s.Span.Start, SpanEnd: s.Span.End,
		})
	case "track.noteLength", "track.duration":
		if s.Value != nil && s.Value.Dur != nil {
			f.noteLen = s.Value.Dur.Beat(f.noteLen)
			return nil
		}
		v, err := numberValue(s.Value)
		if err != nil || v <= 0 {
			return fmt.Errorf("noteLength wants a duration or positive number")
		}
		f.noteLen = v
	case "song.endMode":
		if s.Value == nil || s.Value.Str == nil {
			return fmt.Errorf("endMode wants a string")
		}
		mode, err := ParseEndMode(*s.Value.Str)
		if err != nil {
			return err
		}
		r.state.EndMode = mode
	case "track.instrument":
		cfg, err := r.evalInstrument(f, s.Value)
		if err != nil {
			return err
		}
		f.instrument = cfg
		if cfg.PresetRef != "" {
			r.emit(event.Event{
				Beat: f.cursor, Kind: event.KindPresetRef, Track: f.track,
				Name: cfg.PresetRef, SpanStart: s.Span.Start, SpanEnd: s.Span.End,
			})
		}
	default:
		val, err := stringValue(s.Value)
		if err != nil {
			return fmt.Errorf("property %s: %w", s.Target, err)
		}
		r.emit(event.Event{
			Beat: f.cursor, Kind: event.KindSetProperty, Track: f.track,
			Target: s.Target, Value: val,
			SpanStart: s.Span.Start, SpanEnd: s.Span.End,
		})
	}
	return nil
}

func numberValue(e *ast.Expr) (float64, error) {
	if e == nil || e.Number == nil {
		return 0, fmt.Errorf("expected a number")
	}
	return *e.Number, nil
}

func stringValue(e *ast.Expr) (string, error) {
	switch {
	case e == nil:
		return "", fmt.Errorf("missing value")
	case e.Number != nil:
		return formatNumber(*e.Number), nil
	case e.Str != nil:
		return *e.Str, nil
	case e.Ident != nil:
		return *e.Ident, nil
	}
	return "", fmt.Errorf("value has no string form")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
