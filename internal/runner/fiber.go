package runner

import (
	"fmt"
	"math"

	"github.com/songwalker/songwalker-go/internal/ast"
	"github.com/songwalker/songwalker-go/internal/event"
	"github.com/songwalker/songwalker-go/internal/preset"
)

const defaultVelocity = 100

// fiber is one cooperative thread of execution: a beat cursor plus an
// explicit statement stack. Each turn executes exactly one statement
// so fibers interleave deterministically.
type fiber struct {
	track      string
	cursor     float64
	limit      float64
	instrument preset.InstrumentConfig
	noteLen    float64
	params     map[string]preset.InstrumentConfig
	vars       map[string]float64
	stack      []execFrame
	done       bool
}

// execFrame is one level of the statement stack. A non-nil loop makes
// the frame repeat per its condition instead of popping on exhaustion.
type execFrame struct {
	stmts []ast.Statement
	idx   int
	loop  *loopState
}

func newFiber(track string, body []ast.Statement, cursor, limit float64, inst preset.InstrumentConfig, noteLen float64, params map[string]preset.InstrumentConfig) *fiber {
	if params == nil {
		params = map[string]preset.InstrumentConfig{}
	}
	return &fiber{
		track:      track,
		cursor:     cursor,
		limit:      limit,
		instrument: inst,
		noteLen:    noteLen,
		params:     params,
		vars:       map[string]float64{},
		stack:      []execFrame{{stmts: body}},
	}
}

// stepFiber executes one statement of f. Frame transitions (loop
// back-edges, pops) are bookkeeping and happen within the same turn.
func (r *Runner) stepFiber(f *fiber) {
	s := r.nextStatement(f)
	if s == nil {
		return
	}
	if err := r.exec(f, s); err != nil {
		r.fail(f, s, err)
	}
	if f.cursor >= f.limit {
		f.done = true
	}
}

// nextStatement advances frame state until a statement is available,
// handling loop repetition and frame pops. Returns nil once the fiber
// is exhausted.
func (r *Runner) nextStatement(f *fiber) *ast.Statement {
	for {
		if len(f.stack) == 0 {
			f.done = true
			return nil
		}
		frame := &f.stack[len(f.stack)-1]
		if frame.idx < len(frame.stmts) {
			s := &frame.stmts[frame.idx]
			frame.idx++
			return s
		}
		if frame.loop != nil {
			frame.loop.applyUpdate(f.vars)
			if frame.loop.test(f.vars) {
				frame.idx = 0
				continue
			}
		}
		f.stack = f.stack[:len(f.stack)-1]
	}
}

func (r *Runner) exec(f *fiber, s *ast.Statement) error {
	switch s.Kind {
	case ast.KindNote:
		return r.execNote(f, s)
	case ast.KindChord:
		return r.execChord(f, s)
	case ast.KindRest:
		f.cursor += s.Dur.Beat(f.noteLen)
		r.noteExtent(f.cursor)
	case ast.KindAssign:
		return r.setProperty(f, s)
	case ast.KindConst:
		return r.execConst(f, s)
	case ast.KindCall:
		return r.execCall(f, s)
	case ast.KindFor:
		return r.execFor(f, s)
	case ast.KindTrackDef:
		if f.track != "" {
			return fmt.Errorf("track definitions must be top level")
		}
	case ast.KindComment:
	default:
		return fmt.Errorf("unknown statement kind %q", s.Kind)
	}
	return nil
}

func (r *Runner) execNote(f *fiber, s *ast.Statement) error {
	if f.cursor >= f.limit {
		f.done = true
		return nil
	}
	vel := defaultVelocity
	if s.Velocity != nil {
		vel = int(*s.Velocity)
	}
	gate := s.Gate.Beat(f.noteLen)
	r.emit(event.Event{
		Beat: f.cursor, Kind: event.KindNote, Track: f.track,
		Pitch: s.Pitch, Velocity: float64(vel), Gate: gate,
		Instrument: f.instrument,
		SpanStart:  s.Span.Start, SpanEnd: s.Span.End,
	})
	f.cursor += s.Step.Beat(f.noteLen)
	return nil
}

func (r *Runner) execChord(f *fiber, s *ast.Statement) error {
	if f.cursor >= f.limit {
		f.done = true
		return nil
	}
	chordGate := s.Gate.Beat(f.noteLen)
	vel := defaultVelocity
	if s.Velocity != nil {
		vel = int(*s.Velocity)
	}
	for _, n := range s.Notes {
		gate := chordGate
		if n.Gate != nil {
			gate = n.Gate.Beat(f.noteLen)
		}
		r.emit(event.Event{
			Beat: f.cursor, Kind: event.KindNote, Track: f.track,
			Pitch: n.Pitch, Velocity: float64(vel), Gate: gate,
			Instrument: f.instrument,
			SpanStart:  s.Span.Start, SpanEnd: s.Span.End,
		})
	}
	f.cursor += s.Step.Beat(f.noteLen)
	return nil
}

func (r *Runner) execConst(f *fiber, s *ast.Statement) error {
	cfg, err := r.evalInstrument(f, s.Value)
	if err != nil {
		return fmt.Errorf("const %s: %w", s.Name, err)
	}
	r.state.Consts[s.Name] = cfg
	if cfg.PresetRef != "" {
		r.emit(event.Event{
			Beat: f.cursor, Kind: event.KindPresetRef, Track: f.track,
			Name: cfg.PresetRef, SpanStart: s.Span.Start, SpanEnd: s.Span.End,
		})
	}
	return nil
}

// execCall spawns a fiber for the called track at the caller's current
// cursor. The caller's cursor moves only by the trailing step, so a
// call with no step runs the track in parallel with what follows.
func (r *Runner) execCall(f *fiber, s *ast.Statement) error {
	def, ok := r.tracks[s.Name]
	if !ok {
		r.emit(event.Event{
			Beat: f.cursor, Kind: event.KindTrackStart, Track: f.track,
			Name: s.Name, SpanStart: s.Span.Start, SpanEnd: s.Span.End,
		})
		f.cursor += s.Step.Beat(0)
		return nil
	}

	params := make(map[string]preset.InstrumentConfig, len(def.Params))
	for i, name := range def.Params {
		if i >= len(s.Args) {
			break
		}
		cfg, err := r.evalInstrument(f, &s.Args[i])
		if err != nil {
			return fmt.Errorf("call %s arg %s: %w", s.Name, name, err)
		}
		params[name] = cfg
	}

	limit := math.Inf(1)
	if s.PlayDuration != nil {
		limit = f.cursor + s.PlayDuration.Beat(f.noteLen)
	}
	child := newFiber(s.Name, def.Body, f.cursor, limit, f.instrument, f.noteLen, params)
	r.fibers = append(r.fibers, child)

	f.cursor += s.Step.Beat(0)
	r.noteExtent(f.cursor)
	return nil
}

func (r *Runner) execFor(f *fiber, s *ast.Statement) error {
	if len(s.Body) == 0 {
		return fmt.Errorf("empty loop body")
	}
	loop, err := parseLoop(s.Init, s.Cond, s.Update)
	if err != nil {
		return err
	}
	loop.applyInit(f.vars)
	if !loop.test(f.vars) {
		return nil
	}
	f.stack = append(f.stack, execFrame{stmts: s.Body, loop: loop})
	return nil
}
