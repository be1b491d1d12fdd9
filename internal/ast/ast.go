// Package ast defines the syntax tree for SongWalker programs.
//
// Programs are a flat list of statements. Track bodies reuse the same
// Statement type; which kinds are legal where is enforced by the runner,
// which reports misplaced statements as per-track diagnostics rather
// than rejecting the whole program.
package ast

// Statement kinds.
const (
	KindNote     = "note"
	KindChord    = "chord"
	KindRest     = "rest"
	KindAssign   = "assign"
	KindConst    = "const"
	KindTrackDef = "trackdef"
	KindCall     = "call"
	KindFor      = "for"
	KindComment  = "comment"
)

// Span locates a statement in the source text (byte offsets).
type Span struct {
	Start int `yaml:"start,omitempty"`
	End   int `yaml:"end,omitempty"`
}

// Program is a parsed SongWalker source file.
type Program struct {
	Statements []Statement `yaml:"statements"`
}

// Statement is a single program statement. Kind selects which fields
// are meaningful:
//
//	note:     Pitch, Velocity, Gate, Step
//	chord:    Notes, Gate, Step
//	rest:     Dur
//	assign:   Target, Value
//	const:    Name, Value
//	trackdef: Name, Params, Body
//	call:     Name, Velocity, PlayDuration, Args, Step
//	for:      Init, Cond, Update, Body
//	comment:  Text
type Statement struct {
	Kind string `yaml:"kind"`

	Pitch    string    `yaml:"pitch,omitempty"`
	Velocity *float64  `yaml:"velocity,omitempty"`
	Gate     *Duration `yaml:"gate,omitempty"`
	Step     *Duration `yaml:"step,omitempty"`

	Notes []ChordNote `yaml:"notes,omitempty"`

	Dur *Duration `yaml:"dur,omitempty"`

	Target string `yaml:"target,omitempty"`
	Name   string `yaml:"name,omitempty"`
	Value  *Expr  `yaml:"value,omitempty"`

	Params []string    `yaml:"params,omitempty"`
	Body   []Statement `yaml:"body,omitempty"`

	PlayDuration *Duration `yaml:"playDuration,omitempty"`
	Args         []Expr    `yaml:"args,omitempty"`

	Init   string `yaml:"init,omitempty"`
	Cond   string `yaml:"cond,omitempty"`
	Update string `yaml:"update,omitempty"`

	Text string `yaml:"text,omitempty"`

	Span Span `yaml:"span,omitempty"`
}

// ChordNote is one pitch of a chord, optionally with its own gate.
type ChordNote struct {
	Pitch string    `yaml:"pitch"`
	Gate  *Duration `yaml:"gate,omitempty"`
}

// Duration expresses a musical duration. Exactly one form is set:
//
//	Beats:    an absolute beat count
//	Inverse:  1/N of a whole note (N=4 is one beat)
//	Num/Den:  a fraction of a beat
//	Dots:     the current default duration extended by dots
//
// A nil *Duration means "use the track's current default duration".
type Duration struct {
	Beats   *float64 `yaml:"beats,omitempty"`
	Inverse *float64 `yaml:"inverse,omitempty"`
	Num     *float64 `yaml:"num,omitempty"`
	Den     *float64 `yaml:"den,omitempty"`
	Dots    *int     `yaml:"dots,omitempty"`
}

// Beat converts the duration to beats given the surrounding default
// duration (itself in beats). A nil receiver yields the default.
func (d *Duration) Beat(defaultBeats float64) float64 {
	if d == nil {
		return defaultBeats
	}
	switch {
	case d.Beats != nil:
		return *d.Beats
	case d.Inverse != nil && *d.Inverse != 0:
		return 4.0 / *d.Inverse
	case d.Num != nil && d.Den != nil && *d.Den != 0:
		return *d.Num / *d.Den
	case d.Dots != nil:
		// Each dot adds half of the previous extension.
		b := defaultBeats
		add := defaultBeats / 2
		for i := 0; i < *d.Dots; i++ {
			b += add
			add /= 2
		}
		return b
	}
	return defaultBeats
}

// Beats returns a Duration of the given absolute beat count.
func Beats(b float64) *Duration { return &Duration{Beats: &b} }

// Inverse returns a Duration of 1/n of a whole note.
func Inverse(n float64) *Duration { return &Duration{Inverse: &n} }

// Expr is an expression in instrument and property positions.
// Exactly one field is set.
type Expr struct {
	Number *float64        `yaml:"number,omitempty"`
	Str    *string         `yaml:"str,omitempty"`
	Ident  *string         `yaml:"ident,omitempty"`
	Dur    *Duration       `yaml:"durLit,omitempty"`
	Call   *CallExpr       `yaml:"call,omitempty"`
	Object map[string]Expr `yaml:"object,omitempty"`
	Array  []Expr          `yaml:"array,omitempty"`
}

// CallExpr is a builtin function application, e.g. Oscillator{...} or
// loadPreset("piano").
type CallExpr struct {
	Function string `yaml:"function"`
	Args     []Expr `yaml:"args,omitempty"`
}

// Num returns a number expression.
func Num(v float64) *Expr { return &Expr{Number: &v} }

// Str returns a string expression.
func Str(s string) *Expr { return &Expr{Str: &s} }

// Ident returns an identifier expression.
func Ident(name string) *Expr { return &Expr{Ident: &name} }
