package synth

// MaxReleaseSeconds bounds how long a released voice may ring before
// its slot is reclaimed. Configured releases are clamped to this.
const MaxReleaseSeconds = 8.0

type envStage int

const (
	stageIdle envStage = iota
	stageAttack
	stageDecay
	stageSustain
	stageRelease
)

// Envelope is a linear ADSR generator. Retriggering while audible
// restarts the attack from the current level rather than from zero, so
// fast repeated notes don't click.
type Envelope struct {
	Attack  float64
	Decay   float64
	Sustain float64
	Release float64

	stage      envStage
	level      float64
	startLevel float64
	remaining  int
	total      int
	sampleRate float64
}

func NewEnvelope(sampleRate float64) *Envelope {
	return &Envelope{
		Attack:     0.01,
		Decay:      0.1,
		Sustain:    0.7,
		Release:    0.3,
		sampleRate: sampleRate,
	}
}

// GateOn starts (or restarts) the attack stage.
func (e *Envelope) GateOn() {
	e.stage = stageAttack
	e.startLevel = e.level
	e.enterStage(e.Attack)
}

// GateOff starts the release stage from the current level.
func (e *Envelope) GateOff() {
	if e.stage == stageIdle {
		return
	}
	e.stage = stageRelease
	e.startLevel = e.level
	r := e.Release
	if r > MaxReleaseSeconds {
		r = MaxReleaseSeconds
	}
	e.enterStage(r)
}

// Kill silences the envelope immediately.
func (e *Envelope) Kill() {
	e.stage = stageIdle
	e.level = 0
}

func (e *Envelope) enterStage(seconds float64) {
	n := int(seconds * e.sampleRate)
	if n < 1 {
		n = 1
	}
	e.total = n
	e.remaining = n
}

// Next advances one sample and returns the current level in [0, 1].
func (e *Envelope) Next() float64 {
	switch e.stage {
	case stageIdle:
		return 0
	case stageSustain:
		e.level = e.Sustain
		return e.level
	}
	e.remaining--
	t := 1 - float64(e.remaining)/float64(e.total)
	switch e.stage {
	case stageAttack:
		e.level = e.startLevel + (1-e.startLevel)*t
	case stageDecay:
		e.level = 1 + (e.Sustain-1)*t
	case stageRelease:
		e.level = e.startLevel * (1 - t)
	}
	if e.remaining <= 0 {
		switch e.stage {
		case stageAttack:
			e.stage = stageDecay
			e.startLevel = 1
			e.enterStage(e.Decay)
		case stageDecay:
			e.stage = stageSustain
		case stageRelease:
			e.stage = stageIdle
			e.level = 0
		}
	}
	return e.level
}

// Finished reports whether the envelope has fully released.
func (e *Envelope) Finished() bool { return e.stage == stageIdle }

// Releasing reports whether the envelope is in its release stage.
func (e *Envelope) Releasing() bool { return e.stage == stageRelease }
