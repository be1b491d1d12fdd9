package synth

import "math"

// Waveform selects an oscillator shape.
type Waveform int

const (
	WaveSine Waveform = iota
	WaveSquare
	WaveSawtooth
	WaveTriangle
)

// ParseWaveform maps a waveform name to its enum; unknown names fall
// back to triangle.
func ParseWaveform(s string) Waveform {
	switch s {
	case "sine":
		return WaveSine
	case "square":
		return WaveSquare
	case "sawtooth", "saw":
		return WaveSawtooth
	default:
		return WaveTriangle
	}
}

// Oscillator is a band-limited oscillator. Sawtooth and square use
// PolyBLEP correction at their discontinuities; triangle is piecewise
// linear, whose harmonics roll off fast enough to leave uncorrected.
type Oscillator struct {
	Waveform Waveform
	// Detune in cents.
	Detune float64

	freq       float64
	phase      float64
	sampleRate float64
}

func NewOscillator(w Waveform, sampleRate float64) *Oscillator {
	return &Oscillator{Waveform: w, freq: 440, sampleRate: sampleRate}
}

// SetFrequency sets the base frequency and resets phase.
func (o *Oscillator) SetFrequency(freq float64) {
	o.freq = freq
	o.phase = 0
}

// Frequency returns the base frequency (before detune).
func (o *Oscillator) Frequency() float64 { return o.freq }

func (o *Oscillator) phaseInc() float64 {
	f := o.freq * math.Pow(2, o.Detune/1200)
	return f / o.sampleRate
}

// Next generates the next sample in [-1, 1] (PolyBLEP overshoot aside).
func (o *Oscillator) Next() float64 {
	inc := o.phaseInc()
	var s float64
	switch o.Waveform {
	case WaveSine:
		s = math.Sin(2 * math.Pi * o.phase)
	case WaveSawtooth:
		s = 2*o.phase - 1 - polyBLEP(o.phase, inc)
	case WaveSquare:
		s = o.square(inc)
	default:
		if o.phase < 0.5 {
			s = 4*o.phase - 1
		} else {
			s = 3 - 4*o.phase
		}
	}
	o.phase += inc
	if o.phase >= 1 {
		o.phase -= 1
	}
	return s
}

func (o *Oscillator) square(inc float64) float64 {
	s := -1.0
	if o.phase < 0.5 {
		s = 1.0
	}
	s += polyBLEP(o.phase, inc)
	s -= polyBLEP(math.Mod(o.phase+0.5, 1), inc)
	return s
}

// polyBLEP returns the band-limiting correction to subtract from a
// naive waveform around a step discontinuity at phase 0.
func polyBLEP(t, dt float64) float64 {
	if t < dt {
		t /= dt
		return 2*t - t*t - 1
	}
	if t > 1-dt {
		t = (t - 1) / dt
		return t*t + 2*t + 1
	}
	return 0
}
