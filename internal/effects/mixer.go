package effects

import "math"

// Mixer is the final chain stage: master gain followed by a tanh soft
// clipper, so summed voices saturate instead of wrapping.
type Mixer struct {
	gain float32
}

func NewMixer(masterGain float64) *Mixer {
	return &Mixer{gain: float32(masterGain)}
}

func (m *Mixer) Process(l, r float32) (float32, float32) {
	return softClip(l * m.gain), softClip(r * m.gain)
}

func (m *Mixer) Reset() {}

// SetGain adjusts the master gain.
func (m *Mixer) SetGain(gain float64) { m.gain = float32(gain) }

func softClip(s float32) float32 {
	return float32(math.Tanh(float64(s)))
}
