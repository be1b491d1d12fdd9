package preset

import (
	"math"

	"github.com/viterin/vek/vek32"
)

// PitchEstimate is the result of fundamental-frequency detection on a
// sample, used to derive sampler root-note metadata.
type PitchEstimate struct {
	Frequency     float64
	Confidence    float64
	MIDINote      int
	FineTuneCents float64
	// IsNoise is set when no periodic fundamental was found, as with
	// drums and noise samples.
	IsNoise bool
}

const (
	pitchMinFreq   = 50.0
	pitchMaxFreq   = 2000.0
	pitchThreshold = 0.15
)

// DetectPitch estimates the fundamental frequency of a mono buffer
// using the YIN difference function.
func DetectPitch(samples []float32, sampleRate float64) PitchEstimate {
	minLag := int(math.Ceil(sampleRate / pitchMaxFreq))
	maxLag := int(math.Floor(sampleRate / pitchMinFreq))
	if minLag < 1 {
		minLag = 1
	}
	if len(samples) < maxLag*2 || maxLag <= minLag {
		return PitchEstimate{IsNoise: true}
	}
	window := maxLag
	if w := len(samples) / 2; w < window {
		window = w
	}

	// Difference function d(tau) = sum_j (x[j] - x[j+tau])^2.
	diff := make([]float64, window+1)
	scratch := make([]float32, window)
	base := samples[:window]
	for tau := 1; tau <= window; tau++ {
		vek32.Sub_Into(scratch, base, samples[tau:tau+window])
		diff[tau] = float64(vek32.Dot(scratch, scratch))
	}

	// Cumulative mean normalized difference.
	cmnd := make([]float64, window+1)
	cmnd[0] = 1
	running := 0.0
	for tau := 1; tau <= window; tau++ {
		running += diff[tau]
		if running > 0 {
			cmnd[tau] = diff[tau] * float64(tau) / running
		} else {
			cmnd[tau] = 1
		}
	}

	// First dip below threshold; fall back to the global minimum.
	best := 0
	for tau := minLag; tau <= window; tau++ {
		if cmnd[tau] < pitchThreshold {
			for tau+1 <= window && cmnd[tau+1] < cmnd[tau] {
				tau++
			}
			best = tau
			break
		}
	}
	if best == 0 {
		min := math.Inf(1)
		for tau := minLag; tau <= window; tau++ {
			if cmnd[tau] < min {
				min = cmnd[tau]
				best = tau
			}
		}
		if best == 0 || cmnd[best] > 0.5 {
			return PitchEstimate{IsNoise: true}
		}
	}

	// Parabolic interpolation around the dip for sub-sample lag.
	lag := float64(best)
	if best > minLag && best < window {
		a, b, c := cmnd[best-1], cmnd[best], cmnd[best+1]
		denom := a - 2*b + c
		if denom != 0 {
			lag += (a - c) / (2 * denom)
		}
	}

	freq := sampleRate / lag
	conf := 1 - cmnd[best]
	if conf < 0 {
		conf = 0
	}
	midiF := 69 + 12*math.Log2(freq/440.0)
	midi := int(math.Round(midiF))
	cents := (midiF - float64(midi)) * 100
	if midi < 0 || midi > 127 {
		return PitchEstimate{Frequency: freq, Confidence: conf, IsNoise: true}
	}
	return PitchEstimate{
		Frequency:     freq,
		Confidence:    conf,
		MIDINote:      midi,
		FineTuneCents: cents,
		IsNoise:       conf < 0.5,
	}
}
