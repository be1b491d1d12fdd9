package synth

import (
	"math"

	"github.com/songwalker/songwalker-go/internal/preset"
)

// VoiceState is the lifecycle of a pooled voice.
type VoiceState int

const (
	VoiceIdle VoiceState = iota
	VoiceActive
	VoiceReleasing
)

// Voice renders one sounding note: an oscillator or sampler shaped by
// an ADSR envelope. Voices are pooled and reused; NoteOn reconfigures
// in place without allocating.
type Voice struct {
	osc        Oscillator
	smp        *samplerSource
	env        Envelope
	velocity   float64
	gain       float64
	state      VoiceState
	sampleRate float64

	// Absolute sample indices, against the engine's running counter.
	startSample   int64
	releaseSample int64

	// Identity for targeted note-off (live input) and diagnostics.
	midiNote int
	track    string
	live     bool

	// nextFreq is a lookahead hint: the frequency of the following
	// note on the same track, when known at activation time.
	nextFreq float64
}

func NewVoice(sampleRate float64) *Voice {
	v := &Voice{sampleRate: sampleRate}
	v.osc = *NewOscillator(WaveTriangle, sampleRate)
	v.env = *NewEnvelope(sampleRate)
	return v
}

// NoteOn activates the voice. startSample and releaseSample are
// absolute positions on the engine clock; velocity is 0..1.
func (v *Voice) NoteOn(cfg *preset.InstrumentConfig, midiNote int, freq, velocity float64, startSample, releaseSample int64) {
	v.osc.Waveform = ParseWaveform(cfg.Waveform)
	v.osc.Detune = cfg.DetuneOr()
	v.osc.SetFrequency(freq)
	v.smp = nil
	if cfg.Sample != nil {
		v.smp = newSamplerSource(cfg.Sample, freq, v.sampleRate)
	}
	v.env.Attack = cfg.AttackOr()
	v.env.Decay = cfg.DecayOr()
	v.env.Sustain = cfg.SustainOr()
	v.env.Release = cfg.ReleaseOr()
	v.env.GateOn()
	v.velocity = velocity
	v.gain = cfg.MixerOr()
	v.midiNote = midiNote
	v.startSample = startSample
	v.releaseSample = releaseSample
	v.state = VoiceActive
	v.live = false
	v.nextFreq = 0
}

// NoteOff releases the voice ahead of its scheduled gate end, as with
// live input.
func (v *Voice) NoteOff(atSample int64) {
	if v.state != VoiceActive {
		return
	}
	if atSample < v.releaseSample {
		v.releaseSample = atSample
	}
}

// Kill reclaims the voice immediately.
func (v *Voice) Kill() {
	v.env.Kill()
	v.state = VoiceIdle
}

func (v *Voice) State() VoiceState { return v.state }
func (v *Voice) MIDINote() int     { return v.midiNote }
func (v *Voice) Track() string     { return v.track }
func (v *Voice) StartSample() int64 { return v.startSample }

// SetTrack tags the voice with its originating track.
func (v *Voice) SetTrack(track string) { v.track = track }

// SetLive marks the voice as driven by live input rather than the
// event stream.
func (v *Voice) SetLive(live bool) { v.live = live }

// Live reports whether the voice came from live input.
func (v *Voice) Live() bool { return v.live }

// SetNextFreq records the lookahead hint described on nextFreq.
func (v *Voice) SetNextFreq(freq float64) { v.nextFreq = freq }

// RenderInto fills dst with mono samples for the block starting at
// absolute sample blockStart, honoring the voice's start offset and
// scheduled release. Returns false once the voice has gone idle.
func (v *Voice) RenderInto(dst []float32, blockStart int64) bool {
	if v.state == VoiceIdle {
		return false
	}
	for i := range dst {
		at := blockStart + int64(i)
		if at < v.startSample {
			dst[i] = 0
			continue
		}
		if v.state == VoiceActive && at >= v.releaseSample {
			v.env.GateOff()
			if v.smp != nil {
				v.smp.release()
			}
			v.state = VoiceReleasing
		}
		var s float64
		if v.smp != nil {
			s = v.smp.next()
		} else {
			s = v.osc.Next()
		}
		out := s * v.env.Next() * v.velocity * v.gain
		if math.IsNaN(out) || math.IsInf(out, 0) {
			out = 0
		}
		dst[i] = float32(out)
		if v.state == VoiceReleasing && v.env.Finished() {
			v.state = VoiceIdle
			for j := i + 1; j < len(dst); j++ {
				dst[j] = 0
			}
			return false
		}
	}
	return true
}
