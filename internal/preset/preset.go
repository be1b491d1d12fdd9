// Package preset holds instrument configuration and the preset library.
//
// An InstrumentConfig is the value a program assigns to track.instrument:
// either an oscillator description, a reference into the preset library,
// or a layered composite of both. Unset fields fall back to defaults at
// voice activation, so a config built from a bare waveform string is valid.
package preset

// InstrumentConfig describes how notes on a track are synthesized.
type InstrumentConfig struct {
	// Waveform is one of "sine", "square", "sawtooth"/"saw", "triangle".
	// Unknown values fall back to triangle.
	Waveform string

	Attack  *float64
	Decay   *float64
	Sustain *float64
	Release *float64

	// Detune in cents.
	Detune *float64
	// Mixer is the per-voice gain before the master chain.
	Mixer *float64

	// PresetRef names a library preset to resolve at activation time.
	// When the resolver cannot supply it, the config's own fields apply.
	PresetRef string

	// Sample, when set, selects sample playback instead of an oscillator.
	Sample *SampleZone

	// Layers, when non-empty, makes this a composite: one voice is
	// activated per layer and the fields above are ignored except Mixer.
	// Sampler layers sound only for keys inside their zone's range, so
	// disjoint ranges form a key split.
	Layers []InstrumentConfig
}

// Envelope defaults.
const (
	DefaultAttack  = 0.01
	DefaultDecay   = 0.1
	DefaultSustain = 0.7
	DefaultRelease = 0.3
)

// Default returns the instrument used when a track never assigns one.
func Default() InstrumentConfig {
	return InstrumentConfig{Waveform: "triangle"}
}

// AttackOr etc. read an envelope field with its default.
func (c *InstrumentConfig) AttackOr() float64  { return orDefault(c.Attack, DefaultAttack) }
func (c *InstrumentConfig) DecayOr() float64   { return orDefault(c.Decay, DefaultDecay) }
func (c *InstrumentConfig) SustainOr() float64 { return orDefault(c.Sustain, DefaultSustain) }
func (c *InstrumentConfig) ReleaseOr() float64 { return orDefault(c.Release, DefaultRelease) }
func (c *InstrumentConfig) DetuneOr() float64  { return orDefault(c.Detune, 0) }
func (c *InstrumentConfig) MixerOr() float64   { return orDefault(c.Mixer, 1) }

func orDefault(p *float64, def float64) float64 {
	if p != nil {
		return *p
	}
	return def
}

// Merge overlays the explicitly set fields of other onto c. Used when a
// program customizes a resolved preset (e.g. overriding its envelope).
func (c InstrumentConfig) Merge(other InstrumentConfig) InstrumentConfig {
	out := c
	if other.Waveform != "" {
		out.Waveform = other.Waveform
	}
	if other.Attack != nil {
		out.Attack = other.Attack
	}
	if other.Decay != nil {
		out.Decay = other.Decay
	}
	if other.Sustain != nil {
		out.Sustain = other.Sustain
	}
	if other.Release != nil {
		out.Release = other.Release
	}
	if other.Detune != nil {
		out.Detune = other.Detune
	}
	if other.Mixer != nil {
		out.Mixer = other.Mixer
	}
	if other.Sample != nil {
		out.Sample = other.Sample
	}
	if len(other.Layers) > 0 {
		out.Layers = other.Layers
	}
	return out
}

// SampleZone is a loaded audio sample mapped to the keyboard.
type SampleZone struct {
	// Data is mono sample data.
	Data []float32
	// SampleRate is the native rate of Data.
	SampleRate float64
	// RootNote is the MIDI note at which Data plays back unshifted.
	RootNote int
	// FineTuneCents adjusts the root pitch.
	FineTuneCents float64
	// KeyLow and KeyHigh bound the zone's key range (inclusive).
	// KeyHigh 0 means unbounded (127).
	KeyLow, KeyHigh int
	// LoopStart/LoopEnd are sample offsets; LoopEnd 0 means no loop.
	LoopStart, LoopEnd int
}

// Contains reports whether the zone covers the given MIDI note.
func (z *SampleZone) Contains(midi int) bool {
	high := z.KeyHigh
	if high <= 0 {
		high = 127
	}
	return midi >= z.KeyLow && midi <= high
}

// PlaybackRate returns the rate at which Data must be read so the zone
// sounds at targetFreq when the engine runs at engineRate.
func (z *SampleZone) PlaybackRate(targetFreq, rootFreq, engineRate float64) float64 {
	if rootFreq <= 0 || engineRate <= 0 {
		return 1
	}
	return (targetFreq / rootFreq) * (z.SampleRate / engineRate)
}
