// Package effects implements the master effects chain: chorus, delay,
// reverb, compressor, then the soft-clipping output mixer, always in
// that order.
package effects

import "math"

// Effector processes stereo audio one frame at a time.
type Effector interface {
	Process(l, r float32) (float32, float32)
	Reset()
}

// Chain applies a sequence of effects in order and scrubs the output:
// NaN, infinite, and denormal samples are flushed to zero so a
// misbehaving stage cannot poison downstream state.
type Chain struct {
	effects []Effector
}

func NewChain(effects ...Effector) *Chain {
	return &Chain{effects: effects}
}

// Config selects which stages are built and their parameters. A zero
// mix leaves that stage out entirely.
type Config struct {
	ChorusMix   float64
	ChorusRate  float64 // Hz
	ChorusDepth float64 // seconds

	DelayMix      float64
	DelayTime     float64 // seconds
	DelayFeedback float64

	ReverbMix      float64
	ReverbRoomSize float64
	ReverbDamping  float64

	Compress            bool
	CompressThresholdDB float64
	CompressRatio       float64

	MasterGain float64
}

// DefaultConfig enables every stage at its usual settings.
func DefaultConfig() Config {
	return Config{
		ChorusMix:   0.5,
		ChorusRate:  1.5,
		ChorusDepth: 0.002,

		DelayMix:      0.5,
		DelayTime:     0.5,
		DelayFeedback: 0.3,

		ReverbMix:      0.3,
		ReverbRoomSize: 0.5,
		ReverbDamping:  0.5,

		Compress:            true,
		CompressThresholdDB: -24,
		CompressRatio:       4,

		MasterGain: 0.8,
	}
}

// Build assembles the fixed-order chain for the config. The mixer is
// always present so master gain and soft clipping apply even when all
// other stages are disabled.
func Build(sampleRate int, cfg Config) *Chain {
	var fx []Effector
	if cfg.ChorusMix > 0 {
		fx = append(fx, NewChorus(sampleRate, cfg.ChorusRate, cfg.ChorusDepth, cfg.ChorusMix))
	}
	if cfg.DelayMix > 0 {
		fx = append(fx, NewDelay(sampleRate, cfg.DelayTime, cfg.DelayFeedback, cfg.DelayMix))
	}
	if cfg.ReverbMix > 0 {
		fx = append(fx, NewReverb(sampleRate, cfg.ReverbRoomSize, cfg.ReverbDamping, cfg.ReverbMix))
	}
	if cfg.Compress {
		fx = append(fx, NewCompressor(sampleRate, cfg.CompressThresholdDB, cfg.CompressRatio))
	}
	gain := cfg.MasterGain
	if gain <= 0 {
		gain = 0.8
	}
	fx = append(fx, NewMixer(gain))
	return NewChain(fx...)
}

func (c *Chain) Process(l, r float32) (float32, float32) {
	for _, e := range c.effects {
		l, r = e.Process(l, r)
	}
	return flush(l), flush(r)
}

func (c *Chain) Reset() {
	for _, e := range c.effects {
		e.Reset()
	}
}

const denormalFloor = 1e-20

func flush(s float32) float32 {
	f := float64(s)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if f > -denormalFloor && f < denormalFloor {
		return 0
	}
	return s
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
