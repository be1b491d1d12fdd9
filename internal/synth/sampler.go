package synth

import (
	"math"

	"github.com/songwalker/songwalker-go/internal/preset"
)

// samplerSource plays a preset sample zone pitched to a target
// frequency by linear-interpolation resampling.
type samplerSource struct {
	zone *preset.SampleZone
	pos  float64
	rate float64
	done bool
}

func newSamplerSource(zone *preset.SampleZone, targetFreq, engineRate float64) *samplerSource {
	root := MIDIToFreq(zone.RootNote, 440) * math.Pow(2, zone.FineTuneCents/1200)
	return &samplerSource{
		zone: zone,
		rate: zone.PlaybackRate(targetFreq, root, engineRate),
	}
}

func (s *samplerSource) next() float64 {
	if s.done {
		return 0
	}
	data := s.zone.Data
	n := len(data)
	if n == 0 {
		s.done = true
		return 0
	}
	idx := int(s.pos)
	if idx >= n {
		s.done = true
		return 0
	}
	frac := s.pos - float64(idx)
	s0 := float64(data[idx])
	s1 := s0
	if idx+1 < n {
		s1 = float64(data[idx+1])
	}
	out := s0 + frac*(s1-s0)

	s.pos += s.rate
	if s.zone.LoopEnd > s.zone.LoopStart && s.pos >= float64(s.zone.LoopEnd) {
		s.pos = float64(s.zone.LoopStart) + (s.pos - float64(s.zone.LoopEnd))
	}
	return out
}

// release lets a non-looping sample keep playing through its tail;
// looping samples stop looping so they can ring out.
func (s *samplerSource) release() {
	if s.zone.LoopEnd > s.zone.LoopStart {
		s.zone = &preset.SampleZone{
			Data:       s.zone.Data,
			SampleRate: s.zone.SampleRate,
			RootNote:   s.zone.RootNote,
		}
	}
}
