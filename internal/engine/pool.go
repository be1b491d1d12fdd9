package engine

import "github.com/songwalker/songwalker-go/internal/synth"

// DefaultVoiceCapacity is the fixed size of the voice pool.
const DefaultVoiceCapacity = 64

// VoicePool is a fixed-size pool of reusable voices. Allocation scans
// for the first idle slot; when every slot is busy the pool either
// refuses (the default, dropping the new note) or steals the oldest
// sounding voice when stealing is enabled.
type VoicePool struct {
	voices  []*synth.Voice
	steal   bool
	dropped int64
}

func NewVoicePool(capacity int, sampleRate float64, steal bool) *VoicePool {
	if capacity <= 0 {
		capacity = DefaultVoiceCapacity
	}
	p := &VoicePool{voices: make([]*synth.Voice, capacity), steal: steal}
	for i := range p.voices {
		p.voices[i] = synth.NewVoice(sampleRate)
	}
	return p
}

// Allocate returns a voice ready for NoteOn, or nil when the pool is
// exhausted and stealing is off.
func (p *VoicePool) Allocate() *synth.Voice {
	for _, v := range p.voices {
		if v.State() == synth.VoiceIdle {
			return v
		}
	}
	if !p.steal {
		p.dropped++
		return nil
	}
	oldest := p.voices[0]
	for _, v := range p.voices[1:] {
		if v.StartSample() < oldest.StartSample() {
			oldest = v
		}
	}
	oldest.Kill()
	return oldest
}

// Active returns the number of sounding voices (active or releasing).
func (p *VoicePool) Active() int {
	n := 0
	for _, v := range p.voices {
		if v.State() != synth.VoiceIdle {
			n++
		}
	}
	return n
}

// Gated returns the number of voices still before their note-off.
func (p *VoicePool) Gated() int {
	n := 0
	for _, v := range p.voices {
		if v.State() == synth.VoiceActive {
			n++
		}
	}
	return n
}

// Dropped returns how many notes were refused since creation.
func (p *VoicePool) Dropped() int64 { return p.dropped }

// KillAll silences every voice immediately.
func (p *VoicePool) KillAll() {
	for _, v := range p.voices {
		v.Kill()
	}
}

// Each calls fn for every non-idle voice.
func (p *VoicePool) Each(fn func(*synth.Voice)) {
	for _, v := range p.voices {
		if v.State() != synth.VoiceIdle {
			fn(v)
		}
	}
}

// Capacity returns the pool size.
func (p *VoicePool) Capacity() int { return len(p.voices) }
