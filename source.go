package songwalker

import (
	"sync/atomic"

	"github.com/songwalker/songwalker-go/internal/engine"
	"github.com/songwalker/songwalker-go/internal/runner"
)

// songSource couples a runner and an engine behind the audio pull:
// each Process call fills the producer side up to the lead window,
// renders blocks, and watches for the song's natural end.
//
// End detection follows the song's end mode. gate cuts the moment the
// last note-off has passed, release waits for envelopes to finish, and
// tail adds half a second for the effect chain to ring out.
type songSource struct {
	run *runner.Runner
	eng *engine.Engine

	block    []float32
	rem      []float32
	finished atomic.Bool
	tailLeft int
	tailSet  bool

	diagsSeen int
	onDiag    func(runner.Diagnostic)
	onFinish  func()
}

func newSongSource(run *runner.Runner, eng *engine.Engine) *songSource {
	return &songSource{
		run:   run,
		eng:   eng,
		block: make([]float32, eng.BlockSize()*2),
	}
}

func (s *songSource) Finished() bool { return s.finished.Load() }

// Process implements audio.SampleSource.
func (s *songSource) Process(dst []float32) {
	for len(dst) > 0 {
		if len(s.rem) > 0 {
			n := copy(dst, s.rem)
			s.rem = s.rem[n:]
			dst = dst[n:]
			continue
		}
		if s.finished.Load() {
			for i := range dst {
				dst[i] = 0
			}
			return
		}
		s.renderBlock()
	}
}

// renderBlock advances the song by one engine block into s.rem.
func (s *songSource) renderBlock() {
	s.run.Step()
	s.reportDiags()

	if s.ended() {
		if !s.tailSet {
			s.tailSet = true
			if s.run.State().EndMode == runner.EndGate {
				s.eng.KillVoices()
			}
			if s.run.State().EndMode == runner.EndTail {
				s.tailLeft = s.eng.SampleRate() / 2
			}
		}
		if s.tailLeft <= 0 {
			s.finished.Store(true)
			if s.onFinish != nil {
				s.onFinish()
			}
			for i := range s.block {
				s.block[i] = 0
			}
			s.rem = s.block
			return
		}
	}

	frames := s.eng.RenderBlock(s.block)
	if s.tailSet {
		s.tailLeft -= frames
	}
	s.rem = s.block[:frames*2]
}

// ended reports whether the song has reached its end-mode condition,
// not counting any pending effects tail.
func (s *songSource) ended() bool {
	if !s.run.Done() || s.eng.Pending() > 0 {
		return false
	}
	if s.eng.BeatPos() < s.run.Extent()-1e-9 {
		return false
	}
	switch s.run.State().EndMode {
	case runner.EndGate:
		return s.eng.GatedVoices() == 0
	default:
		return s.eng.Voices() == 0
	}
}

func (s *songSource) reportDiags() {
	diags := s.run.Diagnostics()
	for ; s.diagsSeen < len(diags); s.diagsSeen++ {
		if s.onDiag != nil {
			s.onDiag(diags[s.diagsSeen])
		}
	}
}
