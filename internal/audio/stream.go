// Package audio adapts a pull-based sample source to the platform
// audio device via oto. The device's reader goroutine drives the whole
// engine: each Read call pulls freshly rendered samples.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// SampleSource produces interleaved stereo float32 samples on demand.
type SampleSource interface {
	Process(dst []float32)
}

// FinishingSource is a SampleSource that can signal when playback has
// ended. When Finished returns true the stream returns io.EOF on the
// next Read.
type FinishingSource interface {
	SampleSource
	Finished() bool
}

// StreamReader exposes a SampleSource as the little-endian float32
// byte stream oto consumes.
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i := 0; i < need; i++ {
		u := math.Float32bits(r.buf[i])
		binary.LittleEndian.PutUint32(p[i*4:], u)
	}
	n := frames * 8
	if fs, ok := r.source.(FinishingSource); ok && fs.Finished() {
		return n, io.EOF
	}
	return n, nil
}

func (r *StreamReader) Close() error { return nil }

// Player owns one oto player fed by a StreamReader.
type Player struct {
	player *oto.Player
	reader io.ReadCloser
}

var (
	audioContextOnce sync.Once
	audioContext     *oto.Context
	audioContextErr  error
	audioSampleRate  int
)

// sharedAudioContext initializes the process-wide oto context on first
// use. oto allows a single context per process, so a later request at
// a different rate is an error.
func sharedAudioContext(sampleRate int) (*oto.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 2,
			Format:       oto.FormatFloat32LE,
		})
		if err != nil {
			audioContextErr = err
			return
		}
		<-ready
		audioContext = ctx
	})
	if audioContextErr != nil {
		return nil, audioContextErr
	}
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

func NewPlayer(sampleRate int, source SampleSource) (*Player, error) {
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source)
	pl := ctx.NewPlayer(reader)
	// Keep the device buffer short so engine-side state (mute, live
	// input) is audible promptly.
	pl.SetBufferSize(8192)
	return &Player{
		player: pl,
		reader: reader,
	}, nil
}

func (p *Player) Play()  { p.player.Play() }
func (p *Player) Pause() { p.player.Pause() }
func (p *Player) IsPlaying() bool {
	return p.player.IsPlaying()
}

// BufferedAhead reports how much already-rendered audio is queued in
// the device, as a duration at the given rate.
func (p *Player) BufferedAhead(sampleRate int) time.Duration {
	bytes := p.player.BufferedSize()
	frames := bytes / 8
	return time.Duration(float64(frames) / float64(sampleRate) * float64(time.Second))
}

func (p *Player) Stop() error {
	p.player.Pause()
	p.player.Close()
	return p.reader.Close()
}
