package songwalker

import (
	"errors"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/songwalker/songwalker-go/internal/ast"
	"github.com/songwalker/songwalker-go/internal/effects"
	"github.com/songwalker/songwalker-go/internal/engine"
	"github.com/songwalker/songwalker-go/internal/event"
	"github.com/songwalker/songwalker-go/internal/preset"
	"github.com/songwalker/songwalker-go/internal/runner"
)

// RenderOption configures offline rendering.
type RenderOption func(*renderConfig)

type renderConfig struct {
	bufferBeats float64
	fx          effects.Config
	resolver    preset.Resolver
	steal       bool
	maxSeconds  float64
	seekBeat    float64
}

func defaultRenderConfig() renderConfig {
	return renderConfig{
		bufferBeats: event.DefaultWindowBeats,
		fx:          effects.DefaultConfig(),
		maxSeconds:  600,
	}
}

// RenderWithBufferBeats sets the execution lead window.
func RenderWithBufferBeats(beats float64) RenderOption {
	return func(cfg *renderConfig) {
		if beats > 0 {
			cfg.bufferBeats = beats
		}
	}
}

// RenderWithEffects overrides the master effects configuration.
func RenderWithEffects(fx effects.Config) RenderOption {
	return func(cfg *renderConfig) { cfg.fx = fx }
}

// RenderWithPresets installs a preset resolver.
func RenderWithPresets(r preset.Resolver) RenderOption {
	return func(cfg *renderConfig) { cfg.resolver = r }
}

// RenderWithVoiceStealing enables oldest-voice stealing.
func RenderWithVoiceStealing(enabled bool) RenderOption {
	return func(cfg *renderConfig) { cfg.steal = enabled }
}

// RenderWithMaxDuration caps the render length, the safety net for
// songs that never end on their own. Default 10 minutes.
func RenderWithMaxDuration(seconds float64) RenderOption {
	return func(cfg *renderConfig) {
		if seconds > 0 {
			cfg.maxSeconds = seconds
		}
	}
}

// RenderFrom renders silently up to the given beat and returns only
// audio from there on.
func RenderFrom(beat float64) RenderOption {
	return func(cfg *renderConfig) { cfg.seekBeat = beat }
}

// RenderSong renders prog to completion per its end mode and returns
// interleaved stereo float32 samples.
func RenderSong(prog *ast.Program, sampleRate int, opts ...RenderOption) ([]float32, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := defaultRenderConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	run, eng := buildOffline(prog, sampleRate, &cfg)
	src := newSongSource(run, eng)

	var out []float32
	block := make([]float32, eng.BlockSize()*2)
	maxFrames := int64(cfg.maxSeconds * float64(sampleRate))
	var rendered int64
	var skipping bool
	if cfg.seekBeat > 0 {
		eng.SeekTo(cfg.seekBeat)
		skipping = true
	}
	for !src.Finished() && rendered < maxFrames {
		src.Process(block)
		rendered += int64(len(block) / 2)
		if skipping {
			if eng.Seeking() {
				continue
			}
			skipping = false
		}
		out = append(out, block...)
	}
	return out, nil
}

// RenderSeconds renders at most the given duration, useful for taking
// a fixed slice of an infinite song. Finite songs that end sooner
// produce a shorter result.
func RenderSeconds(prog *ast.Program, sampleRate int, seconds float64, opts ...RenderOption) ([]float32, error) {
	opts = append(opts, RenderWithMaxDuration(seconds))
	return RenderSong(prog, sampleRate, opts...)
}

func buildOffline(prog *ast.Program, sampleRate int, cfg *renderConfig) (*runner.Runner, *engine.Engine) {
	buf := event.NewBuffer(cfg.bufferBeats)
	run := runner.New(prog, buf)
	engOpts := []engine.Option{
		engine.WithEffects(cfg.fx),
		engine.WithVoiceStealing(cfg.steal),
	}
	if cfg.resolver != nil {
		engOpts = append(engOpts, engine.WithResolver(cfg.resolver))
	}
	return run, engine.New(sampleRate, buf, engOpts...)
}

// CollectEvents executes prog to completion with an unbounded lead
// window and returns every event in time order. This is the batch view
// of the same execution the streaming path performs incrementally.
func CollectEvents(prog *ast.Program) ([]event.Event, []runner.Diagnostic, error) {
	buf := event.NewBuffer(math.Inf(1))
	run := runner.New(prog, buf)
	const maxSteps = 10_000_000
	steps := 0
	for !run.Done() {
		n := run.StepN(65536)
		steps += n
		if n == 0 {
			break
		}
		if steps > maxSteps {
			return nil, run.Diagnostics(), errors.New("program does not terminate")
		}
	}
	evs := buf.DrainUpTo(math.Inf(1))
	out := make([]event.Event, len(evs))
	copy(out, evs)
	return out, run.Diagnostics(), nil
}

// ExtractPresetRefs executes prog without rendering and returns the
// preset ids it references, in first-use order. Hosts use this to load
// or fetch presets before playback starts.
func ExtractPresetRefs(prog *ast.Program) ([]string, error) {
	evs, _, err := CollectEvents(prog)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var refs []string
	for _, ev := range evs {
		if ev.Kind == event.KindPresetRef && !seen[ev.Name] {
			seen[ev.Name] = true
			refs = append(refs, ev.Name)
		}
	}
	return refs, nil
}

// RenderSingleNote renders one note with the given instrument, for
// auditioning presets. gateBeats is clamped to two seconds of gate and
// the result is hard-capped at four seconds.
func RenderSingleNote(cfg preset.InstrumentConfig, note string, gateBeats float64, sampleRate int, opts ...RenderOption) ([]float32, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	rc := defaultRenderConfig()
	for _, opt := range opts {
		opt(&rc)
	}
	const bpm = 120.0
	maxGateBeats := 2.0 * bpm / 60
	if gateBeats <= 0 || gateBeats > maxGateBeats {
		gateBeats = maxGateBeats
	}
	if r := cfg.ReleaseOr(); r > 1.5 {
		r = 1.5
		cfg.Release = &r
	}

	buf := event.NewBuffer(gateBeats + 1)
	engOpts := []engine.Option{engine.WithEffects(rc.fx)}
	if rc.resolver != nil {
		engOpts = append(engOpts, engine.WithResolver(rc.resolver))
	}
	eng := engine.New(sampleRate, buf, engOpts...)
	buf.Push(event.Event{
		Kind: event.KindNote, Pitch: note, Velocity: 100,
		Gate: gateBeats, Instrument: cfg,
	})

	var out []float32
	block := make([]float32, eng.BlockSize()*2)
	capFrames := 4 * sampleRate
	started := false
	for len(out)/2 < capFrames {
		frames := eng.RenderBlock(block)
		out = append(out, block[:frames*2]...)
		if eng.Voices() > 0 {
			started = true
		} else if started {
			break
		}
	}
	if len(out)/2 > capFrames {
		out = out[:capFrames*2]
	}
	return out, nil
}

// WriteWAV encodes interleaved stereo float32 samples as a 16-bit PCM
// WAV stream.
func WriteWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 2, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		v := int(math.Round(float64(s) * 32767))
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		data[i] = v
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}
