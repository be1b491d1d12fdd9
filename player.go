// Package songwalker plays and renders SongWalker programs: a
// streaming interpreter feeds a bounded event buffer which a real-time
// engine drains into audio. Programs of unbounded length play in
// constant memory because the interpreter only ever runs a few beats
// ahead of the speaker.
package songwalker

import (
	"errors"
	"sync"

	intaudio "github.com/songwalker/songwalker-go/internal/audio"
	"github.com/songwalker/songwalker-go/internal/ast"
	"github.com/songwalker/songwalker-go/internal/effects"
	"github.com/songwalker/songwalker-go/internal/engine"
	"github.com/songwalker/songwalker-go/internal/event"
	"github.com/songwalker/songwalker-go/internal/preset"
	"github.com/songwalker/songwalker-go/internal/runner"
)

// PlaybackEvent carries playback notifications from Watch().
type PlaybackEvent struct {
	Kind    int
	Track   string
	Message string
}

const (
	// EventPlaybackEnded fires when the song reaches its natural end.
	EventPlaybackEnded int = iota
	// EventDiagnostic fires when a track halts on an execution error.
	EventDiagnostic
)

// NoteInput re-exports the engine's live input type.
type NoteInput = engine.NoteInput

// PlayerOption configures a Player.
type PlayerOption func(*playerConfig)

type playerConfig struct {
	bufferBeats float64
	fx          effects.Config
	resolver    preset.Resolver
	steal       bool
	liveInst    *preset.InstrumentConfig
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{
		bufferBeats: event.DefaultWindowBeats,
		fx:          effects.DefaultConfig(),
	}
}

// WithBufferBeats sets how far execution may run ahead of playback.
func WithBufferBeats(beats float64) PlayerOption {
	return func(cfg *playerConfig) {
		if beats > 0 {
			cfg.bufferBeats = beats
		}
	}
}

// WithEffects overrides the master effects configuration.
func WithEffects(fx effects.Config) PlayerOption {
	return func(cfg *playerConfig) { cfg.fx = fx }
}

// WithPresets installs a preset resolver (see preset.LoadDir).
func WithPresets(r preset.Resolver) PlayerOption {
	return func(cfg *playerConfig) { cfg.resolver = r }
}

// WithVoiceStealing steals the oldest voice when the pool is full
// instead of dropping new notes.
func WithVoiceStealing(enabled bool) PlayerOption {
	return func(cfg *playerConfig) { cfg.steal = enabled }
}

// WithLiveInstrument sets the instrument used for live note input.
func WithLiveInstrument(inst preset.InstrumentConfig) PlayerOption {
	return func(cfg *playerConfig) { cfg.liveInst = &inst }
}

// Player plays programs through the system audio device.
type Player struct {
	mu         sync.Mutex
	sampleRate int
	cfg        playerConfig
	volume     float64

	audio *intaudio.Player
	src   *songSource
	run   *runner.Runner
	eng   *engine.Engine

	done      chan struct{}
	eventCh   chan PlaybackEvent
	eventChMu sync.Mutex
}

func NewPlayer(sampleRate int, opts ...PlayerOption) (*Player, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Player{sampleRate: sampleRate, cfg: cfg, volume: 1}, nil
}

// PlayFile loads a program file and plays it.
func (p *Player) PlayFile(path string) error {
	prog, err := ast.Load(path)
	if err != nil {
		return err
	}
	return p.Play(prog)
}

// Play starts playback of prog, replacing any current playback. The
// runner and engine are rebuilt per song so no voice or effect state
// leaks between songs.
func (p *Player) Play(prog *ast.Program) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Signal any existing Wait() that the previous playback was replaced.
	if p.done != nil {
		close(p.done)
	}
	p.done = make(chan struct{})

	buf := event.NewBuffer(p.cfg.bufferBeats)
	run := runner.New(prog, buf)
	engOpts := []engine.Option{
		engine.WithEffects(p.cfg.fx),
		engine.WithVoiceStealing(p.cfg.steal),
	}
	if p.cfg.resolver != nil {
		engOpts = append(engOpts, engine.WithResolver(p.cfg.resolver))
	}
	eng := engine.New(p.sampleRate, buf, engOpts...)
	eng.SetMasterVolume(p.volume)
	if p.cfg.liveInst != nil {
		eng.SetLiveInstrument(*p.cfg.liveInst)
	}

	src := newSongSource(run, eng)
	src.onDiag = func(d runner.Diagnostic) {
		p.sendEvent(PlaybackEvent{Kind: EventDiagnostic, Track: d.Track, Message: d.Err.Error()})
	}
	src.onFinish = func() {
		p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded})
		p.signalDone()
	}

	backend, err := intaudio.NewPlayer(p.sampleRate, src)
	if err != nil {
		return err
	}
	if p.audio != nil {
		_ = p.audio.Stop()
	}
	p.audio = backend
	p.src = src
	p.run = run
	p.eng = eng
	p.audio.Play()
	return nil
}

func (p *Player) sendEvent(ev PlaybackEvent) {
	p.eventChMu.Lock()
	ch := p.eventCh
	p.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Channel full; drop rather than stall the audio thread.
		}
	}
}

func (p *Player) signalDone() {
	p.mu.Lock()
	done := p.done
	p.done = nil
	p.mu.Unlock()
	if done != nil {
		close(done)
	}
}

func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil {
		p.audio.Pause()
	}
}

func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil {
		p.audio.Play()
	}
}

// Stop halts playback and discards all scheduled events and voices.
func (p *Player) Stop() error {
	p.mu.Lock()
	if p.audio == nil {
		p.mu.Unlock()
		return nil
	}
	err := p.audio.Stop()
	p.audio = nil
	if p.run != nil {
		p.run.Stop()
	}
	if p.eng != nil {
		p.eng.Stop(0)
	}
	done := p.done
	p.done = nil
	p.mu.Unlock()
	p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded})
	if done != nil {
		close(done)
	}
	return err
}

// Wait blocks until the current playback ends or is stopped. Returns
// immediately if no playback is active.
func (p *Player) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Watch returns a channel receiving playback events. The channel is
// buffered (cap 8); receive in a goroutine to avoid losing events.
// Only the most recent Watch channel receives events; call Watch
// before Play.
func (p *Player) Watch() <-chan PlaybackEvent {
	ch := make(chan PlaybackEvent, 8)
	p.eventChMu.Lock()
	p.eventCh = ch
	p.eventChMu.Unlock()
	return ch
}

// SetMasterVolume sets the output volume; 1 is unity, negative values
// clamp to 0. Persists across songs.
func (p *Player) SetMasterVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v < 0 {
		v = 0
	}
	p.volume = v
	if p.eng != nil {
		p.eng.SetMasterVolume(v)
	}
}

// MasterVolume returns the output volume.
func (p *Player) MasterVolume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetMuted mutes or unmutes a track by name; sounding notes finish.
func (p *Player) SetMuted(track string, muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.eng != nil {
		p.eng.SetMuted(track, muted)
	}
}

// SetSolo plays only the named track; empty clears solo.
func (p *Player) SetSolo(track string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.eng != nil {
		p.eng.SetSolo(track)
	}
}

// Seek fast-forwards playback to the given beat. The song is executed
// and rendered silently up to the target, so playback resumes with
// exactly the state sequential playback would have had.
func (p *Player) Seek(beat float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.eng != nil {
		p.eng.SeekTo(beat)
	}
}

// EnqueueNote submits a live note; safe from any goroutine. Returns
// false when the input queue is full.
func (p *Player) EnqueueNote(n NoteInput) bool {
	p.mu.Lock()
	eng := p.eng
	p.mu.Unlock()
	if eng == nil {
		return false
	}
	return eng.EnqueueNote(n)
}

// BeatPos returns the current playback position in beats.
func (p *Player) BeatPos() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.eng == nil {
		return 0
	}
	return p.eng.BeatPos()
}

// BPM returns the tempo currently in effect.
func (p *Player) BPM() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.eng == nil {
		return 0
	}
	return p.eng.BPM()
}

// Voices returns the number of sounding voices.
func (p *Player) Voices() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.eng == nil {
		return 0
	}
	return p.eng.Voices()
}

// Lead returns how far execution has run ahead of playback, in beats.
func (p *Player) Lead() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.eng == nil {
		return 0
	}
	return p.eng.Lead()
}

// Diagnostics returns per-track execution errors recorded so far.
func (p *Player) Diagnostics() []runner.Diagnostic {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run == nil {
		return nil
	}
	return p.run.Diagnostics()
}
