// Package engine renders buffered song events into stereo audio in
// fixed-size blocks. One block: drain due events, apply property
// changes and activate voices in time order, sum the voice pool,
// run the master effects chain, advance the beat clock.
package engine

import (
	"strconv"
	"sync"

	"github.com/viterin/vek/vek32"

	"github.com/songwalker/songwalker-go/internal/effects"
	"github.com/songwalker/songwalker-go/internal/event"
	"github.com/songwalker/songwalker-go/internal/preset"
	"github.com/songwalker/songwalker-go/internal/synth"
)

// DefaultBlockSize is the render quantum in frames.
const DefaultBlockSize = 128

const (
	defaultBPM    = 120.0
	defaultTuning = 440.0
)

// Option configures an Engine.
type Option func(*Engine)

// WithBlockSize sets the render quantum.
func WithBlockSize(frames int) Option {
	return func(e *Engine) {
		if frames > 0 {
			e.blockSize = frames
		}
	}
}

// WithVoiceCapacity sets the voice pool size.
func WithVoiceCapacity(n int) Option {
	return func(e *Engine) { e.capacity = n }
}

// WithVoiceStealing lets a full pool steal its oldest voice for new
// notes instead of dropping them.
func WithVoiceStealing(enabled bool) Option {
	return func(e *Engine) { e.steal = enabled }
}

// WithEffects overrides the master chain configuration.
func WithEffects(cfg effects.Config) Option {
	return func(e *Engine) { e.fxConfig = cfg }
}

// WithResolver installs a preset resolver for loadPreset references.
func WithResolver(r preset.Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// Engine consumes an event buffer and produces interleaved stereo
// float32 blocks. It is single-goroutine: RenderBlock and all mutating
// methods must be called from the render loop. Live note input is the
// exception; EnqueueNote may be called from any goroutine.
type Engine struct {
	sampleRate int
	blockSize  int
	capacity   int
	steal      bool
	fxConfig   effects.Config

	buf      *event.Buffer
	pool     *VoicePool
	chain    *effects.Chain
	resolver preset.Resolver

	bpm    float64
	tuning float64
	beat   float64
	sample int64

	// ctlMu guards the control state below, which the owning
	// application mutates while the render goroutine reads it once
	// per block.
	ctlMu sync.Mutex
	muted map[string]bool
	solo  string
	// volume scales the chain output, separate from the chain's own
	// master gain stage so it can be changed without rebuilding it.
	volume float64
	// Output is suppressed while beat < suppressBefore (silent seek).
	suppressBefore float64
	liveInst       preset.InstrumentConfig

	input chan NoteInput

	mono     []float32
	voiceBuf []float32

	badNotes int64
}

// NoteInput is a live note on/off, as from a MIDI keyboard.
type NoteInput struct {
	On       bool
	MIDINote int
	Velocity float64 // 0..127
	Channel  int
}

func New(sampleRate int, buf *event.Buffer, opts ...Option) *Engine {
	e := &Engine{
		sampleRate: sampleRate,
		blockSize:  DefaultBlockSize,
		capacity:   DefaultVoiceCapacity,
		fxConfig:   effects.DefaultConfig(),
		buf:        buf,
		bpm:        defaultBPM,
		tuning:     defaultTuning,
		volume:     1,
		muted:      make(map[string]bool),
		input:      make(chan NoteInput, 128),
		liveInst:   preset.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.pool = NewVoicePool(e.capacity, float64(sampleRate), e.steal)
	e.chain = effects.Build(sampleRate, e.fxConfig)
	e.mono = make([]float32, e.blockSize)
	e.voiceBuf = make([]float32, e.blockSize)
	return e
}

// BlockSize returns the render quantum in frames.
func (e *Engine) BlockSize() int { return e.blockSize }

// SampleRate returns the output rate in Hz.
func (e *Engine) SampleRate() int { return e.sampleRate }

// BeatPos returns the current playback position in beats.
func (e *Engine) BeatPos() float64 { return e.beat }

// BPM returns the current tempo.
func (e *Engine) BPM() float64 { return e.bpm }

// Voices returns the number of sounding voices.
func (e *Engine) Voices() int { return e.pool.Active() }

// DroppedVoices returns notes refused by a full pool.
func (e *Engine) DroppedVoices() int64 { return e.pool.Dropped() }

// Lead returns the buffer's current lead over playback, in beats.
func (e *Engine) Lead() float64 { return e.buf.Lead() }

// SetMuted mutes or unmutes a track. Takes effect at the next block:
// a muted track's note events are discarded at the drain boundary, so
// already sounding notes finish naturally.
func (e *Engine) SetMuted(track string, muted bool) {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	if muted {
		e.muted[track] = true
	} else {
		delete(e.muted, track)
	}
}

// Muted reports whether a track is muted.
func (e *Engine) Muted(track string) bool {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	return e.muted[track]
}

// SetSolo plays only the named track; empty clears solo.
func (e *Engine) SetSolo(track string) {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	e.solo = track
}

// Solo returns the soloed track name, empty for none.
func (e *Engine) Solo() string {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	return e.solo
}

// SetMasterVolume sets the output volume; negative values clamp to 0.
func (e *Engine) SetMasterVolume(v float64) {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	if v < 0 {
		v = 0
	}
	e.volume = v
}

// MasterVolume returns the output volume.
func (e *Engine) MasterVolume() float64 {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	return e.volume
}

// SetLiveInstrument sets the instrument used for live note input. Safe
// to call while the render loop is running.
func (e *Engine) SetLiveInstrument(cfg preset.InstrumentConfig) {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	e.liveInst = cfg
}

// EnqueueNote submits live input. Never blocks; returns false when the
// input queue is full and the note was dropped.
func (e *Engine) EnqueueNote(n NoteInput) bool {
	select {
	case e.input <- n:
		return true
	default:
		return false
	}
}

// SeekTo suppresses audible output until playback reaches beat. Events
// are still executed and voices still run, so the engine state at the
// target is exactly what sequential playback would have produced.
func (e *Engine) SeekTo(beat float64) {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	if beat > e.beat {
		e.suppressBefore = beat
	}
}

// Seeking reports whether output is currently suppressed.
func (e *Engine) Seeking() bool {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	return e.beat < e.suppressBefore
}

// Stop kills all voices, clears pending events and effect tails, and
// rewinds the clock to resumeBeat.
func (e *Engine) Stop(resumeBeat float64) {
	e.pool.KillAll()
	e.chain.Reset()
	e.ctlMu.Lock()
	e.buf.Reset(resumeBeat)
	e.suppressBefore = 0
	e.ctlMu.Unlock()
	e.beat = resumeBeat
	e.bpm = defaultBPM
	e.tuning = defaultTuning
}

// Pending returns the number of buffered events.
func (e *Engine) Pending() int { return e.buf.Len() }

// GatedVoices returns voices still before their note-off.
func (e *Engine) GatedVoices() int { return e.pool.Gated() }

// KillVoices silences the pool immediately, for gate-mode song ends.
func (e *Engine) KillVoices() { e.pool.KillAll() }

// RenderBlock renders one block into dst, which must hold at least
// BlockSize()*2 samples, and returns the frame count. All work runs on
// preallocated buffers.
func (e *Engine) RenderBlock(dst []float32) int {
	frames := e.blockSize
	secPerSample := 1.0 / float64(e.sampleRate)
	beatsPerSample := secPerSample * e.bpm / 60
	blockBeats := float64(frames) * beatsPerSample
	target := e.beat + blockBeats

	e.ctlMu.Lock()
	suppressBefore := e.suppressBefore
	volume := float32(e.volume)
	drained := e.buf.DrainFiltered(target, e.dropMuted)
	e.ctlMu.Unlock()
	for _, ev := range drained {
		e.apply(&ev, blockBeats, frames)
	}
	e.drainLiveInput()

	for i := range e.mono[:frames] {
		e.mono[i] = 0
	}
	e.pool.Each(func(v *synth.Voice) {
		v.RenderInto(e.voiceBuf[:frames], e.sample)
		vek32.Add_Inplace(e.mono[:frames], e.voiceBuf[:frames])
	})

	for i := 0; i < frames; i++ {
		l, r := e.chain.Process(e.mono[i], e.mono[i])
		if e.beat+float64(i)*beatsPerSample < suppressBefore {
			l, r = 0, 0
		}
		dst[2*i] = l * volume
		dst[2*i+1] = r * volume
	}

	e.sample += int64(frames)
	e.beat = target
	return frames
}

// dropMuted is the drain filter: note events from muted or non-solo
// tracks are discarded; property changes always pass.
func (e *Engine) dropMuted(ev *event.Event) bool {
	if ev.Kind != event.KindNote {
		return false
	}
	if e.muted[ev.Track] {
		return true
	}
	if e.solo != "" && ev.Track != e.solo {
		return true
	}
	return false
}

func (e *Engine) apply(ev *event.Event, blockBeats float64, frames int) {
	switch ev.Kind {
	case event.KindNote:
		e.activateNote(ev, blockBeats, frames)
	case event.KindSetProperty:
		e.applyProperty(ev)
	case event.KindPresetRef:
		// Resolution is eager at activation; nothing to prefetch.
	case event.KindTrackStart:
	}
}

func (e *Engine) applyProperty(ev *event.Event) {
	switch ev.Target {
	case "track.beatsPerMinute":
		if v, err := strconv.ParseFloat(ev.Value, 64); err == nil && v > 0 {
			// Takes effect from the next block; the current block was
			// drained against the tempo at its start.
			e.bpm = v
		}
	case "track.tuningPitch":
		if v, err := strconv.ParseFloat(ev.Value, 64); err == nil && v > 0 {
			e.tuning = v
		}
	}
}

func (e *Engine) activateNote(ev *event.Event, blockBeats float64, frames int) {
	midi, err := synth.NoteToMIDI(ev.Pitch)
	if err != nil {
		e.badNotes++
		return
	}

	// In-block activation offset keeps events sample-accurate even
	// though they are drained a block at a time.
	offset := 0
	if blockBeats > 0 {
		offset = int((ev.Beat - e.beat) / blockBeats * float64(frames))
		if offset < 0 {
			offset = 0
		}
		if offset >= frames {
			offset = frames - 1
		}
	}
	start := e.sample + int64(offset)
	gateSeconds := ev.Gate * 60 / e.bpm
	release := start + int64(gateSeconds*float64(e.sampleRate))
	if release <= start {
		release = start + 1
	}

	vel := ev.Velocity / 127
	if vel < 0 {
		vel = 0
	} else if vel > 1 {
		vel = 1
	}
	e.startVoices(ev.Instrument, ev, midi, vel, start, release, 0)
}

// startVoices activates the voices for one note. Preset references are
// resolved per layer, so a composite may mix inline oscillators with
// library presets, and a resolved preset may itself be layered. Sampler
// layers whose key range excludes the note are skipped, which is how
// key-split composites select a zone. The depth guard stops
// self-referencing presets.
func (e *Engine) startVoices(cfg preset.InstrumentConfig, ev *event.Event, midi int, vel float64, start, release int64, depth int) {
	if depth > 4 {
		return
	}
	cfg = e.resolveInstrument(&cfg)
	if len(cfg.Layers) > 0 {
		for i := range cfg.Layers {
			e.startVoices(cfg.Layers[i], ev, midi, vel, start, release, depth+1)
		}
		return
	}
	if z := cfg.Sample; z != nil && !z.Contains(midi) {
		return
	}
	v := e.pool.Allocate()
	if v == nil {
		return
	}
	v.NoteOn(&cfg, midi, synth.MIDIToFreq(midi, e.tuning), vel, start, release)
	v.SetTrack(ev.Track)
	e.hintNextNote(v, ev)
}

// hintNextNote gives a freshly activated voice the frequency of the
// next note on its track, from buffered lookahead.
func (e *Engine) hintNextNote(v *synth.Voice, ev *event.Event) {
	for _, next := range e.buf.PeekAhead(ev.Beat, 1.0) {
		if next.Kind != event.KindNote || next.Track != ev.Track {
			continue
		}
		if midi, err := synth.NoteToMIDI(next.Pitch); err == nil {
			v.SetNextFreq(synth.MIDIToFreq(midi, e.tuning))
		}
		return
	}
}

func (e *Engine) resolveInstrument(cfg *preset.InstrumentConfig) preset.InstrumentConfig {
	if cfg.PresetRef == "" || e.resolver == nil {
		return *cfg
	}
	resolved, ok := e.resolver.Resolve(cfg.PresetRef)
	if !ok {
		// Unresolved presets fall back to the config's own settings,
		// ultimately the default waveform.
		return *cfg
	}
	overlay := *cfg
	overlay.PresetRef = ""
	return resolved.Merge(overlay)
}

func (e *Engine) drainLiveInput() {
	for {
		select {
		case n := <-e.input:
			e.applyLiveNote(n)
		default:
			return
		}
	}
}

func (e *Engine) applyLiveNote(n NoteInput) {
	if !n.On {
		e.pool.Each(func(v *synth.Voice) {
			if v.Live() && v.MIDINote() == n.MIDINote && v.State() == synth.VoiceActive {
				v.NoteOff(e.sample)
			}
		})
		return
	}
	v := e.pool.Allocate()
	if v == nil {
		return
	}
	e.ctlMu.Lock()
	inst := e.liveInst
	e.ctlMu.Unlock()
	cfg := e.resolveInstrument(&inst)
	vel := n.Velocity / 127
	if vel <= 0 {
		vel = 0.8
	} else if vel > 1 {
		vel = 1
	}
	// Live notes have no scheduled gate; they release on note-off or,
	// failing that, when the pool reclaims them at the horizon below.
	horizon := e.sample + int64(e.sampleRate)*30
	v.NoteOn(&cfg, n.MIDINote, synth.MIDIToFreq(n.MIDINote, e.tuning), vel, e.sample, horizon)
	v.SetTrack("live")
	v.SetLive(true)
}
