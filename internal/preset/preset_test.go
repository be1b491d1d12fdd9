package preset

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func TestEnvelopeDefaults(t *testing.T) {
	var c InstrumentConfig
	if c.AttackOr() != DefaultAttack || c.SustainOr() != DefaultSustain {
		t.Error("unset fields should read defaults")
	}
	if c.MixerOr() != 1 || c.DetuneOr() != 0 {
		t.Error("mixer defaults to 1, detune to 0")
	}
	a := 0.5
	c.Attack = &a
	if c.AttackOr() != 0.5 {
		t.Error("set field ignored")
	}
}

func TestMergeOverlaysOnlySetFields(t *testing.T) {
	base := Default()
	sus := 0.9
	base.Sustain = &sus

	att := 0.2
	over := InstrumentConfig{Waveform: "square", Attack: &att}

	got := base.Merge(over)
	if got.Waveform != "square" {
		t.Errorf("waveform = %q", got.Waveform)
	}
	if got.Attack == nil || *got.Attack != 0.2 {
		t.Error("overlay attack lost")
	}
	if got.Sustain == nil || *got.Sustain != 0.9 {
		t.Error("base sustain clobbered by unset overlay field")
	}
}

func TestStaticResolver(t *testing.T) {
	r := StaticResolver{"lead": {Waveform: "sawtooth"}}
	if cfg, ok := r.Resolve("lead"); !ok || cfg.Waveform != "sawtooth" {
		t.Errorf("Resolve(lead) = %+v, %v", cfg, ok)
	}
	if _, ok := r.Resolve("missing"); ok {
		t.Error("missing preset should not resolve")
	}
}

func TestSampleZoneContains(t *testing.T) {
	z := SampleZone{KeyLow: 48, KeyHigh: 72}
	if !z.Contains(60) || z.Contains(47) || z.Contains(73) {
		t.Error("key range bounds")
	}
	open := SampleZone{KeyLow: 10}
	if !open.Contains(127) || open.Contains(9) {
		t.Error("zero KeyHigh must mean unbounded")
	}
}

func TestSampleZonePlaybackRate(t *testing.T) {
	z := SampleZone{SampleRate: 44100}
	// Same pitch, same rate: read 1:1.
	if r := z.PlaybackRate(440, 440, 44100); r != 1 {
		t.Errorf("rate = %v, want 1", r)
	}
	// One octave up doubles the read rate.
	if r := z.PlaybackRate(880, 440, 44100); r != 2 {
		t.Errorf("rate = %v, want 2", r)
	}
	// Engine at half the sample's rate doubles it again.
	if r := z.PlaybackRate(440, 440, 22050); r != 2 {
		t.Errorf("rate = %v, want 2", r)
	}
}

func writeDescriptor(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDirResolverLookup(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "lead.yaml", `
id: saw-lead
name: Saw Lead
tags: [lead, bright]
graph:
  kind: oscillator
  waveform: sawtooth
  attack: 0.02
`)
	writeDescriptor(t, dir, "pad.yaml", `
id: warm-pad
name: Warm Pad
tags: [pad]
graph:
  kind: layer
  children:
    - waveform: triangle
    - waveform: sine
      detune: 7
`)

	r, err := LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.IDs()) != 2 {
		t.Fatalf("loaded %d presets, want 2", len(r.IDs()))
	}

	cfg, ok := r.Resolve("saw-lead")
	if !ok || cfg.Waveform != "sawtooth" || cfg.Attack == nil || *cfg.Attack != 0.02 {
		t.Errorf("by id: %+v, %v", cfg, ok)
	}
	if _, ok := r.Resolve("warm pad"); !ok {
		t.Error("case-insensitive name lookup failed")
	}
	if cfg, ok := r.Resolve("bright"); !ok || cfg.Waveform != "sawtooth" {
		t.Error("tag lookup failed")
	}
	if cfg, ok := r.Resolve("^warm-"); !ok || len(cfg.Layers) != 2 {
		t.Errorf("regex lookup: %+v, %v", cfg, ok)
	}
	if _, ok := r.Resolve("banjo"); ok {
		t.Error("unmatched ref should not resolve")
	}
}

func TestDirResolverRejectsMissingID(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "bad.yaml", `
name: No ID
graph:
  kind: oscillator
`)
	if _, err := LoadDir(dir); err == nil {
		t.Error("descriptor without id should fail to load")
	}
}

func writeSineWAV(t *testing.T, path string, freq float64, sampleRate, n int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, n),
	}
	for i := range buf.Data {
		s := math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
		buf.Data[i] = int(s * 30000)
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()
}

func TestDirResolverLoadsSamplerWithPitchDetection(t *testing.T) {
	dir := t.TempDir()
	writeSineWAV(t, filepath.Join(dir, "a3.wav"), 220, 8000, 4000)
	writeDescriptor(t, dir, "sampled.yaml", `
id: sampled-a
graph:
  kind: sampler
  sample: a3.wav
  detectPitch: true
`)

	r, err := LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	cfg, ok := r.Resolve("sampled-a")
	if !ok || cfg.Sample == nil {
		t.Fatalf("sampler preset: %+v, %v", cfg, ok)
	}
	if cfg.Sample.RootNote != 57 {
		t.Errorf("detected root = %d, want 57 (A3)", cfg.Sample.RootNote)
	}
	if len(cfg.Sample.Data) != 4000 || cfg.Sample.SampleRate != 8000 {
		t.Errorf("sample data %d frames at %v Hz", len(cfg.Sample.Data), cfg.Sample.SampleRate)
	}
	if cfg.Sample.KeyHigh != 127 {
		t.Errorf("unset key range should span the keyboard, got high %d", cfg.Sample.KeyHigh)
	}
}

func TestDetectPitchOnSine(t *testing.T) {
	const sr = 44100
	samples := make([]float32, 8192)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / sr))
	}
	est := DetectPitch(samples, sr)
	if est.IsNoise {
		t.Fatal("pure sine reported as noise")
	}
	if est.MIDINote != 69 {
		t.Errorf("midi = %d, want 69", est.MIDINote)
	}
	if math.Abs(est.FineTuneCents) > 20 {
		t.Errorf("fine tune = %v cents", est.FineTuneCents)
	}
	if math.Abs(est.Frequency-440) > 5 {
		t.Errorf("frequency = %v", est.Frequency)
	}
}

func TestDetectPitchRejectsSilence(t *testing.T) {
	if est := DetectPitch(make([]float32, 8192), 44100); !est.IsNoise {
		t.Error("silence should be noise")
	}
}

func TestDetectPitchRejectsShortBuffers(t *testing.T) {
	if est := DetectPitch(make([]float32, 100), 44100); !est.IsNoise {
		t.Error("too-short buffer should be noise")
	}
}

func TestDetectPitchRejectsNoise(t *testing.T) {
	// Deterministic LCG noise.
	samples := make([]float32, 8192)
	seed := uint32(12345)
	for i := range samples {
		seed = seed*1664525 + 1013904223
		samples[i] = float32(seed)/float32(math.MaxUint32)*2 - 1
	}
	if est := DetectPitch(samples, 44100); !est.IsNoise {
		t.Errorf("white noise detected as %v Hz with confidence %v", est.Frequency, est.Confidence)
	}
}
