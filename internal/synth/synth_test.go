package synth

import (
	"math"
	"testing"

	"github.com/songwalker/songwalker-go/internal/preset"
)

func TestNoteToMIDI(t *testing.T) {
	cases := []struct {
		name string
		midi int
		ok   bool
	}{
		{"C4", 60, true},
		{"c4", 60, true},
		{"A4", 69, true},
		{"F#3", 54, true},
		{"Bb3", 58, true},
		{"Gb4", 66, true},
		{"C-1", 0, true},
		{"G9", 127, true},
		{"Bb-1", 10, true},
		{"C##4", 62, true},
		{"", 0, false},
		{"H4", 0, false},
		{"C", 0, false},
		{"C#", 0, false},
		{"C12", 0, false},
		{"Cb-1", 0, false},
	}
	for _, c := range cases {
		got, err := NoteToMIDI(c.name)
		if c.ok && (err != nil || got != c.midi) {
			t.Errorf("NoteToMIDI(%q) = %d, %v; want %d", c.name, got, err, c.midi)
		}
		if !c.ok && err == nil {
			t.Errorf("NoteToMIDI(%q) = %d, want error", c.name, got)
		}
	}
}

func TestMIDIToFreq(t *testing.T) {
	if f := MIDIToFreq(69, 440); f != 440 {
		t.Errorf("A4 = %v, want 440", f)
	}
	if f := MIDIToFreq(60, 440); math.Abs(f-261.6256) > 0.001 {
		t.Errorf("C4 = %v, want 261.6256", f)
	}
	if f := MIDIToFreq(69, 432); f != 432 {
		t.Errorf("A4 at 432 tuning = %v", f)
	}
	if f := MIDIToFreq(81, 440); math.Abs(f-880) > 1e-9 {
		t.Errorf("A5 = %v, want 880", f)
	}
	if f := MIDIToFreq(69, 0); f != 440 {
		t.Errorf("zero tuning should fall back to 440, got %v", f)
	}
}

func TestParseWaveform(t *testing.T) {
	if ParseWaveform("saw") != WaveSawtooth || ParseWaveform("sawtooth") != WaveSawtooth {
		t.Error("saw aliases")
	}
	if ParseWaveform("") != WaveTriangle || ParseWaveform("noise") != WaveTriangle {
		t.Error("unknown waveforms should fall back to triangle")
	}
}

func TestOscillatorStaysBounded(t *testing.T) {
	for _, w := range []Waveform{WaveSine, WaveSquare, WaveSawtooth, WaveTriangle} {
		o := NewOscillator(w, 48000)
		o.SetFrequency(440)
		for i := 0; i < 48000; i++ {
			s := o.Next()
			// PolyBLEP overshoot stays small.
			if s < -1.2 || s > 1.2 || math.IsNaN(s) {
				t.Fatalf("waveform %d sample %d out of range: %v", w, i, s)
			}
		}
	}
}

func TestOscillatorIsZeroMean(t *testing.T) {
	for _, w := range []Waveform{WaveSine, WaveSquare, WaveSawtooth, WaveTriangle} {
		o := NewOscillator(w, 44100)
		o.SetFrequency(441) // exactly 100 samples per cycle
		sum := 0.0
		for i := 0; i < 100*50; i++ {
			sum += o.Next()
		}
		if mean := sum / (100 * 50); math.Abs(mean) > 0.02 {
			t.Errorf("waveform %d mean = %v, want ~0", w, mean)
		}
	}
}

func TestOscillatorDetune(t *testing.T) {
	o := NewOscillator(WaveSine, 48000)
	o.SetFrequency(440)
	o.Detune = 1200 // one octave up
	if inc := o.phaseInc(); math.Abs(inc-880.0/48000) > 1e-12 {
		t.Errorf("phase increment with +1200 cents = %v", inc)
	}
}

func TestEnvelopeReachesSustain(t *testing.T) {
	e := NewEnvelope(1000)
	e.GateOn()
	peak := 0.0
	for i := 0; i < 1000; i++ {
		if l := e.Next(); l > peak {
			peak = l
		}
	}
	if math.Abs(peak-1) > 1e-9 {
		t.Errorf("attack peak = %v, want 1", peak)
	}
	if l := e.Next(); math.Abs(l-0.7) > 1e-9 {
		t.Errorf("sustain level = %v, want 0.7", l)
	}
}

func TestEnvelopeReleaseToSilence(t *testing.T) {
	e := NewEnvelope(1000)
	e.GateOn()
	for i := 0; i < 500; i++ {
		e.Next()
	}
	e.GateOff()
	for i := 0; i < 301 && !e.Finished(); i++ {
		e.Next()
	}
	if !e.Finished() {
		t.Error("0.3 s release did not finish within 301 samples")
	}
	if e.Next() != 0 {
		t.Error("finished envelope should output 0")
	}
}

func TestEnvelopeRetriggerFromCurrentLevel(t *testing.T) {
	e := NewEnvelope(1000)
	e.GateOn()
	for i := 0; i < 500; i++ {
		e.Next()
	}
	e.GateOff()
	var level float64
	for i := 0; i < 150; i++ {
		level = e.Next()
	}
	if level <= 0.1 || level >= 0.7 {
		t.Fatalf("mid-release level = %v, expected partway down", level)
	}
	e.GateOn()
	if l := e.Next(); l < level {
		t.Errorf("retriggered attack dropped from %v to %v", level, l)
	}
}

func TestEnvelopeReleaseClamped(t *testing.T) {
	e := NewEnvelope(10)
	e.Release = 100 // well past the clamp
	e.GateOn()
	e.Next()
	e.GateOff()
	if e.remaining > int(MaxReleaseSeconds*10) {
		t.Errorf("release length %d samples exceeds clamp", e.remaining)
	}
}

func TestVoiceHonorsStartOffset(t *testing.T) {
	v := NewVoice(1000)
	cfg := preset.Default()
	v.NoteOn(&cfg, 69, 440, 1, 64, 500)

	dst := make([]float32, 128)
	v.RenderInto(dst, 0)
	for i := 0; i < 64; i++ {
		if dst[i] != 0 {
			t.Fatalf("sample %d before note start is %v", i, dst[i])
		}
	}
	nonzero := false
	for i := 64; i < 128; i++ {
		if dst[i] != 0 {
			nonzero = true
			break
		}
	}
	if !nonzero {
		t.Error("no output after note start")
	}
}

func TestVoiceReleasesAndGoesIdle(t *testing.T) {
	v := NewVoice(1000)
	cfg := preset.Default()
	v.NoteOn(&cfg, 69, 440, 1, 0, 200)

	dst := make([]float32, 128)
	var blockStart int64
	for i := 0; i < 20; i++ {
		if !v.RenderInto(dst, blockStart) {
			break
		}
		blockStart += 128
	}
	if v.State() != VoiceIdle {
		t.Fatalf("voice state = %v after release ran out, want idle", v.State())
	}
	// Gate 200 samples plus a 0.3 s release at 1 kHz.
	if blockStart > 640 {
		t.Errorf("voice stayed alive for %d samples", blockStart)
	}
}

func TestVoiceNoteOffShortensGate(t *testing.T) {
	v := NewVoice(1000)
	cfg := preset.Default()
	v.NoteOn(&cfg, 60, 261.63, 1, 0, 10000)
	v.NoteOff(100)

	dst := make([]float32, 128)
	v.RenderInto(dst, 0)
	if v.State() != VoiceReleasing {
		t.Errorf("state = %v after early note-off, want releasing", v.State())
	}
}

func TestVoiceKill(t *testing.T) {
	v := NewVoice(1000)
	cfg := preset.Default()
	v.NoteOn(&cfg, 60, 261.63, 1, 0, 10000)
	v.Kill()
	if v.State() != VoiceIdle {
		t.Error("killed voice should be idle")
	}
	dst := make([]float32, 8)
	if v.RenderInto(dst, 0) {
		t.Error("killed voice should not render")
	}
}

func TestVoiceVelocityScalesOutput(t *testing.T) {
	render := func(vel float64) float32 {
		v := NewVoice(1000)
		cfg := preset.Default()
		v.NoteOn(&cfg, 69, 440, vel, 0, 10000)
		dst := make([]float32, 256)
		v.RenderInto(dst, 0)
		var peak float32
		for _, s := range dst {
			if s > peak {
				peak = s
			}
			if -s > peak {
				peak = -s
			}
		}
		return peak
	}
	full := render(1)
	half := render(0.5)
	if full <= 0 {
		t.Fatal("no output at full velocity")
	}
	if math.Abs(float64(half/full)-0.5) > 0.01 {
		t.Errorf("half velocity peak ratio = %v, want 0.5", half/full)
	}
}
