package songwalker

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"

	"github.com/songwalker/songwalker-go/internal/ast"
	"github.com/songwalker/songwalker-go/internal/effects"
	"github.com/songwalker/songwalker-go/internal/event"
	"github.com/songwalker/songwalker-go/internal/preset"
	"github.com/songwalker/songwalker-go/internal/runner"
)

const testRate = 8000

func dryConfig() effects.Config { return effects.Config{MasterGain: 0.8} }

func note(pitch string, beats float64) ast.Statement {
	return ast.Statement{Kind: ast.KindNote, Pitch: pitch, Step: ast.Beats(beats)}
}

func endMode(mode string) ast.Statement {
	return ast.Statement{Kind: ast.KindAssign, Target: "song.endMode", Value: ast.Str(mode)}
}

func TestRenderSongFinishesNaturally(t *testing.T) {
	prog := &ast.Program{Statements: []ast.Statement{note("C4", 1), note("E4", 1)}}
	out, err := RenderSong(prog, testRate, RenderWithEffects(dryConfig()))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) == 0 || len(out)%2 != 0 {
		t.Fatalf("output length %d", len(out))
	}
	// Two beats at 120 bpm is one second; the default release adds 0.3 s.
	frames := len(out) / 2
	if frames < testRate || frames > 3*testRate {
		t.Errorf("rendered %d frames, want roughly 1.3 s", frames)
	}
}

func TestEndModesOrderRenderLength(t *testing.T) {
	render := func(mode string) int {
		prog := &ast.Program{Statements: []ast.Statement{endMode(mode), note("C4", 1)}}
		out, err := RenderSong(prog, testRate, RenderWithEffects(dryConfig()))
		if err != nil {
			t.Fatal(err)
		}
		return len(out) / 2
	}
	gate := render("gate")
	release := render("release")
	tail := render("tail")

	if !(gate < release) {
		t.Errorf("gate mode (%d frames) should cut before release mode (%d)", gate, release)
	}
	if !(release < tail) {
		t.Errorf("tail mode (%d frames) should outlast release mode (%d)", tail, release)
	}
	// The tail adds half a second.
	if extra := tail - release; extra < testRate/4 || extra > testRate {
		t.Errorf("tail added %d frames, want about %d", extra, testRate/2)
	}
}

func TestRenderSecondsCapsInfiniteSongs(t *testing.T) {
	prog := &ast.Program{Statements: []ast.Statement{
		{Kind: ast.KindFor, Body: []ast.Statement{note("C4", 1)}},
	}}
	out, err := RenderSeconds(prog, testRate, 0.5, RenderWithEffects(dryConfig()))
	if err != nil {
		t.Fatal(err)
	}
	frames := len(out) / 2
	if frames == 0 {
		t.Fatal("no output")
	}
	// Cap plus at most one block of slack.
	if frames > testRate/2+256 {
		t.Errorf("rendered %d frames past the 0.5 s cap", frames)
	}
}

func TestRenderFromSkipsIntro(t *testing.T) {
	prog := &ast.Program{Statements: []ast.Statement{note("C4", 1), note("E4", 1)}}
	full, err := RenderSong(prog, testRate, RenderWithEffects(dryConfig()))
	if err != nil {
		t.Fatal(err)
	}
	from, err := RenderSong(prog, testRate, RenderWithEffects(dryConfig()), RenderFrom(1))
	if err != nil {
		t.Fatal(err)
	}
	if len(from) == 0 || len(from) >= len(full) {
		t.Errorf("seeked render %d samples, full render %d", len(from), len(full))
	}
}

func TestRenderSongRejectsBadSampleRate(t *testing.T) {
	if _, err := RenderSong(&ast.Program{}, 0); err == nil {
		t.Error("zero sample rate should error")
	}
}

func TestCollectEventsMatchesStreamingExecution(t *testing.T) {
	prog := &ast.Program{Statements: []ast.Statement{
		{Kind: ast.KindTrackDef, Name: "melody", Body: []ast.Statement{
			note("C4", 1), note("E4", 1), note("G4", 1),
		}},
		{Kind: ast.KindTrackDef, Name: "bass", Body: []ast.Statement{
			note("C2", 2), note("G2", 2),
		}},
		{Kind: ast.KindCall, Name: "melody"},
		{Kind: ast.KindCall, Name: "bass"},
	}}

	batch, diags, err := CollectEvents(prog)
	if err != nil || len(diags) != 0 {
		t.Fatalf("batch: %v %v", err, diags)
	}

	// Stream the same program through a tight window, draining a beat
	// at a time the way the engine does.
	buf := event.NewBuffer(1)
	run := runner.New(prog, buf)
	var streamed []event.Event
	for beat := 0.0; beat < 64; beat += 0.25 {
		run.Step()
		streamed = append(streamed, buf.DrainUpTo(beat)...)
		if run.Done() && buf.Len() == 0 {
			break
		}
	}

	if len(streamed) != len(batch) {
		t.Fatalf("streamed %d events, batch %d", len(streamed), len(batch))
	}
	for i := range batch {
		a, b := batch[i], streamed[i]
		if a.Beat != b.Beat || a.Track != b.Track || a.Pitch != b.Pitch {
			t.Errorf("event %d: batch %+v vs streamed %+v", i, a, b)
		}
	}
}

func TestCollectEventsDetectsNonTermination(t *testing.T) {
	prog := &ast.Program{Statements: []ast.Statement{
		{Kind: ast.KindFor, Body: []ast.Statement{
			{Kind: ast.KindRest, Dur: ast.Beats(0)},
		}},
	}}
	if _, _, err := CollectEvents(prog); err == nil {
		t.Error("zero-progress infinite loop should be reported")
	}
}

func TestExtractPresetRefs(t *testing.T) {
	loadPreset := func(name string) *ast.Expr {
		return &ast.Expr{Call: &ast.CallExpr{
			Function: "loadPreset",
			Args:     []ast.Expr{*ast.Str(name)},
		}}
	}
	prog := &ast.Program{Statements: []ast.Statement{
		{Kind: ast.KindConst, Name: "keys", Value: loadPreset("grand-piano")},
		{Kind: ast.KindAssign, Target: "track.instrument", Value: loadPreset("strings")},
		{Kind: ast.KindAssign, Target: "track.instrument", Value: loadPreset("grand-piano")},
		note("C4", 1),
	}}
	refs, err := ExtractPresetRefs(prog)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"grand-piano", "strings"}
	if len(refs) != len(want) {
		t.Fatalf("refs = %v, want %v", refs, want)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("refs = %v, want %v", refs, want)
		}
	}
}

func TestRenderSingleNoteIsCapped(t *testing.T) {
	cfg := preset.Default()
	long := 100.0
	cfg.Release = &long

	out, err := RenderSingleNote(cfg, "A4", 0, testRate, RenderWithEffects(dryConfig()))
	if err != nil {
		t.Fatal(err)
	}
	frames := len(out) / 2
	if frames == 0 {
		t.Fatal("no output")
	}
	if frames > 4*testRate {
		t.Errorf("audition rendered %d frames, cap is %d", frames, 4*testRate)
	}
}

func TestRenderSingleNoteRejectsBadPitch(t *testing.T) {
	out, err := RenderSingleNote(preset.Default(), "Z9", 1, testRate, RenderWithEffects(dryConfig()))
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range out {
		if s != 0 {
			t.Fatal("invalid pitch should render silence")
		}
	}
}

func TestWriteWAVRoundTrip(t *testing.T) {
	samples := make([]float32, 2*testRate/10) // 0.1 s stereo
	for i := 0; i < len(samples); i += 2 {
		v := float32(math.Sin(2 * math.Pi * 440 * float64(i/2) / testRate))
		samples[i] = v
		samples[i+1] = v
	}

	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteWAV(f, samples, testRate); err != nil {
		t.Fatal(err)
	}
	f.Close()

	rf, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer rf.Close()
	dec := wav.NewDecoder(rf)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if buf.Format.NumChannels != 2 || buf.Format.SampleRate != testRate {
		t.Errorf("format %+v", buf.Format)
	}
	if len(buf.Data) != len(samples) {
		t.Errorf("decoded %d samples, wrote %d", len(buf.Data), len(samples))
	}
	// Peak should survive the 16-bit round trip.
	maxAbs := 0
	for _, v := range buf.Data {
		if v > maxAbs {
			maxAbs = v
		}
	}
	if maxAbs < 30000 {
		t.Errorf("peak %d, want near full scale", maxAbs)
	}
}
