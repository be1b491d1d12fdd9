package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	songwalker "github.com/songwalker/songwalker-go"
	"github.com/songwalker/songwalker-go/internal/ast"
	"github.com/songwalker/songwalker-go/internal/effects"
	"github.com/songwalker/songwalker-go/internal/midiinput"
	"github.com/songwalker/songwalker-go/internal/preset"
)

func main() {
	var (
		sampleRate  = flag.Int("sample-rate", 48000, "output sample rate")
		bufferBeats = flag.Float64("buffer-beats", 4.0, "execution lead over playback, in beats")
		presetDir   = flag.String("presets", "", "preset library directory")
		wavPath     = flag.String("wav", "", "render to a WAV file instead of playing")
		seconds     = flag.Float64("seconds", 0, "cap the render length (0 = song's natural end)")
		fromBeat    = flag.Float64("from", 0, "start playback at this beat (silent fast-forward)")
		steal       = flag.Bool("steal", false, "steal the oldest voice when the pool is full")
		noFX        = flag.Bool("no-fx", false, "bypass chorus/delay/reverb/compressor")
		mute        = flag.String("mute", "", "comma-separated track names to mute")
		solo        = flag.String("solo", "", "play only this track")
		midiPort    = flag.String("midi", "", "MIDI input port for live notes (substring match)")
		listMIDI    = flag.Bool("list-midi", false, "list MIDI input ports and exit")
	)
	flag.Parse()

	if *listMIDI {
		ports, err := midiinput.Ports()
		if err != nil {
			log.Fatal(err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: swplay [flags] song.yaml")
		flag.PrintDefaults()
		os.Exit(2)
	}
	prog, err := ast.Load(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	var resolver preset.Resolver
	if *presetDir != "" {
		resolver, err = preset.LoadDir(*presetDir)
		if err != nil {
			log.Fatal(err)
		}
	}

	fx := effects.DefaultConfig()
	if *noFX {
		fx = effects.Config{MasterGain: fx.MasterGain}
	}

	if *wavPath != "" {
		render(prog, *sampleRate, *wavPath, *bufferBeats, *seconds, *fromBeat, *steal, fx, resolver)
		return
	}
	play(prog, *sampleRate, *bufferBeats, *fromBeat, *steal, fx, resolver, *mute, *solo, *midiPort)
}

func render(prog *ast.Program, sampleRate int, wavPath string, bufferBeats, seconds, fromBeat float64, steal bool, fx effects.Config, resolver preset.Resolver) {
	opts := []songwalker.RenderOption{
		songwalker.RenderWithBufferBeats(bufferBeats),
		songwalker.RenderWithEffects(fx),
		songwalker.RenderWithVoiceStealing(steal),
	}
	if resolver != nil {
		opts = append(opts, songwalker.RenderWithPresets(resolver))
	}
	if seconds > 0 {
		opts = append(opts, songwalker.RenderWithMaxDuration(seconds))
	}
	if fromBeat > 0 {
		opts = append(opts, songwalker.RenderFrom(fromBeat))
	}
	samples, err := songwalker.RenderSong(prog, sampleRate, opts...)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(wavPath)
	if err != nil {
		log.Fatal(err)
	}
	if err := songwalker.WriteWAV(f, samples, sampleRate); err != nil {
		f.Close()
		log.Fatal(err)
	}
	if err := f.Close(); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("wrote %s (%.1fs)\n", wavPath, float64(len(samples)/2)/float64(sampleRate))
}

func play(prog *ast.Program, sampleRate int, bufferBeats, fromBeat float64, steal bool, fx effects.Config, resolver preset.Resolver, mute, solo, midiPort string) {
	opts := []songwalker.PlayerOption{
		songwalker.WithBufferBeats(bufferBeats),
		songwalker.WithEffects(fx),
		songwalker.WithVoiceStealing(steal),
	}
	if resolver != nil {
		opts = append(opts, songwalker.WithPresets(resolver))
	}
	pl, err := songwalker.NewPlayer(sampleRate, opts...)
	if err != nil {
		log.Fatal(err)
	}
	ch := pl.Watch()
	if err := pl.Play(prog); err != nil {
		log.Fatal(err)
	}
	for _, t := range strings.Split(mute, ",") {
		if t = strings.TrimSpace(t); t != "" {
			pl.SetMuted(t, true)
		}
	}
	if solo != "" {
		pl.SetSolo(solo)
	}
	if fromBeat > 0 {
		pl.Seek(fromBeat)
	}

	if midiPort != "" {
		if !midiinput.Available {
			log.Fatal("midi input requires a cgo build")
		}
		stop, err := midiinput.Open(midiPort, pl.EnqueueNote)
		if err != nil {
			log.Fatal(err)
		}
		defer stop()
	}

	for ev := range ch {
		switch ev.Kind {
		case songwalker.EventDiagnostic:
			fmt.Fprintf(os.Stderr, "track %s: %s\n", ev.Track, ev.Message)
		case songwalker.EventPlaybackEnded:
			fmt.Println("playback completed")
			return
		}
	}
}
