// Package synth implements the per-voice DSP: note math, band-limited
// oscillators, the ADSR envelope, sample playback, and the Voice that
// ties them together.
package synth

import (
	"fmt"
	"math"
	"strings"
)

var noteSemitones = map[byte]int{
	'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11,
}

// NoteToMIDI parses a scientific pitch name ("C4", "F#3", "Bb-1") into
// a MIDI note number, with C4 = 60.
func NoteToMIDI(name string) (int, error) {
	s := strings.TrimSpace(strings.ToLower(name))
	if s == "" {
		return 0, fmt.Errorf("empty note name")
	}
	semi, ok := noteSemitones[s[0]]
	if !ok {
		return 0, fmt.Errorf("invalid note name %q", name)
	}
	i := 1
	for i < len(s) && (s[i] == '#' || s[i] == 'b') {
		if s[i] == '#' {
			semi++
		} else {
			semi--
		}
		i++
	}
	neg := false
	if i < len(s) && s[i] == '-' {
		neg = true
		i++
	}
	if i >= len(s) {
		return 0, fmt.Errorf("note %q missing octave", name)
	}
	oct := 0
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("invalid note name %q", name)
		}
		oct = oct*10 + int(s[i]-'0')
	}
	if neg {
		oct = -oct
	}
	midi := (oct+1)*12 + semi
	if midi < 0 || midi > 127 {
		return 0, fmt.Errorf("note %q out of MIDI range", name)
	}
	return midi, nil
}

// MIDIToFreq converts a MIDI note to a frequency against the given
// tuning pitch (the frequency of A4, MIDI 69).
func MIDIToFreq(midi int, tuning float64) float64 {
	if tuning <= 0 {
		tuning = 440
	}
	return tuning * math.Pow(2, float64(midi-69)/12)
}

// NoteToFreq combines NoteToMIDI and MIDIToFreq.
func NoteToFreq(name string, tuning float64) (float64, error) {
	midi, err := NoteToMIDI(name)
	if err != nil {
		return 0, err
	}
	return MIDIToFreq(midi, tuning), nil
}
