package preset

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-audio/wav"
	"gopkg.in/yaml.v3"
)

// Resolver supplies instrument configs for loadPreset references.
type Resolver interface {
	// Resolve looks up a preset by id, name, or pattern. The second
	// return is false when nothing matched.
	Resolve(ref string) (InstrumentConfig, bool)
}

// StaticResolver serves presets from an in-memory map keyed by id.
type StaticResolver map[string]InstrumentConfig

func (s StaticResolver) Resolve(ref string) (InstrumentConfig, bool) {
	cfg, ok := s[ref]
	return cfg, ok
}

// Descriptor is the on-disk schema of a preset library entry.
type Descriptor struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Category string   `yaml:"category,omitempty"`
	Tags     []string `yaml:"tags,omitempty"`
	Graph    Node     `yaml:"graph"`
}

// Node is one node of a preset's instrument graph.
type Node struct {
	// Kind is "oscillator", "sampler", or "layer".
	Kind string `yaml:"kind"`

	Waveform string   `yaml:"waveform,omitempty"`
	Attack   *float64 `yaml:"attack,omitempty"`
	Decay    *float64 `yaml:"decay,omitempty"`
	Sustain  *float64 `yaml:"sustain,omitempty"`
	Release  *float64 `yaml:"release,omitempty"`
	Detune   *float64 `yaml:"detune,omitempty"`
	Mixer    *float64 `yaml:"mixer,omitempty"`

	// Sampler fields. Sample is a WAV path relative to the descriptor.
	Sample        string   `yaml:"sample,omitempty"`
	RootNote      int      `yaml:"rootNote,omitempty"`
	FineTuneCents float64  `yaml:"fineTuneCents,omitempty"`
	KeyLow        int      `yaml:"keyLow,omitempty"`
	KeyHigh       int      `yaml:"keyHigh,omitempty"`
	LoopStart     int      `yaml:"loopStart,omitempty"`
	LoopEnd       int      `yaml:"loopEnd,omitempty"`
	// DetectPitch asks the loader to estimate the root note from the
	// sample itself when RootNote is absent.
	DetectPitch bool `yaml:"detectPitch,omitempty"`

	Children []Node `yaml:"children,omitempty"`
}

// DirResolver loads preset descriptors (*.yaml) from a directory tree.
// Samples referenced by sampler nodes are loaded eagerly so resolution
// never touches the disk on the audio path.
type DirResolver struct {
	entries []entry
	byID    map[string]int
}

type entry struct {
	desc Descriptor
	cfg  InstrumentConfig
}

// LoadDir builds a DirResolver from every .yaml file under dir.
func LoadDir(dir string) (*DirResolver, error) {
	r := &DirResolver{byID: make(map[string]int)}
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".yaml") {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var desc Descriptor
		if err := yaml.Unmarshal(raw, &desc); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if desc.ID == "" {
			return fmt.Errorf("%s: descriptor missing id", path)
		}
		cfg, err := buildConfig(&desc.Graph, filepath.Dir(path))
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		cfg.PresetRef = desc.ID
		r.byID[desc.ID] = len(r.entries)
		r.entries = append(r.entries, entry{desc: desc, cfg: cfg})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Resolve matches by exact id, then exact name, then treats ref as a
// regular expression over id, name, and tags. An invalid pattern falls
// back to substring matching.
func (r *DirResolver) Resolve(ref string) (InstrumentConfig, bool) {
	if i, ok := r.byID[ref]; ok {
		return r.entries[i].cfg, true
	}
	for _, e := range r.entries {
		if strings.EqualFold(e.desc.Name, ref) {
			return e.cfg, true
		}
	}
	match := func(s string) bool { return strings.Contains(strings.ToLower(s), strings.ToLower(ref)) }
	if re, err := regexp.Compile("(?i)" + ref); err == nil {
		match = re.MatchString
	}
	for _, e := range r.entries {
		if match(e.desc.ID) || match(e.desc.Name) {
			return e.cfg, true
		}
		for _, t := range e.desc.Tags {
			if match(t) {
				return e.cfg, true
			}
		}
	}
	return InstrumentConfig{}, false
}

// IDs lists the loaded preset ids in load order.
func (r *DirResolver) IDs() []string {
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.desc.ID
	}
	return out
}

func buildConfig(n *Node, baseDir string) (InstrumentConfig, error) {
	switch n.Kind {
	case "oscillator", "":
		cfg := InstrumentConfig{
			Waveform: n.Waveform,
			Attack:   n.Attack,
			Decay:    n.Decay,
			Sustain:  n.Sustain,
			Release:  n.Release,
			Detune:   n.Detune,
			Mixer:    n.Mixer,
		}
		if cfg.Waveform == "" {
			cfg.Waveform = "triangle"
		}
		return cfg, nil
	case "sampler":
		zone, err := loadZone(n, baseDir)
		if err != nil {
			return InstrumentConfig{}, err
		}
		return InstrumentConfig{
			Waveform: "triangle",
			Attack:   n.Attack,
			Decay:    n.Decay,
			Sustain:  n.Sustain,
			Release:  n.Release,
			Mixer:    n.Mixer,
			Sample:   zone,
		}, nil
	case "layer":
		if len(n.Children) == 0 {
			return InstrumentConfig{}, fmt.Errorf("layer node has no children")
		}
		var cfg InstrumentConfig
		cfg.Mixer = n.Mixer
		for i := range n.Children {
			child, err := buildConfig(&n.Children[i], baseDir)
			if err != nil {
				return InstrumentConfig{}, err
			}
			cfg.Layers = append(cfg.Layers, child)
		}
		return cfg, nil
	default:
		return InstrumentConfig{}, fmt.Errorf("unknown graph node kind %q", n.Kind)
	}
}

func loadZone(n *Node, baseDir string) (*SampleZone, error) {
	if n.Sample == "" {
		return nil, fmt.Errorf("sampler node missing sample path")
	}
	path := n.Sample
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	data, rate, err := loadWAVMono(path)
	if err != nil {
		return nil, err
	}
	zone := &SampleZone{
		Data:          data,
		SampleRate:    rate,
		RootNote:      n.RootNote,
		FineTuneCents: n.FineTuneCents,
		KeyLow:        n.KeyLow,
		KeyHigh:       n.KeyHigh,
		LoopStart:     n.LoopStart,
		LoopEnd:       n.LoopEnd,
	}
	if zone.KeyHigh == 0 {
		zone.KeyHigh = 127
	}
	if zone.RootNote == 0 {
		zone.RootNote = 60
		if n.DetectPitch {
			if est := DetectPitch(data, rate); !est.IsNoise {
				zone.RootNote = est.MIDINote
				zone.FineTuneCents = est.FineTuneCents
			}
		}
	}
	return zone, nil
}

// loadWAVMono decodes a WAV file and sums its channels to mono float32.
func loadWAVMono(path string) ([]float32, float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%s: not a valid WAV file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, err)
	}
	ch := buf.Format.NumChannels
	if ch < 1 {
		return nil, 0, fmt.Errorf("%s: no channels", path)
	}
	scale := float32(1)
	if dec.BitDepth > 0 {
		scale = 1.0 / float32(int(1)<<(dec.BitDepth-1))
	}
	frames := len(buf.Data) / ch
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < ch; c++ {
			sum += float32(buf.Data[i*ch+c]) * scale
		}
		out[i] = sum / float32(ch)
	}
	return out, float64(buf.Format.SampleRate), nil
}
