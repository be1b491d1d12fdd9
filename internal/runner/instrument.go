package runner

import (
	"fmt"

	"github.com/songwalker/songwalker-go/internal/ast"
	"github.com/songwalker/songwalker-go/internal/preset"
)

// evalInstrument evaluates an expression in instrument position.
// Identifiers resolve through the fiber's parameters first, then the
// song's constants. A bare string is waveform shorthand.
func (r *Runner) evalInstrument(f *fiber, e *ast.Expr) (preset.InstrumentConfig, error) {
	switch {
	case e == nil:
		return preset.InstrumentConfig{}, fmt.Errorf("missing instrument expression")
	case e.Str != nil:
		cfg := preset.Default()
		cfg.Waveform = *e.Str
		return cfg, nil
	case e.Ident != nil:
		if cfg, ok := f.params[*e.Ident]; ok {
			return cfg, nil
		}
		if cfg, ok := r.state.Consts[*e.Ident]; ok {
			return cfg, nil
		}
		return preset.InstrumentConfig{}, fmt.Errorf("unknown instrument %q", *e.Ident)
	case e.Call != nil:
		return r.evalInstrumentCall(f, e.Call)
	case e.Object != nil:
		return oscillatorFromObject(e.Object)
	}
	return preset.InstrumentConfig{}, fmt.Errorf("expression is not an instrument")
}

func (r *Runner) evalInstrumentCall(f *fiber, c *ast.CallExpr) (preset.InstrumentConfig, error) {
	switch c.Function {
	case "Oscillator":
		if len(c.Args) != 1 || c.Args[0].Object == nil {
			return preset.InstrumentConfig{}, fmt.Errorf("Oscillator wants a config object")
		}
		return oscillatorFromObject(c.Args[0].Object)
	case "loadPreset":
		if len(c.Args) < 1 || c.Args[0].Str == nil {
			return preset.InstrumentConfig{}, fmt.Errorf("loadPreset wants a preset name")
		}
		// Waveform stays unset so an overlay here cannot clobber the
		// resolved preset's; unresolved refs still fall back to the
		// default waveform at activation.
		var cfg preset.InstrumentConfig
		// An optional second argument overlays oscillator settings on
		// the resolved preset.
		if len(c.Args) > 1 {
			over, err := r.evalInstrument(f, &c.Args[1])
			if err != nil {
				return preset.InstrumentConfig{}, err
			}
			cfg = cfg.Merge(over)
		}
		cfg.PresetRef = *c.Args[0].Str
		return cfg, nil
	case "Layer":
		var cfg preset.InstrumentConfig
		for i := range c.Args {
			child, err := r.evalInstrument(f, &c.Args[i])
			if err != nil {
				return preset.InstrumentConfig{}, err
			}
			cfg.Layers = append(cfg.Layers, child)
		}
		if len(cfg.Layers) == 0 {
			return preset.InstrumentConfig{}, fmt.Errorf("Layer wants at least one instrument")
		}
		return cfg, nil
	}
	return preset.InstrumentConfig{}, fmt.Errorf("unknown instrument function %q", c.Function)
}

func oscillatorFromObject(obj map[string]ast.Expr) (preset.InstrumentConfig, error) {
	cfg := preset.Default()
	for key, val := range obj {
		switch key {
		case "type", "waveform":
			if val.Str == nil {
				return cfg, fmt.Errorf("oscillator %s wants a string", key)
			}
			cfg.Waveform = *val.Str
		case "attack", "decay", "sustain", "release", "detune", "mixer":
			if val.Number == nil {
				return cfg, fmt.Errorf("oscillator %s wants a number", key)
			}
			v := *val.Number
			switch key {
			case "attack":
				cfg.Attack = &v
			case "decay":
				cfg.Decay = &v
			case "sustain":
				cfg.Sustain = &v
			case "release":
				cfg.Release = &v
			case "detune":
				cfg.Detune = &v
			case "mixer":
				cfg.Mixer = &v
			}
		default:
			return cfg, fmt.Errorf("unknown oscillator field %q", key)
		}
	}
	return cfg, nil
}
