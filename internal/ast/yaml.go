package ast

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Decode reads a YAML-encoded program. The front-end parser emits this
// form; it is also handy for fixtures and tooling.
func Decode(r io.Reader) (*Program, error) {
	var prog Program
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&prog); err != nil {
		return nil, fmt.Errorf("decode program: %w", err)
	}
	if err := validate(&prog); err != nil {
		return nil, err
	}
	return &prog, nil
}

// Load reads a YAML-encoded program from a file.
func Load(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	prog, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}

// Encode writes the program as YAML.
func (p *Program) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("encode program: %w", err)
	}
	return enc.Close()
}

func validate(p *Program) error {
	for i := range p.Statements {
		if err := validateStmt(&p.Statements[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStmt(s *Statement) error {
	switch s.Kind {
	case KindNote:
		if s.Pitch == "" {
			return fmt.Errorf("note statement missing pitch")
		}
	case KindChord:
		if len(s.Notes) == 0 {
			return fmt.Errorf("chord statement has no notes")
		}
	case KindRest, KindComment:
	case KindAssign:
		if s.Target == "" || s.Value == nil {
			return fmt.Errorf("assignment missing target or value")
		}
	case KindConst:
		if s.Name == "" || s.Value == nil {
			return fmt.Errorf("const declaration missing name or value")
		}
	case KindTrackDef:
		if s.Name == "" {
			return fmt.Errorf("track definition missing name")
		}
	case KindCall:
		if s.Name == "" {
			return fmt.Errorf("track call missing name")
		}
	case KindFor:
	case "":
		return fmt.Errorf("statement missing kind")
	default:
		return fmt.Errorf("unknown statement kind %q", s.Kind)
	}
	for i := range s.Body {
		if err := validateStmt(&s.Body[i]); err != nil {
			return err
		}
	}
	return nil
}
