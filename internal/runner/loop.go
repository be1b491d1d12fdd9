package runner

import (
	"fmt"
	"strconv"
	"strings"
)

// loopState holds a parsed for-loop header. The header language is
// deliberately tiny: init "i = 0", condition "i < 8" (empty means
// loop forever), update "i++", "i--", "i += 2", "i -= 2".
type loopState struct {
	initVar string
	initVal float64

	condVar string
	condOp  string
	condVal float64

	updVar   string
	updDelta float64
}

func parseLoop(init, cond, update string) (*loopState, error) {
	l := &loopState{}

	if s := strings.TrimSpace(init); s != "" {
		name, rest, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("loop init %q: want \"name = number\"", init)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
		if err != nil {
			return nil, fmt.Errorf("loop init %q: %w", init, err)
		}
		l.initVar = strings.TrimSpace(name)
		l.initVal = v
	}

	if s := strings.TrimSpace(cond); s != "" {
		var op string
		for _, cand := range []string{"<=", ">=", "==", "!=", "<", ">"} {
			if strings.Contains(s, cand) {
				op = cand
				break
			}
		}
		if op == "" {
			return nil, fmt.Errorf("loop condition %q: no comparison operator", cond)
		}
		name, rest, _ := strings.Cut(s, op)
		v, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
		if err != nil {
			return nil, fmt.Errorf("loop condition %q: %w", cond, err)
		}
		l.condVar = strings.TrimSpace(name)
		l.condOp = op
		l.condVal = v
	}

	if s := strings.TrimSpace(update); s != "" {
		switch {
		case strings.HasSuffix(s, "++"):
			l.updVar = strings.TrimSpace(strings.TrimSuffix(s, "++"))
			l.updDelta = 1
		case strings.HasSuffix(s, "--"):
			l.updVar = strings.TrimSpace(strings.TrimSuffix(s, "--"))
			l.updDelta = -1
		case strings.Contains(s, "+="):
			name, rest, _ := strings.Cut(s, "+=")
			v, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
			if err != nil {
				return nil, fmt.Errorf("loop update %q: %w", update, err)
			}
			l.updVar = strings.TrimSpace(name)
			l.updDelta = v
		case strings.Contains(s, "-="):
			name, rest, _ := strings.Cut(s, "-=")
			v, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
			if err != nil {
				return nil, fmt.Errorf("loop update %q: %w", update, err)
			}
			l.updVar = strings.TrimSpace(name)
			l.updDelta = -v
		default:
			return nil, fmt.Errorf("loop update %q: want ++, --, += or -=", update)
		}
	}

	return l, nil
}

func (l *loopState) applyInit(vars map[string]float64) {
	if l.initVar != "" {
		vars[l.initVar] = l.initVal
	}
}

func (l *loopState) applyUpdate(vars map[string]float64) {
	if l.updVar != "" {
		vars[l.updVar] += l.updDelta
	}
}

// test evaluates the condition; an absent condition loops forever.
func (l *loopState) test(vars map[string]float64) bool {
	if l.condVar == "" {
		return true
	}
	v := vars[l.condVar]
	switch l.condOp {
	case "<":
		return v < l.condVal
	case "<=":
		return v <= l.condVal
	case ">":
		return v > l.condVal
	case ">=":
		return v >= l.condVal
	case "==":
		return v == l.condVal
	case "!=":
		return v != l.condVal
	}
	return false
}
