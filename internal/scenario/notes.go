package scenario

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/signalsfoundry/item-routing-simulator/model"
)

var (
	ErrUnsupportedOperator = errors.New("unsupported operator")
	ErrInvalidScenario     = errors.New("invalid scenario")
)

// ParseError reports a malformed line in a notes document.
type ParseError struct {
	Line int
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line <= 0 {
		return fmt.Sprintf("notes: %s", e.Msg)
	}
	return fmt.Sprintf("notes: line %d: %s", e.Line, e.Msg)
}

func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidScenario, e.Err}
	}
	return []error{ErrInvalidScenario}
}

type line struct {
	no   int
	text string
}

// ParseNotes reads agent descriptions in the notes format:
//
//	Monkey 0:
//	  Starting items: 79, 98
//	  Operation: new = old * 19
//	  Test: divisible by 23
//	    If true: throw to monkey 2
//	    If false: throw to monkey 3
//
// Blocks are separated by blank lines. Ids must be dense and in order, and
// every throw target must name an agent in the document.
func ParseNotes(r io.Reader) ([]model.AgentSpec, error) {
	var lines []line
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		text := strings.TrimSpace(strings.TrimRight(sc.Text(), "\r"))
		if text == "" {
			continue
		}
		lines = append(lines, line{no: n, text: text})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("notes: read: %w", err)
	}
	if len(lines) == 0 {
		return nil, &ParseError{Msg: "no agents"}
	}

	var specs []model.AgentSpec
	for len(lines) > 0 {
		if len(lines) < 6 {
			return nil, &ParseError{Line: lines[0].no, Msg: "truncated agent block"}
		}
		spec, err := parseBlock(lines[:6], len(specs))
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
		lines = lines[6:]
	}
	if err := validateTargets(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

func parseBlock(b []line, want int) (model.AgentSpec, error) {
	var spec model.AgentSpec

	id, err := parseHeader(b[0])
	if err != nil {
		return spec, err
	}
	if id != want {
		return spec, &ParseError{Line: b[0].no, Msg: fmt.Sprintf("agent id %d out of order, want %d", id, want)}
	}
	spec.ID = id

	if spec.Items, err = parseItems(b[1]); err != nil {
		return spec, err
	}
	if spec.Operation, err = parseOperation(b[2]); err != nil {
		return spec, err
	}

	divisor, err := uintAfter(b[3], "Test: divisible by")
	if err != nil {
		return spec, err
	}
	ifTrue, err := parseTarget(b[4], "If true:")
	if err != nil {
		return spec, err
	}
	ifFalse, err := parseTarget(b[5], "If false:")
	if err != nil {
		return spec, err
	}
	spec.Predicate, err = model.NewPredicate(divisor, int(ifTrue), int(ifFalse))
	if err != nil {
		return spec, &ParseError{Line: b[3].no, Msg: err.Error(), Err: err}
	}
	return spec, nil
}

func parseHeader(l line) (int, error) {
	text := strings.TrimSuffix(l.text, ":")
	if text == l.text {
		return 0, &ParseError{Line: l.no, Msg: fmt.Sprintf("expected agent header, got %q", l.text)}
	}
	for _, prefix := range []string{"Monkey ", "Agent "} {
		if rest, ok := strings.CutPrefix(text, prefix); ok {
			id, err := strconv.Atoi(strings.TrimSpace(rest))
			if err != nil || id < 0 {
				return 0, &ParseError{Line: l.no, Msg: fmt.Sprintf("invalid agent id %q", rest)}
			}
			return id, nil
		}
	}
	return 0, &ParseError{Line: l.no, Msg: fmt.Sprintf("expected agent header, got %q", l.text)}
}

func parseItems(l line) ([]model.WorryLevel, error) {
	rest, ok := strings.CutPrefix(l.text, "Starting items:")
	if !ok {
		return nil, &ParseError{Line: l.no, Msg: fmt.Sprintf("expected starting items, got %q", l.text)}
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return []model.WorryLevel{}, nil
	}
	parts := strings.Split(rest, ",")
	items := make([]model.WorryLevel, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, &ParseError{Line: l.no, Msg: fmt.Sprintf("invalid item %q", strings.TrimSpace(p)), Err: err}
		}
		items = append(items, v)
	}
	return items, nil
}

func parseOperation(l line) (model.Operation, error) {
	rest, ok := strings.CutPrefix(l.text, "Operation: new = old ")
	if !ok {
		return model.Operation{}, &ParseError{Line: l.no, Msg: fmt.Sprintf("expected operation, got %q", l.text)}
	}
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return model.Operation{}, &ParseError{Line: l.no, Msg: fmt.Sprintf("malformed operation %q", rest)}
	}

	var operand model.Operand
	if fields[1] == "old" {
		operand = model.Current()
	} else {
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return model.Operation{}, &ParseError{Line: l.no, Msg: fmt.Sprintf("invalid operand %q", fields[1]), Err: err}
		}
		operand = model.Literal(v)
	}

	switch fields[0] {
	case "+":
		return model.Add(operand), nil
	case "*":
		return model.Multiply(operand), nil
	default:
		return model.Operation{}, &ParseError{
			Line: l.no,
			Msg:  fmt.Sprintf("operator %q", fields[0]),
			Err:  ErrUnsupportedOperator,
		}
	}
}

func parseTarget(l line, prefix string) (uint64, error) {
	rest, ok := strings.CutPrefix(l.text, prefix)
	if !ok {
		return 0, &ParseError{Line: l.no, Msg: fmt.Sprintf("expected %q, got %q", prefix, l.text)}
	}
	rest = strings.TrimSpace(rest)
	for _, verb := range []string{"throw to monkey", "throw to agent"} {
		if after, ok := strings.CutPrefix(rest, verb); ok {
			return uintAfter(line{no: l.no, text: after}, "")
		}
	}
	return 0, &ParseError{Line: l.no, Msg: fmt.Sprintf("expected throw target, got %q", l.text)}
}

func uintAfter(l line, prefix string) (uint64, error) {
	rest, ok := strings.CutPrefix(l.text, prefix)
	if !ok {
		return 0, &ParseError{Line: l.no, Msg: fmt.Sprintf("expected %q, got %q", prefix, l.text)}
	}
	v, err := strconv.ParseUint(strings.TrimSpace(rest), 10, 64)
	if err != nil {
		return 0, &ParseError{Line: l.no, Msg: fmt.Sprintf("invalid number %q", strings.TrimSpace(rest)), Err: err}
	}
	return v, nil
}

// validateTargets checks every throw target names an agent in specs.
func validateTargets(specs []model.AgentSpec) error {
	for _, s := range specs {
		for _, target := range s.Predicate.Targets() {
			if target >= len(specs) {
				return fmt.Errorf("%w: agent %d throws to unknown agent %d", ErrInvalidScenario, s.ID, target)
			}
		}
	}
	return nil
}
