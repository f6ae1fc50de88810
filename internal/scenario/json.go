package scenario

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/signalsfoundry/item-routing-simulator/model"
)

//go:embed scenario.schema.json
var schemaText string

var scenarioSchema = jsonschema.MustCompileString("scenario.schema.json", schemaText)

// internal JSON shapes – keep them unexported so we're free to evolve them.
type scenarioJSON struct {
	Agents []agentJSON `json:"agents"`
}

type agentJSON struct {
	ID        int                `json:"id"`
	Items     []model.WorryLevel `json:"items"`
	Operation operationJSON      `json:"operation"`
	Test      testJSON           `json:"test"`
}

type operationJSON struct {
	Op      string      `json:"op"` // "add" | "multiply"
	Operand operandJSON `json:"operand"`
}

// operandJSON is either the string "old" or a non-negative integer.
type operandJSON struct {
	model.Operand
}

func (o operandJSON) MarshalJSON() ([]byte, error) {
	if o.Kind == model.OperandCurrent {
		return []byte(`"old"`), nil
	}
	return []byte(strconv.FormatUint(o.Value, 10)), nil
}

func (o *operandJSON) UnmarshalJSON(b []byte) error {
	if string(b) == `"old"` {
		o.Operand = model.Current()
		return nil
	}
	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("operand %s: %w", b, err)
	}
	o.Operand = model.Literal(v)
	return nil
}

type testJSON struct {
	DivisibleBy model.WorryLevel `json:"divisible_by"`
	IfTrue      int              `json:"if_true"`
	IfFalse     int              `json:"if_false"`
}

// DecodeJSON reads a JSON scenario, validating it against the embedded
// schema before converting it to agent specs.
func DecodeJSON(r io.Reader) ([]model.AgentSpec, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("scenario: read: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode failed: %v", ErrInvalidScenario, err)
	}
	if err := scenarioSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}

	var payload scenarioJSON
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode failed: %v", ErrInvalidScenario, err)
	}
	return fromJSON(payload)
}

func fromJSON(payload scenarioJSON) ([]model.AgentSpec, error) {
	specs := make([]model.AgentSpec, 0, len(payload.Agents))
	for i, a := range payload.Agents {
		if a.ID != i {
			return nil, fmt.Errorf("%w: agent at position %d has id %d", ErrInvalidScenario, i, a.ID)
		}
		var op model.Operation
		switch a.Operation.Op {
		case "add":
			op = model.Add(a.Operation.Operand.Operand)
		case "multiply":
			op = model.Multiply(a.Operation.Operand.Operand)
		default:
			return nil, fmt.Errorf("%w: agent %d: %q", ErrUnsupportedOperator, i, a.Operation.Op)
		}
		pred, err := model.NewPredicate(a.Test.DivisibleBy, a.Test.IfTrue, a.Test.IfFalse)
		if err != nil {
			return nil, fmt.Errorf("%w: agent %d: %w", ErrInvalidScenario, i, err)
		}
		items := a.Items
		if items == nil {
			items = []model.WorryLevel{}
		}
		specs = append(specs, model.AgentSpec{ID: i, Items: items, Operation: op, Predicate: pred})
	}
	if err := validateTargets(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// EncodeJSON writes specs in the format DecodeJSON reads.
func EncodeJSON(w io.Writer, specs []model.AgentSpec) error {
	payload := scenarioJSON{Agents: make([]agentJSON, 0, len(specs))}
	for _, s := range specs {
		op := "add"
		if s.Operation.Operator == model.OpMultiply {
			op = "multiply"
		}
		items := s.Items
		if items == nil {
			items = []model.WorryLevel{}
		}
		payload.Agents = append(payload.Agents, agentJSON{
			ID:        s.ID,
			Items:     items,
			Operation: operationJSON{Op: op, Operand: operandJSON{s.Operation.Operand}},
			Test: testJSON{
				DivisibleBy: s.Predicate.Divisor,
				IfTrue:      s.Predicate.IfTrue,
				IfFalse:     s.Predicate.IfFalse,
			},
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
