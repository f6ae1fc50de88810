package model

// AgentSpec is a parsed, validated agent description. ID must equal the
// spec's position in the list handed to the engine.
type AgentSpec struct {
	ID        AgentID
	Items     []WorryLevel
	Operation Operation
	Predicate Predicate
}

// Clone returns a deep copy so callers can reuse a spec list across runs.
func (s AgentSpec) Clone() AgentSpec {
	out := s
	out.Items = append([]WorryLevel(nil), s.Items...)
	return out
}

// CloneSpecs deep-copies a spec list.
func CloneSpecs(specs []AgentSpec) []AgentSpec {
	out := make([]AgentSpec, len(specs))
	for i, s := range specs {
		out[i] = s.Clone()
	}
	return out
}
