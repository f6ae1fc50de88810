package core

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/item-routing-simulator/model"
)

var (
	ErrNoAgents         = errors.New("no agents")
	ErrZeroDivisor      = model.ErrZeroDivisor
	ErrTargetOutOfRange = errors.New("target agent out of range")
	ErrSelfRouting      = errors.New("predicate routes to its own agent")
)

// ConstructionError reports why NewEngine rejected a scenario. Agent is -1
// when the failure is not tied to a single agent.
type ConstructionError struct {
	Agent model.AgentID
	Err   error
}

func (e *ConstructionError) Error() string {
	if e.Agent < 0 {
		return fmt.Sprintf("engine construction: %v", e.Err)
	}
	return fmt.Sprintf("engine construction: agent %d: %v", e.Agent, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }
