package core

import (
	"github.com/gammazero/deque"

	"github.com/signalsfoundry/item-routing-simulator/model"
)

// Agent holds one actor's FIFO queue of worry levels plus its operation,
// predicate and inspection counter. Agents live in the Engine's arena and
// refer to each other only by id.
type Agent struct {
	id        model.AgentID
	queue     deque.Deque[model.WorryLevel]
	operation model.Operation
	predicate model.Predicate
	inspected uint64
}

func newAgent(id model.AgentID, spec model.AgentSpec) Agent {
	a := Agent{
		id:        id,
		operation: spec.Operation,
		predicate: spec.Predicate,
	}
	for _, item := range spec.Items {
		a.queue.PushBack(item)
	}
	return a
}

// ID returns the agent's position in the arena.
func (a *Agent) ID() model.AgentID { return a.id }

// Inspected returns how many items the agent has drained so far.
func (a *Agent) Inspected() uint64 { return a.inspected }

// Len returns the current queue length.
func (a *Agent) Len() int { return a.queue.Len() }

// Operation returns the agent's transform.
func (a *Agent) Operation() model.Operation { return a.operation }

// Predicate returns the agent's routing test.
func (a *Agent) Predicate() model.Predicate { return a.predicate }

// Items returns a copy of the queue, front first.
func (a *Agent) Items() []model.WorryLevel {
	out := make([]model.WorryLevel, a.queue.Len())
	for i := range out {
		out[i] = a.queue.At(i)
	}
	return out
}
