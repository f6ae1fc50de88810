package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalsfoundry/item-routing-simulator/internal/logging"
	"github.com/signalsfoundry/item-routing-simulator/model"
)

// MetricsRecorder receives per-round observations from the Engine.
// inspected holds the per-agent inspections performed during the round and
// queueLengths the per-agent queue lengths after it.
type MetricsRecorder interface {
	RecordRound(inspected []uint64, queueLengths []int)
}

// Option customises Engine construction.
type Option func(*Engine)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetricsRecorder attaches an optional per-round metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine owns every agent and drives rounds. It is not safe for concurrent
// use; build one per run.
type Engine struct {
	agents  []Agent
	relief  reducer
	rounds  int
	log     logging.Logger
	metrics MetricsRecorder

	roundListeners []func(int)
}

// NewEngine builds agents from validated specs. Agent ids are the specs'
// positions; only predicate targets are checked against the arena size.
func NewEngine(specs []model.AgentSpec, relief ReliefPolicy, opts ...Option) (*Engine, error) {
	if len(specs) == 0 {
		return nil, &ConstructionError{Agent: -1, Err: ErrNoAgents}
	}
	for i, s := range specs {
		if err := validateSpec(i, s, len(specs)); err != nil {
			return nil, err
		}
	}

	r, err := relief.bind(specs)
	if err != nil {
		var ce *ConstructionError
		if errors.As(err, &ce) {
			return nil, ce
		}
		return nil, &ConstructionError{Agent: -1, Err: err}
	}

	e := &Engine{
		agents: make([]Agent, len(specs)),
		relief: r,
		log:    logging.Noop(),
	}
	for i, s := range specs {
		e.agents[i] = newAgent(i, s)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	e.log.Info(context.Background(), "engine constructed",
		logging.Int("agents", len(e.agents)),
		logging.String("relief", relief.String()),
		logging.Uint64("modulus", r.modulus),
		logging.Int("items", e.TotalItems()),
	)
	return e, nil
}

func validateSpec(i int, s model.AgentSpec, n int) error {
	p := s.Predicate
	if p.Divisor == 0 {
		return &ConstructionError{Agent: i, Err: ErrZeroDivisor}
	}
	for _, target := range p.Targets() {
		if target < 0 || target >= n {
			return &ConstructionError{Agent: i, Err: fmt.Errorf("%w: %d not in [0,%d)", ErrTargetOutOfRange, target, n)}
		}
		if target == i {
			return &ConstructionError{Agent: i, Err: ErrSelfRouting}
		}
	}
	switch s.Operation.Operator {
	case model.OpAdd, model.OpMultiply:
	default:
		return &ConstructionError{Agent: i, Err: fmt.Errorf("unsupported operator %s", s.Operation.Operator)}
	}
	return nil
}

// RegisterRoundListener registers fn to run after every completed round
// with the 1-based round number.
func (e *Engine) RegisterRoundListener(fn func(int)) {
	e.roundListeners = append(e.roundListeners, fn)
}

// Round runs one ascending-id pass over every agent.
func (e *Engine) Round() {
	var before []uint64
	if e.metrics != nil {
		before = e.InspectionCounts()
	}

	for id := range e.agents {
		e.turn(id)
	}
	e.rounds++

	if e.metrics != nil {
		delta := e.InspectionCounts()
		for i := range delta {
			delta[i] -= before[i]
		}
		e.metrics.RecordRound(delta, e.QueueLengths())
	}
	for _, fn := range e.roundListeners {
		fn(e.rounds)
	}
}

// turn drains agent id. The queue length is re-read before every pop so
// items thrown to id earlier in this round are inspected now. Self-routing
// is rejected at construction, so the loop never feeds itself.
func (e *Engine) turn(id model.AgentID) {
	a := &e.agents[id]
	for a.queue.Len() > 0 {
		item := a.queue.PopFront()
		value := e.relief.apply(a.operation.Evaluate(item))
		target := a.predicate.Route(value)
		a.inspected++
		e.agents[target].queue.PushBack(value)
	}
}

// Run executes rounds consecutive rounds.
func (e *Engine) Run(rounds int) {
	_ = e.RunContext(context.Background(), rounds)
}

// RunContext executes rounds consecutive rounds, checking ctx between
// rounds. A round that has started always completes.
func (e *Engine) RunContext(ctx context.Context, rounds int) error {
	for r := 0; r < rounds; r++ {
		if err := ctx.Err(); err != nil {
			e.log.Warn(ctx, "simulation cancelled",
				logging.Int("completed_rounds", e.rounds),
				logging.Err(err),
			)
			return err
		}
		e.Round()
	}
	e.log.Debug(ctx, "simulation finished",
		logging.Int("rounds", e.rounds),
		logging.Any("inspections", e.InspectionCounts()),
	)
	return nil
}

// RoundsCompleted returns the number of rounds run so far.
func (e *Engine) RoundsCompleted() int { return e.rounds }

// Modulus returns the LCM used by ModulusReduction, or 0 for FloorDivide.
func (e *Engine) Modulus() model.WorryLevel { return e.relief.modulus }

// Relief returns the policy the engine was built with.
func (e *Engine) Relief() ReliefPolicy { return e.relief.policy }

// Len returns the number of agents.
func (e *Engine) Len() int { return len(e.agents) }

// Agent returns agent id for read-only inspection.
func (e *Engine) Agent(id model.AgentID) *Agent {
	if id < 0 || id >= len(e.agents) {
		return nil
	}
	return &e.agents[id]
}

// InspectionCounts returns per-agent inspection counts in id order.
func (e *Engine) InspectionCounts() []uint64 {
	out := make([]uint64, len(e.agents))
	for i := range e.agents {
		out[i] = e.agents[i].inspected
	}
	return out
}

// QueueLengths returns per-agent queue lengths in id order.
func (e *Engine) QueueLengths() []int {
	out := make([]int, len(e.agents))
	for i := range e.agents {
		out[i] = e.agents[i].queue.Len()
	}
	return out
}

// Queues returns a snapshot of every queue in id order.
func (e *Engine) Queues() [][]model.WorryLevel {
	out := make([][]model.WorryLevel, len(e.agents))
	for i := range e.agents {
		out[i] = e.agents[i].Items()
	}
	return out
}

// TotalItems returns the number of items across all queues.
func (e *Engine) TotalItems() int {
	total := 0
	for i := range e.agents {
		total += e.agents[i].queue.Len()
	}
	return total
}

// MonkeyBusiness scores the current inspection counts.
func (e *Engine) MonkeyBusiness() (uint64, error) {
	return MonkeyBusiness(e.InspectionCounts())
}
