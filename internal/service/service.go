// Package service runs simulations on behalf of the HTTP and gRPC
// surfaces. It applies request limits, instruments each run, and records
// completed runs in the knowledge base.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/item-routing-simulator/core"
	"github.com/signalsfoundry/item-routing-simulator/internal/logging"
	"github.com/signalsfoundry/item-routing-simulator/internal/observability"
	"github.com/signalsfoundry/item-routing-simulator/internal/roundlog"
	"github.com/signalsfoundry/item-routing-simulator/kb"
	"github.com/signalsfoundry/item-routing-simulator/model"
)

const tracerName = "github.com/signalsfoundry/item-routing-simulator/internal/service"

var (
	// ErrInvalidRequest marks requests rejected before an engine is built.
	ErrInvalidRequest = errors.New("invalid simulation request")
	// ErrUnknownRelief is returned by ParseRelief.
	ErrUnknownRelief = errors.New("unknown relief policy")
)

// Limits bound a single request.
type Limits struct {
	MaxRounds     int
	MaxAgents     int
	DefaultRounds int // used when a request asks for zero rounds
}

// DefaultLimits mirrors the server's built-in configuration.
func DefaultLimits() Limits {
	return Limits{MaxRounds: 100000, MaxAgents: 256, DefaultRounds: 20}
}

// Request describes one run. Agents are copied by the engine, so the
// caller may reuse the slice.
type Request struct {
	Agents       []model.AgentSpec
	Relief       core.ReliefPolicy
	Rounds       int
	ScenarioName string

	// RoundLog, when set, receives one entry per completed round.
	RoundLog *roundlog.Writer
}

// Result is a completed run.
type Result struct {
	Run       *model.RunRecord
	Standings []core.Standing
	Queues    [][]model.WorryLevel
}

// Option customises a Service.
type Option func(*Service)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics attaches the simulation collector.
func WithMetrics(m *observability.SimulationCollector) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLimits overrides DefaultLimits.
func WithLimits(l Limits) Option {
	return func(s *Service) { s.limits = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// Service is safe for concurrent use; each run gets its own engine.
type Service struct {
	store   *kb.KnowledgeBase
	log     logging.Logger
	metrics *observability.SimulationCollector
	limits  Limits
	now     func() time.Time
	newID   func() string
	tracer  trace.Tracer
}

// New builds a Service backed by store. A nil store gets a fresh
// in-memory knowledge base.
func New(store *kb.KnowledgeBase, opts ...Option) *Service {
	if store == nil {
		store = kb.NewKnowledgeBase()
	}
	s := &Service{
		store:  store,
		log:    logging.Noop(),
		limits: DefaultLimits(),
		now:    time.Now,
		newID:  uuid.NewString,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Store exposes the backing knowledge base.
func (s *Service) Store() *kb.KnowledgeBase { return s.store }

// Limits returns the active request limits.
func (s *Service) Limits() Limits { return s.limits }

// Simulate validates req, runs it to completion, and records the run.
// Cancelling ctx stops the run between rounds; nothing is recorded then.
func (s *Service) Simulate(ctx context.Context, req Request) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	rounds := req.Rounds
	if rounds == 0 {
		rounds = s.limits.DefaultRounds
	}
	if err := s.checkLimits(len(req.Agents), rounds); err != nil {
		return nil, err
	}

	runID := s.newID()
	ctx = logging.ContextWithRunID(ctx, runID)
	log := logging.LoggerFromContext(ctx, s.log).With(
		logging.String("run_id", runID),
		logging.String("relief", req.Relief.String()),
	)
	if req.ScenarioName != "" {
		log = log.With(logging.String("scenario", req.ScenarioName))
	}

	ctx, span := s.tracer.Start(ctx, "Simulate", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("relief", req.Relief.String()),
		attribute.Int("agents", len(req.Agents)),
		attribute.Int("rounds", rounds),
		attribute.String("scenario", req.ScenarioName),
	))
	defer span.End()

	started := s.now()
	fail := func(err error) (*Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		outcome := "error"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			outcome = "cancelled"
		}
		s.metrics.ObserveRun(req.Relief.String(), outcome, s.now().Sub(started), 0)
		log.Warn(ctx, "simulation failed", logging.Err(err))
		return nil, err
	}

	opts := []core.Option{core.WithLogger(log)}
	if s.metrics != nil {
		opts = append(opts, core.WithMetricsRecorder(s.metrics))
	}
	engine, err := core.NewEngine(req.Agents, req.Relief, opts...)
	if err != nil {
		return fail(err)
	}
	if req.RoundLog != nil {
		req.RoundLog.Attach(engine)
	}

	if err := engine.RunContext(ctx, rounds); err != nil {
		return fail(err)
	}
	score, err := engine.MonkeyBusiness()
	if err != nil {
		return fail(err)
	}
	finished := s.now()

	rec := &model.RunRecord{
		ID:             runID,
		Scenario:       req.ScenarioName,
		Relief:         req.Relief.String(),
		Rounds:         engine.RoundsCompleted(),
		Agents:         engine.Len(),
		Modulus:        engine.Modulus(),
		Inspections:    engine.InspectionCounts(),
		MonkeyBusiness: score,
		StartedAt:      started,
		FinishedAt:     finished,
	}
	if err := s.store.RecordRun(rec); err != nil {
		return fail(fmt.Errorf("record run: %w", err))
	}

	s.metrics.ObserveRun(req.Relief.String(), "ok", finished.Sub(started), score)
	// Scores use the full uint64 range, which int64 attributes cannot hold.
	span.SetAttributes(attribute.String("monkey_business", strconv.FormatUint(score, 10)))
	log.Info(ctx, "simulation complete",
		logging.Int("rounds", rec.Rounds),
		logging.Uint64("monkey_business", score),
		logging.Duration("duration", rec.Duration()),
	)

	return &Result{
		Run:       rec,
		Standings: core.Standings(rec.Inspections),
		Queues:    engine.Queues(),
	}, nil
}

// RunScenario simulates a stored scenario by name.
func (s *Service) RunScenario(ctx context.Context, name string, relief core.ReliefPolicy, rounds int) (*Result, error) {
	sc, err := s.store.GetScenario(name)
	if err != nil {
		return nil, err
	}
	return s.Simulate(ctx, Request{
		Agents:       sc.Agents,
		Relief:       relief,
		Rounds:       rounds,
		ScenarioName: sc.Name,
	})
}

// SaveScenario stores or replaces a named scenario after checking that its
// agents form a valid routing graph. Overflow risk under modulus reduction
// is reported when the scenario is run.
func (s *Service) SaveScenario(name string, agents []model.AgentSpec) (*model.Scenario, error) {
	if err := s.checkLimits(len(agents), 1); err != nil {
		return nil, err
	}
	if _, err := core.NewEngine(agents, core.FloorDivide(3)); err != nil {
		return nil, err
	}
	sc := &model.Scenario{Name: name, Agents: agents, CreatedAt: s.now()}
	if err := s.store.PutScenario(sc); err != nil {
		return nil, err
	}
	return sc.Clone(), nil
}

func (s *Service) checkLimits(agents, rounds int) error {
	if rounds < 0 {
		return fmt.Errorf("%w: rounds must not be negative, got %d", ErrInvalidRequest, rounds)
	}
	if s.limits.MaxRounds > 0 && rounds > s.limits.MaxRounds {
		return fmt.Errorf("%w: %d rounds exceeds limit %d", ErrInvalidRequest, rounds, s.limits.MaxRounds)
	}
	if s.limits.MaxAgents > 0 && agents > s.limits.MaxAgents {
		return fmt.Errorf("%w: %d agents exceeds limit %d", ErrInvalidRequest, agents, s.limits.MaxAgents)
	}
	return nil
}

// ParseRelief maps a user-facing policy name to a ReliefPolicy. The empty
// string selects FloorDivide(3).
func ParseRelief(name string) (core.ReliefPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "floor", "floor3", "divide", "floor-divide(3)":
		return core.FloorDivide(3), nil
	case "modulus", "lcm", "modulus-lcm":
		return core.ModulusReduction(), nil
	default:
		return core.ReliefPolicy{}, fmt.Errorf("%w: %q", ErrUnknownRelief, name)
	}
}

// IsClientError reports whether err was caused by the request rather than
// the server.
func IsClientError(err error) bool {
	var ce *core.ConstructionError
	return errors.As(err, &ce) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrUnknownRelief) ||
		errors.Is(err, kb.ErrEmptyName)
}
