// Package rpc serves the simulator over gRPC.
package rpc

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/item-routing-simulator/core"
	"github.com/signalsfoundry/item-routing-simulator/internal/logging"
	"github.com/signalsfoundry/item-routing-simulator/internal/observability"
	"github.com/signalsfoundry/item-routing-simulator/internal/scenario"
	"github.com/signalsfoundry/item-routing-simulator/internal/service"
)

// Server implements SimulationServer on top of service.Service.
//
// Request fields:
//   - scenario: a JSON scenario document as a Struct (wins over notes)
//   - notes:    notes text
//   - name:     stored scenario name (RunScenario only)
//   - relief:   relief policy name, default floor
//   - rounds:   round count, default from the service limits
//   - include_queues: bool
//
// Numbers travel as doubles, so worry levels above 2^53 should be sent as
// notes text. The response repeats the score exactly as monkey_business_text.
type Server struct {
	svc *service.Service
	log logging.Logger
}

// NewServer constructs a Server.
func NewServer(svc *service.Service, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{svc: svc, log: log}
}

// Simulate runs an inline scenario.
func (s *Server) Simulate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	relief, rounds, err := runOptions(fields)
	if err != nil {
		return nil, ToStatusError(err)
	}

	var doc []byte
	if sv := fields["scenario"].GetStructValue(); sv != nil {
		doc, err = protojson.Marshal(sv)
		if err != nil {
			return nil, ToStatusError(fmt.Errorf("%w: scenario: %v", ErrInvalidField, err))
		}
	}
	agents, err := scenario.DecodeInline(doc, fields["notes"].GetStringValue())
	if err != nil {
		return nil, ToStatusError(err)
	}

	res, err := s.svc.Simulate(ctx, service.Request{Agents: agents, Relief: relief, Rounds: rounds})
	if err != nil {
		logging.LoggerFromContext(ctx, s.log).Warn(ctx, "Simulate failed", logging.Err(err))
		return nil, ToStatusError(err)
	}
	return resultStruct(res, fields["include_queues"].GetBoolValue())
}

// RunScenario runs a stored scenario named by the "name" field.
func (s *Server) RunScenario(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	name := fields["name"].GetStringValue()
	if name == "" {
		return nil, ToStatusError(fmt.Errorf("%w: name is required", ErrInvalidField))
	}
	relief, rounds, err := runOptions(fields)
	if err != nil {
		return nil, ToStatusError(err)
	}

	res, err := s.svc.RunScenario(ctx, name, relief, rounds)
	if err != nil {
		logging.LoggerFromContext(ctx, s.log).Warn(ctx, "RunScenario failed",
			logging.String("scenario", name),
			logging.Err(err),
		)
		return nil, ToStatusError(err)
	}
	return resultStruct(res, fields["include_queues"].GetBoolValue())
}

func runOptions(fields map[string]*structpb.Value) (core.ReliefPolicy, int, error) {
	relief, err := service.ParseRelief(fields["relief"].GetStringValue())
	if err != nil {
		return core.ReliefPolicy{}, 0, err
	}
	rounds := 0
	if v, ok := fields["rounds"]; ok {
		n, isNum := v.GetKind().(*structpb.Value_NumberValue)
		if !isNum || n.NumberValue < 0 || n.NumberValue != math.Trunc(n.NumberValue) || n.NumberValue > math.MaxInt32 {
			return core.ReliefPolicy{}, 0, fmt.Errorf("%w: rounds must be a non-negative integer", ErrInvalidField)
		}
		rounds = int(n.NumberValue)
	}
	return relief, rounds, nil
}

func resultStruct(res *service.Result, includeQueues bool) (*structpb.Struct, error) {
	rec := res.Run
	standings := make([]any, len(res.Standings))
	for i, st := range res.Standings {
		standings[i] = map[string]any{"agent": st.Agent, "inspected": st.Inspected}
	}
	m := map[string]any{
		"id":              rec.ID,
		"relief":          rec.Relief,
		"rounds":          rec.Rounds,
		"agents":          rec.Agents,
		"inspections":     uint64s(rec.Inspections),
		"monkey_business": rec.MonkeyBusiness,
		"standings":       standings,
		"duration_ms":     float64(rec.Duration().Microseconds()) / 1000,

		"monkey_business_text": strconv.FormatUint(rec.MonkeyBusiness, 10),
	}
	if rec.Scenario != "" {
		m["scenario"] = rec.Scenario
	}
	if rec.Modulus != 0 {
		m["modulus"] = rec.Modulus
	}
	if includeQueues {
		queues := make([]any, len(res.Queues))
		for i, q := range res.Queues {
			queues[i] = uint64s(q)
		}
		m["queues"] = queues
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

func uint64s(in []uint64) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// NewGRPCServer builds a gRPC server exposing SimulationService and the
// standard health service. metrics may be nil.
func NewGRPCServer(svc *service.Service, log logging.Logger, metrics *observability.APICollector, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	interceptors := []grpc.UnaryServerInterceptor{
		RequestIDUnaryServerInterceptor(log),
		TracingUnaryServerInterceptor(),
	}
	if metrics != nil {
		interceptors = append(interceptors, metrics.UnaryServerInterceptor())
	}

	serverOpts := append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors...),
	}, opts...)
	srv := grpc.NewServer(serverOpts...)

	RegisterSimulationServer(srv, NewServer(svc, log))

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}
