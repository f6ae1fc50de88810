package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "itemrouter.v1.SimulationService"

const (
	simulateMethod    = "/" + ServiceName + "/Simulate"
	runScenarioMethod = "/" + ServiceName + "/RunScenario"
)

// SimulationServer is the server API for SimulationService. Requests and
// responses are google.protobuf.Struct documents whose fields mirror the
// HTTP API bodies.
type SimulationServer interface {
	Simulate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RunScenario(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterSimulationServer registers srv on s.
func RegisterSimulationServer(s grpc.ServiceRegistrar, srv SimulationServer) {
	s.RegisterService(&SimulationServiceDesc, srv)
}

func simulateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SimulationServer).Simulate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: simulateMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SimulationServer).Simulate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func runScenarioHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SimulationServer).RunScenario(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: runScenarioMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SimulationServer).RunScenario(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// SimulationServiceDesc is the grpc.ServiceDesc for SimulationService.
var SimulationServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SimulationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Simulate", Handler: simulateHandler},
		{MethodName: "RunScenario", Handler: runScenarioHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "itemrouter/v1/simulation.proto",
}

// SimulationClient calls SimulationService.
type SimulationClient struct {
	cc grpc.ClientConnInterface
}

// NewSimulationClient wraps cc.
func NewSimulationClient(cc grpc.ClientConnInterface) *SimulationClient {
	return &SimulationClient{cc: cc}
}

func (c *SimulationClient) Simulate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, simulateMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SimulationClient) RunScenario(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, runScenarioMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
