package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/item-routing-simulator/internal/observability"
	"github.com/signalsfoundry/item-routing-simulator/internal/scenario"
	"github.com/signalsfoundry/item-routing-simulator/internal/service"
	"github.com/signalsfoundry/item-routing-simulator/kb"
)

type harness struct {
	client  *SimulationClient
	conn    *grpc.ClientConn
	svc     *service.Service
	metrics *observability.APICollector
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	metrics, err := observability.NewAPICollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewAPICollector: %v", err)
	}
	svc := service.New(kb.NewKnowledgeBase())
	srv, _ := NewGRPCServer(svc, nil, metrics)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{client: NewSimulationClient(conn), conn: conn, svc: svc, metrics: metrics}
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

func canonicalDoc(t *testing.T) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	if err := scenario.EncodeJSON(&buf, scenario.Canonical()); err != nil {
		t.Fatalf("EncodeJSON: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return doc
}

func TestSimulateNotes(t *testing.T) {
	h := newHarness(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(), requestIDMetadataKey, "req-42")

	var header metadata.MD
	resp, err := h.client.Simulate(ctx, mustStruct(t, map[string]any{
		"notes":          scenario.CanonicalNotes,
		"rounds":         20,
		"include_queues": true,
	}), grpc.Header(&header))
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if got := resp.Fields["monkey_business"].GetNumberValue(); got != 10605 {
		t.Fatalf("monkey_business = %v, want 10605", got)
	}
	if got := resp.Fields["relief"].GetStringValue(); got != "floor-divide(3)" {
		t.Fatalf("relief = %q, want floor-divide(3)", got)
	}
	if got := len(resp.Fields["queues"].GetListValue().GetValues()); got != 4 {
		t.Fatalf("len(queues) = %d, want 4", got)
	}
	if ids := header.Get(requestIDMetadataKey); len(ids) != 1 || ids[0] != "req-42" {
		t.Fatalf("x-request-id header = %v, want [req-42]", ids)
	}

	id := resp.Fields["id"].GetStringValue()
	if _, err := h.svc.Store().GetRun(id); err != nil {
		t.Fatalf("run %q not recorded: %v", id, err)
	}
	if got := testutil.ToFloat64(h.metrics.Requests.WithLabelValues("grpc", "SimulationService/Simulate", "OK")); got != 1 {
		t.Fatalf("api_requests_total = %v, want 1", got)
	}
}

func TestSimulateScenarioStruct(t *testing.T) {
	h := newHarness(t)
	resp, err := h.client.Simulate(context.Background(), mustStruct(t, map[string]any{
		"scenario": canonicalDoc(t),
		"relief":   "modulus",
		"rounds":   10000,
	}))
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if got := resp.Fields["monkey_business"].GetNumberValue(); got != 2713310158 {
		t.Fatalf("monkey_business = %v, want 2713310158", got)
	}
	if got := resp.Fields["monkey_business_text"].GetStringValue(); got != "2713310158" {
		t.Fatalf("monkey_business_text = %q, want %q", got, "2713310158")
	}
	if got := resp.Fields["modulus"].GetNumberValue(); got != 96577 {
		t.Fatalf("modulus = %v, want 96577", got)
	}
	if _, ok := resp.Fields["queues"]; ok {
		t.Fatalf("queues returned without include_queues")
	}
}

func TestSimulateInvalidArguments(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		name string
		req  map[string]any
	}{
		{"no scenario", map[string]any{}},
		{"bad relief", map[string]any{"notes": scenario.CanonicalNotes, "relief": "sqrt"}},
		{"fractional rounds", map[string]any{"notes": scenario.CanonicalNotes, "rounds": 1.5}},
		{"string rounds", map[string]any{"notes": scenario.CanonicalNotes, "rounds": "ten"}},
		{"schema violation", map[string]any{"scenario": map[string]any{"agents": "nope"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.client.Simulate(context.Background(), mustStruct(t, tc.req))
			if status.Code(err) != codes.InvalidArgument {
				t.Fatalf("code = %v, want InvalidArgument (err %v)", status.Code(err), err)
			}
		})
	}
}

func TestRunScenario(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.RunScenario(context.Background(), mustStruct(t, map[string]any{"name": "canonical"}))
	if status.Code(err) != codes.NotFound {
		t.Fatalf("missing scenario code = %v, want NotFound", status.Code(err))
	}
	_, err = h.client.RunScenario(context.Background(), mustStruct(t, map[string]any{}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("missing name code = %v, want InvalidArgument", status.Code(err))
	}

	if _, err := h.svc.SaveScenario("canonical", scenario.Canonical()); err != nil {
		t.Fatalf("SaveScenario: %v", err)
	}
	resp, err := h.client.RunScenario(context.Background(), mustStruct(t, map[string]any{"name": "canonical"}))
	if err != nil {
		t.Fatalf("RunScenario: %v", err)
	}
	if got := resp.Fields["monkey_business"].GetNumberValue(); got != 10605 {
		t.Fatalf("monkey_business = %v, want 10605", got)
	}
	if got := resp.Fields["scenario"].GetStringValue(); got != "canonical" {
		t.Fatalf("scenario = %q, want canonical", got)
	}
}

func TestHealthServing(t *testing.T) {
	h := newHarness(t)
	hc := healthpb.NewHealthClient(h.conn)
	resp, err := hc.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v, want SERVING", resp.GetStatus())
	}
}

func TestToStatusError(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{nil, codes.OK},
		{kb.ErrRunNotFound, codes.NotFound},
		{service.ErrInvalidRequest, codes.InvalidArgument},
		{context.Canceled, codes.Canceled},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{status.Error(codes.Unavailable, "x"), codes.Unavailable},
		{bytes.ErrTooLarge, codes.Internal},
	}
	for _, tc := range cases {
		if got := status.Code(ToStatusError(tc.err)); got != tc.want {
			t.Fatalf("ToStatusError(%v) code = %v, want %v", tc.err, got, tc.want)
		}
	}
}
