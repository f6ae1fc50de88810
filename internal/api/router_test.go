package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/item-routing-simulator/internal/observability"
	"github.com/signalsfoundry/item-routing-simulator/internal/scenario"
	"github.com/signalsfoundry/item-routing-simulator/internal/service"
	"github.com/signalsfoundry/item-routing-simulator/kb"
)

func newTestRouter(t *testing.T, opts ...Option) (http.Handler, *observability.APICollector) {
	t.Helper()
	reg := prometheus.NewRegistry()
	apiMetrics, err := observability.NewAPICollector(reg)
	if err != nil {
		t.Fatalf("NewAPICollector: %v", err)
	}
	simMetrics, err := observability.NewSimulationCollector(reg)
	if err != nil {
		t.Fatalf("NewSimulationCollector: %v", err)
	}
	svc := service.New(kb.NewKnowledgeBase(), service.WithMetrics(simMetrics))
	opts = append([]Option{WithMetrics(apiMetrics)}, opts...)
	return NewRouter(svc, opts...), apiMetrics
}

func do(t *testing.T, h http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func canonicalJSON(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	if err := scenario.EncodeJSON(&buf, scenario.Canonical()); err != nil {
		t.Fatalf("EncodeJSON: %v", err)
	}
	return buf.String()
}

func TestHealthz(t *testing.T) {
	h, _ := newTestRouter(t)
	rr := do(t, h, http.MethodGet, "/healthz", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("/healthz status = %d, want 200", rr.Code)
	}
	if rr.Header().Get(requestIDHeader) == "" {
		t.Fatalf("missing %s header", requestIDHeader)
	}
}

func TestSimulateWithNotes(t *testing.T) {
	h, _ := newTestRouter(t)
	body, _ := json.Marshal(map[string]any{
		"notes":          scenario.CanonicalNotes,
		"relief":         "floor",
		"rounds":         20,
		"include_queues": true,
	})
	rr := do(t, h, http.MethodPost, "/v1/simulate", "application/json", string(body))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	got := decode[runResponse](t, rr)
	if got.MonkeyBusiness != 10605 {
		t.Fatalf("monkey_business = %d, want 10605", got.MonkeyBusiness)
	}
	if diff := cmp.Diff([]uint64{101, 95, 7, 105}, got.Inspections); diff != "" {
		t.Fatalf("inspections (-want +got):\n%s", diff)
	}
	if got.Standings[0].Agent != 3 || got.Standings[1].Agent != 0 {
		t.Fatalf("standings = %+v, want agents 3 then 0 first", got.Standings)
	}
	if len(got.Queues) != 4 {
		t.Fatalf("len(queues) = %d, want 4", len(got.Queues))
	}

	run := do(t, h, http.MethodGet, "/v1/runs/"+got.ID, "", "")
	if run.Code != http.StatusOK {
		t.Fatalf("GET run status = %d", run.Code)
	}
	if stored := decode[runResponse](t, run); stored.MonkeyBusiness != 10605 {
		t.Fatalf("stored monkey_business = %d", stored.MonkeyBusiness)
	}
}

func TestSimulateWithJSONScenario(t *testing.T) {
	h, _ := newTestRouter(t)
	body := `{"scenario": ` + canonicalJSON(t) + `, "relief": "modulus", "rounds": 10000}`
	rr := do(t, h, http.MethodPost, "/v1/simulate", "application/json", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	got := decode[runResponse](t, rr)
	if got.MonkeyBusiness != 2713310158 || got.Modulus != 96577 {
		t.Fatalf("monkey_business = %d modulus = %d", got.MonkeyBusiness, got.Modulus)
	}
	if got.Queues != nil {
		t.Fatalf("queues included without include_queues")
	}
}

func TestSimulateErrors(t *testing.T) {
	h, _ := newTestRouter(t)
	selfRouting := strings.Replace(scenario.CanonicalNotes, "If true: throw to monkey 1", "If true: throw to monkey 2", 1)
	cases := []struct {
		name string
		body string
		code int
		kind string
	}{
		{"empty body", ``, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown field", `{"agents": []}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"no scenario", `{"relief": "floor"}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"bad relief", `{"notes": "x", "relief": "sqrt"}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"bad notes", `{"notes": "Monkey 0:\n  Starting items: 1\n  Operation: new = old - 1\n"}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"too many rounds", `{"notes": ` + quote(scenario.CanonicalNotes) + `, "rounds": 1000000}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"self routing", `{"notes": ` + quote(selfRouting) + `}`, http.StatusUnprocessableEntity, "UNPROCESSABLE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/v1/simulate", "application/json", tc.body)
			if rr.Code != tc.code {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tc.code, rr.Body.String())
			}
			if got := decode[errorBody](t, rr); got.Error.Code != tc.kind {
				t.Fatalf("error code = %q, want %q", got.Error.Code, tc.kind)
			}
		})
	}
}

func TestSimulateContextErrors(t *testing.T) {
	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	cases := []struct {
		name     string
		ctx      context.Context
		wantCode int
		wantErr  string
	}{
		{"deadline", expired, http.StatusGatewayTimeout, "TIMEOUT"},
		{"cancelled", cancelled, statusClientClosedRequest, "CANCELLED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newTestRouter(t)
			body := `{"scenario":` + canonicalJSON(t) + `,"relief":"modulus","rounds":100000}`
			req := httptest.NewRequest(http.MethodPost, "/v1/simulate", strings.NewReader(body)).WithContext(tc.ctx)
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tc.wantCode, rr.Body.String())
			}
			if got := decode[errorBody](t, rr).Error.Code; got != tc.wantErr {
				t.Fatalf("error code = %q, want %q", got, tc.wantErr)
			}
		})
	}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestScenarioLifecycle(t *testing.T) {
	h, _ := newTestRouter(t)

	if rr := do(t, h, http.MethodGet, "/v1/scenarios/canonical", "", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("GET missing scenario status = %d, want 404", rr.Code)
	}

	put := do(t, h, http.MethodPut, "/v1/scenarios/canonical", "text/plain; charset=utf-8", scenario.CanonicalNotes)
	if put.Code != http.StatusOK {
		t.Fatalf("PUT notes status = %d, body %s", put.Code, put.Body.String())
	}
	if got := decode[scenarioResponse](t, put); got.Name != "canonical" || got.Agents != 4 {
		t.Fatalf("PUT response = %+v", got)
	}

	put = do(t, h, http.MethodPut, "/v1/scenarios/from-json", "application/json", canonicalJSON(t))
	if put.Code != http.StatusOK {
		t.Fatalf("PUT json status = %d, body %s", put.Code, put.Body.String())
	}

	list := decode[listResponse[scenarioResponse]](t, do(t, h, http.MethodGet, "/v1/scenarios", "", ""))
	if len(list.Data) != 2 || list.Data[0].Name != "canonical" || list.Data[1].Name != "from-json" {
		t.Fatalf("list = %+v", list.Data)
	}

	got := do(t, h, http.MethodGet, "/v1/scenarios/canonical", "", "")
	specs, err := scenario.DecodeJSON(bytes.NewReader(decode[scenarioResponse](t, got).Scenario))
	if err != nil {
		t.Fatalf("stored scenario does not decode: %v", err)
	}
	if diff := cmp.Diff(scenario.Canonical(), specs); diff != "" {
		t.Fatalf("stored scenario mismatch (-want +got):\n%s", diff)
	}

	run := do(t, h, http.MethodPost, "/v1/scenarios/canonical/runs", "application/json", `{"relief":"lcm","rounds":10000}`)
	if run.Code != http.StatusOK {
		t.Fatalf("run status = %d, body %s", run.Code, run.Body.String())
	}
	if res := decode[runResponse](t, run); res.Scenario != "canonical" || res.MonkeyBusiness != 2713310158 {
		t.Fatalf("run = %+v", res)
	}

	run = do(t, h, http.MethodPost, "/v1/scenarios/canonical/runs", "", "")
	if run.Code != http.StatusOK {
		t.Fatalf("run with empty body status = %d, body %s", run.Code, run.Body.String())
	}
	if res := decode[runResponse](t, run); res.Rounds != 20 || res.MonkeyBusiness != 10605 {
		t.Fatalf("default run = %+v", res)
	}

	runs := decode[listResponse[runResponse]](t, do(t, h, http.MethodGet, "/v1/runs", "", ""))
	if len(runs.Data) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs.Data))
	}

	if rr := do(t, h, http.MethodDelete, "/v1/scenarios/canonical", "", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", rr.Code)
	}
	if rr := do(t, h, http.MethodDelete, "/v1/scenarios/canonical", "", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("second DELETE status = %d, want 404", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/v1/scenarios/canonical/runs", "", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("run deleted scenario status = %d, want 404", rr.Code)
	}
}

func TestGetRunNotFound(t *testing.T) {
	h, _ := newTestRouter(t)
	rr := do(t, h, http.MethodGet, "/v1/runs/nope", "", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestRateLimitOnRunEndpoints(t *testing.T) {
	h, _ := newTestRouter(t, WithRateLimit(0.001, 1))
	body := `{"notes": ` + quote(scenario.CanonicalNotes) + `, "rounds": 1}`

	if rr := do(t, h, http.MethodPost, "/v1/simulate", "application/json", body); rr.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rr.Code)
	}
	rr := do(t, h, http.MethodPost, "/v1/simulate", "application/json", body)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After header")
	}
	// read-only routes are not limited
	if rr := do(t, h, http.MethodGet, "/v1/runs", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("GET /v1/runs status = %d, want 200", rr.Code)
	}
}

func TestMetricsEndpointAndMiddleware(t *testing.T) {
	h, apiMetrics := newTestRouter(t)
	do(t, h, http.MethodGet, "/healthz", "", "")
	do(t, h, http.MethodGet, "/v1/runs/x", "", "")

	if got := testutil.ToFloat64(apiMetrics.Requests.WithLabelValues("http", "GET /v1/runs/{id}", "404")); got != 1 {
		t.Fatalf("api_requests_total{GET /v1/runs/{id},404} = %v, want 1", got)
	}

	rr := do(t, h, http.MethodGet, "/metrics", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d", rr.Code)
	}
	for _, name := range []string{"api_requests_total", "sim_rounds_total"} {
		if !strings.Contains(rr.Body.String(), name) {
			t.Fatalf("/metrics missing %s", name)
		}
	}
}
