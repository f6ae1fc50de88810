// Package api serves the simulator over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/signalsfoundry/item-routing-simulator/core"
	"github.com/signalsfoundry/item-routing-simulator/internal/logging"
	"github.com/signalsfoundry/item-routing-simulator/internal/scenario"
	"github.com/signalsfoundry/item-routing-simulator/internal/service"
	"github.com/signalsfoundry/item-routing-simulator/kb"
)

const maxBodyBytes = 1 << 20

// statusClientClosedRequest is the non-standard 499 used when the caller
// goes away before the run finishes.
const statusClientClosedRequest = 499

// Handler provides HTTP handlers for simulation endpoints.
type Handler struct {
	svc *service.Service
	log logging.Logger
}

// NewHandler creates a handler bound to svc.
func NewHandler(svc *service.Service, log logging.Logger) *Handler {
	if log == nil {
		log = logging.Noop()
	}
	return &Handler{svc: svc, log: log}
}

// HandleSimulate handles POST /v1/simulate.
func (h *Handler) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body: "+err.Error())
		return
	}
	relief, err := service.ParseRelief(req.Relief)
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}
	agents, err := scenario.DecodeInline(req.Scenario, req.Notes)
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	res, err := h.svc.Simulate(r.Context(), service.Request{
		Agents: agents,
		Relief: relief,
		Rounds: req.Rounds,
	})
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultResponse(res, req.IncludeQueues))
}

// HandleListScenarios handles GET /v1/scenarios.
func (h *Handler) HandleListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios := h.svc.Store().ListScenarios()
	out := listResponse[scenarioResponse]{Data: make([]scenarioResponse, 0, len(scenarios))}
	for _, sc := range scenarios {
		resp, _ := toScenarioResponse(sc, false)
		out.Data = append(out.Data, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

// HandlePutScenario handles PUT /v1/scenarios/{name}. A text/plain body is
// parsed as notes; anything else as a JSON scenario document.
func (h *Handler) HandlePutScenario(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}

	var doc []byte
	notes := ""
	if isPlainText(r.Header.Get("Content-Type")) {
		notes = string(body)
	} else {
		doc = body
	}
	agents, err := scenario.DecodeInline(doc, notes)
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	sc, err := h.svc.SaveScenario(name, agents)
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}
	resp, err := toScenarioResponse(sc, true)
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGetScenario handles GET /v1/scenarios/{name}.
func (h *Handler) HandleGetScenario(w http.ResponseWriter, r *http.Request) {
	sc, err := h.svc.Store().GetScenario(chi.URLParam(r, "name"))
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}
	resp, err := toScenarioResponse(sc, true)
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleDeleteScenario handles DELETE /v1/scenarios/{name}.
func (h *Handler) HandleDeleteScenario(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Store().DeleteScenario(chi.URLParam(r, "name")); err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRunScenario handles POST /v1/scenarios/{name}/runs. The body is
// optional.
func (h *Handler) HandleRunScenario(w http.ResponseWriter, r *http.Request) {
	var req runScenarioRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body: "+err.Error())
		return
	}
	relief, err := service.ParseRelief(req.Relief)
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	res, err := h.svc.RunScenario(r.Context(), chi.URLParam(r, "name"), relief, req.Rounds)
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultResponse(res, req.IncludeQueues))
}

// HandleListRuns handles GET /v1/runs.
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	runs := h.svc.Store().ListRuns()
	out := listResponse[runResponse]{Data: make([]runResponse, 0, len(runs))}
	for _, rec := range runs {
		out.Data = append(out.Data, toRunResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetRun handles GET /v1/runs/{id}.
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Store().GetRun(chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunResponse(rec))
}

// --- helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func isPlainText(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && strings.EqualFold(mt, "text/plain")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

func (h *Handler) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var ce *core.ConstructionError
	switch {
	case errors.Is(err, kb.ErrScenarioNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "scenario not found")
	case errors.Is(err, kb.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "run not found")
	case errors.Is(err, kb.ErrScenarioExists):
		writeError(w, http.StatusConflict, "CONFLICT", err.Error())
	case errors.As(err, &ce), errors.Is(err, core.ErrScoreOverflow):
		writeError(w, http.StatusUnprocessableEntity, "UNPROCESSABLE", err.Error())
	case errors.Is(err, scenario.ErrInvalidScenario),
		errors.Is(err, scenario.ErrUnsupportedOperator),
		service.IsClientError(err):
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "TIMEOUT", "simulation exceeded the request deadline")
	case errors.Is(err, context.Canceled):
		writeError(w, statusClientClosedRequest, "CANCELLED", "request cancelled")
	default:
		logging.LoggerFromContext(ctx, h.log).Error(ctx, "api handler error", logging.Err(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
}
