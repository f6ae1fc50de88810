package api

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/signalsfoundry/item-routing-simulator/internal/scenario"
	"github.com/signalsfoundry/item-routing-simulator/internal/service"
	"github.com/signalsfoundry/item-routing-simulator/model"
)

// --- request types ---

// simulateRequest carries an inline scenario: either a JSON scenario
// document or notes text.
type simulateRequest struct {
	Scenario      json.RawMessage `json:"scenario,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	Relief        string          `json:"relief,omitempty"`
	Rounds        int             `json:"rounds,omitempty"`
	IncludeQueues bool            `json:"include_queues,omitempty"`
}

type runScenarioRequest struct {
	Relief        string `json:"relief,omitempty"`
	Rounds        int    `json:"rounds,omitempty"`
	IncludeQueues bool   `json:"include_queues,omitempty"`
}

// --- response types ---

type standingResponse struct {
	Agent     int    `json:"agent"`
	Inspected uint64 `json:"inspected"`
}

type runResponse struct {
	ID             string             `json:"id"`
	Scenario       string             `json:"scenario,omitempty"`
	Relief         string             `json:"relief"`
	Rounds         int                `json:"rounds"`
	Agents         int                `json:"agents"`
	Modulus        uint64             `json:"modulus,omitempty"`
	Inspections    []uint64           `json:"inspections"`
	MonkeyBusiness uint64             `json:"monkey_business"`
	Standings      []standingResponse `json:"standings,omitempty"`
	Queues         [][]uint64         `json:"queues,omitempty"`
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     time.Time          `json:"finished_at"`
	DurationMillis float64            `json:"duration_ms"`
}

type scenarioResponse struct {
	Name      string          `json:"name"`
	Agents    int             `json:"agents"`
	CreatedAt time.Time       `json:"created_at"`
	Scenario  json.RawMessage `json:"scenario,omitempty"`
}

type listResponse[T any] struct {
	Data []T `json:"data"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toRunResponse(rec *model.RunRecord) runResponse {
	return runResponse{
		ID:             rec.ID,
		Scenario:       rec.Scenario,
		Relief:         rec.Relief,
		Rounds:         rec.Rounds,
		Agents:         rec.Agents,
		Modulus:        rec.Modulus,
		Inspections:    rec.Inspections,
		MonkeyBusiness: rec.MonkeyBusiness,
		StartedAt:      rec.StartedAt,
		FinishedAt:     rec.FinishedAt,
		DurationMillis: float64(rec.Duration().Microseconds()) / 1000,
	}
}

func toResultResponse(res *service.Result, includeQueues bool) runResponse {
	out := toRunResponse(res.Run)
	out.Standings = make([]standingResponse, len(res.Standings))
	for i, s := range res.Standings {
		out.Standings[i] = standingResponse{Agent: s.Agent, Inspected: s.Inspected}
	}
	if includeQueues {
		out.Queues = res.Queues
	}
	return out
}

func toScenarioResponse(sc *model.Scenario, withBody bool) (scenarioResponse, error) {
	out := scenarioResponse{Name: sc.Name, Agents: len(sc.Agents), CreatedAt: sc.CreatedAt}
	if withBody {
		var buf bytes.Buffer
		if err := scenario.EncodeJSON(&buf, sc.Agents); err != nil {
			return scenarioResponse{}, err
		}
		out.Scenario = buf.Bytes()
	}
	return out, nil
}
