package model

import "time"

// Scenario is a named, reusable list of agent specs.
type Scenario struct {
	Name      string
	Agents    []AgentSpec
	CreatedAt time.Time
}

// Clone deep-copies the scenario.
func (s *Scenario) Clone() *Scenario {
	if s == nil {
		return nil
	}
	out := *s
	out.Agents = CloneSpecs(s.Agents)
	return &out
}

// RunRecord summarises one completed simulation run.
type RunRecord struct {
	ID             string
	Scenario       string // empty for inline runs
	Relief         string
	Rounds         int
	Agents         int
	Modulus        WorryLevel // 0 unless modulus reduction was used
	Inspections    []uint64
	MonkeyBusiness uint64
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Duration returns how long the run took.
func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
