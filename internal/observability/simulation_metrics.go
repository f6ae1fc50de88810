package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SimulationCollector exposes engine and run Prometheus metrics. It
// satisfies core.MetricsRecorder.
type SimulationCollector struct {
	gatherer prometheus.Gatherer

	RunsTotal          *prometheus.CounterVec
	RoundsTotal        prometheus.Counter
	InspectionsTotal   *prometheus.CounterVec
	QueueDepth         *prometheus.GaugeVec
	RunDuration        prometheus.Histogram
	LastMonkeyBusiness prometheus.Gauge
}

// NewSimulationCollector registers simulation metrics against the provided registerer.
func NewSimulationCollector(reg prometheus.Registerer) (*SimulationCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_runs_total",
		Help: "Simulation runs, labeled by relief policy and outcome.",
	}, []string{"relief", "outcome"}), "sim_runs_total")
	if err != nil {
		return nil, err
	}

	rounds, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_rounds_total",
		Help: "Rounds completed across all runs.",
	}), "sim_rounds_total")
	if err != nil {
		return nil, err
	}

	inspections, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_inspections_total",
		Help: "Items inspected, labeled by agent id.",
	}, []string{"agent"}), "sim_inspections_total")
	if err != nil {
		return nil, err
	}

	depth, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_queue_depth",
		Help: "Queue length per agent after the most recent round.",
	}, []string{"agent"}), "sim_queue_depth")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_run_duration_seconds",
		Help:    "Wall-clock duration of simulation runs.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	}), "sim_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	score, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_last_monkey_business",
		Help: "Monkey business score of the most recently completed run.",
	}), "sim_last_monkey_business")
	if err != nil {
		return nil, err
	}

	return &SimulationCollector{
		gatherer:           gathererFor(reg),
		RunsTotal:          runs,
		RoundsTotal:        rounds,
		InspectionsTotal:   inspections,
		QueueDepth:         depth,
		RunDuration:        duration,
		LastMonkeyBusiness: score,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimulationCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// RecordRound folds one round's per-agent inspections and queue lengths
// into the counters.
func (c *SimulationCollector) RecordRound(inspected []uint64, queueLengths []int) {
	if c == nil {
		return
	}
	c.RoundsTotal.Inc()
	for i, n := range inspected {
		if n > 0 {
			c.InspectionsTotal.WithLabelValues(strconv.Itoa(i)).Add(float64(n))
		}
	}
	for i, n := range queueLengths {
		c.QueueDepth.WithLabelValues(strconv.Itoa(i)).Set(float64(n))
	}
}

// ObserveRun records the outcome of one run. score is ignored unless the
// outcome is "ok".
func (c *SimulationCollector) ObserveRun(relief, outcome string, d time.Duration, score uint64) {
	if c == nil {
		return
	}
	c.RunsTotal.WithLabelValues(relief, outcome).Inc()
	c.RunDuration.Observe(d.Seconds())
	if outcome == "ok" {
		c.LastMonkeyBusiness.Set(float64(score))
	}
}
