package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gammazero/deque"

	"github.com/signalsfoundry/item-routing-simulator/model"
)

var (
	ErrScenarioExists   = errors.New("scenario already exists")
	ErrScenarioNotFound = errors.New("scenario not found")
	ErrRunNotFound      = errors.New("run not found")
	ErrEmptyName        = errors.New("empty scenario name")
)

// DefaultRunLimit bounds how many run records are retained.
const DefaultRunLimit = 1024

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventScenarioAdded EventType = iota
	EventScenarioDeleted
	EventRunRecorded
)

func (t EventType) String() string {
	switch t {
	case EventScenarioAdded:
		return "scenario_added"
	case EventScenarioDeleted:
		return "scenario_deleted"
	case EventRunRecorded:
		return "run_recorded"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is emitted to subscribers when something interesting happens.
// Scenario is set for scenario events, Run for EventRunRecorded.
type Event struct {
	Type     EventType
	Scenario string
	Run      *model.RunRecord
}

// Option customises a KnowledgeBase.
type Option func(*KnowledgeBase)

// WithRunLimit caps retained run records; the oldest are evicted first.
func WithRunLimit(n int) Option {
	return func(kb *KnowledgeBase) {
		if n > 0 {
			kb.runLimit = n
		}
	}
}

// KnowledgeBase is an in-memory, thread-safe registry of named scenarios
// and completed runs. Nothing is persisted.
type KnowledgeBase struct {
	mu sync.RWMutex

	scenarios map[string]*model.Scenario
	runs      map[string]*model.RunRecord
	runOrder  deque.Deque[string] // run ids, oldest at the front
	runLimit  int

	subs   map[int]func(Event)
	nextID int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase(opts ...Option) *KnowledgeBase {
	kb := &KnowledgeBase{
		scenarios: make(map[string]*model.Scenario),
		runs:      make(map[string]*model.RunRecord),
		runLimit:  DefaultRunLimit,
		subs:      make(map[int]func(Event)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(kb)
		}
	}
	return kb
}

// AddScenario stores a new scenario. It returns ErrScenarioExists if the
// name is taken.
func (kb *KnowledgeBase) AddScenario(s *model.Scenario) error {
	return kb.putScenario(s, false)
}

// PutScenario stores s, replacing any scenario with the same name.
func (kb *KnowledgeBase) PutScenario(s *model.Scenario) error {
	return kb.putScenario(s, true)
}

func (kb *KnowledgeBase) putScenario(s *model.Scenario, replace bool) error {
	if s == nil || s.Name == "" {
		return ErrEmptyName
	}
	kb.mu.Lock()
	if _, exists := kb.scenarios[s.Name]; exists && !replace {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrScenarioExists, s.Name)
	}
	// store a copy so callers cannot mutate queued items behind our back
	kb.scenarios[s.Name] = s.Clone()
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventScenarioAdded, Scenario: s.Name})
	return nil
}

// GetScenario returns a copy of the named scenario.
func (kb *KnowledgeBase) GetScenario(name string) (*model.Scenario, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	s, ok := kb.scenarios[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrScenarioNotFound, name)
	}
	return s.Clone(), nil
}

// ListScenarios returns copies of all scenarios sorted by name.
func (kb *KnowledgeBase) ListScenarios() []*model.Scenario {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]*model.Scenario, 0, len(kb.scenarios))
	for _, s := range kb.scenarios {
		res = append(res, s.Clone())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// DeleteScenario removes the named scenario. Recorded runs are kept.
func (kb *KnowledgeBase) DeleteScenario(name string) error {
	kb.mu.Lock()
	if _, ok := kb.scenarios[name]; !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrScenarioNotFound, name)
	}
	delete(kb.scenarios, name)
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventScenarioDeleted, Scenario: name})
	return nil
}

// RecordRun stores a completed run, evicting the oldest beyond the limit.
func (kb *KnowledgeBase) RecordRun(r *model.RunRecord) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("nil or unnamed run record")
	}
	cp := *r
	cp.Inspections = append([]uint64(nil), r.Inspections...)

	kb.mu.Lock()
	if _, exists := kb.runs[cp.ID]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("run %q already recorded", cp.ID)
	}
	kb.runs[cp.ID] = &cp
	kb.runOrder.PushBack(cp.ID)
	for kb.runOrder.Len() > kb.runLimit {
		delete(kb.runs, kb.runOrder.PopFront())
	}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	evt := cp
	notify(subs, Event{Type: EventRunRecorded, Scenario: cp.Scenario, Run: &evt})
	return nil
}

// GetRun returns a copy of the run with the given id.
func (kb *KnowledgeBase) GetRun(id string) (*model.RunRecord, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	r, ok := kb.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRunNotFound, id)
	}
	cp := *r
	cp.Inspections = append([]uint64(nil), r.Inspections...)
	return &cp, nil
}

// ListRuns returns copies of retained runs, oldest first.
func (kb *KnowledgeBase) ListRuns() []*model.RunRecord {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]*model.RunRecord, 0, kb.runOrder.Len())
	for i := 0; i < kb.runOrder.Len(); i++ {
		cp := *kb.runs[kb.runOrder.At(i)]
		cp.Inspections = append([]uint64(nil), cp.Inspections...)
		res = append(res, &cp)
	}
	return res
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextID
	kb.nextID++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

func (kb *KnowledgeBase) subscribersLocked() []func(Event) {
	subs := make([]func(Event), 0, len(kb.subs))
	for _, fn := range kb.subs {
		subs = append(subs, fn)
	}
	return subs
}

// notify runs outside the lock to avoid deadlocks when subscribers call back in.
func notify(subs []func(Event), e Event) {
	for _, sub := range subs {
		sub(e)
	}
}
