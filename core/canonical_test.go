package core

import (
	"testing"

	"github.com/signalsfoundry/item-routing-simulator/model"
)

// canonicalSpecs returns the four-agent example scenario.
func canonicalSpecs(t *testing.T) []model.AgentSpec {
	t.Helper()
	pred := func(d model.WorryLevel, ifTrue, ifFalse int) model.Predicate {
		p, err := model.NewPredicate(d, ifTrue, ifFalse)
		if err != nil {
			t.Fatalf("NewPredicate(%d): %v", d, err)
		}
		return p
	}
	return []model.AgentSpec{
		{ID: 0, Items: []model.WorryLevel{79, 98}, Operation: model.Multiply(model.Literal(19)), Predicate: pred(23, 2, 3)},
		{ID: 1, Items: []model.WorryLevel{54, 65, 75, 74}, Operation: model.Add(model.Literal(6)), Predicate: pred(19, 2, 0)},
		{ID: 2, Items: []model.WorryLevel{79, 60, 97}, Operation: model.Multiply(model.Current()), Predicate: pred(13, 1, 3)},
		{ID: 3, Items: []model.WorryLevel{74}, Operation: model.Add(model.Literal(3)), Predicate: pred(17, 0, 1)},
	}
}

func mustEngine(t *testing.T, specs []model.AgentSpec, relief ReliefPolicy, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(specs, relief, opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}
