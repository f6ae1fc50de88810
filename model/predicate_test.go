package model

import (
	"errors"
	"testing"
)

func TestNewPredicateRejectsZeroDivisor(t *testing.T) {
	_, err := NewPredicate(0, 1, 2)
	if !errors.Is(err, ErrZeroDivisor) {
		t.Fatalf("NewPredicate(0) error = %v, want ErrZeroDivisor", err)
	}
}

func TestNewPredicateRejectsNegativeTargets(t *testing.T) {
	if _, err := NewPredicate(3, -1, 2); err == nil {
		t.Fatalf("expected error for negative target")
	}
}

func TestPredicateRoute(t *testing.T) {
	p, err := NewPredicate(23, 2, 3)
	if err != nil {
		t.Fatalf("NewPredicate: %v", err)
	}
	if got := p.Route(500); got != 3 {
		t.Fatalf("Route(500) = %d, want 3", got)
	}
	if got := p.Route(46); got != 2 {
		t.Fatalf("Route(46) = %d, want 2", got)
	}
	if got := p.Route(0); got != 2 {
		t.Fatalf("Route(0) = %d, want 2", got)
	}
}

func TestCloneSpecsIsDeep(t *testing.T) {
	specs := []AgentSpec{{ID: 0, Items: []WorryLevel{1, 2}}}
	clone := CloneSpecs(specs)
	clone[0].Items[0] = 99
	if specs[0].Items[0] != 1 {
		t.Fatalf("CloneSpecs shared item storage with the original")
	}
}
