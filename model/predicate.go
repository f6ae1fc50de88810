package model

import (
	"errors"
	"fmt"
)

// ErrZeroDivisor is returned when a Predicate is built with a zero divisor.
var ErrZeroDivisor = errors.New("divisor must be non-zero")

// AgentID indexes an agent in the engine's arena. IDs are dense and zero-based.
type AgentID = int

// Predicate routes a value to one of two agents based on divisibility.
type Predicate struct {
	Divisor WorryLevel
	IfTrue  AgentID
	IfFalse AgentID
}

// NewPredicate validates the divisor and target ids.
func NewPredicate(divisor WorryLevel, ifTrue, ifFalse AgentID) (Predicate, error) {
	if divisor == 0 {
		return Predicate{}, ErrZeroDivisor
	}
	if ifTrue < 0 || ifFalse < 0 {
		return Predicate{}, fmt.Errorf("negative target id (true=%d, false=%d)", ifTrue, ifFalse)
	}
	return Predicate{Divisor: divisor, IfTrue: ifTrue, IfFalse: ifFalse}, nil
}

// Route returns IfTrue when value is divisible by Divisor, IfFalse otherwise.
func (p Predicate) Route(value WorryLevel) AgentID {
	if value%p.Divisor == 0 {
		return p.IfTrue
	}
	return p.IfFalse
}

// Targets returns both possible destinations.
func (p Predicate) Targets() [2]AgentID {
	return [2]AgentID{p.IfTrue, p.IfFalse}
}
