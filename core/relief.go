package core

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/signalsfoundry/item-routing-simulator/model"
)

var (
	ErrInvalidRelief = errors.New("invalid relief policy")
	ErrOverflowRisk  = errors.New("worry levels could exceed 64 bits")
)

// ReliefKind selects how values shrink between transform and routing.
type ReliefKind int

const (
	// ReliefFloorDivide divides by a constant factor, rounding toward zero.
	ReliefFloorDivide ReliefKind = iota
	// ReliefModulus reduces modulo the LCM of every predicate divisor.
	ReliefModulus
)

// ReliefPolicy is selected once per run. Build one with FloorDivide or
// ModulusReduction; the zero value is rejected by NewEngine.
type ReliefPolicy struct {
	kind   ReliefKind
	factor model.WorryLevel
}

// FloorDivide returns a policy that maps v to v / k. It keeps values small
// only for short runs and offers no overflow guarantee.
func FloorDivide(k model.WorryLevel) ReliefPolicy {
	return ReliefPolicy{kind: ReliefFloorDivide, factor: k}
}

// ModulusReduction returns a policy that maps v to v % L where L is the LCM
// of every agent's divisor.
//
// For any divisor d with d | L, v % d == (v % L) % d, so reducing after each
// transform never changes a predicate outcome. Every routed value is then
// below L, which bounds the input to the next transform; NewEngine checks
// that bound against each operation so a run cannot overflow.
func ModulusReduction() ReliefPolicy {
	return ReliefPolicy{kind: ReliefModulus}
}

// Kind reports the policy variant.
func (p ReliefPolicy) Kind() ReliefKind { return p.kind }

// Factor returns the FloorDivide divisor, or 0 for ModulusReduction.
func (p ReliefPolicy) Factor() model.WorryLevel {
	if p.kind != ReliefFloorDivide {
		return 0
	}
	return p.factor
}

func (p ReliefPolicy) String() string {
	switch p.kind {
	case ReliefFloorDivide:
		return fmt.Sprintf("floor-divide(%d)", p.factor)
	case ReliefModulus:
		return "modulus-lcm"
	default:
		return fmt.Sprintf("ReliefPolicy(%d)", int(p.kind))
	}
}

// reducer is a relief policy bound to a concrete scenario.
type reducer struct {
	policy  ReliefPolicy
	modulus model.WorryLevel
}

func (r reducer) apply(v model.WorryLevel) model.WorryLevel {
	if r.policy.kind == ReliefModulus {
		return v % r.modulus
	}
	return v / r.policy.factor
}

// bind resolves the policy against the scenario and, for modulus reduction,
// proves that no transform can overflow.
func (p ReliefPolicy) bind(specs []model.AgentSpec) (reducer, error) {
	switch p.kind {
	case ReliefFloorDivide:
		if p.factor == 0 {
			return reducer{}, fmt.Errorf("%w: floor-divide factor must be non-zero", ErrInvalidRelief)
		}
		return reducer{policy: p}, nil
	case ReliefModulus:
		divisors := make([]model.WorryLevel, 0, len(specs))
		for _, s := range specs {
			divisors = append(divisors, s.Predicate.Divisor)
		}
		l, err := LCM(divisors...)
		if err != nil {
			return reducer{}, err
		}
		if err := checkBounded(specs, l); err != nil {
			return reducer{}, err
		}
		return reducer{policy: p, modulus: l}, nil
	default:
		return reducer{}, fmt.Errorf("%w: unknown kind %d", ErrInvalidRelief, int(p.kind))
	}
}

// checkBounded verifies every operation stays within 64 bits when fed the
// largest value it can ever see: an unreduced initial item or L-1.
func checkBounded(specs []model.AgentSpec, l model.WorryLevel) error {
	limit := l - 1
	for _, s := range specs {
		for _, item := range s.Items {
			if item > limit {
				limit = item
			}
		}
	}
	for i, s := range specs {
		if _, ok := evaluateChecked(s.Operation, limit); !ok {
			return &ConstructionError{
				Agent: i,
				Err:   fmt.Errorf("%w: %s on %d with modulus %d", ErrOverflowRisk, s.Operation, limit, l),
			}
		}
	}
	return nil
}

// evaluateChecked is Operation.Evaluate with overflow detection. Both
// operators are monotonic, so checking the upper bound covers every input.
func evaluateChecked(op model.Operation, v model.WorryLevel) (model.WorryLevel, bool) {
	rhs := op.Operand.Resolve(v)
	switch op.Operator {
	case model.OpMultiply:
		hi, lo := bits.Mul64(v, rhs)
		return lo, hi == 0
	default:
		sum, carry := bits.Add64(v, rhs, 0)
		return sum, carry == 0
	}
}

// LCM returns the least common multiple of the divisors, failing with
// ErrOverflowRisk when it does not fit in 64 bits.
func LCM(divisors ...model.WorryLevel) (model.WorryLevel, error) {
	l := model.WorryLevel(1)
	for _, d := range divisors {
		if d == 0 {
			return 0, model.ErrZeroDivisor
		}
		hi, lo := bits.Mul64(l/gcd(l, d), d)
		if hi != 0 {
			return 0, fmt.Errorf("%w: lcm of divisors", ErrOverflowRisk)
		}
		l = lo
	}
	return l, nil
}

func gcd(a, b model.WorryLevel) model.WorryLevel {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
