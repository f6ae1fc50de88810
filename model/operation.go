package model

import (
	"fmt"
	"strconv"
)

// WorryLevel is the numeric value carried by an item through the simulation.
type WorryLevel = uint64

// OperandKind distinguishes a literal operand from the item's current value.
type OperandKind int

const (
	OperandLiteral OperandKind = iota
	OperandCurrent             // "old" in the notes format
)

// Operand is the right-hand side of an Operation.
type Operand struct {
	Kind  OperandKind
	Value WorryLevel // only meaningful for OperandLiteral
}

// Literal returns an operand that always resolves to v.
func Literal(v WorryLevel) Operand { return Operand{Kind: OperandLiteral, Value: v} }

// Current returns an operand that resolves to the item's current value.
func Current() Operand { return Operand{Kind: OperandCurrent} }

// Resolve returns the operand's value for an item currently at current.
func (o Operand) Resolve(current WorryLevel) WorryLevel {
	if o.Kind == OperandCurrent {
		return current
	}
	return o.Value
}

func (o Operand) String() string {
	if o.Kind == OperandCurrent {
		return "old"
	}
	return strconv.FormatUint(o.Value, 10)
}

// Operator is the arithmetic applied by an Operation.
type Operator int

const (
	OpAdd Operator = iota
	OpMultiply
)

func (op Operator) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpMultiply:
		return "*"
	default:
		return fmt.Sprintf("Operator(%d)", int(op))
	}
}

// Operation combines an item's current value with an Operand.
type Operation struct {
	Operator Operator
	Operand  Operand
}

// Add returns an Operation computing current + rhs.
func Add(rhs Operand) Operation { return Operation{Operator: OpAdd, Operand: rhs} }

// Multiply returns an Operation computing current * rhs.
func Multiply(rhs Operand) Operation { return Operation{Operator: OpMultiply, Operand: rhs} }

// Evaluate applies the operation to current. It does not guard against
// overflow; callers bound their inputs (see core.ModulusReduction).
func (op Operation) Evaluate(current WorryLevel) WorryLevel {
	rhs := op.Operand.Resolve(current)
	switch op.Operator {
	case OpMultiply:
		return current * rhs
	default:
		return current + rhs
	}
}

func (op Operation) String() string {
	return fmt.Sprintf("new = old %s %s", op.Operator, op.Operand)
}
