package core

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/signalsfoundry/item-routing-simulator/model"
)

func TestLCM(t *testing.T) {
	cases := []struct {
		in   []model.WorryLevel
		want model.WorryLevel
	}{
		{[]model.WorryLevel{23, 19, 13, 17}, 96577},
		{[]model.WorryLevel{4, 6}, 12},
		{[]model.WorryLevel{5, 5, 5}, 5},
		{nil, 1},
	}
	for _, tc := range cases {
		got, err := LCM(tc.in...)
		if err != nil {
			t.Fatalf("LCM(%v): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("LCM(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestLCMRejectsZeroAndOverflow(t *testing.T) {
	if _, err := LCM(3, 0); !errors.Is(err, model.ErrZeroDivisor) {
		t.Fatalf("LCM(3, 0) error = %v, want ErrZeroDivisor", err)
	}
	// 2^32+15 and 2^32-5 are coprime and their product needs 65 bits.
	if _, err := LCM(4294967311, 4294967291); !errors.Is(err, ErrOverflowRisk) {
		t.Fatalf("LCM(2^32+15, 2^32-5) error = %v, want ErrOverflowRisk", err)
	}
	// (2^32-5)(2^32-17) still fits.
	if got, err := LCM(4294967291, 4294967279); err != nil || got != 18446743979220271189 {
		t.Fatalf("LCM(2^32-5, 2^32-17) = %d, %v, want 18446743979220271189, nil", got, err)
	}
}

// For every divisor d of L, reducing modulo L first never changes v % d.
func TestModulusPreservesDivisibility(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	primes := []model.WorryLevel{2, 3, 5, 7, 11, 13, 17, 19, 23}

	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(len(primes))
		divisors := make([]model.WorryLevel, n)
		for i := range divisors {
			divisors[i] = primes[rng.Intn(len(primes))] * model.WorryLevel(1+rng.Intn(3))
		}
		l, err := LCM(divisors...)
		if err != nil {
			t.Fatalf("LCM(%v): %v", divisors, err)
		}
		for k := 0; k < 50; k++ {
			v := rng.Uint64()
			for _, d := range divisors {
				if v%d != (v%l)%d {
					t.Fatalf("v=%d d=%d L=%d: v%%d=%d, (v%%L)%%d=%d", v, d, l, v%d, (v%l)%d)
				}
			}
		}
	}
}

func TestReducerApply(t *testing.T) {
	floor := reducer{policy: FloorDivide(3)}
	if got := floor.apply(1501); got != 500 {
		t.Fatalf("floor-divide apply(1501) = %d, want 500", got)
	}
	mod := reducer{policy: ModulusReduction(), modulus: 96577}
	if got := mod.apply(96577*7 + 12); got != 12 {
		t.Fatalf("modulus apply = %d, want 12", got)
	}
}

func TestEvaluateChecked(t *testing.T) {
	if _, ok := evaluateChecked(model.Multiply(model.Current()), 1<<32); ok {
		t.Fatalf("expected (2^32)^2 to overflow")
	}
	if v, ok := evaluateChecked(model.Multiply(model.Current()), 1<<31); !ok || v != 1<<62 {
		t.Fatalf("evaluateChecked((2^31)^2) = %d, %v", v, ok)
	}
	if _, ok := evaluateChecked(model.Add(model.Literal(1)), ^model.WorryLevel(0)); ok {
		t.Fatalf("expected max+1 to overflow")
	}
}

func TestReliefPolicyString(t *testing.T) {
	if got := FloorDivide(3).String(); got != "floor-divide(3)" {
		t.Fatalf("String() = %q", got)
	}
	if got := ModulusReduction().String(); got != "modulus-lcm" {
		t.Fatalf("String() = %q", got)
	}
	if got := ModulusReduction().Factor(); got != 0 {
		t.Fatalf("ModulusReduction().Factor() = %d, want 0", got)
	}
}
