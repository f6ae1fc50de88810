package model

import "testing"

func TestOperationEvaluate(t *testing.T) {
	cases := []struct {
		name string
		op   Operation
		in   WorryLevel
		want WorryLevel
	}{
		{"add literal", Add(Literal(6)), 54, 60},
		{"multiply literal", Multiply(Literal(19)), 79, 1501},
		{"square", Multiply(Current()), 79, 6241},
		{"double", Add(Current()), 21, 42},
		{"add zero", Add(Literal(0)), 7, 7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.op.Evaluate(tc.in); got != tc.want {
				t.Fatalf("Evaluate(%d) = %d, want %d", tc.in, got, tc.want)
			}
		})
	}
}

func TestOperationString(t *testing.T) {
	if got := Multiply(Current()).String(); got != "new = old * old" {
		t.Fatalf("String() = %q", got)
	}
	if got := Add(Literal(3)).String(); got != "new = old + 3" {
		t.Fatalf("String() = %q", got)
	}
}
