package formula

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestEval(t *testing.T) {
	env := map[string]float64{"A": 300, "B": 100, "Donor_1": 50}

	tests := []struct {
		src      string
		expected float64
	}{
		{src: DefaultFormula, expected: 75},
		{src: "1 + 2 * 3", expected: 7},
		{src: "(1 + 2) * 3", expected: 9},
		{src: "10 - 4 - 3", expected: 3},
		{src: "24 / 4 / 2", expected: 3},
		{src: "-A + B", expected: -200},
		{src: "--2", expected: 2},
		{src: "+A", expected: 300},
		{src: "Donor_1 * 2", expected: 100},
		{src: "1.5e2 + .5", expected: 150.5},
		{src: "  A/B  ", expected: 3},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := Eval(tt.src, env)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("expected %g, got %g", tt.expected, got)
			}
		})
	}
}

func TestEvalErrors(t *testing.T) {
	env := map[string]float64{"A": 1, "Z": 0}

	tests := []struct {
		src     string
		syntax  bool
		wantErr error
	}{
		{src: "", syntax: true},
		{src: "A +", syntax: true},
		{src: "(A", syntax: true},
		{src: "A)", syntax: true},
		{src: "A $ 2", syntax: true},
		{src: "1.2.3", syntax: true},
		{src: "__import__('os')", syntax: true},
		{src: "A B", syntax: true},
		{src: "C * 2", wantErr: ErrUnknownVariable},
		{src: "A / Z", wantErr: ErrDivisionByZero},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := Eval(tt.src, env)
			if err == nil {
				t.Fatalf("expected error")
			}
			var se *SyntaxError
			if tt.syntax != errors.As(err, &se) {
				t.Errorf("syntax error expected %v, got %v", tt.syntax, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestExprVars(t *testing.T) {
	e, err := Parse("A / (A + B) * C")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(e.Vars(), []string{"A", "B", "C"}) {
		t.Errorf("unexpected vars %v", e.Vars())
	}
	if e.String() != "A / (A + B) * C" {
		t.Errorf("unexpected source %q", e.String())
	}
}

func TestVariables(t *testing.T) {
	vars := NewVariables()

	a := vars.Add(Variable{RFU: 300, SizeBP: 120.4, Sample: "s1", Channel: "Blue"})
	b := vars.Add(Variable{RFU: 100, SizeBP: 122.1, Sample: "s1", Channel: "Blue"})
	if a.Name != "A" || b.Name != "B" {
		t.Fatalf("expected A and B, got %s and %s", a.Name, b.Name)
	}

	got, err := vars.Evaluate(DefaultFormula)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if FormatResult(got) != "75.0000" {
		t.Errorf("unexpected result %s", FormatResult(got))
	}

	v, err := vars.Set(Variable{Name: "  wild type ", RFU: 10})
	if err != nil || v.Name != "wild_type" {
		t.Fatalf("unexpected set result %v, %v", v, err)
	}
	if _, err := vars.Set(Variable{Name: "1x"}); err == nil {
		t.Errorf("expected error for invalid name")
	}

	vars.Remove("A")
	if c := vars.Add(Variable{RFU: 5}); c.Name != "A" {
		t.Errorf("expected freed name A to be reused, got %s", c.Name)
	}

	names := []string{}
	for _, v := range vars.List() {
		names = append(names, v.Name)
	}
	if !reflect.DeepEqual(names, []string{"B", "wild_type", "A"}) {
		t.Errorf("unexpected order %v", names)
	}

	vars.Clear()
	if len(vars.List()) != 0 {
		t.Errorf("expected empty table")
	}
}

func TestLetterName(t *testing.T) {
	for i, want := range map[int]string{0: "A", 25: "Z", 26: "AA", 27: "AB", 51: "AZ", 52: "BA"} {
		if got := letterName(i); got != want {
			t.Errorf("letterName(%d): expected %s, got %s", i, want, got)
		}
	}
}
