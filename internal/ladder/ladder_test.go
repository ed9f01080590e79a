package ladder

import (
	"errors"
	"reflect"
	"testing"
)

func TestBuiltin(t *testing.T) {
	tbl := Builtin()

	expected := []string{"BTO 550", "BTO 560", "GeneScan 500(-250) ROX"}
	if !reflect.DeepEqual(tbl.Names(), expected) {
		t.Errorf("expected %v, got %v", expected, tbl.Names())
	}

	l, err := tbl.Lookup(Default)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(l.Sizes) != 16 || l.Sizes[0] != 35 || l.Sizes[15] != 500 {
		t.Errorf("unexpected sizes %v", l.Sizes)
	}

	// callers get a copy
	l.Sizes[0] = 1
	again, _ := tbl.Lookup(Default)
	if again.Sizes[0] != 35 {
		t.Errorf("lookup result aliases the table")
	}

	if _, err := tbl.Lookup("nope"); !errors.Is(err, ErrUnknownLadder) {
		t.Errorf("expected ErrUnknownLadder, got %v", err)
	}
}

func TestNewOverrides(t *testing.T) {
	tests := []struct {
		name      string
		overrides []Ladder
		wantErr   bool
		check     string
		sizes     []float64
	}{
		{
			name:      "new ladder sorted",
			overrides: []Ladder{{Name: "Custom", Sizes: []float64{200, 100, 50}}},
			check:     "Custom",
			sizes:     []float64{50, 100, 200},
		},
		{
			name:      "replaces built-in",
			overrides: []Ladder{{Name: "BTO 550", Sizes: []float64{60, 80}}},
			check:     "BTO 550",
			sizes:     []float64{60, 80},
		},
		{
			name:      "duplicate size",
			overrides: []Ladder{{Name: "Bad", Sizes: []float64{50, 50}}},
			wantErr:   true,
		},
		{
			name:      "non-positive size",
			overrides: []Ladder{{Name: "Bad", Sizes: []float64{0, 50}}},
			wantErr:   true,
		},
		{
			name:      "missing name",
			overrides: []Ladder{{Sizes: []float64{50}}},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := New(tt.overrides)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			l, err := tbl.Lookup(tt.check)
			if err != nil {
				t.Fatalf("lookup: %v", err)
			}
			if !reflect.DeepEqual(l.Sizes, tt.sizes) {
				t.Errorf("expected %v, got %v", tt.sizes, l.Sizes)
			}
		})
	}
}
