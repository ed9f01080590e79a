package trace

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestReadCSV(t *testing.T) {
	in := "DATA4,DATA9\n0,10\n5,12.5\n# trailing comment\n3,0\n"

	channels, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string][]float64{
		"DATA4": {0, 5, 3},
		"DATA9": {10, 12.5, 0},
	}
	if !reflect.DeepEqual(channels, want) {
		t.Errorf("expected %v, got %v", want, channels)
	}
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "negative intensity", in: "DATA4\n-1\n"},
		{name: "not a number", in: "DATA4\nabc\n"},
		{name: "empty channel name", in: "DATA4,\n1,2\n"},
		{name: "empty input", in: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(tt.in)); err == nil {
				t.Errorf("expected error for %q", tt.in)
			}
		})
	}
}

func TestMemoryProvider(t *testing.T) {
	m := NewMemoryProvider()
	src := []float64{1, 2, 3}
	m.Add("s1", "DATA9", src)
	m.Add("s1", "DATA4", []float64{4})
	m.Add("s2", "DATA4", []float64{5})

	src[0] = 100
	tr, err := m.Trace("s1", "DATA9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr[0] != 1 {
		t.Errorf("provider must keep its own copy, got %v", tr)
	}

	if got := m.Samples(); !reflect.DeepEqual(got, []string{"s1", "s2"}) {
		t.Errorf("unexpected sample order %v", got)
	}
	if got := m.Channels("s1"); !reflect.DeepEqual(got, []string{"DATA4", "DATA9"}) {
		t.Errorf("unexpected channels %v", got)
	}

	_, err = m.Trace("s2", "DATA9")
	var missing *MissingChannelError
	if !errors.As(err, &missing) || !errors.Is(err, ErrMissingChannel) {
		t.Fatalf("expected MissingChannelError, got %v", err)
	}
	if missing.Sample != "s2" || missing.Channel != "DATA9" {
		t.Errorf("unexpected error fields %+v", missing)
	}

	if _, err := m.Trace("nope", "DATA4"); !errors.Is(err, ErrUnknownSample) {
		t.Errorf("expected ErrUnknownSample, got %v", err)
	}

	if got := AllChannels(m); !reflect.DeepEqual(got, []string{"DATA4", "DATA9"}) {
		t.Errorf("unexpected union %v", got)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "b.csv"), []byte("DATA4\n1\n2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.csv"), []byte("DATA4\n3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.csv"), []byte("DATA4\nx\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	m, failed, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.Samples(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("unexpected samples %v", got)
	}
	if len(failed) != 1 {
		t.Errorf("expected one failed file, got %v", failed)
	}
}

func TestSelectMarker(t *testing.T) {
	tests := []struct {
		name      string
		available []string
		expected  string
	}{
		{name: "preferred present", available: []string{"DATA1", "DATA4", "DATA9"}, expected: "DATA4"},
		{name: "alternate preferred", available: []string{"DATA105", "DATA9"}, expected: "DATA105"},
		{name: "lowest number", available: []string{"DATA12", "DATA3", "DATA10"}, expected: "DATA3"},
		{name: "nothing", available: nil, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectMarker(tt.available); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestSelectSamples(t *testing.T) {
	got := SelectSamples([]string{"DATA11", "DATA4", "DATA9"})
	if !reflect.DeepEqual(got, []string{"DATA9", "DATA11"}) {
		t.Errorf("unexpected sample channels %v", got)
	}
	if DisplayName("DATA10") != "Green" || DisplayName("X") != "X" {
		t.Errorf("unexpected display names")
	}
}
