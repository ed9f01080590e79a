package calibration

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name      string
		template  Template
		detected  []int
		tolerance float64
		expected  Assignment
		count     int
	}{
		{
			name:      "all entries matched, extra peak left over",
			template:  Template{50: 100, 100: 200, 150: 300},
			detected:  []int{102, 198, 305, 500},
			tolerance: 10,
			expected:  Assignment{102: 50, 198: 100, 305: 150},
			count:     3,
		},
		{
			name:      "consumed peak cannot be reclaimed",
			template:  Template{10: 50, 20: 52},
			detected:  []int{51},
			tolerance: 5,
			expected:  Assignment{51: 10},
			count:     1,
		},
		{
			name:      "miss leaves cursor in place",
			template:  Template{50: 100, 75: 150, 100: 200},
			detected:  []int{101, 201},
			tolerance: 10,
			expected:  Assignment{101: 50, 201: 100},
			count:     2,
		},
		{
			name:      "tolerance is strict",
			template:  Template{50: 100},
			detected:  []int{110},
			tolerance: 10,
			expected:  Assignment{},
			count:     0,
		},
		{
			name:      "peaks skipped past are consumed",
			template:  Template{50: 100, 60: 95},
			detected:  []int{90, 100},
			tolerance: 20,
			expected:  Assignment{100: 50},
			count:     1,
		},
		{
			name:      "unsorted detected input",
			template:  Template{50: 100, 100: 200},
			detected:  []int{199, 99},
			tolerance: 5,
			expected:  Assignment{99: 50, 199: 100},
			count:     2,
		},
		{
			name:      "no peaks",
			template:  Template{50: 100},
			detected:  nil,
			tolerance: 5,
			expected:  Assignment{},
			count:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n := Match(tt.template, tt.detected, tt.tolerance)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
			if n != tt.count {
				t.Errorf("expected count %d, got %d", tt.count, n)
			}
		})
	}
}

func TestMatchReport(t *testing.T) {
	_, r := MatchWithReport(Template{50: 100, 100: 200, 150: 300}, []int{100, 300}, 5)
	if r.String() != "2 of 3 assigned" {
		t.Errorf("unexpected report %q", r.String())
	}
}

func TestMatchShiftedSample(t *testing.T) {
	reference := Assignment{1000: 35, 1400: 50, 1900: 75, 2500: 100}
	tmpl := TemplateFromAssignment(reference)

	const shift = 12
	var detected []int
	for scan := range reference {
		detected = append(detected, scan+shift)
	}
	detected = append(detected, 700, 3100)

	got, n := Match(tmpl, detected, 40)
	if n < len(reference) {
		t.Fatalf("expected at least %d matches, got %d", len(reference), n)
	}
	for scan, size := range reference {
		if got[scan+shift] != size {
			t.Errorf("expected %d → %g, got %v", scan+shift, size, got)
		}
	}
}

func TestBuildKinds(t *testing.T) {
	tests := []struct {
		name   string
		a      Assignment
		kind   Kind
		checks map[float64]float64
	}{
		{
			name:   "two points linear with extrapolation",
			a:      Assignment{100: 50, 200: 100},
			kind:   Linear,
			checks: map[float64]float64{150: 75, 0: 0, 400: 200},
		},
		{
			name:   "three points quadratic",
			a:      Assignment{100: 50, 200: 100, 300: 150},
			kind:   Quadratic,
			checks: map[float64]float64{250: 125},
		},
		{
			name:   "three points on a parabola",
			a:      Assignment{0: 1, 1: 2, 2: 5},
			kind:   Quadratic,
			checks: map[float64]float64{3: 10, -1: 2},
		},
		{
			name:   "four points cubic",
			a:      Assignment{1: 2, 2: 9, 3: 28, 4: 65},
			kind:   Cubic,
			checks: map[float64]float64{0: 1, 5: 126, 2.5: 16.625},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Build(tt.a)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.Kind != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, c.Kind)
			}
			for x, want := range tt.checks {
				if got := c.Size(x); math.Abs(got-want) > 1e-6 {
					t.Errorf("at %g: expected %g, got %g", x, want, got)
				}
			}
		})
	}
}

func TestBuildQuadraticBetweenNeighbours(t *testing.T) {
	c, err := Build(Assignment{100: 50.0, 200: 100.0, 300: 150.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Kind != Quadratic {
		t.Fatalf("expected quadratic, got %s", c.Kind)
	}
	if got := c.Size(250); got <= 100 || got >= 150 {
		t.Errorf("expected size strictly between 100 and 150, got %g", got)
	}
}

func TestBuildSplineReproducesCubic(t *testing.T) {
	f := func(x float64) float64 { return 0.5 + 0.02*x + 3e-5*x*x + 1e-8*x*x*x }

	a := Assignment{}
	for _, scan := range []int{100, 180, 300, 420, 610, 800, 1000} {
		a[scan] = f(float64(scan))
	}

	c, err := Build(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Kind != Cubic {
		t.Fatalf("expected cubic, got %s", c.Kind)
	}
	for _, x := range []float64{50, 100, 150, 333, 700, 999, 1200} {
		if got, want := c.Size(x), f(x); math.Abs(got-want) > 1e-6 {
			t.Errorf("at %g: expected %g, got %g", x, want, got)
		}
	}
}

func TestBuildPassesThroughPoints(t *testing.T) {
	a := Assignment{1510: 35, 1702: 50, 1980: 75, 2240: 100, 2790: 139, 2920: 150, 3050: 160}
	c, err := Build(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for scan, size := range a {
		if got := c.Size(float64(scan)); math.Abs(got-size) > 1e-6 {
			t.Errorf("at %d: expected %g, got %g", scan, size, got)
		}
	}
	if !reflect.DeepEqual(c.Assignment(), a) {
		t.Errorf("provenance lost: %v", c.Assignment())
	}
	for i := 1; i < len(c.Points); i++ {
		if c.Points[i-1].Scan >= c.Points[i].Scan {
			t.Fatalf("points not sorted: %v", c.Points)
		}
	}
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(Assignment{100: 50})
	var ip *InsufficientPointsError
	if !errors.As(err, &ip) || ip.Have != 1 || !errors.Is(err, ErrInsufficientPoints) {
		t.Errorf("expected InsufficientPointsError, got %v", err)
	}

	_, err = Build(Assignment{200: 50.0, 100: 100.0})
	if !errors.Is(err, ErrNonMonotonic) {
		t.Errorf("expected ErrNonMonotonic, got %v", err)
	}

	_, err = BuildPoints([]Point{{Scan: 100, SizeBP: 50}, {Scan: 100, SizeBP: 75}})
	var nm *NonMonotonicError
	if !errors.As(err, &nm) || nm.Prev.Scan != 100 || nm.Next.Scan != 100 {
		t.Errorf("expected NonMonotonicError on equal scans, got %v", err)
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	tmpl := Template{35: 1510, 50: 1702, 75.5: 1980, 139: 2790}

	var buf bytes.Buffer
	if err := SaveTemplate(&buf, tmpl); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.Contains(buf.String(), `"75.5": 1980`) {
		t.Errorf("unexpected exchange form:\n%s", buf.String())
	}

	got, err := LoadTemplate(&buf)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, tmpl) {
		t.Errorf("round trip mismatch: %v vs %v", got, tmpl)
	}

	path := filepath.Join(t.TempDir(), "template.json")
	if err := SaveTemplateFile(path, tmpl); err != nil {
		t.Fatalf("save file: %v", err)
	}
	got, err = LoadTemplateFile(path)
	if err != nil || !reflect.DeepEqual(got, tmpl) {
		t.Errorf("file round trip mismatch: %v, %v", got, err)
	}
}

func TestLoadTemplateForeignKeys(t *testing.T) {
	got, err := LoadTemplate(strings.NewReader(`{"50.0": 1702, "100": 2240.0}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, Template{50: 1702, 100: 2240}) {
		t.Errorf("unexpected template %v", got)
	}

	if _, err := LoadTemplate(strings.NewReader(`{"abc": 1}`)); err == nil {
		t.Errorf("expected error for non-numeric size")
	}
	if _, err := LoadTemplate(strings.NewReader(`{"50": 1.5}`)); err == nil {
		t.Errorf("expected error for fractional scan")
	}
	for _, bad := range []string{`{"50.0": 1e30}`, `{"50": -3}`, `{"50": 2147483648}`} {
		if got, err := LoadTemplate(strings.NewReader(bad)); err == nil {
			t.Errorf("expected out of range error for %s, got %v", bad, got)
		}
	}
}

func TestTemplateFromAssignment(t *testing.T) {
	got := TemplateFromAssignment(Assignment{1702: 50, 1510: 35})
	if !reflect.DeepEqual(got, Template{35: 1510, 50: 1702}) {
		t.Errorf("unexpected template %v", got)
	}

	entries := got.Entries()
	if entries[0].SizeBP != 35 || entries[1].SizeBP != 50 {
		t.Errorf("entries not sorted by size: %v", entries)
	}
}

func TestSnap(t *testing.T) {
	detected := []int{100, 140, 200}
	tests := []struct {
		scan  float64
		want  int
		found bool
	}{
		{scan: 105, want: 100, found: true},
		{scan: 120, want: 100, found: true},
		{scan: 185, want: 200, found: true},
		{scan: 260, found: false},
	}
	for _, tt := range tests {
		got, ok := Snap(detected, tt.scan, 20)
		if ok != tt.found || (ok && got != tt.want) {
			t.Errorf("snap %g: expected (%d, %v), got (%d, %v)", tt.scan, tt.want, tt.found, got, ok)
		}
	}
}

func TestAvailableSizes(t *testing.T) {
	got := AvailableSizes([]float64{35, 50, 75, 100, 50}, Assignment{1: 50, 2: 100})
	if !reflect.DeepEqual(got, []float64{35, 75}) {
		t.Errorf("unexpected sizes %v", got)
	}
}
