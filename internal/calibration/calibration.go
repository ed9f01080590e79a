// Package calibration turns marker-channel peak assignments into scan point → base pair
// calibration curves, and re-applies a reference template to new samples.
package calibration

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrInsufficientPoints is the sentinel behind InsufficientPointsError
	ErrInsufficientPoints = errors.New("insufficient calibration points")

	// ErrNonMonotonic is the sentinel behind NonMonotonicError
	ErrNonMonotonic = errors.New("calibration points are not strictly increasing")
)

// MinPoints is the smallest assignment a calibration can be built from
const MinPoints = 2

// InsufficientPointsError reports an assignment with fewer than MinPoints entries
type InsufficientPointsError struct {
	Have int
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("calibration needs at least %d points, have %d", MinPoints, e.Have)
}

func (e *InsufficientPointsError) Unwrap() error { return ErrInsufficientPoints }

// NonMonotonicError reports the first pair of consecutive points (in scan order) whose scan
// points or sizes do not strictly increase
type NonMonotonicError struct {
	Index int
	Prev  Point
	Next  Point
}

func (e *NonMonotonicError) Error() string {
	return fmt.Sprintf("calibration points %d and %d are not strictly increasing: scan %d → %d, size %g → %g",
		e.Index, e.Index+1, e.Prev.Scan, e.Next.Scan, e.Prev.SizeBP, e.Next.SizeBP)
}

func (e *NonMonotonicError) Unwrap() error { return ErrNonMonotonic }

// Kind is the interpolation used by a calibration
type Kind string

const (
	Linear    Kind = "linear"
	Quadratic Kind = "quadratic"
	Cubic     Kind = "cubic"
)

// KindFor returns the interpolation used for a given number of points
func KindFor(points int) Kind {
	switch {
	case points >= 4:
		return Cubic
	case points == 3:
		return Quadratic
	default:
		return Linear
	}
}

// Calibration maps scan points to fragment sizes. It keeps the points it was built from.
type Calibration struct {
	Kind   Kind    `json:"kind"`
	Points []Point `json:"points"`

	curve piecewise
}

// Build sorts an assignment by scan point and fits a calibration through it
func Build(a Assignment) (*Calibration, error) {
	return BuildPoints(a.Points())
}

// BuildPoints fits a calibration through points given in any order. At least two points are
// required, and once sorted by scan point both scan points and sizes must strictly increase.
// Two points are joined linearly, three by a parabola and four or more by a not-a-knot cubic
// spline.
func BuildPoints(pts []Point) (*Calibration, error) {
	if len(pts) < MinPoints {
		return nil, &InsufficientPointsError{Have: len(pts)}
	}

	sorted := append([]Point(nil), pts...)
	sortPoints(sorted)

	for i := 0; i < len(sorted)-1; i++ {
		if sorted[i].Scan >= sorted[i+1].Scan || sorted[i].SizeBP >= sorted[i+1].SizeBP {
			return nil, &NonMonotonicError{Index: i, Prev: sorted[i], Next: sorted[i+1]}
		}
	}

	xs := make([]float64, len(sorted))
	ys := make([]float64, len(sorted))
	for i, p := range sorted {
		xs[i] = float64(p.Scan)
		ys[i] = p.SizeBP
	}

	c := &Calibration{Kind: KindFor(len(sorted)), Points: sorted}

	var err error
	switch c.Kind {
	case Linear:
		c.curve = fitLinear(xs, ys)
	case Quadratic:
		c.curve, err = fitPolynomial(xs, ys)
	case Cubic:
		c.curve, err = fitNotAKnot(xs, ys)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Size evaluates the calibration at a scan point, extrapolating beyond the calibration points
func (c *Calibration) Size(scan float64) float64 {
	return c.curve.eval(scan)
}

// Sizes evaluates the calibration at each scan point
func (c *Calibration) Sizes(scans []int) []float64 {
	out := make([]float64, len(scans))
	for i, s := range scans {
		out[i] = c.curve.eval(float64(s))
	}
	return out
}

// Axis maps every scan point of an n-point trace to a size, for plotting a calibrated trace
func (c *Calibration) Axis(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = c.curve.eval(float64(i))
	}
	return out
}

// Assignment returns the assignment the calibration was built from
func (c *Calibration) Assignment() Assignment {
	return AssignmentFromPoints(c.Points)
}

// sortPoints orders by scan point, then size, so the monotonicity check sees a fixed order
func sortPoints(pts []Point) {
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].Scan != pts[j].Scan {
			return pts[i].Scan < pts[j].Scan
		}
		return pts[i].SizeBP < pts[j].SizeBP
	})
}
