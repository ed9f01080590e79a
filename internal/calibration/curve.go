package calibration

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// piecewise is a piecewise cubic in local form: on segment i,
// f(x) = c0 + c1*dx + c2*dx² + c3*dx³ with dx = x - breaks[i]. Points left of the first break
// use the first segment and points right of the last break use the last one, so evaluation
// extrapolates along the end pieces.
type piecewise struct {
	breaks []float64
	coeffs [][4]float64
}

func (p *piecewise) eval(x float64) float64 {
	i := sort.Search(len(p.breaks), func(k int) bool { return p.breaks[k] > x }) - 1
	if i < 0 {
		i = 0
	}
	c := p.coeffs[i]
	dx := x - p.breaks[i]
	return ((c[3]*dx+c[2])*dx+c[1])*dx + c[0]
}

// fitLinear joins consecutive points with straight lines
func fitLinear(xs, ys []float64) piecewise {
	n := len(xs)
	p := piecewise{
		breaks: append([]float64(nil), xs[:n-1]...),
		coeffs: make([][4]float64, n-1),
	}
	for i := 0; i < n-1; i++ {
		p.coeffs[i] = [4]float64{ys[i], (ys[i+1] - ys[i]) / (xs[i+1] - xs[i])}
	}
	return p
}

// fitPolynomial returns the single polynomial of degree len(xs)-1 (at most 3) through every
// point
func fitPolynomial(xs, ys []float64) (piecewise, error) {
	n := len(xs)
	if n > 4 {
		return piecewise{}, fmt.Errorf("polynomial through %d points exceeds cubic", n)
	}

	v := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		dx := xs[i] - xs[0]
		term := 1.0
		for j := 0; j < n; j++ {
			v.Set(i, j, term)
			term *= dx
		}
	}

	var c mat.VecDense
	if err := solve(&c, v, mat.NewVecDense(n, append([]float64(nil), ys...))); err != nil {
		return piecewise{}, fmt.Errorf("failed to solve polynomial coefficients: %w", err)
	}

	var coeffs [4]float64
	for j := 0; j < n; j++ {
		coeffs[j] = c.AtVec(j)
	}
	return piecewise{breaks: []float64{xs[0]}, coeffs: [][4]float64{coeffs}}, nil
}

// fitNotAKnot returns the interpolating cubic spline whose third derivative is continuous across
// the second and the second-to-last points. It needs at least four points; with exactly four it
// is the interpolating cubic.
func fitNotAKnot(xs, ys []float64) (piecewise, error) {
	n := len(xs)
	if n < 4 {
		return piecewise{}, fmt.Errorf("not-a-knot spline needs at least 4 points, got %d", n)
	}

	h := make([]float64, n-1)
	for i := range h {
		h[i] = xs[i+1] - xs[i]
	}

	// Unknowns are the second derivatives m[0..n-1] at the points
	a := mat.NewDense(n, n, nil)
	rhs := mat.NewVecDense(n, nil)

	a.Set(0, 0, h[1])
	a.Set(0, 1, -(h[0] + h[1]))
	a.Set(0, 2, h[0])

	for i := 1; i < n-1; i++ {
		a.Set(i, i-1, h[i-1])
		a.Set(i, i, 2*(h[i-1]+h[i]))
		a.Set(i, i+1, h[i])
		rhs.SetVec(i, 6*((ys[i+1]-ys[i])/h[i]-(ys[i]-ys[i-1])/h[i-1]))
	}

	a.Set(n-1, n-3, h[n-2])
	a.Set(n-1, n-2, -(h[n-3] + h[n-2]))
	a.Set(n-1, n-1, h[n-3])

	var m mat.VecDense
	if err := solve(&m, a, rhs); err != nil {
		return piecewise{}, fmt.Errorf("failed to solve spline system: %w", err)
	}

	p := piecewise{
		breaks: append([]float64(nil), xs[:n-1]...),
		coeffs: make([][4]float64, n-1),
	}
	for i := 0; i < n-1; i++ {
		mi, mj := m.AtVec(i), m.AtVec(i+1)
		p.coeffs[i] = [4]float64{
			ys[i],
			(ys[i+1]-ys[i])/h[i] - h[i]*(2*mi+mj)/6,
			mi / 2,
			(mj - mi) / (6 * h[i]),
		}
	}
	return p, nil
}

// solve is SolveVec that accepts a finite condition-number warning; the solution is still
// usable there, only a singular system is an error
func solve(dst *mat.VecDense, a mat.Matrix, b mat.Vector) error {
	err := dst.SolveVec(a, b)
	var cond mat.Condition
	if errors.As(err, &cond) && !math.IsInf(float64(cond), 0) {
		return nil
	}
	return err
}
