package peaks

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
)

// DefaultChunks is the number of segments the baseline corrector splits a trace into
const DefaultChunks = 30

// Correct removes slow intensity drift from a trace. The trace is split into numChunks
// contiguous segments; the minimum of each segment, together with the first and last samples,
// anchors a piecewise-linear baseline that is subtracted from the trace. Negative results are
// clipped to zero.
//
// Traces shorter than 2*numChunks are returned unmodified (the same slice). The input is never
// written to.
func Correct(tr []float64, numChunks int) []float64 {
	n := len(tr)
	if numChunks <= 0 || n < 2*numChunks {
		return tr
	}
	chunkSize := n / numChunks

	anchorX := make([]float64, 0, numChunks+2)
	anchorY := make([]float64, 0, numChunks+2)
	addAnchor := func(x int, y float64) {
		// Anchors at the same scan point come from the same sample and carry the same value
		if k := len(anchorX); k > 0 && anchorX[k-1] == float64(x) {
			return
		}
		anchorX = append(anchorX, float64(x))
		anchorY = append(anchorY, y)
	}

	addAnchor(0, tr[0])
	for i := 0; i < numChunks; i++ {
		start := i * chunkSize
		chunk := tr[start : start+chunkSize]
		idx := floats.MinIdx(chunk)
		addAnchor(start+idx, chunk[idx])
	}
	addAnchor(n-1, tr[n-1])

	var baseline interp.PiecewiseLinear
	if err := baseline.Fit(anchorX, anchorY); err != nil {
		// Anchor positions are strictly increasing by construction
		panic(err)
	}

	corrected := make([]float64, n)
	for i, v := range tr {
		d := v - baseline.Predict(float64(i))
		if d > 0 {
			corrected[i] = d
		}
	}
	return corrected
}
