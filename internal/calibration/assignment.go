package calibration

import (
	"math"
	"sort"
)

// Point is one scan point ↔ size correspondence
type Point struct {
	Scan   int     `json:"scan" msgpack:"scan"`
	SizeBP float64 `json:"size_bp" msgpack:"size_bp"`
}

// Assignment maps detected marker peak scan points to ladder sizes in bp. It is the mutable
// working state of one sample while it is being calibrated.
type Assignment map[int]float64

// Points returns the assignment sorted ascending by scan point
func (a Assignment) Points() []Point {
	pts := make([]Point, 0, len(a))
	for scan, size := range a {
		pts = append(pts, Point{Scan: scan, SizeBP: size})
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].Scan < pts[j].Scan })
	return pts
}

// Sizes returns the assigned sizes sorted ascending
func (a Assignment) Sizes() []float64 {
	sizes := make([]float64, 0, len(a))
	for _, s := range a {
		sizes = append(sizes, s)
	}
	sort.Float64s(sizes)
	return sizes
}

// Clone returns an independent copy
func (a Assignment) Clone() Assignment {
	out := make(Assignment, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// AssignmentFromPoints builds an assignment; a later point wins over an earlier one on the
// same scan
func AssignmentFromPoints(pts []Point) Assignment {
	a := make(Assignment, len(pts))
	for _, p := range pts {
		a[p.Scan] = p.SizeBP
	}
	return a
}

// Snap returns the detected peak nearest to scan when it lies within maxDist scan points.
// detected must be sorted ascending; the first of two equidistant peaks wins.
func Snap(detected []int, scan float64, maxDist float64) (int, bool) {
	if len(detected) == 0 {
		return 0, false
	}

	best := 0
	bestDist := math.Inf(1)
	for i, d := range detected {
		dist := math.Abs(float64(d) - scan)
		if dist < bestDist {
			best = i
			bestDist = dist
		}
	}
	if bestDist > maxDist {
		return 0, false
	}
	return detected[best], true
}

// AvailableSizes returns the ladder sizes that are not assigned yet, ascending and without
// duplicates
func AvailableSizes(ladder []float64, a Assignment) []float64 {
	used := make(map[float64]bool, len(a))
	for _, s := range a {
		used[s] = true
	}

	seen := make(map[float64]bool, len(ladder))
	var out []float64
	for _, s := range ladder {
		if used[s] || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Float64s(out)
	return out
}
