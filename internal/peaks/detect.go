// Package peaks implements baseline correction and local-maximum peak detection on
// fluorescence traces. Detection follows the usual find-peaks pipeline: local maxima, then
// height, distance, prominence and width filters, in that order.
package peaks

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/willf/bitset"
)

// ErrInvalidParameter is the sentinel behind ParameterError
var ErrInvalidParameter = errors.New("invalid detection parameter")

// ParameterError reports a detection parameter outside its domain
type ParameterError struct {
	Name   string
	Value  float64
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("invalid detection parameter %s=%g: %s", e.Name, e.Value, e.Reason)
}

func (e *ParameterError) Unwrap() error { return ErrInvalidParameter }

// Peak is a detected local maximum. Scan indexes the trace the detector was given.
type Peak struct {
	Scan       int     `json:"scan" msgpack:"scan"`
	Height     float64 `json:"height" msgpack:"height"`
	Prominence float64 `json:"prominence" msgpack:"prominence"`
	Width      float64 `json:"width" msgpack:"width"`
}

// Params bounds which local maxima are reported
type Params struct {
	MinHeight     float64 `json:"min_height" msgpack:"min_height"`
	MinProminence float64 `json:"min_prominence" msgpack:"min_prominence"`
	// MinDistance is the smallest allowed separation in scan points; 0 or 1 disables the filter
	MinDistance int `json:"min_distance" msgpack:"min_distance"`
	// IgnoreBefore drops everything before this scan point (injection artifacts)
	IgnoreBefore int `json:"ignore_before" msgpack:"ignore_before"`
	// MaxWidth is the largest width at half prominence; 0 disables the filter
	MaxWidth float64 `json:"max_width,omitempty" msgpack:"max_width,omitempty"`
}

// Validate checks every parameter up front
func (p Params) Validate() error {
	checks := []struct {
		name  string
		value float64
	}{
		{"min_height", p.MinHeight},
		{"min_prominence", p.MinProminence},
		{"min_distance", float64(p.MinDistance)},
		{"ignore_before", float64(p.IgnoreBefore)},
		{"max_width", p.MaxWidth},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			return &ParameterError{Name: c.name, Value: c.value, Reason: "must be a finite number"}
		}
		if c.value < 0 {
			return &ParameterError{Name: c.name, Value: c.value, Reason: "must not be negative"}
		}
	}
	return nil
}

// Scans returns the scan points of a peak list
func Scans(ps []Peak) []int {
	out := make([]int, len(ps))
	for i, p := range ps {
		out[i] = p.Scan
	}
	return out
}

// Detect finds the peaks of tr that satisfy p, sorted ascending by scan point. Parameters are
// validated before anything else runs.
func Detect(tr []float64, p Params) ([]Peak, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.IgnoreBefore >= len(tr) {
		return []Peak{}, nil
	}

	x := tr[p.IgnoreBefore:]
	candidates := localMaxima(x)

	kept := candidates[:0]
	for _, c := range candidates {
		if x[c] >= p.MinHeight {
			kept = append(kept, c)
		}
	}
	candidates = selectByDistance(x, kept, p.MinDistance)

	out := make([]Peak, 0, len(candidates))
	for _, c := range candidates {
		prom, leftBase, rightBase := prominence(x, c)
		if prom < p.MinProminence {
			continue
		}
		width := widthAtHalfProminence(x, c, prom, leftBase, rightBase)
		if p.MaxWidth > 0 && width > p.MaxWidth {
			continue
		}
		out = append(out, Peak{
			Scan:       c + p.IgnoreBefore,
			Height:     x[c],
			Prominence: prom,
			Width:      width,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Scan < out[j].Scan })
	return out, nil
}

// localMaxima returns the indices of samples greater than both neighbours. A flat top is
// reported at its middle sample (rounded down). The first and last samples are never peaks.
func localMaxima(x []float64) []int {
	var out []int
	iMax := len(x) - 1
	for i := 1; i < iMax; i++ {
		if x[i-1] >= x[i] {
			continue
		}
		ahead := i + 1
		for ahead < iMax && x[ahead] == x[i] {
			ahead++
		}
		if x[ahead] < x[i] {
			out = append(out, (i+ahead-1)/2)
			i = ahead
		}
	}
	return out
}

// selectByDistance drops peaks closer than distance to a higher peak. Peaks are visited from
// the highest down; among equal heights the later peak wins.
func selectByDistance(x []float64, candidates []int, distance int) []int {
	n := len(candidates)
	if distance <= 1 || n < 2 {
		return candidates
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return x[candidates[order[a]]] < x[candidates[order[b]]]
	})

	keep := bitset.New(uint(n))
	for i := 0; i < n; i++ {
		keep.Set(uint(i))
	}

	for i := n - 1; i >= 0; i-- {
		j := order[i]
		if !keep.Test(uint(j)) {
			continue
		}
		for k := j - 1; k >= 0 && candidates[j]-candidates[k] < distance; k-- {
			keep.Clear(uint(k))
		}
		for k := j + 1; k < n && candidates[k]-candidates[j] < distance; k++ {
			keep.Clear(uint(k))
		}
	}

	out := make([]int, 0, keep.Count())
	for i, c := range candidates {
		if keep.Test(uint(i)) {
			out = append(out, c)
		}
	}
	return out
}
