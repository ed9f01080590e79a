package calibration

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// MatchReport summarises how many template entries found a peak
type MatchReport struct {
	Matched  int `json:"matched"`
	Template int `json:"template"`
}

func (r MatchReport) String() string {
	return fmt.Sprintf("%d of %d assigned", r.Matched, r.Template)
}

// Match assigns template sizes to detected marker peaks with a forward-only greedy scan.
//
// Template entries are visited in ascending size order. For each entry the nearest peak among
// those not yet consumed is taken when it lies strictly closer than tolerance; that peak and
// every peak before it are then consumed. An entry without a peak in tolerance is left
// unassigned and consumes nothing. Once every peak is consumed matching stops.
//
// Because the cursor never moves back, a later template entry cannot claim a peak an earlier
// entry consumed or skipped past, even when it would be closer. Callers rely on this behavior;
// it is not a global minimum-cost matching.
func Match(t Template, detected []int, tolerance float64) (Assignment, int) {
	scans := append([]int(nil), detected...)
	sort.Ints(scans)

	assigned := make(Assignment)
	count := 0
	cursor := 0

	for _, entry := range t.Entries() {
		remaining := scans[cursor:]
		if len(remaining) == 0 {
			break
		}

		dist := make([]float64, len(remaining))
		for i, s := range remaining {
			dist[i] = math.Abs(float64(s - entry.Scan))
		}
		best := floats.MinIdx(dist)
		bestDist := dist[best]

		if bestDist < tolerance {
			assigned[remaining[best]] = entry.SizeBP
			count++
			cursor += best + 1
		}
	}

	return assigned, count
}

// MatchWithReport runs Match and reports the result against the template size
func MatchWithReport(t Template, detected []int, tolerance float64) (Assignment, MatchReport) {
	a, n := Match(t, detected, tolerance)
	return a, MatchReport{Matched: n, Template: len(t)}
}
