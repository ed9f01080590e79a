package session

import "fmt"

// Summary counts the outcome of a session
type Summary struct {
	Total      int      `json:"total" msgpack:"total"`
	Calibrated int      `json:"calibrated" msgpack:"calibrated"`
	Skipped    []string `json:"skipped" msgpack:"skipped"`
	Pending    []string `json:"pending" msgpack:"pending"`
}

func (s Summary) String() string {
	return fmt.Sprintf("calibrated %d of %d samples", s.Calibrated, s.Total)
}

// Complete reports whether every sample is calibrated
func (s Summary) Complete() bool {
	return s.Calibrated == s.Total
}

// Summary reports how many samples are calibrated, skipped and still pending
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{Total: len(s.samples), Skipped: []string{}, Pending: []string{}}
	for _, sample := range s.samples {
		cal, done := s.calibrations[sample]
		switch {
		case !done:
			sum.Pending = append(sum.Pending, sample)
		case cal == nil:
			sum.Skipped = append(sum.Skipped, sample)
		default:
			sum.Calibrated++
		}
	}
	return sum
}
