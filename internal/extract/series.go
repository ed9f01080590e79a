package extract

import (
	"fmt"

	"github.com/chrissnell/fragsize/internal/calibration"
	"github.com/chrissnell/fragsize/internal/peaks"
	"github.com/chrissnell/fragsize/internal/trace"
)

// Series is a baseline-corrected trace on a calibrated size axis, for plotting
type Series struct {
	Sample      string    `json:"sample" msgpack:"sample"`
	Channel     string    `json:"channel" msgpack:"channel"`
	DisplayName string    `json:"display_name" msgpack:"display_name"`
	SizeBP      []float64 `json:"size_bp" msgpack:"size_bp"`
	RFU         []float64 `json:"rfu" msgpack:"rfu"`
}

// Series returns the calibrated series for one sample channel
func (e *Extractor) Series(sample, channel string) (*Series, error) {
	cal, ok := e.Calibrations.Calibration(sample)
	if !ok {
		return nil, fmt.Errorf("%s: %w", sample, ErrNoCalibration)
	}
	tr, err := e.Traces.Trace(sample, channel)
	if err != nil {
		return nil, err
	}
	return NewSeries(sample, channel, tr, cal, e.BaselineChunks), nil
}

// NewSeries corrects tr and maps each of its scan points through cal
func NewSeries(sample, channel string, tr trace.Trace, cal *calibration.Calibration, chunks int) *Series {
	corrected := peaks.Correct(tr, chunks)
	return &Series{
		Sample:      sample,
		Channel:     channel,
		DisplayName: trace.DisplayName(channel),
		SizeBP:      cal.Axis(len(corrected)),
		RFU:         append([]float64(nil), corrected...),
	}
}
