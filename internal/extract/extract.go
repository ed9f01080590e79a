// Package extract applies per-sample calibrations to the sample channels and reports every
// detected peak as a calibrated size and height.
package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/chrissnell/fragsize/internal/calibration"
	"github.com/chrissnell/fragsize/internal/peaks"
	"github.com/chrissnell/fragsize/internal/trace"
	"github.com/chrissnell/fragsize/pkg/config"
	"github.com/exascience/pargo/parallel"
	"go.uber.org/zap"
)

// DefaultProminenceRatio sets the prominence threshold as a fraction of the height threshold
const DefaultProminenceRatio = 0.25

// ErrNoCalibration is the skip reason for samples that were skipped or never calibrated
var ErrNoCalibration = errors.New("sample has no calibration")

// CalibrationSource supplies the calibration of a sample. A nil calibration or ok == false
// means the sample has none.
type CalibrationSource interface {
	Calibration(sample string) (*calibration.Calibration, bool)
}

// Calibrations is a CalibrationSource backed by a map; a nil value marks a skipped sample
type Calibrations map[string]*calibration.Calibration

func (c Calibrations) Calibration(sample string) (*calibration.Calibration, bool) {
	cal, ok := c[sample]
	return cal, ok && cal != nil
}

// Request selects what to extract. Samples and channels are processed in the given order.
type Request struct {
	Samples   []string `json:"samples"`
	Channels  []string `json:"channels"`
	MinHeight float64  `json:"min_height"`
}

// Record is one calibrated peak
type Record struct {
	Sample    string  `json:"sample" msgpack:"sample"`
	Channel   string  `json:"channel" msgpack:"channel"`
	Scan      int     `json:"scan" msgpack:"scan"`
	SizeBP    float64 `json:"size_bp" msgpack:"size_bp"`
	HeightRFU float64 `json:"height_rfu" msgpack:"height_rfu"`
}

// Skip reports a (sample, channel) pair that produced no records and why
type Skip struct {
	Sample  string `json:"sample" msgpack:"sample"`
	Channel string `json:"channel,omitempty" msgpack:"channel,omitempty"`
	Reason  error  `json:"-" msgpack:"-"`
	Message string `json:"reason" msgpack:"reason"`
}

func newSkip(sample, channel string, reason error) Skip {
	return Skip{Sample: sample, Channel: channel, Reason: reason, Message: reason.Error()}
}

// Result holds the records of one extraction, grouped by sample in request order, then by
// channel in request order, then ascending by scan
type Result struct {
	Records []Record `json:"records" msgpack:"records"`
	Skipped []Skip   `json:"skipped" msgpack:"skipped"`
}

// Extractor runs peak extraction over a trace provider
type Extractor struct {
	Traces       trace.Provider
	Calibrations CalibrationSource

	// ProminenceRatio multiplies MinHeight to give the prominence threshold
	ProminenceRatio float64

	// BaselineChunks is passed to peaks.Correct
	BaselineChunks int

	// Parallel fans samples out over goroutines
	Parallel bool

	logger *zap.SugaredLogger
}

// New returns an extractor with default thresholds
func New(traces trace.Provider, cals CalibrationSource, logger *zap.SugaredLogger) *Extractor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Extractor{
		Traces:          traces,
		Calibrations:    cals,
		ProminenceRatio: DefaultProminenceRatio,
		BaselineChunks:  peaks.DefaultChunks,
		Parallel:        true,
		logger:          logger,
	}
}

// WithConfig sets the prominence ratio and parallelism from the extraction configuration
func (e *Extractor) WithConfig(c config.ExtractionData) *Extractor {
	if c.ProminenceRatio > 0 {
		e.ProminenceRatio = c.ProminenceRatio
	}
	if c.Parallel != nil {
		e.Parallel = *c.Parallel
	}
	return e
}

// Params returns the detection parameters used for a given height threshold
func (e *Extractor) Params(minHeight float64) peaks.Params {
	return peaks.Params{MinHeight: minHeight, MinProminence: minHeight * e.ProminenceRatio}
}

type sampleResult struct {
	records []Record
	skipped []Skip
}

// Extract detects peaks on each requested channel of each calibrated sample and maps their scan
// points to sizes. Missing calibrations and channels are reported in Result.Skipped and never
// abort the batch. Only invalid thresholds or a cancelled context return an error.
func (e *Extractor) Extract(ctx context.Context, req Request) (*Result, error) {
	params := e.Params(req.MinHeight)
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if e.ProminenceRatio < 0 {
		return nil, fmt.Errorf("prominence ratio %g is negative", e.ProminenceRatio)
	}

	results := make([]sampleResult, len(req.Samples))
	run := func(low, high int) {
		for i := low; i < high; i++ {
			if ctx.Err() != nil {
				return
			}
			results[i] = e.extractSample(req.Samples[i], req.Channels, params)
		}
	}

	if e.Parallel && len(req.Samples) > 1 {
		parallel.Range(0, len(req.Samples), 0, run)
	} else {
		run(0, len(req.Samples))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{Records: []Record{}, Skipped: []Skip{}}
	for _, r := range results {
		res.Records = append(res.Records, r.records...)
		res.Skipped = append(res.Skipped, r.skipped...)
	}

	e.logger.Debugf("extracted %d peaks from %d samples (%d skipped)", len(res.Records), len(req.Samples), len(res.Skipped))
	return res, nil
}

func (e *Extractor) extractSample(sample string, channels []string, params peaks.Params) sampleResult {
	var out sampleResult

	cal, ok := e.Calibrations.Calibration(sample)
	if !ok {
		out.skipped = append(out.skipped, newSkip(sample, "", ErrNoCalibration))
		return out
	}

	for _, ch := range channels {
		tr, err := e.Traces.Trace(sample, ch)
		if err != nil {
			e.logger.Debugf("skipping %s/%s: %v", sample, ch, err)
			out.skipped = append(out.skipped, newSkip(sample, ch, err))
			continue
		}

		corrected := peaks.Correct(tr, e.BaselineChunks)
		found, err := peaks.Detect(corrected, params)
		if err != nil {
			out.skipped = append(out.skipped, newSkip(sample, ch, err))
			continue
		}

		for _, p := range found {
			out.records = append(out.records, Record{
				Sample:    sample,
				Channel:   ch,
				Scan:      p.Scan,
				SizeBP:    cal.Size(float64(p.Scan)),
				HeightRFU: p.Height,
			})
		}
	}
	return out
}
