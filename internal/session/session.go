// Package session holds the state of one calibration run: which samples are loaded, the
// assignment of the sample being calibrated, the committed calibrations and the template that
// pre-assigns new samples.
package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chrissnell/fragsize/internal/calibration"
	"github.com/chrissnell/fragsize/internal/extract"
	"github.com/chrissnell/fragsize/internal/ladder"
	"github.com/chrissnell/fragsize/internal/peaks"
	"github.com/chrissnell/fragsize/internal/trace"
	"github.com/chrissnell/fragsize/pkg/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNoActiveSample  = errors.New("no sample is being calibrated")
	ErrNotInSession    = errors.New("sample is not part of the session")
	ErrNoSnapPeak      = errors.New("no detected peak near the requested scan point")
	ErrUnknownPeak     = errors.New("scan point is not a detected peak")
	ErrSizeNotInLadder = errors.New("size is not in the ladder")
	ErrSizeAssigned    = errors.New("size is already assigned to another peak")
	ErrNoMarkerChannel = errors.New("no marker channel available")
)

// Options are the marker-channel detection and assignment settings of a session
type Options struct {
	Detection         peaks.Params `json:"detection" msgpack:"detection"`
	CorrectBaseline   bool         `json:"correct_baseline" msgpack:"correct_baseline"`
	BaselineChunks    int          `json:"baseline_chunks" msgpack:"baseline_chunks"`
	TemplateTolerance float64      `json:"template_tolerance" msgpack:"template_tolerance"`
	SnapDistance      float64      `json:"snap_distance" msgpack:"snap_distance"`
}

// DefaultOptions returns the settings marker peaks are detected and matched with by default
func DefaultOptions() Options {
	return Options{
		Detection: peaks.Params{
			MinHeight:     50,
			MinProminence: 25,
			MinDistance:   10,
			IgnoreBefore:  1500,
		},
		BaselineChunks:    peaks.DefaultChunks,
		TemplateTolerance: 40,
		SnapDistance:      20,
	}
}

// OptionsFromConfig converts the detection section of the configuration
func OptionsFromConfig(d config.DetectionData) Options {
	return Options{
		Detection: peaks.Params{
			MinHeight:     d.MinHeight,
			MinProminence: d.MinProminence,
			MinDistance:   d.MinDistance,
			IgnoreBefore:  d.IgnoreBefore,
			MaxWidth:      d.MaxWidth,
		},
		CorrectBaseline:   d.CorrectBaseline,
		BaselineChunks:    d.BaselineChunks,
		TemplateTolerance: d.TemplateTolerance,
		SnapDistance:      d.SnapDistance,
	}
}

// SampleState is a view of the sample being calibrated
type SampleState struct {
	Sample     string                   `json:"sample" msgpack:"sample"`
	Peaks      []peaks.Peak             `json:"peaks" msgpack:"peaks"`
	Assignment []calibration.Point      `json:"assignment" msgpack:"assignment"`
	Available  []float64                `json:"available_sizes" msgpack:"available_sizes"`
	Match      *calibration.MatchReport `json:"match,omitempty" msgpack:"match,omitempty"`
}

type activeSample struct {
	sample     string
	marker     []float64
	peaks      []peaks.Peak
	detected   []int
	assignment calibration.Assignment
	match      *calibration.MatchReport
}

// Session is safe for concurrent use
type Session struct {
	ID      string
	Created time.Time

	mu            sync.Mutex
	traces        trace.Provider
	samples       []string
	markerChannel string
	ladder        ladder.Ladder
	opts          Options
	template      calibration.Template
	calibrations  map[string]*calibration.Calibration
	active        *activeSample
	logger        *zap.SugaredLogger
}

// Config describes a new session. Empty Samples takes every sample of the provider; an empty
// MarkerChannel is chosen with trace.SelectMarker.
type Config struct {
	Samples       []string
	MarkerChannel string
	Ladder        ladder.Ladder
	Options       Options
	Template      calibration.Template
}

// New creates a session over traces
func New(traces trace.Provider, cfg Config, logger *zap.SugaredLogger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	samples := cfg.Samples
	if len(samples) == 0 {
		samples = traces.Samples()
	}
	known := make(map[string]bool)
	for _, s := range traces.Samples() {
		known[s] = true
	}
	for _, s := range samples {
		if !known[s] {
			return nil, fmt.Errorf("%w: %s", trace.ErrUnknownSample, s)
		}
	}

	marker := cfg.MarkerChannel
	if marker == "" {
		marker = trace.SelectMarker(trace.AllChannels(traces))
	}
	if marker == "" {
		return nil, ErrNoMarkerChannel
	}

	if err := cfg.Options.Detection.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		ID:            uuid.NewString(),
		Created:       time.Now(),
		traces:        traces,
		samples:       append([]string(nil), samples...),
		markerChannel: marker,
		ladder:        cfg.Ladder,
		opts:          cfg.Options,
		calibrations:  make(map[string]*calibration.Calibration),
		logger:        logger,
	}
	if cfg.Template != nil {
		s.template = cfg.Template.Clone()
	}

	logger.Infof("session %s: %d samples, marker channel %s, ladder %q", s.ID, len(s.samples), marker, cfg.Ladder.Name)
	return s, nil
}

// Samples returns the session's samples in calibration order
func (s *Session) Samples() []string {
	return append([]string(nil), s.samples...)
}

// MarkerChannel returns the channel the ladder is read from
func (s *Session) MarkerChannel() string { return s.markerChannel }

// Ladder returns the session's size standard
func (s *Session) Ladder() ladder.Ladder { return s.ladder }

// Traces returns the session's trace provider
func (s *Session) Traces() trace.Provider { return s.traces }

// Options returns the current detection settings
func (s *Session) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

func (s *Session) has(sample string) bool {
	for _, x := range s.samples {
		if x == sample {
			return true
		}
	}
	return false
}

// Begin starts calibrating sample: its marker peaks are detected and, when a template is set,
// pre-assigned from it. Any assignment in progress for another sample is discarded.
func (s *Session) Begin(sample string) (*SampleState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.has(sample) {
		return nil, fmt.Errorf("%w: %s", ErrNotInSession, sample)
	}

	tr, err := s.traces.Trace(sample, s.markerChannel)
	if err != nil {
		return nil, err
	}
	marker := []float64(tr)
	if s.opts.CorrectBaseline {
		marker = peaks.Correct(marker, s.opts.BaselineChunks)
	}

	a := &activeSample{sample: sample, marker: marker}
	if err := s.detect(a); err != nil {
		return nil, err
	}
	s.active = a
	return s.state(), nil
}

// Redetect detects the active sample's marker peaks again with new parameters. With a template
// set the assignment is rebuilt from the template; without one it is kept.
func (s *Session) Redetect(p peaks.Params) (*SampleState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return nil, ErrNoActiveSample
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	prev := s.opts.Detection
	s.opts.Detection = p
	if err := s.detect(s.active); err != nil {
		s.opts.Detection = prev
		return nil, err
	}
	return s.state(), nil
}

// detect runs peak detection on a's marker trace and applies the template
func (s *Session) detect(a *activeSample) error {
	found, err := peaks.Detect(a.marker, s.opts.Detection)
	if err != nil {
		return err
	}
	a.peaks = found
	a.detected = peaks.Scans(found)

	if s.template != nil {
		assigned, report := calibration.MatchWithReport(s.template, a.detected, s.opts.TemplateTolerance)
		a.assignment = assigned
		a.match = &report
		s.logger.Debugf("session %s: %s: template %s", s.ID, a.sample, report)
	} else if a.assignment == nil {
		a.assignment = make(calibration.Assignment)
	}
	return nil
}

// State returns the active sample's state
func (s *Session) State() (*SampleState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return nil, ErrNoActiveSample
	}
	return s.state(), nil
}

func (s *Session) state() *SampleState {
	a := s.active
	st := &SampleState{
		Sample:     a.sample,
		Peaks:      append([]peaks.Peak{}, a.peaks...),
		Assignment: a.assignment.Points(),
		Available:  calibration.AvailableSizes(s.ladder.Sizes, a.assignment),
	}
	if a.match != nil {
		m := *a.match
		st.Match = &m
	}
	return st
}

// Assign sets the size of a detected marker peak. The size must belong to the ladder and not be
// assigned to another peak; re-assigning a peak replaces its size.
func (s *Session) Assign(scan int, size float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assign(scan, size)
}

func (s *Session) assign(scan int, size float64) error {
	if s.active == nil {
		return ErrNoActiveSample
	}
	a := s.active

	i := sort.SearchInts(a.detected, scan)
	if i == len(a.detected) || a.detected[i] != scan {
		return fmt.Errorf("%w: %d", ErrUnknownPeak, scan)
	}
	if !s.inLadder(size) {
		return fmt.Errorf("%w: %g", ErrSizeNotInLadder, size)
	}
	for other, sz := range a.assignment {
		if sz == size && other != scan {
			return fmt.Errorf("%w: %g bp at scan %d", ErrSizeAssigned, size, other)
		}
	}

	a.assignment[scan] = size
	return nil
}

// AssignNear assigns size to the detected peak nearest scan, within the snap distance, and
// returns the peak's scan point
func (s *Session) AssignNear(scan float64, size float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return 0, ErrNoActiveSample
	}
	peak, ok := calibration.Snap(s.active.detected, scan, s.opts.SnapDistance)
	if !ok {
		return 0, fmt.Errorf("%w: %g", ErrNoSnapPeak, scan)
	}
	return peak, s.assign(peak, size)
}

// Unassign removes the size of one peak
func (s *Session) Unassign(scan int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return ErrNoActiveSample
	}
	delete(s.active.assignment, scan)
	return nil
}

// Clear removes every assignment of the active sample
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return ErrNoActiveSample
	}
	s.active.assignment = make(calibration.Assignment)
	s.active.match = nil
	return nil
}

// Commit builds the active sample's calibration and stores it. The first committed sample seeds
// the template when none is set. On error the assignment is kept so it can be fixed or skipped.
func (s *Session) Commit() (*calibration.Calibration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return nil, ErrNoActiveSample
	}

	cal, err := calibration.Build(s.active.assignment)
	if err != nil {
		return nil, fmt.Errorf("failed to calibrate %s: %w", s.active.sample, err)
	}

	s.calibrations[s.active.sample] = cal
	if s.template == nil {
		s.template = calibration.TemplateFromAssignment(s.active.assignment)
		s.logger.Infof("session %s: template created from %s (%d sizes)", s.ID, s.active.sample, len(s.template))
	}
	s.logger.Infof("session %s: %s calibrated (%s, %d points)", s.ID, s.active.sample, cal.Kind, len(cal.Points))

	s.active = nil
	return cal, nil
}

// Skip records the active sample as skipped
func (s *Session) Skip() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return ErrNoActiveSample
	}
	s.calibrations[s.active.sample] = nil
	s.logger.Infof("session %s: %s skipped", s.ID, s.active.sample)
	s.active = nil
	return nil
}

// Next returns the first sample that is neither calibrated nor skipped
func (s *Session) Next() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sample := range s.samples {
		if _, done := s.calibrations[sample]; !done {
			return sample, true
		}
	}
	return "", false
}

// Calibration returns a sample's calibration; ok is false for skipped or pending samples
func (s *Session) Calibration(sample string) (*calibration.Calibration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cal, ok := s.calibrations[sample]
	return cal, ok && cal != nil
}

// Calibrations returns every decided sample; skipped samples map to nil
func (s *Session) Calibrations() extract.Calibrations {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(extract.Calibrations, len(s.calibrations))
	for k, v := range s.calibrations {
		out[k] = v
	}
	return out
}

// Template returns a copy of the template, nil when none is set
func (s *Session) Template() calibration.Template {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.template == nil {
		return nil
	}
	return s.template.Clone()
}

// SetTemplate replaces the template
func (s *Session) SetTemplate(t calibration.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.template = t.Clone()
}

// ResetTemplate drops the template so the next committed sample creates a new one
func (s *Session) ResetTemplate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.template = nil
}

// Extractor returns an extractor over the session's traces and calibrations
func (s *Session) Extractor() *extract.Extractor {
	return extract.New(s.traces, s, s.logger)
}

func (s *Session) inLadder(size float64) bool {
	for _, v := range s.ladder.Sizes {
		if v == size {
			return true
		}
	}
	return false
}
