package session

import (
	"fmt"
	"os"
	"time"

	"github.com/chrissnell/fragsize/internal/calibration"
	"github.com/chrissnell/fragsize/internal/ladder"
	"github.com/chrissnell/fragsize/internal/trace"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// Snapshot is the persisted form of a session. Calibrations are stored as the points they were
// built from and rebuilt on restore; a nil point list marks a skipped sample. The assignment of a
// sample still being calibrated is not persisted.
type Snapshot struct {
	ID            string                         `msgpack:"id"`
	Created       time.Time                      `msgpack:"created"`
	Samples       []string                       `msgpack:"samples"`
	MarkerChannel string                         `msgpack:"marker_channel"`
	Ladder        ladder.Ladder                  `msgpack:"ladder"`
	Options       Options                        `msgpack:"options"`
	Calibrations  map[string][]calibration.Point `msgpack:"calibrations"`
	Template      []calibration.TemplateEntry    `msgpack:"template"`
}

// Snapshot captures the session's persistent state
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{
		ID:            s.ID,
		Created:       s.Created,
		Samples:       append([]string(nil), s.samples...),
		MarkerChannel: s.markerChannel,
		Ladder:        s.ladder,
		Options:       s.opts,
		Calibrations:  make(map[string][]calibration.Point, len(s.calibrations)),
	}
	for sample, cal := range s.calibrations {
		if cal == nil {
			snap.Calibrations[sample] = nil
			continue
		}
		snap.Calibrations[sample] = append([]calibration.Point(nil), cal.Points...)
	}
	if s.template != nil {
		snap.Template = s.template.Entries()
	}
	return snap
}

// Restore rebuilds a session from a snapshot over the given traces
func Restore(traces trace.Provider, snap *Snapshot, logger *zap.SugaredLogger) (*Session, error) {
	var tmpl calibration.Template
	if snap.Template != nil {
		tmpl = make(calibration.Template, len(snap.Template))
		for _, e := range snap.Template {
			tmpl[e.SizeBP] = e.Scan
		}
	}

	s, err := New(traces, Config{
		Samples:       snap.Samples,
		MarkerChannel: snap.MarkerChannel,
		Ladder:        snap.Ladder,
		Options:       snap.Options,
		Template:      tmpl,
	}, logger)
	if err != nil {
		return nil, err
	}
	s.ID = snap.ID
	s.Created = snap.Created

	for sample, pts := range snap.Calibrations {
		if pts == nil {
			s.calibrations[sample] = nil
			continue
		}
		cal, err := calibration.BuildPoints(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to restore calibration of %s: %w", sample, err)
		}
		s.calibrations[sample] = cal
	}
	return s, nil
}

// Marshal encodes a snapshot as msgpack
func (snap *Snapshot) Marshal() ([]byte, error) {
	return msgpack.Marshal(snap)
}

// UnmarshalSnapshot decodes a msgpack snapshot
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode session snapshot: %w", err)
	}
	return &snap, nil
}

// SaveFile writes a snapshot to path
func SaveFile(path string, snap *Snapshot) error {
	data, err := snap.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode session snapshot: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadFile reads a snapshot from path
func LoadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return UnmarshalSnapshot(data)
}
