package database

import (
	"encoding/json"
	"time"

	"github.com/chrissnell/fragsize/internal/calibration"
	"github.com/chrissnell/fragsize/internal/extract"
	"github.com/google/uuid"
)

// Run is one archived extraction
type Run struct {
	ID            string    `gorm:"primaryKey;column:id" json:"id"`
	SessionID     string    `gorm:"column:session_id;index" json:"session_id"`
	Ladder        string    `gorm:"column:ladder" json:"ladder"`
	MarkerChannel string    `gorm:"column:marker_channel" json:"marker_channel"`
	MinHeight     float64   `gorm:"column:min_height" json:"min_height"`
	SkippedCount  int       `gorm:"column:skipped_count" json:"skipped_count"`
	CreatedAt     time.Time `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"created_at"`

	Calibrations []RunCalibration `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"calibrations,omitempty"`
	Peaks        []RunPeak        `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"peaks,omitempty"`
}

// TableName specifies the table name for Run
func (Run) TableName() string {
	return "extraction_runs"
}

// RunCalibration is the calibration a sample of a run was sized with
type RunCalibration struct {
	ID     uint   `gorm:"primaryKey;autoIncrement;column:id" json:"-"`
	RunID  string `gorm:"column:run_id;index" json:"-"`
	Sample string `gorm:"column:sample" json:"sample"`
	Kind   string `gorm:"column:kind" json:"kind"`
	// Points holds the calibration points as JSON
	Points string `gorm:"column:points;type:jsonb" json:"points"`
}

// TableName specifies the table name for RunCalibration
func (RunCalibration) TableName() string {
	return "extraction_run_calibrations"
}

// RunPeak is one extracted peak of a run
type RunPeak struct {
	ID        uint    `gorm:"primaryKey;autoIncrement;column:id" json:"-"`
	RunID     string  `gorm:"column:run_id;index" json:"-"`
	Position  int     `gorm:"column:position" json:"-"`
	Sample    string  `gorm:"column:sample" json:"sample"`
	Channel   string  `gorm:"column:channel" json:"channel"`
	Scan      int     `gorm:"column:scan" json:"scan"`
	SizeBP    float64 `gorm:"column:size_bp" json:"size_bp"`
	HeightRFU float64 `gorm:"column:height_rfu" json:"height_rfu"`
}

// TableName specifies the table name for RunPeak
func (RunPeak) TableName() string {
	return "extraction_run_peaks"
}

// RunInfo describes the context of an extraction being archived
type RunInfo struct {
	SessionID     string
	Ladder        string
	MarkerChannel string
	MinHeight     float64
}

// NewRun builds an archive row set from an extraction result. Only samples that produced
// records or were requested with a calibration are listed in Calibrations.
func NewRun(info RunInfo, res *extract.Result, cals extract.Calibrations) (*Run, error) {
	run := &Run{
		ID:            uuid.NewString(),
		SessionID:     info.SessionID,
		Ladder:        info.Ladder,
		MarkerChannel: info.MarkerChannel,
		MinHeight:     info.MinHeight,
		SkippedCount:  len(res.Skipped),
		CreatedAt:     time.Now().UTC(),
	}

	seen := make(map[string]bool)
	for i, r := range res.Records {
		run.Peaks = append(run.Peaks, RunPeak{
			Position:  i,
			Sample:    r.Sample,
			Channel:   r.Channel,
			Scan:      r.Scan,
			SizeBP:    r.SizeBP,
			HeightRFU: r.HeightRFU,
		})
		if seen[r.Sample] {
			continue
		}
		seen[r.Sample] = true

		cal, ok := cals.Calibration(r.Sample)
		if !ok {
			continue
		}
		rc, err := newRunCalibration(r.Sample, cal)
		if err != nil {
			return nil, err
		}
		run.Calibrations = append(run.Calibrations, rc)
	}
	return run, nil
}

func newRunCalibration(sample string, cal *calibration.Calibration) (RunCalibration, error) {
	pts, err := json.Marshal(cal.Points)
	if err != nil {
		return RunCalibration{}, err
	}
	return RunCalibration{Sample: sample, Kind: string(cal.Kind), Points: string(pts)}, nil
}

// Records converts archived peaks back to extraction records
func (r *Run) Records() []extract.Record {
	out := make([]extract.Record, len(r.Peaks))
	for i, p := range r.Peaks {
		out[i] = extract.Record{Sample: p.Sample, Channel: p.Channel, Scan: p.Scan, SizeBP: p.SizeBP, HeightRFU: p.HeightRFU}
	}
	return out
}
