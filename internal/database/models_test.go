package database

import (
	"reflect"
	"strings"
	"testing"

	"github.com/chrissnell/fragsize/internal/calibration"
	"github.com/chrissnell/fragsize/internal/extract"
)

func TestNewRun(t *testing.T) {
	cal, err := calibration.Build(calibration.Assignment{1000: 50, 2000: 100})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	res := &extract.Result{
		Records: []extract.Record{
			{Sample: "s1", Channel: "DATA9", Scan: 1500, SizeBP: 75, HeightRFU: 300},
			{Sample: "s1", Channel: "DATA10", Scan: 1600, SizeBP: 80, HeightRFU: 200},
			{Sample: "s2", Channel: "DATA9", Scan: 1200, SizeBP: 60, HeightRFU: 150},
		},
		Skipped: []extract.Skip{{Sample: "s3", Message: "sample has no calibration"}},
	}

	run, err := NewRun(RunInfo{SessionID: "abc", Ladder: "GeneScan 500(-250) ROX", MarkerChannel: "DATA4", MinHeight: 100},
		res, extract.Calibrations{"s1": cal, "s2": cal, "s3": nil})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.ID == "" || run.SessionID != "abc" || run.SkippedCount != 1 {
		t.Errorf("unexpected run header %+v", run)
	}
	if len(run.Calibrations) != 2 || run.Calibrations[0].Sample != "s1" || run.Calibrations[0].Kind != "linear" {
		t.Errorf("unexpected calibrations %+v", run.Calibrations)
	}
	if !strings.Contains(run.Calibrations[0].Points, `"size_bp":50`) {
		t.Errorf("unexpected points JSON %s", run.Calibrations[0].Points)
	}
	if run.Peaks[2].Position != 2 {
		t.Errorf("peak positions not kept")
	}
	if !reflect.DeepEqual(run.Records(), res.Records) {
		t.Errorf("records round trip mismatch: %+v", run.Records())
	}
}
