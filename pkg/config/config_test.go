package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const sampleYAML = `
marker_channel: DATA105
sample_channels: [DATA9, DATA10]
ladder: BTO 550
detection:
  ignore_before: 0
  min_height: 80
  correct_baseline: true
extraction:
  prominence_ratio: 0.5
  parallel: false
ladders:
  - name: Custom
    sizes: [50, 100, 150]
storage:
  archive:
    connection_string: postgres://localhost/fragsize
server:
  port: 9090
log:
  debug: true
`

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Detection.IgnoreBefore != 1500 || cfg.Detection.MinHeight != 50 || cfg.Detection.MinProminence != 25 ||
		cfg.Detection.MinDistance != 10 || cfg.Detection.TemplateTolerance != 40 || cfg.Detection.SnapDistance != 20 {
		t.Errorf("unexpected detection defaults %+v", cfg.Detection)
	}
	if cfg.Detection.CorrectBaseline || cfg.Detection.MaxWidth != 0 {
		t.Errorf("marker baseline correction and width limit must be off by default")
	}
	if cfg.Extraction.MinHeight != 100 || cfg.Extraction.ProminenceRatio != 0.25 || !*cfg.Extraction.Parallel {
		t.Errorf("unexpected extraction defaults %+v", cfg.Extraction)
	}
	if cfg.Server.ListenAddr != "0.0.0.0" || cfg.Server.Port != 8080 {
		t.Errorf("unexpected server defaults %+v", cfg.Server)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestYAMLProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	p := NewYAMLProvider(path)
	defer p.Close()
	if !p.IsReadOnly() {
		t.Errorf("YAML provider must be read-only")
	}

	cfg, err := p.LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.MarkerChannel != "DATA105" || cfg.Ladder != "BTO 550" {
		t.Errorf("unexpected top level %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.SampleChannels, []string{"DATA9", "DATA10"}) {
		t.Errorf("unexpected sample channels %v", cfg.SampleChannels)
	}
	if cfg.Detection.IgnoreBefore != 0 {
		t.Errorf("explicit zero ignore_before must be kept, got %d", cfg.Detection.IgnoreBefore)
	}
	if cfg.Detection.MinHeight != 80 || cfg.Detection.MinProminence != 25 || !cfg.Detection.CorrectBaseline {
		t.Errorf("unexpected detection %+v", cfg.Detection)
	}
	if cfg.Detection.TemplateTolerance != 40 || cfg.Detection.BaselineChunks != 30 {
		t.Errorf("defaults not applied to detection %+v", cfg.Detection)
	}
	if cfg.Extraction.ProminenceRatio != 0.5 || *cfg.Extraction.Parallel || cfg.Extraction.MinHeight != 100 {
		t.Errorf("unexpected extraction %+v", cfg.Extraction)
	}
	if len(cfg.Ladders) != 1 || cfg.Ladders[0].Name != "Custom" {
		t.Errorf("unexpected ladders %+v", cfg.Ladders)
	}
	if cfg.Storage.Archive == nil || cfg.Storage.Archive.ConnectionString != "postgres://localhost/fragsize" {
		t.Errorf("unexpected storage %+v", cfg.Storage)
	}
	if cfg.Server.Port != 9090 || cfg.Server.ListenAddr != "0.0.0.0" || !cfg.Log.Debug {
		t.Errorf("unexpected server/log %+v %+v", cfg.Server, cfg.Log)
	}
}

func TestParseYAMLErrors(t *testing.T) {
	tests := map[string]string{
		"unknown key":          "bogus: 1\n",
		"negative height":      "detection:\n  min_height: -5\n",
		"cert without key":     "server:\n  cert: a.pem\n",
		"ladder with no sizes": "ladders:\n  - name: Empty\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseYAML([]byte(doc)); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}

func TestSQLiteProvider(t *testing.T) {
	p, err := NewSQLiteProvider(filepath.Join(t.TempDir(), "config.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	// an empty database yields the defaults
	cfg, err := p.LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(cfg, Defaults()) {
		t.Errorf("expected defaults, got %+v", cfg)
	}

	want, err := ParseYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := p.SaveConfig(want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := p.LoadConfig()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n%+v\n%+v", got, want)
	}
}
