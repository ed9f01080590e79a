package cli

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTrace writes a sample CSV with marker peaks on DATA4 and one sample peak on DATA9
func writeTrace(t *testing.T, dir, sample string, shift int) {
	t.Helper()

	markers := []int{1600, 1800, 2000, 2200, 2400}
	var b strings.Builder
	b.WriteString("DATA4,DATA9\n")
	for i := 0; i < 3000; i++ {
		var marker float64
		for _, c := range markers {
			d := float64(i - c - shift)
			marker += 500 * math.Exp(-d*d/(2*4*4))
		}
		d := float64(i - 2100 - shift)
		fmt.Fprintf(&b, "%.3f,%.3f\n", marker, 1000*math.Exp(-d*d/(2*4*4)))
	}
	if err := os.WriteFile(filepath.Join(dir, sample+".csv"), []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCalibrateAndExtract(t *testing.T) {
	dir := t.TempDir()
	traces := filepath.Join(dir, "traces")
	if err := os.Mkdir(traces, 0o755); err != nil {
		t.Fatal(err)
	}
	writeTrace(t, traces, "s1", 0)
	writeTrace(t, traces, "s2", 10)

	tmpl := filepath.Join(dir, "gs500.json")
	if err := os.WriteFile(tmpl, []byte(`{"35": 1600, "50": 1800, "75": 2000, "100": 2200, "139": 2400}`), 0o644); err != nil {
		t.Fatal(err)
	}
	sess := filepath.Join(dir, "run.session")

	out, _, err := run(t, "calibrate", "--traces", traces, "--template", tmpl, "--save-session", sess)
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if !strings.Contains(out, "calibrated 2 of 2 samples") {
		t.Errorf("unexpected calibrate output:\n%s", out)
	}
	if !strings.Contains(out, "5/5") {
		t.Errorf("expected full template match in:\n%s", out)
	}

	t.Run("summary", func(t *testing.T) {
		peaks := filepath.Join(dir, "peaks.csv")
		if _, _, err := run(t, "extract", "--traces", traces, "--session", sess, "-o", peaks); err != nil {
			t.Fatalf("extract: %v", err)
		}
		data, err := os.ReadFile(peaks)
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 3 || lines[0] != "Sample,Channel,Size (bp),Height (RFU)" {
			t.Fatalf("unexpected export:\n%s", data)
		}
		if !strings.HasPrefix(lines[1], "s1,Blue,") || !strings.HasPrefix(lines[2], "s2,Blue,") {
			t.Errorf("unexpected rows:\n%s", data)
		}
	})

	t.Run("parameters", func(t *testing.T) {
		out, _, err := run(t, "extract", "--traces", traces, "--session", sess, "--layout", "parameters")
		if err != nil {
			t.Fatalf("extract: %v", err)
		}
		if !strings.Contains(out, "Marker channel,DATA4") || !strings.Contains(out, "Analysed samples") {
			t.Errorf("unexpected parameters:\n%s", out)
		}
	})

	t.Run("template from session", func(t *testing.T) {
		yml := filepath.Join(dir, "template.yaml")
		if _, _, err := run(t, "template", "convert", sess, yml); err != nil {
			t.Fatalf("convert: %v", err)
		}
		out, _, err := run(t, "template", "show", yml)
		if err != nil {
			t.Fatalf("show: %v", err)
		}
		if !strings.Contains(out, "139") || !strings.Contains(out, "2400") {
			t.Errorf("unexpected template table:\n%s", out)
		}
	})

	t.Run("errors", func(t *testing.T) {
		if _, _, err := run(t, "calibrate", "--traces", traces); err != errNoTemplate {
			t.Errorf("expected errNoTemplate, got %v", err)
		}
		if _, _, err := run(t, "extract", "--traces", traces); err == nil {
			t.Error("expected an error without a session")
		}
		if _, _, err := run(t, "extract", "--traces", traces, "--session", sess, "--layout", "wide"); err == nil {
			t.Error("expected an error for an unknown layout")
		}
		if _, _, err := run(t, "calibrate", "--traces", traces, "--template", tmpl, "--ladder", "nope"); err == nil {
			t.Error("expected an error for an unknown ladder")
		}
	})
}

func TestCalibrateSkipsSparseSamples(t *testing.T) {
	dir := t.TempDir()
	writeTrace(t, dir, "s1", 0)

	tmpl := filepath.Join(dir, "one.json")
	if err := os.WriteFile(tmpl, []byte(`{"35": 1600}`), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := run(t, "calibrate", "--traces", dir, "--template", tmpl)
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if !strings.Contains(out, "skipped") || strings.Contains(out, "error:") {
		t.Errorf("expected a skipped row in:\n%s", out)
	}
	if !strings.Contains(out, "calibrated 0 of 1 samples") {
		t.Errorf("unexpected summary in:\n%s", out)
	}
}

func TestFormula(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
		wantErr  bool
	}{
		{name: "default", args: []string{"formula", "--rfu", "300", "--rfu", "100"}, expected: "= 75.0000"},
		{name: "named", args: []string{"formula", "WT / MUT", "--var", "WT=300", "--var", "MUT=150"}, expected: "WT / MUT = 2.0000"},
		{name: "bad pair", args: []string{"formula", "--var", "WT"}, wantErr: true},
		{name: "unknown variable", args: []string{"formula", "A + C", "--rfu", "1"}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, _, err := run(t, tc.args...)
			if tc.wantErr {
				if err == nil {
					t.Errorf("expected an error, got output %q", out)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(out, tc.expected) {
				t.Errorf("expected %q in %q", tc.expected, out)
			}
		})
	}
}

func TestLadders(t *testing.T) {
	out, _, err := run(t, "ladders")
	if err != nil {
		t.Fatalf("ladders: %v", err)
	}
	for _, name := range []string{"GeneScan 500(-250) ROX *", "BTO 550", "BTO 560"} {
		if !strings.Contains(out, name) {
			t.Errorf("expected %q in:\n%s", name, out)
		}
	}
}

func TestConfigImport(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "fragsize.yaml")
	db := filepath.Join(dir, "fragsize.db")
	cfg := `
marker_channel: DATA105
ladder: Custom
ladders:
  - name: Custom
    sizes: [50, 100, 150]
`
	if err := os.WriteFile(yml, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := run(t, "config", "import", yml, db); err != nil {
		t.Fatalf("import: %v", err)
	}

	out, _, err := run(t, "--config", db, "--config-backend", "sqlite", "config", "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, `"marker_channel": "DATA105"`) || !strings.Contains(out, `"name": "Custom"`) {
		t.Errorf("unexpected configuration:\n%s", out)
	}

	out, _, err = run(t, "--config", db, "--config-backend", "sqlite", "ladders")
	if err != nil {
		t.Fatalf("ladders: %v", err)
	}
	if !strings.Contains(out, "Custom *") {
		t.Errorf("expected the configured ladder to be marked:\n%s", out)
	}

	out, _, err = run(t, "config", "check", yml, db)
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ok       Ladders") {
		t.Errorf("unexpected comparison:\n%s", out)
	}

	if _, _, err := run(t, "--config", yml, "--config-backend", "toml", "ladders"); err == nil {
		t.Error("expected an error for an unknown backend")
	}
}

func TestSessionsStore(t *testing.T) {
	dir := t.TempDir()
	traces := filepath.Join(dir, "traces")
	if err := os.Mkdir(traces, 0o755); err != nil {
		t.Fatal(err)
	}
	writeTrace(t, traces, "s1", 0)

	tmpl := filepath.Join(dir, "gs500.json")
	if err := os.WriteFile(tmpl, []byte(`{"35": 1600, "50": 1800, "75": 2000}`), 0o644); err != nil {
		t.Fatal(err)
	}
	yml := filepath.Join(dir, "fragsize.yaml")
	if err := os.WriteFile(yml, []byte("storage:\n  session_db: "+filepath.Join(dir, "sessions.db")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := run(t, "--config", yml, "calibrate", "--traces", traces, "--template", tmpl, "--store")
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	var id string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "session ") {
			id = strings.Fields(line)[1]
		}
	}
	if id == "" {
		t.Fatalf("no session id in:\n%s", out)
	}

	out, _, err = run(t, "--config", yml, "sessions", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "1/1") {
		t.Errorf("unexpected listing:\n%s", out)
	}

	snap := filepath.Join(dir, "exported.session")
	if _, _, err := run(t, "--config", yml, "sessions", "export", id, snap); err != nil {
		t.Fatalf("export: %v", err)
	}
	out, _, err = run(t, "--config", yml, "extract", "--traces", traces, "--session-id", id)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(out, "s1,Blue,") {
		t.Errorf("unexpected export:\n%s", out)
	}

	if _, _, err := run(t, "--config", yml, "sessions", "delete", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := run(t, "--config", yml, "sessions", "delete", id); err == nil {
		t.Error("expected an error deleting a missing session")
	}
}
