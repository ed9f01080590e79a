package calibration

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
)

// Template maps ladder sizes (bp) to the scan points they were observed at in a reference
// sample. It is reused to pre-assign the marker peaks of later samples.
type Template map[float64]int

// TemplateEntry is one size → scan pair of a template
type TemplateEntry struct {
	SizeBP float64 `json:"size_bp" msgpack:"size_bp"`
	Scan   int     `json:"scan" msgpack:"scan"`
}

// TemplateFromAssignment inverts an assignment into a template. Should two scans carry the same
// size, the one at the larger scan point is kept.
func TemplateFromAssignment(a Assignment) Template {
	t := make(Template, len(a))
	for _, p := range a.Points() {
		t[p.SizeBP] = p.Scan
	}
	return t
}

// Entries returns the template sorted ascending by size
func (t Template) Entries() []TemplateEntry {
	entries := make([]TemplateEntry, 0, len(t))
	for size, scan := range t {
		entries = append(entries, TemplateEntry{SizeBP: size, Scan: scan})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].SizeBP < entries[j].SizeBP })
	return entries
}

// Clone returns an independent copy
func (t Template) Clone() Template {
	out := make(Template, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the exchange form: an object keyed by the stringified size
func (t Template) MarshalJSON() ([]byte, error) {
	flat := make(map[string]int, len(t))
	for size, scan := range t {
		flat[formatSize(size)] = scan
	}
	return json.Marshal(flat)
}

// UnmarshalJSON decodes the exchange form. Scan values must be integral and fit in [0, MaxInt32].
func (t *Template) UnmarshalJSON(data []byte) error {
	var flat map[string]float64
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	out := make(Template, len(flat))
	for key, value := range flat {
		size, err := strconv.ParseFloat(key, 64)
		if err != nil {
			return fmt.Errorf("template size %q is not a number: %w", key, err)
		}
		if value != math.Trunc(value) {
			return fmt.Errorf("template scan point %g for size %q is not an integer", value, key)
		}
		if value < 0 || value > math.MaxInt32 {
			return fmt.Errorf("template scan point %g for size %q is out of range", value, key)
		}
		out[size] = int(value)
	}
	*t = out
	return nil
}

// SaveTemplate writes the template exchange form, indented
func SaveTemplate(w io.Writer, t Template) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(t)
}

// LoadTemplate reads the template exchange form
func LoadTemplate(r io.Reader) (Template, error) {
	var t Template
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to decode template: %w", err)
	}
	return t, nil
}

// SaveTemplateFile writes a template to path
func SaveTemplateFile(path string, t Template) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := SaveTemplate(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadTemplateFile reads a template from path
func LoadTemplateFile(path string) (Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadTemplate(f)
}

func formatSize(size float64) string {
	return strconv.FormatFloat(size, 'f', -1, 64)
}
