package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ReadCSV reads the channels of one sample from CSV: a header row naming the channels, then one
// row per scan point. Empty cells are not allowed; intensities must be non-negative.
func ReadCSV(r io.Reader) (map[string][]float64, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
		if header[i] == "" {
			return nil, fmt.Errorf("empty channel name in column %d", i+1)
		}
	}

	columns := make([][]float64, len(header))
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", line, err)
		}
		if len(rec) != len(header) {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", line, len(rec), len(header))
		}
		for i, cell := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", line, header[i], err)
			}
			if v < 0 {
				return nil, fmt.Errorf("row %d column %s: negative intensity %g", line, header[i], v)
			}
			columns[i] = append(columns[i], v)
		}
	}

	out := make(map[string][]float64, len(header))
	for i, name := range header {
		out[name] = columns[i]
	}
	return out, nil
}

// LoadCSV adds the sample stored in a CSV file to the provider. The sample id is the file's base
// name without extension.
func (m *MemoryProvider) LoadCSV(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	channels, err := ReadCSV(f)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}

	sample := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	names := make([]string, 0, len(channels))
	for name := range channels {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m.Add(sample, name, channels[name])
	}
	return sample, nil
}

// LoadPaths loads each CSV path; files that fail to parse are returned in failed instead of
// aborting the remaining files
func (m *MemoryProvider) LoadPaths(paths []string) (loaded []string, failed map[string]error) {
	failed = make(map[string]error)
	for _, p := range paths {
		sample, err := m.LoadCSV(p)
		if err != nil {
			failed[p] = err
			continue
		}
		loaded = append(loaded, sample)
	}
	return loaded, failed
}

// LoadDir loads every *.csv file in dir in lexical order
func LoadDir(dir string) (*MemoryProvider, map[string]error, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, nil, err
	}
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("no CSV trace files found in %s", dir)
	}
	sort.Strings(paths)

	m := NewMemoryProvider()
	_, failed := m.LoadPaths(paths)
	return m, failed, nil
}
