package extract

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chrissnell/fragsize/internal/trace"
)

// SummaryHeader is the header row of WriteCSV
var SummaryHeader = []string{"Sample", "Channel", "Size (bp)", "Height (RFU)"}

// WriteCSV writes one row per record: sample, channel display name, size to one decimal and
// height rounded to an integer
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SummaryHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.Sample,
			trace.DisplayName(r.Channel),
			fmt.Sprintf("%.1f", r.SizeBP),
			fmt.Sprintf("%.0f", r.HeightRFU),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePivotCSV writes one block per sample: a row naming the sample, a header row with one
// column per channel (in first-seen order), then the sizes of each channel down its column.
// Shorter columns are padded with empty cells and blocks are separated by an empty row.
func WritePivotCSV(w io.Writer, records []Record) error {
	type block struct {
		sample   string
		channels []string
		sizes    map[string][]string
	}

	var blocks []*block
	bySample := make(map[string]*block)
	for _, r := range records {
		b, ok := bySample[r.Sample]
		if !ok {
			b = &block{sample: r.Sample, sizes: make(map[string][]string)}
			bySample[r.Sample] = b
			blocks = append(blocks, b)
		}
		ch := trace.DisplayName(r.Channel)
		if _, ok := b.sizes[ch]; !ok {
			b.channels = append(b.channels, ch)
		}
		b.sizes[ch] = append(b.sizes[ch], fmt.Sprintf("%.1f", r.SizeBP))
	}

	cw := csv.NewWriter(w)
	for i, b := range blocks {
		if i > 0 {
			if err := cw.Write([]string{""}); err != nil {
				return err
			}
		}
		if err := cw.Write([]string{b.sample}); err != nil {
			return err
		}
		if err := cw.Write(b.channels); err != nil {
			return err
		}

		rows := 0
		for _, ch := range b.channels {
			if n := len(b.sizes[ch]); n > rows {
				rows = n
			}
		}
		for row := 0; row < rows; row++ {
			line := make([]string, len(b.channels))
			for col, ch := range b.channels {
				if row < len(b.sizes[ch]) {
					line[col] = b.sizes[ch][row]
				}
			}
			if err := cw.Write(line); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// Parameters describes an analysis for the parameters table
type Parameters struct {
	Samples       []string
	LadderType    string
	MarkerChannel string
	MinHeight     float64
	AnalysedAt    time.Time
}

// WriteParameters writes the parameters of an analysis as key/value rows
func WriteParameters(w io.Writer, p Parameters) error {
	cw := csv.NewWriter(w)
	rows := [][]string{
		{"Parameter", "Value"},
		{"Analysed samples", strings.Join(p.Samples, ", ")},
		{"Ladder type", p.LadderType},
		{"Marker channel", p.MarkerChannel},
		{"Minimum height (RFU)", fmt.Sprintf("%g", p.MinHeight)},
		{"Analysis date", p.AnalysedAt.UTC().Format("2006-01-02T15:04:05")},
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}
