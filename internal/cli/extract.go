package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/chrissnell/fragsize/internal/database"
	"github.com/chrissnell/fragsize/internal/extract"
	"github.com/chrissnell/fragsize/internal/session"
	"github.com/chrissnell/fragsize/internal/trace"
	"github.com/spf13/cobra"
)

func newExtractCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:                        "extract",
		Short:                      "Report the calibrated peaks of a calibrated session",
		SuggestionsMinimumDistance: 2,
		Long: `
Detect the peaks of the sample channels of every calibrated sample and convert
their scan points to fragment sizes. Output is a summary CSV (one row per peak),
a pivot CSV (one block per sample) or the analysis parameters.`,
		Example: "  fragsize extract --traces run42/ --session run42.session --layout pivot -o peaks.csv",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.runExtract(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringP("traces", "t", "", "Directory of per-sample trace CSV files")
	f.StringP("session", "s", "", "Session snapshot file written by 'fragsize calibrate' <msgpack>")
	f.String("session-id", "", "Load the session from the session database instead of a file")
	f.StringSlice("samples", nil, "Samples to report (default every session sample)")
	f.StringSlice("channels", nil, "Sample channels (default from config, then DATA9/10/11)")
	f.Float64("min-height", 0, "Minimum peak height in RFU (default from config)")
	f.String("layout", "summary", "Output layout: summary, pivot or parameters")
	f.StringP("out", "o", "", "Output file (default stdout)")
	f.Bool("archive", false, "Archive the run to the configured PostgreSQL database")
	o.bindFlags("extract", f, "traces", "session", "session-id", "samples", "channels", "min-height", "layout", "out", "archive")
	return cmd
}

func (o *options) runExtract(ctx context.Context, stdout, stderr io.Writer) error {
	get := func(name string) string { return o.v.GetString(o.key("extract", name)) }

	dir := get("traces")
	if dir == "" {
		return errors.New("--traces is required")
	}
	traces, failed, err := trace.LoadDir(dir)
	if err != nil {
		return err
	}
	for path, ferr := range failed {
		o.logger.Warnf("skipping %s: %v", path, ferr)
	}

	snap, err := o.snapshot(get("session"), get("session-id"))
	if err != nil {
		return err
	}
	s, err := session.Restore(traces, snap, o.logger)
	if err != nil {
		return err
	}

	r := extract.Request{
		Samples:   o.v.GetStringSlice(o.key("extract", "samples")),
		Channels:  o.v.GetStringSlice(o.key("extract", "channels")),
		MinHeight: o.cfg.Extraction.MinHeight,
	}
	if len(r.Samples) == 0 {
		r.Samples = s.Samples()
	}
	if len(r.Channels) == 0 {
		r.Channels = o.cfg.SampleChannels
	}
	if len(r.Channels) == 0 {
		r.Channels = trace.SelectSamples(trace.AllChannels(traces))
	}
	if h := o.v.GetFloat64(o.key("extract", "min-height")); h > 0 {
		r.MinHeight = h
	}

	w, closeOut, err := output(get("out"), stdout)
	if err != nil {
		return err
	}

	layout := get("layout")
	if layout == "parameters" {
		err := extract.WriteParameters(w, extract.Parameters{
			Samples:       r.Samples,
			LadderType:    s.Ladder().Name,
			MarkerChannel: s.MarkerChannel(),
			MinHeight:     r.MinHeight,
			AnalysedAt:    time.Now(),
		})
		return errors.Join(err, closeOut())
	}

	e := s.Extractor().WithConfig(o.cfg.Extraction)
	e.BaselineChunks = o.cfg.Detection.BaselineChunks
	res, err := e.Extract(ctx, r)
	if err != nil {
		closeOut()
		return err
	}
	for _, skip := range res.Skipped {
		fmt.Fprintf(stderr, "skipped %s %s: %s\n", skip.Sample, skip.Channel, skip.Message)
	}

	switch layout {
	case "", "summary":
		err = extract.WriteCSV(w, res.Records)
	case "pivot":
		err = extract.WritePivotCSV(w, res.Records)
	default:
		err = fmt.Errorf("unknown layout %q", layout)
	}
	if err := errors.Join(err, closeOut()); err != nil {
		return err
	}

	if o.v.GetBool(o.key("extract", "archive")) {
		id, err := o.archive(ctx, s, r, res)
		if err != nil {
			return fmt.Errorf("error archiving run: %w", err)
		}
		fmt.Fprintf(stderr, "run archived as %s\n", id)
	}
	return nil
}

// snapshot loads a session snapshot from a file or, given an id, from the session database
func (o *options) snapshot(path, id string) (*session.Snapshot, error) {
	switch {
	case path != "":
		return session.LoadFile(path)
	case id != "":
		store, err := session.OpenStore(o.cfg.Storage.SessionDB, o.logger)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.Load(id)
	default:
		return nil, errors.New("--session or --session-id is required")
	}
}

func (o *options) archive(ctx context.Context, s *session.Session, r extract.Request, res *extract.Result) (string, error) {
	if o.cfg.Storage.Archive == nil || o.cfg.Storage.Archive.ConnectionString == "" {
		return "", errors.New("storage.archive is not configured")
	}

	run, err := database.NewRun(database.RunInfo{
		SessionID:     s.ID,
		Ladder:        s.Ladder().Name,
		MarkerChannel: s.MarkerChannel(),
		MinHeight:     r.MinHeight,
	}, res, s.Calibrations())
	if err != nil {
		return "", err
	}

	client := database.NewClient(o.cfg.Storage.Archive.ConnectionString, o.logger)
	if err := client.Connect(); err != nil {
		return "", err
	}
	defer client.Close()

	if err := client.ArchiveRun(ctx, run); err != nil {
		return "", err
	}
	return run.ID, nil
}
