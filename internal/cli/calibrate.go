package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/chrissnell/fragsize/internal/calibration"
	"github.com/chrissnell/fragsize/internal/ladder"
	"github.com/chrissnell/fragsize/internal/session"
	"github.com/chrissnell/fragsize/internal/trace"
	"github.com/spf13/cobra"
)

var errNoTemplate = errors.New("unattended calibration needs a template (--template)")

func newCalibrateCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:                        "calibrate",
		Short:                      "Calibrate every sample of a trace directory from a template",
		SuggestionsMinimumDistance: 2,
		Long: `
Detect the marker peaks of every sample, assign ladder sizes from a template and
fit each sample's calibration. Samples with fewer than two assigned peaks, or
whose assignment does not calibrate, are skipped.`,
		Example: "  fragsize calibrate --traces run42/ --template gs500.json --save-session run42.session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.runCalibrate(cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringP("traces", "t", "", "Directory of per-sample trace CSV files")
	f.String("template", "", "Template file assigning sizes to marker peaks <JSON>")
	f.StringP("ladder", "l", "", "Size standard (default from config, then "+ladder.Default+")")
	f.StringP("marker", "m", "", "Marker channel (default from config, then auto-selected)")
	f.StringSlice("samples", nil, "Samples to calibrate, in order (default all)")
	f.String("save-template", "", "Write the session template to this file")
	f.String("save-session", "", "Write the session snapshot to this file <msgpack>")
	f.Bool("store", false, "Save the session to the session database")
	o.bindFlags("calibrate", f, "traces", "template", "ladder", "marker", "samples", "save-template", "save-session", "store")
	return cmd
}

func (o *options) runCalibrate(w io.Writer) error {
	get := func(name string) string { return o.v.GetString(o.key("calibrate", name)) }

	dir := get("traces")
	if dir == "" {
		return errors.New("--traces is required")
	}
	if get("template") == "" {
		return errNoTemplate
	}
	tmpl, err := calibration.LoadTemplateFile(get("template"))
	if err != nil {
		return fmt.Errorf("error loading template: %w", err)
	}

	traces, failed, err := trace.LoadDir(dir)
	if err != nil {
		return err
	}
	for path, ferr := range failed {
		o.logger.Warnf("skipping %s: %v", path, ferr)
	}

	l, err := o.ladder(get("ladder"))
	if err != nil {
		return err
	}
	marker := get("marker")
	if marker == "" {
		marker = o.cfg.MarkerChannel
	}

	s, err := session.New(traces, session.Config{
		Samples:       o.v.GetStringSlice(o.key("calibrate", "samples")),
		MarkerChannel: marker,
		Ladder:        l,
		Options:       session.OptionsFromConfig(o.cfg.Detection),
		Template:      tmpl,
	}, o.logger)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SAMPLE\tRESULT\tPOINTS\tTEMPLATE")
	for _, sample := range s.Samples() {
		fmt.Fprintln(tw, calibrateSample(s, sample))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%s\n", s.Summary())

	if path := get("save-template"); path != "" {
		if err := calibration.SaveTemplateFile(path, s.Template()); err != nil {
			return fmt.Errorf("error saving template: %w", err)
		}
	}
	if path := get("save-session"); path != "" {
		if err := session.SaveFile(path, s.Snapshot()); err != nil {
			return fmt.Errorf("error saving session: %w", err)
		}
	}
	if o.v.GetBool(o.key("calibrate", "store")) {
		store, err := session.OpenStore(o.cfg.Storage.SessionDB, o.logger)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Save(s); err != nil {
			return err
		}
		fmt.Fprintf(w, "session %s saved to %s\n", s.ID, o.cfg.Storage.SessionDB)
	}
	return nil
}

// calibrateSample commits or skips one sample and returns its table row
func calibrateSample(s *session.Session, sample string) string {
	st, err := s.Begin(sample)
	if err != nil {
		return fmt.Sprintf("%s\terror: %v\t-\t-", sample, err)
	}

	match := "-"
	if st.Match != nil {
		match = fmt.Sprintf("%d/%d", st.Match.Matched, st.Match.Template)
	}

	if len(st.Assignment) < 2 {
		if err := s.Skip(); err != nil {
			return fmt.Sprintf("%s\terror: %v\t%d\t%s", sample, err, len(st.Assignment), match)
		}
		return fmt.Sprintf("%s\tskipped\t%d\t%s", sample, len(st.Assignment), match)
	}
	cal, err := s.Commit()
	if err != nil {
		if serr := s.Skip(); serr != nil {
			return fmt.Sprintf("%s\terror: %v\t%d\t%s", sample, serr, len(st.Assignment), match)
		}
		return fmt.Sprintf("%s\tskipped: %v\t%d\t%s", sample, err, len(st.Assignment), match)
	}
	return fmt.Sprintf("%s\t%s\t%d\t%s", sample, cal.Kind, len(cal.Points), match)
}

// ladder looks up name, falling back to the configured ladder, then the default one
func (o *options) ladder(name string) (ladder.Ladder, error) {
	table, err := o.ladders()
	if err != nil {
		return ladder.Ladder{}, err
	}
	if name == "" {
		name = o.cfg.Ladder
	}
	if name == "" {
		name = ladder.Default
	}
	return table.Lookup(name)
}
