package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/chrissnell/fragsize/internal/calibration"
	"github.com/chrissnell/fragsize/internal/session"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

func newTemplateCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:                        "template",
		Short:                      "Inspect and convert calibration templates",
		SuggestionsMinimumDistance: 2,
	}

	show := &cobra.Command{
		Use:   "show [file]",
		Short: "Print a template's size -> scan pairs",
		Long: `
Print the size -> scan pairs of a template, ascending by size. The file can be
a JSON or YAML template, or a session snapshot carrying one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := readTemplate(args[0])
			if err != nil {
				return err
			}
			return writeTemplateTable(cmd.OutOrStdout(), t)
		},
	}

	convert := &cobra.Command{
		Use:   "convert [in] [out]",
		Short: "Convert a template between JSON and YAML, or take it from a session snapshot",
		Long: `
Read a template from a JSON (.json) or YAML (.yaml, .yml) file, or from a
session snapshot (any other extension), and write it in the format given by
the output file's extension.`,
		Example: "  fragsize template convert run42.session gs500.json",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := readTemplate(args[0])
			if err != nil {
				return err
			}
			if err := writeTemplate(args[1], t); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d sizes to %s\n", len(t), args[1])
			return nil
		},
	}

	cmd.AddCommand(show, convert)
	return cmd
}

// templateYAML is one entry of the YAML template form
type templateYAML struct {
	SizeBP float64 `yaml:"size_bp"`
	Scan   int     `yaml:"scan"`
}

func templateFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "session"
	}
}

func readTemplate(path string) (calibration.Template, error) {
	switch templateFormat(path) {
	case "json":
		return calibration.LoadTemplateFile(path)
	case "yaml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var entries []templateYAML
		if err := yaml.UnmarshalStrict(data, &entries); err != nil {
			return nil, fmt.Errorf("failed to decode template %s: %w", path, err)
		}
		t := make(calibration.Template, len(entries))
		for _, e := range entries {
			t[e.SizeBP] = e.Scan
		}
		return t, nil
	default:
		snap, err := session.LoadFile(path)
		if err != nil {
			return nil, err
		}
		if len(snap.Template) == 0 {
			return nil, fmt.Errorf("session %s has no template", snap.ID)
		}
		t := make(calibration.Template, len(snap.Template))
		for _, e := range snap.Template {
			t[e.SizeBP] = e.Scan
		}
		return t, nil
	}
}

func writeTemplate(path string, t calibration.Template) error {
	switch templateFormat(path) {
	case "json":
		return calibration.SaveTemplateFile(path, t)
	case "yaml":
		entries := t.Entries()
		out := make([]templateYAML, len(entries))
		for i, e := range entries {
			out[i] = templateYAML{SizeBP: e.SizeBP, Scan: e.Scan}
		}
		data, err := yaml.Marshal(out)
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0o644)
	default:
		return fmt.Errorf("cannot write a template to %s: use a .json or .yaml file", path)
	}
}

func writeTemplateTable(w io.Writer, t calibration.Template) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "SIZE (bp)\tSCAN\t")
	for _, e := range t.Entries() {
		fmt.Fprintf(tw, "%g\t%d\t\n", e.SizeBP, e.Scan)
	}
	return tw.Flush()
}
