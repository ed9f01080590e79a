package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"

	"github.com/chrissnell/fragsize/pkg/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or import configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := json.MarshalIndent(o.cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}

	importCmd := &cobra.Command{
		Use:     "import [yaml] [db]",
		Short:   "Copy a YAML configuration into a SQLite configuration database",
		Example: "  fragsize config import fragsize.yaml fragsize.db",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewYAMLProvider(args[0]).LoadConfig()
			if err != nil {
				return err
			}

			db, err := config.NewSQLiteProvider(args[1])
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.SaveConfig(cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "imported %s into %s\n", args[0], db.Path())
			return nil
		},
	}

	check := &cobra.Command{
		Use:   "check [yaml] [db]",
		Short: "Compare a YAML configuration with a SQLite configuration database",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			yamlCfg, err := config.NewYAMLProvider(args[0]).LoadConfig()
			if err != nil {
				return fmt.Errorf("error loading YAML config: %w", err)
			}

			db, err := config.NewSQLiteProvider(args[1])
			if err != nil {
				return err
			}
			defer db.Close()
			dbCfg, err := db.LoadConfig()
			if err != nil {
				return fmt.Errorf("error loading SQLite config: %w", err)
			}

			if n := compareConfigs(cmd.OutOrStdout(), yamlCfg, dbCfg); n > 0 {
				return fmt.Errorf("%d sections differ", n)
			}
			return nil
		},
	}

	cmd.AddCommand(show, importCmd, check)
	return cmd
}

// compareConfigs prints one line per top-level section and returns how many differ
func compareConfigs(w io.Writer, a, b *config.ConfigData) int {
	va, vb := reflect.ValueOf(*a), reflect.ValueOf(*b)
	differ := 0
	for i := 0; i < va.NumField(); i++ {
		name := va.Type().Field(i).Name
		if reflect.DeepEqual(va.Field(i).Interface(), vb.Field(i).Interface()) {
			fmt.Fprintf(w, "ok       %s\n", name)
			continue
		}
		differ++
		fmt.Fprintf(w, "differs  %s: %+v != %+v\n", name, va.Field(i).Interface(), vb.Field(i).Interface())
	}
	return differ
}
