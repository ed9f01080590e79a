// Package cli is the fragsize command line
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/chrissnell/fragsize/internal/ladder"
	"github.com/chrissnell/fragsize/internal/log"
	"github.com/chrissnell/fragsize/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

// options is the state shared by every command of one invocation
type options struct {
	v      *viper.Viper
	cfg    *config.ConfigData
	logger *zap.SugaredLogger
}

// NewRootCmd builds the command tree. Flags can also be set through FRAGSIZE_ environment
// variables: FRAGSIZE_CONFIG, FRAGSIZE_DEBUG, FRAGSIZE_EXTRACT_MIN_HEIGHT and so on.
func NewRootCmd() *cobra.Command {
	o := &options{v: viper.New()}
	o.v.SetEnvPrefix("FRAGSIZE")
	o.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	o.v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "fragsize",
		Short: "Calibrate capillary electrophoresis traces and size their peaks",
		Long: `
Detect size standard peaks on a marker channel, assign ladder sizes to them
(manually or from a template), fit a scan -> bp calibration per sample and
report calibrated peaks of the sample channels.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: o.setup,
	}

	pf := root.PersistentFlags()
	pf.StringP("config", "c", "", "Path to a configuration source (YAML file or SQLite database)")
	pf.String("config-backend", "yaml", "Configuration backend type: 'yaml' or 'sqlite'")
	pf.Bool("debug", false, "Turn on debugging output")
	pf.String("log-file", "", "Write logs to a rotating file instead of stderr")
	o.bindFlags("", pf, "config", "config-backend", "debug", "log-file")

	root.AddCommand(
		newCalibrateCmd(o),
		newExtractCmd(o),
		newTemplateCmd(o),
		newFormulaCmd(o),
		newLaddersCmd(o),
		newSessionsCmd(o),
		newServeCmd(o),
		newConfigCmd(o),
	)
	return root
}

// Execute runs the command line. Cobra has already printed a returned error.
func Execute() error {
	return NewRootCmd().Execute()
}

// bindFlags binds flags under prefix so commands sharing a flag name keep their own keys
func (o *options) bindFlags(prefix string, fs *pflag.FlagSet, names ...string) {
	for _, name := range names {
		o.v.BindPFlag(o.key(prefix, name), fs.Lookup(name))
	}
}

func (o *options) key(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func (o *options) setup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(o.v.GetString("config"), o.v.GetString("config-backend"))
	if err != nil {
		return err
	}
	o.cfg = cfg

	logOpts := log.Options{
		Debug:      o.v.GetBool("debug") || cfg.Log.Debug,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	}
	if f := o.v.GetString("log-file"); f != "" {
		logOpts.File = f
	}
	if err := log.Init(logOpts); err != nil {
		return err
	}
	o.logger = log.GetSugaredLogger()
	return nil
}

// loadConfig reads the configuration source. Without one the defaults are used.
func loadConfig(cfgFile, cfgBackend string) (*config.ConfigData, error) {
	if cfgFile == "" {
		return config.Defaults(), nil
	}
	filename, _ := filepath.Abs(cfgFile)

	var provider config.ConfigProvider
	switch cfgBackend {
	case "yaml":
		provider = config.NewYAMLProvider(filename)
	case "sqlite":
		p, err := config.NewSQLiteProvider(filename)
		if err != nil {
			return nil, fmt.Errorf("error creating SQLite provider: %w", err)
		}
		provider = p
	default:
		return nil, fmt.Errorf("unsupported configuration backend: %s. Use 'yaml' or 'sqlite'", cfgBackend)
	}
	defer provider.Close()

	cfg, err := provider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error reading config %s: %w", filename, err)
	}
	return cfg, nil
}

// ladders returns the built-in ladders merged with the configured ones
func (o *options) ladders() (*ladder.Table, error) {
	overrides := make([]ladder.Ladder, 0, len(o.cfg.Ladders))
	for _, l := range o.cfg.Ladders {
		overrides = append(overrides, ladder.Ladder{Name: l.Name, Sizes: l.Sizes})
	}
	return ladder.New(overrides)
}

// output opens path for writing, or returns w when path is empty or "-"
func output(path string, w io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return w, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
