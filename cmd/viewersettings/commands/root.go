// Package commands implements the viewersettings CLI.
package commands

import (
	stderr "errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/objectfs/viewersettings/internal/config"
	"github.com/objectfs/viewersettings/internal/lockreg"
	"github.com/objectfs/viewersettings/internal/metrics"
	"github.com/objectfs/viewersettings/internal/storage"
	"github.com/objectfs/viewersettings/pkg/errors"
	"github.com/objectfs/viewersettings/pkg/utils"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
)

// app carries the state shared by all subcommands of one invocation.
type app struct {
	cfgFile  string
	logLevel string
	yes      bool
	no       bool

	// confirm asks the user a yes/no question; replaced in tests.
	confirm func(label string) (bool, error)

	cfg       *config.Configuration
	logger    *slog.Logger
	logCloser io.Closer
	registry  *lockreg.Registry
	factory   *storage.Factory
	collector *metrics.Collector
}

// ErrorMessage renders err for the terminal. Settings errors meant for users
// get their short message and location; other settings errors keep the full
// chain after the generic notice.
func ErrorMessage(err error) string {
	var se *errors.SettingsError
	if !stderr.As(err, &se) {
		return err.Error()
	}
	msg := se.UserFacingMessage()
	if !se.UserFacing {
		return fmt.Sprintf("%s (%v)", msg, err)
	}
	if se.Resource != "" {
		msg += ": " + se.Resource
	}
	return msg
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{confirm: promptConfirm})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "viewersettings",
		Short: "Inspect and edit persisted dataset viewer settings",
		Long: `viewersettings opens the viewer settings stored next to a dataset on a local
filesystem, S3 or Google Cloud Storage, using the same locking rules as the viewer.

Locations may be paths, file://, s3://, gs:// or mem:// URIs, or S3 and Google
Cloud HTTP links. Locations naming a directory or bucket get the configured
settings file name appended.

Use "viewersettings [command] --help" for more information about a command.`,
		Version:           fmt.Sprintf("%s (commit: %s)", Version, Commit),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) { a.teardown() },
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (DEBUG, INFO, WARN, ERROR)")
	root.PersistentFlags().BoolVar(&a.yes, "yes", false, "continue read-only without asking when write access is refused")
	root.PersistentFlags().BoolVar(&a.no, "no", false, "give up without asking when write access is refused")
	root.MarkFlagsMutuallyExclusive("yes", "no")

	root.AddCommand(newShowCmd(a))
	root.AddCommand(newPutCmd(a))
	root.AddCommand(newHoldCmd(a))
	root.AddCommand(newConfigCmd(a))
	root.CompletionOptions.DisableDefaultCmd = true
	return root
}

// setup loads the configuration and builds the shared services.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg := config.NewDefault()
	if a.cfgFile != "" {
		if err := cfg.LoadFromFile(a.cfgFile); err != nil {
			return err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Global.LogLevel = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closer, err := utils.SetupLogging(cfg.LogOptions())
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	slog.SetDefault(logger)

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   cfg.Monitoring.Metrics.Enabled,
		Address:   cfg.Monitoring.Metrics.Address,
		Path:      cfg.Monitoring.Metrics.Path,
		Namespace: cfg.Monitoring.Metrics.Namespace,
	}, logger)
	if err != nil {
		_ = closer.Close()
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.logCloser = closer
	a.registry = lockreg.New()
	a.factory = storage.NewFactory(cfg)
	a.collector = collector
	return nil
}

func (a *app) teardown() {
	if a.logCloser != nil {
		_ = a.logCloser.Close()
		a.logCloser = nil
	}
}
