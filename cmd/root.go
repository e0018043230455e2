package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/snaptrace/internal/config"
	"github.com/fakeyudi/snaptrace/internal/logging"
	"github.com/fakeyudi/snaptrace/internal/logview"
	"github.com/fakeyudi/snaptrace/tracer"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

// logger is built from the config and the verbosity flags.
var logger = logging.NewDiscardLogger()

var (
	logPathFlag string
	verbosity   int
	quiet       bool
)

var rootCmd = &cobra.Command{
	Use:   "snaptrace",
	Short: "Record and inspect field-level state changes of instrumented objects",
	Long: `snaptrace reads the change log written by instrumented Go types: one JSON
record per method call that changed the receiver, with the changed fields and
the call stack that led there.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		merged, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = merged
		if logPathFlag != "" {
			cfg.LogPath = logPathFlag
		}

		level := logging.LevelFromVerbosity(verbosity, quiet)
		if verbosity == 0 && !quiet && cfg.LogLevel != "" {
			level = logging.LevelFromString(cfg.LogLevel)
		}
		logger = logging.NewLogger(cmd.ErrOrStderr(), level)
		logger.Debug("configuration loaded", "log_path", cfg.LogPath, "max_depth", cfg.MaxDepth)
		return nil
	},
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetConfig returns the merged configuration for use by subcommands.
func GetConfig() config.Config {
	return cfg
}

// Logger returns the logger configured for this run.
func Logger() *slog.Logger {
	return logger
}

func logSink() *tracer.FileSink {
	return tracer.NewFileSink(cfg.LogPath)
}

// readLog loads the configured log. A missing log reads as empty.
func readLog() (*logview.Log, error) {
	lines, err := logSink().Lines()
	if err != nil {
		return nil, err
	}
	parsed := logview.ParseLines(lines)
	warnMalformed(parsed)
	return parsed, nil
}

func warnMalformed(parsed *logview.Log) {
	for _, lerr := range parsed.Errors {
		logger.Warn("skipping malformed log line", "line", lerr.Line, "error", lerr.Err)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(f.Fd())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logPathFlag, "log", "", "change log path (default from config, else $TMPDIR/log.txt)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all logging")
}
