package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/snaptrace/internal/logview"
	"github.com/fakeyudi/snaptrace/internal/report"
	"github.com/fakeyudi/snaptrace/internal/tui"
	"github.com/fakeyudi/snaptrace/internal/watch"
	"github.com/fakeyudi/snaptrace/tracer"
)

var (
	plainOutput bool
	followLog   bool
)

var viewCmd = &cobra.Command{
	Use:   "view [report-file]",
	Short: "Step through the change log, or an exported report, in a TUI",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			events []tracer.ChangeEvent
			source = cfg.LogPath
		)
		if len(args) == 1 {
			if followLog {
				return fmt.Errorf("--follow only applies to the change log")
			}
			source = args[0]
			r, err := loadReport(source, "")
			if err != nil {
				return err
			}
			events = r.Events
		} else {
			parsed, err := readLog()
			if err != nil {
				return err
			}
			events = parsed.Events
		}

		if plainOutput || !isTerminal(cmd.OutOrStdout()) {
			if followLog {
				return fmt.Errorf("--follow needs the TUI; use 'snaptrace tail' for plain output")
			}
			printTimeline(cmd.OutOrStdout(), logview.BuildTimeline(events), true)
			return nil
		}

		var follow func(send func(tracer.ChangeEvent))
		if followLog {
			skip := len(events)
			follow = func(send func(tracer.ChangeEvent)) {
				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				seen := 0
				t := &watch.Tailer{Path: cfg.LogPath, Logger: logger}
				if err := t.Run(ctx, func(ev tracer.ChangeEvent) {
					// The tailer replays the whole log first.
					if seen++; seen <= skip {
						return
					}
					send(ev)
				}); err != nil {
					logger.Error("follow failed", "error", err)
				}
			}
		}
		return tui.Run(events, source, follow)
	},
}

// loadReport reads an exported report; format "" guesses from the extension.
func loadReport(path, format string) (*report.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, err
	}
	var f report.Format
	if format != "" {
		f, err = report.ParseFormat(format)
	} else {
		f, err = report.FormatFromPath(path)
	}
	if err != nil {
		return nil, err
	}
	parser, err := report.ParserFor(f)
	if err != nil {
		return nil, err
	}
	return parser.Parse(data)
}

func init() {
	viewCmd.Flags().BoolVar(&plainOutput, "plain", false, "plain text output instead of TUI")
	viewCmd.Flags().BoolVarP(&followLog, "follow", "f", false, "keep appending events as they are recorded")
	rootCmd.AddCommand(viewCmd)
}
