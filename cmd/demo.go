package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/snaptrace/internal/demo"
	"github.com/fakeyudi/snaptrace/tracer"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the instrumented demo program and print its change log",
	RunE: func(cmd *cobra.Command, args []string) error {
		sink := logSink()
		if err := sink.Clear(); err != nil {
			return fmt.Errorf("clearing log: %w", err)
		}

		rec := tracer.NewRecorder(sink)
		demo.Run(rec, tracer.WithMaxDepth(cfg.MaxDepth), tracer.WithLogger(logger))

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Done. Logs written to %s\n", sink.Path)
		lines, err := sink.Lines()
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			fmt.Fprintln(out, "No log file created (no changes detected)")
			return nil
		}
		for _, line := range lines {
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}
