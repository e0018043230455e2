package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/snaptrace/internal/watch"
	"github.com/fakeyudi/snaptrace/tracer"
)

var rawTail bool

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow the change log and print events as they are recorded",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		n := 0
		t := &watch.Tailer{Path: cfg.LogPath, Logger: logger}
		return t.Run(ctx, func(ev tracer.ChangeEvent) {
			n++
			if rawTail {
				line, err := ev.Encode()
				if err != nil {
					logger.Warn("failed to encode event", "error", err)
					return
				}
				fmt.Fprintln(out, string(line))
				return
			}
			fmt.Fprintf(out, "#%d  %s.%s  %s\n", n, ev.Class, ev.Method, strings.Join(ev.Changes.Fields(), ", "))
		})
	},
}

func init() {
	tailCmd.Flags().BoolVar(&rawTail, "raw", false, "print records as JSON lines")
	rootCmd.AddCommand(tailCmd)
}
