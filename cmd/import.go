package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/snaptrace/tracer"
)

var importFormat string

var importCmd = &cobra.Command{
	Use:   "import <report-file>",
	Short: "Append the events of an exported report to the change log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := loadReport(args[0], importFormat)
		if err != nil {
			return err
		}
		rec := tracer.NewRecorder(logSink())
		for _, ev := range r.Events {
			if err := rec.Record(ev); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d events into %s\n", len(r.Events), cfg.LogPath)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFormat, "format", "", "report format (default from the file extension)")
	rootCmd.AddCommand(importCmd)
}
