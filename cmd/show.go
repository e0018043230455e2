package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the raw change log, one record per line",
	RunE: func(cmd *cobra.Command, args []string) error {
		lines, err := logSink().Lines()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(lines) == 0 {
			fmt.Fprintf(out, "No changes recorded in %s\n", cfg.LogPath)
			return nil
		}
		for _, line := range lines {
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
