package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the change log",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := logSink().Clear(); err != nil {
			return fmt.Errorf("clearing log: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", cfg.LogPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clearCmd)
}
