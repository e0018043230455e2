package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/snaptrace/internal/report"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the change log as a JSON, YAML or Markdown report",
	RunE: func(cmd *cobra.Command, args []string) error {
		name := exportFormat
		if name == "" && exportOutput != "" {
			if f, err := report.FormatFromPath(exportOutput); err == nil {
				name = string(f)
			}
		}
		if name == "" {
			name = cfg.DefaultFormat
		}
		format, err := report.ParseFormat(name)
		if err != nil {
			return err
		}
		renderer, err := report.RendererFor(format)
		if err != nil {
			return err
		}

		parsed, err := readLog()
		if err != nil {
			return err
		}
		data, err := renderer.Render(report.New(cfg.LogPath, parsed.Events))
		if err != nil {
			return fmt.Errorf("rendering report: %w", err)
		}

		if exportOutput == "" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(exportOutput, data, 0o644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d events to %s\n", len(parsed.Events), exportOutput)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "json, yaml or markdown (default from config)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}
