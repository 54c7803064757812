package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Re-embed incomplete documents",
	Long: `Re-embeds the stored chunks of documents that are failed-partial or
were embedded with a different model than the configured one.`,
	Args: cobra.NoArgs,
	RunE: runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, _ []string) error {
	report, err := application.Pipeline.Rebuild(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd, report)
	}
	cmd.Printf("Rebuilt %d document(s): %d chunk(s) embedded, %d failed, %d document(s) now indexed\n",
		report.Documents, report.ChunksEmbedded, report.ChunksFailed, report.Indexed)
	return nil
}
