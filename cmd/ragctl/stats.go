package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"realestate-rag/internal/domain"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	stats, err := application.Pipeline.Stats(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to compute stats: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd, stats)
	}

	cmd.Printf("Index version:   %s\n", stats.IndexVersion)
	cmd.Printf("Embedding model: %s\n", stats.EmbeddingModel)
	cmd.Printf("Chunker:         %s\n", stats.ChunkerVersion)
	cmd.Printf("Documents:       %d\n", stats.DocumentsTotal)

	statuses := make([]domain.DocumentStatus, 0, len(stats.Documents))
	for s := range stats.Documents {
		statuses = append(statuses, s)
	}
	slices.Sort(statuses)
	for _, s := range statuses {
		cmd.Printf("  %-15s %d\n", s, stats.Documents[s])
	}

	cmd.Printf("Chunks:          %d active, %d unembedded, %d tombstoned\n",
		stats.ChunksActive, stats.ChunksUnembedded, stats.ChunksTombstoned)
	cmd.Printf("Vectors:         %d\n", stats.Vectors)
	t := stats.ChunkTokenStats
	cmd.Printf("Chunk tokens:    min %d, max %d, mean %.2f, p95 %d\n", t.Min, t.Max, t.Mean, t.P95)
	return nil
}
