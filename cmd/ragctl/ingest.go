package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"realestate-rag/internal/indexer"
	"realestate-rag/internal/loader"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path|gs://bucket/object]...",
	Short: "Ingest documents into the index",
	Long: `Ingests files, directories (recursively) or gs:// objects.
Documents whose content is already indexed with the current embedding model
are skipped. With no arguments the configured data directory is ingested.`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	if len(args) == 0 {
		args = []string{application.Config.DataDir}
	}

	var sources []string
	for _, arg := range args {
		if strings.HasPrefix(arg, "gs://") {
			sources = append(sources, arg)
			continue
		}
		path, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", arg, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			sources = append(sources, path)
			continue
		}
		files, err := loader.Scan(ctx, path)
		if err != nil {
			return err
		}
		for _, f := range files {
			sources = append(sources, f.AbsPath)
		}
	}

	report, err := application.Pipeline.IngestAll(ctx, sources)
	if report == nil {
		return err
	}
	if jsonOutput {
		if perr := printJSON(cmd, report); perr != nil {
			return perr
		}
		return err
	}
	printIngestReport(cmd, report)
	return err
}

func printIngestReport(cmd *cobra.Command, report *indexer.IngestReport) {
	for _, res := range report.Results {
		if res == nil {
			continue
		}
		status := string(res.Status)
		if res.Skipped {
			status = "unchanged"
		}
		cmd.Printf("  %-15s %-12s %s", status, shortID(res.DocumentID), res.Source)
		if !res.Skipped && res.Chunks > 0 {
			cmd.Printf(" (%d chunks", res.Chunks)
			if res.ChunksFailed > 0 {
				cmd.Printf(", %d not embedded", res.ChunksFailed)
			}
			cmd.Print(")")
		}
		cmd.Println()
	}
	cmd.Printf("%d document(s): %d indexed, %d partial, %d unchanged, %d failed\n",
		report.Total, report.Indexed, report.Partial, report.Skipped, report.Failed)
}
