package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"realestate-rag/internal/loader"
)

var deleteBySource bool

var deleteCmd = &cobra.Command{
	Use:   "delete [document-id|source]",
	Short: "Remove a document from the index",
	Long: `Removes a document and all of its chunks. Queries already running
finish before the vectors are purged; new queries no longer see the document.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteBySource, "source", false, "treat the argument as a source path or gs:// URI")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	target := args[0]

	if !deleteBySource {
		if err := application.Pipeline.Delete(ctx, target); err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}
		cmd.Printf("Deleted document %s\n", target)
		return nil
	}

	source, err := loader.NormalizeSource(target)
	if err != nil {
		return err
	}
	if err := application.Pipeline.DeleteSource(ctx, source); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	cmd.Printf("Deleted document for %s\n", source)
	return nil
}
