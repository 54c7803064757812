package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"realestate-rag/internal/app"
	"realestate-rag/internal/config"
)

var (
	jsonOutput  bool
	application *app.App
)

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Operate the real-estate document index",
	Long: `ragctl ingests real-estate documents into the index, removes them,
rebuilds incomplete embeddings, reports index statistics and answers
questions from the command line. It reads the same configuration as the API.`,
	SilenceUsage:       true,
	PersistentPreRunE:  openApp,
	PersistentPostRunE: closeApp,
}

func init() {
	rootCmd.SetOut(os.Stdout)
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output results as JSON")
}

// openApp loads configuration and prepares the index. Incomplete documents
// are left for the rebuild command.
func openApp(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.SetDefault(app.NewLogger(cfg, os.Stderr))

	ctx := commandContext(cmd)
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	if err := a.Start(ctx, false); err != nil {
		_ = a.Close()
		return fmt.Errorf("failed to start index: %w", err)
	}
	application = a
	return nil
}

func closeApp(_ *cobra.Command, _ []string) error {
	if application == nil {
		return nil
	}
	err := application.Close()
	application = nil
	return err
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

// shortID abbreviates a document id for tables.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
