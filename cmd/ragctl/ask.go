package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"realestate-rag/internal/domain"
	"realestate-rag/internal/rag"
)

var (
	askK       int
	askFilters map[string]string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question over the indexed documents",
	Long: `Retrieves the most relevant chunks and streams an answer from the
language model, followed by the numbered sources it may cite.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askK, "k", "k", 0, "number of chunks to retrieve (0 uses the configured default)")
	askCmd.Flags().StringToStringVarP(&askFilters, "filter", "f", nil, "metadata filter as key=value, repeatable")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	req := rag.AskRequest{Question: args[0], K: askK}
	if len(askFilters) > 0 {
		req.Filters = make(domain.Filters, len(askFilters))
		for k, v := range askFilters {
			req.Filters[k] = v
		}
	}

	if jsonOutput {
		resp, err := application.Orchestrator.Ask(ctx, req)
		if err != nil {
			return fmt.Errorf("ask failed: %w", err)
		}
		return printJSON(cmd, resp)
	}

	answer, err := application.Orchestrator.Answer(ctx, req)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}
	for tok, err := range answer.Tokens() {
		if err != nil {
			cmd.Println()
			return fmt.Errorf("answer interrupted: %w", err)
		}
		cmd.Print(tok)
	}
	cmd.Println()

	if len(answer.Sources) == 0 {
		return nil
	}
	cmd.Println()
	cmd.Println("Sources:")
	for _, s := range answer.Sources {
		cmd.Printf("  [%d] %s, page %d", s.Marker, s.Source, s.Page)
		if s.Section != "" {
			cmd.Printf(", %s", s.Section)
		}
		cmd.Printf(" (%.2f)\n", s.Score)
	}
	return nil
}
