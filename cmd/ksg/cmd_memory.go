package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var searchTopK int

// memoryCmd groups memory inspection subcommands
var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect the semantic memory graph",
}

// memorySearchCmd searches concepts by text and vector similarity
var memorySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search stored concepts",
	Long: `Searches the memory graph by text match and, when an embedding
engine is configured, vector similarity.

Example:
  ksg memory search "wifi password"`,
	Args: cobra.MinimumNArgs(1),
	RunE: searchMemory,
}

func init() {
	memorySearchCmd.Flags().IntVar(&searchTopK, "top-k", 5, "number of results")
	memoryCmd.AddCommand(memorySearchCmd)
}

func searchMemory(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	logger.Info("Searching memory", zap.String("query", query))

	ctx, cancel := commandContext(cmd)
	defer cancel()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	results, err := rt.graph.SearchConcepts(ctx, query, searchTopK, nil, nil)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}

	for i, r := range results {
		title := r.Node.Props.String("title")
		if title == "" {
			title = r.Node.Props.String("name")
		}
		fmt.Printf("%d. [%.3f] %s %s (%s)\n", i+1, r.Score, r.Node.Kind, title, r.Node.UUID)
		if content := r.Node.Props.String("content"); content != "" {
			fmt.Printf("   %s\n", truncate(content, 120))
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
