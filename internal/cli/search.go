package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/linnemanlabs/warden/internal/knowledge"
)

const snippetLen = 200

func newSearchCmd(open Opener) *cobra.Command {
	var (
		limit      int
		typeFilter string
		minScore   float64
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search indexed runbooks",
		Long: `Embeds the query and returns the most similar runbook sections,
optionally restricted to one document type (infrastructure, application,
monitoring, general).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := knowledge.ValidateType(typeFilter); err != nil {
				return err
			}

			env, err := openEnv(cmd, open, false)
			if err != nil {
				return err
			}
			defer env.Close()

			if !cmd.Flags().Changed("limit") && env.SearchLimit > 0 {
				limit = env.SearchLimit
			}
			if !cmd.Flags().Changed("min-score") {
				minScore = env.MinScore
			}

			if err := ensureIndexed(cmd, env); err != nil {
				return err
			}

			results, err := env.Knowledge.Search(cmd.Context(), args[0], limit, typeFilter, minScore)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			if asJSON {
				if results == nil {
					results = []knowledge.SearchResult{}
				}
				return printJSON(cmd, results)
			}
			printResults(cmd, results)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", knowledge.DefaultSearchLimit, "maximum number of results")
	cmd.Flags().StringVarP(&typeFilter, "type", "t", "", "restrict results to one document type")
	cmd.Flags().Float64Var(&minScore, "min-score", knowledge.DefaultMinScore, "minimum similarity score (0..1)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}

func printResults(cmd *cobra.Command, results []knowledge.SearchResult) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, r := range results {
		title := r.SourceFile
		if r.Section != "" {
			title += " > " + r.Section
		}
		cmd.Printf("  [%d] %s (%.2f)\n", i+1, title, r.Score)
		if r.Metadata.Type != "" {
			cmd.Printf("      Type: %s\n", r.Metadata.Type)
		}
		cmd.Printf("      %s\n", snippet(r.Content))
		cmd.Println()
	}
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= snippetLen {
		return s
	}
	return string(r[:snippetLen]) + "..."
}
