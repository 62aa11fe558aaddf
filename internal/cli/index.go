package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newIndexCmd(open Opener) *cobra.Command {
	var (
		force bool
		file  string
	)
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the runbooks directory",
		Long: `Chunks, embeds and stores every markdown file under the runbooks
directory. With --force the index is cleared first. With --file only that
file is indexed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openEnv(cmd, open, false)
			if err != nil {
				return err
			}
			defer env.Close()
			ctx := cmd.Context()

			if !env.Persistent {
				cmd.PrintErrln("Warning: no database configured; the index will not outlive this command.")
			}

			if file != "" {
				n, err := env.Knowledge.IndexFile(ctx, file, sourceName(env.RunbooksPath, file))
				if err != nil {
					return fmt.Errorf("index %s: %w", file, err)
				}
				cmd.Printf("Indexed %d chunks from %s\n", n, file)
			} else {
				report, err := env.Knowledge.IndexDir(ctx, env.RunbooksPath, force)
				if err != nil {
					return fmt.Errorf("index %s: %w", env.RunbooksPath, err)
				}
				cmd.Printf("Indexed %d chunks from %d files in %s\n", report.Chunks, report.Files, env.RunbooksPath)
				for _, p := range report.Skipped {
					cmd.Printf("  skipped: %s\n", p)
				}
			}

			stats, err := env.Knowledge.Stats(ctx)
			if err != nil {
				return fmt.Errorf("index stats: %w", err)
			}
			cmd.Printf("Index now holds %d chunks (chunk size %d, overlap %d, embedding model %s)\n",
				stats.Chunks, stats.ChunkSize, stats.ChunkOverlap, env.EmbeddingModel)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "clear the index before indexing")
	cmd.Flags().StringVar(&file, "file", "", "index a single markdown file")
	return cmd
}

// sourceName records file relative to the runbooks root when it lies
// inside it, so chunk ids match a full directory index.
func sourceName(root, file string) string {
	if root != "" {
		if rel, err := filepath.Rel(root, file); err == nil && filepath.IsLocal(rel) {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(filepath.Base(file))
}
