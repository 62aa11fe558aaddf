// Package cli implements wardenctl, the operator command line for indexing
// runbooks, searching them and trying triage without persisting anything.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/warden/internal/app"
	"github.com/linnemanlabs/warden/internal/cfg"
	"github.com/linnemanlabs/warden/internal/knowledge"
	"github.com/linnemanlabs/warden/internal/triage"
)

// Knowledge is the runbook index as the commands use it.
type Knowledge interface {
	IndexDir(ctx context.Context, root string, force bool) (*knowledge.IndexReport, error)
	IndexFile(ctx context.Context, path, sourceFile string) (int, error)
	Search(ctx context.Context, query string, limit int, typeFilter string, minScore float64) ([]knowledge.SearchResult, error)
	Stats(ctx context.Context) (*knowledge.Stats, error)
}

// Triager runs the pipeline without persisting the result.
type Triager interface {
	QuickTriage(ctx context.Context, message string) (*triage.Outcome, error)
}

// Env is what one command invocation works against.
type Env struct {
	Knowledge Knowledge
	// Triage is nil unless the opener was asked for it.
	Triage Triager

	// Persistent is false when the index lives only in this process; search
	// and suggest then index RunbooksPath first.
	Persistent     bool
	RunbooksPath   string
	SearchLimit    int
	MinScore       float64
	EmbeddingModel string

	Close func()
}

// Opener builds an Env. withTriage asks for the LLM side as well.
type Opener func(ctx context.Context, withTriage bool) (*Env, error)

// AppOpener opens Envs backed by internal/app with the given config.
func AppOpener(c *cfg.Config, logger log.Logger) Opener {
	return func(ctx context.Context, withTriage bool) (*Env, error) {
		var opts []app.Option
		if withTriage {
			if err := c.ValidateLLM(); err != nil {
				return nil, err
			}
			// wardenctl never posts to chat
			opts = append(opts, app.WithNotifiers(nil))
		} else {
			opts = append(opts, app.WithoutTriage())
		}
		if err := c.ValidateKnowledge(); err != nil {
			return nil, err
		}

		a, err := app.New(ctx, c, logger, opts...)
		if err != nil {
			return nil, err
		}
		env := &Env{
			Knowledge:      a.Knowledge,
			Persistent:     a.Persistent(),
			RunbooksPath:   c.RunbooksPath,
			SearchLimit:    c.SearchLimit,
			MinScore:       c.MinScore,
			EmbeddingModel: a.EmbeddingModel,
			Close:          a.Close,
		}
		if a.Service != nil {
			env.Triage = a.Service
		}
		return env, nil
	}
}

// NewRootCmd returns the wardenctl command tree.
func NewRootCmd(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:   "wardenctl",
		Short: "Runbook index and triage tool for warden",
		Long: `wardenctl indexes markdown runbooks, searches them and runs
alert triage against them without storing the result.

Settings come from flags, WARDEN_ environment variables and a .env file.`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newIndexCmd(open),
		newSearchCmd(open),
		newSuggestCmd(open),
		newVersionCmd(),
	)
	return root
}

func openEnv(cmd *cobra.Command, open Opener, withTriage bool) (*Env, error) {
	if open == nil {
		return nil, errors.New("no backend configured")
	}
	env, err := open(cmd.Context(), withTriage)
	if err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}
	if env.Close == nil {
		env.Close = func() {}
	}
	return env, nil
}

// ensureIndexed fills an in-process index from the runbooks directory.
func ensureIndexed(cmd *cobra.Command, env *Env) error {
	if env.Persistent {
		return nil
	}
	report, err := env.Knowledge.IndexDir(cmd.Context(), env.RunbooksPath, false)
	if err != nil {
		return fmt.Errorf("index %s: %w", env.RunbooksPath, err)
	}
	cmd.PrintErrf("No database configured; indexed %d chunks from %d files in memory.\n", report.Chunks, report.Files)
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
