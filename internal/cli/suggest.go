package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/linnemanlabs/warden/internal/triage"
)

func newSuggestCmd(open Opener) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "suggest [alert message]",
		Short: "Triage an alert message without storing it",
		Long: `Classifies the alert, retrieves matching runbook sections and prints
the generated suggestion. Nothing is persisted and no chat message is sent.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")

			env, err := openEnv(cmd, open, true)
			if err != nil {
				return err
			}
			defer env.Close()

			if env.Triage == nil {
				return errors.New("triage is not configured")
			}
			if err := ensureIndexed(cmd, env); err != nil {
				return err
			}

			out, err := env.Triage.QuickTriage(cmd.Context(), message)
			if err != nil {
				return fmt.Errorf("triage failed: %w", err)
			}

			if asJSON {
				return printJSON(cmd, out)
			}
			printOutcome(cmd, out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the outcome as JSON")
	return cmd
}

func printOutcome(cmd *cobra.Command, out *triage.Outcome) {
	a, s := out.Alert, out.Suggestion

	cmd.Printf("%s [%s] %s\n", strings.ToUpper(string(a.Severity)), a.AlertType, a.Title)
	if a.AffectedComponent != nil {
		cmd.Printf("Component: %s\n", *a.AffectedComponent)
	}
	if a.SourceSystem != nil {
		cmd.Printf("Source:    %s\n", *a.SourceSystem)
	}
	cmd.Println()
	cmd.Println(s.Text)
	cmd.Println()
	cmd.Printf("Confidence: %s\n", s.Confidence)
	if len(s.RunbookSources) == 0 {
		cmd.Println("Runbooks:   none matched")
	} else {
		cmd.Printf("Runbooks:   %s\n", strings.Join(s.RunbookSources, ", "))
	}
	if s.Model != "" {
		cmd.Printf("Model:      %s (%d in / %d out tokens)\n", s.Model, s.Usage.InputTokens, s.Usage.OutputTokens)
	}
}
