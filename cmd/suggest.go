package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-mapper/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-mapper/pkg/models"
	"github.com/ekaya-inc/ekaya-mapper/pkg/services"
)

var suggestInputs sessionInputs

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Suggest targets for the unmapped source columns",
	Long: `Suggest targets for every source column that has no target yet.

Known header spellings from the knowledge base are applied first; the
remaining columns are sent to the suggestion provider. Columns that already
have a target are never changed. A provider failure keeps the knowledge-base
results and is reported as a warning.

Examples:
  ekaya-mapper suggest --source bom.csv
  ekaya-mapper suggest --source bom.csv --knowledge triplets.csv`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		s, err := openSession(ctx, suggestInputs)
		if err != nil {
			return err
		}
		defer s.Close()

		report, st, err := s.Suggest(ctx)
		if err != nil {
			return err
		}
		if err := s.save(); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printRows(out, st)
		fmt.Fprintf(out, "\nknowledge base: %d assigned", report.KnowledgeAssigned)
		if report.ProviderRan {
			fmt.Fprintf(out, ", provider: %d assigned", report.ProviderAssigned)
		}
		fmt.Fprintf(out, ", unresolved: %d\n", len(report.Unresolved))
		if report.ProviderErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %v\n", apperrors.FailureLabel(report.ProviderErr), report.ProviderErr)
		}
		if st.HasDuplicates {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: "+services.DuplicateMessage)
		}
		return nil
	},
}

func init() {
	addSessionFlags(suggestCmd, &suggestInputs)
	rootCmd.AddCommand(suggestCmd)
}

func addSessionFlags(cmd *cobra.Command, in *sessionInputs) {
	cmd.Flags().StringVarP(&in.source, "source", "s", "", "source file (default: the one saved in the state file)")
	cmd.Flags().StringVarP(&in.knowledge, "knowledge", "k", "", "knowledge-base file with anchor, positive and negative columns")
	cmd.Flags().StringVar(&in.state, "state", "mapping.yaml", "mapping state file")
}

// printRows writes one line per source column.
func printRows(w io.Writer, st services.SessionState) {
	width := 0
	for _, r := range st.Rows {
		width = max(width, len(r.SourceHeader))
	}
	for _, r := range st.Rows {
		target := r.SelectedTarget
		if target == "" {
			target = "-"
		}
		line := fmt.Sprintf("%-*s  %s", width, r.SourceHeader, target)
		if r.SuggestionOrigin != models.SuggestionOriginNone && r.SuggestedTarget != "" {
			line += fmt.Sprintf("  (%s)", r.SuggestionOrigin)
		}
		if r.IsDuplicate {
			line += "  [duplicate]"
		}
		fmt.Fprintln(w, line)
	}
}
