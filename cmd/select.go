package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-mapper/pkg/services"
)

var selectInputs sessionInputs

var selectCmd = &cobra.Command{
	Use:   "select <source-header> <target>",
	Short: "Set the target of one source column",
	Long: `Set the target of one source column. The target is matched against the
catalog ignoring case; "N/A" marks the column as having no target and an
empty string clears it.

The change is learned: the header is added to the chosen target's synonyms
and, when it overrides a suggestion, to the suggested target's antonyms. A
failed catalog update is reported but does not undo the selection.

Examples:
  ekaya-mapper select "Qty Req" Quantity
  ekaya-mapper select Remarks N/A
  ekaya-mapper select Remarks ""`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		header, target := args[0], args[1]
		ctx := context.Background()

		s, err := openSession(ctx, selectInputs)
		if err != nil {
			return err
		}
		defer s.Close()

		before := s.State().HasDuplicates
		st, feedbackErrs, err := s.Select(ctx, header, target)
		if err != nil {
			return err
		}
		if err := s.save(); err != nil {
			return err
		}

		for _, fe := range feedbackErrs {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", fe)
		}
		printRows(cmd.OutOrStdout(), st)
		switch {
		case st.HasDuplicates:
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: "+services.DuplicateMessage)
		case before:
			fmt.Fprintln(cmd.OutOrStdout(), services.DuplicatesResolvedMessage)
		}
		return nil
	},
}

func init() {
	addSessionFlags(selectCmd, &selectInputs)
	rootCmd.AddCommand(selectCmd)
}
