package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	knowledgeInputs sessionInputs
	knowledgeOut    string
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Work with knowledge-base files",
}

var knowledgeExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the knowledge base enriched with this mapping",
	Long: `Write a knowledge-base file holding the working knowledge set merged with
what this mapping adds: each suggestion kept becomes a positive fact and each
suggestion overridden becomes a negative one. Feed the file back with
--knowledge on the next source.

Examples:
  ekaya-mapper knowledge export --out triplets.csv`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		s, err := openSession(ctx, knowledgeInputs)
		if err != nil {
			return err
		}
		defer s.Close()

		content, err := s.TripletExport()
		if err != nil {
			return err
		}
		return writeOutput(cmd, knowledgeOut, content)
	},
}

func init() {
	addSessionFlags(knowledgeExportCmd, &knowledgeInputs)
	knowledgeExportCmd.Flags().StringVarP(&knowledgeOut, "out", "o", "triplets.csv", "output file")
	knowledgeCmd.AddCommand(knowledgeExportCmd)
	rootCmd.AddCommand(knowledgeCmd)
}
