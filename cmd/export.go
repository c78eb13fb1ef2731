package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-mapper/pkg/services"
	"github.com/ekaya-inc/ekaya-mapper/pkg/tabular"
)

var (
	exportInputs sessionInputs
	exportDir    string
	exportUpload bool
	exportMapped bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the narrow and long export files",
	Long: `Write the mapping as the narrow table (one column per standard target) and
the long table (one row per line and non-standard property).

With --upload both files are delivered to the loader, narrow first. Each file
runs its own upload pipeline; a failure of one does not stop the other.

Examples:
  ekaya-mapper export --out ./out
  ekaya-mapper export --upload
  ekaya-mapper export --mapped`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		s, err := openSession(ctx, exportInputs)
		if err != nil {
			return err
		}
		defer s.Close()

		result, err := s.Export()
		if err != nil {
			return err
		}
		for _, d := range result.Diagnostics {
			fmt.Fprintf(cmd.ErrOrStderr(), "note: %s\n", d)
		}

		if err := os.MkdirAll(exportDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		var mapped *tabular.Table
		if exportMapped {
			if mapped, err = s.MappedData(); err != nil {
				return err
			}
		}
		for _, f := range exportFiles(result, mapped) {
			if err := writeOutput(cmd, filepath.Join(exportDir, f.name), f.content); err != nil {
				return err
			}
		}

		if !exportUpload {
			return nil
		}
		results, err := s.Upload(ctx)
		if err != nil {
			return err
		}
		var firstErr error
		for _, r := range results {
			if r.Err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "upload %s failed: %v\n", r.FileName, r.Err)
				if firstErr == nil {
					firstErr = r.Err
				}
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (job %s)\n", r.FileName, r.JobID)
		}
		return firstErr
	},
}

type outputFile struct {
	name    string
	content string
}

// exportFiles lists the files an export writes, narrow table first. mapped may be nil.
func exportFiles(result *services.ExportResult, mapped *tabular.Table) []outputFile {
	files := []outputFile{
		{cfg.Export.NarrowFileName, result.NarrowCSV()},
		{cfg.Export.LongFileName, result.LongCSV()},
	}
	if mapped != nil {
		files = append(files, outputFile{"mapped_data.csv", mapped.Encode()})
	}
	return files
}

func init() {
	addSessionFlags(exportCmd, &exportInputs)
	exportCmd.Flags().StringVarP(&exportDir, "out", "o", ".", "output directory")
	exportCmd.Flags().BoolVar(&exportUpload, "upload", false, "deliver both files to the loader")
	exportCmd.Flags().BoolVar(&exportMapped, "mapped", false, "also write the sample rows re-headed with their targets")
	rootCmd.AddCommand(exportCmd)
}

func writeOutput(cmd *cobra.Command, path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}
