package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/studysync"
)

var (
	exportOutputPath string

	importStrategy string
	importDryRun   bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every collection to a JSON file",
	Long: `Write the local records of every collection to a JSON backup.

Examples:
  studysync export -o backup.json
  studysync --profile work export -o work.json`,
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import collections from a JSON backup",
	Long: `Import a backup written by export.

Strategies:
  merge    overlay imported fields onto records with the same id, add the rest (default)
  skip     keep existing records, add only new ids
  replace  replace each imported collection wholesale

Use --dry-run to report what would change without writing anything.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutputPath, "output", "o", "", "Output file path (required)")
	_ = exportCmd.MarkFlagRequired("output")

	importCmd.Flags().StringVar(&importStrategy, "strategy", "merge", "Merge strategy: merge, skip, replace")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Report changes without writing")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

// ExportOutput for JSON output.
type ExportOutput struct {
	FilePath string `json:"file_path"`
	FileSize int64  `json:"file_size"`
	Duration string `json:"duration"`
}

func runExport(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := ensureParentDir(exportOutputPath); err != nil {
		return err
	}
	f, err := os.Create(exportOutputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	start := time.Now()
	if err := client.ExportJSON(cmd.Context(), f); err != nil {
		f.Close()
		os.Remove(exportOutputPath)
		return fmt.Errorf("export failed: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	duration := time.Since(start)

	var size int64
	if fi, statErr := os.Stat(exportOutputPath); statErr == nil {
		size = fi.Size()
	}

	if outputJSON {
		return outputAsJSON(cmd, ExportOutput{
			FilePath: exportOutputPath,
			FileSize: size,
			Duration: duration.Round(time.Millisecond).String(),
		})
	}

	out := cmd.OutOrStdout()
	printField(out, 0, "File size", formatBytes(size))
	printField(out, 0, "Duration", duration.Round(time.Millisecond).String())
	printField(out, 0, "Output", exportOutputPath)
	printSuccess(out, "Export complete")
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	strategy, err := studysync.ParseMergeStrategy(importStrategy)
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.ImportJSON(cmd.Context(), f, strategy, importDryRun)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, result)
	}

	out := cmd.OutOrStdout()
	if importDryRun {
		printInfo(out, "Dry run: nothing was written")
	}
	printField(out, 0, "Strategy", string(strategy))
	printField(out, 0, "Total", fmt.Sprint(result.Total))
	printField(out, 0, "Created", fmt.Sprint(result.Created))
	printField(out, 0, "Merged", fmt.Sprint(result.Merged))
	printField(out, 0, "Skipped", fmt.Sprint(result.Skipped))
	for _, msg := range result.Errors {
		printWarning(out, "%s", scrubSensitiveData(msg))
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("import finished with %d errors", len(result.Errors))
	}
	if !importDryRun {
		printSuccess(out, "Import complete")
	}
	return nil
}

// ensureParentDir creates the parent directory of path if it doesn't exist.
func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	return nil
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %s", float64(b)/float64(div), strings.Split("KB MB GB TB", " ")[exp])
}
