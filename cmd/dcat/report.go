package main

import (
	"fmt"
	"path/filepath"

	"github.com/franz/drone-catalog/internal/batch"
	"github.com/franz/drone-catalog/internal/report"
	"github.com/franz/drone-catalog/internal/store"
	"github.com/franz/drone-catalog/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate the organization summary of a batch",
	Long: `Generate the organization summary of a batch in Markdown format.

The report includes:
- Video counts (done, failed, pending, left out of the semantic model)
- Mission and classification method distribution
- Bays seen and average confidence
- Files per output folder
- Top errors, name collisions and skipped videos (from the event log)

The report is saved to {output}/{batch}/batch_reports/organization_summary.md
unless --out is given. Without --batch the most recent batch is used.`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("batch", "", "batch ID or name (default: latest)")
	reportCmd.Flags().String("out", "", "output file for the report")
	reportCmd.Flags().String("event-log", "", "path to event log file (optional)")
}

func runReport(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd); err != nil {
		return err
	}

	dbPath := viper.GetString("db")
	util.InfoLog("=== Generating Organization Summary ===")
	util.InfoLog("Catalog: %s", dbPath)

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer db.Close()

	b, err := findBatch(db, viper.GetString("batch"))
	if err != nil {
		return err
	}

	eventLogPath := viper.GetString("event-log")

	util.InfoLog("Analyzing batch %s...", b.Name)
	summary, err := report.GenerateSummaryReport(db, b.ID, eventLogPath)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}
	summary.DatabasePath = dbPath

	outputPath := viper.GetString("out")
	if outputPath == "" {
		outputPath = filepath.Join(b.OutputRoot, b.Name, batch.SummaryCategory, batch.SummaryFileName)
	}

	util.InfoLog("Writing report to: %s", outputPath)
	if err := report.WriteMarkdownReport(summary, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	util.SuccessLog("Report generated successfully!")
	util.InfoLog("")
	util.InfoLog("Summary:")
	util.InfoLog("  Videos: %d", summary.VideosTotal)
	util.InfoLog("  Done: %d", summary.VideosDone)
	if summary.VideosFailed > 0 {
		util.WarnLog("  Failed: %d", summary.VideosFailed)
	}
	for _, m := range summary.Missions {
		util.InfoLog("  %s: %d", m.Name, m.Count)
	}
	if summary.BytesWritten > 0 {
		util.InfoLog("  Bytes written: %s", util.FormatBytes(summary.BytesWritten))
	}

	return nil
}
