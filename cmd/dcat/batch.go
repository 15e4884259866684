package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/franz/drone-catalog/internal/batch"
	"github.com/franz/drone-catalog/internal/classify"
	"github.com/franz/drone-catalog/internal/metrics"
	"github.com/franz/drone-catalog/internal/place"
	"github.com/franz/drone-catalog/internal/store"
	"github.com/franz/drone-catalog/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir>...",
	Short: "Process folders of drone videos into an organized dataset",
	Long: `Run the full pipeline over one or more source folders:

1. Discovery: find every video (.mp4 .mov .m4v .avi .mkv .mts .lrv .insv)
2. Extraction: ffprobe, container tags, DJI XMP, sidecar EXIF and SRT
3. Classification: BOX / SAFETY / UNKNOWN from folder names and tags
4. Export: fact and dimension tables of the semantic model
5. Output: per-video documents, thumbnails, CSVs, workbook, dataset index
6. Placement (optional): copy, move or link sources into {mission}/videos
7. Summary: batch_reports/organization_summary.md

Progress is written to batch_progress.json in the batch folder and every
video is recorded in the catalog, so an interrupted batch can be continued
with --resume.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringP("output", "o", "", "output root directory (required)")
	batchCmd.Flags().String("batch-name", "", "batch folder name (default: batch_<timestamp>)")
	batchCmd.Flags().IntP("concurrency", "j", 0, "number of concurrent workers (default: number of CPUs)")
	batchCmd.Flags().String("rules", "", "classification rules YAML")
	batchCmd.Flags().Bool("no-thumbnails", false, "skip thumbnail generation")
	batchCmd.Flags().Bool("no-workbook", false, "skip the semantic_model.xlsx workbook")
	batchCmd.Flags().String("place", "none", "place source videos: none, copy, move, hardlink or symlink")
	batchCmd.Flags().String("verify", "size", "placement verification: none, size or hash")
	batchCmd.Flags().Bool("resume", false, "continue the latest batch with the same name")
	batchCmd.Flags().Float64("max-error-pct", 50, "abort when more than this percentage of videos fail (0 disables)")
	batchCmd.Flags().Int("retries", 1, "extra attempts per failed video")
	batchCmd.Flags().Duration("retry-delay", time.Second, "delay before a retry, multiplied by the attempt number")
	batchCmd.Flags().Int("save-every", 10, "write batch_progress.json after this many videos")
	batchCmd.Flags().String("metrics-file", "", "write Prometheus metrics to this textfile")
	batchCmd.Flags().StringSlice("skip-sources", nil, "metadata sources to skip (ffprobe, tags, xmp, exif, srt)")
	batchCmd.Flags().StringSlice("extensions", nil, "additional video extensions")
	batchCmd.Flags().Bool("include-hidden", false, "include hidden files and folders")
	batchCmd.Flags().Bool("no-fs-retry", false, "do not retry failed output writes")
	batchCmd.Flags().Bool("nas-mode", false, "tune for network storage (default: auto-detect)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	output := viper.GetString("output")
	if output == "" {
		return fmt.Errorf("%w: output directory is required (use --output/-o or set in config)", util.ErrInvalidConfig)
	}
	for _, src := range args {
		if _, err := os.Stat(src); err != nil {
			return fmt.Errorf("source %s: %w", src, err)
		}
	}

	placeMode, err := place.ParseMode(GetConfigString("place", "none"))
	if err != nil {
		return err
	}
	classifyCfg, err := classifyConfig()
	if err != nil {
		return err
	}
	semanticCfg, err := semanticConfig()
	if err != nil {
		return err
	}
	skip, err := skipSources()
	if err != nil {
		return err
	}

	dbPath := viper.GetString("db")
	util.InfoLog("Opening catalog: %s", dbPath)
	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer db.Close()

	logger := openEventLogger()
	defer logger.Close()

	m := metrics.New()
	metricsFile := viper.GetString("metrics-file")
	defer func() {
		if err := m.WriteTextfile(metricsFile); err != nil {
			util.WarnLog("Failed to write metrics: %v", err)
		}
	}()

	retries := viper.GetInt("retries")
	if retries < 0 {
		retries = 0
	}

	cfg := batch.DefaultConfig()
	var nasMode *bool
	if cmd.Flags().Changed("nas-mode") || viper.InConfig("nas-mode") {
		v := viper.GetBool("nas-mode")
		nasMode = &v
	}
	storage := util.TuneForStorage(args, output, nasMode, GetConfigInt("concurrency", cfg.Concurrency), util.FSRetryConfig())
	fsRetry := storage.FSRetry
	util.DebugLog("Storage: %s", storage)

	cfg.OutputRoot = output
	cfg.BatchName = viper.GetString("batch-name")
	cfg.Store = db
	cfg.Logger = logger
	cfg.Metrics = m
	cfg.Concurrency = storage.Workers
	cfg.Attempts = retries + 1
	cfg.RetryDelay = viper.GetDuration("retry-delay")
	cfg.MaxErrorPct = viper.GetFloat64("max-error-pct")
	cfg.SaveEvery = GetConfigInt("save-every", cfg.SaveEvery)
	cfg.Resume = GetConfigBool("resume")
	cfg.Thumbnails = !GetConfigBool("no-thumbnails")
	cfg.Workbook = !GetConfigBool("no-workbook")
	cfg.Classify = classifyCfg
	cfg.Semantic = semanticCfg
	cfg.SkipSources = skip
	cfg.ScanExts = GetConfigStringSlice("extensions")
	cfg.IncludeHidden = GetConfigBool("include-hidden")
	cfg.FSRetry = fsRetry
	cfg.Placement = place.Config{
		Mode:        placeMode,
		VerifyMode:  GetConfigString("verify", place.VerifySize),
		Concurrency: storage.PlaceWorkers,
		BufferSize:  storage.CopyBuffer,
		RetryConfig: fsRetry,
	}

	processor, err := batch.New(cfg)
	if err != nil {
		return err
	}

	util.InfoLog("=== Drone Catalog Batch ===")
	util.InfoLog("Sources: %v", args)
	util.InfoLog("Output: %s", output)
	if placeMode != place.ModeNone {
		util.InfoLog("Placement: %s", placeMode)
	}

	result, err := processor.Run(ctx, args...)
	if result != nil {
		printBatchResult(result)
	}
	if err != nil {
		return fmt.Errorf("batch failed: %w", err)
	}
	return nil
}

func printBatchResult(r *batch.Result) {
	util.InfoLog("")
	if r.Status == store.BatchCompleted {
		util.SuccessLog("=== Batch %s %s in %v ===", r.BatchName, r.Status, r.Duration.Round(time.Millisecond))
	} else {
		util.ErrorLog("=== Batch %s %s after %v ===", r.BatchName, r.Status, r.Duration.Round(time.Millisecond))
	}
	util.InfoLog("  Videos discovered: %s", util.FormatCount(r.Discovered))
	if r.Duplicates > 0 {
		util.InfoLog("  Same file reached twice: %d", r.Duplicates)
	}
	util.InfoLog("  Processed: %d", r.Processed)
	if r.Resumed > 0 {
		util.InfoLog("  Taken from earlier run: %d", r.Resumed)
	}
	if r.Failed > 0 {
		util.WarnLog("  Failed: %d", r.Failed)
		for i, f := range r.Failures {
			if i == 5 {
				util.WarnLog("    ... and %d more (see event log)", len(r.Failures)-5)
				break
			}
			util.WarnLog("    %s: %v", f.Path, f.Err)
		}
	}
	if r.Skipped > 0 {
		util.WarnLog("  Left out of semantic model: %d", r.Skipped)
	}

	if r.Stats.Total > 0 {
		util.InfoLog("")
		util.InfoLog("Classification:")
		for _, m := range classify.Missions {
			if n := r.Stats.ByMission[m]; n > 0 {
				util.InfoLog("  %-8s %d", m, n)
			}
		}
		util.InfoLog("  Average confidence: %.2f", r.Stats.AvgConfidence)
	}

	if r.Placement != nil {
		util.InfoLog("")
		util.InfoLog("Placement: %d placed, %d already in place, %d failed (%s)",
			r.Placement.Succeeded, r.Placement.Skipped, r.Placement.Failed, util.FormatBytes(r.Placement.BytesWritten))
	}

	util.InfoLog("")
	util.InfoLog("Batch folder: %s", r.BatchDir)
	util.InfoLog("Files written: %d", len(r.Outputs))
	if r.SummaryPath != "" {
		util.InfoLog("Summary: %s", r.SummaryPath)
	}
	if r.ProgressPath != "" {
		util.InfoLog("Progress: %s", r.ProgressPath)
	}
	util.InfoLog("Batch ID: %s", r.BatchID)
}
