// Package batch runs the whole pipeline for a set of source folders:
// discovery, extraction and classification on a bounded worker pool, then
// the single-writer stages (semantic export, formatters, placement and the
// organization summary).
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/sourcegraph/conc/pool"

	"github.com/franz/drone-catalog/internal/classify"
	"github.com/franz/drone-catalog/internal/format"
	"github.com/franz/drone-catalog/internal/meta"
	"github.com/franz/drone-catalog/internal/metrics"
	"github.com/franz/drone-catalog/internal/organize"
	"github.com/franz/drone-catalog/internal/place"
	"github.com/franz/drone-catalog/internal/report"
	"github.com/franz/drone-catalog/internal/scan"
	"github.com/franz/drone-catalog/internal/semantic"
	"github.com/franz/drone-catalog/internal/store"
	"github.com/franz/drone-catalog/internal/util"
)

// ErrTooManyFailures aborts a batch whose error rate passed MaxErrorPct
var ErrTooManyFailures = errors.New("too many failed videos")

// SummaryCategory and SummaryFileName locate the organization summary
const (
	SummaryCategory = "batch_reports"
	SummaryFileName = "organization_summary.md"
)

// minSampleForAbort is how many videos must finish before the error rate
// can abort a batch
const minSampleForAbort = 10

// extractor is the part of meta.Extractor the processor needs
type extractor interface {
	Extract(ctx context.Context, path string) (*meta.VideoRecord, error)
}

// Config holds batch configuration
type Config struct {
	OutputRoot string
	BatchName  string
	Store      *store.Store
	Logger     *report.EventLogger
	Metrics    *metrics.Metrics

	Concurrency int
	// Attempts per video, including the first
	Attempts   int
	RetryDelay time.Duration
	// MaxErrorPct aborts once more than this share of finished videos
	// failed (0 disables)
	MaxErrorPct float64
	// SaveEvery writes batch_progress.json after every N finished videos
	SaveEvery int
	// Resume reuses the latest batch of the same name and skips videos it
	// already completed
	Resume bool

	Thumbnails bool
	Workbook   bool

	Classify      classify.Config
	Semantic      semantic.Config
	SkipSources   []meta.Source
	ScanExts      []string
	IncludeHidden bool
	Placement     place.Config
	FSRetry       *util.RetryConfig
}

// DefaultConfig returns the defaults of a batch run
func DefaultConfig() Config {
	return Config{
		Concurrency: runtime.NumCPU(),
		Attempts:    2,
		RetryDelay:  time.Second,
		MaxErrorPct: 50,
		SaveEvery:   10,
		Thumbnails:  true,
		Workbook:    true,
		Classify:    classify.DefaultConfig(),
		Semantic:    semantic.DefaultConfig(),
		Placement:   place.Config{Mode: place.ModeNone},
		FSRetry:     util.DefaultRetryConfig(),
	}
}

// Failure is a video that could not be processed
type Failure struct {
	Path string
	Err  error
}

// Result represents a batch run
type Result struct {
	BatchID   string
	BatchName string
	BatchDir  string
	Status    string

	Discovered int
	Duplicates int
	Processed  int // extracted in this run
	Resumed    int // taken from an earlier run
	Failed     int
	Skipped    int // left out of the semantic model

	Items     []semantic.Item
	Tables    *semantic.Tables
	Stats     classify.Stats
	Outputs   []string
	Placement *place.Result
	Failures  []Failure

	ProgressPath string
	SummaryPath  string
	Duration     time.Duration
}

// Processor runs batches
type Processor struct {
	cfg        Config
	db         *store.Store
	logger     *report.EventLogger
	metrics    *metrics.Metrics
	classifier *classify.Classifier
	exporter   *semantic.Exporter
	placer     *place.Placer
	extract    extractor
	formatters func() []format.Formatter
}

// New validates the configuration and builds a processor
func New(cfg Config) (*Processor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: batch needs a catalog store", util.ErrInvalidConfig)
	}
	if cfg.OutputRoot == "" {
		return nil, fmt.Errorf("%w: output root is empty", util.ErrInvalidConfig)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.SaveEvery <= 0 {
		cfg.SaveEvery = 10
	}
	if cfg.MaxErrorPct < 0 || cfg.MaxErrorPct > 100 {
		return nil, fmt.Errorf("%w: max error percentage %.1f outside 0-100", util.ErrInvalidConfig, cfg.MaxErrorPct)
	}
	if cfg.BatchName == "" {
		cfg.BatchName = DefaultBatchName(time.Now())
	}
	if cfg.FSRetry == nil {
		cfg.FSRetry = util.DefaultRetryConfig()
	}

	classifier, err := classify.New(cfg.Classify)
	if err != nil {
		return nil, err
	}
	exporter, err := semantic.New(cfg.Semantic, cfg.Logger)
	if err != nil {
		return nil, err
	}
	placeCfg := cfg.Placement
	placeCfg.Logger = cfg.Logger
	if placeCfg.RetryConfig == nil {
		placeCfg.RetryConfig = cfg.FSRetry
	}
	placer, err := place.New(&placeCfg)
	if err != nil {
		return nil, err
	}

	p := &Processor{
		cfg:        cfg,
		db:         cfg.Store,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		classifier: classifier,
		exporter:   exporter,
		placer:     placer,
		extract:    meta.New(&meta.Config{SkipSources: cfg.SkipSources, Logger: cfg.Logger}),
	}
	p.formatters = func() []format.Formatter {
		return format.Standard(format.Options{Thumbnails: cfg.Thumbnails, Workbook: cfg.Workbook})
	}
	return p, nil
}

// DefaultBatchName names a batch after its start time
func DefaultBatchName(t time.Time) string {
	return "batch_" + t.Format("20060102_150405")
}

// outcome is what one worker produced for one video
type outcome struct {
	rec        *meta.VideoRecord
	assignment classify.Assignment
	attempts   int
	resumed    bool
	err        error
}

// Run processes every video found under sources
func (p *Processor) Run(ctx context.Context, sources ...string) (*Result, error) {
	start := time.Now()

	org, err := organize.New(organize.Config{
		Root:      p.cfg.OutputRoot,
		BatchName: p.cfg.BatchName,
		Logger:    p.logger,
	})
	if err != nil {
		return nil, err
	}

	// Discover
	stageStart := time.Now()
	scanner := scan.New(&scan.Config{
		AdditionalExts: p.cfg.ScanExts,
		Concurrency:    p.cfg.Concurrency,
		IncludeHidden:  p.cfg.IncludeHidden,
		Logger:         p.logger,
	})
	scanned, err := scanner.Scan(ctx, sources...)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	p.metrics.ObserveStage("scan", time.Since(stageStart))
	for _, e := range scanned.Errors {
		util.WarnLog("Scan: %v", e)
	}

	b, err := p.openBatch(org, sources, len(scanned.Videos))
	if err != nil {
		return nil, err
	}
	p.logger.SetBatchID(b.ID)
	p.logger.LogBatch("start", map[string]string{
		"name":   b.Name,
		"videos": strconv.Itoa(len(scanned.Videos)),
	})

	result := &Result{
		BatchID:    b.ID,
		BatchName:  b.Name,
		BatchDir:   org.BatchDir(),
		Discovered: len(scanned.Videos),
		Duplicates: scanned.Duplicates,
	}

	videos := make([]*store.Video, len(scanned.Videos))
	for i, v := range scanned.Videos {
		videos[i] = &store.Video{
			FileKey:   v.FileKey,
			SrcPath:   v.Path,
			RelPath:   v.Rel,
			SizeBytes: v.SizeBytes,
			MtimeUnix: v.MtimeUnix,
		}
	}
	if err := p.db.InsertVideos(b.ID, videos); err != nil {
		return nil, p.fail(b, result, start, err)
	}

	progressPath, err := org.ResolveBatchPath("", ProgressFileName)
	if err != nil {
		return nil, p.fail(b, result, start, err)
	}
	result.ProgressPath = progressPath.String()
	pf := &progressFile{path: result.ProgressPath}
	progress := &Progress{
		BatchID:     b.ID,
		BatchName:   b.Name,
		TotalVideos: len(videos),
		StartTime:   start,
		Status:      store.BatchRunning,
	}

	// Extract and classify
	stageStart = time.Now()
	outcomes, runErr := p.process(ctx, b, scanned.Videos, videos, progress, pf)
	p.metrics.ObserveStage("extract", time.Since(stageStart))

	var items []semantic.Item
	var itemVideos []*store.Video
	for i, o := range outcomes {
		switch {
		case o.rec != nil:
			items = append(items, semantic.Item{Record: o.rec, Assignment: o.assignment})
			itemVideos = append(itemVideos, videos[i])
			if o.resumed {
				result.Resumed++
			} else {
				result.Processed++
			}
		case o.err != nil:
			result.Failed++
			result.Failures = append(result.Failures, Failure{Path: videos[i].SrcPath, Err: o.err})
		}
	}
	result.Items = items

	if runErr != nil {
		progress.Status = store.BatchAborted
		pf.Save(*progress)
		p.finish(b, result, store.BatchAborted, start)
		return result, runErr
	}

	// Export
	stageStart = time.Now()
	tables := p.exporter.Export(items)
	result.Tables = tables
	result.Skipped = len(tables.Skipped)
	progress.Skipped = result.Skipped
	p.metrics.Skipped(result.Skipped)
	p.metrics.ObserveStage("export", time.Since(stageStart))

	assignments := make([]classify.Assignment, len(items))
	for i, it := range items {
		assignments[i] = it.Assignment
	}
	result.Stats = classify.ComputeStats(assignments)

	// Format
	fb := &format.Batch{
		ID:        b.ID,
		Name:      b.Name,
		StartedAt: start,
		Items:     items,
		Tables:    tables,
		Logger:    p.logger,
		Retry:     p.cfg.FSRetry,
	}
	written, formatErr := p.runFormatters(ctx, fb, org)
	result.Outputs = written
	if formatErr != nil && (util.IsFatal(formatErr) || ctx.Err() != nil) {
		p.recordOutputs(b.ID, org, items, itemVideos, written)
		progress.Status = store.BatchFailed
		pf.Save(*progress)
		p.finish(b, result, store.BatchFailed, start)
		return result, formatErr
	}

	// Place sources last: the formatters read them
	if p.placer.Enabled() {
		stageStart = time.Now()
		placed, err := p.place(ctx, org, items)
		result.Placement = placed
		p.metrics.ObserveStage("place", time.Since(stageStart))
		if placed != nil {
			p.metrics.PlacedBytes(placed.BytesWritten)
			for _, o := range placed.Outcomes {
				if o.Src != "" && o.Err == nil {
					written = append(written, o.Dest)
				}
			}
			result.Outputs = written
		}
		if err != nil {
			p.recordOutputs(b.ID, org, items, itemVideos, written)
			progress.Status = store.BatchFailed
			pf.Save(*progress)
			p.finish(b, result, store.BatchFailed, start)
			return result, err
		}
	}

	p.recordOutputs(b.ID, org, items, itemVideos, written)

	status := store.BatchCompleted
	progress.Status = status
	if err := pf.Save(*progress); err != nil {
		util.WarnLog("%v", err)
	}
	p.finish(b, result, status, start)
	p.metrics.BatchSucceeded(time.Now())

	// Summary reads the finished batch back from the catalog
	summaryPath, err := p.writeSummary(b.ID, org)
	if err != nil {
		util.WarnLog("Failed to write organization summary: %v", err)
	} else {
		result.SummaryPath = summaryPath
		result.Outputs = append(result.Outputs, summaryPath)
	}

	if formatErr != nil {
		return result, formatErr
	}
	return result, nil
}

// openBatch creates the catalog row, or reopens the latest batch of the
// same name when resuming
func (p *Processor) openBatch(org *organize.Organizer, sources []string, total int) (*store.Batch, error) {
	if p.cfg.Resume {
		existing, err := p.db.GetBatchByName(org.Batch())
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if err := p.db.ReopenBatch(existing.ID, total); err != nil {
				return nil, err
			}
			util.InfoLog("Resuming batch %s (%s)", existing.Name, existing.ID)
			existing.Status = store.BatchRunning
			existing.Total = total
			return existing, nil
		}
		util.InfoLog("No earlier batch named %s, starting fresh", org.Batch())
	}

	b := &store.Batch{
		ID:         uuid.NewString(),
		Name:       org.Batch(),
		OutputRoot: org.Root(),
		Sources:    sources,
		Total:      total,
	}
	if err := p.db.CreateBatch(b); err != nil {
		return nil, err
	}
	return b, nil
}

// process extracts and classifies every video on a bounded pool.
// Outcomes are index-aligned with videos.
func (p *Processor) process(ctx context.Context, b *store.Batch, found []scan.Video, videos []*store.Video, progress *Progress, pf *progressFile) ([]outcome, error) {
	outcomes := make([]outcome, len(videos))

	done := make(map[string]*store.VideoResult)
	if p.cfg.Resume {
		previous, err := p.db.GetVideosByStatus(b.ID, store.VideoDone)
		if err != nil {
			return outcomes, err
		}
		for _, v := range previous {
			done[v.FileKey] = v
		}
	}

	var todo []int
	for i, v := range videos {
		prev, ok := done[v.FileKey]
		if !ok {
			todo = append(todo, i)
			continue
		}
		rec, err := decodeRecord(prev.RecordJSON)
		if err != nil {
			util.DebugLog("Stored record of %s unusable, extracting again: %v", v.SrcPath, err)
			todo = append(todo, i)
			continue
		}
		rec.Path = v.SrcPath
		outcomes[i] = outcome{rec: rec, assignment: p.classifier.Classify(rec, found[i].Rel), resumed: true}
		progress.Resumed++
		p.metrics.VideoDone("resumed")
	}

	if progress.Resumed > 0 {
		util.InfoLog("Skipping %d videos completed in an earlier run", progress.Resumed)
	}
	if len(todo) == 0 {
		return outcomes, nil
	}
	util.InfoLog("Processing %d videos with %d workers", len(todo), p.cfg.Concurrency)

	var bar *progressbar.ProgressBar
	if util.ShowProgress() {
		bar = progressbar.NewOptions(len(todo),
			progressbar.OptionSetDescription("Extracting"),
			progressbar.OptionSetWidth(util.ProgressBarWidth()),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("videos"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var mu sync.Mutex
	finished := func(i int, o outcome) {
		mu.Lock()
		defer mu.Unlock()

		outcomes[i] = o
		progress.InProgress--
		if o.err != nil {
			progress.Failed++
		} else {
			progress.Completed++
		}
		if bar != nil {
			bar.Add(1)
		}

		n := progress.Completed + progress.Failed
		if n%p.cfg.SaveEvery == 0 {
			if err := pf.Save(*progress); err != nil {
				util.WarnLog("%v", err)
			}
			if bar == nil {
				util.InfoLog("Extracting metadata: %d/%d (%.1f%%) - failed: %d",
					n, len(todo), float64(n)/float64(len(todo))*100, progress.Failed)
			}
		}
		if err := p.db.UpdateBatchCounts(b.ID, progress.Completed+progress.Resumed, progress.Failed, 0); err != nil {
			util.DebugLog("Failed to update batch counts: %v", err)
		}

		if p.cfg.MaxErrorPct > 0 && n > minSampleForAbort && progress.ErrorRate() > p.cfg.MaxErrorPct {
			util.ErrorLog("Error rate too high: %.1f%% > %.1f%%", progress.ErrorRate(), p.cfg.MaxErrorPct)
			cancel(ErrTooManyFailures)
		}
	}

	workers := pool.New().WithMaxGoroutines(p.cfg.Concurrency).WithContext(runCtx)
	for _, i := range todo {
		if runCtx.Err() != nil {
			break
		}
		mu.Lock()
		progress.InProgress++
		mu.Unlock()

		workers.Go(func(ctx context.Context) error {
			if ctx.Err() != nil {
				mu.Lock()
				progress.InProgress--
				mu.Unlock()
				return nil
			}
			p.metrics.WorkerStarted()
			defer p.metrics.WorkerFinished()

			o := p.processVideo(ctx, found[i], videos[i])
			if o.err != nil && ctx.Err() != nil {
				// Interrupted rather than failed
				mu.Lock()
				progress.InProgress--
				mu.Unlock()
				return nil
			}
			finished(i, o)
			return nil
		})
	}
	workers.Wait()
	if bar != nil {
		bar.Finish()
	}

	if runCtx.Err() != nil {
		cause := context.Cause(runCtx)
		if errors.Is(cause, ErrTooManyFailures) {
			return outcomes, fmt.Errorf("%w: %d of %d failed", ErrTooManyFailures, progress.Failed, progress.Processed())
		}
		return outcomes, cause
	}

	util.SuccessLog("Extraction complete: %d processed, %d failed", progress.Completed, progress.Failed)
	return outcomes, nil
}

// processVideo extracts with retries, classifies and stores one video
func (p *Processor) processVideo(ctx context.Context, v scan.Video, sv *store.Video) outcome {
	rec, attempts, err := p.extractWithRetry(ctx, v.Path)
	if err != nil {
		if ctx.Err() == nil {
			util.WarnLog("Failed to process %s after %d attempt(s): %v", v.Path, attempts, err)
			p.logger.LogError(report.EventExtract, v.Path, err)
			p.metrics.VideoDone(store.VideoFailed)
			if dbErr := p.db.MarkVideoFailed(sv.ID, err.Error(), sv.Attempts+attempts); dbErr != nil {
				util.WarnLog("Failed to record failure of %s: %v", v.Path, dbErr)
			}
		}
		return outcome{attempts: attempts, err: err}
	}
	if rec.FileKey == "" {
		rec.FileKey = v.FileKey
	}
	for _, src := range rec.FailedSources() {
		p.metrics.SourceFailed(string(src))
	}

	a := p.classifier.Classify(rec, v.Rel)
	p.logger.LogClassify(rec.FileKey, v.Path, string(a.Mission), a.Confidence, a.Bay, string(a.Method))
	p.metrics.Classified(string(a.Mission), string(a.Method))
	util.DebugLog("Classified %s as %s (%.2f, %s)", v.Rel, a.Mission, a.Confidence, a.Method)

	data, err := json.Marshal(rec)
	if err != nil {
		util.WarnLog("Failed to encode record of %s: %v", v.Path, err)
	} else if err := p.db.SaveResult(sv.ID, string(data), storeAssignment(a), sv.Attempts+attempts); err != nil {
		util.WarnLog("Failed to store result of %s: %v", v.Path, err)
	}
	p.metrics.VideoDone(store.VideoDone)

	return outcome{rec: rec, assignment: a, attempts: attempts}
}

// extractWithRetry waits RetryDelay times the attempt number between tries
func (p *Processor) extractWithRetry(ctx context.Context, path string) (*meta.VideoRecord, int, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.Attempts; attempt++ {
		if attempt > 1 {
			p.metrics.Retried()
			select {
			case <-ctx.Done():
				return nil, attempt - 1, ctx.Err()
			case <-time.After(p.cfg.RetryDelay * time.Duration(attempt-1)):
			}
		}

		rec, err := p.extract.Extract(ctx, path)
		if err == nil {
			return rec, attempt, nil
		}
		if ctx.Err() != nil {
			return nil, attempt, ctx.Err()
		}
		lastErr = err
		util.DebugLog("Attempt %d/%d failed for %s: %v", attempt, p.cfg.Attempts, path, err)
	}
	return nil, p.cfg.Attempts, lastErr
}

// runFormatters runs each formatter separately so every one gets its own
// metrics. A fatal error stops the remaining formatters.
func (p *Processor) runFormatters(ctx context.Context, fb *format.Batch, org *organize.Organizer) ([]string, error) {
	var written []string
	var errs []error
	for _, f := range p.formatters() {
		start := time.Now()
		paths, err := format.Run(ctx, []format.Formatter{f}, fb, org)
		written = append(written, paths...)
		p.metrics.Outputs(f.Name(), len(paths))
		p.metrics.ObserveStage("format_"+f.Name(), time.Since(start))
		if err != nil {
			if util.IsFatal(err) || ctx.Err() != nil {
				return written, err
			}
			errs = append(errs, err)
		}
	}
	return written, errors.Join(errs...)
}

// place puts every processed source into its mission's videos folder
func (p *Processor) place(ctx context.Context, org *organize.Organizer, items []semantic.Item) (*place.Result, error) {
	jobs := make([]place.Job, 0, len(items))
	for _, it := range items {
		dest, err := org.ResolvePath(it.Assignment.Mission, organize.KindVideo, it.Record.Path)
		if err != nil {
			if util.IsFatal(err) {
				return nil, err
			}
			util.WarnLog("Cannot place %s: %v", it.Record.Path, err)
			continue
		}
		jobs = append(jobs, place.Job{Src: it.Record.Path, Dest: dest.String(), Size: it.Record.SizeBytes})
	}
	return p.placer.PlaceAll(ctx, jobs)
}

// recordOutputs stores written files in the catalog, linking per-video
// artifacts to their video
func (p *Processor) recordOutputs(batchID string, org *organize.Organizer, items []semantic.Item, videos []*store.Video, written []string) {
	if err := insertOutputs(p.db, batchID, org, items, videos, written); err != nil {
		util.WarnLog("Failed to record outputs: %v", err)
	}
}

func (p *Processor) writeSummary(batchID string, org *organize.Organizer) (string, error) {
	dest, err := org.ResolveBatchPath(SummaryCategory, SummaryFileName)
	if err != nil {
		return "", err
	}
	summary, err := report.GenerateSummaryReport(p.db, batchID, p.logger.Path())
	if err != nil {
		return "", err
	}
	if err := report.WriteMarkdownReport(summary, dest.String()); err != nil {
		return "", err
	}
	p.logger.LogOutput(SummaryCategory, "", dest.String(), 0)
	if err := insertOutputs(p.db, batchID, org, nil, nil, []string{dest.String()}); err != nil {
		util.WarnLog("Failed to record summary output: %v", err)
	}
	return dest.String(), nil
}

// finish stores final counters and status
func (p *Processor) finish(b *store.Batch, result *Result, status string, start time.Time) {
	result.Status = status
	result.Duration = time.Since(start)
	if err := p.db.UpdateBatchCounts(b.ID, result.Processed+result.Resumed, result.Failed, result.Skipped); err != nil {
		util.WarnLog("Failed to update batch counts: %v", err)
	}
	if err := p.db.FinishBatch(b.ID, status); err != nil {
		util.WarnLog("Failed to finish batch: %v", err)
	}
	p.logger.LogBatch("finish", map[string]string{
		"status":    status,
		"processed": strconv.Itoa(result.Processed),
		"resumed":   strconv.Itoa(result.Resumed),
		"failed":    strconv.Itoa(result.Failed),
		"skipped":   strconv.Itoa(result.Skipped),
	})
}

// fail marks the batch failed and returns err
func (p *Processor) fail(b *store.Batch, result *Result, start time.Time, err error) error {
	p.finish(b, result, store.BatchFailed, start)
	return err
}
