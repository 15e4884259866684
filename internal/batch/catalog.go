package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/franz/drone-catalog/internal/classify"
	"github.com/franz/drone-catalog/internal/format"
	"github.com/franz/drone-catalog/internal/organize"
	"github.com/franz/drone-catalog/internal/report"
	"github.com/franz/drone-catalog/internal/semantic"
	"github.com/franz/drone-catalog/internal/store"
	"github.com/franz/drone-catalog/internal/util"
)

// RebuildConfig selects what Rebuild regenerates
type RebuildConfig struct {
	Store    *store.Store
	Logger   *report.EventLogger
	Semantic semantic.Config
	// Documents also rewrites the per-video markdown
	Documents bool
	Workbook  bool
	FSRetry   *util.RetryConfig
}

// Rebuild regenerates the dataset index, mission overviews, semantic
// tables, classification CSVs and optionally the workbook and per-video
// documents of a stored batch. Records and assignments come from the
// catalog; no source video is read.
func Rebuild(ctx context.Context, batchID string, cfg RebuildConfig) (*Result, error) {
	start := time.Now()
	db := cfg.Store
	if db == nil {
		return nil, fmt.Errorf("%w: rebuild needs a catalog store", util.ErrInvalidConfig)
	}

	b, err := db.GetBatch(batchID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("%w: batch %s", util.ErrNotFound, batchID)
	}

	org, err := organize.New(organize.Config{Root: b.OutputRoot, BatchName: b.Name, Logger: cfg.Logger})
	if err != nil {
		return nil, err
	}

	stored, err := db.GetVideosByStatus(b.ID, store.VideoDone)
	if err != nil {
		return nil, err
	}

	result := &Result{
		BatchID:    b.ID,
		BatchName:  b.Name,
		BatchDir:   org.BatchDir(),
		Status:     b.Status,
		Discovered: b.Total,
		Failed:     b.Failed,
	}

	items := make([]semantic.Item, 0, len(stored))
	videos := make([]*store.Video, 0, len(stored))
	for _, v := range stored {
		rec, err := decodeRecord(v.RecordJSON)
		if err != nil {
			util.WarnLog("Skipping %s: %v", v.SrcPath, err)
			continue
		}
		items = append(items, semantic.Item{Record: rec, Assignment: classifyAssignment(v.Assignment)})
		video := v.Video
		videos = append(videos, &video)
	}
	result.Items = items
	result.Resumed = len(items)
	util.InfoLog("Rebuilding catalog of %s from %d stored videos", b.Name, len(items))

	exporter, err := semantic.New(cfg.Semantic, cfg.Logger)
	if err != nil {
		return nil, err
	}
	tables := exporter.Export(items)
	result.Tables = tables
	result.Skipped = len(tables.Skipped)

	assignments := make([]classify.Assignment, len(items))
	for i, it := range items {
		assignments[i] = it.Assignment
	}
	result.Stats = classify.ComputeStats(assignments)

	thumbs, err := db.CountOutputsByKind(b.ID)
	if err != nil {
		return nil, err
	}

	var formatters []format.Formatter
	if cfg.Documents {
		md := format.NewMarkdown()
		md.LinkThumbnails = thumbs[OutputThumbnail] > 0
		formatters = append(formatters, md)
	}
	formatters = append(formatters, format.NewSemanticCSV(), format.NewClassificationCSV(), format.NewDatasetIndex())
	if cfg.Workbook {
		formatters = append(formatters, format.NewWorkbook())
	}

	fb := &format.Batch{
		ID:        b.ID,
		Name:      b.Name,
		StartedAt: b.StartedAt,
		Items:     items,
		Tables:    tables,
		Logger:    cfg.Logger,
		Retry:     cfg.FSRetry,
	}
	written, formatErr := format.Run(ctx, formatters, fb, org)
	result.Outputs = written

	if err := insertOutputs(db, b.ID, org, items, videos, written); err != nil {
		util.WarnLog("Failed to record outputs: %v", err)
	}
	result.Duration = time.Since(start)

	return result, formatErr
}
