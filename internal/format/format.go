package format

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/franz/drone-catalog/internal/classify"
	"github.com/franz/drone-catalog/internal/organize"
	"github.com/franz/drone-catalog/internal/report"
	"github.com/franz/drone-catalog/internal/semantic"
	"github.com/franz/drone-catalog/internal/util"
)

// Batch is everything a formatter can render
type Batch struct {
	ID        string
	Name      string
	StartedAt time.Time

	// Items are ordered by source path
	Items []semantic.Item

	// Tables is the batch-wide semantic export
	Tables *semantic.Tables

	Logger *report.EventLogger
	Retry  *util.RetryConfig
}

// Stats tallies the batch's assignments
func (b *Batch) Stats() classify.Stats {
	as := make([]classify.Assignment, len(b.Items))
	for i, it := range b.Items {
		as[i] = it.Assignment
	}
	return classify.ComputeStats(as)
}

// ByMission groups items per mission, keeping batch order. Missions with
// no items are absent.
func (b *Batch) ByMission() map[classify.Mission][]semantic.Item {
	out := make(map[classify.Mission][]semantic.Item)
	for _, it := range b.Items {
		out[it.Assignment.Mission] = append(out[it.Assignment.Mission], it)
	}
	return out
}

// Fixed output file names
const (
	IndexFileName           = "DATASET_INDEX.md"
	ReadmeFileName          = "README.md"
	ClassificationsFileName = "classifications.csv"
)

// Formatter renders a batch into files and returns the paths it wrote
type Formatter interface {
	Name() string
	Format(ctx context.Context, batch *Batch, org *organize.Organizer) ([]string, error)
}

// Options selects formatters for Standard
type Options struct {
	Thumbnails bool
	Workbook   bool
}

// Standard returns the formatters of a full batch run in execution order
func Standard(opts Options) []Formatter {
	md := NewMarkdown()
	md.LinkThumbnails = opts.Thumbnails
	fs := []Formatter{md}
	if opts.Thumbnails {
		fs = append(fs, NewThumbnail())
	}
	fs = append(fs, NewSemanticCSV(), NewClassificationCSV(), NewDatasetIndex())
	if opts.Workbook {
		fs = append(fs, NewWorkbook())
	}
	return fs
}

// Run executes formatters in order. A fatal error stops the run; other
// formatter errors are logged and collected.
func Run(ctx context.Context, formatters []Formatter, batch *Batch, org *organize.Organizer) ([]string, error) {
	var written []string
	var errs []error

	for _, f := range formatters {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		start := time.Now()
		paths, err := f.Format(ctx, batch, org)
		written = append(written, paths...)
		if err != nil {
			if util.IsFatal(err) || errors.Is(err, context.Canceled) {
				return written, fmt.Errorf("%s: %w", f.Name(), err)
			}
			util.WarnLog("Formatter %s: %v", f.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", f.Name(), err))
			continue
		}
		util.DebugLog("Formatter %s wrote %d file(s) in %s", f.Name(), len(paths), time.Since(start).Round(time.Millisecond))
	}

	return written, errors.Join(errs...)
}

// writeFile writes data with retries on transient errors. Fatal errors
// (disk full, permission) come back wrapped in util.ErrFatal.
func writeFile(ctx context.Context, batch *Batch, kind, srcPath, dest string, data []byte) error {
	err := util.Retry(ctx, batch.Retry, func() error {
		return os.WriteFile(dest, data, 0644)
	}, "write "+dest)
	if err != nil {
		err = util.ClassifyFSError(err)
		if util.IsFatal(err) {
			return fmt.Errorf("%w: %s: %w", util.ErrFatal, dest, err)
		}
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	batch.Logger.LogOutput(kind, srcPath, dest, int64(len(data)))
	return nil
}

// perItem runs fn for every item, isolating non-fatal failures
func perItem(ctx context.Context, batch *Batch, name string, fn func(it semantic.Item) (string, error)) ([]string, error) {
	var written []string
	failed := 0
	for _, it := range batch.Items {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		path, err := fn(it)
		if err != nil {
			if util.IsFatal(err) {
				return written, err
			}
			failed++
			util.WarnLog("%s failed for %s: %v", name, it.Record.Path, err)
			batch.Logger.LogError(report.EventOutput, it.Record.Path, err)
			continue
		}
		if path != "" {
			written = append(written, path)
		}
	}
	if failed > 0 {
		return written, fmt.Errorf("%d of %d %s file(s) failed", failed, len(batch.Items), name)
	}
	return written, nil
}
