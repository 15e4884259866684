package meta

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/franz/drone-catalog/internal/report"
	"github.com/franz/drone-catalog/internal/util"
)

// Extractor runs every metadata source against one video and normalizes
// the result. Sources fail independently.
type Extractor struct {
	skipSources map[Source]bool
	logger      *report.EventLogger
	probe       func(ctx context.Context, path string) (*FFprobeInfo, error)
}

// Config holds extractor configuration
type Config struct {
	// SkipSources disables individual sources (e.g. no ffprobe installed)
	SkipSources []Source
	Logger      *report.EventLogger
}

// New creates a new metadata extractor
func New(cfg *Config) *Extractor {
	if cfg == nil {
		cfg = &Config{}
	}

	skip := make(map[Source]bool)
	for _, s := range cfg.SkipSources {
		skip[s] = true
	}

	return &Extractor{
		skipSources: skip,
		logger:      cfg.Logger,
		probe:       RunFFprobe,
	}
}

// Extract reads one video. The returned record is always usable; per-source
// failures are recorded on it. An error is returned only when the file
// itself cannot be read.
func (e *Extractor) Extract(ctx context.Context, path string) (*VideoRecord, error) {
	util.DebugLog("Extracting metadata: %s", path)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", util.ErrExtraction, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", util.ErrUnsupported, path)
	}

	raw := &Raw{
		Path:      path,
		SizeBytes: info.Size(),
		Attempted: make(map[Source]bool),
		Errors:    make(map[Source]error),
	}
	if key, err := util.GenerateFileKey(path); err == nil {
		raw.FileKey = key
	}

	run := func(src Source, fn func() error) {
		if e.skipSources[src] {
			return
		}
		if ctx.Err() != nil {
			return
		}
		raw.Attempted[src] = true
		if err := fn(); err != nil {
			raw.Errors[src] = err
			util.DebugLog("  %s failed for %s: %v", src, path, err)
		}
	}

	run(SourceFFprobe, func() error {
		probed, err := e.probe(ctx, path)
		if err != nil {
			if errors.Is(err, util.ErrNotFound) {
				return fmt.Errorf("ffprobe not installed")
			}
			return err
		}
		raw.FFprobe = probed
		return nil
	})

	run(SourceTags, func() error {
		tags, err := ReadTags(path)
		if err != nil {
			return err
		}
		raw.Tags = tags
		return nil
	})

	run(SourceXMP, func() error {
		x, err := ReadXMP(path)
		if errors.Is(err, ErrNoXMP) {
			delete(raw.Attempted, SourceXMP)
			return nil
		}
		if err != nil {
			return err
		}
		raw.XMP = x
		return nil
	})

	// Sidecars are optional: a missing one is not a failure, so the source
	// only counts as attempted when the file exists.
	if still := FindSidecar(path, StillExtensions); still != "" {
		run(SourceEXIF, func() error {
			data, err := ReadEXIF(still)
			if err != nil {
				return err
			}
			raw.EXIF = data
			return nil
		})
	}
	if srt := FindSidecar(path, SRTExtensions); srt != "" {
		run(SourceSRT, func() error {
			summary, err := ReadSRT(srt)
			if err != nil {
				return err
			}
			raw.SRT = summary
			return nil
		})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec := Normalize(raw)

	if failed := rec.FailedSources(); len(failed) > 0 {
		names := make([]string, len(failed))
		for i, s := range failed {
			names[i] = string(s)
		}
		util.DebugLog("  %s: %d source(s) failed (%s), missing: %s",
			rec.Filename, len(failed), strings.Join(names, ", "), strings.Join(rec.MissingFields(), ", "))
	}

	if e.logger != nil {
		e.logger.LogExtract(rec.FileKey, path, rec.Codec, sourceErrors(raw.Errors), rec.MissingFields())
	}

	return rec, nil
}

func sourceErrors(errs map[Source]error) map[string]string {
	if len(errs) == 0 {
		return nil
	}
	out := make(map[string]string, len(errs))
	for src, err := range errs {
		out[string(src)] = err.Error()
	}
	return out
}
