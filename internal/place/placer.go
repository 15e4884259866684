package place

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/franz/drone-catalog/internal/report"
	"github.com/franz/drone-catalog/internal/util"
)

// Mode is how a source video is put into the output tree
type Mode string

const (
	ModeNone     Mode = "none"
	ModeCopy     Mode = "copy"
	ModeMove     Mode = "move"
	ModeHardlink Mode = "hardlink"
	ModeSymlink  Mode = "symlink"
)

// ParseMode accepts a mode name in any case; empty means none
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeNone, nil
	case ModeNone, ModeCopy, ModeMove, ModeHardlink, ModeSymlink:
		return m, nil
	}
	return "", fmt.Errorf("%w: placement mode %q (want none, copy, move, hardlink or symlink)", util.ErrInvalidConfig, s)
}

// Verify modes
const (
	VerifyNone = "none"
	VerifySize = "size"
	VerifyHash = "hash"
)

// Placer copies, moves or links source videos into {mission}/videos
type Placer struct {
	mode        Mode
	verifyMode  string // "none", "size", "hash"
	dryRun      bool
	concurrency int
	bufferSize  int // Buffer size for file copying (bytes)
	retryConfig *util.RetryConfig
	logger      *report.EventLogger
}

// Config holds placer configuration
type Config struct {
	Mode        Mode
	VerifyMode  string
	DryRun      bool
	Concurrency int
	BufferSize  int               // Buffer size for file copying (0 = use default)
	RetryConfig *util.RetryConfig // Retry configuration (nil = single attempt)
	Logger      *report.EventLogger
}

// New creates a new Placer
func New(cfg *Config) (*Placer, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}

	verify := cfg.VerifyMode
	switch verify {
	case "":
		verify = VerifySize
	case VerifyNone, VerifySize, VerifyHash:
	default:
		return nil, fmt.Errorf("%w: verify mode %q", util.ErrInvalidConfig, verify)
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		// 1MB - video files are large and mostly sequential
		bufferSize = 1 << 20
	}
	retry := cfg.RetryConfig
	if retry == nil {
		retry = &util.RetryConfig{MaxAttempts: 1}
	}

	return &Placer{
		mode:        mode,
		verifyMode:  verify,
		dryRun:      cfg.DryRun,
		concurrency: concurrency,
		bufferSize:  bufferSize,
		retryConfig: retry,
		logger:      cfg.Logger,
	}, nil
}

// Mode returns the placement mode
func (p *Placer) Mode() Mode { return p.mode }

// Enabled reports whether videos are placed at all
func (p *Placer) Enabled() bool { return p.mode != ModeNone }

// Job is one video to place
type Job struct {
	Src  string
	Dest string
	Size int64
}

// Outcome is the result of one job
type Outcome struct {
	Job
	BytesWritten int64
	Skipped      bool
	Err          error
}

// Result represents placement results
type Result struct {
	Processed    int
	Succeeded    int
	Skipped      int
	Failed       int
	BytesWritten int64
	Outcomes     []Outcome
}

// PlaceAll places every job on a bounded pool. A fatal error (disk full,
// permission) cancels the remaining jobs and is returned.
func (p *Placer) PlaceAll(ctx context.Context, jobs []Job) (*Result, error) {
	result := &Result{Outcomes: make([]Outcome, len(jobs))}
	if !p.Enabled() || len(jobs) == 0 {
		return result, nil
	}

	util.InfoLog("Placing %d videos (%s)", len(jobs), p.mode)
	if p.dryRun {
		util.InfoLog("DRY-RUN mode: no files will be copied/moved")
	}

	var bytesWritten atomic.Int64
	var fatalOnce sync.Once
	var fatal error

	workers := pool.New().WithMaxGoroutines(p.concurrency).WithContext(ctx).WithCancelOnError()
	for i, job := range jobs {
		workers.Go(func(ctx context.Context) error {
			if ctx.Err() != nil {
				return nil
			}
			n, skipped, err := p.Place(ctx, job.Src, job.Dest, job.Size)
			result.Outcomes[i] = Outcome{Job: job, BytesWritten: n, Skipped: skipped, Err: err}
			bytesWritten.Add(n)
			if err != nil && util.IsFatal(err) {
				fatalOnce.Do(func() { fatal = err })
				return err
			}
			return nil
		})
	}
	waitErr := workers.Wait()

	for _, o := range result.Outcomes {
		if o.Src == "" {
			continue // never started after cancellation
		}
		result.Processed++
		switch {
		case o.Err != nil:
			result.Failed++
		case o.Skipped:
			result.Skipped++
		default:
			result.Succeeded++
		}
	}
	result.BytesWritten = bytesWritten.Load()

	util.SuccessLog("Placement complete: %d processed, %d placed, %d unchanged, %d failed, %s written",
		result.Processed, result.Succeeded, result.Skipped, result.Failed, util.FormatBytes(result.BytesWritten))

	if fatal != nil {
		return result, fmt.Errorf("%w: %w", util.ErrFatal, fatal)
	}
	if waitErr != nil && ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

// Place puts one source at dest. It returns the bytes written and whether
// dest already held the same video and was left alone.
func (p *Placer) Place(ctx context.Context, srcPath, destPath string, size int64) (int64, bool, error) {
	start := time.Now()

	if p.dryRun {
		util.DebugLog("DRY-RUN: Would %s %s -> %s", p.mode, srcPath, destPath)
		return size, false, nil
	}

	if p.alreadyPlaced(srcPath, destPath, size) {
		util.DebugLog("Already placed: %s", destPath)
		return 0, true, nil
	}

	if err := util.RetryableMkdirAll(ctx, filepath.Dir(destPath), 0755, p.retryConfig); err != nil {
		return 0, false, p.fail(srcPath, destPath, start, fmt.Errorf("failed to create directory: %w", util.ClassifyFSError(err)))
	}

	var n int64
	var err error
	switch p.mode {
	case ModeCopy:
		n, err = p.copyFile(ctx, srcPath, destPath)
	case ModeMove:
		n, err = p.moveFile(ctx, srcPath, destPath, size)
	case ModeHardlink:
		n, err = p.hardlinkFile(srcPath, destPath)
	case ModeSymlink:
		n, err = p.symlinkFile(srcPath, destPath)
	default:
		return 0, false, fmt.Errorf("%w: placement mode %q", util.ErrUnsupported, p.mode)
	}
	if err != nil {
		return 0, false, p.fail(srcPath, destPath, start, util.ClassifyFSError(err))
	}

	if p.mode == ModeCopy {
		ok, verr := p.verify(srcPath, destPath, size)
		if verr != nil || !ok {
			os.Remove(destPath)
			if verr == nil {
				verr = errors.New("content mismatch")
			}
			return 0, false, p.fail(srcPath, destPath, start, fmt.Errorf("verification failed: %w", verr))
		}
	}

	p.logger.LogPlace(srcPath, destPath, string(p.mode), n, time.Since(start), nil)
	return n, false, nil
}

func (p *Placer) fail(srcPath, destPath string, start time.Time, err error) error {
	util.ErrorLog("Failed to %s %s: %v", p.mode, srcPath, err)
	p.logger.LogPlace(srcPath, destPath, string(p.mode), 0, time.Since(start), err)
	return err
}

// alreadyPlaced reports whether dest is the result of an earlier run
func (p *Placer) alreadyPlaced(srcPath, destPath string, size int64) bool {
	switch p.mode {
	case ModeSymlink:
		target, err := os.Readlink(destPath)
		if err != nil {
			return false
		}
		abs, _ := filepath.Abs(srcPath)
		return target == abs
	case ModeHardlink:
		si, err1 := os.Stat(srcPath)
		di, err2 := os.Stat(destPath)
		return err1 == nil && err2 == nil && os.SameFile(si, di)
	case ModeMove:
		// source gone and dest present: moved by an earlier run
		if _, err := os.Stat(srcPath); !os.IsNotExist(err) {
			return false
		}
		di, err := os.Stat(destPath)
		return err == nil && (size <= 0 || di.Size() == size)
	}

	if _, err := os.Stat(destPath); err != nil {
		return false
	}
	ok, err := p.verify(srcPath, destPath, size)
	return err == nil && ok
}

// copyFile copies a file atomically using a .part temporary file
func (p *Placer) copyFile(ctx context.Context, srcPath, destPath string) (int64, error) {
	src, err := util.RetryWithBackoff(ctx, p.retryConfig, func() (*os.File, error) {
		return os.Open(srcPath)
	}, fmt.Sprintf("open(%s)", srcPath))
	if err != nil {
		return 0, fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	// Create temporary file (.part) with retry
	tempPath := destPath + ".part"
	dest, err := util.RetryableCreate(ctx, tempPath, p.retryConfig)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	// Copy with context cancellation support
	bytesWritten, err := copyWithContext(ctx, dest, src, p.bufferSize)
	if cerr := dest.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tempPath) // Clean up on error
		return 0, fmt.Errorf("failed to copy: %w", err)
	}

	// Atomic rename with retry
	if err := util.RetryableRename(ctx, tempPath, destPath, p.retryConfig); err != nil {
		os.Remove(tempPath) // Clean up on error
		return 0, fmt.Errorf("failed to rename: %w", err)
	}

	util.DebugLog("Copied: %s -> %s (%s)", srcPath, destPath, util.FormatBytes(bytesWritten))
	return bytesWritten, nil
}

// moveFile renames within a filesystem, otherwise copies, verifies and
// deletes the source
func (p *Placer) moveFile(ctx context.Context, srcPath, destPath string, size int64) (int64, error) {
	if err := os.Rename(srcPath, destPath); err == nil {
		if stat, _ := os.Stat(destPath); stat != nil {
			return stat.Size(), nil
		}
		return 0, nil
	}

	// Rename failed (different filesystem), fall back to copy + delete
	bytesWritten, err := p.copyFile(ctx, srcPath, destPath)
	if err != nil {
		return 0, err
	}

	// Verify before deleting source
	ok, err := p.verify(srcPath, destPath, size)
	if err != nil || !ok {
		os.Remove(destPath)
		return 0, fmt.Errorf("verification failed before deleting source")
	}

	if err := util.RetryableRemove(ctx, srcPath, p.retryConfig); err != nil {
		util.WarnLog("Failed to delete source file %s: %v", srcPath, err)
		// Don't return error - file was copied successfully
	}

	util.DebugLog("Moved: %s -> %s", srcPath, destPath)
	return bytesWritten, nil
}

// hardlinkFile creates a hard link
func (p *Placer) hardlinkFile(srcPath, destPath string) (int64, error) {
	os.Remove(destPath)
	if err := os.Link(srcPath, destPath); err != nil {
		return 0, fmt.Errorf("failed to create hardlink: %w", err)
	}

	util.DebugLog("Hardlinked: %s -> %s", srcPath, destPath)
	return 0, nil
}

// symlinkFile creates a symbolic link to the absolute source path
func (p *Placer) symlinkFile(srcPath, destPath string) (int64, error) {
	absSrc, err := filepath.Abs(srcPath)
	if err != nil {
		return 0, fmt.Errorf("failed to get absolute path: %w", err)
	}

	os.Remove(destPath)
	if err := os.Symlink(absSrc, destPath); err != nil {
		return 0, fmt.Errorf("failed to create symlink: %w", err)
	}

	util.DebugLog("Symlinked: %s -> %s", srcPath, destPath)
	return 0, nil
}

func (p *Placer) verify(srcPath, destPath string, size int64) (bool, error) {
	switch p.verifyMode {
	case VerifySize:
		if size <= 0 {
			stat, err := os.Stat(srcPath)
			if err != nil {
				return false, err
			}
			size = stat.Size()
		}
		return verifySize(destPath, size)
	case VerifyHash:
		return verifyHash(srcPath, destPath)
	}
	return true, nil
}

// verifySize verifies file size
func verifySize(path string, expectedSize int64) (bool, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	return stat.Size() == expectedSize, nil
}

// verifyHash verifies file content using SHA1
func verifyHash(srcPath, destPath string) (bool, error) {
	srcHash, err := util.GenerateContentHash(srcPath)
	if err != nil {
		return false, fmt.Errorf("failed to hash source: %w", err)
	}

	destHash, err := util.GenerateContentHash(destPath)
	if err != nil {
		return false, fmt.Errorf("failed to hash dest: %w", err)
	}

	return srcHash == destHash, nil
}

// copyWithContext copies data with context cancellation support
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader, bufferSize int) (int64, error) {
	buf := make([]byte, bufferSize)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, er := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[0:nr])
			if nw < 0 || nr < nw {
				nw = 0
				if ew == nil {
					ew = fmt.Errorf("invalid write result")
				}
			}
			written += int64(nw)
			if ew != nil {
				return written, ew
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if er != nil {
			if er != io.EOF {
				return written, er
			}
			break
		}
	}
	return written, nil
}

