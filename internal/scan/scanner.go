package scan

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/franz/drone-catalog/internal/meta"
	"github.com/franz/drone-catalog/internal/report"
	"github.com/franz/drone-catalog/internal/util"
	"github.com/schollz/progressbar/v3"
)

// VideoExtensions are the default supported video container extensions
var VideoExtensions = []string{
	".mp4",
	".mov",
	".m4v",
	".avi",
	".mkv",
	".mts",
	".lrv",  // DJI/GoPro low-resolution proxy
	".insv", // Insta360
}

// Video is one discovered video file
type Video struct {
	Path string
	// Root is the parent of the source argument the video was found under
	Root string
	// Rel is Path relative to Root with forward slashes. It starts with
	// the source folder's own name, e.g. "8D/DJI_0593.MP4".
	Rel       string
	FileKey   string
	SizeBytes int64
	MtimeUnix int64
	// Sidecars found next to the video (.SRT telemetry, .JPG still)
	SRT   string
	Still string
}

// Scanner discovers video files in directory trees
type Scanner struct {
	extensions  map[string]bool
	concurrency int
	logger      *report.EventLogger
	hidden      bool
}

// Config holds scanner configuration
type Config struct {
	AdditionalExts []string
	Concurrency    int
	// IncludeHidden also walks dot-directories and dot-files
	IncludeHidden bool
	Logger        *report.EventLogger
}

// New creates a new Scanner
func New(cfg *Config) *Scanner {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	// Build extension map (case-insensitive)
	extMap := make(map[string]bool)
	for _, ext := range VideoExtensions {
		extMap[strings.ToLower(ext)] = true
	}
	for _, ext := range cfg.AdditionalExts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extMap[ext] = true
	}

	return &Scanner{
		extensions:  extMap,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
		hidden:      cfg.IncludeHidden,
	}
}

// Result represents a scan result
type Result struct {
	// Videos are sorted by path
	Videos     []Video
	Duplicates int
	Errors     []error
}

// Scan walks every source (directory or single file) and returns the videos
// found. The same file reached through two sources is reported once.
func (s *Scanner) Scan(ctx context.Context, sources ...string) (*Result, error) {
	result := &Result{}
	var errMu sync.Mutex
	addErr := func(err error) {
		errMu.Lock()
		result.Errors = append(result.Errors, err)
		errMu.Unlock()
	}

	type job struct{ path, root string }
	jobs := make(chan job, 100)
	found := make(chan Video, 100)

	var filesFound atomic.Int64
	var filesProcessed atomic.Int64

	progressCtx, cancelProgress := context.WithCancel(ctx)
	defer cancelProgress()

	var bar *progressbar.ProgressBar
	if util.ShowProgress() {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Scanning"),
			progressbar.OptionSetWidth(util.ProgressBarWidth()),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("videos"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-progressCtx.Done():
				return
			case <-ticker.C:
				n := filesFound.Load()
				if bar != nil && n > 0 {
					bar.Describe(fmt.Sprintf("Scanning | %d found", n))
					bar.Set64(filesProcessed.Load())
				} else if n > 0 {
					util.InfoLog("Progress: found %d videos, processed %d", n, filesProcessed.Load())
				}
			}
		}
	}()

	// Collector dedups by file key. The lowest path wins, and for the same
	// path the longer Rel, so results do not depend on worker timing.
	var collectWg sync.WaitGroup
	collectWg.Add(1)
	byKey := make(map[string]Video)
	go func() {
		defer collectWg.Done()
		for v := range found {
			if prev, dup := byKey[v.FileKey]; dup {
				result.Duplicates++
				if v.Path < prev.Path || (v.Path == prev.Path && len(v.Rel) > len(prev.Rel)) {
					byKey[v.FileKey] = v
				}
				util.DebugLog("Same file reached twice: %s and %s", prev.Path, v.Path)
				continue
			}
			byKey[v.FileKey] = v
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					return
				}
				v, err := s.processFile(j.path, j.root)
				filesProcessed.Add(1)
				if err != nil {
					util.ErrorLog("Failed to process %s: %v", j.path, err)
					addErr(err)
					continue
				}
				found <- v
			}
		}()
	}

	var walkErr error
	for _, src := range sources {
		root, err := filepath.Abs(src)
		if err != nil {
			addErr(fmt.Errorf("invalid source %s: %w", src, err))
			continue
		}
		util.InfoLog("Starting scan of: %s", root)

		walkErr = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				util.WarnLog("Error accessing path %s: %v", path, err)
				addErr(fmt.Errorf("access error: %s: %w", path, err))
				return nil // Continue walking
			}

			if d.IsDir() {
				if path != root && !s.hidden && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if !s.hidden && strings.HasPrefix(d.Name(), ".") {
				return nil
			}

			if s.IsVideoFile(path) {
				filesFound.Add(1)
				select {
				case jobs <- job{path: path, root: filepath.Dir(root)}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
		if walkErr != nil {
			break
		}
	}

	close(jobs)
	wg.Wait()
	close(found)
	collectWg.Wait()
	cancelProgress()

	if bar != nil {
		bar.Finish()
	}

	result.Videos = make([]Video, 0, len(byKey))
	for _, v := range byKey {
		result.Videos = append(result.Videos, v)
	}
	sort.Slice(result.Videos, func(i, j int) bool { return result.Videos[i].Path < result.Videos[j].Path })

	if walkErr != nil {
		if walkErr == context.Canceled || walkErr == context.DeadlineExceeded {
			return result, walkErr
		}
		return result, fmt.Errorf("walk error: %w", walkErr)
	}

	util.SuccessLog("Scan complete: %d videos found, %d duplicates, %d errors",
		len(result.Videos), result.Duplicates, len(result.Errors))

	return result, nil
}

// processFile stats one video and looks for its sidecars
func (s *Scanner) processFile(path, root string) (Video, error) {
	fileKey, err := util.GenerateFileKey(path)
	if err != nil {
		return Video{}, fmt.Errorf("failed to generate file key: %w", err)
	}

	size, mtime, err := util.GetFileMetadata(path)
	if err != nil {
		return Video{}, fmt.Errorf("failed to get file metadata: %w", err)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}

	v := Video{
		Path:      path,
		Root:      root,
		Rel:       filepath.ToSlash(rel),
		FileKey:   fileKey,
		SizeBytes: size,
		MtimeUnix: mtime,
		SRT:       meta.FindSidecar(path, meta.SRTExtensions),
		Still:     meta.FindSidecar(path, meta.StillExtensions),
	}

	s.logger.LogScan(fileKey, path, size)

	util.DebugLog("Discovered: %s (key: %s)", path, fileKey[:8])
	return v, nil
}

// IsVideoFile checks if a file has a supported video extension
func (s *Scanner) IsVideoFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return s.extensions[ext]
}

// GetSupportedExtensions returns the list of supported extensions, sorted
func (s *Scanner) GetSupportedExtensions() []string {
	exts := make([]string, 0, len(s.extensions))
	for ext := range s.extensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
