package organize

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/franz/drone-catalog/internal/classify"
	"github.com/franz/drone-catalog/internal/report"
	"github.com/franz/drone-catalog/internal/util"
)

// Kind is a per-video artifact type
type Kind string

const (
	KindDocument  Kind = "document"
	KindThumbnail Kind = "thumbnail"
	KindVideo     Kind = "video"
)

// Artifact categories under a mission folder
const (
	CategoryMetadata   = "metadata"
	CategoryThumbnails = "metadata/thumbnails"
	CategoryReports    = "reports"
	CategorySemantic   = "semantic"
	CategoryVideos     = "videos"
)

// Category returns the folder a kind is stored in
func (k Kind) Category() string {
	switch k {
	case KindDocument:
		return CategoryMetadata
	case KindThumbnail:
		return CategoryThumbnails
	case KindVideo:
		return CategoryVideos
	}
	return ""
}

// filename builds the artifact filename from the (possibly disambiguated) stem
func (k Kind) filename(stem, ext string) string {
	switch k {
	case KindDocument:
		return stem + ".md"
	case KindThumbnail:
		return stem + "_thumbnail.jpg"
	}
	return stem + ext
}

// Path is a resolved output location. Mission is empty for batch-level
// artifacts.
type Path struct {
	Root     string
	Batch    string
	Mission  string
	Category string
	Filename string
}

// Dir returns the directory holding the artifact
func (p Path) Dir() string {
	return filepath.Join(p.Root, p.Batch, p.Mission, filepath.FromSlash(p.Category))
}

// String returns the full filesystem path
func (p Path) String() string {
	return filepath.Join(p.Dir(), p.Filename)
}

// Rel returns the path relative to the batch directory
func (p Path) Rel() string {
	return filepath.Join(p.Mission, filepath.FromSlash(p.Category), p.Filename)
}

// Config holds organizer configuration
type Config struct {
	Root      string
	BatchName string
	Logger    *report.EventLogger
}

type nameKey struct {
	mission string
	stem    string
}

type resolveKey struct {
	mission string
	source  string
}

// Organizer maps (mission, kind, source) to output paths for one batch.
// All methods are safe for concurrent use.
type Organizer struct {
	root          string
	batch         string
	caseSensitive bool
	logger        *report.EventLogger

	mu     sync.Mutex
	owners map[nameKey]string    // normalized stem -> claiming source
	stems  map[resolveKey]string // source -> assigned stem
	dirs   sync.Map
}

// New creates an organizer rooted at cfg.Root/cfg.BatchName. The root is
// created and probed for writability; failure is fatal.
func New(cfg Config) (*Organizer, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("%w: output root is empty", util.ErrInvalidConfig)
	}
	batch := util.SanitizePathComponent(cfg.BatchName)
	if batch == "" {
		return nil, fmt.Errorf("%w: batch name is empty", util.ErrInvalidConfig)
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output root: %w", err)
	}
	if err := util.CheckWritable(root); err != nil {
		return nil, err
	}

	caseSensitive, err := util.DetectFilesystemCaseSensitivity(root)
	if err != nil {
		util.WarnLog("Failed to detect filesystem case sensitivity, assuming case-sensitive: %v", err)
		caseSensitive = true
	}
	if !caseSensitive {
		util.DebugLog("Output filesystem is case-insensitive, comparing names without case")
	}

	return &Organizer{
		root:          root,
		batch:         batch,
		caseSensitive: caseSensitive,
		logger:        cfg.Logger,
		owners:        make(map[nameKey]string),
		stems:         make(map[resolveKey]string),
	}, nil
}

// Root returns the absolute output root
func (o *Organizer) Root() string { return o.root }

// Batch returns the sanitized batch name
func (o *Organizer) Batch() string { return o.batch }

// BatchDir returns {root}/{batch}
func (o *Organizer) BatchDir() string { return filepath.Join(o.root, o.batch) }

// ResolvePath returns where the artifact of kind for sourcePath goes and
// makes sure its directory exists. Repeated calls return the same path.
// A second source whose name is already taken in the mission folder gets
// a suffix derived from its path.
func (o *Organizer) ResolvePath(mission classify.Mission, kind Kind, sourcePath string) (Path, error) {
	if kind.Category() == "" {
		return Path{}, fmt.Errorf("%w: artifact kind %q", util.ErrUnsupported, kind)
	}

	folder := mission.Folder()
	base := filepath.Base(sourcePath)
	ext := filepath.Ext(base)
	stem := o.claim(folder, util.SanitizePathComponent(strings.TrimSuffix(base, ext)), sourcePath)

	p := Path{
		Root:     o.root,
		Batch:    o.batch,
		Mission:  folder,
		Category: kind.Category(),
		Filename: kind.filename(stem, ext),
	}
	if err := o.ensureDir(p.Dir()); err != nil {
		return Path{}, err
	}
	return p, nil
}

// ResolveMissionPath places a mission-level artifact such as a README or
// a per-mission semantic table.
func (o *Organizer) ResolveMissionPath(mission classify.Mission, category, filename string) (Path, error) {
	p := Path{
		Root:     o.root,
		Batch:    o.batch,
		Mission:  mission.Folder(),
		Category: category,
		Filename: filename,
	}
	if err := o.ensureDir(p.Dir()); err != nil {
		return Path{}, err
	}
	return p, nil
}

// ResolveBatchPath places a batch-level artifact under {root}/{batch}/{category}.
// An empty category puts the file directly in the batch directory.
func (o *Organizer) ResolveBatchPath(category, filename string) (Path, error) {
	p := Path{
		Root:     o.root,
		Batch:    o.batch,
		Category: category,
		Filename: filename,
	}
	if err := o.ensureDir(p.Dir()); err != nil {
		return Path{}, err
	}
	return p, nil
}

// claim assigns a stem to sourcePath inside a mission folder
func (o *Organizer) claim(folder, stem, sourcePath string) string {
	o.mu.Lock()
	defer o.mu.Unlock()

	rk := resolveKey{mission: folder, source: filepath.Clean(sourcePath)}
	if s, ok := o.stems[rk]; ok {
		return s
	}

	candidate := stem
	owner, taken := o.owners[o.key(folder, candidate)]
	if taken && owner != rk.source {
		candidate = fmt.Sprintf("%s_%s", stem, util.StableSuffix(rk.source))
		for n := 2; ; n++ {
			if _, clash := o.owners[o.key(folder, candidate)]; !clash {
				break
			}
			candidate = fmt.Sprintf("%s_%s_%d", stem, util.StableSuffix(rk.source), n)
		}

		util.WarnLog("%v: %q in %s already used by %s; using %q for %s",
			util.ErrPathCollision, stem, folder, owner, candidate, sourcePath)
		o.logger.LogCollision(sourcePath, filepath.Join(folder, stem), filepath.Join(folder, candidate))
	}

	o.owners[o.key(folder, candidate)] = rk.source
	o.stems[rk] = candidate
	return candidate
}

func (o *Organizer) key(folder, stem string) nameKey {
	return nameKey{mission: folder, stem: util.NormalizePath(stem, o.caseSensitive)}
}

// ensureDir creates dir once. Concurrent callers for the same directory
// are fine: MkdirAll treats an existing directory as success.
func (o *Organizer) ensureDir(dir string) error {
	if _, done := o.dirs.Load(dir); done {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		err = util.ClassifyFSError(err)
		if util.IsFatal(err) {
			return fmt.Errorf("%w: %s: %w", util.ErrFatal, dir, err)
		}
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	o.dirs.Store(dir, true)
	return nil
}
