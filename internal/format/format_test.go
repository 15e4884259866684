package format

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/franz/drone-catalog/internal/classify"
	"github.com/franz/drone-catalog/internal/meta"
	"github.com/franz/drone-catalog/internal/organize"
	"github.com/franz/drone-catalog/internal/semantic"
	"github.com/franz/drone-catalog/internal/util"
)

func record(path string, duration float64, w, h int) *meta.VideoRecord {
	rec := &meta.VideoRecord{
		Path:        path,
		Filename:    filepath.Base(path),
		SizeBytes:   50 << 20,
		Width:       w,
		Height:      h,
		Codec:       "h264",
		Extraction:  map[meta.Source]bool{meta.SourceFFprobe: true},
		ExtractedAt: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
	}
	if duration > 0 {
		rec.DurationSec = &duration
	}
	return rec
}

// testBatch holds a BOX, a SAFETY and an UNKNOWN video plus one without
// resolution that the semantic export skips.
func testBatch(t *testing.T) (*Batch, *organize.Organizer) {
	t.Helper()

	c, err := classify.New(classify.DefaultConfig())
	require.NoError(t, err)
	exp, err := semantic.New(semantic.DefaultConfig(), nil)
	require.NoError(t, err)

	recs := []*meta.VideoRecord{
		record("/flights/8D/DJI_0593.MP4", 25, 3840, 2160),
		record("/flights/safety_check/clip1.mp4", 40, 1920, 1080),
		record("/flights/misc/clip.mp4", 12, 1920, 1080),
		record("/flights/8D/broken.mp4", 0, 0, 0),
	}

	var items []semantic.Item
	for _, rec := range recs {
		items = append(items, semantic.Item{Record: rec, Assignment: c.Classify(rec, rec.Path)})
	}

	org, err := organize.New(organize.Config{Root: t.TempDir(), BatchName: "survey"})
	require.NoError(t, err)

	return &Batch{
		ID:     "b-1",
		Name:   "survey",
		Items:  items,
		Tables: exp.Export(items),
		Retry:  &util.RetryConfig{MaxAttempts: 1},
	}, org
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestMarkdown_WritesDocumentPerVideo(t *testing.T) {
	batch, org := testBatch(t)
	md := NewMarkdown()
	md.LinkThumbnails = true

	paths, err := md.Format(context.Background(), batch, org)
	require.NoError(t, err)
	require.Len(t, paths, 4)

	doc := filepath.Join(org.BatchDir(), "box", "metadata", "DJI_0593.md")
	assert.Contains(t, paths, doc)

	body := readFile(t, doc)
	assert.Contains(t, body, "# 🎥 DJI_0593.MP4")
	assert.Contains(t, body, "![Thumbnail](thumbnails/DJI_0593_thumbnail.jpg)")
	assert.Contains(t, body, "| Type | **BOX** |")
	assert.Contains(t, body, "| Bay | 8D |")
	assert.Contains(t, body, "3840x2160 (4K)")

	unknown := readFile(t, filepath.Join(org.BatchDir(), "unclassified", "metadata", "clip.md"))
	assert.Contains(t, unknown, "| Type | **UNKNOWN** |")
	assert.NotContains(t, unknown, "| Bay |")
}

func TestRenderVideoDocument_MissingFields(t *testing.T) {
	rec := record("/flights/x.mp4", 0, 0, 0)
	rec.Codec = ""
	rec.Extraction = map[meta.Source]bool{meta.SourceFFprobe: false}
	rec.Errors = map[meta.Source]string{meta.SourceFFprobe: "invalid data | truncated"}

	doc := RenderVideoDocument(semantic.Item{Record: rec, Assignment: classify.Unknown()}, "", "")

	assert.Contains(t, doc, "| Duration | _unknown_ |")
	assert.Contains(t, doc, "| ffprobe | ❌ invalid data \\| truncated |")
	assert.Contains(t, doc, "| exif | skipped |")
	assert.Contains(t, doc, "Missing: duration, resolution, codec, gps")
	assert.NotContains(t, doc, "![Thumbnail]")
	assert.Contains(t, doc, "No GPS position was found.")
}

func TestThumbnail_PlaceholderWithoutFFmpeg(t *testing.T) {
	batch, org := testBatch(t)
	th := NewThumbnail()
	th.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	th.run = func(context.Context, string, ...string) error {
		t.Fatal("ffmpeg must not run when it is not installed")
		return nil
	}

	paths, err := th.Format(context.Background(), batch, org)
	require.NoError(t, err)
	require.Len(t, paths, 4)

	thumb := filepath.Join(org.BatchDir(), "box", "metadata", "thumbnails", "DJI_0593_thumbnail.jpg")
	f, err := os.Open(thumb)
	require.NoError(t, err)
	defer f.Close()
	img, err := jpeg.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 640, img.Bounds().Dx())
	assert.Equal(t, 360, img.Bounds().Dy())
}

func TestThumbnail_FFmpegArguments(t *testing.T) {
	batch, org := testBatch(t)
	batch.Items = batch.Items[:1]

	var got []string
	th := NewThumbnail()
	th.lookPath = func(string) (string, error) { return "/usr/bin/ffmpeg", nil }
	th.run = func(_ context.Context, name string, args ...string) error {
		got = args
		return os.WriteFile(args[len(args)-1], []byte("frame"), 0644)
	}

	paths, err := th.Format(context.Background(), batch, org)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	joined := strings.Join(got, " ")
	assert.Contains(t, joined, "-ss 3 -i /flights/8D/DJI_0593.MP4")
	assert.Contains(t, joined, "-vframes 1 -vf scale=640:-1 -q:v 2")
	assert.Equal(t, "frame", readFile(t, paths[0]))
}

func TestThumbnail_ShortClipSeeksToMiddle(t *testing.T) {
	batch, org := testBatch(t)
	short := record("/flights/8D/short.mp4", 2, 1280, 720)
	batch.Items = []semantic.Item{{Record: short, Assignment: batch.Items[0].Assignment}}

	var seek string
	th := NewThumbnail()
	th.lookPath = func(string) (string, error) { return "ffmpeg", nil }
	th.run = func(_ context.Context, _ string, args ...string) error {
		for i, a := range args {
			if a == "-ss" {
				seek = args[i+1]
			}
		}
		return os.WriteFile(args[len(args)-1], []byte("frame"), 0644)
	}

	_, err := th.Format(context.Background(), batch, org)
	require.NoError(t, err)
	assert.Equal(t, "1", seek)
}

func TestThumbnail_FFmpegFailureFallsBack(t *testing.T) {
	batch, org := testBatch(t)
	batch.Items = batch.Items[:1]

	th := NewThumbnail()
	th.lookPath = func(string) (string, error) { return "ffmpeg", nil }
	th.run = func(context.Context, string, ...string) error { return errors.New("invalid data") }

	paths, err := th.Format(context.Background(), batch, org)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	_, err = jpeg.Decode(bytes.NewReader(data))
	assert.NoError(t, err, "expected placeholder JPEG")
}

func TestSemanticCSV_BatchAndMissionTables(t *testing.T) {
	batch, org := testBatch(t)

	paths, err := NewSemanticCSV().Format(context.Background(), batch, org)
	require.NoError(t, err)

	for _, name := range semantic.TableNames {
		assert.FileExists(t, filepath.Join(org.BatchDir(), "semantic", name+".csv"))
		assert.FileExists(t, filepath.Join(org.BatchDir(), "box", "semantic", name+".csv"))
		assert.FileExists(t, filepath.Join(org.BatchDir(), "safety", "semantic", name+".csv"))
	}
	// 7 batch-wide plus 7 for each of three missions
	assert.Len(t, paths, 28)

	facts := readCSV(t, filepath.Join(org.BatchDir(), "semantic", "flight_facts.csv"))
	require.Len(t, facts, 4, "header plus three included videos")
	assert.Equal(t, "flight_id", facts[0][0])
	assert.Equal(t, "flight_001", facts[1][0])
	assert.Equal(t, "DJI_0593.MP4", facts[1][1])

	res := readCSV(t, filepath.Join(org.BatchDir(), "semantic", "resolution_dimension.csv"))
	assert.Len(t, res, 3, "two distinct resolutions")

	boxFacts := readCSV(t, filepath.Join(org.BatchDir(), "box", "semantic", "flight_facts.csv"))
	require.Len(t, boxFacts, 2, "broken.mp4 stays out of the mission tables")
	assert.Equal(t, "BOX", boxFacts[1][colIndex(t, boxFacts[0], "mission_type")])

	// a video keeps its flight_id in the mission tables
	idCol, srcCol := colIndex(t, facts[0], "flight_id"), colIndex(t, facts[0], "source_path")
	batchIDs := map[string]string{}
	for _, row := range facts[1:] {
		batchIDs[row[srcCol]] = row[idCol]
	}
	assert.Equal(t, batchIDs["/flights/8D/DJI_0593.MP4"], boxFacts[1][idCol])

	safetyFacts := readCSV(t, filepath.Join(org.BatchDir(), "safety", "semantic", "flight_facts.csv"))
	require.Len(t, safetyFacts, 2)
	assert.Equal(t, "/flights/safety_check/clip1.mp4", safetyFacts[1][srcCol])
	assert.Equal(t, "flight_002", safetyFacts[1][idCol])
	assert.Equal(t, batchIDs["/flights/safety_check/clip1.mp4"], safetyFacts[1][idCol])
}

func colIndex(t *testing.T, header []string, name string) int {
	t.Helper()
	for i, h := range header {
		if h == name {
			return i
		}
	}
	t.Fatalf("column %s not found in %v", name, header)
	return -1
}

func TestSemanticCSV_RequiresExport(t *testing.T) {
	batch, org := testBatch(t)
	batch.Tables = nil

	_, err := NewSemanticCSV().Format(context.Background(), batch, org)
	assert.Error(t, err)
}

func TestClassificationCSV(t *testing.T) {
	batch, org := testBatch(t)

	paths, err := NewClassificationCSV().Format(context.Background(), batch, org)
	require.NoError(t, err)
	assert.Len(t, paths, 4)

	rows := readCSV(t, filepath.Join(org.BatchDir(), "reports", "classifications.csv"))
	require.Len(t, rows, 5)
	assert.Equal(t, ClassificationColumns, rows[0])
	assert.Equal(t, []string{"DJI_0593.MP4", "BOX", "0.92", "bay_pattern", "8D", "25.00", "", ""}, rows[1])
	assert.Equal(t, []string{"clip1.mp4", "SAFETY", "0.80", "safety_keyword", "", "40.00", "", ""}, rows[2])
	assert.Equal(t, "UNKNOWN", rows[3][1])
	assert.Equal(t, "", rows[4][5], "unknown duration stays empty")

	safety := readCSV(t, filepath.Join(org.BatchDir(), "safety", "reports", "classifications.csv"))
	assert.Len(t, safety, 2)
}

func TestClassificationRecord_FailedExtraction(t *testing.T) {
	rec := record("/flights/bad.mp4", 0, 0, 0)
	rec.Extraction = map[meta.Source]bool{meta.SourceFFprobe: false}
	alt := 42.0
	rec.GPS = &meta.GPS{Latitude: 1, Longitude: 2, Altitude: &alt}

	got := ClassificationRecord(semantic.Item{Record: rec, Assignment: classify.Unknown()})

	assert.Equal(t, "42.0", got[6])
	assert.Equal(t, "extraction failed", got[7])
}

func TestDatasetIndex(t *testing.T) {
	batch, org := testBatch(t)
	d := NewDatasetIndex()
	d.now = func() time.Time { return time.Date(2024, 3, 16, 9, 0, 0, 0, time.UTC) }

	paths, err := d.Format(context.Background(), batch, org)
	require.NoError(t, err)
	assert.Len(t, paths, 4, "index plus three mission READMEs")

	index := readFile(t, filepath.Join(org.BatchDir(), "DATASET_INDEX.md"))
	assert.Contains(t, index, "**Generated:** 2024-03-16 09:00:00")
	assert.Contains(t, index, "| Videos | 4 |")
	assert.Contains(t, index, "[DJI_0593.MP4](box/metadata/DJI_0593.md)")
	assert.Contains(t, index, "| BOX | 2 |")
	assert.Contains(t, index, "[box/](box/README.md)")
	assert.Contains(t, index, "| 3840x2160 | 4K | 16:9 |")
	assert.Contains(t, index, "/flights/8D/broken.mp4")

	readme := readFile(t, filepath.Join(org.BatchDir(), "box", "README.md"))
	assert.Contains(t, readme, "# BOX Missions")
	assert.Contains(t, readme, "- Bays: 8D")
	assert.Contains(t, readme, "[DJI_0593.MP4](metadata/DJI_0593.md)")
}

func TestWorkbook(t *testing.T) {
	batch, org := testBatch(t)

	paths, err := NewWorkbook().Format(context.Background(), batch, org)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(org.BatchDir(), "semantic", WorkbookName)}, paths)

	f, err := excelize.OpenFile(paths[0])
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	for _, name := range semantic.TableNames {
		assert.Contains(t, sheets, name)
	}
	assert.Contains(t, sheets, "classifications")
	assert.NotContains(t, sheets, "Sheet1")

	rows, err := f.GetRows(semantic.TableFacts)
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	assert.Equal(t, "flight_id", rows[0][0])

	cls, err := f.GetRows("classifications")
	require.NoError(t, err)
	assert.Len(t, cls, 5)
}

type stubFormatter struct {
	name  string
	err   error
	calls *[]string
}

func (s stubFormatter) Name() string { return s.name }

func (s stubFormatter) Format(context.Context, *Batch, *organize.Organizer) ([]string, error) {
	*s.calls = append(*s.calls, s.name)
	return []string{s.name + ".out"}, s.err
}

func TestRun_ContinuesPastFormatterError(t *testing.T) {
	batch, org := testBatch(t)
	var calls []string

	written, err := Run(context.Background(), []Formatter{
		stubFormatter{name: "a", calls: &calls},
		stubFormatter{name: "b", err: errors.New("boom"), calls: &calls},
		stubFormatter{name: "c", calls: &calls},
	}, batch, org)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "b: boom")
	assert.Equal(t, []string{"a", "b", "c"}, calls)
	assert.Equal(t, []string{"a.out", "b.out", "c.out"}, written)
}

func TestRun_StopsOnFatal(t *testing.T) {
	batch, org := testBatch(t)
	var calls []string

	_, err := Run(context.Background(), []Formatter{
		stubFormatter{name: "a", err: fmt.Errorf("%w: disk", util.ErrFatal), calls: &calls},
		stubFormatter{name: "b", calls: &calls},
	}, batch, org)

	require.Error(t, err)
	assert.True(t, util.IsFatal(err))
	assert.Equal(t, []string{"a"}, calls)
}

func TestStandard(t *testing.T) {
	names := func(fs []Formatter) []string {
		var out []string
		for _, f := range fs {
			out = append(out, f.Name())
		}
		return out
	}

	assert.Equal(t,
		[]string{"markdown", "thumbnail", "semantic-csv", "classifications", "dataset-index", "workbook"},
		names(Standard(Options{Thumbnails: true, Workbook: true})))
	assert.Equal(t,
		[]string{"markdown", "semantic-csv", "classifications", "dataset-index"},
		names(Standard(Options{})))
}
