package format

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/franz/drone-catalog/internal/classify"
	"github.com/franz/drone-catalog/internal/organize"
	"github.com/franz/drone-catalog/internal/semantic"
	"github.com/franz/drone-catalog/internal/util"
)

var missionDescriptions = map[classify.Mission]string{
	classify.MissionBox:     "Structural box inspection flights, grouped by bay.",
	classify.MissionSafety:  "Safety-focused inspection flights.",
	classify.MissionUnknown: "Flights no rule could classify. Add an override or a bay folder to classify them.",
}

// DatasetIndex writes DATASET_INDEX.md at the batch root and a README.md
// in every mission folder that has videos.
type DatasetIndex struct {
	now func() time.Time
}

// NewDatasetIndex creates the index formatter
func NewDatasetIndex() *DatasetIndex {
	return &DatasetIndex{now: time.Now}
}

func (d *DatasetIndex) Name() string { return "dataset-index" }

func (d *DatasetIndex) Format(ctx context.Context, batch *Batch, org *organize.Organizer) ([]string, error) {
	docs := make(map[string]organize.Path, len(batch.Items))
	for _, it := range batch.Items {
		p, err := org.ResolvePath(it.Assignment.Mission, organize.KindDocument, it.Record.Path)
		if err != nil {
			return nil, err
		}
		docs[it.Record.Path] = p
	}

	var written []string

	p, err := org.ResolveBatchPath("", IndexFileName)
	if err != nil {
		return nil, err
	}
	index := d.renderIndex(batch, docs)
	if err := writeFile(ctx, batch, "index", "", p.String(), []byte(index)); err != nil {
		return nil, err
	}
	written = append(written, p.String())

	groups := batch.ByMission()
	for _, m := range classify.Missions {
		items := groups[m]
		if len(items) == 0 {
			continue
		}
		p, err := org.ResolveMissionPath(m, "", ReadmeFileName)
		if err != nil {
			return written, err
		}
		readme := renderMissionReadme(m, items, docs, p.Dir())
		if err := writeFile(ctx, batch, "readme", "", p.String(), []byte(readme)); err != nil {
			return written, err
		}
		written = append(written, p.String())
	}

	return written, nil
}

func (d *DatasetIndex) renderIndex(batch *Batch, docs map[string]organize.Path) string {
	var md strings.Builder
	stats := batch.Stats()
	groups := batch.ByMission()

	var totalBytes int64
	var totalSec float64
	for _, it := range batch.Items {
		totalBytes += it.Record.SizeBytes
		if it.Record.HasDuration() {
			totalSec += *it.Record.DurationSec
		}
	}

	md.WriteString("# 🚁 Drone Video Dataset Index\n\n")
	md.WriteString(fmt.Sprintf("**Batch:** %s  \n", batch.Name))
	if batch.ID != "" {
		md.WriteString(fmt.Sprintf("**Batch ID:** `%s`  \n", batch.ID))
	}
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", d.now().Format("2006-01-02 15:04:05")))

	md.WriteString("## 📊 Overview\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Videos | %s |\n", util.FormatCount(len(batch.Items))))
	md.WriteString(fmt.Sprintf("| Total duration | %s |\n", util.FormatSeconds(totalSec)))
	md.WriteString(fmt.Sprintf("| Total size | %s |\n", util.FormatBytes(totalBytes)))
	md.WriteString(fmt.Sprintf("| Classified | %d (%.1f%%) |\n", stats.Classified(), stats.ClassifiedShare()*100))
	md.WriteString(fmt.Sprintf("| Average confidence | %.2f |\n", stats.AvgConfidence))
	md.WriteString(fmt.Sprintf("| High confidence (≥ %.1f) | %.1f%% |\n", classify.HighConfidence, stats.HighConfidenceShare()*100))
	if batch.Tables != nil {
		md.WriteString(fmt.Sprintf("| In semantic model | %d |\n", batch.Tables.Facts.Len()))
		md.WriteString(fmt.Sprintf("| Skipped from semantic model | %d |\n", len(batch.Tables.Skipped)))
	}
	md.WriteString("\n")

	md.WriteString("## 🎯 Missions\n\n")
	md.WriteString("| Mission | Videos | Duration | Bays | Folder |\n")
	md.WriteString("|---------|--------|----------|------|--------|\n")
	for _, m := range classify.Missions {
		items := groups[m]
		if len(items) == 0 {
			continue
		}
		var sec float64
		for _, it := range items {
			if it.Record.HasDuration() {
				sec += *it.Record.DurationSec
			}
		}
		md.WriteString(fmt.Sprintf("| %s | %d | %s | %s | [%s/](%s/README.md) |\n",
			m, len(items), util.FormatSeconds(sec), strings.Join(bays(items), ", "), m.Folder(), m.Folder()))
	}
	md.WriteString("\n")

	md.WriteString("### By method\n\n")
	methods := make([]string, 0, len(stats.ByMethod))
	for method := range stats.ByMethod {
		methods = append(methods, string(method))
	}
	sort.Strings(methods)
	for _, method := range methods {
		md.WriteString(fmt.Sprintf("- %s: %d\n", method, stats.ByMethod[classify.Method(method)]))
	}
	md.WriteString("\n")

	if batch.Tables != nil && batch.Tables.Resolution.Len() > 0 {
		md.WriteString("## 🖥️ Resolutions\n\n")
		md.WriteString("| Resolution | Quality | Aspect |\n")
		md.WriteString("|------------|---------|--------|\n")
		for _, row := range batch.Tables.Resolution.Rows {
			md.WriteString(fmt.Sprintf("| %s | %s | %s |\n",
				semantic.FormatValue(row["resolution_id"]),
				semantic.FormatValue(row["quality_category"]),
				semantic.FormatValue(row["aspect_ratio"])))
		}
		md.WriteString("\n")
	}

	md.WriteString("## 🎥 Videos\n\n")
	md.WriteString("| Video | Mission | Bay | Duration | Resolution | Size |\n")
	md.WriteString("|-------|---------|-----|----------|------------|------|\n")
	for _, it := range batch.Items {
		rec := it.Record
		md.WriteString(fmt.Sprintf("| [%s](%s) | %s | %s | %s | %s | %s |\n",
			rec.Filename, filepath.ToSlash(docs[rec.Path].Rel()),
			it.Assignment.Mission, dash(it.Assignment.Bay),
			durationCell(it), resolutionCell(it), util.FormatBytes(rec.SizeBytes)))
	}
	md.WriteString("\n")

	if batch.Tables != nil && len(batch.Tables.Skipped) > 0 {
		md.WriteString("## ⚠️ Skipped from semantic model\n\n")
		for _, sk := range batch.Tables.Skipped {
			md.WriteString(fmt.Sprintf("- `%s`: %v\n", sk.Path, sk.Err))
		}
		md.WriteString("\n")
	}

	md.WriteString("## 📂 Layout\n\n")
	md.WriteString("```\n")
	md.WriteString(batch.Name + "/\n")
	md.WriteString("├── DATASET_INDEX.md\n")
	md.WriteString("├── semantic/            # batch-wide fact and dimension tables\n")
	md.WriteString("├── reports/             # classifications.csv\n")
	md.WriteString("├── batch_reports/       # organization summary\n")
	md.WriteString("└── <mission>/\n")
	md.WriteString("    ├── README.md\n")
	md.WriteString("    ├── metadata/         # one document per video\n")
	md.WriteString("    │   └── thumbnails/\n")
	md.WriteString("    ├── reports/\n")
	md.WriteString("    └── semantic/\n")
	md.WriteString("```\n")

	return md.String()
}

func renderMissionReadme(m classify.Mission, items []semantic.Item, docs map[string]organize.Path, dir string) string {
	var md strings.Builder

	md.WriteString(fmt.Sprintf("# %s Missions\n\n", m))
	md.WriteString(missionDescriptions[m] + "\n\n")

	var sec, conf float64
	for _, it := range items {
		if it.Record.HasDuration() {
			sec += *it.Record.DurationSec
		}
		conf += it.Assignment.Confidence
	}

	md.WriteString(fmt.Sprintf("- Videos: %d\n", len(items)))
	md.WriteString(fmt.Sprintf("- Total duration: %s\n", util.FormatSeconds(sec)))
	md.WriteString(fmt.Sprintf("- Average confidence: %.2f\n", conf/float64(len(items))))
	if bs := bays(items); len(bs) > 0 {
		md.WriteString(fmt.Sprintf("- Bays: %s\n", strings.Join(bs, ", ")))
	}
	md.WriteString("\n")

	md.WriteString("## Videos\n\n")
	md.WriteString("| Video | Bay | Duration | Resolution | Confidence | Method |\n")
	md.WriteString("|-------|-----|----------|------------|------------|--------|\n")
	for _, it := range items {
		md.WriteString(fmt.Sprintf("| [%s](%s) | %s | %s | %s | %.2f | %s |\n",
			it.Record.Filename, relLink(dir, docs[it.Record.Path].String()),
			dash(it.Assignment.Bay), durationCell(it), resolutionCell(it),
			it.Assignment.Confidence, it.Assignment.Method))
	}
	md.WriteString("\n")

	md.WriteString("## Files\n\n")
	md.WriteString("- `metadata/`: per-video documents and thumbnails\n")
	md.WriteString("- `reports/classifications.csv`: assignments for this mission\n")
	md.WriteString("- `semantic/`: fact and dimension tables for this mission\n")

	return md.String()
}

// bays returns the distinct bay designations in first-seen order
func bays(items []semantic.Item) []string {
	seen := make(map[string]bool)
	var out []string
	for _, it := range items {
		if b := it.Assignment.Bay; b != "" && !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	return out
}

func durationCell(it semantic.Item) string {
	if !it.Record.HasDuration() {
		return "-"
	}
	return util.FormatSeconds(*it.Record.DurationSec)
}

func resolutionCell(it semantic.Item) string {
	if !it.Record.HasResolution() {
		return "-"
	}
	return semantic.ResolutionID(it.Record.Width, it.Record.Height)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
