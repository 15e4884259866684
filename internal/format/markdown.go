package format

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/franz/drone-catalog/internal/meta"
	"github.com/franz/drone-catalog/internal/organize"
	"github.com/franz/drone-catalog/internal/semantic"
	"github.com/franz/drone-catalog/internal/util"
)

// maxTagRows caps the manufacturer tag table in a video document
const maxTagRows = 25

// Markdown writes one metadata document per video into {mission}/metadata
type Markdown struct {
	// LinkThumbnails adds an image link to the thumbnail the thumbnail
	// formatter writes next to the document.
	LinkThumbnails bool
}

// NewMarkdown creates the per-video document formatter
func NewMarkdown() *Markdown {
	return &Markdown{}
}

func (m *Markdown) Name() string { return "markdown" }

func (m *Markdown) Format(ctx context.Context, batch *Batch, org *organize.Organizer) ([]string, error) {
	return perItem(ctx, batch, "markdown", func(it semantic.Item) (string, error) {
		p, err := org.ResolvePath(it.Assignment.Mission, organize.KindDocument, it.Record.Path)
		if err != nil {
			return "", err
		}

		thumb := ""
		if m.LinkThumbnails {
			tp, err := org.ResolvePath(it.Assignment.Mission, organize.KindThumbnail, it.Record.Path)
			if err != nil {
				return "", err
			}
			thumb = "thumbnails/" + tp.Filename
		}

		doc := RenderVideoDocument(it, batch.Name, thumb)
		if err := writeFile(ctx, batch, "markdown", it.Record.Path, p.String(), []byte(doc)); err != nil {
			return "", err
		}
		return p.String(), nil
	})
}

// RenderVideoDocument renders the markdown document of one video.
// thumbLink is relative to the document; empty omits the image.
func RenderVideoDocument(it semantic.Item, batchName, thumbLink string) string {
	rec, a := it.Record, it.Assignment
	var md strings.Builder

	md.WriteString(fmt.Sprintf("# 🎥 %s\n\n", rec.Filename))
	if thumbLink != "" {
		md.WriteString(fmt.Sprintf("![Thumbnail](%s)\n\n", thumbLink))
	}

	md.WriteString("## 📁 File\n\n")
	md.WriteString("| Property | Value |\n")
	md.WriteString("|----------|-------|\n")
	md.WriteString(fmt.Sprintf("| Source | `%s` |\n", rec.Path))
	md.WriteString(fmt.Sprintf("| Size | %s |\n", util.FormatBytes(rec.SizeBytes)))
	if rec.FileKey != "" {
		md.WriteString(fmt.Sprintf("| File key | `%s` |\n", rec.FileKey))
	}
	if batchName != "" {
		md.WriteString(fmt.Sprintf("| Batch | %s |\n", batchName))
	}
	if rec.CreatedAt != nil {
		md.WriteString(fmt.Sprintf("| Recorded | %s |\n", rec.CreatedAt.UTC().Format(time.RFC3339)))
	}
	if rec.Make != "" || rec.Model != "" {
		md.WriteString(fmt.Sprintf("| Camera | %s |\n", strings.TrimSpace(rec.Make+" "+rec.Model)))
	}
	md.WriteString("\n")

	md.WriteString("## 🎞️ Video\n\n")
	md.WriteString("| Property | Value |\n")
	md.WriteString("|----------|-------|\n")
	md.WriteString(fmt.Sprintf("| Duration | %s |\n", orMissing(rec.HasDuration(), func() string {
		return fmt.Sprintf("%s (%.2f s)", util.FormatSeconds(*rec.DurationSec), *rec.DurationSec)
	})))
	md.WriteString(fmt.Sprintf("| Resolution | %s |\n", orMissing(rec.HasResolution(), func() string {
		return fmt.Sprintf("%dx%d (%s)", rec.Width, rec.Height, semantic.QualityLabel(rec.Width))
	})))
	md.WriteString(fmt.Sprintf("| Codec | %s |\n", orMissing(rec.Codec != "", func() string { return rec.Codec })))
	if rec.Container != "" {
		md.WriteString(fmt.Sprintf("| Container | %s |\n", rec.Container))
	}
	if rec.FrameRate > 0 {
		md.WriteString(fmt.Sprintf("| Frame rate | %.2f fps |\n", rec.FrameRate))
	}
	if rec.BitrateKbps != nil {
		md.WriteString(fmt.Sprintf("| Bitrate | %d kbps |\n", *rec.BitrateKbps))
	}
	md.WriteString("\n")

	md.WriteString("## 🎯 Mission\n\n")
	md.WriteString("| Property | Value |\n")
	md.WriteString("|----------|-------|\n")
	md.WriteString(fmt.Sprintf("| Type | **%s** |\n", a.Mission))
	md.WriteString(fmt.Sprintf("| Confidence | %.0f%% |\n", a.Confidence*100))
	md.WriteString(fmt.Sprintf("| Method | %s |\n", a.Method))
	if a.HasBay() {
		md.WriteString(fmt.Sprintf("| Bay | %s |\n", a.Bay))
	}
	if a.Note != "" {
		md.WriteString(fmt.Sprintf("| Note | %s |\n", a.Note))
	}
	md.WriteString("\n")

	md.WriteString("## 📍 Location\n\n")
	if rec.GPS == nil {
		md.WriteString("No GPS position was found.\n\n")
	} else {
		md.WriteString(fmt.Sprintf("- Latitude: %.6f\n", rec.GPS.Latitude))
		md.WriteString(fmt.Sprintf("- Longitude: %.6f\n", rec.GPS.Longitude))
		if rec.GPS.Altitude != nil {
			md.WriteString(fmt.Sprintf("- GPS altitude: %.1f m\n", *rec.GPS.Altitude))
		}
		md.WriteString(fmt.Sprintf("- [Open map](https://www.openstreetmap.org/?mlat=%.6f&mlon=%.6f#map=17/%.6f/%.6f)\n\n",
			rec.GPS.Latitude, rec.GPS.Longitude, rec.GPS.Latitude, rec.GPS.Longitude))
	}

	if rec.Telemetry != nil {
		writeTelemetry(&md, rec.Telemetry)
	}

	if len(rec.Tags) > 0 {
		md.WriteString("## 🏷️ Manufacturer Tags\n\n")
		md.WriteString("| Tag | Value |\n")
		md.WriteString("|-----|-------|\n")
		keys := rec.TagKeys()
		for i, k := range keys {
			if i == maxTagRows {
				md.WriteString(fmt.Sprintf("| ... | %d more |\n", len(keys)-maxTagRows))
				break
			}
			md.WriteString(fmt.Sprintf("| %s | %s |\n", k, escapeCell(rec.Tags[k])))
		}
		md.WriteString("\n")
	}

	md.WriteString("## 🔍 Extraction\n\n")
	md.WriteString("| Source | Status |\n")
	md.WriteString("|--------|--------|\n")
	for _, src := range meta.AllSources {
		ok, tried := rec.Extraction[src]
		switch {
		case !tried:
			md.WriteString(fmt.Sprintf("| %s | skipped |\n", src))
		case ok:
			md.WriteString(fmt.Sprintf("| %s | ✅ ok |\n", src))
		default:
			md.WriteString(fmt.Sprintf("| %s | ❌ %s |\n", src, escapeCell(rec.Errors[src])))
		}
	}
	if missing := rec.MissingFields(); len(missing) > 0 {
		md.WriteString(fmt.Sprintf("\nMissing: %s\n", strings.Join(missing, ", ")))
	}
	md.WriteString(fmt.Sprintf("\n*Extracted %s*\n", rec.ExtractedAt.UTC().Format(time.RFC3339)))

	return md.String()
}

func writeTelemetry(md *strings.Builder, t *meta.Telemetry) {
	md.WriteString("## 🛰️ Telemetry\n\n")
	md.WriteString("| Measure | Value |\n")
	md.WriteString("|---------|-------|\n")
	if t.RelativeAltitude != nil {
		md.WriteString(fmt.Sprintf("| Relative altitude | %.1f m |\n", *t.RelativeAltitude))
	}
	if t.MaxAltitude != nil {
		md.WriteString(fmt.Sprintf("| Max altitude | %.1f m |\n", *t.MaxAltitude))
	}
	if t.SpeedMS != nil {
		md.WriteString(fmt.Sprintf("| Speed | %.2f m/s |\n", *t.SpeedMS))
	}
	if t.DistanceM != nil {
		md.WriteString(fmt.Sprintf("| Distance | %.1f m |\n", *t.DistanceM))
	}
	if t.GimbalPitchDeg != nil {
		md.WriteString(fmt.Sprintf("| Gimbal pitch | %.1f° |\n", *t.GimbalPitchDeg))
	}
	if t.Frames > 0 {
		md.WriteString(fmt.Sprintf("| SRT frames | %d |\n", t.Frames))
	}
	md.WriteString("\n")
}

func orMissing(ok bool, value func() string) string {
	if !ok {
		return "_unknown_"
	}
	return value()
}

// escapeCell keeps a value from breaking a markdown table row
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 120 {
		s = s[:117] + "..."
	}
	return s
}

// relLink returns target relative to the directory of from, with forward
// slashes for markdown.
func relLink(fromDir, target string) string {
	rel, err := filepath.Rel(fromDir, target)
	if err != nil {
		return filepath.ToSlash(target)
	}
	return filepath.ToSlash(rel)
}
