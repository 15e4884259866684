package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/franz/drone-catalog/internal/classify"
	"github.com/franz/drone-catalog/internal/format"
	"github.com/franz/drone-catalog/internal/meta"
	"github.com/franz/drone-catalog/internal/organize"
	"github.com/franz/drone-catalog/internal/semantic"
	"github.com/franz/drone-catalog/internal/store"
)

// Output kinds stored in the catalog
const (
	OutputDocument        = "document"
	OutputThumbnail       = "thumbnail"
	OutputVideo           = "video"
	OutputSemanticCSV     = "semantic_csv"
	OutputClassifications = "classifications"
	OutputWorkbook        = "workbook"
	OutputIndex           = "index"
	OutputReadme          = "readme"
	OutputSummary         = "summary"
	OutputOther           = "other"
)

// outputKind names a batch-level file by its location
func outputKind(path string) string {
	base := filepath.Base(path)
	switch {
	case base == format.IndexFileName:
		return OutputIndex
	case base == format.ReadmeFileName:
		return OutputReadme
	case base == SummaryFileName:
		return OutputSummary
	case base == format.ClassificationsFileName:
		return OutputClassifications
	case strings.HasSuffix(base, ".xlsx"):
		return OutputWorkbook
	case strings.HasSuffix(base, ".csv"):
		return OutputSemanticCSV
	case strings.HasSuffix(base, "_thumbnail.jpg"):
		return OutputThumbnail
	case strings.HasSuffix(base, ".md"):
		return OutputDocument
	}
	return OutputOther
}

// insertOutputs records written paths. Per-video artifacts are matched to
// their video by resolving their paths again, which the organizer
// guarantees to be stable.
func insertOutputs(db *store.Store, batchID string, org *organize.Organizer, items []semantic.Item, videos []*store.Video, written []string) error {
	if len(written) == 0 {
		return nil
	}

	type owner struct {
		videoID int64
		kind    string
	}
	owners := make(map[string]owner)
	for i, it := range items {
		if i >= len(videos) {
			break
		}
		for kind, name := range map[organize.Kind]string{
			organize.KindDocument:  OutputDocument,
			organize.KindThumbnail: OutputThumbnail,
			organize.KindVideo:     OutputVideo,
		} {
			p, err := org.ResolvePath(it.Assignment.Mission, kind, it.Record.Path)
			if err != nil {
				continue
			}
			owners[p.String()] = owner{videoID: videos[i].ID, kind: name}
		}
	}

	outputs := make([]*store.Output, 0, len(written))
	for _, path := range written {
		o := &store.Output{BatchID: batchID, Path: path}
		if own, ok := owners[path]; ok {
			o.VideoID = own.videoID
			o.Kind = own.kind
		} else {
			o.Kind = outputKind(path)
		}
		if info, err := os.Lstat(path); err == nil {
			o.Bytes = info.Size()
		}
		outputs = append(outputs, o)
	}
	return db.InsertOutputs(outputs)
}

// decodeRecord restores a stored VideoRecord
func decodeRecord(data string) (*meta.VideoRecord, error) {
	if data == "" {
		return nil, fmt.Errorf("no stored record")
	}
	var rec meta.VideoRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &rec, nil
}

func storeAssignment(a classify.Assignment) *store.Assignment {
	return &store.Assignment{
		Mission:    string(a.Mission),
		Confidence: a.Confidence,
		Bay:        a.Bay,
		Method:     string(a.Method),
		Note:       a.Note,
	}
}

// classifyAssignment converts a stored assignment back. Unknown mission
// names become UNKNOWN.
func classifyAssignment(a *store.Assignment) classify.Assignment {
	if a == nil {
		return classify.Unknown()
	}
	mission, err := classify.ParseMission(a.Mission)
	if err != nil || mission == classify.MissionUnknown {
		return classify.Unknown()
	}
	return classify.Assignment{
		Mission:    mission,
		Confidence: a.Confidence,
		Bay:        a.Bay,
		Method:     classify.Method(a.Method),
		Note:       a.Note,
	}
}
