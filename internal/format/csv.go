package format

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"

	"github.com/franz/drone-catalog/internal/classify"
	"github.com/franz/drone-catalog/internal/organize"
	"github.com/franz/drone-catalog/internal/semantic"
)

// SemanticCSV writes the seven semantic tables as CSV, once for the whole
// batch under {batch}/semantic and once per mission under
// {mission}/semantic. Mission tables are views of the batch-wide export.
type SemanticCSV struct {
	PerMission bool
}

// NewSemanticCSV creates the semantic CSV formatter
func NewSemanticCSV() *SemanticCSV {
	return &SemanticCSV{PerMission: true}
}

func (s *SemanticCSV) Name() string { return "semantic-csv" }

func (s *SemanticCSV) Format(ctx context.Context, batch *Batch, org *organize.Organizer) ([]string, error) {
	if batch.Tables == nil {
		return nil, fmt.Errorf("batch has no semantic export")
	}

	var written []string
	for _, tbl := range batch.Tables.All() {
		p, err := org.ResolveBatchPath(organize.CategorySemantic, tbl.Name+".csv")
		if err != nil {
			return written, err
		}
		if err := writeTable(ctx, batch, tbl, p.String()); err != nil {
			return written, err
		}
		batch.Logger.LogExport(tbl.Name, tbl.Len(), p.String())
		written = append(written, p.String())
	}

	if !s.PerMission {
		return written, nil
	}

	for _, mission := range classify.Missions {
		tables := batch.Tables.ForMission(mission)
		if tables.Facts.Len() == 0 {
			continue
		}

		for _, tbl := range tables.All() {
			p, err := org.ResolveMissionPath(mission, organize.CategorySemantic, tbl.Name+".csv")
			if err != nil {
				return written, err
			}
			if err := writeTable(ctx, batch, tbl, p.String()); err != nil {
				return written, err
			}
			written = append(written, p.String())
		}
	}

	return written, nil
}

func writeTable(ctx context.Context, batch *Batch, tbl *semantic.Table, dest string) error {
	rows := make([][]string, 0, tbl.Len()+1)
	rows = append(rows, tbl.Columns)
	for i := range tbl.Rows {
		rows = append(rows, tbl.Record(i))
	}
	data, err := encodeCSV(rows)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", tbl.Name, err)
	}
	return writeFile(ctx, batch, "csv", "", dest, data)
}

func encodeCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ClassificationColumns is the header of classifications.csv
var ClassificationColumns = []string{
	"filename", "mission_type", "confidence", "method",
	"bay_designation", "duration_sec", "altitude_m", "notes",
}

// ClassificationCSV lists every assignment, batch-wide in
// {batch}/reports/classifications.csv and per mission in
// {mission}/reports/classifications.csv.
type ClassificationCSV struct{}

// NewClassificationCSV creates the classification report formatter
func NewClassificationCSV() *ClassificationCSV {
	return &ClassificationCSV{}
}

func (c *ClassificationCSV) Name() string { return "classifications" }

func (c *ClassificationCSV) Format(ctx context.Context, batch *Batch, org *organize.Organizer) ([]string, error) {
	var written []string

	p, err := org.ResolveBatchPath(organize.CategoryReports, ClassificationsFileName)
	if err != nil {
		return nil, err
	}
	if err := c.write(ctx, batch, batch.Items, p.String()); err != nil {
		return nil, err
	}
	written = append(written, p.String())

	groups := batch.ByMission()
	missions := make([]classify.Mission, 0, len(groups))
	for m := range groups {
		missions = append(missions, m)
	}
	sort.Slice(missions, func(i, j int) bool { return missions[i] < missions[j] })

	for _, m := range missions {
		p, err := org.ResolveMissionPath(m, organize.CategoryReports, ClassificationsFileName)
		if err != nil {
			return written, err
		}
		if err := c.write(ctx, batch, groups[m], p.String()); err != nil {
			return written, err
		}
		written = append(written, p.String())
	}
	return written, nil
}

func (c *ClassificationCSV) write(ctx context.Context, batch *Batch, items []semantic.Item, dest string) error {
	rows := [][]string{ClassificationColumns}
	for _, it := range items {
		rows = append(rows, ClassificationRecord(it))
	}
	data, err := encodeCSV(rows)
	if err != nil {
		return fmt.Errorf("failed to encode classifications: %w", err)
	}
	return writeFile(ctx, batch, "csv", "", dest, data)
}

// ClassificationRecord renders one item in ClassificationColumns order.
// Unknown duration or altitude is left empty.
func ClassificationRecord(it semantic.Item) []string {
	rec, a := it.Record, it.Assignment

	duration := ""
	if rec.HasDuration() {
		duration = fmt.Sprintf("%.2f", *rec.DurationSec)
	}
	altitude := ""
	if alt, ok := rec.Altitude(); ok {
		altitude = fmt.Sprintf("%.1f", alt)
	}
	notes := a.Note
	if !rec.Succeeded() {
		notes = joinNonEmpty("; ", notes, "extraction failed")
	}

	return []string{
		rec.Filename,
		string(a.Mission),
		fmt.Sprintf("%.2f", a.Confidence),
		string(a.Method),
		a.Bay,
		duration,
		altitude,
		notes,
	}
}

func joinNonEmpty(sep string, parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += sep
		}
		out += p
	}
	return out
}

