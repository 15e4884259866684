package format

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/franz/drone-catalog/internal/organize"
	"github.com/franz/drone-catalog/internal/semantic"
)

// WorkbookName is the file the workbook formatter writes under {batch}/semantic
const WorkbookName = "semantic_model.xlsx"

const classificationsSheet = "classifications"

// Workbook writes the semantic tables as one XLSX file, one sheet per
// table plus a classifications sheet.
type Workbook struct{}

// NewWorkbook creates the XLSX formatter
func NewWorkbook() *Workbook {
	return &Workbook{}
}

func (w *Workbook) Name() string { return "workbook" }

func (w *Workbook) Format(ctx context.Context, batch *Batch, org *organize.Organizer) ([]string, error) {
	if batch.Tables == nil {
		return nil, fmt.Errorf("batch has no semantic export")
	}

	data, err := BuildWorkbook(batch.Tables, batch.Items)
	if err != nil {
		return nil, err
	}

	p, err := org.ResolveBatchPath(organize.CategorySemantic, WorkbookName)
	if err != nil {
		return nil, err
	}
	if err := writeFile(ctx, batch, "xlsx", "", p.String(), data); err != nil {
		return nil, err
	}
	return []string{p.String()}, nil
}

// BuildWorkbook renders the tables to XLSX bytes. Sheets are named after
// the tables; nil values are left blank.
func BuildWorkbook(tables *semantic.Tables, items []semantic.Item) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for _, tbl := range tables.All() {
		rows := make([][]any, 0, tbl.Len())
		for _, r := range tbl.Rows {
			row := make([]any, len(tbl.Columns))
			for c, col := range tbl.Columns {
				row[c] = cellValue(r[col])
			}
			rows = append(rows, row)
		}
		if err := writeSheet(f, tbl.Name, tbl.Columns, rows, header); err != nil {
			return nil, err
		}
	}

	rows := make([][]any, 0, len(items))
	for _, it := range items {
		rec := ClassificationRecord(it)
		row := make([]any, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		row[2] = it.Assignment.Confidence
		rows = append(rows, row)
	}
	if err := writeSheet(f, classificationsSheet, ClassificationColumns, rows, header); err != nil {
		return nil, err
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to remove default sheet: %w", err)
	}
	if idx, err := f.GetSheetIndex(semantic.TableFacts); err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, columns []string, rows [][]any, headerStyle int) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to add sheet %s: %w", sheet, err)
	}

	for i, h := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("failed to set %s!%s: %w", sheet, cell, err)
			}
		}
	}

	last, _ := excelize.ColumnNumberToName(len(columns))
	_ = f.SetCellStyle(sheet, "A1", last+"1", headerStyle)
	_ = f.SetColWidth(sheet, "A", last, 16)
	_ = f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
	if len(rows) > 0 {
		end, _ := excelize.CoordinatesToCellName(len(columns), len(rows)+1)
		_ = f.AutoFilter(sheet, "A1:"+end, nil)
	}
	return nil
}

// cellValue maps a semantic scalar to something excelize stores natively
func cellValue(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case semantic.Provenance:
		return string(x)
	}
	return v
}
