// Package report compiles heterogeneous student records into a single styled
// workbook. Column layout is a function of the full record set: the subject
// union is only known once every record has been collected.
package report

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/mydiplomaclassresults/sbtet-scraper/models"
	"github.com/xuri/excelize/v2"
)

const sheet = "Sheet1"

// Compile renders the records as an in-memory workbook. Row order preserves
// the input slice; records lacking a subject get zero marks and an "AB"
// (absent) result for its four columns. Row 1 carries the subject codes
// merged across their column groups, row 2 the column names.
func Compile(records []*models.StudentRecord) (*bytes.Buffer, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to compile")
	}

	subjects := subjectUnion(records)
	columns := columnNames(subjects)

	f := excelize.NewFile()
	defer f.Close()

	// Merged subject-group header row above the column names, one merge
	// per subject spanning its EXT/INT/TOT/RES columns.
	col := 4
	for _, code := range subjects {
		startCell, err := excelize.CoordinatesToCellName(col, 1)
		if err != nil {
			return nil, fmt.Errorf("subject header cell: %w", err)
		}
		endCell, err := excelize.CoordinatesToCellName(col+3, 1)
		if err != nil {
			return nil, fmt.Errorf("subject header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, startCell, code); err != nil {
			return nil, fmt.Errorf("write subject header: %w", err)
		}
		if err := f.MergeCell(sheet, startCell, endCell); err != nil {
			return nil, fmt.Errorf("merge subject header: %w", err)
		}
		col += 4
	}

	header := make([]interface{}, len(columns))
	for i, name := range columns {
		header[i] = name
	}
	if err := writeRow(f, 2, header); err != nil {
		return nil, err
	}

	for i, record := range records {
		row := []interface{}{i + 1, record.PIN, record.Name}
		for _, code := range subjects {
			marks, ok := record.Marks[code]
			if !ok {
				row = append(row, 0, 0, 0, "AB")
				continue
			}
			row = append(row, marks.External, marks.Internal, marks.Total, marks.Result)
		}
		row = append(row, record.Total, record.OverallResult)
		if err := writeRow(f, i+3, row); err != nil {
			return nil, err
		}
	}

	if err := applyBorders(f, len(columns), len(records)+2); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf, nil
}

// Filename returns the delivery name for a compiled workbook.
func Filename(year, collegeCode, branchCode, semester string) string {
	return fmt.Sprintf("Results_%s%s_%s_Sem%s.xlsx", year, collegeCode, branchCode, semester)
}

// subjectUnion returns the sorted union of subject codes across all records.
func subjectUnion(records []*models.StudentRecord) []string {
	seen := make(map[string]struct{})
	for _, record := range records {
		for _, code := range record.Subjects {
			seen[code] = struct{}{}
		}
	}
	subjects := make([]string, 0, len(seen))
	for code := range seen {
		subjects = append(subjects, code)
	}
	sort.Strings(subjects)
	return subjects
}

func columnNames(subjects []string) []string {
	columns := []string{"SI.NO", "PINNUMBERS", "NAME"}
	for _, code := range subjects {
		columns = append(columns, code+"_EXT", code+"_INT", code+"_TOT", code+"_RES")
	}
	return append(columns, "TOTAL", "OVERALL_RESULT")
}

func writeRow(f *excelize.File, rowIdx int, values []interface{}) error {
	for i, value := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, rowIdx)
		if err != nil {
			return fmt.Errorf("row %d cell: %w", rowIdx, err)
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return fmt.Errorf("write row %d: %w", rowIdx, err)
		}
	}
	return nil
}

func applyBorders(f *excelize.File, lastCol, lastRow int) error {
	styleID, err := f.NewStyle(&excelize.Style{
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("border style: %w", err)
	}
	lastCell, err := excelize.CoordinatesToCellName(lastCol, lastRow)
	if err != nil {
		return fmt.Errorf("border range: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", lastCell, styleID); err != nil {
		return fmt.Errorf("apply borders: %w", err)
	}
	return nil
}
