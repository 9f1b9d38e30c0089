package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

var templateRows = [][]string{
	{"What is the capital of India?", "Mumbai", "Delhi", "Chennai", "Kolkata", "B", "1", "60"},
	{"Which planet is known as the Red Planet?", "Venus", "Jupiter", "Mars", "Saturn", "C", "2", "45"},
}

// CSVTemplate returns a sample upload file with the recognised header.
func CSVTemplate() []byte {
	var b strings.Builder
	b.WriteString(strings.Join(Columns, ","))
	b.WriteByte('\n')
	for _, row := range templateRows {
		quoted := make([]string, len(row))
		for i, v := range row {
			quoted[i] = `"` + v + `"`
		}
		b.WriteString(strings.Join(quoted, ","))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// TextTemplate returns a sample block-format upload file.
func TextTemplate() []byte {
	var b strings.Builder
	for i, row := range templateRows {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Q: %s\nA) %s\nB) %s\nC) %s\nD) %s\nAnswer: %s\nMarks: %s\nTime: %s\n",
			row[0], row[1], row[2], row[3], row[4], row[5], row[6], row[7])
	}
	return []byte(b.String())
}

// WorkbookTemplate returns a sample .xlsx upload file.
func WorkbookTemplate() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, h := range Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	for r, row := range templateRows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, fmt.Errorf("write row %d: %w", r+1, err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
