package ingest

import (
	"bytes"
	"fmt"
	"iter"
	"slices"

	"github.com/xuri/excelize/v2"
)

// workbookRows reads every row of the first sheet.
func workbookRows(data []byte) (iter.Seq[[]string], error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", ErrUnreadableFile)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets: %w", ErrUnreadableFile)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], ErrUnreadableFile)
	}

	rows = slices.DeleteFunc(rows, blankRow)
	return slices.Values(rows), nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
