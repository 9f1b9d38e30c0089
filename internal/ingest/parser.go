// Package ingest turns uploaded question files into question records.
//
// Three grammars are understood: header-driven CSV, blank-line separated
// text blocks, and .xlsx workbooks using the same header row as CSV. Rows or
// blocks that lack a question, any of the four options or the answer are
// dropped without being reported.
package ingest

import (
	"errors"
	"iter"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrNoValidQuestions is returned by Parse when no record survives.
	ErrNoValidQuestions = errors.New("no valid questions found")
	// ErrUnreadableFile is returned when a workbook cannot be opened.
	ErrUnreadableFile = errors.New("unreadable file")
)

// DefaultMarks is used when a record has no usable marks value.
const DefaultMarks = 1

// Record is one candidate question. Order is the 1-based position among
// the records yielded for a file.
type Record struct {
	QuestionText  string
	OptionA       string
	OptionB       string
	OptionC       string
	OptionD       string
	CorrectAnswer string
	Marks         int
	TimeLimit     *int
	Order         int
}

func (r Record) complete() bool {
	return r.QuestionText != "" &&
		r.OptionA != "" && r.OptionB != "" && r.OptionC != "" && r.OptionD != "" &&
		r.CorrectAnswer != ""
}

// Format identifies the grammar used for a file.
type Format int

const (
	FormatCSV Format = iota
	FormatText
	FormatWorkbook
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatWorkbook:
		return "xlsx"
	default:
		return "csv"
	}
}

// DetectFormat selects the grammar from the original filename.
// Anything that is not .txt or .xlsx is read as CSV.
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return FormatText
	case ".xlsx":
		return FormatWorkbook
	default:
		return FormatCSV
	}
}

// Records returns a lazy sequence of the complete records found in data.
// The only error is ErrUnreadableFile for a workbook that cannot be opened;
// CSV and text input never fail here.
func Records(data []byte, filename string) (iter.Seq[Record], error) {
	var raw iter.Seq[Record]
	switch DetectFormat(filename) {
	case FormatText:
		raw = textRecords(string(data))
	case FormatWorkbook:
		rows, err := workbookRows(data)
		if err != nil {
			return nil, err
		}
		raw = tableRecords(rows)
	default:
		raw = tableRecords(csvRows(string(data)))
	}
	return numbered(raw), nil
}

// Parse collects every record in data. It returns ErrNoValidQuestions when
// the file holds none.
func Parse(data []byte, filename string) ([]Record, error) {
	seq, err := Records(data, filename)
	if err != nil {
		return nil, err
	}

	var out []Record
	for r := range seq {
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, ErrNoValidQuestions
	}
	return out, nil
}

func numbered(seq iter.Seq[Record]) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		n := 0
		for r := range seq {
			if !r.complete() {
				continue
			}
			n++
			r.Order = n
			if !yield(r) {
				return
			}
		}
	}
}

// parseMarks falls back to DefaultMarks for empty, non-numeric or
// non-positive input.
func parseMarks(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return DefaultMarks
	}
	return n
}

// parseTimeLimit returns nil for empty, non-numeric or non-positive input.
func parseTimeLimit(s string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}

func normalizeAnswer(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
