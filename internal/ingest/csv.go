package ingest

import (
	"iter"
	"strings"
)

// Header names recognised in the first CSV or workbook row.
const (
	ColQuestion      = "Question"
	ColOptionA       = "Option A"
	ColOptionB       = "Option B"
	ColOptionC       = "Option C"
	ColOptionD       = "Option D"
	ColCorrectAnswer = "Correct Answer"
	ColMarks         = "Marks"
	ColTimeLimit     = "Time Limit"
)

// Columns lists the headers in template order.
var Columns = []string{
	ColQuestion, ColOptionA, ColOptionB, ColOptionC, ColOptionD,
	ColCorrectAnswer, ColMarks, ColTimeLimit,
}

// csvRows yields the non-blank lines of text split into fields.
func csvRows(text string) iter.Seq[[]string] {
	return func(yield func([]string) bool) {
		for line := range strings.SplitSeq(text, "\n") {
			line = strings.TrimSuffix(line, "\r")
			if strings.TrimSpace(line) == "" {
				continue
			}
			if !yield(splitCSVLine(line)) {
				return
			}
		}
	}
}

// splitCSVLine splits one line on commas. A double quote toggles quoted mode
// and is not copied to the field; commas in quoted mode belong to the field.
// A doubled quote inside a field therefore disappears rather than becoming a
// literal quote.
func splitCSVLine(line string) []string {
	var (
		fields   []string
		field    strings.Builder
		inQuotes bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(field.String()))
			field.Reset()
		default:
			field.WriteRune(r)
		}
	}
	return append(fields, strings.TrimSpace(field.String()))
}

// tableRecords maps rows to records using the first row as the header.
// Header names are matched exactly; unknown columns are ignored.
func tableRecords(rows iter.Seq[[]string]) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		var index map[string]int
		for row := range rows {
			if index == nil {
				index = headerIndex(row)
				continue
			}
			if !yield(rowRecord(index, row)) {
				return
			}
		}
	}
}

func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	return index
}

func rowRecord(index map[string]int, row []string) Record {
	cell := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	return Record{
		QuestionText:  cell(ColQuestion),
		OptionA:       cell(ColOptionA),
		OptionB:       cell(ColOptionB),
		OptionC:       cell(ColOptionC),
		OptionD:       cell(ColOptionD),
		CorrectAnswer: normalizeAnswer(cell(ColCorrectAnswer)),
		Marks:         parseMarks(cell(ColMarks)),
		TimeLimit:     parseTimeLimit(cell(ColTimeLimit)),
	}
}
