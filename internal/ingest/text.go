package ingest

import (
	"iter"
	"strings"
)

type linePrefix struct {
	prefix string
	apply  func(r *Record, value string)
}

// Longer prefixes come first so "Question:" is not read as "Q".
var textPrefixes = []linePrefix{
	{"Question:", func(r *Record, v string) { r.QuestionText = v }},
	{"Q:", func(r *Record, v string) { r.QuestionText = v }},
	{"A)", func(r *Record, v string) { r.OptionA = v }},
	{"A.", func(r *Record, v string) { r.OptionA = v }},
	{"B)", func(r *Record, v string) { r.OptionB = v }},
	{"B.", func(r *Record, v string) { r.OptionB = v }},
	{"C)", func(r *Record, v string) { r.OptionC = v }},
	{"C.", func(r *Record, v string) { r.OptionC = v }},
	{"D)", func(r *Record, v string) { r.OptionD = v }},
	{"D.", func(r *Record, v string) { r.OptionD = v }},
	{"Answer:", func(r *Record, v string) { r.CorrectAnswer = normalizeAnswer(v) }},
	{"Correct:", func(r *Record, v string) { r.CorrectAnswer = normalizeAnswer(v) }},
	{"Marks:", func(r *Record, v string) { r.Marks = parseMarks(v) }},
	{"Time:", func(r *Record, v string) { r.TimeLimit = parseTimeLimit(v) }},
}

// textRecords yields one record per block of non-blank lines.
func textRecords(text string) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for block := range textBlocks(text) {
			if !yield(blockRecord(block)) {
				return
			}
		}
	}
}

func textBlocks(text string) iter.Seq[[]string] {
	return func(yield func([]string) bool) {
		var block []string
		for line := range strings.SplitSeq(text, "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				block = append(block, line)
				continue
			}
			if len(block) > 0 {
				if !yield(block) {
					return
				}
				block = nil
			}
		}
		if len(block) > 0 {
			yield(block)
		}
	}
}

func blockRecord(lines []string) Record {
	r := Record{Marks: DefaultMarks}
	for _, line := range lines {
		for _, p := range textPrefixes {
			if rest, ok := strings.CutPrefix(line, p.prefix); ok {
				p.apply(&r, strings.TrimSpace(rest))
				break
			}
		}
	}
	return r
}
