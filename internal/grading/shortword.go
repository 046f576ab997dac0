package grading

import (
	"context"
	"unicode"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// shortWordStrategy compares normalized text. A near miss within maxEdit
// earns half marks and is therefore never correct.
type shortWordStrategy struct{ maxEdit int }

func (s shortWordStrategy) Grade(_ context.Context, q quiz.Question, response any) (outcome, error) {
	resp, ok := response.(string)
	if !ok {
		return outcome{}, errShape
	}
	got := normalize(resp)
	near := false
	for _, k := range q.AnswerKey {
		want := normalize(k)
		if want == got {
			return outcome{Marks: q.Points, Full: true}, nil
		}
		if s.maxEdit > 0 && levenshtein(want, got) <= s.maxEdit {
			near = true
		}
	}
	if near {
		return outcome{Marks: q.Points / 2, Note: "Close, check your spelling."}, nil
	}
	return outcome{}, nil
}

// normalize folds case, drops punctuation and collapses whitespace.
func normalize(s string) string {
	out := make([]rune, 0, len(s))
	pendingSpace := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = len(out) > 0
		case unicode.IsPunct(r):
		default:
			if pendingSpace {
				out = append(out, ' ')
				pendingSpace = false
			}
			out = append(out, unicode.ToLower(r))
		}
	}
	return string(out)
}

// levenshtein is the unit-cost edit distance over runes.
func levenshtein(a, b string) int {
	ar, br := []rune(a), []rune(b)
	if len(ar) == 0 {
		return len(br)
	}
	row := make([]int, len(br)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(ar); i++ {
		diag := row[0]
		row[0] = i
		for j := 1; j <= len(br); j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			next := min(row[j]+1, row[j-1]+1, diag+cost)
			diag = row[j]
			row[j] = next
		}
	}
	return row[len(br)]
}
