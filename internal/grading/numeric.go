package grading

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// numericStrategy matches the first answer key exactly or within tolerance:
//
//	AnswerKey: ["3.14159", "tol=0.01"]  absolute
//	AnswerKey: ["100", "reltol=0.05"]   relative
type numericStrategy struct{}

func (numericStrategy) Grade(_ context.Context, q quiz.Question, response any) (outcome, error) {
	var str string
	switch v := response.(type) {
	case string:
		str = v
	case float64:
		str = strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return outcome{}, errShape
	}
	if len(q.AnswerKey) == 0 {
		return outcome{}, nil
	}
	target := q.AnswerKey[0]
	if strings.TrimSpace(str) == target {
		return outcome{Marks: q.Points, Full: true}, nil
	}

	rv, rOK := parseFloatLoose(str)
	tv, tOK := parseFloatLoose(target)
	if !rOK {
		return outcome{Note: "That is not a number."}, nil
	}
	if !tOK {
		return outcome{}, nil
	}
	absTol, relTol := parseTolerances(q.AnswerKey[1:])
	diff := math.Abs(rv - tv)
	if diff == 0 || (absTol >= 0 && diff <= absTol) || (relTol >= 0 && diff <= relTol*math.Abs(tv)) {
		return outcome{Marks: q.Points, Full: true}, nil
	}
	return outcome{}, nil
}

// parseFloatLoose accepts a bare number or a number followed by units.
func parseFloatLoose(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, true
	}
	if fields := strings.Fields(s); len(fields) > 0 {
		if v, err := strconv.ParseFloat(fields[0], 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

func parseTolerances(keys []string) (absTol, relTol float64) {
	absTol, relTol = -1, -1
	for _, k := range keys {
		k = strings.ToLower(strings.TrimSpace(k))
		if v, ok := strings.CutPrefix(k, "tol="); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				absTol = f
			}
		}
		if v, ok := strings.CutPrefix(k, "reltol="); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				relTol = f
			}
		}
	}
	return absTol, relTol
}
