package grading

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// outcome is what a strategy decides for one response.
type outcome struct {
	Marks float64
	Full  bool // full marks; the answer is correct
	Note  string
}

// Strategy marks one response to one question type.
type Strategy interface {
	Grade(ctx context.Context, q quiz.Question, response any) (outcome, error)
}

// errShape means the response had the wrong JSON shape for the question type.
var errShape = errors.New("wrong response shape")

type Option func(*config)

type config struct {
	MaxEditDistance   int  // short_word fuzzy matching
	AllowPartialMulti bool // partial credit for mcq_multi without false positives
}

func WithMaxEditDistance(n int) Option { return func(c *config) { c.MaxEditDistance = n } }
func WithPartialMulti(b bool) Option   { return func(c *config) { c.AllowPartialMulti = b } }

// Validator routes by question type and turns strategy outcomes into
// verdicts. An answer is correct only with full marks.
type Validator struct {
	strategies map[string]Strategy
}

var _ quiz.QuestionValidator = (*Validator)(nil)

func NewValidator(opts ...Option) *Validator {
	cfg := &config{
		MaxEditDistance:   1,
		AllowPartialMulti: true,
	}
	for _, o := range opts {
		o(cfg)
	}
	return &Validator{
		strategies: map[string]Strategy{
			"mcq_single": choiceStrategy{},
			"true_false": choiceStrategy{foldCase: true},
			"mcq_multi":  multiChoiceStrategy{allowPartial: cfg.AllowPartialMulti},
			"short_word": shortWordStrategy{maxEdit: cfg.MaxEditDistance},
			"numeric":    numericStrategy{},
		},
	}
}

func (v *Validator) Validate(ctx context.Context, q quiz.Question, raw string) (quiz.Verdict, error) {
	verdict := quiz.Verdict{QuestionID: q.ID, MaxMarks: q.Points}
	s, ok := v.strategies[q.Type]
	if !ok {
		verdict.Explanation = "This question cannot be marked automatically."
		return verdict, nil
	}
	out, err := s.Grade(ctx, q, decode(raw))
	if err != nil {
		if errors.Is(err, errShape) {
			return quiz.Verdict{}, quiz.ErrInvalidAnswer.WithMessage("The answer is not in the format this question expects.")
		}
		return quiz.Verdict{}, err
	}
	verdict.Marks = out.Marks
	verdict.Correct = out.Full
	verdict.Explanation = out.Note
	return verdict, nil
}

// decode accepts either a JSON value or plain text.
func decode(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	switch trimmed[0] {
	case '"', '[', '{':
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			if m, ok := v.(map[string]any); ok {
				if val, ok := m["value"]; ok {
					return val
				}
			}
			return v
		}
	}
	return raw
}

type choiceStrategy struct{ foldCase bool }

func (s choiceStrategy) Grade(_ context.Context, q quiz.Question, response any) (outcome, error) {
	resp, ok := response.(string)
	if !ok {
		return outcome{}, errShape
	}
	resp = strings.TrimSpace(resp)
	for _, k := range q.AnswerKey {
		if resp == k || (s.foldCase && strings.EqualFold(resp, k)) {
			return outcome{Marks: q.Points, Full: true}, nil
		}
	}
	return outcome{}, nil
}

type multiChoiceStrategy struct{ allowPartial bool }

func (s multiChoiceStrategy) Grade(_ context.Context, q quiz.Question, response any) (outcome, error) {
	picked, ok := toStringSlice(response)
	if !ok {
		return outcome{}, errShape
	}
	correct := toSet(q.AnswerKey)
	resp := toSet(picked)
	if setEqual(correct, resp) {
		return outcome{Marks: q.Points, Full: true}, nil
	}
	hits := 0
	for r := range resp {
		if _, ok := correct[r]; !ok {
			return outcome{Note: "includes a wrong choice"}, nil
		}
		hits++
	}
	if !s.allowPartial || len(correct) == 0 {
		return outcome{}, nil
	}
	return outcome{Marks: q.Points * float64(hits) / float64(len(correct)), Note: "some correct choices missing"}, nil
}

func toStringSlice(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
