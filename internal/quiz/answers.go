package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// AnswerRecorder checks and stores single answers inside an attempt.
// Correctness is the validator's call.
type AnswerRecorder struct {
	d Deps
}

func NewAnswerRecorder(d Deps) *AnswerRecorder {
	return &AnswerRecorder{d: d.withDefaults()}
}

// Answer validates rawAnswer to questionID and appends it to p's attempt.
func (r *AnswerRecorder) Answer(ctx context.Context, attemptID, questionID, rawAnswer string, p Principal) (Verdict, error) {
	if strings.TrimSpace(rawAnswer) == "" {
		return Verdict{}, ErrMissingAnswer
	}
	if questionID == "" {
		return Verdict{}, ErrMissingField.WithMessage("A question id must be provided.")
	}
	if p.ID == "" {
		return Verdict{}, ErrNotLoggedIn
	}

	at, err := r.d.Store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Verdict{}, err
	}
	a, err := r.d.parentOf(ctx, at)
	if err != nil {
		return Verdict{}, err
	}
	now := r.d.now()
	if a != nil {
		if err := checkOpen(*a, now); err != nil {
			return Verdict{}, err
		}
	}
	if at.UserID != p.ID {
		return Verdict{}, ErrForbidden.WithMessage("This is not your quiz attempt.")
	}
	if at.Complete() {
		return Verdict{}, ErrAlreadyComplete
	}

	q, err := r.d.Catalog.FindQuestion(ctx, questionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Verdict{}, ErrQuestionNotFound
		}
		return Verdict{}, fmt.Errorf("find question %s: %w", questionID, err)
	}
	if q.QuizID != at.QuizID {
		return Verdict{}, ErrWrongQuiz
	}

	v, err := r.d.Validator.Validate(ctx, q, rawAnswer)
	if err != nil {
		if errors.Is(err, ErrInvalidAnswer) {
			return Verdict{}, err
		}
		return Verdict{}, fmt.Errorf("validate %s: %w", questionID, err)
	}
	v.QuestionID = q.ID

	qa := QuestionAttempt{
		AttemptID:     at.ID,
		QuestionID:    q.ID,
		Answer:        rawAnswer,
		Verdict:       v,
		DateAttempted: now,
	}
	if err := r.d.Store.AppendAnswer(ctx, qa); err != nil {
		return Verdict{}, err
	}
	r.d.emit(ctx, Event{Type: "ANSWER_QUIZ_QUESTION", UserID: p.ID, Key: at.ID, Data: map[string]any{
		"questionId":    q.ID,
		"quizId":        at.QuizID,
		"quizAttemptId": at.ID,
		"correct":       v.Correct,
	}})
	return v, nil
}
