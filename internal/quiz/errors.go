package quiz

import (
	"errors"
)

// Kind groups errors by how a caller should react to them.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindForbidden
	KindUnauthenticated
	KindNotFound
)

// Error is a categorised engine error. Two errors with the same Code match
// under errors.Is, so call sites may replace the message freely.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy carrying a more specific message.
func (e *Error) WithMessage(msg string) *Error {
	c := *e
	c.Message = msg
	return &c
}

// WithKind returns a copy reported under a different kind.
func (e *Error) WithKind(k Kind) *Error {
	c := *e
	c.Kind = k
	return &c
}

// KindOf returns the kind of an engine error, or 0 for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

var (
	ErrMissingField        = &Error{KindValidation, "missing_field", "A required field was missing. Must provide group and quiz ids and a quiz feedback mode."}
	ErrDueDateInPast       = &Error{KindValidation, "due_date_in_past", "The assignment cannot be due in the past."}
	ErrDueDateMovedEarlier = &Error{KindValidation, "due_date_moved_earlier", "The due date can only be moved later."}
	ErrImmutableField      = &Error{KindValidation, "immutable_field", "Those fields are not editable."}
	ErrMissingAnswer       = &Error{KindValidation, "missing_answer", "No answer received."}
	ErrInvalidAnswer       = &Error{KindValidation, "invalid_answer", "The answer could not be understood."}
	ErrWrongQuiz           = &Error{KindValidation, "wrong_quiz", "This question is part of another quiz."}
	ErrQuizUnavailable     = &Error{KindValidation, "quiz_unavailable", "The quiz id specified does not exist."}

	ErrDuplicateAssignment = &Error{KindConflict, "duplicate_assignment", "You cannot reassign a quiz until the due date has passed."}
	ErrAlreadyComplete     = &Error{KindConflict, "already_complete", "That quiz is already complete."}
	ErrAlreadyIncomplete   = &Error{KindConflict, "already_incomplete", "That quiz is already incomplete."}
	ErrAlreadyCancelled    = &Error{KindConflict, "already_cancelled", "This assignment is already cancelled."}

	ErrForbidden               = &Error{KindForbidden, "forbidden", "You do not have permission to do that."}
	ErrNotInGroup              = &Error{KindForbidden, "not_in_group", "You are not a member of a group to which this quiz is assigned."}
	ErrAssignmentCancelled     = &Error{KindForbidden, "assignment_cancelled", "This quiz assignment has been cancelled."}
	ErrDueDatePassed           = &Error{KindForbidden, "due_date_passed", "The due date for this quiz has passed."}
	ErrAlreadyAssigned         = &Error{KindForbidden, "already_assigned", "You are currently set this quiz. You must complete your assignment before you can attempt this quiz freely."}
	ErrFreeAttemptsUnavailable = &Error{KindForbidden, "free_attempts_unavailable", "Free attempts are not available for this quiz."}

	ErrNotLoggedIn = &Error{KindUnauthenticated, "not_logged_in", "You must be logged in to access this resource."}

	ErrNotFound         = &Error{KindNotFound, "not_found", "The requested resource could not be found."}
	ErrQuestionNotFound = &Error{KindNotFound, "question_not_found", "No question object found for given id."}
)
