package quiz

import (
	"context"
	"time"
)

// GroupDirectory resolves group ownership and membership.
type GroupDirectory interface {
	GetGroup(ctx context.Context, groupID string) (Group, error)
	IsManagerOf(ctx context.Context, userID, groupID string) (bool, error)
	MembersOf(ctx context.Context, groupID string) ([]string, error)
	GroupsOf(ctx context.Context, userID string) ([]string, error)
	GroupsManagedBy(ctx context.Context, userID string) ([]string, error)
}

// AssociationDirectory answers "has student granted teacher viewing rights".
type AssociationDirectory interface {
	HasConsent(ctx context.Context, studentID, teacherID string) (bool, error)
}

// UserDirectory supplies display summaries; optional for the engine.
type UserDirectory interface {
	Summary(ctx context.Context, userID string) (UserSummary, error)
}

// QuestionValidator decides correctness; the engine never does.
type QuestionValidator interface {
	Validate(ctx context.Context, q Question, rawAnswer string) (Verdict, error)
}

// Catalog looks up immutable quiz content.
type Catalog interface {
	FindQuiz(ctx context.Context, quizID string) (Quiz, error)
	FindQuestion(ctx context.Context, questionID string) (Question, error)
	// ListQuizzes returns every quiz ordered by id, without sections.
	ListQuizzes(ctx context.Context) ([]Quiz, error)
}

type Event struct {
	Type   string
	UserID string
	Key    string
	Data   map[string]any
}

// EventSink records audit events. Failures are logged, never fatal.
type EventSink interface {
	Append(ctx context.Context, e Event) error
}

type AssignmentStore interface {
	// CreateAssignment inserts a unless a live assignment of the same quiz to
	// the same group exists at now, in which case it returns
	// ErrDuplicateAssignment. Check and insert are atomic.
	CreateAssignment(ctx context.Context, a Assignment, now time.Time) (Assignment, error)
	GetAssignment(ctx context.Context, id string) (Assignment, error)
	ListAssignmentsByGroups(ctx context.Context, groupIDs []string) ([]Assignment, error)
	// CancelAssignment returns ErrAlreadyCancelled if it was cancelled before.
	CancelAssignment(ctx context.Context, id string) error
	// UpdateAssignment applies p only while the assignment is active. A due
	// date never moves earlier (ErrDueDateMovedEarlier), and one that would
	// bring the assignment back to life while another live assignment of the
	// same quiz to the same group exists at now returns
	// ErrDuplicateAssignment. Checks and write are atomic.
	UpdateAssignment(ctx context.Context, id string, p AssignmentPatch, now time.Time) (Assignment, error)
}

type AttemptStore interface {
	// FetchOrCreateAttempt returns the attempt for (a.UserID, a.AssignmentID),
	// inserting a when none exists. created reports which happened.
	FetchOrCreateAttempt(ctx context.Context, a Attempt) (got Attempt, created bool, err error)
	// FetchOrCreateFreeAttempt returns the user's incomplete free attempt at
	// a.QuizID, inserting a when none exists.
	FetchOrCreateFreeAttempt(ctx context.Context, a Attempt) (got Attempt, created bool, err error)
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	// GetAttemptByAssignmentAndUser returns ErrNotFound when there is none.
	GetAttemptByAssignmentAndUser(ctx context.Context, assignmentID, userID string) (Attempt, error)
	ListAttemptsByQuizAndUser(ctx context.Context, quizID, userID string) ([]Attempt, error)
	ListFreeAttempts(ctx context.Context, userID string) ([]Attempt, error)
	ListAttemptsByAssignment(ctx context.Context, assignmentID string) ([]Attempt, error)
	// MarkComplete sets completed to at when the attempt is incomplete, else
	// ErrAlreadyComplete.
	MarkComplete(ctx context.Context, id string, at time.Time) (Attempt, error)
	// MarkIncomplete clears the completion date when set, else ErrAlreadyIncomplete.
	MarkIncomplete(ctx context.Context, id string) (Attempt, error)
	// DeleteFreeAttempt removes an incomplete free attempt. Anything else is
	// left in place and ErrForbidden is returned.
	DeleteFreeAttempt(ctx context.Context, id string) error
}

type AnswerStore interface {
	// AppendAnswer records qa while its attempt is still incomplete, else
	// ErrAlreadyComplete.
	AppendAnswer(ctx context.Context, qa QuestionAttempt) error
	// AnswersForAttempt returns answers per question, oldest first.
	AnswersForAttempt(ctx context.Context, attemptID string) (map[string][]QuestionAttempt, error)
}

type Store interface {
	AssignmentStore
	AttemptStore
	AnswerStore
}
