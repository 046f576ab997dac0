package quiz

import (
	"encoding/json"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

type FeedbackMode string

const (
	FeedbackNone     FeedbackMode = "NONE"
	FeedbackOverall  FeedbackMode = "OVERALL_MARK"
	FeedbackSections FeedbackMode = "SECTION_MARKS"
	FeedbackDetailed FeedbackMode = "DETAILED_FEEDBACK"
)

func (m FeedbackMode) Valid() bool {
	switch m {
	case FeedbackNone, FeedbackOverall, FeedbackSections, FeedbackDetailed:
		return true
	}
	return false
}

type AssignmentStatus string

const (
	StatusActive    AssignmentStatus = "ACTIVE"
	StatusCancelled AssignmentStatus = "CANCELLED"
)

// Principal is an already-authenticated requester.
type Principal struct {
	ID         string    `json:"id"`
	Role       rbac.Role `json:"role"`
	GivenName  string    `json:"given_name,omitempty"`
	FamilyName string    `json:"family_name,omitempty"`
}

type Question struct {
	ID        string   `json:"id"`
	QuizID    string   `json:"quiz_id,omitempty"` // empty for content outside any quiz
	SectionID string   `json:"section_id,omitempty"`
	Title     string   `json:"title,omitempty"`
	Type      string   `json:"type"` // mcq_single, mcq_multi, true_false, short_word, numeric
	AnswerKey []string `json:"answer_key,omitempty"`
	Points    float64  `json:"points"`
}

type Section struct {
	ID        string     `json:"id"`
	Title     string     `json:"title,omitempty"`
	Questions []Question `json:"questions"`
}

type Quiz struct {
	ID                  string       `json:"id"`
	Title               string       `json:"title"`
	VisibleToStudents   bool         `json:"visible_to_students"`
	HiddenFromRoles     []rbac.Role  `json:"hidden_from_roles,omitempty"`
	DefaultFeedbackMode FeedbackMode `json:"default_feedback_mode,omitempty"`
	Sections            []Section    `json:"sections"`
}

// AvailableTo reports whether role may see the quiz at all.
func (q Quiz) AvailableTo(role rbac.Role) bool {
	if !q.VisibleToStudents && !role.AtLeast(rbac.RoleTeacher) {
		return false
	}
	for _, h := range q.HiddenFromRoles {
		if h == role {
			return false
		}
	}
	return true
}

type QuizSummary struct {
	ID                  string       `json:"id"`
	Title               string       `json:"title"`
	DefaultFeedbackMode FeedbackMode `json:"default_feedback_mode,omitempty"`
}

func (q Quiz) Summary() QuizSummary {
	return QuizSummary{ID: q.ID, Title: q.Title, DefaultFeedbackMode: q.DefaultFeedbackMode}
}

// Questions returns every markable question in section order.
func (q Quiz) Questions() []Question {
	var out []Question
	for _, s := range q.Sections {
		for _, qq := range s.Questions {
			if qq.QuizID == "" {
				qq.QuizID = q.ID
			}
			if qq.SectionID == "" {
				qq.SectionID = s.ID
			}
			out = append(out, qq)
		}
	}
	return out
}

type Assignment struct {
	ID           string           `json:"id"`
	QuizID       string           `json:"quiz_id"`
	OwnerUserID  string           `json:"owner_user_id"`
	GroupID      string           `json:"group_id"`
	CreationDate time.Time        `json:"creation_date"`
	DueDate      *time.Time       `json:"due_date,omitempty"`
	FeedbackMode FeedbackMode     `json:"feedback_mode"`
	Status       AssignmentStatus `json:"status"`
}

func (a Assignment) Cancelled() bool { return a.Status == StatusCancelled }

// AssignmentRequest is what a teacher submits to set a quiz.
type AssignmentRequest struct {
	QuizID       string       `json:"quiz_id" validate:"required"`
	GroupID      string       `json:"group_id" validate:"required"`
	FeedbackMode FeedbackMode `json:"feedback_mode" validate:"required,oneof=NONE OVERALL_MARK SECTION_MARKS DETAILED_FEEDBACK"`
	DueDate      *time.Time   `json:"due_date,omitempty"`
}

// AssignmentPatch holds the only fields that may change after creation.
type AssignmentPatch struct {
	DueDate      *time.Time
	FeedbackMode *FeedbackMode
}

func (p AssignmentPatch) Empty() bool { return p.DueDate == nil && p.FeedbackMode == nil }

// ParseAssignmentPatch narrows a wire patch to the closed AssignmentPatch.
// Only due_date and feedback_mode may appear. Any other key, including an
// unknown one or an immutable one sent as null, is ErrImmutableField.
func ParseAssignmentPatch(fields map[string]json.RawMessage) (AssignmentPatch, error) {
	var p AssignmentPatch
	for key, raw := range fields {
		switch key {
		case "due_date":
			if err := json.Unmarshal(raw, &p.DueDate); err != nil {
				return AssignmentPatch{}, ErrMissingField.WithMessage("The due date could not be read.")
			}
		case "feedback_mode":
			if err := json.Unmarshal(raw, &p.FeedbackMode); err != nil {
				return AssignmentPatch{}, ErrMissingField.WithMessage("Unknown quiz feedback mode.")
			}
		default:
			return AssignmentPatch{}, ErrImmutableField
		}
	}
	return p, nil
}

type Attempt struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	QuizID        string     `json:"quiz_id"`
	AssignmentID  string     `json:"quiz_assignment_id,omitempty"` // empty for free attempts
	StartDate     time.Time  `json:"start_date"`
	CompletedDate *time.Time `json:"completed_date,omitempty"`
}

func (a Attempt) Complete() bool { return a.CompletedDate != nil }
func (a Attempt) Free() bool     { return a.AssignmentID == "" }

// Verdict is the validator's decision on one answer.
type Verdict struct {
	QuestionID  string  `json:"question_id"`
	Correct     bool    `json:"correct"`
	Marks       float64 `json:"marks"`
	MaxMarks    float64 `json:"max_marks"`
	Explanation string  `json:"explanation,omitempty"`
}

type QuestionAttempt struct {
	AttemptID     string    `json:"attempt_id"`
	QuestionID    string    `json:"question_id"`
	Answer        string    `json:"answer"`
	Verdict       Verdict   `json:"verdict"`
	DateAttempted time.Time `json:"date_attempted"`
}

// Group is owned by one user with an optional set of additional managers.
type Group struct {
	ID                          string   `json:"id"`
	Name                        string   `json:"name,omitempty"`
	OwnerID                     string   `json:"owner_id"`
	AdditionalManagers          []string `json:"additional_managers,omitempty"`
	AdditionalManagerPrivileges bool     `json:"additional_manager_privileges"`
}

// CanManage: the owner always, additional managers only with privileges on.
func (g Group) CanManage(userID string) bool {
	if userID == "" {
		return false
	}
	if g.OwnerID == userID {
		return true
	}
	if !g.AdditionalManagerPrivileges {
		return false
	}
	for _, m := range g.AdditionalManagers {
		if m == userID {
			return true
		}
	}
	return false
}
