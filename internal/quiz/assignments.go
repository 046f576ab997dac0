package quiz

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// AssignmentService creates, cancels, updates and reads quiz assignments.
type AssignmentService struct {
	d        Deps
	validate *validator.Validate
}

func NewAssignmentService(d Deps) *AssignmentService {
	return &AssignmentService{d: d.withDefaults(), validate: validator.New()}
}

// Create sets req's quiz to req's group on behalf of p.
func (s *AssignmentService) Create(ctx context.Context, req AssignmentRequest, p Principal) (Assignment, error) {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return Assignment{}, ErrMissingField
		}
		return Assignment{}, err
	}
	if p.ID == "" {
		return Assignment{}, ErrNotLoggedIn
	}
	if !p.Role.AtLeast(rbac.RoleTutor) {
		return Assignment{}, ErrForbidden.WithMessage("You must be a teacher or tutor to set quizzes.")
	}
	if err := s.d.requireManage(ctx, p, req.GroupID, "You can only set assignments to groups you own or manage."); err != nil {
		return Assignment{}, err
	}

	q, err := s.d.Catalog.FindQuiz(ctx, req.QuizID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Assignment{}, ErrQuizUnavailable
		}
		return Assignment{}, fmt.Errorf("find quiz %s: %w", req.QuizID, err)
	}
	if !q.AvailableTo(p.Role) {
		return Assignment{}, ErrQuizUnavailable
	}

	now := s.d.now()
	if req.DueDate != nil && req.DueDate.Before(now) {
		return Assignment{}, ErrDueDateInPast
	}

	a := Assignment{
		QuizID:       req.QuizID,
		GroupID:      req.GroupID,
		OwnerUserID:  p.ID,
		CreationDate: now,
		DueDate:      req.DueDate,
		FeedbackMode: req.FeedbackMode,
		Status:       StatusActive,
	}
	a, err = s.d.Store.CreateAssignment(ctx, a, now)
	if err != nil {
		if errors.Is(err, ErrDuplicateAssignment) {
			s.d.Logger.Error("duplicate quiz assignment: cannot assign the same quiz to a group before its due date",
				"quiz_id", req.QuizID, "group_id", req.GroupID)
		}
		return Assignment{}, err
	}

	s.d.Logger.Info("quiz assignment created", "assignment_id", a.ID, "quiz_id", a.QuizID, "group_id", a.GroupID)
	data := map[string]any{"quizId": a.QuizID, "groupId": a.GroupID, "dueDate": "NO_DUE_DATE"}
	if a.DueDate != nil {
		data["dueDate"] = a.DueDate.UTC()
	}
	if s.d.HostName != "" {
		data["quizUrl"] = fmt.Sprintf("https://%s/quiz/%s/assignment/%s", s.d.HostName, a.QuizID, a.ID)
	}
	s.d.emit(ctx, Event{Type: "SET_NEW_QUIZ_ASSIGNMENT", UserID: p.ID, Key: a.ID, Data: data})
	return a, nil
}

// Get returns the assignment if p manages its group.
func (s *AssignmentService) Get(ctx context.Context, id string, p Principal) (Assignment, error) {
	a, err := s.d.Store.GetAssignment(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	if err := s.d.requireManage(ctx, p, a.GroupID, "You can only view assignments to groups you own or manage."); err != nil {
		return Assignment{}, err
	}
	return a, nil
}

// Cancel soft-deletes the assignment; its attempts freeze with it.
func (s *AssignmentService) Cancel(ctx context.Context, id string, p Principal) error {
	a, err := s.d.Store.GetAssignment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.d.requireManage(ctx, p, a.GroupID, "You can only cancel assignments to groups you own or manage."); err != nil {
		return err
	}
	if a.Cancelled() {
		return ErrAlreadyCancelled
	}
	if err := s.d.Store.CancelAssignment(ctx, id); err != nil {
		return err
	}
	s.d.Logger.Info("quiz assignment cancelled", "assignment_id", id, "user_id", p.ID)
	s.d.emit(ctx, Event{Type: "CANCEL_QUIZ_ASSIGNMENT", UserID: p.ID, Key: id,
		Data: map[string]any{"quizId": a.QuizID, "groupId": a.GroupID}})
	return nil
}

// Update changes the due date and/or feedback mode of an active assignment.
func (s *AssignmentService) Update(ctx context.Context, id string, patch AssignmentPatch, p Principal) (Assignment, error) {
	a, err := s.d.Store.GetAssignment(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	if err := s.d.requireManage(ctx, p, a.GroupID, "You can only update assignments to groups you own or manage."); err != nil {
		return Assignment{}, err
	}
	if a.Cancelled() {
		return Assignment{}, ErrAlreadyCancelled
	}
	if patch.FeedbackMode != nil && !patch.FeedbackMode.Valid() {
		return Assignment{}, ErrMissingField.WithMessage("Unknown quiz feedback mode.")
	}
	now := s.d.now()
	if patch.DueDate != nil {
		if patch.DueDate.Before(now) {
			return Assignment{}, ErrDueDateInPast
		}
		if a.DueDate != nil && patch.DueDate.Before(*a.DueDate) {
			return Assignment{}, ErrDueDateMovedEarlier
		}
	}
	if patch.Empty() {
		return a, nil
	}
	updated, err := s.d.Store.UpdateAssignment(ctx, id, patch, now)
	if err != nil {
		if errors.Is(err, ErrDuplicateAssignment) {
			return Assignment{}, ErrDuplicateAssignment.WithMessage("Another assignment of this quiz to this group is still live.")
		}
		return Assignment{}, err
	}
	s.d.Logger.Info("quiz assignment updated", "assignment_id", id, "user_id", p.ID)
	return updated, nil
}

// List returns the assignments of groupID, or of every group p manages when
// groupID is empty.
func (s *AssignmentService) List(ctx context.Context, p Principal, groupID string) ([]Assignment, error) {
	if p.ID == "" {
		return nil, ErrNotLoggedIn
	}
	var groups []string
	if groupID != "" {
		if _, err := s.d.Groups.GetGroup(ctx, groupID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, ErrNotFound.WithMessage("The group specified cannot be located.")
			}
			return nil, fmt.Errorf("group %s: %w", groupID, err)
		}
		if err := s.d.requireManage(ctx, p, groupID, "You are not the owner or manager of that group."); err != nil {
			return nil, err
		}
		groups = []string{groupID}
	} else {
		managed, err := s.d.Groups.GroupsManagedBy(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("groups managed by %s: %w", p.ID, err)
		}
		groups = managed
	}
	if len(groups) == 0 {
		return []Assignment{}, nil
	}
	return s.d.Store.ListAssignmentsByGroups(ctx, groups)
}

// ListAssignedTo returns the non-cancelled assignments set to p's groups with
// p's attempt attached where one exists.
func (s *AssignmentService) ListAssignedTo(ctx context.Context, p Principal) ([]AssignedQuiz, error) {
	if p.ID == "" {
		return nil, ErrNotLoggedIn
	}
	groups, err := s.d.Groups.GroupsOf(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("groups of %s: %w", p.ID, err)
	}
	if len(groups) == 0 {
		return []AssignedQuiz{}, nil
	}
	all, err := s.d.Store.ListAssignmentsByGroups(ctx, groups)
	if err != nil {
		return nil, err
	}
	out := make([]AssignedQuiz, 0, len(all))
	for _, a := range all {
		if a.Cancelled() {
			continue
		}
		aq := AssignedQuiz{Assignment: a}
		at, err := s.d.Store.GetAttemptByAssignmentAndUser(ctx, a.ID, p.ID)
		switch {
		case err == nil:
			aq.Attempt = &at
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
		out = append(out, aq)
	}
	return out, nil
}

// GetWithFeedback returns the assignment with one entry per group member,
// each redacted by the visibility policy.
func (s *AssignmentService) GetWithFeedback(ctx context.Context, id string, viewer Principal) (AssignmentView, error) {
	a, err := s.Get(ctx, id, viewer)
	if err != nil {
		return AssignmentView{}, err
	}
	q, err := s.d.Catalog.FindQuiz(ctx, a.QuizID)
	if err != nil {
		return AssignmentView{}, fmt.Errorf("find quiz %s: %w", a.QuizID, err)
	}
	members, err := s.d.Groups.MembersOf(ctx, a.GroupID)
	if err != nil {
		return AssignmentView{}, fmt.Errorf("group %s members: %w", a.GroupID, err)
	}
	attempts, err := s.d.Store.ListAttemptsByAssignment(ctx, a.ID)
	if err != nil {
		return AssignmentView{}, err
	}
	byUser := make(map[string]Attempt, len(attempts))
	for _, at := range attempts {
		byUser[at.UserID] = at
	}

	scope, err := s.d.policy().scope(ctx, viewer, a)
	if err != nil {
		return AssignmentView{}, err
	}
	view := AssignmentView{Assignment: a, QuizTitle: q.Title, UserFeedback: make([]UserFeedback, 0, len(members))}
	for _, m := range members {
		access, err := scope.access(ctx, m)
		if err != nil {
			return AssignmentView{}, err
		}
		if access == AccessNone {
			continue
		}
		var fb *Feedback
		if access == AccessFull {
			if fb, err = s.feedbackFor(ctx, q, a, byUser, m); err != nil {
				return AssignmentView{}, err
			}
		}
		uf, ok := redact(access, s.d.summary(ctx, m), fb)
		if ok {
			view.UserFeedback = append(view.UserFeedback, uf)
		}
	}
	return view, nil
}

func (s *AssignmentService) feedbackFor(ctx context.Context, q Quiz, a Assignment, byUser map[string]Attempt, userID string) (*Feedback, error) {
	at, ok := byUser[userID]
	if !ok || !at.Complete() {
		return &Feedback{}, nil
	}
	answers, err := s.d.Store.AnswersForAttempt(ctx, at.ID)
	if err != nil {
		return nil, err
	}
	return buildFeedback(q, a.FeedbackMode, true, answers), nil
}

// ExportRows returns the latest raw answers of each consenting group member
// that has an attempt, headed by the question titles.
func (s *AssignmentService) ExportRows(ctx context.Context, id string, viewer Principal) ([][]string, error) {
	a, err := s.Get(ctx, id, viewer)
	if err != nil {
		return nil, err
	}
	q, err := s.d.Catalog.FindQuiz(ctx, a.QuizID)
	if err != nil {
		return nil, fmt.Errorf("find quiz %s: %w", a.QuizID, err)
	}
	members, err := s.d.Groups.MembersOf(ctx, a.GroupID)
	if err != nil {
		return nil, fmt.Errorf("group %s members: %w", a.GroupID, err)
	}
	questions := q.Questions()
	header := []string{"", ""}
	for _, qq := range questions {
		title := qq.Title
		if title == "" {
			title = qq.ID
		}
		header = append(header, title)
	}
	rows := [][]string{header}

	scope, err := s.d.policy().scope(ctx, viewer, a)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		access, err := scope.access(ctx, m)
		if err != nil {
			return nil, err
		}
		if access != AccessFull {
			continue
		}
		at, err := s.d.Store.GetAttemptByAssignmentAndUser(ctx, a.ID, m)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		answers, err := s.d.Store.AnswersForAttempt(ctx, at.ID)
		if err != nil {
			return nil, err
		}
		last := latest(answers)
		u := s.d.summary(ctx, m)
		row := []string{u.FamilyName, u.GivenName}
		for _, qq := range questions {
			row = append(row, last[qq.ID].Answer)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
