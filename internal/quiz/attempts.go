package quiz

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AttemptService drives the attempt state machine:
//
//	NOT_EXISTING -> IN_PROGRESS  FetchOrCreate / FetchOrCreateFree
//	IN_PROGRESS  -> COMPLETE     Complete
//	COMPLETE     -> IN_PROGRESS  MarkIncomplete (managers, before due date)
//	IN_PROGRESS  -> NOT_EXISTING Abandon (free attempts only)
//
// Transitions check, in order: assignment cancelled, due date passed,
// ownership, current state.
type AttemptService struct {
	d Deps
}

func NewAttemptService(d Deps) *AttemptService {
	return &AttemptService{d: d.withDefaults()}
}

// FetchOrCreate starts p's attempt at an assignment or returns the one
// already started. Safe to retry.
func (s *AttemptService) FetchOrCreate(ctx context.Context, assignmentID string, p Principal) (Attempt, error) {
	if p.ID == "" {
		return Attempt{}, ErrNotLoggedIn
	}
	a, err := s.d.Store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return Attempt{}, err
	}
	now := s.d.now()
	if err := checkOpen(a, now); err != nil {
		return Attempt{}, err
	}

	existing, err := s.d.Store.GetAttemptByAssignmentAndUser(ctx, a.ID, p.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Attempt{}, err
	}

	member, err := s.d.isMember(ctx, p.ID, a.GroupID)
	if err != nil {
		return Attempt{}, err
	}
	if !member {
		return Attempt{}, ErrNotInGroup
	}
	got, created, err := s.d.Store.FetchOrCreateAttempt(ctx, Attempt{
		UserID:       p.ID,
		QuizID:       a.QuizID,
		AssignmentID: a.ID,
		StartDate:    now,
	})
	if err != nil {
		return Attempt{}, err
	}
	if created {
		s.d.Logger.Info("quiz attempt started", "attempt_id", got.ID, "assignment_id", a.ID, "user_id", p.ID)
	}
	return got, nil
}

// FetchOrCreateFree starts or resumes p's self-directed attempt at quizID.
func (s *AttemptService) FetchOrCreateFree(ctx context.Context, quizID string, p Principal) (Attempt, error) {
	if p.ID == "" {
		return Attempt{}, ErrNotLoggedIn
	}
	q, err := s.d.Catalog.FindQuiz(ctx, quizID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Attempt{}, ErrFreeAttemptsUnavailable
		}
		return Attempt{}, fmt.Errorf("find quiz %s: %w", quizID, err)
	}
	if !q.AvailableTo(p.Role) {
		return Attempt{}, ErrFreeAttemptsUnavailable
	}

	previous, err := s.d.Store.ListAttemptsByQuizAndUser(ctx, quizID, p.ID)
	if err != nil {
		return Attempt{}, err
	}
	for _, at := range previous {
		if !at.Free() {
			return Attempt{}, ErrAlreadyAssigned
		}
	}
	now := s.d.now()
	assigned, err := s.activeAssignmentsOf(ctx, quizID, p.ID, now)
	if err != nil {
		return Attempt{}, err
	}
	if assigned {
		return Attempt{}, ErrAlreadyAssigned
	}

	got, created, err := s.d.Store.FetchOrCreateFreeAttempt(ctx, Attempt{UserID: p.ID, QuizID: quizID, StartDate: now})
	if err != nil {
		return Attempt{}, err
	}
	if created {
		s.d.Logger.Info("free quiz attempt started", "attempt_id", got.ID, "quiz_id", quizID, "user_id", p.ID)
	}
	return got, nil
}

// activeAssignmentsOf reports whether quizID is currently set to any group
// userID belongs to.
func (s *AttemptService) activeAssignmentsOf(ctx context.Context, quizID, userID string, now time.Time) (bool, error) {
	groups, err := s.d.Groups.GroupsOf(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("groups of %s: %w", userID, err)
	}
	if len(groups) == 0 {
		return false, nil
	}
	all, err := s.d.Store.ListAssignmentsByGroups(ctx, groups)
	if err != nil {
		return false, err
	}
	for _, a := range all {
		if a.QuizID == quizID && isLive(a, now) {
			return true, nil
		}
	}
	return false, nil
}

// ownedOpen loads an attempt for a transition by its owner and applies the
// cancellation, due date and ownership guards.
func (s *AttemptService) ownedOpen(ctx context.Context, attemptID string, p Principal) (Attempt, *Assignment, error) {
	if p.ID == "" {
		return Attempt{}, nil, ErrNotLoggedIn
	}
	at, err := s.d.Store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, nil, err
	}
	a, err := s.d.parentOf(ctx, at)
	if err != nil {
		return Attempt{}, nil, err
	}
	if a != nil {
		if err := checkOpen(*a, s.d.now()); err != nil {
			return Attempt{}, nil, err
		}
	}
	if at.UserID != p.ID {
		return Attempt{}, nil, ErrForbidden.WithMessage("This is not your quiz attempt.")
	}
	return at, a, nil
}

// Complete closes p's attempt. Completing twice fails with ErrAlreadyComplete.
func (s *AttemptService) Complete(ctx context.Context, attemptID string, p Principal) (Attempt, error) {
	at, a, err := s.ownedOpen(ctx, attemptID, p)
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			return Attempt{}, ErrForbidden.WithMessage("You cannot complete someone else's quiz.")
		}
		return Attempt{}, err
	}
	if at.Complete() {
		return Attempt{}, ErrAlreadyComplete
	}
	done, err := s.d.Store.MarkComplete(ctx, at.ID, s.d.now())
	if err != nil {
		return Attempt{}, err
	}
	s.d.Logger.Info("quiz attempt completed", "attempt_id", done.ID, "user_id", p.ID)
	data := map[string]any{"quizId": done.QuizID, "quizAttemptId": done.ID, "quizAssignmentId": "FREE_ATTEMPT"}
	if a != nil {
		data["quizAssignmentId"] = a.ID
	}
	s.d.emit(ctx, Event{Type: "COMPLETE_QUIZ_ATTEMPT", UserID: p.ID, Key: done.ID, Data: data})
	return done, nil
}

// MarkIncomplete reopens userID's completed attempt so they can carry on
// before the due date. The result is the student's feedback entry as the
// requester is allowed to see it.
func (s *AttemptService) MarkIncomplete(ctx context.Context, assignmentID, userID string, p Principal) (UserFeedback, error) {
	a, err := s.d.Store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return UserFeedback{}, err
	}
	if err := s.d.requireManage(ctx, p, a.GroupID, "You can only mark assignments incomplete for groups you own or manage."); err != nil {
		return UserFeedback{}, err
	}
	if a.Cancelled() {
		return UserFeedback{}, ErrAssignmentCancelled
	}
	if IsExpired(a, s.d.now()) {
		return UserFeedback{}, ErrDueDatePassed.WithKind(KindValidation).
			WithMessage("You cannot mark a quiz attempt as incomplete once its due date has passed.")
	}
	member, err := s.d.isMember(ctx, userID, a.GroupID)
	if err != nil {
		return UserFeedback{}, err
	}
	if !member {
		return UserFeedback{}, ErrNotInGroup.WithMessage("That user is not in this group.")
	}
	at, err := s.d.Store.GetAttemptByAssignmentAndUser(ctx, a.ID, userID)
	if errors.Is(err, ErrNotFound) {
		return UserFeedback{}, ErrAlreadyIncomplete
	}
	if err != nil {
		return UserFeedback{}, err
	}
	if !at.Complete() {
		return UserFeedback{}, ErrAlreadyIncomplete
	}
	if _, err := s.d.Store.MarkIncomplete(ctx, at.ID); err != nil {
		return UserFeedback{}, err
	}
	s.d.Logger.Info("quiz attempt reopened", "attempt_id", at.ID, "user_id", userID, "by", p.ID)

	access, err := s.d.policy().CanView(ctx, p, userID, a)
	if err != nil {
		return UserFeedback{}, err
	}
	if access == AccessNone {
		access = AccessSummaryOnly
	}
	uf, _ := redact(access, s.d.summary(ctx, userID), &Feedback{})
	return uf, nil
}

// Abandon deletes p's unfinished free attempt.
func (s *AttemptService) Abandon(ctx context.Context, attemptID string, p Principal) error {
	if p.ID == "" {
		return ErrNotLoggedIn
	}
	at, err := s.d.Store.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	switch {
	case at.UserID != p.ID:
		return ErrForbidden.WithMessage("You cannot cancel a quiz attempt for someone else.")
	case !at.Free():
		return ErrForbidden.WithMessage("You can only cancel attempts on quizzes you chose to take.")
	case at.Complete():
		return ErrForbidden.WithMessage("You cannot cancel completed quiz attempts.")
	}
	if err := s.d.Store.DeleteFreeAttempt(ctx, at.ID); err != nil {
		if errors.Is(err, ErrForbidden) {
			return ErrForbidden.WithMessage("You cannot cancel completed quiz attempts.")
		}
		return err
	}
	s.d.Logger.Info("free quiz attempt abandoned", "attempt_id", at.ID, "user_id", p.ID)
	return nil
}

// LogSectionView records that p opened section of an unfinished attempt.
func (s *AttemptService) LogSectionView(ctx context.Context, attemptID string, section int, p Principal) error {
	at, a, err := s.ownedOpen(ctx, attemptID, p)
	if err != nil {
		return err
	}
	if at.Complete() {
		return ErrAlreadyComplete.WithKind(KindForbidden).WithMessage("You have completed this quiz.")
	}
	data := map[string]any{
		"quizId":           at.QuizID,
		"quizAttemptId":    at.ID,
		"quizAssignmentId": "FREE_ATTEMPT",
		"dueDate":          "NO_DUE_DATE",
		"quizSection":      section,
	}
	if a != nil {
		data["quizAssignmentId"] = a.ID
		if a.DueDate != nil {
			data["dueDate"] = a.DueDate.UTC()
		}
	}
	s.d.emit(ctx, Event{Type: "VIEW_QUIZ_SECTION", UserID: p.ID, Key: at.ID, Data: data})
	return nil
}

// ListFree returns p's free attempts in start order.
func (s *AttemptService) ListFree(ctx context.Context, p Principal) ([]Attempt, error) {
	if p.ID == "" {
		return nil, ErrNotLoggedIn
	}
	return s.d.Store.ListFreeAttempts(ctx, p.ID)
}

// Resume returns p's unfinished attempt with the latest answer to each
// question so far. Correctness stays hidden until the attempt is complete.
func (s *AttemptService) Resume(ctx context.Context, attemptID string, p Principal) (ResumedAttempt, error) {
	at, a, err := s.ownedOpen(ctx, attemptID, p)
	if err != nil {
		return ResumedAttempt{}, err
	}
	if at.Complete() {
		return ResumedAttempt{}, ErrAlreadyComplete.WithKind(KindForbidden).WithMessage("You have completed this quiz.")
	}
	q, err := s.d.Catalog.FindQuiz(ctx, at.QuizID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ResumedAttempt{}, ErrNotFound.WithMessage("This quiz has become unavailable.")
		}
		return ResumedAttempt{}, fmt.Errorf("find quiz %s: %w", at.QuizID, err)
	}
	answers, err := s.d.Store.AnswersForAttempt(ctx, at.ID)
	if err != nil {
		return ResumedAttempt{}, err
	}
	saved := make(map[string]SavedAnswer, len(answers))
	for id, qa := range latest(answers) {
		saved[id] = SavedAnswer{Answer: qa.Answer, DateAttempted: qa.DateAttempted}
	}
	return ResumedAttempt{Attempt: at, Assignment: a, Quiz: q.Summary(), Answers: saved}, nil
}

// ListAvailable returns the quizzes p's role may see, ordered by id.
func (s *AttemptService) ListAvailable(ctx context.Context, p Principal) ([]QuizSummary, error) {
	if p.ID == "" {
		return nil, ErrNotLoggedIn
	}
	all, err := s.d.Catalog.ListQuizzes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	out := []QuizSummary{}
	for _, q := range all {
		if q.AvailableTo(p.Role) {
			out = append(out, q.Summary())
		}
	}
	return out, nil
}

// GetAssignmentAttempt is a manager's view of one student's completed
// attempt, redacted exactly as GetWithFeedback redacts that student.
func (s *AttemptService) GetAssignmentAttempt(ctx context.Context, assignmentID, userID string, viewer Principal) (AttemptFeedbackView, error) {
	a, err := s.d.Store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return AttemptFeedbackView{}, err
	}
	if err := s.d.requireManage(ctx, viewer, a.GroupID, "You can only view assignments to groups you own or manage."); err != nil {
		return AttemptFeedbackView{}, err
	}
	if a.Cancelled() {
		return AttemptFeedbackView{}, ErrAssignmentCancelled
	}
	member, err := s.d.isMember(ctx, userID, a.GroupID)
	if err != nil {
		return AttemptFeedbackView{}, err
	}
	if !member {
		return AttemptFeedbackView{}, ErrNotInGroup.WithMessage("That student is not in the group that was assigned this quiz.")
	}
	at, err := s.d.Store.GetAttemptByAssignmentAndUser(ctx, a.ID, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return AttemptFeedbackView{}, err
	}
	if err != nil || !at.Complete() {
		return AttemptFeedbackView{}, ErrForbidden.WithMessage("That student has not completed this quiz assignment.")
	}

	access, err := s.d.policy().CanView(ctx, viewer, userID, a)
	if err != nil {
		return AttemptFeedbackView{}, err
	}
	if access == AccessNone {
		return AttemptFeedbackView{}, ErrForbidden.WithMessage("You do not have access to that student's data.")
	}
	return s.feedbackView(ctx, at, &a, a.FeedbackMode, access)
}

// GetFeedback returns p's own completed attempt with feedback. Free attempts
// use the quiz's default mode.
func (s *AttemptService) GetFeedback(ctx context.Context, attemptID string, p Principal) (AttemptFeedbackView, error) {
	if p.ID == "" {
		return AttemptFeedbackView{}, ErrNotLoggedIn
	}
	at, err := s.d.Store.GetAttempt(ctx, attemptID)
	if err != nil {
		return AttemptFeedbackView{}, err
	}
	if at.UserID != p.ID {
		return AttemptFeedbackView{}, ErrForbidden.WithMessage("This is not your quiz attempt.")
	}
	if !at.Complete() {
		return AttemptFeedbackView{}, ErrForbidden.WithMessage("You have not completed this quiz.")
	}
	a, err := s.d.parentOf(ctx, at)
	if err != nil {
		return AttemptFeedbackView{}, err
	}
	var mode FeedbackMode
	if a != nil {
		if a.Cancelled() {
			return AttemptFeedbackView{}, ErrAssignmentCancelled
		}
		mode = a.FeedbackMode
	}
	return s.feedbackView(ctx, at, a, mode, AccessFull)
}

func (s *AttemptService) feedbackView(ctx context.Context, at Attempt, a *Assignment, mode FeedbackMode, access Access) (AttemptFeedbackView, error) {
	q, err := s.d.Catalog.FindQuiz(ctx, at.QuizID)
	if err != nil {
		return AttemptFeedbackView{}, fmt.Errorf("find quiz %s: %w", at.QuizID, err)
	}
	if mode == "" {
		mode = q.DefaultFeedbackMode
	}
	if mode == "" {
		mode = FeedbackDetailed
	}
	view := AttemptFeedbackView{Attempt: at, Assignment: a, FeedbackMode: mode}
	var fb *Feedback
	var answers map[string][]QuestionAttempt
	if access == AccessFull {
		answers, err = s.d.Store.AnswersForAttempt(ctx, at.ID)
		if err != nil {
			return AttemptFeedbackView{}, err
		}
		fb = buildFeedback(q, mode, at.Complete(), answers)
	}
	view.UserFeedback, _ = redact(access, s.d.summary(ctx, at.UserID), fb)
	if access == AccessFull && mode == FeedbackDetailed {
		view.Answers = latest(answers)
	}
	return view, nil
}
