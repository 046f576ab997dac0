package quiz

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu          sync.RWMutex
	assignments map[string]Assignment
	attempts    map[string]Attempt
	answers     map[string][]QuestionAttempt // attemptID -> append log
}

// NewInMemoryStore returns a Store guarded by a single lock, which makes every
// read-modify-write trivially atomic. Used by tests and offline demos.
func NewInMemoryStore() Store {
	return &memoryStore{
		assignments: map[string]Assignment{},
		attempts:    map[string]Attempt{},
		answers:     map[string][]QuestionAttempt{},
	}
}

func (m *memoryStore) CreateAssignment(_ context.Context, a Assignment, now time.Time) (Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.assignments {
		if ex.QuizID == a.QuizID && ex.GroupID == a.GroupID && isLive(ex, now) {
			return Assignment{}, ErrDuplicateAssignment
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	m.assignments[a.ID] = a
	return a, nil
}

func (m *memoryStore) GetAssignment(_ context.Context, id string) (Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assignments[id]
	if !ok {
		return Assignment{}, ErrNotFound
	}
	return a, nil
}

func (m *memoryStore) ListAssignmentsByGroups(_ context.Context, groupIDs []string) ([]Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[string]struct{}, len(groupIDs))
	for _, g := range groupIDs {
		want[g] = struct{}{}
	}
	out := []Assignment{}
	for _, a := range m.assignments {
		if _, ok := want[a.GroupID]; ok {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreationDate.Before(out[j].CreationDate) })
	return out, nil
}

func (m *memoryStore) CancelAssignment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return ErrNotFound
	}
	if a.Cancelled() {
		return ErrAlreadyCancelled
	}
	a.Status = StatusCancelled
	m.assignments[id] = a
	return nil
}

func (m *memoryStore) UpdateAssignment(_ context.Context, id string, p AssignmentPatch, now time.Time) (Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return Assignment{}, ErrNotFound
	}
	if a.Cancelled() {
		return Assignment{}, ErrAlreadyCancelled
	}
	if p.DueDate != nil {
		if a.DueDate != nil && p.DueDate.Before(*a.DueDate) {
			return Assignment{}, ErrDueDateMovedEarlier
		}
		for _, ex := range m.assignments {
			if ex.ID != id && ex.QuizID == a.QuizID && ex.GroupID == a.GroupID && isLive(ex, now) {
				return Assignment{}, ErrDuplicateAssignment
			}
		}
		d := *p.DueDate
		a.DueDate = &d
	}
	if p.FeedbackMode != nil {
		a.FeedbackMode = *p.FeedbackMode
	}
	m.assignments[id] = a
	return a, nil
}

func (m *memoryStore) FetchOrCreateAttempt(_ context.Context, a Attempt) (Attempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.attempts {
		if ex.AssignmentID == a.AssignmentID && ex.UserID == a.UserID {
			return ex, false, nil
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	m.attempts[a.ID] = a
	return a, true, nil
}

func (m *memoryStore) FetchOrCreateFreeAttempt(_ context.Context, a Attempt) (Attempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.attempts {
		if ex.Free() && !ex.Complete() && ex.QuizID == a.QuizID && ex.UserID == a.UserID {
			return ex, false, nil
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.AssignmentID = ""
	m.attempts[a.ID] = a
	return a, true, nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	return a, nil
}

func (m *memoryStore) GetAttemptByAssignmentAndUser(_ context.Context, assignmentID, userID string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.attempts {
		if a.AssignmentID == assignmentID && a.UserID == userID && assignmentID != "" {
			return a, nil
		}
	}
	return Attempt{}, ErrNotFound
}

func (m *memoryStore) filterAttempts(keep func(Attempt) bool) []Attempt {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Attempt{}
	for _, a := range m.attempts {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out
}

func (m *memoryStore) ListAttemptsByQuizAndUser(_ context.Context, quizID, userID string) ([]Attempt, error) {
	return m.filterAttempts(func(a Attempt) bool { return a.QuizID == quizID && a.UserID == userID }), nil
}

func (m *memoryStore) ListFreeAttempts(_ context.Context, userID string) ([]Attempt, error) {
	return m.filterAttempts(func(a Attempt) bool { return a.Free() && a.UserID == userID }), nil
}

func (m *memoryStore) ListAttemptsByAssignment(_ context.Context, assignmentID string) ([]Attempt, error) {
	return m.filterAttempts(func(a Attempt) bool { return assignmentID != "" && a.AssignmentID == assignmentID }), nil
}

func (m *memoryStore) MarkComplete(_ context.Context, id string, at time.Time) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	if a.Complete() {
		return Attempt{}, ErrAlreadyComplete
	}
	a.CompletedDate = &at
	m.attempts[id] = a
	return a, nil
}

func (m *memoryStore) MarkIncomplete(_ context.Context, id string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	if !a.Complete() {
		return Attempt{}, ErrAlreadyIncomplete
	}
	a.CompletedDate = nil
	m.attempts[id] = a
	return a, nil
}

func (m *memoryStore) DeleteFreeAttempt(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return ErrNotFound
	}
	if !a.Free() || a.Complete() {
		return ErrForbidden
	}
	delete(m.attempts, id)
	delete(m.answers, id)
	return nil
}

func (m *memoryStore) AppendAnswer(_ context.Context, qa QuestionAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[qa.AttemptID]
	if !ok {
		return ErrNotFound
	}
	if a.Complete() {
		return ErrAlreadyComplete
	}
	m.answers[qa.AttemptID] = append(m.answers[qa.AttemptID], qa)
	return nil
}

func (m *memoryStore) AnswersForAttempt(_ context.Context, attemptID string) (map[string][]QuestionAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[string][]QuestionAttempt{}
	for _, qa := range m.answers[attemptID] {
		out[qa.QuestionID] = append(out[qa.QuestionID], qa)
	}
	return out, nil
}
