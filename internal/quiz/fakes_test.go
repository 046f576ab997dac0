package quiz

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

/* ---------- fakes ---------- */

type fakeGroups struct {
	groups  map[string]Group
	members map[string][]string
}

func newFakeGroups() *fakeGroups {
	return &fakeGroups{groups: map[string]Group{}, members: map[string][]string{}}
}

func (f *fakeGroups) add(g Group, members ...string) {
	f.groups[g.ID] = g
	f.members[g.ID] = append(f.members[g.ID], members...)
}

func (f *fakeGroups) GetGroup(_ context.Context, id string) (Group, error) {
	g, ok := f.groups[id]
	if !ok {
		return Group{}, ErrNotFound
	}
	return g, nil
}

func (f *fakeGroups) IsManagerOf(_ context.Context, userID, groupID string) (bool, error) {
	g, ok := f.groups[groupID]
	if !ok {
		return false, nil
	}
	return g.CanManage(userID), nil
}

func (f *fakeGroups) MembersOf(_ context.Context, groupID string) ([]string, error) {
	return f.members[groupID], nil
}

func (f *fakeGroups) GroupsOf(_ context.Context, userID string) ([]string, error) {
	var out []string
	for gid, ms := range f.members {
		for _, m := range ms {
			if m == userID {
				out = append(out, gid)
			}
		}
	}
	return out, nil
}

func (f *fakeGroups) GroupsManagedBy(_ context.Context, userID string) ([]string, error) {
	var out []string
	for gid, g := range f.groups {
		if g.CanManage(userID) {
			out = append(out, gid)
		}
	}
	return out, nil
}

type fakeAssociations map[string]map[string]bool // student -> teacher -> granted

func (f fakeAssociations) grant(student, teacher string) {
	if f[student] == nil {
		f[student] = map[string]bool{}
	}
	f[student][teacher] = true
}

func (f fakeAssociations) HasConsent(_ context.Context, student, teacher string) (bool, error) {
	return f[student][teacher], nil
}

type fakeCatalog struct {
	quizzes   map[string]Quiz
	questions map[string]Question
}

func (c *fakeCatalog) put(q Quiz) {
	c.quizzes[q.ID] = q
	for _, qq := range q.Questions() {
		c.questions[qq.ID] = qq
	}
}

func (c *fakeCatalog) FindQuiz(_ context.Context, id string) (Quiz, error) {
	q, ok := c.quizzes[id]
	if !ok {
		return Quiz{}, ErrNotFound
	}
	return q, nil
}

func (c *fakeCatalog) FindQuestion(_ context.Context, id string) (Question, error) {
	q, ok := c.questions[id]
	if !ok {
		return Question{}, ErrNotFound
	}
	return q, nil
}

func (c *fakeCatalog) ListQuizzes(_ context.Context) ([]Quiz, error) {
	ids := make([]string, 0, len(c.quizzes))
	for id := range c.quizzes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Quiz, 0, len(ids))
	for _, id := range ids {
		q := c.quizzes[id]
		q.Sections = nil
		out = append(out, q)
	}
	return out, nil
}

// keyValidator marks an answer correct when it equals the first answer key.
type keyValidator struct{}

func (keyValidator) Validate(_ context.Context, q Question, raw string) (Verdict, error) {
	if raw == "garbage" {
		return Verdict{}, ErrInvalidAnswer
	}
	ok := len(q.AnswerKey) > 0 && q.AnswerKey[0] == raw
	v := Verdict{QuestionID: q.ID, Correct: ok, MaxMarks: q.Points}
	if ok {
		v.Marks = q.Points
	}
	return v, nil
}

type fakeUsers map[string]UserSummary

func (f fakeUsers) Summary(_ context.Context, id string) (UserSummary, error) {
	u, ok := f[id]
	if !ok {
		return UserSummary{}, errors.New("no such user")
	}
	return u, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Append(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

/* ---------- environment ---------- */

var (
	teacherA = Principal{ID: "teacherA", Role: rbac.RoleTeacher, GivenName: "Ada", FamilyName: "Owner"}
	teacherB = Principal{ID: "teacherB", Role: rbac.RoleTeacher, GivenName: "Bo", FamilyName: "Helper"}
	outsider = Principal{ID: "teacherC", Role: rbac.RoleTeacher}
	admin    = Principal{ID: "admin", Role: rbac.RoleAdmin}
	student1 = Principal{ID: "s1", Role: rbac.RoleStudent, GivenName: "Sam", FamilyName: "One"}
	student2 = Principal{ID: "s2", Role: rbac.RoleStudent, GivenName: "Sue", FamilyName: "Two"}
	stranger = Principal{ID: "s9", Role: rbac.RoleStudent}
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

type testEnv struct {
	deps     Deps
	store    Store
	groups   *fakeGroups
	assoc    fakeAssociations
	catalog  *fakeCatalog
	events   *recordingSink
	clock    *fakeClock
	assign   *AssignmentService
	attempts *AttemptService
	answers  *AnswerRecorder
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	return newEnvWithStore(t, NewInMemoryStore())
}

// newEnvWithStore seeds group G1 (owner teacherA, additional manager
// teacherB with privileges, members s1 and s2) and quizzes Q1 and Q2.
func newEnvWithStore(t *testing.T, store Store) *testEnv {
	t.Helper()
	e := &testEnv{
		store:   store,
		groups:  newFakeGroups(),
		assoc:   fakeAssociations{},
		catalog: &fakeCatalog{quizzes: map[string]Quiz{}, questions: map[string]Question{}},
		events:  &recordingSink{},
		clock:   &fakeClock{now: date(2049, time.June, 1)},
	}
	e.groups.add(Group{ID: "G1", OwnerID: teacherA.ID, AdditionalManagers: []string{teacherB.ID}, AdditionalManagerPrivileges: true},
		student1.ID, student2.ID)
	e.groups.add(Group{ID: "G2", OwnerID: outsider.ID}, stranger.ID)

	e.catalog.put(Quiz{
		ID: "Q1", Title: "Mechanics", VisibleToStudents: true,
		Sections: []Section{
			{ID: "sec1", Questions: []Question{
				{ID: "q1", Type: "numeric", AnswerKey: []string{"42"}, Points: 1},
				{ID: "q2", Type: "short_word", AnswerKey: []string{"force"}, Points: 1},
			}},
			{ID: "sec2", Questions: []Question{
				{ID: "q3", Type: "true_false", AnswerKey: []string{"true"}, Points: 1},
			}},
		},
	})
	e.catalog.put(Quiz{
		ID: "Q2", Title: "Waves", VisibleToStudents: true, DefaultFeedbackMode: FeedbackOverall,
		Sections: []Section{{ID: "w1", Questions: []Question{{ID: "w-q1", Type: "numeric", AnswerKey: []string{"3"}, Points: 1}}}},
	})
	e.catalog.put(Quiz{ID: "QT", Title: "Teachers only", Sections: []Section{{ID: "t1"}}})
	e.catalog.questions["concept-1"] = Question{ID: "concept-1", Type: "short_word", AnswerKey: []string{"x"}}

	e.deps = Deps{
		Store:        store,
		Groups:       e.groups,
		Associations: e.assoc,
		Catalog:      e.catalog,
		Validator:    keyValidator{},
		Users: fakeUsers{
			student1.ID: {GivenName: student1.GivenName, FamilyName: student1.FamilyName},
			student2.ID: {GivenName: student2.GivenName, FamilyName: student2.FamilyName},
		},
		Events: e.events,
		Clock:  e.clock,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	e.assign = NewAssignmentService(e.deps)
	e.attempts = NewAttemptService(e.deps)
	e.answers = NewAnswerRecorder(e.deps)
	return e
}

// mustAssign sets quizID to G1 as teacherA.
func (e *testEnv) mustAssign(t *testing.T, quizID string, due *time.Time, mode FeedbackMode) Assignment {
	t.Helper()
	a, err := e.assign.Create(context.Background(), AssignmentRequest{
		QuizID: quizID, GroupID: "G1", FeedbackMode: mode, DueDate: due,
	}, teacherA)
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	return a
}

// mustAttempt starts p's attempt at a.
func (e *testEnv) mustAttempt(t *testing.T, a Assignment, p Principal) Attempt {
	t.Helper()
	at, err := e.attempts.FetchOrCreate(context.Background(), a.ID, p)
	if err != nil {
		t.Fatalf("fetch or create: %v", err)
	}
	return at
}

func wantErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("want %v, got %v", target, err)
	}
}
