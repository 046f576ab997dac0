package quiz

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

func TestAssignedQuizLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	due := date(2050, time.February, 1)
	a := e.mustAssign(t, "Q1", &due, FeedbackDetailed)

	at := e.mustAttempt(t, a, student1)
	if at.Complete() || at.AssignmentID != a.ID || at.QuizID != "Q1" {
		t.Fatalf("attempt = %+v", at)
	}
	v, err := e.answers.Answer(ctx, at.ID, "q1", "42", student1)
	if err != nil || !v.Correct {
		t.Fatalf("answer: %+v %v", v, err)
	}
	done, err := e.attempts.Complete(ctx, at.ID, student1)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.CompletedDate == nil || !done.CompletedDate.Equal(e.clock.Now()) {
		t.Fatalf("completed = %v", done.CompletedDate)
	}
	_, err = e.attempts.Complete(ctx, at.ID, student1)
	wantErr(t, err, ErrAlreadyComplete)
}

func TestFetchOrCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a := e.mustAssign(t, "Q1", nil, FeedbackNone)

	first := e.mustAttempt(t, a, student1)
	second := e.mustAttempt(t, a, student1)
	if first.ID != second.ID {
		t.Fatalf("ids differ: %s vs %s", first.ID, second.ID)
	}
	all, err := e.store.ListAttemptsByAssignment(ctx, a.ID)
	if err != nil || len(all) != 1 {
		t.Fatalf("rows = %d, %v", len(all), err)
	}
}

func TestFetchOrCreateConcurrent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a := e.mustAssign(t, "Q1", nil, FeedbackNone)

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			at, err := e.attempts.FetchOrCreate(ctx, a.ID, student1)
			if err != nil {
				t.Errorf("fetch or create: %v", err)
				return
			}
			ids[i] = at.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("got several attempts: %v", ids)
		}
	}
}

func TestFetchOrCreateGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("not in group", func(t *testing.T) {
		e := newEnv(t)
		a := e.mustAssign(t, "Q1", nil, FeedbackNone)
		_, err := e.attempts.FetchOrCreate(ctx, a.ID, stranger)
		wantErr(t, err, ErrNotInGroup)
	})
	t.Run("cancelled", func(t *testing.T) {
		e := newEnv(t)
		a := e.mustAssign(t, "Q1", nil, FeedbackNone)
		e.mustAttempt(t, a, student1)
		if err := e.assign.Cancel(ctx, a.ID, teacherA); err != nil {
			t.Fatal(err)
		}
		_, err := e.attempts.FetchOrCreate(ctx, a.ID, student1)
		wantErr(t, err, ErrAssignmentCancelled)
	})
	t.Run("past due", func(t *testing.T) {
		e := newEnv(t)
		due := e.clock.Now().Add(time.Hour)
		a := e.mustAssign(t, "Q1", &due, FeedbackNone)
		e.clock.advance(2 * time.Hour)
		_, err := e.attempts.FetchOrCreate(ctx, a.ID, student1)
		wantErr(t, err, ErrDueDatePassed)
	})
	t.Run("unknown assignment", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.attempts.FetchOrCreate(ctx, "missing", student1)
		wantErr(t, err, ErrNotFound)
	})
	t.Run("existing attempt survives leaving the group", func(t *testing.T) {
		e := newEnv(t)
		a := e.mustAssign(t, "Q1", nil, FeedbackNone)
		at := e.mustAttempt(t, a, student2)
		e.groups.members["G1"] = []string{student1.ID}
		got, err := e.attempts.FetchOrCreate(ctx, a.ID, student2)
		if err != nil || got.ID != at.ID {
			t.Fatalf("got %+v, %v", got, err)
		}
	})
}

func TestCompleteGuards(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	due := e.clock.Now().Add(time.Hour)
	a := e.mustAssign(t, "Q1", &due, FeedbackNone)
	at := e.mustAttempt(t, a, student1)

	_, err := e.attempts.Complete(ctx, at.ID, student2)
	wantErr(t, err, ErrForbidden)
	if err.Error() != "You cannot complete someone else's quiz." {
		t.Fatalf("message = %q", err.Error())
	}
	_, err = e.attempts.Complete(ctx, at.ID, admin)
	wantErr(t, err, ErrForbidden)

	e.clock.advance(2 * time.Hour)
	_, err = e.attempts.Complete(ctx, at.ID, student1)
	wantErr(t, err, ErrDueDatePassed)
}

func TestMarkIncomplete(t *testing.T) {
	ctx := context.Background()
	due := date(2049, time.July, 1)

	t.Run("reopens completed attempt", func(t *testing.T) {
		e := newEnv(t)
		a := e.mustAssign(t, "Q1", &due, FeedbackDetailed)
		completeWithAnswers(t, e, a, student1, map[string]string{"q1": "42"})
		e.assoc.grant(student1.ID, teacherA.ID)

		uf, err := e.attempts.MarkIncomplete(ctx, a.ID, student1.ID, teacherA)
		if err != nil {
			t.Fatalf("mark incomplete: %v", err)
		}
		if uf.User.ID != student1.ID || uf.Feedback == nil || uf.Feedback.Complete {
			t.Fatalf("feedback = %+v", uf)
		}
		at, err := e.store.GetAttemptByAssignmentAndUser(ctx, a.ID, student1.ID)
		if err != nil || at.Complete() {
			t.Fatalf("attempt = %+v, %v", at, err)
		}
		// the student can carry on
		if _, err := e.answers.Answer(ctx, at.ID, "q2", "force", student1); err != nil {
			t.Fatalf("answer after reopen: %v", err)
		}
		_, err = e.attempts.MarkIncomplete(ctx, a.ID, student1.ID, teacherA)
		wantErr(t, err, ErrAlreadyIncomplete)
	})
	t.Run("no consent hides feedback", func(t *testing.T) {
		e := newEnv(t)
		a := e.mustAssign(t, "Q1", &due, FeedbackDetailed)
		completeWithAnswers(t, e, a, student1, nil)
		uf, err := e.attempts.MarkIncomplete(ctx, a.ID, student1.ID, teacherB)
		if err != nil {
			t.Fatal(err)
		}
		if uf.Feedback != nil || uf.User.AuthorisedFullAccess {
			t.Fatalf("feedback = %+v", uf)
		}
	})
	t.Run("past due is a validation error", func(t *testing.T) {
		e := newEnv(t)
		a := e.mustAssign(t, "Q1", &due, FeedbackDetailed)
		completeWithAnswers(t, e, a, student1, nil)
		e.clock.advance(60 * 24 * time.Hour)
		_, err := e.attempts.MarkIncomplete(ctx, a.ID, student1.ID, teacherA)
		wantErr(t, err, ErrDueDatePassed)
		if KindOf(err) != KindValidation {
			t.Fatalf("kind = %v", KindOf(err))
		}
	})
	t.Run("requires manager", func(t *testing.T) {
		e := newEnv(t)
		a := e.mustAssign(t, "Q1", &due, FeedbackDetailed)
		completeWithAnswers(t, e, a, student1, nil)
		_, err := e.attempts.MarkIncomplete(ctx, a.ID, student1.ID, outsider)
		wantErr(t, err, ErrForbidden)
		_, err = e.attempts.MarkIncomplete(ctx, a.ID, student1.ID, student2)
		wantErr(t, err, ErrForbidden)
	})
	t.Run("target outside group", func(t *testing.T) {
		e := newEnv(t)
		a := e.mustAssign(t, "Q1", &due, FeedbackDetailed)
		_, err := e.attempts.MarkIncomplete(ctx, a.ID, stranger.ID, teacherA)
		wantErr(t, err, ErrNotInGroup)
	})
	t.Run("never started", func(t *testing.T) {
		e := newEnv(t)
		a := e.mustAssign(t, "Q1", &due, FeedbackDetailed)
		_, err := e.attempts.MarkIncomplete(ctx, a.ID, student2.ID, teacherA)
		wantErr(t, err, ErrAlreadyIncomplete)
	})
	t.Run("cancelled", func(t *testing.T) {
		e := newEnv(t)
		a := e.mustAssign(t, "Q1", &due, FeedbackDetailed)
		completeWithAnswers(t, e, a, student1, nil)
		if err := e.assign.Cancel(ctx, a.ID, teacherA); err != nil {
			t.Fatal(err)
		}
		_, err := e.attempts.MarkIncomplete(ctx, a.ID, student1.ID, admin)
		wantErr(t, err, ErrAssignmentCancelled)
	})
}

func TestFreeAttempts(t *testing.T) {
	ctx := context.Background()

	t.Run("fetch or create", func(t *testing.T) {
		e := newEnv(t)
		first, err := e.attempts.FetchOrCreateFree(ctx, "Q2", student1)
		if err != nil {
			t.Fatalf("free: %v", err)
		}
		if !first.Free() {
			t.Fatalf("attempt = %+v", first)
		}
		again, err := e.attempts.FetchOrCreateFree(ctx, "Q2", student1)
		if err != nil || again.ID != first.ID {
			t.Fatalf("again = %+v, %v", again, err)
		}
		if _, err := e.attempts.Complete(ctx, first.ID, student1); err != nil {
			t.Fatal(err)
		}
		fresh, err := e.attempts.FetchOrCreateFree(ctx, "Q2", student1)
		if err != nil || fresh.ID == first.ID {
			t.Fatalf("fresh = %+v, %v", fresh, err)
		}
		list, err := e.attempts.ListFree(ctx, student1)
		if err != nil || len(list) != 2 {
			t.Fatalf("list = %v, %v", list, err)
		}
	})
	t.Run("hidden quiz", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.attempts.FetchOrCreateFree(ctx, "QT", student1)
		wantErr(t, err, ErrFreeAttemptsUnavailable)
		_, err = e.attempts.FetchOrCreateFree(ctx, "missing", student1)
		wantErr(t, err, ErrFreeAttemptsUnavailable)
		if _, err := e.attempts.FetchOrCreateFree(ctx, "QT", Principal{ID: "t", Role: rbac.RoleTeacher}); err != nil {
			t.Fatalf("teacher preview: %v", err)
		}
	})
	t.Run("already assigned", func(t *testing.T) {
		e := newEnv(t)
		e.mustAssign(t, "Q1", nil, FeedbackNone)
		_, err := e.attempts.FetchOrCreateFree(ctx, "Q1", student1)
		wantErr(t, err, ErrAlreadyAssigned)
	})
	t.Run("assigned attempt outlives assignment", func(t *testing.T) {
		e := newEnv(t)
		due := e.clock.Now().Add(time.Hour)
		a := e.mustAssign(t, "Q1", &due, FeedbackNone)
		e.mustAttempt(t, a, student1)
		e.clock.advance(2 * time.Hour)
		_, err := e.attempts.FetchOrCreateFree(ctx, "Q1", student1)
		wantErr(t, err, ErrAlreadyAssigned)
		// s2 never started, and the assignment is over
		if _, err := e.attempts.FetchOrCreateFree(ctx, "Q1", student2); err != nil {
			t.Fatalf("s2 free: %v", err)
		}
	})
}

func TestAbandon(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	free, err := e.attempts.FetchOrCreateFree(ctx, "Q2", student1)
	if err != nil {
		t.Fatal(err)
	}
	a := e.mustAssign(t, "Q1", nil, FeedbackNone)
	assigned := e.mustAttempt(t, a, student1)

	tests := []struct {
		name string
		id   string
		p    Principal
		msg  string
	}{
		{"someone else", free.ID, student2, "You cannot cancel a quiz attempt for someone else."},
		{"assigned", assigned.ID, student1, "You can only cancel attempts on quizzes you chose to take."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := e.attempts.Abandon(ctx, tc.id, tc.p)
			wantErr(t, err, ErrForbidden)
			if err.Error() != tc.msg {
				t.Fatalf("message = %q", err.Error())
			}
		})
	}

	if err := e.attempts.Abandon(ctx, free.ID, student1); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	_, err = e.store.GetAttempt(ctx, free.ID)
	wantErr(t, err, ErrNotFound)

	done, err := e.attempts.FetchOrCreateFree(ctx, "Q2", student1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.attempts.Complete(ctx, done.ID, student1); err != nil {
		t.Fatal(err)
	}
	err = e.attempts.Abandon(ctx, done.ID, student1)
	if err == nil || err.Error() != "You cannot cancel completed quiz attempts." {
		t.Fatalf("got %v", err)
	}
}

func TestGetAssignmentAttempt(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a := e.mustAssign(t, "Q1", nil, FeedbackSections)
	completeWithAnswers(t, e, a, student1, map[string]string{"q1": "42", "q3": "false"})

	// no consent: identity without feedback
	view, err := e.attempts.GetAssignmentAttempt(ctx, a.ID, student1.ID, teacherA)
	if err != nil {
		t.Fatalf("teacher view: %v", err)
	}
	if view.Feedback != nil || view.User.ID != student1.ID || view.User.FamilyName != "One" {
		t.Fatalf("teacher view = %+v", view.UserFeedback)
	}
	if view.Answers != nil {
		t.Fatal("answers leaked")
	}

	adminView, err := e.attempts.GetAssignmentAttempt(ctx, a.ID, student1.ID, admin)
	if err != nil {
		t.Fatalf("admin view: %v", err)
	}
	fb := adminView.Feedback
	if fb == nil || fb.SectionMarks["sec1"] != (Mark{Correct: 1, NotAttempted: 1}) || fb.SectionMarks["sec2"] != (Mark{Incorrect: 1}) {
		t.Fatalf("admin feedback = %+v", fb)
	}
	if fb.QuestionMarks != nil {
		t.Fatal("question marks shown in SECTION_MARKS mode")
	}

	e.assoc.grant(student1.ID, teacherA.ID)
	view, err = e.attempts.GetAssignmentAttempt(ctx, a.ID, student1.ID, teacherA)
	if err != nil || view.Feedback == nil {
		t.Fatalf("consented view = %+v, %v", view, err)
	}

	_, err = e.attempts.GetAssignmentAttempt(ctx, a.ID, student2.ID, teacherA)
	wantErr(t, err, ErrForbidden)
	_, err = e.attempts.GetAssignmentAttempt(ctx, a.ID, stranger.ID, teacherA)
	wantErr(t, err, ErrNotInGroup)
	_, err = e.attempts.GetAssignmentAttempt(ctx, a.ID, student1.ID, outsider)
	wantErr(t, err, ErrForbidden)

	// results stay readable after the due date
	e.clock.advance(365 * 24 * time.Hour)
	if _, err := e.attempts.GetAssignmentAttempt(ctx, a.ID, student1.ID, teacherA); err != nil {
		t.Fatalf("after due: %v", err)
	}
	if err := e.assign.Cancel(ctx, a.ID, teacherA); err != nil {
		t.Fatal(err)
	}
	_, err = e.attempts.GetAssignmentAttempt(ctx, a.ID, student1.ID, admin)
	wantErr(t, err, ErrAssignmentCancelled)
}

func TestGetFeedback(t *testing.T) {
	ctx := context.Background()

	t.Run("assigned", func(t *testing.T) {
		e := newEnv(t)
		a := e.mustAssign(t, "Q1", nil, FeedbackDetailed)
		at := completeWithAnswers(t, e, a, student1, map[string]string{"q2": "force"})
		view, err := e.attempts.GetFeedback(ctx, at.ID, student1)
		if err != nil {
			t.Fatalf("feedback: %v", err)
		}
		if view.FeedbackMode != FeedbackDetailed || view.Feedback.QuestionMarks["q2"].Correct != 1 {
			t.Fatalf("view = %+v", view)
		}
		if view.Answers["q2"].Answer != "force" {
			t.Fatalf("answers = %+v", view.Answers)
		}
		if view.Assignment == nil || view.Assignment.ID != a.ID {
			t.Fatalf("assignment = %+v", view.Assignment)
		}
		_, err = e.attempts.GetFeedback(ctx, at.ID, student2)
		wantErr(t, err, ErrForbidden)
	})
	t.Run("free uses quiz default", func(t *testing.T) {
		e := newEnv(t)
		at, err := e.attempts.FetchOrCreateFree(ctx, "Q2", student1)
		if err != nil {
			t.Fatal(err)
		}
		_, err = e.attempts.GetFeedback(ctx, at.ID, student1)
		wantErr(t, err, ErrForbidden)
		if _, err := e.attempts.Complete(ctx, at.ID, student1); err != nil {
			t.Fatal(err)
		}
		view, err := e.attempts.GetFeedback(ctx, at.ID, student1)
		if err != nil {
			t.Fatal(err)
		}
		if view.FeedbackMode != FeedbackOverall || view.Feedback.OverallMark == nil || view.Feedback.SectionMarks != nil {
			t.Fatalf("view = %+v", view)
		}
	})
	t.Run("free defaults to detailed", func(t *testing.T) {
		e := newEnv(t)
		at, err := e.attempts.FetchOrCreateFree(ctx, "QT", teacherA)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := e.attempts.Complete(ctx, at.ID, teacherA); err != nil {
			t.Fatal(err)
		}
		view, err := e.attempts.GetFeedback(ctx, at.ID, teacherA)
		if err != nil || view.FeedbackMode != FeedbackDetailed {
			t.Fatalf("view = %+v, %v", view, err)
		}
	})
}

func TestLogSectionView(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a := e.mustAssign(t, "Q1", nil, FeedbackNone)
	at := e.mustAttempt(t, a, student1)

	if err := e.attempts.LogSectionView(ctx, at.ID, 2, student1); err != nil {
		t.Fatalf("log: %v", err)
	}
	last := e.events.events[len(e.events.events)-1]
	if last.Type != "VIEW_QUIZ_SECTION" || last.Data["quizSection"] != 2 || last.Data["quizAssignmentId"] != a.ID {
		t.Fatalf("event = %+v", last)
	}
	wantErr(t, e.attempts.LogSectionView(ctx, at.ID, 1, student2), ErrForbidden)

	if _, err := e.attempts.Complete(ctx, at.ID, student1); err != nil {
		t.Fatal(err)
	}
	err := e.attempts.LogSectionView(ctx, at.ID, 1, student1)
	wantErr(t, err, ErrAlreadyComplete)
	if KindOf(err) != KindForbidden {
		t.Fatalf("kind = %v", KindOf(err))
	}
}

func TestResume(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	due := e.clock.Now().Add(24 * time.Hour)
	a := e.mustAssign(t, "Q1", &due, FeedbackDetailed)
	at := e.mustAttempt(t, a, student1)

	got, err := e.attempts.Resume(ctx, at.ID, student1)
	if err != nil {
		t.Fatalf("resume fresh: %v", err)
	}
	if len(got.Answers) != 0 || got.Quiz.Title != "Mechanics" || got.Assignment.ID != a.ID {
		t.Fatalf("fresh = %+v", got)
	}

	for _, ans := range []string{"41", "42"} {
		if _, err := e.answers.Answer(ctx, at.ID, "q1", ans, student1); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := e.answers.Answer(ctx, at.ID, "q3", "false", student1); err != nil {
		t.Fatal(err)
	}
	got, err = e.attempts.Resume(ctx, at.ID, student1)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if len(got.Answers) != 2 || got.Answers["q1"].Answer != "42" || got.Answers["q3"].Answer != "false" {
		t.Fatalf("answers = %+v", got.Answers)
	}

	_, err = e.attempts.Resume(ctx, at.ID, student2)
	wantErr(t, err, ErrForbidden)
	_, err = e.attempts.Resume(ctx, "missing", student1)
	wantErr(t, err, ErrNotFound)

	if _, err := e.attempts.Complete(ctx, at.ID, student1); err != nil {
		t.Fatal(err)
	}
	_, err = e.attempts.Resume(ctx, at.ID, student1)
	wantErr(t, err, ErrAlreadyComplete)
	if KindOf(err) != KindForbidden {
		t.Fatalf("kind = %v", KindOf(err))
	}

	t.Run("overdue", func(t *testing.T) {
		e := newEnv(t)
		due := e.clock.Now().Add(time.Hour)
		a := e.mustAssign(t, "Q1", &due, FeedbackNone)
		at := e.mustAttempt(t, a, student1)
		e.clock.advance(2 * time.Hour)
		_, err := e.attempts.Resume(ctx, at.ID, student1)
		wantErr(t, err, ErrDueDatePassed)
	})
	t.Run("cancelled", func(t *testing.T) {
		e := newEnv(t)
		a := e.mustAssign(t, "Q1", nil, FeedbackNone)
		at := e.mustAttempt(t, a, student1)
		if err := e.assign.Cancel(ctx, a.ID, teacherA); err != nil {
			t.Fatal(err)
		}
		_, err := e.attempts.Resume(ctx, at.ID, student1)
		wantErr(t, err, ErrAssignmentCancelled)
	})
	t.Run("free attempt", func(t *testing.T) {
		e := newEnv(t)
		at, err := e.attempts.FetchOrCreateFree(ctx, "Q2", student1)
		if err != nil {
			t.Fatal(err)
		}
		got, err := e.attempts.Resume(ctx, at.ID, student1)
		if err != nil || got.Assignment != nil || got.Quiz.ID != "Q2" {
			t.Fatalf("free resume = %+v %v", got, err)
		}
	})
}

func TestListAvailable(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.catalog.put(Quiz{ID: "QH", Title: "Not for tutors", VisibleToStudents: true, HiddenFromRoles: []rbac.Role{rbac.RoleTutor}})

	ids := func(p Principal) string {
		t.Helper()
		list, err := e.attempts.ListAvailable(ctx, p)
		if err != nil {
			t.Fatalf("list as %s: %v", p.ID, err)
		}
		var out []string
		for _, q := range list {
			out = append(out, q.ID)
		}
		return strings.Join(out, ",")
	}
	tests := []struct {
		name string
		p    Principal
		want string
	}{
		{"student", student1, "Q1,Q2,QH"},
		{"tutor", Principal{ID: "tu", Role: rbac.RoleTutor}, "Q1,Q2"},
		{"teacher", teacherA, "Q1,Q2,QH,QT"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ids(tc.p); got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
	_, err := e.attempts.ListAvailable(ctx, Principal{})
	wantErr(t, err, ErrNotLoggedIn)
}
