package http

import (
	"database/sql"
	"log/slog"

	"github.com/go-chi/chi/v5"

	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/eventlog"
	"github.com/mind-engage/mindengage-quiz/internal/groups"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// Services bundles what the quiz routes call into.
type Services struct {
	Assignments *quiz.AssignmentService
	Attempts    *quiz.AttemptService
	Answers     *quiz.AnswerRecorder
	Names       Names
	Logger      *slog.Logger
}

// MountQuiz registers the quiz assignment and attempt routes on r, which
// must already carry the auth middleware.
func MountQuiz(r chi.Router, s Services) {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	r.Route("/quiz", func(qr chi.Router) {
		qr.With(rbac.Require("assignment:create")).
			Post("/assignment", CreateAssignmentHandler(s.Assignments, s.Names, log))
		qr.With(rbac.Require("assignment:view-assigned")).
			Get("/assigned", ListAssignedHandler(s.Assignments, s.Names, log))
		qr.With(rbac.Require("assignment:view-all")).
			Get("/assignments", ListAssignmentsHandler(s.Assignments, s.Names, log))

		qr.Route("/assignment/{id}", func(ar chi.Router) {
			ar.With(rbac.Require("assignment:view-all")).
				Get("/", GetAssignmentHandler(s.Assignments, s.Names, log))
			ar.With(rbac.Require("assignment:manage")).
				Patch("/", UpdateAssignmentHandler(s.Assignments, s.Names, log))
			ar.With(rbac.Require("assignment:manage")).
				Delete("/", CancelAssignmentHandler(s.Assignments, s.Names, log))
			ar.With(rbac.Require("assignment:export")).
				Get("/download", DownloadAssignmentHandler(s.Assignments, s.Names, log))
			ar.With(rbac.Require("assignment:view-all")).
				Get("/attempt/{userId}", GetAssignmentAttemptHandler(s.Attempts, s.Names, log))
			ar.With(rbac.Require("attempt:mark-incomplete")).
				Post("/{userId}/incomplete", MarkIncompleteHandler(s.Attempts, s.Names, log))
			ar.With(rbac.Require("quiz:attempt")).
				Post("/attempt", StartAssignmentAttemptHandler(s.Attempts, s.Names, log))
		})

		qr.With(rbac.Require("quiz:attempt")).
			Get("/available", ListAvailableQuizzesHandler(s.Attempts, s.Names, log))
		qr.With(rbac.Require("quiz:attempt")).
			Get("/free_attempts", ListFreeAttemptsHandler(s.Attempts, s.Names, log))
		qr.With(rbac.Require("quiz:attempt")).
			Post("/{quizId}/attempt", StartFreeAttemptHandler(s.Attempts, s.Names, log))

		qr.Route("/attempt/{id}", func(ar chi.Router) {
			ar.With(rbac.Require("quiz:attempt")).
				Get("/", ResumeAttemptHandler(s.Attempts, s.Names, log))
			ar.With(rbac.Require("quiz:answer")).
				Post("/answer/{questionId}", AnswerHandler(s.Answers, s.Names, log))
			ar.With(rbac.Require("quiz:attempt")).
				Post("/complete", CompleteAttemptHandler(s.Attempts, s.Names, log))
			ar.With(rbac.Require("quiz:feedback-own")).
				Get("/feedback", AttemptFeedbackHandler(s.Attempts, s.Names, log))
			ar.With(rbac.Require("quiz:attempt")).
				Post("/log", LogSectionViewHandler(s.Attempts, s.Names, log))
			ar.With(rbac.Require("quiz:attempt")).
				Delete("/", AbandonAttemptHandler(s.Attempts, s.Names, log))
		})
	})
}

// Directory holds the supporting stores behind group, consent and admin
// routes.
type Directory struct {
	DB      *sql.DB
	Groups  *groups.Directory
	Users   *authmw.Users
	Content QuizPublisher
	Cache   Invalidator // optional
	Events  *eventlog.Repo
	Logger  *slog.Logger
}

// MountDirectory registers group management, consent and admin routes.
func MountDirectory(r chi.Router, d Directory) {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	r.Route("/groups", func(gr chi.Router) {
		gr.Use(rbac.Require("group:manage"))
		gr.Post("/", CreateGroupHandler(d.Groups, log))
		gr.Patch("/{id}", SetGroupPrivilegesHandler(d.Groups, log))
		gr.Post("/{id}/members/{userId}", AddGroupMemberHandler(d.Groups, log))
		gr.Delete("/{id}/members/{userId}", RemoveGroupMemberHandler(d.Groups, log))
	})
	r.Route("/consent/{teacherId}", func(cr chi.Router) {
		cr.Use(rbac.Require("consent:manage"))
		cr.Post("/", GrantConsentHandler(d.Groups, log))
		cr.Delete("/", RevokeConsentHandler(d.Groups, log))
	})
	r.Route("/admin", func(ar chi.Router) {
		ar.With(rbac.Require("admin:users")).Post("/users", CreateUserHandler(d.Users, log))
		ar.With(rbac.Require("admin:users")).Patch("/users/{userID}", AdminUpdateUserRoleHandler(d.DB, log))
		ar.With(rbac.Require("admin:content")).Put("/quizzes/{id}", PutQuizHandler(d.Content, d.Cache, log))
		ar.With(rbac.Require("admin:content")).Put("/questions/{id}", PutQuestionHandler(d.Content, d.Cache, log))
		ar.With(rbac.Require("admin:events")).Get("/events", ListEventsHandler(d.Events, log))
	})
}
