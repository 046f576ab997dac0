package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/eventlog"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

type createUserReq struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// POST /admin/users
func CreateUserHandler(users *authmw.Users, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createUserReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "bad json")
			return
		}
		role := rbac.RoleStudent
		if req.Role != "" {
			var err error
			if role, err = rbac.ParseRole(req.Role); err != nil {
				badRequest(w, "invalid role")
				return
			}
		}
		if req.Username == "" || req.Password == "" {
			badRequest(w, "username and password required")
			return
		}
		u, err := users.CreateUser(r.Context(), authmw.User{
			ID: req.ID, Username: req.Username, Role: role,
			GivenName: req.GivenName, FamilyName: req.FamilyName,
		}, req.Password)
		if errors.Is(err, authmw.ErrUsernameTaken) {
			badRequest(w, err.Error())
			return
		}
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusCreated, u)
	}
}

// PATCH /admin/users/{userID}  {"role": "TEACHER"}
func AdminUpdateUserRoleHandler(db *sql.DB, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := chi.URLParam(r, "userID")
		var req struct {
			Role string `json:"role"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "bad json")
			return
		}
		role, err := rbac.ParseRole(req.Role)
		if err != nil {
			badRequest(w, "invalid role")
			return
		}

		var current string
		err = db.QueryRowContext(r.Context(), `SELECT role FROM users WHERE id=$1`, target).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, r, log, quiz.ErrNotFound.WithMessage("user not found"))
			return
		}
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		if current == rbac.RoleAdmin.String() && role != rbac.RoleAdmin {
			var admins int
			if err := db.QueryRowContext(r.Context(),
				`SELECT COUNT(1) FROM users WHERE role=$1`, rbac.RoleAdmin.String()).Scan(&admins); err != nil {
				respondError(w, r, log, err)
				return
			}
			if admins <= 1 {
				badRequest(w, "cannot demote the last admin")
				return
			}
		}
		if _, err := db.ExecContext(r.Context(), `UPDATE users SET role=$1 WHERE id=$2`, role.String(), target); err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"id": target, "role": role.String()})
	}
}

// QuizPublisher stores quiz content; catalog.SQLCatalog satisfies it.
type QuizPublisher interface {
	quiz.Catalog
	PutQuiz(ctx context.Context, q quiz.Quiz) error
	PutQuestion(ctx context.Context, q quiz.Question) error
}

// Invalidator drops cached catalog entries after a publish.
type Invalidator interface {
	Invalidate(ctx context.Context, quizID string, questionIDs ...string) error
}

// PUT /admin/quizzes/{id}
func PutQuizHandler(pub QuizPublisher, inv Invalidator, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q quiz.Quiz
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			badRequest(w, "bad json")
			return
		}
		q.ID = chi.URLParam(r, "id")

		stale := questionIDs(q)
		if old, err := pub.FindQuiz(r.Context(), q.ID); err == nil {
			stale = append(stale, questionIDs(old)...)
		} else if !errors.Is(err, quiz.ErrNotFound) {
			respondError(w, r, log, err)
			return
		}
		if err := pub.PutQuiz(r.Context(), q); err != nil {
			respondError(w, r, log, err)
			return
		}
		if inv != nil {
			if err := inv.Invalidate(r.Context(), q.ID, stale...); err != nil {
				log.Warn("catalog cache invalidation failed", "quiz_id", q.ID, "error", err)
			}
		}
		log.Info("quiz published", "quiz_id", q.ID, "questions", len(q.Questions()))
		respondJSON(w, http.StatusOK, q)
	}
}

// PUT /admin/questions/{id}  (content not part of any quiz)
func PutQuestionHandler(pub QuizPublisher, inv Invalidator, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q quiz.Question
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			badRequest(w, "bad json")
			return
		}
		q.ID = chi.URLParam(r, "id")
		if err := pub.PutQuestion(r.Context(), q); err != nil {
			respondError(w, r, log, err)
			return
		}
		if inv != nil {
			if err := inv.Invalidate(r.Context(), q.QuizID, q.ID); err != nil {
				log.Warn("catalog cache invalidation failed", "question_id", q.ID, "error", err)
			}
		}
		respondJSON(w, http.StatusOK, q)
	}
}

func questionIDs(q quiz.Quiz) []string {
	var ids []string
	for _, qq := range q.Questions() {
		ids = append(ids, qq.ID)
	}
	return ids
}

// GET /admin/events?after=0&limit=100
func ListEventsHandler(events *eventlog.Repo, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after, err := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		if err != nil {
			after = 0
		}
		list, err := events.Since(r.Context(), after, parseIntDefault(r.URL.Query().Get("limit"), 100))
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}
