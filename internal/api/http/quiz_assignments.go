package http

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// POST /quiz/assignment
func CreateAssignmentHandler(svc *quiz.AssignmentService, names Names, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r, names)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		var req quiz.AssignmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "bad json")
			return
		}
		a, err := svc.Create(r.Context(), req, p)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusCreated, a)
	}
}

// GET /quiz/assigned
func ListAssignedHandler(svc *quiz.AssignmentService, names Names, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r, names)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		list, err := svc.ListAssignedTo(r.Context(), p)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

// GET /quiz/assignments?groupId=...
func ListAssignmentsHandler(svc *quiz.AssignmentService, names Names, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r, names)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		groupID := strings.TrimSpace(r.URL.Query().Get("groupId"))
		list, err := svc.List(r.Context(), p, groupID)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

// GET /quiz/assignment/{id}
func GetAssignmentHandler(svc *quiz.AssignmentService, names Names, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r, names)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		v, err := svc.GetWithFeedback(r.Context(), chi.URLParam(r, "id"), p)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, v)
	}
}

// PATCH /quiz/assignment/{id}
func UpdateAssignmentHandler(svc *quiz.AssignmentService, names Names, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r, names)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		var fields map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			badRequest(w, "bad json")
			return
		}
		patch, err := quiz.ParseAssignmentPatch(fields)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		a, err := svc.Update(r.Context(), chi.URLParam(r, "id"), patch, p)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, a)
	}
}

// DELETE /quiz/assignment/{id}
func CancelAssignmentHandler(svc *quiz.AssignmentService, names Names, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r, names)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		if err := svc.Cancel(r.Context(), chi.URLParam(r, "id"), p); err != nil {
			respondError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /quiz/assignment/{id}/download
func DownloadAssignmentHandler(svc *quiz.AssignmentService, names Names, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r, names)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		id := chi.URLParam(r, "id")
		rows, err := svc.ExportRows(r.Context(), id, p)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="quiz-assignment-%s.csv"`, id))
		cw := csv.NewWriter(w)
		if err := cw.WriteAll(rows); err != nil {
			log.Error("csv export write failed", "assignment_id", id, "error", err)
		}
	}
}

// GET /quiz/assignment/{id}/attempt/{userId}
func GetAssignmentAttemptHandler(svc *quiz.AttemptService, names Names, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r, names)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		v, err := svc.GetAssignmentAttempt(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "userId"), p)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, v)
	}
}

// POST /quiz/assignment/{id}/{userId}/incomplete
func MarkIncompleteHandler(svc *quiz.AttemptService, names Names, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r, names)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		uf, err := svc.MarkIncomplete(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "userId"), p)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, uf)
	}
}
