package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

const maxAnswerBytes = 64 << 10

// POST /quiz/assignment/{id}/attempt
func StartAssignmentAttemptHandler(svc *quiz.AttemptService, names Names, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r, names)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		at, err := svc.FetchOrCreate(r.Context(), chi.URLParam(r, "id"), p)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, at)
	}
}

// POST /quiz/{quizId}/attempt
func StartFreeAttemptHandler(svc *quiz.AttemptService, names Names, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r, names)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		at, err := svc.FetchOrCreateFree(r.Context(), chi.URLParam(r, "quizId"), p)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, at)
	}
}

// GET /quiz/free_attempts
func ListFreeAttemptsHandler(svc *quiz.AttemptService, names Names, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r, names)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		list, err := svc.ListFree(r.Context(), p)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

// GET /quiz/available
func ListAvailableQuizzesHandler(svc *quiz.AttemptService, names Names, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r, names)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		list, err := svc.ListAvailable(r.Context(), p)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

// GET /quiz/attempt/{id}: the owner reloads an unfinished attempt.
func ResumeAttemptHandler(svc *quiz.AttemptService, names Names, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r, names)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		v, err := svc.Resume(r.Context(), chi.URLParam(r, "id"), p)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, v)
	}
}

// POST /quiz/attempt/{id}/answer/{questionId}
// The body is the raw answer (JSON or plain text) and goes to the validator
// untouched.
func AnswerHandler(rec *quiz.AnswerRecorder, names Names, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r, names)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAnswerBytes))
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				badRequest(w, "answer too large")
				return
			}
			badRequest(w, "could not read answer")
			return
		}
		v, err := rec.Answer(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "questionId"), string(body), p)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, v)
	}
}

// POST /quiz/attempt/{id}/complete
func CompleteAttemptHandler(svc *quiz.AttemptService, names Names, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r, names)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		at, err := svc.Complete(r.Context(), chi.URLParam(r, "id"), p)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, at)
	}
}

// GET /quiz/attempt/{id}/feedback
func AttemptFeedbackHandler(svc *quiz.AttemptService, names Names, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r, names)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		v, err := svc.GetFeedback(r.Context(), chi.URLParam(r, "id"), p)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, v)
	}
}

// POST /quiz/attempt/{id}/log  {"section_number": 2}
func LogSectionViewHandler(svc *quiz.AttemptService, names Names, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r, names)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		var req struct {
			SectionNumber *int `json:"section_number"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "bad json")
			return
		}
		if req.SectionNumber == nil {
			badRequest(w, "section_number required")
			return
		}
		if err := svc.LogSectionView(r.Context(), chi.URLParam(r, "id"), *req.SectionNumber, p); err != nil {
			respondError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// DELETE /quiz/attempt/{id}
func AbandonAttemptHandler(svc *quiz.AttemptService, names Names, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r, names)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		if err := svc.Abandon(r.Context(), chi.URLParam(r, "id"), p); err != nil {
			respondError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
