package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

type errorBody struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// statusFor maps an engine error kind onto the HTTP status the client sees.
func statusFor(err error) int {
	switch quiz.KindOf(err) {
	case quiz.KindValidation, quiz.KindConflict:
		return http.StatusBadRequest
	case quiz.KindForbidden:
		return http.StatusForbidden
	case quiz.KindUnauthenticated:
		return http.StatusUnauthorized
	case quiz.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": message}. Errors outside the engine's
// taxonomy are logged and reported without detail.
func respondError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	var qe *quiz.Error
	if errors.As(err, &qe) {
		msg = qe.Message
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	respondJSON(w, status, errorBody{Error: msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
