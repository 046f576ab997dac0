package http

import (
	"context"
	"net/http"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// Names supplies display names for the caller; groups.Directory satisfies it.
type Names interface {
	Summary(ctx context.Context, userID string) (quiz.UserSummary, error)
}

// principalFrom builds the acting user from the subject and role that the
// auth middleware attached. A missing name row is not an error.
func principalFrom(r *http.Request, names Names) (quiz.Principal, error) {
	ctx := r.Context()
	sub := rbac.SubjectFromContext(ctx)
	if sub == "" {
		return quiz.Principal{}, quiz.ErrNotLoggedIn
	}
	p := quiz.Principal{ID: sub, Role: rbac.RoleStudent}
	if role, ok := rbac.RoleFromContext(ctx); ok {
		p.Role = role
	}
	if names != nil {
		if s, err := names.Summary(ctx, sub); err == nil {
			p.GivenName, p.FamilyName = s.GivenName, s.FamilyName
		}
	}
	return p, nil
}
