package auth

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// AttachRoleFromDB replaces the token's role with the one stored for the
// subject, so demotions take effect before tokens expire. Subjects unknown
// to the users table keep their claim role only when allowClaimFallback is
// set (offline/dev).
func AttachRoleFromDB(db *sql.DB, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sub := rbac.SubjectFromContext(ctx)
			_, hasClaim := rbac.RoleFromContext(ctx)

			var stored string
			err := db.QueryRowContext(ctx, `SELECT role FROM users WHERE id=$1`, sub).Scan(&stored)
			switch {
			case err == nil:
				role, perr := rbac.ParseRole(stored)
				if perr != nil {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, role)))
			case errors.Is(err, sql.ErrNoRows) && allowClaimFallback && hasClaim:
				next.ServeHTTP(w, r)
			case errors.Is(err, sql.ErrNoRows):
				http.Error(w, "forbidden", http.StatusForbidden)
			default:
				http.Error(w, "role lookup failed", http.StatusInternalServerError)
			}
		})
	}
}
