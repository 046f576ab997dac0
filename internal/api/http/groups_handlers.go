package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/groups"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

type createGroupReq struct {
	ID                          string   `json:"id"`
	Name                        string   `json:"name"`
	AdditionalManagers          []string `json:"additional_managers"`
	AdditionalManagerPrivileges bool     `json:"additional_manager_privileges"`
}

// POST /groups  (caller becomes the owner)
func CreateGroupHandler(dir *groups.Directory, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r, nil)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		var req createGroupReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "bad json")
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			badRequest(w, "name required")
			return
		}
		g, err := dir.CreateGroup(r.Context(), quiz.Group{
			ID:                          req.ID,
			Name:                        strings.TrimSpace(req.Name),
			OwnerID:                     p.ID,
			AdditionalManagers:          req.AdditionalManagers,
			AdditionalManagerPrivileges: req.AdditionalManagerPrivileges,
		})
		if db.IsUniqueViolation(err) {
			badRequest(w, "a group with that id already exists")
			return
		}
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusCreated, g)
	}
}

// managedGroup loads {id} and checks the caller may change its membership.
func managedGroup(r *http.Request, dir *groups.Directory) (quiz.Group, error) {
	p, err := principalFrom(r, nil)
	if err != nil {
		return quiz.Group{}, err
	}
	g, err := dir.GetGroup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return quiz.Group{}, err
	}
	if p.Role != rbac.RoleAdmin && !g.CanManage(p.ID) {
		return quiz.Group{}, quiz.ErrForbidden.WithMessage("You are not the owner or manager of that group.")
	}
	return g, nil
}

// POST /groups/{id}/members/{userId}
func AddGroupMemberHandler(dir *groups.Directory, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := managedGroup(r, dir)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		if err := dir.AddMember(r.Context(), g.ID, chi.URLParam(r, "userId")); err != nil {
			respondError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// DELETE /groups/{id}/members/{userId}
func RemoveGroupMemberHandler(dir *groups.Directory, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := managedGroup(r, dir)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		if err := dir.RemoveMember(r.Context(), g.ID, chi.URLParam(r, "userId")); err != nil {
			respondError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// PATCH /groups/{id}  {"additional_manager_privileges": true}
// Only the owner (or an admin) may hand management rights to others.
func SetGroupPrivilegesHandler(dir *groups.Directory, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r, nil)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		var req struct {
			AdditionalManagerPrivileges *bool `json:"additional_manager_privileges"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AdditionalManagerPrivileges == nil {
			badRequest(w, "additional_manager_privileges required")
			return
		}
		g, err := dir.GetGroup(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		if p.Role != rbac.RoleAdmin && g.OwnerID != p.ID {
			respondError(w, r, log, quiz.ErrForbidden.WithMessage("Only the group owner can change manager privileges."))
			return
		}
		if err := dir.SetManagerPrivileges(r.Context(), g.ID, *req.AdditionalManagerPrivileges); err != nil {
			respondError(w, r, log, err)
			return
		}
		g.AdditionalManagerPrivileges = *req.AdditionalManagerPrivileges
		respondJSON(w, http.StatusOK, g)
	}
}

// POST /consent/{teacherId}: the caller lets teacherId see their results.
func GrantConsentHandler(dir *groups.Directory, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r, nil)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		if err := dir.GrantConsent(r.Context(), p.ID, chi.URLParam(r, "teacherId")); err != nil {
			respondError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// DELETE /consent/{teacherId}
func RevokeConsentHandler(dir *groups.Directory, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r, nil)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		if err := dir.RevokeConsent(r.Context(), p.ID, chi.URLParam(r, "teacherId")); err != nil {
			respondError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
