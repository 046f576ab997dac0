package quiz

import (
	"context"
	"fmt"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// Access is how much of a student's results a viewer may see.
type Access int

const (
	AccessNone Access = iota
	AccessSummaryOnly
	AccessFull
)

func (a Access) String() string {
	switch a {
	case AccessFull:
		return "FULL"
	case AccessSummaryOnly:
		return "SUMMARY_ONLY"
	default:
		return "NONE"
	}
}

type Policy struct {
	Groups       GroupDirectory
	Associations AssociationDirectory
}

// CanView decides what viewer may see of studentID's results under a.
func (p Policy) CanView(ctx context.Context, viewer Principal, studentID string, a Assignment) (Access, error) {
	s, err := p.scope(ctx, viewer, a)
	if err != nil {
		return AccessNone, err
	}
	return s.access(ctx, studentID)
}

// viewScope caches the per-assignment lookups so that listing a whole group
// runs the exact same decision as a single-student read.
type viewScope struct {
	policy  Policy
	viewer  Principal
	manager bool
	members map[string]struct{}
}

func (p Policy) scope(ctx context.Context, viewer Principal, a Assignment) (*viewScope, error) {
	s := &viewScope{policy: p, viewer: viewer}
	if viewer.Role == rbac.RoleAdmin || viewer.ID == "" {
		return s, nil
	}
	ok, err := p.Groups.IsManagerOf(ctx, viewer.ID, a.GroupID)
	if err != nil {
		return nil, fmt.Errorf("group %s managers: %w", a.GroupID, err)
	}
	s.manager = ok
	if !ok {
		return s, nil
	}
	members, err := p.Groups.MembersOf(ctx, a.GroupID)
	if err != nil {
		return nil, fmt.Errorf("group %s members: %w", a.GroupID, err)
	}
	s.members = make(map[string]struct{}, len(members))
	for _, m := range members {
		s.members[m] = struct{}{}
	}
	return s, nil
}

func (s *viewScope) access(ctx context.Context, studentID string) (Access, error) {
	if s.viewer.ID != "" && s.viewer.ID == studentID {
		return AccessFull, nil
	}
	if s.viewer.Role == rbac.RoleAdmin {
		return AccessFull, nil
	}
	if !s.manager {
		return AccessNone, nil
	}
	if _, ok := s.members[studentID]; !ok {
		return AccessNone, nil
	}
	ok, err := s.policy.Associations.HasConsent(ctx, studentID, s.viewer.ID)
	if err != nil {
		return AccessNone, fmt.Errorf("consent %s -> %s: %w", studentID, s.viewer.ID, err)
	}
	if !ok {
		return AccessSummaryOnly, nil
	}
	return AccessFull, nil
}

// redact applies an access decision to one student's feedback. The boolean
// is false when the student must be left out of the view entirely.
func redact(access Access, user UserSummary, fb *Feedback) (UserFeedback, bool) {
	switch access {
	case AccessFull:
		user.AuthorisedFullAccess = true
		return UserFeedback{User: user, Feedback: fb}, true
	case AccessSummaryOnly:
		user.AuthorisedFullAccess = false
		return UserFeedback{User: user}, true
	default:
		return UserFeedback{}, false
	}
}
