package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// Deps are the collaborators shared by every service in this package.
// Users and Events are optional.
type Deps struct {
	Store        Store
	Groups       GroupDirectory
	Associations AssociationDirectory
	Catalog      Catalog
	Validator    QuestionValidator
	Users        UserDirectory
	Events       EventSink
	Clock        Clock
	Logger       *slog.Logger
	// HostName, when set, puts a quiz link into assignment events.
	HostName string
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

func (d Deps) now() time.Time { return d.Clock.Now() }

func (d Deps) policy() Policy {
	return Policy{Groups: d.Groups, Associations: d.Associations}
}

// canManage: admins manage every group that exists, everyone else needs the
// directory's say-so for this group.
func (d Deps) canManage(ctx context.Context, p Principal, groupID string) (bool, error) {
	if p.ID == "" {
		return false, ErrNotLoggedIn
	}
	if p.Role == rbac.RoleAdmin {
		if _, err := d.Groups.GetGroup(ctx, groupID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return false, ErrNotFound.WithMessage("The group specified cannot be located.")
			}
			return false, fmt.Errorf("group %s: %w", groupID, err)
		}
		return true, nil
	}
	ok, err := d.Groups.IsManagerOf(ctx, p.ID, groupID)
	if err != nil {
		return false, fmt.Errorf("group %s managers: %w", groupID, err)
	}
	return ok, nil
}

func (d Deps) requireManage(ctx context.Context, p Principal, groupID, msg string) error {
	ok, err := d.canManage(ctx, p, groupID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden.WithMessage(msg)
	}
	return nil
}

func (d Deps) isMember(ctx context.Context, userID, groupID string) (bool, error) {
	members, err := d.Groups.MembersOf(ctx, groupID)
	if err != nil {
		return false, fmt.Errorf("group %s members: %w", groupID, err)
	}
	for _, m := range members {
		if m == userID {
			return true, nil
		}
	}
	return false, nil
}

// checkOpen applies guards (a) and (b) to an attempt's parent assignment.
func checkOpen(a Assignment, now time.Time) error {
	if a.Cancelled() {
		return ErrAssignmentCancelled
	}
	if IsExpired(a, now) {
		return ErrDueDatePassed
	}
	return nil
}

// parentOf loads the assignment behind an attempt; free attempts have none.
func (d Deps) parentOf(ctx context.Context, at Attempt) (*Assignment, error) {
	if at.Free() {
		return nil, nil
	}
	a, err := d.Store.GetAssignment(ctx, at.AssignmentID)
	if err != nil {
		return nil, fmt.Errorf("assignment %s: %w", at.AssignmentID, err)
	}
	return &a, nil
}

func (d Deps) summary(ctx context.Context, userID string) UserSummary {
	if d.Users == nil {
		return UserSummary{ID: userID}
	}
	s, err := d.Users.Summary(ctx, userID)
	if err != nil {
		d.Logger.Warn("user summary lookup failed", "user_id", userID, "error", err)
		return UserSummary{ID: userID}
	}
	s.ID = userID
	return s
}

func (d Deps) emit(ctx context.Context, e Event) {
	if d.Events == nil {
		return
	}
	if err := d.Events.Append(ctx, e); err != nil {
		d.Logger.Error("event log append failed", "type", e.Type, "key", e.Key, "error", err)
	}
}
