package rbac

import (
	"fmt"
	"strings"
)

// Role is totally ordered: a role satisfies every check a lower role does.
type Role int

const (
	RoleStudent Role = iota
	RoleTutor
	RoleTeacher
	RoleEventManager
	RoleEditor
	RoleAdmin
)

var roleNames = [...]string{
	RoleStudent:      "STUDENT",
	RoleTutor:        "TUTOR",
	RoleTeacher:      "TEACHER",
	RoleEventManager: "EVENT_MANAGER",
	RoleEditor:       "EDITOR",
	RoleAdmin:        "ADMIN",
}

func (r Role) String() string {
	if r < RoleStudent || r > RoleAdmin {
		return fmt.Sprintf("Role(%d)", int(r))
	}
	return roleNames[r]
}

// AtLeast reports whether r is min or above in the hierarchy.
func (r Role) AtLeast(min Role) bool { return r >= min }

func (r Role) Valid() bool { return r >= RoleStudent && r <= RoleAdmin }

// ParseRole accepts the canonical upper-case names as well as lower-case
// spellings used in tokens ("teacher", "event_manager").
func ParseRole(s string) (Role, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range roleNames {
		if n == up {
			return Role(i), nil
		}
	}
	return RoleStudent, fmt.Errorf("unknown role %q", s)
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
