package groups

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// Directory answers group, consent and user-summary questions from the
// user_groups, group_memberships, group_additional_managers,
// user_associations and users tables.
type Directory struct {
	db *sql.DB
}

func NewDirectory(db *sql.DB) *Directory { return &Directory{db: db} }

var (
	_ quiz.GroupDirectory       = (*Directory)(nil)
	_ quiz.AssociationDirectory = (*Directory)(nil)
	_ quiz.UserDirectory        = (*Directory)(nil)
)

func (d *Directory) GetGroup(ctx context.Context, groupID string) (quiz.Group, error) {
	var g quiz.Group
	var privileges int
	err := d.db.QueryRowContext(ctx, `SELECT id,name,owner_id,additional_manager_privileges FROM user_groups WHERE id=$1`, groupID).
		Scan(&g.ID, &g.Name, &g.OwnerID, &privileges)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return quiz.Group{}, quiz.ErrNotFound
		}
		return quiz.Group{}, err
	}
	g.AdditionalManagerPrivileges = privileges == 1
	g.AdditionalManagers, err = d.column(ctx, `SELECT user_id FROM group_additional_managers WHERE group_id=$1 ORDER BY user_id`, groupID)
	if err != nil {
		return quiz.Group{}, err
	}
	return g, nil
}

// IsManagerOf follows quiz.Group.CanManage; unknown groups have no managers.
func (d *Directory) IsManagerOf(ctx context.Context, userID, groupID string) (bool, error) {
	g, err := d.GetGroup(ctx, groupID)
	if errors.Is(err, quiz.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return g.CanManage(userID), nil
}

func (d *Directory) MembersOf(ctx context.Context, groupID string) ([]string, error) {
	return d.column(ctx, `SELECT user_id FROM group_memberships WHERE group_id=$1 ORDER BY user_id`, groupID)
}

func (d *Directory) GroupsOf(ctx context.Context, userID string) ([]string, error) {
	return d.column(ctx, `SELECT group_id FROM group_memberships WHERE user_id=$1 ORDER BY group_id`, userID)
}

func (d *Directory) GroupsManagedBy(ctx context.Context, userID string) ([]string, error) {
	return d.column(ctx, `
		SELECT id FROM user_groups WHERE owner_id=$1
		UNION
		SELECT g.id FROM user_groups g
		JOIN group_additional_managers m ON m.group_id = g.id
		WHERE m.user_id=$2 AND g.additional_manager_privileges = 1
		ORDER BY 1`, userID, userID)
}

func (d *Directory) HasConsent(ctx context.Context, studentID, teacherID string) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx, `SELECT 1 FROM user_associations
		WHERE owner_user_id=$1 AND user_id_receiving_permission=$2`, studentID, teacherID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (d *Directory) Summary(ctx context.Context, userID string) (quiz.UserSummary, error) {
	u := quiz.UserSummary{ID: userID}
	err := d.db.QueryRowContext(ctx, `SELECT given_name,family_name FROM users WHERE id=$1`, userID).
		Scan(&u.GivenName, &u.FamilyName)
	if errors.Is(err, sql.ErrNoRows) {
		return quiz.UserSummary{}, quiz.ErrNotFound
	}
	return u, err
}

func (d *Directory) column(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

/* ---------- writes ---------- */

// CreateGroup inserts g with its additional managers. An empty ID gets a UUID.
func (d *Directory) CreateGroup(ctx context.Context, g quiz.Group) (quiz.Group, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	privileges := 0
	if g.AdditionalManagerPrivileges {
		privileges = 1
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return quiz.Group{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO user_groups (id,name,owner_id,additional_manager_privileges,created_at)
		VALUES ($1,$2,$3,$4,$5)`, g.ID, g.Name, g.OwnerID, privileges, time.Now().UnixMilli()); err != nil {
		return quiz.Group{}, err
	}
	for _, m := range g.AdditionalManagers {
		if _, err := tx.ExecContext(ctx, `INSERT INTO group_additional_managers (group_id,user_id) VALUES ($1,$2)
			ON CONFLICT DO NOTHING`, g.ID, m); err != nil {
			return quiz.Group{}, err
		}
	}
	return g, tx.Commit()
}

func (d *Directory) SetManagerPrivileges(ctx context.Context, groupID string, on bool) error {
	v := 0
	if on {
		v = 1
	}
	res, err := d.db.ExecContext(ctx, `UPDATE user_groups SET additional_manager_privileges=$1 WHERE id=$2`, v, groupID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return quiz.ErrNotFound
	}
	return nil
}

func (d *Directory) AddMember(ctx context.Context, groupID, userID string) error {
	_, err := d.db.ExecContext(ctx, `INSERT INTO group_memberships (group_id,user_id) VALUES ($1,$2)
		ON CONFLICT DO NOTHING`, groupID, userID)
	return err
}

func (d *Directory) RemoveMember(ctx context.Context, groupID, userID string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM group_memberships WHERE group_id=$1 AND user_id=$2`, groupID, userID)
	return err
}

// GrantConsent lets teacherID see studentID's results in full.
func (d *Directory) GrantConsent(ctx context.Context, studentID, teacherID string) error {
	_, err := d.db.ExecContext(ctx, `INSERT INTO user_associations (owner_user_id,user_id_receiving_permission,created_at)
		VALUES ($1,$2,$3) ON CONFLICT DO NOTHING`, studentID, teacherID, time.Now().UnixMilli())
	return err
}

func (d *Directory) RevokeConsent(ctx context.Context, studentID, teacherID string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM user_associations
		WHERE owner_user_id=$1 AND user_id_receiving_permission=$2`, studentID, teacherID)
	return err
}
