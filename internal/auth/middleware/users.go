package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

var (
	ErrBadCredentials = errors.New("invalid credentials")
	ErrUsernameTaken  = errors.New("username already taken")
)

type User struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Role       rbac.Role `json:"role"`
	GivenName  string    `json:"given_name"`
	FamilyName string    `json:"family_name"`
}

// Users is the local account table used for password login.
type Users struct{ db *sql.DB }

func NewUsers(db *sql.DB) *Users { return &Users{db: db} }

// CreateUser stores u with a bcrypt hash of password. An empty u.ID gets a
// fresh UUID.
func (s *Users) CreateUser(ctx context.Context, u User, password string) (User, error) {
	u.Username = strings.TrimSpace(u.Username)
	if u.Username == "" || password == "" {
		return User{}, fmt.Errorf("username and password required")
	}
	if !u.Role.Valid() {
		return User{}, fmt.Errorf("invalid role %d", int(u.Role))
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO users (id,username,password_hash,role,given_name,family_name,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Username, string(hash), u.Role.String(), u.GivenName, u.FamilyName, time.Now().UnixMilli())
	if db.IsUniqueViolation(err) {
		return User{}, ErrUsernameTaken
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// Authenticate returns the user when password matches, ErrBadCredentials
// otherwise. Unknown usernames and wrong passwords are indistinguishable.
func (s *Users) Authenticate(ctx context.Context, username, password string) (User, error) {
	var u User
	var hash, role string
	err := s.db.QueryRowContext(ctx, `SELECT id,username,password_hash,role,given_name,family_name
		FROM users WHERE username=$1`, strings.TrimSpace(username)).
		Scan(&u.ID, &u.Username, &hash, &role, &u.GivenName, &u.FamilyName)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrBadCredentials
	}
	if err != nil {
		return User{}, err
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrBadCredentials
	}
	if u.Role, err = rbac.ParseRole(role); err != nil {
		return User{}, fmt.Errorf("user %s: %w", u.ID, err)
	}
	return u, nil
}

// Get loads a user by id; sql.ErrNoRows when absent.
func (s *Users) Get(ctx context.Context, id string) (User, error) {
	var u User
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT id,username,role,given_name,family_name FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Username, &role, &u.GivenName, &u.FamilyName)
	if err != nil {
		return User{}, err
	}
	if u.Role, err = rbac.ParseRole(role); err != nil {
		return User{}, fmt.Errorf("user %s: %w", u.ID, err)
	}
	return u, nil
}
