package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/landmarktitle/tessa/internal/db"
)

// ErrUserNotFound is returned when no account matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// Store reads user accounts for login and token resolution. Account
// management (create, update, delete) lives in the users package.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

const userColumns = "id, email, password_hash, name, role, department, created_at, updated_at"

// GetByEmail returns the user with the given email address. Email
// comparison is case-insensitive.
func (s *Store) GetByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = ?", email)
	return scanUser(row)
}

// GetByID returns the user with the given id.
func (s *Store) GetByID(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (User, error) {
	var (
		u          User
		department sql.NullString
		createdAt  string
		updatedAt  string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &department, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("scanning user: %w", err)
	}
	u.Department = department.String
	if t, parseErr := time.Parse(time.DateTime, createdAt); parseErr == nil {
		u.CreatedAt = t
	}
	if t, parseErr := time.Parse(time.DateTime, updatedAt); parseErr == nil {
		u.UpdatedAt = t
	}
	return u, nil
}
