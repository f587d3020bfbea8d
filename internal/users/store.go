// Package users implements admin account management: listing, creating,
// updating, and deleting user accounts.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/landmarktitle/tessa/internal/auth"
	"github.com/landmarktitle/tessa/internal/db"
)

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrEmailExists is returned when the email address is already taken.
	ErrEmailExists = errors.New("email already exists")
)

// User is an account row. The password hash is never serialized.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	Department   string    `json:"department,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store provides user account persistence.
type Store struct {
	db         *db.DB
	bcryptCost int
}

// NewStore creates a Store. bcryptCost of zero uses the bcrypt default.
func NewStore(database *db.DB, bcryptCost int) *Store {
	return &Store{db: database, bcryptCost: bcryptCost}
}

const userColumns = "id, email, password_hash, name, role, department, created_at, updated_at"

// List returns all users ordered by name.
func (s *Store) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Get returns the user with the given id.
func (s *Store) Get(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	u, err := scanUser(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// CreateParams holds the fields accepted when creating an account.
type CreateParams struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	Department string `json:"department"`
}

// Create inserts a new account. The password is hashed here; an empty
// role defaults to viewer.
func (s *Store) Create(ctx context.Context, params CreateParams) (User, error) {
	var existing string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM users WHERE email = ?", params.Email).Scan(&existing)
	if err == nil {
		return User{}, ErrEmailExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("checking email: %w", err)
	}

	hash, err := auth.HashPassword(params.Password, s.bcryptCost)
	if err != nil {
		return User{}, err
	}

	role := params.Role
	if role == "" {
		role = "viewer"
	}

	now := time.Now().UTC()
	u := User{
		ID:           uuid.NewString(),
		Email:        params.Email,
		Name:         params.Name,
		Role:         role,
		Department:   params.Department,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, name, role, department, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Role, nullable(u.Department),
		now.Format(time.DateTime), now.Format(time.DateTime))
	if err != nil {
		return User{}, fmt.Errorf("inserting user: %w", err)
	}
	return u, nil
}

// UpdateParams holds the fields accepted when updating an account. A
// non-empty Password replaces the stored hash.
type UpdateParams struct {
	Name       string `json:"name"`
	Role       string `json:"role"`
	Department string `json:"department"`
	Password   string `json:"password"`
}

// Update rewrites name, role, and department, and optionally the
// password. Returns the updated row.
func (s *Store) Update(ctx context.Context, id string, params UpdateParams) (User, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return User{}, err
	}

	now := time.Now().UTC().Format(time.DateTime)
	if params.Password != "" {
		hash, err := auth.HashPassword(params.Password, s.bcryptCost)
		if err != nil {
			return User{}, err
		}
		_, err = s.db.ExecContext(ctx,
			"UPDATE users SET name = ?, role = ?, department = ?, password_hash = ?, updated_at = ? WHERE id = ?",
			params.Name, params.Role, nullable(params.Department), hash, now, id)
		if err != nil {
			return User{}, fmt.Errorf("updating user: %w", err)
		}
	} else {
		_, err := s.db.ExecContext(ctx,
			"UPDATE users SET name = ?, role = ?, department = ?, updated_at = ? WHERE id = ?",
			params.Name, params.Role, nullable(params.Department), now, id)
		if err != nil {
			return User{}, fmt.Errorf("updating user: %w", err)
		}
	}
	return s.Get(ctx, id)
}

// Delete removes the account row. Callers run the referential guard
// first.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// OwnedSOPCount returns how many SOPs the user owns.
func (s *Store) OwnedSOPCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sops WHERE owner_id = ?", userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting owned SOPs: %w", err)
	}
	return count, nil
}

func scanUser(scan func(...any) error) (User, error) {
	var (
		u          User
		department sql.NullString
		createdAt  string
		updatedAt  string
	)
	err := scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &department, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
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

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
