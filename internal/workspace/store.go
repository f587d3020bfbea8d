package workspace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/landmarktitle/tessa/internal/db"
)

var (
	// ErrNotFound is returned when a workspace or department does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDepartmentExists is returned when a department name is already
	// taken within the workspace.
	ErrDepartmentExists = errors.New("department already exists")
)

// Store provides workspace and department persistence.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// ListWorkspaces returns all workspaces with their departments nested,
// both ordered by name.
func (s *Store) ListWorkspaces(ctx context.Context) ([]Workspace, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, slug, created_at FROM workspaces ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying workspaces: %w", err)
	}
	defer rows.Close()

	var workspaces []Workspace
	for rows.Next() {
		var (
			w  Workspace
			ts string
		)
		if err := rows.Scan(&w.ID, &w.Name, &w.Slug, &ts); err != nil {
			return nil, fmt.Errorf("scanning workspace: %w", err)
		}
		w.CreatedAt = parseTime(ts)
		w.Departments = []Department{}
		workspaces = append(workspaces, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	departments, err := s.ListDepartments(ctx, "")
	if err != nil {
		return nil, err
	}
	byWorkspace := make(map[string][]Department)
	for _, d := range departments {
		byWorkspace[d.WorkspaceID] = append(byWorkspace[d.WorkspaceID], d)
	}
	for i := range workspaces {
		if ds, ok := byWorkspace[workspaces[i].ID]; ok {
			workspaces[i].Departments = ds
		}
	}
	return workspaces, nil
}

// GetWorkspaceBySlug returns the workspace with the given slug.
func (s *Store) GetWorkspaceBySlug(ctx context.Context, slug string) (Workspace, error) {
	var (
		w  Workspace
		ts string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, slug, created_at FROM workspaces WHERE slug = ?", slug).
		Scan(&w.ID, &w.Name, &w.Slug, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Workspace{}, ErrNotFound
	}
	if err != nil {
		return Workspace{}, fmt.Errorf("scanning workspace: %w", err)
	}
	w.CreatedAt = parseTime(ts)
	return w, nil
}

// EnsureWorkspace creates the workspace if no row with its slug exists
// yet, returning the stored row either way. Used by seeding.
func (s *Store) EnsureWorkspace(ctx context.Context, name, slug string) (Workspace, error) {
	existing, err := s.GetWorkspaceBySlug(ctx, slug)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Workspace{}, err
	}

	w := Workspace{
		ID:        uuid.NewString(),
		Name:      name,
		Slug:      slug,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO workspaces (id, name, slug, created_at) VALUES (?, ?, ?, ?)",
		w.ID, w.Name, w.Slug, w.CreatedAt.Format(time.DateTime))
	if err != nil {
		return Workspace{}, fmt.Errorf("inserting workspace: %w", err)
	}
	w.Departments = []Department{}
	return w, nil
}

// ListDepartments returns departments ordered by name, optionally
// restricted to one workspace.
func (s *Store) ListDepartments(ctx context.Context, workspaceID string) ([]Department, error) {
	query := "SELECT id, workspace_id, name, created_at FROM departments"
	var args []any
	if workspaceID != "" {
		query += " WHERE workspace_id = ?"
		args = append(args, workspaceID)
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying departments: %w", err)
	}
	defer rows.Close()

	var departments []Department
	for rows.Next() {
		var (
			d  Department
			ts string
		)
		if err := rows.Scan(&d.ID, &d.WorkspaceID, &d.Name, &ts); err != nil {
			return nil, fmt.Errorf("scanning department: %w", err)
		}
		d.CreatedAt = parseTime(ts)
		departments = append(departments, d)
	}
	return departments, rows.Err()
}

// GetDepartment returns the department with the given id.
func (s *Store) GetDepartment(ctx context.Context, id string) (Department, error) {
	var (
		d  Department
		ts string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, workspace_id, name, created_at FROM departments WHERE id = ?", id).
		Scan(&d.ID, &d.WorkspaceID, &d.Name, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Department{}, ErrNotFound
	}
	if err != nil {
		return Department{}, fmt.Errorf("scanning department: %w", err)
	}
	d.CreatedAt = parseTime(ts)
	return d, nil
}

// CreateDepartment inserts a department. Name comparison against
// existing rows is case-insensitive.
func (s *Store) CreateDepartment(ctx context.Context, workspaceID, name string) (Department, error) {
	var existing string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM departments WHERE workspace_id = ? AND name = ?", workspaceID, name).
		Scan(&existing)
	if err == nil {
		return Department{}, ErrDepartmentExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Department{}, fmt.Errorf("checking department name: %w", err)
	}

	d := Department{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Name:        name,
		CreatedAt:   time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO departments (id, workspace_id, name, created_at) VALUES (?, ?, ?, ?)",
		d.ID, d.WorkspaceID, d.Name, d.CreatedAt.Format(time.DateTime))
	if err != nil {
		return Department{}, fmt.Errorf("inserting department: %w", err)
	}
	return d, nil
}

// DeleteDepartment removes the department row. Callers run the
// referential guard first.
func (s *Store) DeleteDepartment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM departments WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting department: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SOPCount returns how many SOPs reference the department.
func (s *Store) SOPCount(ctx context.Context, departmentID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sops WHERE department_id = ?", departmentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting SOPs: %w", err)
	}
	return count, nil
}

func parseTime(ts string) time.Time {
	t, _ := time.Parse(time.DateTime, ts)
	return t
}
