package sop

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/landmarktitle/tessa/internal/db"
	"github.com/landmarktitle/tessa/internal/policy"
)

// ErrNotFound is returned when no SOP matches the lookup.
var ErrNotFound = errors.New("SOP not found")

// Store provides SOP persistence.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

const selectSOP = `
	SELECT s.id, s.workspace_id, s.department_id, s.title, s.purpose, s.scope,
		s.responsible_party, s.trigger_event, s.steps, s.exceptions, s.related_policies,
		s.effective_date, s.review_date, s.status, s.owner_id, s.approved_by, s.approved_at,
		s.created_at, s.updated_at,
		d.name, u.name, a.name
	FROM sops s
	LEFT JOIN departments d ON s.department_id = d.id
	LEFT JOIN users u ON s.owner_id = u.id
	LEFT JOIN users a ON s.approved_by = a.id`

// ListFilter narrows the SOP list. Zero values (and "all") mean no
// restriction on that dimension.
type ListFilter struct {
	WorkspaceID  string
	DepartmentID string
	Status       string
	Search       string // substring match on title, case-insensitive
}

// List returns SOPs matching the filter, most recently updated first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]SOP, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.WorkspaceID != "" {
		clauses = append(clauses, "s.workspace_id = ?")
		args = append(args, filter.WorkspaceID)
	}
	if filter.DepartmentID != "" && filter.DepartmentID != "all" {
		clauses = append(clauses, "s.department_id = ?")
		args = append(args, filter.DepartmentID)
	}
	if filter.Status != "" && filter.Status != "all" {
		clauses = append(clauses, "s.status = ?")
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		clauses = append(clauses, "s.title LIKE ? COLLATE NOCASE")
		args = append(args, "%"+filter.Search+"%")
	}

	query := selectSOP
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY s.updated_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying SOPs: %w", err)
	}
	defer rows.Close()

	var sops []SOP
	for rows.Next() {
		sop, err := scanSOP(rows.Scan)
		if err != nil {
			return nil, err
		}
		sops = append(sops, sop)
	}
	return sops, rows.Err()
}

// Get returns the SOP with the given id.
func (s *Store) Get(ctx context.Context, id string) (SOP, error) {
	row := s.db.QueryRowContext(ctx, selectSOP+" WHERE s.id = ?", id)
	sop, err := scanSOP(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return SOP{}, ErrNotFound
	}
	return sop, err
}

// Insert writes a new SOP row. An empty ID is replaced with a UUID.
func (s *Store) Insert(ctx context.Context, sop SOP) (SOP, error) {
	if sop.ID == "" {
		sop.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sop.CreatedAt = now
	if sop.UpdatedAt.IsZero() {
		sop.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sops (
			id, workspace_id, department_id, title, purpose, scope,
			responsible_party, trigger_event, steps, exceptions, related_policies,
			effective_date, review_date, status, owner_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sop.ID, sop.WorkspaceID, nullable(sop.DepartmentID), sop.Title, sop.Purpose, sop.Scope,
		sop.ResponsibleParty, sop.TriggerEvent, sop.Steps, sop.Exceptions, sop.RelatedPolicies,
		nullable(sop.EffectiveDate), nullable(sop.ReviewDate), sop.Status, sop.OwnerID,
		sop.CreatedAt.Format(time.DateTime), sop.UpdatedAt.Format(time.DateTime))
	if err != nil {
		return SOP{}, fmt.Errorf("inserting SOP: %w", err)
	}
	return s.Get(ctx, sop.ID)
}

// UpdateParams carries a partial content update. Nil fields keep their
// stored value.
type UpdateParams struct {
	Title            *string `json:"title"`
	Purpose          *string `json:"purpose"`
	Scope            *string `json:"scope"`
	ResponsibleParty *string `json:"responsible_party"`
	TriggerEvent     *string `json:"trigger_event"`
	Steps            *string `json:"steps"`
	Exceptions       *string `json:"exceptions"`
	RelatedPolicies  *string `json:"related_policies"`
	EffectiveDate    *string `json:"effective_date"`
	ReviewDate       *string `json:"review_date"`
	DepartmentID     *string `json:"department_id"`
}

// Update applies the partial content update and bumps updated_at.
func (s *Store) Update(ctx context.Context, id string, params UpdateParams) (SOP, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sops SET
			title = COALESCE(?, title),
			purpose = COALESCE(?, purpose),
			scope = COALESCE(?, scope),
			responsible_party = COALESCE(?, responsible_party),
			trigger_event = COALESCE(?, trigger_event),
			steps = COALESCE(?, steps),
			exceptions = COALESCE(?, exceptions),
			related_policies = COALESCE(?, related_policies),
			effective_date = COALESCE(?, effective_date),
			review_date = COALESCE(?, review_date),
			department_id = COALESCE(?, department_id),
			updated_at = ?
		WHERE id = ?`,
		fromPtr(params.Title), fromPtr(params.Purpose), fromPtr(params.Scope),
		fromPtr(params.ResponsibleParty), fromPtr(params.TriggerEvent), fromPtr(params.Steps),
		fromPtr(params.Exceptions), fromPtr(params.RelatedPolicies),
		fromPtr(params.EffectiveDate), fromPtr(params.ReviewDate), fromPtr(params.DepartmentID),
		time.Now().UTC().Format(time.DateTime), id)
	if err != nil {
		return SOP{}, fmt.Errorf("updating SOP: %w", err)
	}
	return s.Get(ctx, id)
}

// SaveSnapshot persists the governance fields produced by a lifecycle
// transition: status, owner, approval, and the update timestamp.
func (s *Store) SaveSnapshot(ctx context.Context, snap policy.SOP) error {
	var approvedAt sql.NullString
	if snap.ApprovedAt != nil {
		approvedAt = sql.NullString{String: snap.ApprovedAt.UTC().Format(time.DateTime), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE sops SET status = ?, owner_id = ?, approved_by = ?, approved_at = ?, updated_at = ?
		WHERE id = ?`,
		string(snap.Status), snap.OwnerID, nullable(snap.ApprovedBy), approvedAt,
		snap.UpdatedAt.UTC().Format(time.DateTime), snap.ID)
	if err != nil {
		return fmt.Errorf("saving SOP snapshot: %w", err)
	}
	return nil
}

// Delete removes the SOP row.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sops WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting SOP: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSOP(scan func(...any) error) (SOP, error) {
	var (
		s                                      SOP
		departmentID, effectiveDate            sql.NullString
		reviewDate, approvedBy, approvedAt     sql.NullString
		departmentName, ownerName, approverName sql.NullString
		createdAt, updatedAt                   string
	)
	err := scan(&s.ID, &s.WorkspaceID, &departmentID, &s.Title, &s.Purpose, &s.Scope,
		&s.ResponsibleParty, &s.TriggerEvent, &s.Steps, &s.Exceptions, &s.RelatedPolicies,
		&effectiveDate, &reviewDate, &s.Status, &s.OwnerID, &approvedBy, &approvedAt,
		&createdAt, &updatedAt,
		&departmentName, &ownerName, &approverName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SOP{}, err
		}
		return SOP{}, fmt.Errorf("scanning SOP: %w", err)
	}
	s.DepartmentID = departmentID.String
	s.EffectiveDate = effectiveDate.String
	s.ReviewDate = reviewDate.String
	s.ApprovedBy = approvedBy.String
	s.DepartmentName = departmentName.String
	s.OwnerName = ownerName.String
	s.ApprovedByName = approverName.String
	if approvedAt.Valid {
		if t, parseErr := time.Parse(time.DateTime, approvedAt.String); parseErr == nil {
			s.ApprovedAt = &t
		}
	}
	if t, parseErr := time.Parse(time.DateTime, createdAt); parseErr == nil {
		s.CreatedAt = t
	}
	if t, parseErr := time.Parse(time.DateTime, updatedAt); parseErr == nil {
		s.UpdatedAt = t
	}
	return s, nil
}

func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func fromPtr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}
