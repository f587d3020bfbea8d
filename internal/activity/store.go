package activity

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/landmarktitle/tessa/internal/db"
)

// Store provides append and query operations for the activity log.
type Store struct {
	db  *db.DB
	hub *Hub // optional; broadcasts new entries to websocket subscribers
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// SetHub attaches a broadcast hub; subsequent Log calls publish to it.
func (s *Store) SetHub(h *Hub) {
	s.hub = h
}

// Log inserts a new activity entry. If entry.ID is empty a UUID is
// generated; if CreatedAt is zero the current time is used.
func (s *Store) Log(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.UserName == "" {
		entry.UserName = "System"
	}

	var entityID, workspaceID sql.NullString
	if entry.EntityID != "" {
		entityID = sql.NullString{String: entry.EntityID, Valid: true}
	}
	if entry.WorkspaceID != "" {
		workspaceID = sql.NullString{String: entry.WorkspaceID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, action, entity_type, entity_id, details, user_name, workspace_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Action,
		entry.EntityType,
		entityID,
		entry.Details,
		entry.UserName,
		workspaceID,
		entry.CreatedAt.UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("inserting activity entry: %w", err)
	}

	if s.hub != nil {
		s.hub.Broadcast(entry)
	}
	return nil
}

// filterGroups maps the UI's named activity filters to action kinds.
var filterGroups = map[string][]string{
	"Uploads":   {"document_uploaded"},
	"Edits":     {"entry_updated", "sop_updated"},
	"Deletions": {"entry_deleted", "sop_deleted"},
	"Created":   {"entry_created", "topic_added", "subtopic_added", "sop_created"},
}

// QueryFilter controls which activity entries are returned by Query.
type QueryFilter struct {
	Filter      string // named group: Uploads, Edits, Deletions, Created
	Action      string // exact action kind
	WorkspaceID string
	Limit       int
}

// Query returns activity entries matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	var (
		clauses []string
		args    []any
	)

	if actions, ok := filterGroups[filter.Filter]; ok {
		placeholders := make([]string, len(actions))
		for i, a := range actions {
			placeholders[i] = "?"
			args = append(args, a)
		}
		clauses = append(clauses, "action IN ("+strings.Join(placeholders, ",")+")")
	}
	if filter.Action != "" {
		clauses = append(clauses, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.WorkspaceID != "" {
		clauses = append(clauses, "workspace_id = ?")
		args = append(args, filter.WorkspaceID)
	}

	query := "SELECT id, action, entity_type, entity_id, details, user_name, workspace_id, created_at FROM activity_log"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activity log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                     Entry
			ts                    string
			entityID, workspaceID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.EntityType, &entityID, &e.Details, &e.UserName, &workspaceID, &ts); err != nil {
			return nil, fmt.Errorf("scanning activity entry: %w", err)
		}
		e.EntityID = entityID.String
		e.WorkspaceID = workspaceID.String
		if t, parseErr := time.Parse(time.DateTime, ts); parseErr == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
