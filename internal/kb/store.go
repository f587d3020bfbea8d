package kb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/landmarktitle/tessa/internal/db"
)

// ErrNotFound is returned when no entry matches the lookup.
var ErrNotFound = errors.New("entry not found")

// Store provides taxonomy and entry persistence.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// ListTopics returns topics and subtopics, optionally restricted to one
// workspace, both ordered by name.
func (s *Store) ListTopics(ctx context.Context, workspaceID string) ([]Topic, []Subtopic, error) {
	topicsQuery := "SELECT id, workspace_id, name, created_at FROM topics"
	subtopicsQuery := "SELECT s.id, s.topic_id, s.name, s.created_at FROM subtopics s"
	var args []any
	if workspaceID != "" {
		topicsQuery += " WHERE workspace_id = ?"
		subtopicsQuery += " JOIN topics t ON s.topic_id = t.id WHERE t.workspace_id = ?"
		args = append(args, workspaceID)
	}
	topicsQuery += " ORDER BY name"
	subtopicsQuery += " ORDER BY s.name"

	rows, err := s.db.QueryContext(ctx, topicsQuery, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("querying topics: %w", err)
	}
	defer rows.Close()

	var topics []Topic
	for rows.Next() {
		var (
			t  Topic
			ts string
		)
		if err := rows.Scan(&t.ID, &t.WorkspaceID, &t.Name, &ts); err != nil {
			return nil, nil, fmt.Errorf("scanning topic: %w", err)
		}
		t.CreatedAt = parseTime(ts)
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	subRows, err := s.db.QueryContext(ctx, subtopicsQuery, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("querying subtopics: %w", err)
	}
	defer subRows.Close()

	var subtopics []Subtopic
	for subRows.Next() {
		var (
			st Subtopic
			ts string
		)
		if err := subRows.Scan(&st.ID, &st.TopicID, &st.Name, &ts); err != nil {
			return nil, nil, fmt.Errorf("scanning subtopic: %w", err)
		}
		st.CreatedAt = parseTime(ts)
		subtopics = append(subtopics, st)
	}
	return topics, subtopics, subRows.Err()
}

// GetOrCreateTopic returns the topic with the given name in the
// workspace, creating it when absent. The second return reports whether
// a row was created.
func (s *Store) GetOrCreateTopic(ctx context.Context, workspaceID, name string) (Topic, bool, error) {
	var (
		t  Topic
		ts string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, workspace_id, name, created_at FROM topics WHERE workspace_id = ? AND name = ?",
		workspaceID, name).Scan(&t.ID, &t.WorkspaceID, &t.Name, &ts)
	if err == nil {
		t.CreatedAt = parseTime(ts)
		return t, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Topic{}, false, fmt.Errorf("querying topic: %w", err)
	}

	t = Topic{ID: uuid.NewString(), WorkspaceID: workspaceID, Name: name, CreatedAt: time.Now().UTC()}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO topics (id, workspace_id, name, created_at) VALUES (?, ?, ?, ?)",
		t.ID, t.WorkspaceID, t.Name, t.CreatedAt.Format(time.DateTime))
	if err != nil {
		return Topic{}, false, fmt.Errorf("inserting topic: %w", err)
	}
	return t, true, nil
}

// GetOrCreateSubtopic returns the subtopic with the given name under
// the topic, creating it when absent.
func (s *Store) GetOrCreateSubtopic(ctx context.Context, topicID, name string) (Subtopic, bool, error) {
	var (
		st Subtopic
		ts string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, topic_id, name, created_at FROM subtopics WHERE topic_id = ? AND name = ?",
		topicID, name).Scan(&st.ID, &st.TopicID, &st.Name, &ts)
	if err == nil {
		st.CreatedAt = parseTime(ts)
		return st, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Subtopic{}, false, fmt.Errorf("querying subtopic: %w", err)
	}

	st = Subtopic{ID: uuid.NewString(), TopicID: topicID, Name: name, CreatedAt: time.Now().UTC()}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO subtopics (id, topic_id, name, created_at) VALUES (?, ?, ?, ?)",
		st.ID, st.TopicID, st.Name, st.CreatedAt.Format(time.DateTime))
	if err != nil {
		return Subtopic{}, false, fmt.Errorf("inserting subtopic: %w", err)
	}
	return st, true, nil
}

const selectEntry = `
	SELECT e.id, e.topic_id, e.subtopic_id, e.scenario, e.required_documents,
		e.decision_steps, e.risk_level, e.exception_language, e.source_reference,
		e.owner, e.last_reviewed, e.created_at, e.updated_at,
		t.name, s.name
	FROM entries e
	JOIN topics t ON e.topic_id = t.id
	JOIN subtopics s ON e.subtopic_id = s.id`

// EntryFilter narrows the entry list. "All" values mean no restriction.
type EntryFilter struct {
	Topic     string // topic name
	RiskLevel string
	Search    string // substring match on scenario or subtopic name
}

// ListEntries returns entries matching the filter, newest first.
func (s *Store) ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Topic != "" && filter.Topic != "All" {
		clauses = append(clauses, "t.name = ?")
		args = append(args, filter.Topic)
	}
	if filter.RiskLevel != "" && filter.RiskLevel != "All" {
		clauses = append(clauses, "e.risk_level = ?")
		args = append(args, filter.RiskLevel)
	}
	if filter.Search != "" {
		clauses = append(clauses, "(e.scenario LIKE ? COLLATE NOCASE OR s.name LIKE ? COLLATE NOCASE)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}

	query := selectEntry
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY e.created_at DESC, e.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetEntry returns the entry with the given id.
func (s *Store) GetEntry(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, selectEntry+" WHERE e.id = ?", id)
	entry, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return entry, err
}

// InsertEntry writes a new entry row. An empty ID is replaced with a
// UUID and an empty risk level defaults to Medium.
func (s *Store) InsertEntry(ctx context.Context, entry Entry) (Entry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.RiskLevel == "" {
		entry.RiskLevel = "Medium"
	}
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (
			id, topic_id, subtopic_id, scenario, required_documents, decision_steps,
			risk_level, exception_language, source_reference, owner, last_reviewed,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.TopicID, entry.SubtopicID, entry.Scenario, entry.RequiredDocuments,
		entry.DecisionSteps, entry.RiskLevel, entry.ExceptionLanguage, entry.SourceReference,
		entry.Owner, entry.LastReviewed,
		now.Format(time.DateTime), now.Format(time.DateTime))
	if err != nil {
		return Entry{}, fmt.Errorf("inserting entry: %w", err)
	}
	return s.GetEntry(ctx, entry.ID)
}

// EntryUpdate carries the editable fields of an entry.
type EntryUpdate struct {
	Scenario          string `json:"scenario"`
	RequiredDocuments string `json:"required_documents"`
	DecisionSteps     string `json:"decision_steps"`
	RiskLevel         string `json:"risk_level"`
	ExceptionLanguage string `json:"exception_language"`
}

// UpdateEntry rewrites the editable fields and bumps updated_at.
func (s *Store) UpdateEntry(ctx context.Context, id string, update EntryUpdate) (Entry, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE entries SET scenario = ?, required_documents = ?, decision_steps = ?,
			risk_level = ?, exception_language = ?, updated_at = ?
		WHERE id = ?`,
		update.Scenario, update.RequiredDocuments, update.DecisionSteps,
		update.RiskLevel, update.ExceptionLanguage,
		time.Now().UTC().Format(time.DateTime), id)
	if err != nil {
		return Entry{}, fmt.Errorf("updating entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Entry{}, ErrNotFound
	}
	return s.GetEntry(ctx, id)
}

// DeleteEntry removes the entry row.
func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEntry(scan func(...any) error) (Entry, error) {
	var (
		e                    Entry
		createdAt, updatedAt string
	)
	err := scan(&e.ID, &e.TopicID, &e.SubtopicID, &e.Scenario, &e.RequiredDocuments,
		&e.DecisionSteps, &e.RiskLevel, &e.ExceptionLanguage, &e.SourceReference,
		&e.Owner, &e.LastReviewed, &createdAt, &updatedAt,
		&e.TopicName, &e.SubtopicName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scanning entry: %w", err)
	}
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return e, nil
}

func parseTime(ts string) time.Time {
	t, _ := time.Parse(time.DateTime, ts)
	return t
}
