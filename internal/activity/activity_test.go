package activity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/landmarktitle/tessa/internal/db"
	"github.com/landmarktitle/tessa/internal/policy"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func TestLogAndQuery(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	entry := Entry{
		Action:      "sop_created",
		EntityType:  "sop",
		EntityID:    "sop-1",
		Details:     "Created SOP: Wire Transfer Verification",
		UserName:    "Dana Head",
		WorkspaceID: "ws-ops",
	}
	if err := store.Log(ctx, entry); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := store.Query(ctx, QueryFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if got.ID == "" {
		t.Error("expected generated ID, got empty string")
	}
	if got.Action != "sop_created" || got.EntityID != "sop-1" || got.UserName != "Dana Head" {
		t.Errorf("entry = %+v", got)
	}
}

func TestLogDefaultsUserToSystem(t *testing.T) {
	store := setupStore(t)

	if err := store.Log(context.Background(), Entry{Action: "document_uploaded"}); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := store.Query(context.Background(), QueryFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if entries[0].UserName != "System" {
		t.Errorf("UserName = %q, want System", entries[0].UserName)
	}
}

func TestQueryNamedFilters(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for _, action := range []string{"document_uploaded", "entry_updated", "entry_deleted", "entry_created", "topic_added", "sop_approved"} {
		if err := store.Log(ctx, Entry{Action: action}); err != nil {
			t.Fatalf("Log %s: %v", action, err)
		}
	}

	cases := []struct {
		filter string
		want   int
	}{
		{"Uploads", 1},
		{"Edits", 1},
		{"Deletions", 1},
		{"Created", 2},
		{"All Activity", 6}, // unknown filter names return everything
	}
	for _, tc := range cases {
		entries, err := store.Query(ctx, QueryFilter{Filter: tc.filter})
		if err != nil {
			t.Fatalf("Query %s: %v", tc.filter, err)
		}
		if len(entries) != tc.want {
			t.Errorf("filter %s: got %d entries, want %d", tc.filter, len(entries), tc.want)
		}
	}
}

func TestQueryLimit(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := store.Log(ctx, Entry{Action: "entry_created"}); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	entries, err := store.Query(ctx, QueryFilter{Limit: 2})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries with limit, got %d", len(entries))
	}
}

func TestFromEvent(t *testing.T) {
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	ev := policy.Event{
		Kind:        policy.EventSOPSubmitted,
		EntityType:  "sop",
		EntityID:    "sop-7",
		Details:     "Submitted SOP for approval: Payoff Processing",
		UserName:    "Dana Head",
		WorkspaceID: "ws-ops",
		At:          at,
	}

	entry := FromEvent(ev)
	if entry.Action != "sop_submitted" {
		t.Errorf("Action = %q, want sop_submitted", entry.Action)
	}
	if entry.EntityID != "sop-7" || entry.WorkspaceID != "ws-ops" || !entry.CreatedAt.Equal(at) {
		t.Errorf("entry = %+v", entry)
	}
}

func TestHTTPQuery(t *testing.T) {
	store := setupStore(t)
	r := chi.NewRouter()
	RegisterRoutes(r, store, nil)

	if err := store.Log(context.Background(), Entry{Action: "entry_created", UserName: "alice"}); err != nil {
		t.Fatalf("Log: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/activity?filter=Created", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body struct {
		Activities []Entry `json:"activities"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Activities) != 1 || body.Activities[0].UserName != "alice" {
		t.Errorf("activities = %+v", body.Activities)
	}
}

func TestHTTPLogRejectsMissingAction(t *testing.T) {
	store := setupStore(t)
	r := chi.NewRouter()
	RegisterRoutes(r, store, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/activity", strings.NewReader(`{"details":"no action"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
