package workspace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/landmarktitle/tessa/internal/activity"
	"github.com/landmarktitle/tessa/internal/auth"
	"github.com/landmarktitle/tessa/internal/db"
	"github.com/landmarktitle/tessa/internal/policy"
)

func setupStore(t *testing.T) (*Store, *db.DB) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database), database
}

func setupRouter(t *testing.T, actor policy.Actor) (*chi.Mux, *Store, *activity.Store, *db.DB) {
	t.Helper()
	store, database := setupStore(t)
	log := activity.NewStore(database)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(auth.WithActor(req.Context(), actor)))
		})
	})
	RegisterRoutes(r, store, log)
	return r, store, log, database
}

func seedSOP(t *testing.T, database *db.DB, workspaceID, departmentID string) {
	t.Helper()
	ownerID := uuid.NewString()
	_, err := database.Exec(
		"INSERT INTO users (id, email, password_hash, name, role) VALUES (?, ?, ?, ?, ?)",
		ownerID, ownerID+"@example.com", "x", "Owner", "department_head")
	if err != nil {
		t.Fatalf("inserting user: %v", err)
	}
	_, err = database.Exec(
		"INSERT INTO sops (id, workspace_id, department_id, title, owner_id) VALUES (?, ?, ?, ?, ?)",
		uuid.NewString(), workspaceID, departmentID, "Wire Transfer Verification", ownerID)
	if err != nil {
		t.Fatalf("inserting sop: %v", err)
	}
}

func TestEnsureWorkspaceIdempotent(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	first, err := store.EnsureWorkspace(ctx, "Operations Manual", "operations")
	if err != nil {
		t.Fatalf("EnsureWorkspace: %v", err)
	}
	second, err := store.EnsureWorkspace(ctx, "Operations Manual", "operations")
	if err != nil {
		t.Fatalf("EnsureWorkspace again: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected same workspace, got %q and %q", first.ID, second.ID)
	}
}

func TestListWorkspacesNestsDepartments(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	ws, err := store.EnsureWorkspace(ctx, "Operations Manual", "operations")
	if err != nil {
		t.Fatalf("EnsureWorkspace: %v", err)
	}
	if _, err := store.CreateDepartment(ctx, ws.ID, "Escrow"); err != nil {
		t.Fatalf("CreateDepartment: %v", err)
	}
	if _, err := store.CreateDepartment(ctx, ws.ID, "Closing"); err != nil {
		t.Fatalf("CreateDepartment: %v", err)
	}

	workspaces, err := store.ListWorkspaces(ctx)
	if err != nil {
		t.Fatalf("ListWorkspaces: %v", err)
	}
	if len(workspaces) != 1 {
		t.Fatalf("expected 1 workspace, got %d", len(workspaces))
	}
	departments := workspaces[0].Departments
	if len(departments) != 2 {
		t.Fatalf("expected 2 departments, got %d", len(departments))
	}
	// Ordered by name.
	if departments[0].Name != "Closing" || departments[1].Name != "Escrow" {
		t.Errorf("departments = %+v", departments)
	}
}

func TestCreateDepartmentDuplicateName(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	ws, err := store.EnsureWorkspace(ctx, "Operations Manual", "operations")
	if err != nil {
		t.Fatalf("EnsureWorkspace: %v", err)
	}
	if _, err := store.CreateDepartment(ctx, ws.ID, "Escrow"); err != nil {
		t.Fatalf("CreateDepartment: %v", err)
	}
	if _, err := store.CreateDepartment(ctx, ws.ID, "escrow"); err != ErrDepartmentExists {
		t.Errorf("err = %v, want ErrDepartmentExists", err)
	}
}

func TestHTTPCreateDepartmentRequiresAdmin(t *testing.T) {
	actor := policy.Actor{ID: "u-1", Name: "Dana Head", Role: policy.RoleDepartmentHead}
	r, store, _, _ := setupRouter(t, actor)

	ws, err := store.EnsureWorkspace(context.Background(), "Operations Manual", "operations")
	if err != nil {
		t.Fatalf("EnsureWorkspace: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/departments",
		strings.NewReader(`{"workspace_id":"`+ws.ID+`","name":"Escrow"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestHTTPCreateDepartment(t *testing.T) {
	actor := policy.Actor{ID: "u-1", Name: "Alice Admin", Role: policy.RoleAdmin}
	r, store, log, _ := setupRouter(t, actor)

	ws, err := store.EnsureWorkspace(context.Background(), "Operations Manual", "operations")
	if err != nil {
		t.Fatalf("EnsureWorkspace: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/departments",
		strings.NewReader(`{"workspace_id":"`+ws.ID+`","name":"Escrow"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var body struct {
		Department Department `json:"department"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Department.Name != "Escrow" || body.Department.WorkspaceID != ws.ID {
		t.Errorf("department = %+v", body.Department)
	}

	entries, err := log.Query(context.Background(), activity.QueryFilter{Action: "department_created"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 || entries[0].UserName != "Alice Admin" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestHTTPDeleteDepartmentBlockedByAssignedSOPs(t *testing.T) {
	actor := policy.Actor{ID: "u-1", Name: "Alice Admin", Role: policy.RoleAdmin}
	r, store, _, database := setupRouter(t, actor)
	ctx := context.Background()

	ws, err := store.EnsureWorkspace(ctx, "Operations Manual", "operations")
	if err != nil {
		t.Fatalf("EnsureWorkspace: %v", err)
	}
	department, err := store.CreateDepartment(ctx, ws.ID, "Escrow")
	if err != nil {
		t.Fatalf("CreateDepartment: %v", err)
	}
	seedSOP(t, database, ws.ID, department.ID)

	req := httptest.NewRequest(http.MethodDelete, "/api/departments/"+department.ID, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "cannot delete department: 1 SOP is assigned" {
		t.Errorf("body = %q", got)
	}
}

func TestHTTPDeleteDepartment(t *testing.T) {
	actor := policy.Actor{ID: "u-1", Name: "Alice Admin", Role: policy.RoleAdmin}
	r, store, log, _ := setupRouter(t, actor)
	ctx := context.Background()

	ws, err := store.EnsureWorkspace(ctx, "Operations Manual", "operations")
	if err != nil {
		t.Fatalf("EnsureWorkspace: %v", err)
	}
	department, err := store.CreateDepartment(ctx, ws.ID, "Escrow")
	if err != nil {
		t.Fatalf("CreateDepartment: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/departments/"+department.ID, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if _, err := store.GetDepartment(ctx, department.ID); err != ErrNotFound {
		t.Errorf("expected department to be gone, got err = %v", err)
	}

	entries, err := log.Query(ctx, activity.QueryFilter{Action: "department_deleted"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 deletion entry, got %d", len(entries))
	}
}

func TestHTTPDeleteDepartmentNotFound(t *testing.T) {
	actor := policy.Actor{ID: "u-1", Name: "Alice Admin", Role: policy.RoleAdmin}
	r, _, _, _ := setupRouter(t, actor)

	req := httptest.NewRequest(http.MethodDelete, "/api/departments/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
