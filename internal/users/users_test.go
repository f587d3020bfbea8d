package users

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

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
	return NewStore(database, bcrypt.MinCost), database
}

func setupRouter(t *testing.T, actor policy.Actor) (*chi.Mux, *Store, *db.DB) {
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
	return r, store, database
}

var admin = policy.Actor{ID: "admin-1", Name: "Alice Admin", Role: policy.RoleAdmin}

func TestCreateAndGet(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, CreateParams{
		Email:      "dana@example.com",
		Name:       "Dana Head",
		Password:   "password123",
		Role:       "department_head",
		Department: "Escrow",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Error("expected generated ID")
	}

	got, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Email != "dana@example.com" || got.Role != "department_head" || got.Department != "Escrow" {
		t.Errorf("user = %+v", got)
	}
	if got.PasswordHash == "password123" || got.PasswordHash == "" {
		t.Error("expected password to be hashed")
	}
}

func TestCreateDefaultsRoleToViewer(t *testing.T) {
	store, _ := setupStore(t)

	created, err := store.Create(context.Background(), CreateParams{
		Email:    "v@example.com",
		Name:     "Val Viewer",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Role != "viewer" {
		t.Errorf("Role = %q, want viewer", created.Role)
	}
}

func TestCreateDuplicateEmail(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	params := CreateParams{Email: "dana@example.com", Name: "Dana", Password: "password123"}
	if _, err := store.Create(ctx, params); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Create(ctx, params); err != ErrEmailExists {
		t.Errorf("err = %v, want ErrEmailExists", err)
	}
}

func TestUpdateKeepsPasswordWhenOmitted(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, CreateParams{Email: "dana@example.com", Name: "Dana", Password: "password123"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := store.Update(ctx, created.ID, UpdateParams{Name: "Dana Head", Role: "department_head"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "Dana Head" || updated.Role != "department_head" {
		t.Errorf("user = %+v", updated)
	}
	if updated.PasswordHash != created.PasswordHash {
		t.Error("expected password hash to be unchanged")
	}
}

func TestUpdateChangesPassword(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, CreateParams{Email: "dana@example.com", Name: "Dana", Password: "password123"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := store.Update(ctx, created.ID, UpdateParams{Name: "Dana", Role: "viewer", Password: "newpassword1"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !auth.VerifyPassword("newpassword1", updated.PasswordHash) {
		t.Error("expected new password to verify")
	}
}

func TestHTTPRequiresAdmin(t *testing.T) {
	viewer := policy.Actor{ID: "v-1", Name: "Val Viewer", Role: policy.RoleViewer}
	r, _, _ := setupRouter(t, viewer)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestHTTPCreateValidation(t *testing.T) {
	r, _, _ := setupRouter(t, admin)

	cases := []struct {
		name string
		body string
		want string
	}{
		{"missing fields", `{"email":"a@example.com"}`, "email, name, and password are required"},
		{"short password", `{"email":"a@example.com","name":"A","password":"short"}`, "password must be at least 8 characters"},
		{"bad role", `{"email":"a@example.com","name":"A","password":"password123","role":"superuser"}`, "invalid role"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/admin/users", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tc.want {
				t.Errorf("body = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestHTTPCreateAndList(t *testing.T) {
	r, _, _ := setupRouter(t, admin)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/users",
		strings.NewReader(`{"email":"dana@example.com","name":"Dana","password":"password123","role":"department_head"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "password_hash") {
		t.Error("response must not expose the password hash")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var body struct {
		Users []User `json:"users"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Users) != 1 || body.Users[0].Email != "dana@example.com" {
		t.Errorf("users = %+v", body.Users)
	}
}

func TestHTTPDeleteSelfDenied(t *testing.T) {
	// The acting admin's id matches the target row.
	r, store, _ := setupRouter(t, admin)

	_, err := store.db.Exec(
		"INSERT INTO users (id, email, password_hash, name, role) VALUES (?, ?, ?, ?, ?)",
		admin.ID, "alice@example.com", "x", admin.Name, "admin")
	if err != nil {
		t.Fatalf("inserting user: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/users/"+admin.ID, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "cannot delete your own account" {
		t.Errorf("body = %q", got)
	}
}

func TestHTTPDeleteBlockedByOwnedSOPs(t *testing.T) {
	r, store, database := setupRouter(t, admin)
	ctx := context.Background()

	created, err := store.Create(ctx, CreateParams{
		Email: "dana@example.com", Name: "Dana", Password: "password123", Role: "department_head",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	wsID := uuid.NewString()
	if _, err := database.Exec("INSERT INTO workspaces (id, name, slug) VALUES (?, ?, ?)", wsID, "Operations", "operations"); err != nil {
		t.Fatalf("inserting workspace: %v", err)
	}
	for i := 0; i < 2; i++ {
		_, err := database.Exec(
			"INSERT INTO sops (id, workspace_id, title, owner_id) VALUES (?, ?, ?, ?)",
			uuid.NewString(), wsID, "Some Procedure", created.ID)
		if err != nil {
			t.Fatalf("inserting sop: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/users/"+created.ID, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "cannot delete - user owns 2 SOPs" {
		t.Errorf("body = %q", got)
	}
}

func TestHTTPDelete(t *testing.T) {
	r, store, _ := setupRouter(t, admin)
	ctx := context.Background()

	created, err := store.Create(ctx, CreateParams{
		Email: "v@example.com", Name: "Val", Password: "password123",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/users/"+created.ID, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if _, err := store.Get(ctx, created.ID); err != ErrNotFound {
		t.Errorf("expected user to be gone, got err = %v", err)
	}
}
