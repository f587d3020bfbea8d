package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/landmarktitle/tessa/internal/auth"
	"github.com/landmarktitle/tessa/internal/config"
	"github.com/landmarktitle/tessa/internal/db"
)

func setupServer(t *testing.T) (*Server, *db.DB) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	srv := New(cfg, database, nil, nil)
	return srv, database
}

func seedAdmin(t *testing.T, database *db.DB, email, password string) {
	t.Helper()
	hash, err := auth.HashPassword(password, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	_, err = database.Exec(
		"INSERT INTO users (id, email, password_hash, name, role) VALUES (?, ?, ?, ?, ?)",
		"admin-1", email, hash, "Ada Admin", "admin")
	if err != nil {
		t.Fatalf("inserting user: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	srv, _ := setupServer(t)

	for _, path := range []string{"/api/workspaces", "/api/sops", "/api/entries", "/api/activity"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want %d", path, rec.Code, http.StatusUnauthorized)
		}
	}
}

func TestLoginThenAccess(t *testing.T) {
	srv, database := setupServer(t)
	seedAdmin(t, database, "ada@landmark.test", "changeme-123")

	body := `{"email":"ada@landmark.test","password":"changeme-123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	var loginResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&loginResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if loginResp.Token == "" {
		t.Fatal("expected a token")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/workspaces", nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.Token)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("workspaces status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSearchUnconfiguredReturnsUnavailable(t *testing.T) {
	srv, database := setupServer(t)
	seedAdmin(t, database, "ada@landmark.test", "changeme-123")

	body := `{"email":"ada@landmark.test","password":"changeme-123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	var loginResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&loginResp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/search?q=bankruptcy", nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.Token)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
