package auth

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the session endpoints under /api/auth. These
// routes sit outside the authenticated group: login must be reachable
// without a session, and me/logout do their own token handling.
func RegisterRoutes(r chi.Router, store *Store, manager *Manager) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", handleLogin(store, manager))
		r.Post("/logout", handleLogout())
		r.Get("/me", handleMe(store, manager))
	})
}

func handleLogin(store *Store, manager *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Email == "" || req.Password == "" {
			http.Error(w, "email and password are required", http.StatusBadRequest)
			return
		}

		user, err := store.GetByEmail(r.Context(), req.Email)
		if err != nil || !VerifyPassword(req.Password, user.PasswordHash) {
			// Same response for unknown email and wrong password.
			http.Error(w, "invalid email or password", http.StatusUnauthorized)
			return
		}

		token, err := manager.Generate(user)
		if err != nil {
			http.Error(w, "failed to create session", http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int(manager.TTL().Seconds()),
		})

		writeJSON(w, http.StatusOK, map[string]any{"user": user, "token": token})
	}
}

func handleLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   -1,
		})
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func handleMe(store *Store, manager *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}
		claims, err := manager.Parse(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		user, err := store.GetByID(r.Context(), claims.UserID)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": user})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
