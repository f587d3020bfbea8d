package users

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/landmarktitle/tessa/internal/activity"
	"github.com/landmarktitle/tessa/internal/auth"
	"github.com/landmarktitle/tessa/internal/policy"
)

// RegisterRoutes mounts account management under /api/admin/users. Every
// route requires the org-management capability.
func RegisterRoutes(r chi.Router, store *Store, log *activity.Store) {
	r.Route("/api/admin/users", func(r chi.Router) {
		r.Use(requireAdmin)
		r.Get("/", handleList(store))
		r.Post("/", handleCreate(store, log))
		r.Get("/{id}", handleGet(store))
		r.Put("/{id}", handleUpdate(store, log))
		r.Delete("/{id}", handleDelete(store, log))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.ActorFrom(r.Context())
		if !ok {
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}
		if !policy.Can(actor.Role, policy.CapManageOrg) {
			http.Error(w, "admin access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func validRole(role string) bool {
	return slices.Contains(policy.ValidRoles, policy.Role(role))
}

func handleList(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.List(r.Context())
		if err != nil {
			http.Error(w, "failed to fetch users", http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []User{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": list})
	}
}

func handleGet(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := store.Get(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "failed to fetch user", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": user})
	}
}

func handleCreate(store *Store, log *activity.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.ActorFrom(r.Context())

		var params CreateParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if params.Email == "" || params.Name == "" || params.Password == "" {
			http.Error(w, "email, name, and password are required", http.StatusBadRequest)
			return
		}
		if len(params.Password) < auth.MinPasswordLength {
			http.Error(w, fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength), http.StatusBadRequest)
			return
		}
		if params.Role != "" && !validRole(params.Role) {
			http.Error(w, "invalid role", http.StatusBadRequest)
			return
		}

		user, err := store.Create(r.Context(), params)
		if errors.Is(err, ErrEmailExists) {
			http.Error(w, "email already exists", http.StatusBadRequest)
			return
		}
		if err != nil {
			http.Error(w, "failed to create user", http.StatusInternalServerError)
			return
		}

		log.Log(r.Context(), activity.Entry{
			Action:     string(policy.EventUserCreated),
			EntityType: "user",
			EntityID:   user.ID,
			Details:    fmt.Sprintf("Created user: %s (%s)", user.Name, user.Email),
			UserName:   actor.Name,
		})

		writeJSON(w, http.StatusOK, map[string]any{"user": user})
	}
}

func handleUpdate(store *Store, log *activity.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.ActorFrom(r.Context())
		id := chi.URLParam(r, "id")

		var params UpdateParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if params.Role != "" && !validRole(params.Role) {
			http.Error(w, "invalid role", http.StatusBadRequest)
			return
		}
		if params.Password != "" && len(params.Password) < auth.MinPasswordLength {
			http.Error(w, fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength), http.StatusBadRequest)
			return
		}

		user, err := store.Update(r.Context(), id, params)
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "failed to update user", http.StatusInternalServerError)
			return
		}

		log.Log(r.Context(), activity.Entry{
			Action:     string(policy.EventUserUpdated),
			EntityType: "user",
			EntityID:   user.ID,
			Details:    "Updated user: " + user.Name,
			UserName:   actor.Name,
		})

		writeJSON(w, http.StatusOK, map[string]any{"user": user})
	}
}

func handleDelete(store *Store, log *activity.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.ActorFrom(r.Context())
		id := chi.URLParam(r, "id")

		user, err := store.Get(r.Context(), id)
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "failed to fetch user", http.StatusInternalServerError)
			return
		}

		count, err := store.OwnedSOPCount(r.Context(), id)
		if err != nil {
			http.Error(w, "failed to check owned SOPs", http.StatusInternalServerError)
			return
		}
		if err := policy.CanDeleteUser(actor.ID, id, policy.Counters{SOPCount: count}); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := store.Delete(r.Context(), id); err != nil {
			http.Error(w, "failed to delete user", http.StatusInternalServerError)
			return
		}

		log.Log(r.Context(), activity.Entry{
			Action:     string(policy.EventUserDeleted),
			EntityType: "user",
			EntityID:   user.ID,
			Details:    fmt.Sprintf("Deleted user: %s (%s)", user.Name, user.Email),
			UserName:   actor.Name,
		})

		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
