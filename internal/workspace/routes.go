package workspace

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/landmarktitle/tessa/internal/activity"
	"github.com/landmarktitle/tessa/internal/auth"
	"github.com/landmarktitle/tessa/internal/policy"
)

// RegisterRoutes mounts workspace and department endpoints. Department
// writes are restricted to roles with the org-management capability.
func RegisterRoutes(r chi.Router, store *Store, log *activity.Store) {
	r.Get("/api/workspaces", handleListWorkspaces(store))
	r.Route("/api/departments", func(r chi.Router) {
		r.Get("/", handleListDepartments(store))
		r.Post("/", handleCreateDepartment(store, log))
		r.Delete("/{id}", handleDeleteDepartment(store, log))
	})
}

func handleListWorkspaces(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspaces, err := store.ListWorkspaces(r.Context())
		if err != nil {
			http.Error(w, "failed to fetch workspaces", http.StatusInternalServerError)
			return
		}
		if workspaces == nil {
			workspaces = []Workspace{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"workspaces": workspaces})
	}
}

func handleListDepartments(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		departments, err := store.ListDepartments(r.Context(), r.URL.Query().Get("workspace_id"))
		if err != nil {
			http.Error(w, "failed to fetch departments", http.StatusInternalServerError)
			return
		}
		if departments == nil {
			departments = []Department{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"departments": departments})
	}
}

func handleCreateDepartment(store *Store, log *activity.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.ActorFrom(r.Context())
		if !ok {
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}
		if !policy.Can(actor.Role, policy.CapManageOrg) {
			http.Error(w, "admin access required", http.StatusForbidden)
			return
		}

		var req struct {
			WorkspaceID string `json:"workspace_id"`
			Name        string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.WorkspaceID == "" || req.Name == "" {
			http.Error(w, "workspace_id and name are required", http.StatusBadRequest)
			return
		}

		department, err := store.CreateDepartment(r.Context(), req.WorkspaceID, req.Name)
		if errors.Is(err, ErrDepartmentExists) {
			http.Error(w, "department already exists", http.StatusBadRequest)
			return
		}
		if err != nil {
			http.Error(w, "failed to create department", http.StatusInternalServerError)
			return
		}

		log.Log(r.Context(), activity.Entry{
			Action:      string(policy.EventDepartmentCreated),
			EntityType:  "department",
			EntityID:    department.ID,
			Details:     "Created department: " + department.Name,
			UserName:    actor.Name,
			WorkspaceID: department.WorkspaceID,
		})

		writeJSON(w, http.StatusOK, map[string]any{"department": department})
	}
}

func handleDeleteDepartment(store *Store, log *activity.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.ActorFrom(r.Context())
		if !ok {
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}
		if !policy.Can(actor.Role, policy.CapManageOrg) {
			http.Error(w, "admin access required", http.StatusForbidden)
			return
		}

		id := chi.URLParam(r, "id")
		department, err := store.GetDepartment(r.Context(), id)
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "department not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "failed to fetch department", http.StatusInternalServerError)
			return
		}

		count, err := store.SOPCount(r.Context(), id)
		if err != nil {
			http.Error(w, "failed to check department references", http.StatusInternalServerError)
			return
		}
		if err := policy.CanDeleteDepartment(policy.Counters{SOPCount: count}); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := store.DeleteDepartment(r.Context(), id); err != nil {
			http.Error(w, "failed to delete department", http.StatusInternalServerError)
			return
		}

		log.Log(r.Context(), activity.Entry{
			Action:      string(policy.EventDepartmentDeleted),
			EntityType:  "department",
			EntityID:    department.ID,
			Details:     "Deleted department: " + department.Name,
			UserName:    actor.Name,
			WorkspaceID: department.WorkspaceID,
		})

		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
