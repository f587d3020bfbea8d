package activity

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts activity endpoints under /api/activity.
func RegisterRoutes(r chi.Router, store *Store, hub *Hub) {
	r.Route("/api/activity", func(r chi.Router) {
		r.Get("/", handleQuery(store))
		r.Post("/", handleLog(store))
		if hub != nil {
			r.Get("/ws", hub.ServeHTTP)
		}
	})
}

func handleQuery(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := QueryFilter{
			Filter:      q.Get("filter"),
			Action:      q.Get("action"),
			WorkspaceID: q.Get("workspace_id"),
		}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Limit = n
			}
		}

		entries, err := store.Query(r.Context(), filter)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []Entry{}
		}

		writeJSON(w, http.StatusOK, map[string]any{"activities": entries})
	}
}

func handleLog(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var entry Entry
		if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if entry.Action == "" {
			http.Error(w, "action is required", http.StatusBadRequest)
			return
		}

		if err := store.Log(r.Context(), entry); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"success": true, "activity": entry})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
