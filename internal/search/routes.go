package search

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the search endpoint. index may be nil when
// semantic search is disabled; the endpoint then reports unavailable.
func RegisterRoutes(r chi.Router, index *Index) {
	r.Get("/api/search", handleSearch(index))
}

func handleSearch(index *Index) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if index == nil {
			http.Error(w, "semantic search is not configured", http.StatusServiceUnavailable)
			return
		}

		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" {
			http.Error(w, "query parameter q is required", http.StatusBadRequest)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		results, err := index.Search(r.Context(), query, limit)
		if err != nil {
			http.Error(w, "search failed", http.StatusInternalServerError)
			return
		}
		if results == nil {
			results = []Result{}
		}

		writeJSON(w, http.StatusOK, map[string]any{"query": query, "results": results})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
