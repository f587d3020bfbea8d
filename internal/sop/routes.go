package sop

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/landmarktitle/tessa/internal/activity"
	"github.com/landmarktitle/tessa/internal/auth"
	"github.com/landmarktitle/tessa/internal/policy"
)

// RegisterRoutes mounts the SOP endpoints under /api/sops. The generator
// may be nil; the generate endpoint then reports that drafting is
// unavailable.
func RegisterRoutes(r chi.Router, store *Store, log *activity.Store, generator *Generator) {
	r.Route("/api/sops", func(r chi.Router) {
		r.Get("/", handleList(store))
		r.Post("/", handleCreate(store, log))
		r.Get("/questions", handleQuestions())
		r.Post("/generate", handleGenerate(generator))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handleGet(store))
			r.Put("/", handleUpdate(store, log))
			r.Delete("/", handleDelete(store, log))
			r.Post("/submit", handleTransition(store, log, policy.ActionSubmit))
			r.Post("/approve", handleTransition(store, log, policy.ActionApprove))
			r.Get("/export", handleExport(store))
		})
	})
}

func actionVerb(action policy.Action) string {
	switch action {
	case policy.ActionUpdate:
		return "edit"
	default:
		return string(action)
	}
}

// writePolicyError maps a policy denial onto the HTTP response. Blocked
// submit/approve transitions are client errors; ownership and edit/delete
// restrictions are forbidden.
func writePolicyError(w http.ResponseWriter, action policy.Action, err error) {
	switch {
	case errors.Is(err, policy.ErrNotOwner):
		http.Error(w, "not authorized to "+actionVerb(action)+" this SOP", http.StatusForbidden)
	case errors.Is(err, policy.ErrInsufficientRole), errors.Is(err, policy.ErrUnknownRole):
		if action == policy.ActionApprove {
			http.Error(w, "only admins can approve SOPs", http.StatusForbidden)
			return
		}
		http.Error(w, "not authorized to "+actionVerb(action)+" this SOP", http.StatusForbidden)
	case errors.Is(err, policy.ErrInvalidTransition):
		message := strings.TrimSuffix(err.Error(), ": "+policy.ErrInvalidTransition.Error())
		status := http.StatusBadRequest
		if action == policy.ActionUpdate || action == policy.ActionDelete {
			status = http.StatusForbidden
		}
		http.Error(w, message, status)
	default:
		http.Error(w, "failed to apply action", http.StatusInternalServerError)
	}
}

func handleList(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		sops, err := store.List(r.Context(), ListFilter{
			WorkspaceID:  q.Get("workspace_id"),
			DepartmentID: q.Get("department_id"),
			Status:       q.Get("status"),
			Search:       q.Get("search"),
		})
		if err != nil {
			http.Error(w, "failed to fetch SOPs", http.StatusInternalServerError)
			return
		}
		if sops == nil {
			sops = []SOP{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"sops": sops})
	}
}

func handleGet(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sop, err := store.Get(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "SOP not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "failed to fetch SOP", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sop": sop})
	}
}

func handleCreate(store *Store, log *activity.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.ActorFrom(r.Context())
		if !ok {
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}

		var req SOP
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Title == "" || req.WorkspaceID == "" {
			http.Error(w, "title and workspace_id are required", http.StatusBadRequest)
			return
		}

		snapshot, event, err := policy.Apply(actor, policy.ActionCreate, req.Snapshot(), time.Now().UTC())
		if err != nil {
			writePolicyError(w, policy.ActionCreate, err)
			return
		}
		req.Status = string(snapshot.Status)
		req.OwnerID = snapshot.OwnerID
		req.ApprovedBy = ""
		req.ApprovedAt = nil
		req.UpdatedAt = snapshot.UpdatedAt

		created, err := store.Insert(r.Context(), req)
		if err != nil {
			http.Error(w, "failed to create SOP", http.StatusInternalServerError)
			return
		}

		entry := activity.FromEvent(event)
		entry.EntityID = created.ID
		log.Log(r.Context(), entry)

		writeJSON(w, http.StatusOK, map[string]any{"success": true, "sop": created})
	}
}

func handleUpdate(store *Store, log *activity.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.ActorFrom(r.Context())
		if !ok {
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}
		id := chi.URLParam(r, "id")

		var params UpdateParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		existing, err := store.Get(r.Context(), id)
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "SOP not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "failed to fetch SOP", http.StatusInternalServerError)
			return
		}

		_, event, err := policy.Apply(actor, policy.ActionUpdate, existing.Snapshot(), time.Now().UTC())
		if err != nil {
			writePolicyError(w, policy.ActionUpdate, err)
			return
		}

		updated, err := store.Update(r.Context(), id, params)
		if err != nil {
			http.Error(w, "failed to update SOP", http.StatusInternalServerError)
			return
		}

		entry := activity.FromEvent(event)
		entry.Details = "Updated SOP: " + updated.Title
		log.Log(r.Context(), entry)

		writeJSON(w, http.StatusOK, map[string]any{"success": true, "sop": updated})
	}
}

func handleDelete(store *Store, log *activity.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.ActorFrom(r.Context())
		if !ok {
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}
		id := chi.URLParam(r, "id")

		existing, err := store.Get(r.Context(), id)
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "SOP not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "failed to fetch SOP", http.StatusInternalServerError)
			return
		}

		_, event, err := policy.Apply(actor, policy.ActionDelete, existing.Snapshot(), time.Now().UTC())
		if err != nil {
			writePolicyError(w, policy.ActionDelete, err)
			return
		}

		if err := store.Delete(r.Context(), id); err != nil {
			http.Error(w, "failed to delete SOP", http.StatusInternalServerError)
			return
		}

		log.Log(r.Context(), activity.FromEvent(event))
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func handleTransition(store *Store, log *activity.Store, action policy.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.ActorFrom(r.Context())
		if !ok {
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}
		id := chi.URLParam(r, "id")

		existing, err := store.Get(r.Context(), id)
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "SOP not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "failed to fetch SOP", http.StatusInternalServerError)
			return
		}

		snapshot, event, err := policy.Apply(actor, action, existing.Snapshot(), time.Now().UTC())
		if err != nil {
			writePolicyError(w, action, err)
			return
		}

		if err := store.SaveSnapshot(r.Context(), snapshot); err != nil {
			http.Error(w, "failed to save SOP", http.StatusInternalServerError)
			return
		}

		log.Log(r.Context(), activity.FromEvent(event))

		updated, err := store.Get(r.Context(), id)
		if err != nil {
			http.Error(w, "failed to fetch SOP", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "sop": updated})
	}
}

func handleQuestions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"questions": InterviewQuestions})
	}
}

func handleGenerate(generator *Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if generator == nil {
			http.Error(w, "SOP generation is not configured", http.StatusServiceUnavailable)
			return
		}

		var req struct {
			Title      string            `json:"title"`
			Department string            `json:"department"`
			Answers    *InterviewAnswers `json:"answers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Title == "" || req.Department == "" || req.Answers == nil {
			http.Error(w, "missing required fields", http.StatusBadRequest)
			return
		}

		generated, err := generator.Generate(r.Context(), req.Title, req.Department, *req.Answers)
		if err != nil {
			http.Error(w, "failed to generate SOP", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "sop": generated})
	}
}

func handleExport(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sop, err := store.Get(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "SOP not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "failed to fetch SOP", http.StatusInternalServerError)
			return
		}

		page, err := ExportHTML(sop)
		if err != nil {
			http.Error(w, "failed to export SOP", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(page)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
