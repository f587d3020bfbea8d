package extraction

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/landmarktitle/tessa/internal/activity"
	"github.com/landmarktitle/tessa/internal/auth"
	"github.com/landmarktitle/tessa/internal/policy"
)

// maxUploadBytes bounds document uploads.
const maxUploadBytes = 10 << 20

// RegisterRoutes mounts the document processing endpoint. pipeline may
// be nil; the endpoint then reports that extraction is unavailable.
func RegisterRoutes(r chi.Router, pipeline *Pipeline, log *activity.Store) {
	r.Post("/api/process", handleProcess(pipeline, log))
}

func handleProcess(pipeline *Pipeline, log *activity.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.ActorFrom(r.Context())
		if !ok {
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}
		if !policy.Can(actor.Role, policy.CapCreate) {
			http.Error(w, "not authorized to upload documents", http.StatusForbidden)
			return
		}
		if pipeline == nil {
			http.Error(w, "document extraction is not configured", http.StatusServiceUnavailable)
			return
		}

		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			http.Error(w, "invalid multipart request", http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "no file provided", http.StatusBadRequest)
			return
		}
		defer file.Close()

		content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			http.Error(w, "failed to read file", http.StatusInternalServerError)
			return
		}

		candidates, err := pipeline.Process(r.Context(), string(content), header.Filename)
		if err != nil {
			http.Error(w, "failed to process document", http.StatusInternalServerError)
			return
		}
		if candidates == nil {
			candidates = []Candidate{}
		}

		log.Log(r.Context(), activity.Entry{
			Action:     string(policy.EventDocumentUploaded),
			EntityType: "document",
			Details:    "Uploaded: " + header.Filename,
			UserName:   actor.Name,
		})

		writeJSON(w, http.StatusOK, map[string]any{
			"entries":          candidates,
			"source_reference": header.Filename,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
