package kb

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/landmarktitle/tessa/internal/activity"
	"github.com/landmarktitle/tessa/internal/auth"
	"github.com/landmarktitle/tessa/internal/policy"
)

// Indexer keeps a secondary search index in sync with the entries
// table. Implementations must tolerate being called for ids they have
// never seen.
type Indexer interface {
	IndexEntry(ctx context.Context, entry Entry) error
	RemoveEntry(ctx context.Context, id string) error
}

// RegisterRoutes mounts the taxonomy and entry endpoints. index may be
// nil when semantic search is disabled.
func RegisterRoutes(r chi.Router, store *Store, log *activity.Store, index Indexer) {
	r.Get("/api/topics", handleTopics(store))
	r.Route("/api/entries", func(r chi.Router) {
		r.Get("/", handleListEntries(store))
		r.Post("/save", handleSaveEntries(store, log, index))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handleGetEntry(store))
			r.Put("/", handleUpdateEntry(store, log, index))
			r.Delete("/", handleDeleteEntry(store, log, index))
		})
	})
}

// requireWriter resolves the actor and checks the create capability.
func requireWriter(w http.ResponseWriter, r *http.Request) (policy.Actor, bool) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return policy.Actor{}, false
	}
	if !policy.Can(actor.Role, policy.CapCreate) {
		http.Error(w, "not authorized to modify entries", http.StatusForbidden)
		return policy.Actor{}, false
	}
	return actor, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func handleTopics(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topics, subtopics, err := store.ListTopics(r.Context(), r.URL.Query().Get("workspace_id"))
		if err != nil {
			http.Error(w, "failed to fetch topics", http.StatusInternalServerError)
			return
		}
		if topics == nil {
			topics = []Topic{}
		}
		if subtopics == nil {
			subtopics = []Subtopic{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"topics": topics, "subtopics": subtopics})
	}
}

func handleListEntries(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		entries, err := store.ListEntries(r.Context(), EntryFilter{
			Topic:     q.Get("topic"),
			RiskLevel: q.Get("risk_level"),
			Search:    q.Get("search"),
		})
		if err != nil {
			http.Error(w, "failed to fetch entries", http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []Entry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
	}
}

func handleGetEntry(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := store.GetEntry(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "entry not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "failed to fetch entry", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entry": entry})
	}
}

// SaveItem is one candidate entry in a batch save, carrying taxonomy
// names rather than ids.
type SaveItem struct {
	Topic             string `json:"topic"`
	Subtopic          string `json:"subtopic"`
	Scenario          string `json:"scenario"`
	RequiredDocuments string `json:"required_documents"`
	DecisionSteps     string `json:"decision_steps"`
	RiskLevel         string `json:"risk_level"`
	ExceptionLanguage string `json:"exception_language"`
	SourceReference   string `json:"source_reference"`
	Owner             string `json:"owner"`
	LastReviewed      string `json:"last_reviewed"`
}

func handleSaveEntries(store *Store, log *activity.Store, index Indexer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireWriter(w, r)
		if !ok {
			return
		}

		var req struct {
			WorkspaceID string     `json:"workspace_id"`
			Entries     []SaveItem `json:"entries"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.WorkspaceID == "" || len(req.Entries) == 0 {
			http.Error(w, "workspace_id and entries are required", http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		var saved []Entry
		for _, item := range req.Entries {
			if item.Topic == "" || item.Subtopic == "" || item.Scenario == "" {
				http.Error(w, "topic, subtopic, and scenario are required for every entry", http.StatusBadRequest)
				return
			}
			if item.RiskLevel != "" && !ValidRiskLevel(item.RiskLevel) {
				http.Error(w, "invalid risk level", http.StatusBadRequest)
				return
			}

			topic, createdTopic, err := store.GetOrCreateTopic(ctx, req.WorkspaceID, item.Topic)
			if err != nil {
				http.Error(w, "failed to save entries", http.StatusInternalServerError)
				return
			}
			if createdTopic {
				log.Log(ctx, activity.Entry{
					Action:      string(policy.EventTopicAdded),
					EntityType:  "topic",
					EntityID:    topic.ID,
					Details:     "New topic: " + topic.Name,
					UserName:    actor.Name,
					WorkspaceID: req.WorkspaceID,
				})
			}

			subtopic, createdSubtopic, err := store.GetOrCreateSubtopic(ctx, topic.ID, item.Subtopic)
			if err != nil {
				http.Error(w, "failed to save entries", http.StatusInternalServerError)
				return
			}
			if createdSubtopic {
				log.Log(ctx, activity.Entry{
					Action:      string(policy.EventSubtopicAdded),
					EntityType:  "subtopic",
					EntityID:    subtopic.ID,
					Details:     "New subtopic: " + subtopic.Name,
					UserName:    actor.Name,
					WorkspaceID: req.WorkspaceID,
				})
			}

			entry, err := store.InsertEntry(ctx, Entry{
				TopicID:           topic.ID,
				SubtopicID:        subtopic.ID,
				Scenario:          item.Scenario,
				RequiredDocuments: item.RequiredDocuments,
				DecisionSteps:     item.DecisionSteps,
				RiskLevel:         item.RiskLevel,
				ExceptionLanguage: item.ExceptionLanguage,
				SourceReference:   item.SourceReference,
				Owner:             item.Owner,
				LastReviewed:      item.LastReviewed,
			})
			if err != nil {
				http.Error(w, "failed to save entries", http.StatusInternalServerError)
				return
			}
			saved = append(saved, entry)

			log.Log(ctx, activity.Entry{
				Action:      string(policy.EventEntryCreated),
				EntityType:  "entry",
				EntityID:    entry.ID,
				Details:     "Created entry: " + subtopic.Name + " - " + truncate(entry.Scenario, 50) + "...",
				UserName:    actor.Name,
				WorkspaceID: req.WorkspaceID,
			})

			if index != nil {
				if err := index.IndexEntry(ctx, entry); err != nil {
					logrus.WithError(err).WithField("entry_id", entry.ID).Warn("failed to index entry")
				}
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{"success": true, "entries": saved})
	}
}

func handleUpdateEntry(store *Store, log *activity.Store, index Indexer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireWriter(w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")

		var req struct {
			Entry EntryUpdate `json:"entry"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Entry.Scenario == "" {
			http.Error(w, "scenario is required", http.StatusBadRequest)
			return
		}
		if !ValidRiskLevel(req.Entry.RiskLevel) {
			http.Error(w, "invalid risk level", http.StatusBadRequest)
			return
		}

		entry, err := store.UpdateEntry(r.Context(), id, req.Entry)
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "entry not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "failed to update entry", http.StatusInternalServerError)
			return
		}

		log.Log(r.Context(), activity.Entry{
			Action:     string(policy.EventEntryUpdated),
			EntityType: "entry",
			EntityID:   entry.ID,
			Details:    "Updated entry: " + truncate(entry.Scenario, 50) + "...",
			UserName:   actor.Name,
		})

		if index != nil {
			if err := index.IndexEntry(r.Context(), entry); err != nil {
				logrus.WithError(err).WithField("entry_id", entry.ID).Warn("failed to reindex entry")
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{"success": true, "entry": entry})
	}
}

func handleDeleteEntry(store *Store, log *activity.Store, index Indexer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireWriter(w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")

		if err := store.DeleteEntry(r.Context(), id); err != nil {
			if errors.Is(err, ErrNotFound) {
				http.Error(w, "entry not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to delete entry", http.StatusInternalServerError)
			return
		}

		log.Log(r.Context(), activity.Entry{
			Action:     string(policy.EventEntryDeleted),
			EntityType: "entry",
			EntityID:   id,
			Details:    "Deleted entry ID: " + id,
			UserName:   actor.Name,
		})

		if index != nil {
			if err := index.RemoveEntry(r.Context(), id); err != nil {
				logrus.WithError(err).WithField("entry_id", id).Warn("failed to remove entry from index")
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
