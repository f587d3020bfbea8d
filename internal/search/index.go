package search

import (
	"context"
	"fmt"
	"os"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"github.com/landmarktitle/tessa/internal/kb"
)

const collectionName = "entries"

// Index is a chromem-go backed semantic index over knowledge entries.
// It satisfies kb.Indexer.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	store      *kb.Store
}

// NewIndex creates an index over the given entry store. When persistPath
// is non-empty the index is stored on disk and survives restarts;
// otherwise it lives in memory and should be rebuilt on startup.
func NewIndex(embedder Embedder, store *kb.Store, persistPath string) (*Index, error) {
	var db *chromem.DB
	var err error
	if persistPath != "" {
		if mkErr := os.MkdirAll(persistPath, 0o755); mkErr != nil {
			return nil, fmt.Errorf("creating index directory: %w", mkErr)
		}
		db, err = chromem.NewPersistentDB(persistPath, true)
		if err != nil {
			return nil, fmt.Errorf("opening persistent index: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	col, err := db.GetOrCreateCollection(collectionName, nil, toChromemFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Index{db: db, collection: col, store: store}, nil
}

// IndexEntry adds or replaces an entry's document in the index.
func (ix *Index) IndexEntry(ctx context.Context, entry kb.Entry) error {
	doc := chromem.Document{
		ID:      entry.ID,
		Content: entryText(entry),
		Metadata: map[string]string{
			"topic":      entry.TopicName,
			"subtopic":   entry.SubtopicName,
			"risk_level": entry.RiskLevel,
		},
	}
	return ix.collection.AddDocuments(ctx, []chromem.Document{doc}, 1)
}

// RemoveEntry drops an entry from the index. Unknown ids are not an
// error.
func (ix *Index) RemoveEntry(ctx context.Context, id string) error {
	return ix.collection.Delete(ctx, nil, nil, id)
}

// Rebuild reindexes every stored entry. Used on startup when the index
// is in memory, and after bulk imports.
func (ix *Index) Rebuild(ctx context.Context) (int, error) {
	entries, err := ix.store.ListEntries(ctx, kb.EntryFilter{})
	if err != nil {
		return 0, fmt.Errorf("listing entries: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	docs := make([]chromem.Document, len(entries))
	for i, entry := range entries {
		docs[i] = chromem.Document{
			ID:      entry.ID,
			Content: entryText(entry),
			Metadata: map[string]string{
				"topic":      entry.TopicName,
				"subtopic":   entry.SubtopicName,
				"risk_level": entry.RiskLevel,
			},
		}
	}
	if err := ix.collection.AddDocuments(ctx, docs, 4); err != nil {
		return 0, fmt.Errorf("indexing entries: %w", err)
	}
	return len(docs), nil
}

// Count reports how many entries are indexed.
func (ix *Index) Count() int {
	return ix.collection.Count()
}

// Result is one ranked search hit.
type Result struct {
	Entry      kb.Entry `json:"entry"`
	Similarity float32  `json:"similarity"`
}

// Search returns entries ranked by semantic similarity to query. Hits
// whose entries have since been deleted are skipped.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}

	// chromem-go requires nResults <= collection size.
	count := ix.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	hits, err := ix.collection.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		entry, err := ix.store.GetEntry(ctx, hit.ID)
		if err == kb.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loading entry %s: %w", hit.ID, err)
		}
		results = append(results, Result{Entry: entry, Similarity: hit.Similarity})
	}
	return results, nil
}

// entryText assembles the searchable document for an entry. Taxonomy
// names are included so queries like "bankruptcy" match even when the
// scenario text never uses the word.
func entryText(entry kb.Entry) string {
	parts := []string{entry.TopicName, entry.SubtopicName, entry.Scenario,
		entry.RequiredDocuments, entry.DecisionSteps, entry.ExceptionLanguage}
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p)
	}
	return b.String()
}
