package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/landmarktitle/tessa/internal/activity"
	"github.com/landmarktitle/tessa/internal/auth"
	"github.com/landmarktitle/tessa/internal/db"
	"github.com/landmarktitle/tessa/internal/llm"
	"github.com/landmarktitle/tessa/internal/policy"
)

// scriptedProvider returns canned responses in order and records every
// request it sees.
type scriptedProvider struct {
	responses []string
	requests  []llm.CompletionRequest
}

func (s *scriptedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return &llm.CompletionResponse{Content: ""}, nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return &llm.CompletionResponse{Content: resp}, nil
}

func (s *scriptedProvider) Name() string { return "scripted" }

const classifyResponse = `{"format":"qa","topics":["Trusts"],"estimated_entries":2,"quality_notes":""}`

const extractResponse = `[
	{"topic":"Trusts","subtopic":"Trust Certification","scenario":"When a trustee holds title","required_documents":"Certification of trust","decision_steps":"1. Request certification","risk_level":"Medium","exception_language":"N/A","confidence":"High"},
	{"topic":"Trusts","subtopic":"Trustee Signature Authority","scenario":"When only one trustee can sign","required_documents":"NOT SPECIFIED - requires manual review","decision_steps":"1. Review trust document","risk_level":"Medium","exception_language":"N/A","confidence":"Low"}
]`

func TestClassify(t *testing.T) {
	provider := &scriptedProvider{responses: []string{classifyResponse}}
	pipeline := NewPipeline(provider, "test-model")

	classification, err := pipeline.Classify(context.Background(), "Q: ... A: ...", "trusts-qa.txt")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if classification.Format != "qa" || classification.EstimatedEntries != 2 {
		t.Errorf("classification = %+v", classification)
	}
}

func TestClassifyFallsBackToNarrative(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"I could not classify this document."}}
	pipeline := NewPipeline(provider, "test-model")

	classification, err := pipeline.Classify(context.Background(), "blah", "doc.txt")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if classification.Format != "narrative" || len(classification.Topics) != 1 || classification.Topics[0] != "Other" {
		t.Errorf("classification = %+v", classification)
	}
}

func TestClassifyTruncatesContent(t *testing.T) {
	provider := &scriptedProvider{responses: []string{classifyResponse}}
	pipeline := NewPipeline(provider, "test-model")

	long := strings.Repeat("x", 10000)
	if _, err := pipeline.Classify(context.Background(), long, "big.txt"); err != nil {
		t.Fatalf("Classify: %v", err)
	}

	prompt := provider.requests[0].Messages[1].Content
	if strings.Count(prompt, "x") != classifyPreviewLimit {
		t.Errorf("expected content preview of %d chars, got %d", classifyPreviewLimit, strings.Count(prompt, "x"))
	}
}

func TestExtractUsesFormatInstructions(t *testing.T) {
	provider := &scriptedProvider{responses: []string{extractResponse}}
	pipeline := NewPipeline(provider, "test-model")

	candidates, err := pipeline.Extract(context.Background(), "content", "trusts-qa.txt",
		Classification{Format: "qa"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[1].RequiredDocuments != NotSpecified {
		t.Errorf("RequiredDocuments = %q", candidates[1].RequiredDocuments)
	}

	system := provider.requests[0].Messages[0].Content
	if !strings.Contains(system, "Q&A formatted document") {
		t.Error("expected qa instructions in system prompt")
	}
}

func TestExtractUnknownFormatUsesNarrative(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"[]"}}
	pipeline := NewPipeline(provider, "test-model")

	if _, err := pipeline.Extract(context.Background(), "content", "doc.txt", Classification{Format: "mystery"}); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	system := provider.requests[0].Messages[0].Content
	if !strings.Contains(system, "narrative document with flowing text") {
		t.Error("expected narrative instructions for unknown format")
	}
}

func TestExtractRejectsUnparseableResponse(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"sorry, no entries"}}
	pipeline := NewPipeline(provider, "test-model")

	if _, err := pipeline.Extract(context.Background(), "content", "doc.txt", Classification{Format: "qa"}); err == nil {
		t.Error("expected error for unparseable extraction response")
	}
}

func TestProcessStampsClassification(t *testing.T) {
	provider := &scriptedProvider{responses: []string{classifyResponse, extractResponse}}
	pipeline := NewPipeline(provider, "test-model")

	candidates, err := pipeline.Process(context.Background(), "Q: ... A: ...", "trusts-qa.txt")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	for _, c := range candidates {
		if c.Classification == nil || c.Classification.Format != "qa" {
			t.Errorf("candidate missing classification: %+v", c)
		}
	}
}

func TestExtractJSONWrappedInProse(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"Here you go:\n" + extractResponse + "\nLet me know if you need more."}}
	pipeline := NewPipeline(provider, "test-model")

	candidates, err := pipeline.Extract(context.Background(), "content", "doc.txt", Classification{Format: "qa"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(candidates) != 2 {
		t.Errorf("expected 2 candidates, got %d", len(candidates))
	}
}

func setupRouter(t *testing.T, actor policy.Actor, pipeline *Pipeline) (*chi.Mux, *activity.Store) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	log := activity.NewStore(database)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(auth.WithActor(req.Context(), actor)))
		})
	})
	RegisterRoutes(r, pipeline, log)
	return r, log
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("writing part: %v", err)
	}
	writer.Close()
	return &buf, writer.FormDataContentType()
}

func TestHTTPProcess(t *testing.T) {
	editor := policy.Actor{ID: "u-1", Name: "Dana Head", Role: policy.RoleDepartmentHead}
	provider := &scriptedProvider{responses: []string{classifyResponse, extractResponse}}
	r, log := setupRouter(t, editor, NewPipeline(provider, "test-model"))

	body, contentType := multipartUpload(t, "trusts-qa.txt", "Q: ... A: ...")
	req := httptest.NewRequest(http.MethodPost, "/api/process", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Entries         []Candidate `json:"entries"`
		SourceReference string      `json:"source_reference"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Entries) != 2 || resp.SourceReference != "trusts-qa.txt" {
		t.Errorf("resp = %+v", resp)
	}

	entries, err := log.Query(context.Background(), activity.QueryFilter{Action: "document_uploaded"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 || entries[0].Details != "Uploaded: trusts-qa.txt" || entries[0].UserName != "Dana Head" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestHTTPProcessViewerDenied(t *testing.T) {
	viewer := policy.Actor{ID: "v-1", Name: "Val Viewer", Role: policy.RoleViewer}
	r, _ := setupRouter(t, viewer, NewPipeline(&scriptedProvider{}, "test-model"))

	body, contentType := multipartUpload(t, "doc.txt", "content")
	req := httptest.NewRequest(http.MethodPost, "/api/process", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestHTTPProcessMissingFile(t *testing.T) {
	editor := policy.Actor{ID: "u-1", Name: "Dana Head", Role: policy.RoleDepartmentHead}
	r, _ := setupRouter(t, editor, NewPipeline(&scriptedProvider{}, "test-model"))

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	writer.WriteField("user_name", "Dana")
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/process", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
