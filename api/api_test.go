package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/clidram/medrag/pkg/connector"
	"github.com/clidram/medrag/pkg/etl"
	"github.com/clidram/medrag/pkg/rag"
	"github.com/clidram/medrag/pkg/session"
	testutils "github.com/clidram/medrag/pkg/utils/test"
	"github.com/clidram/medrag/pkg/vector"
	"github.com/clidram/medrag/pkg/vector/inmemory"
	"github.com/clidram/medrag/pkg/watermark"
)

// staticSource serves a fixed record set for every kind it knows.
type staticSource struct {
	records map[string][]connector.Record
}

func (s *staticSource) FetchAll(_ context.Context, kind string, _ connector.Domain, _, _ int) ([]connector.Record, error) {
	return s.records[kind], nil
}

func (s *staticSource) FetchUnsynced(_ context.Context, kind string, _ int) ([]connector.Record, error) {
	return s.records[kind], nil
}

func (s *staticSource) MarkSynced(_ context.Context, _ string, ids []int64) (int, error) {
	return len(ids), nil
}

func newTestServer(t *testing.T, gen *testutils.MockGenerator) (*Server, *inmemory.Driver) {
	t.Helper()

	logger := zap.NewNop()
	store := inmemory.NewDriver(logger)
	embedder := testutils.NewMockEmbedder()

	engine, err := rag.NewEngine(&rag.Config{
		Embedder:  embedder,
		Store:     store,
		Generator: gen,
		Sessions:  session.NewStore(time.Minute),
	})
	if err != nil {
		t.Fatal(err)
	}

	source := &staticSource{records: map[string][]connector.Record{
		"disease": {
			{"id": int64(1), "code": "J45", "name": "Asthma", "long_name": "Asthma, unspecified"},
		},
	}}
	pipeline, err := etl.NewPipeline(&etl.Config{
		Source:     source,
		Embedder:   embedder,
		Store:      store,
		Watermarks: watermark.NewMemoryStore(),
		Logger:     logger,
	})
	if err != nil {
		t.Fatal(err)
	}

	server, err := NewServer(Config{ListenAddr: ":0"}, Options{
		Engine:    engine,
		Pipeline:  pipeline,
		Generator: gen,
	}, logger)
	if err != nil {
		t.Fatal(err)
	}
	return server, store
}

func seedStore(t *testing.T, store *inmemory.Driver) {
	t.Helper()

	err := store.Upsert(context.Background(), []vector.Chunk{{
		SourceKind: "prescription",
		SourceID:   1,
		Content:    "Prescription RX-001 for Alice Wong. Medications Prescribed: Salbutamol.",
		Metadata:   map[string]any{"patient_seq": "PAT-001"},
		Embedding:  []float32{1, 0, 0, 0},
	}})
	if err != nil {
		t.Fatal(err)
	}
}

func doJSON(t *testing.T, server *Server, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := server.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("invalid JSON response: %s", raw)
		}
	}
	return resp, decoded
}

func TestPing(t *testing.T) {
	server, _ := newTestServer(t, testutils.NewMockGenerator("ok"))

	resp, body := doJSON(t, server, http.MethodGet, "/ping", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestQueryEndpoint(t *testing.T) {
	gen := testutils.NewMockGenerator("Alice takes Salbutamol.")
	server, store := newTestServer(t, gen)
	seedStore(t, store)

	resp, body := doJSON(t, server, http.MethodPost, "/v1/rag/query", map[string]any{
		"prompt": "What does Alice take?",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["response"] != "Alice takes Salbutamol." {
		t.Fatalf("response = %v", body["response"])
	}
	sources, ok := body["sources"].([]any)
	if !ok || len(sources) != 1 {
		t.Fatalf("sources = %v", body["sources"])
	}
}

func TestQueryEndpointEmptyPrompt(t *testing.T) {
	server, _ := newTestServer(t, testutils.NewMockGenerator("unused"))

	resp, body := doJSON(t, server, http.MethodPost, "/v1/rag/query", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["error"] != "prompt is required" {
		t.Fatalf("body = %v", body)
	}
}

func TestChatEndpointThreadsSession(t *testing.T) {
	gen := testutils.NewMockGenerator("first answer")
	server, store := newTestServer(t, gen)
	seedStore(t, store)

	resp, body := doJSON(t, server, http.MethodPost, "/v1/rag/chat", map[string]any{
		"prompt":     "hello",
		"session_id": "s1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	metadata := body["metadata"].(map[string]any)
	if metadata["session_id"] != "s1" {
		t.Fatalf("session_id = %v", metadata["session_id"])
	}
	if metadata["message_count"] != float64(1) {
		t.Fatalf("message_count = %v", metadata["message_count"])
	}

	_, second := doJSON(t, server, http.MethodPost, "/v1/rag/chat", map[string]any{
		"prompt":     "again",
		"session_id": "s1",
	})
	metadata = second["metadata"].(map[string]any)
	if metadata["message_count"] != float64(2) {
		t.Fatalf("message_count = %v", metadata["message_count"])
	}
	if metadata["context_preserved"] != true {
		t.Fatal("context_preserved should be true on the second turn")
	}
}

func TestChatEndpointResetWithoutPrompt(t *testing.T) {
	server, _ := newTestServer(t, testutils.NewMockGenerator("unused"))

	resp, body := doJSON(t, server, http.MethodPost, "/v1/rag/chat", map[string]any{
		"session_id": "s1",
		"reset":      true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["response"] != "Conversation history cleared successfully." {
		t.Fatalf("response = %v", body["response"])
	}
}

func TestChatEndpointEmptyPromptWithoutReset(t *testing.T) {
	server, _ := newTestServer(t, testutils.NewMockGenerator("unused"))

	resp, _ := doJSON(t, server, http.MethodPost, "/v1/rag/chat", map[string]any{
		"session_id": "s1",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestRecordsEndpoint(t *testing.T) {
	server, store := newTestServer(t, testutils.NewMockGenerator("unused"))
	seedStore(t, store)

	resp, body := doJSON(t, server, http.MethodGet, "/v1/rag/records?patient_seq=PAT-001", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["count"] != float64(1) {
		t.Fatalf("count = %v", body["count"])
	}
}

func TestIndexEndpointInline(t *testing.T) {
	server, store := newTestServer(t, testutils.NewMockGenerator("unused"))

	resp, body := doJSON(t, server, http.MethodPost, "/v1/etl/index", map[string]any{
		"models": []string{"disease"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["records_indexed"] != float64(1) {
		t.Fatalf("records_indexed = %v", body["records_indexed"])
	}

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 1 {
		t.Fatalf("store total = %d", stats.Total)
	}
}

func TestIndexStatusEndpoint(t *testing.T) {
	server, _ := newTestServer(t, testutils.NewMockGenerator("unused"))

	doJSON(t, server, http.MethodPost, "/v1/etl/index", map[string]any{"models": []string{"disease"}})

	resp, body := doJSON(t, server, http.MethodGet, "/v1/etl/index-status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if _, ok := body["store"]; !ok {
		t.Fatalf("missing store stats: %v", body)
	}
	marks, ok := body["watermarks"].([]any)
	if !ok || len(marks) != 1 {
		t.Fatalf("watermarks = %v", body["watermarks"])
	}
}

func TestSetAPIKeyEndpoint(t *testing.T) {
	gen := testutils.NewMockGenerator("unused")
	server, _ := newTestServer(t, gen)

	resp, body := doJSON(t, server, http.MethodPost, "/v1/config/api-key", map[string]any{
		"api_key": "new-key",
		"model":   "gemini-1.5-pro",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["model"] != "gemini-1.5-pro" {
		t.Fatalf("model = %v", body["model"])
	}

	resp, _ = doJSON(t, server, http.MethodPost, "/v1/config/api-key", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d for empty key", resp.StatusCode)
	}
}

func TestConfigStatusEndpoint(t *testing.T) {
	server, _ := newTestServer(t, testutils.NewMockGenerator("unused"))

	resp, body := doJSON(t, server, http.MethodGet, "/v1/config/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["provider"] != "google" {
		t.Fatalf("provider = %v", body["provider"])
	}
	if body["model"] != "mock-model" {
		t.Fatalf("model = %v", body["model"])
	}
}

func TestListModelsEndpoint(t *testing.T) {
	server, _ := newTestServer(t, testutils.NewMockGenerator("unused"))

	resp, body := doJSON(t, server, http.MethodGet, "/v1/config/models", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	models, ok := body["models"].([]any)
	if !ok || len(models) != 1 {
		t.Fatalf("models = %v", body["models"])
	}
}
