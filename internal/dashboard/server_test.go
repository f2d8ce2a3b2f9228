package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/voslund/vigil/internal/memory"
	"github.com/voslund/vigil/internal/models"
	"github.com/voslund/vigil/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	dir := t.TempDir()

	s, err := store.New(filepath.Join(dir, "vigil.db"))
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	mem, err := memory.NewManager(memory.Config{
		Path:      filepath.Join(dir, "memory.md"),
		MaxTokens: 5000,
		Structure: []string{memory.SectionIdentity, memory.SectionRecentActions},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("memory.NewManager failed: %v", err)
	}
	if err := mem.Bootstrap("tester", "serve tests", time.Now()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	info := models.AgentInfo{
		Name:      "tester",
		Goal:      "serve tests",
		Model:     "stub-model",
		StartTime: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	srv := NewServer(s, mem, info, "127.0.0.1:0", []string{"*"}, zap.NewNop())
	return srv, s
}

func doGet(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode %q: %v", rec.Body.String(), err)
	}
}

func TestAgentInfoEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doGet(t, srv, "/api/agent-info")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var info models.AgentInfo
	decode(t, rec, &info)
	if info.Name != "tester" || info.Goal != "serve tests" || info.Model != "stub-model" {
		t.Errorf("Unexpected agent info: %+v", info)
	}
}

func TestMemoryEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doGet(t, srv, "/api/memory")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body map[string]string
	decode(t, rec, &body)
	if body["content"] == "" {
		t.Error("Memory content should not be empty after bootstrap")
	}
}

func TestLogsEndpoint(t *testing.T) {
	srv, s := newTestServer(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		s.AppendAt(models.LogTypeInfo, "entry", base.Add(time.Duration(i)*time.Second))
	}

	rec := doGet(t, srv, "/api/logs?limit=3")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var entries []models.LogEntry
	decode(t, rec, &entries)
	if len(entries) != 3 {
		t.Errorf("Expected 3 entries, got %d", len(entries))
	}
}

func TestLogsSinceEndpoint(t *testing.T) {
	srv, s := newTestServer(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.AppendAt(models.LogTypeInfo, "old", base)
	s.AppendAt(models.LogTypeInfo, "new", base.Add(time.Second))

	rec := doGet(t, srv, "/api/logs/since?timestamp="+base.Format(time.RFC3339Nano))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var entries []models.LogEntry
	decode(t, rec, &entries)
	if len(entries) != 1 || entries[0].Message != "new" {
		t.Errorf("Since must be strictly greater-than, got %+v", entries)
	}

	// Missing timestamp yields an empty array, not an error.
	rec = doGet(t, srv, "/api/logs/since")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for missing timestamp, got %d", rec.Code)
	}
	decode(t, rec, &entries)
	if len(entries) != 0 {
		t.Errorf("Expected empty array, got %+v", entries)
	}

	// Unparsable timestamp is a client error.
	rec = doGet(t, srv, "/api/logs/since?timestamp=yesterday")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad timestamp, got %d", rec.Code)
	}
}

func TestInteractionsEndpoints(t *testing.T) {
	srv, s := newTestServer(t)

	// Empty store: empty list and a null latest pair.
	rec := doGet(t, srv, "/api/interactions")
	var interactions []models.Interaction
	decode(t, rec, &interactions)
	if len(interactions) != 0 {
		t.Errorf("Expected no interactions, got %+v", interactions)
	}

	rec = doGet(t, srv, "/api/latest-interaction")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var latest map[string]interface{}
	decode(t, rec, &latest)
	if latest["prompt"] != nil || latest["response"] != nil {
		t.Errorf("Expected null prompt/response, got %+v", latest)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.AppendAt(models.LogTypePrompt, "p1", base)
	s.AppendAt(models.LogTypeResponse, "r1", base.Add(time.Second))

	rec = doGet(t, srv, "/api/interactions")
	decode(t, rec, &interactions)
	if len(interactions) != 1 || interactions[0].Prompt.Content != "p1" {
		t.Errorf("Expected one interaction, got %+v", interactions)
	}

	rec = doGet(t, srv, "/api/latest-interaction")
	var pair models.Interaction
	decode(t, rec, &pair)
	if pair.Response.Content != "r1" {
		t.Errorf("Expected latest response r1, got %+v", pair)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, s := newTestServer(t)

	rec := doGet(t, srv, "/health")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 from health check, got %d", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %+v", body)
	}

	// A dead database fails the health check.
	s.Close()
	rec = doGet(t, srv, "/health")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 with a closed store, got %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/agent-info", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Expected CORS origin echo, got %q", got)
	}

	// Requests without an Origin header get no CORS headers at all.
	req = httptest.NewRequest(http.MethodGet, "/api/agent-info", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if _, present := rec.Header()["Access-Control-Allow-Origin"]; present {
		t.Errorf("Origin-less request must not get an Allow-Origin header, got %q",
			rec.Header().Get("Access-Control-Allow-Origin"))
	}
}
