package memory

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zap.NewNop()
}

var testStructure = []string{
	SectionIdentity,
	SectionProgressSummary,
	SectionRecentActions,
	SectionNextSteps,
	SectionInsights,
}

func newTestManager(t *testing.T, maxTokens int) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Path:      filepath.Join(t.TempDir(), "memory.md"),
		MaxTokens: maxTokens,
		Structure: testStructure,
	}, testLogger(t))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func bootstrapped(t *testing.T, maxTokens int) *Manager {
	t.Helper()
	m := newTestManager(t, maxTokens)
	if err := m.Bootstrap("tester", "write tests", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	return m
}

func TestBootstrap(t *testing.T) {
	m := newTestManager(t, 5000)

	if m.Bootstrapped() {
		t.Error("Fresh manager should not be bootstrapped")
	}

	if err := m.Bootstrap("tester", "write tests", time.Now()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if !m.Bootstrapped() {
		t.Error("Manager should be bootstrapped")
	}

	md := m.Markdown()
	if !strings.Contains(md, "tester") || !strings.Contains(md, "write tests") {
		t.Errorf("Bootstrap document missing identity: %s", md)
	}
	for _, name := range testStructure {
		if !strings.Contains(md, "## "+name) {
			t.Errorf("Missing section %q in:\n%s", name, md)
		}
	}

	// Second bootstrap is a no-op.
	if err := m.Bootstrap("other", "other goal", time.Now()); err != nil {
		t.Fatalf("Repeated Bootstrap failed: %v", err)
	}
	if strings.Contains(m.Markdown(), "other goal") {
		t.Error("Repeated Bootstrap should not overwrite the document")
	}
}

func TestAppendAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.md")

	m, err := NewManager(Config{Path: path, MaxTokens: 5000, Structure: testStructure}, testLogger(t))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := m.Bootstrap("tester", "write tests", time.Now()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	if err := m.Append(SectionRecentActions, "researched Go testing patterns"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := m.Append(SectionInsights, "table tests beat copy-paste"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// A second manager on the same path sees the persisted document.
	m2, err := NewManager(Config{Path: path, MaxTokens: 5000, Structure: testStructure}, testLogger(t))
	if err != nil {
		t.Fatalf("NewManager reload failed: %v", err)
	}
	if !m2.Bootstrapped() {
		t.Fatal("Reloaded manager should be bootstrapped")
	}
	md := m2.Markdown()
	if !strings.Contains(md, "researched Go testing patterns") {
		t.Errorf("Reloaded document missing action entry:\n%s", md)
	}
	if !strings.Contains(md, "table tests beat copy-paste") {
		t.Errorf("Reloaded document missing insight:\n%s", md)
	}
}

func TestAppendInvalidSection(t *testing.T) {
	m := bootstrapped(t, 5000)

	before := m.Markdown()
	err := m.Append("Secret Plans", "should be rejected")
	var invalidErr *InvalidSectionError
	if !errors.As(err, &invalidErr) {
		t.Fatalf("Expected InvalidSectionError, got %v", err)
	}
	if invalidErr.Section != "Secret Plans" {
		t.Errorf("Expected section name in error, got %q", invalidErr.Section)
	}
	if m.Markdown() != before {
		t.Error("Failed append must not change the document")
	}
}

func TestAppendTimestampsEntries(t *testing.T) {
	m := bootstrapped(t, 5000)

	if err := m.Append(SectionRecentActions, "did a thing"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	body := m.Read().Section(SectionRecentActions).Body
	if !strings.HasPrefix(body, "[") || !strings.Contains(body, "] did a thing") {
		t.Errorf("Entry should carry a timestamp prefix, got %q", body)
	}
}

func TestCompactionFoldsOldActions(t *testing.T) {
	m := bootstrapped(t, 5000)

	// Fill Recent Actions well past a small budget.
	for i := 0; i < 20; i++ {
		entry := strings.Repeat("x", 100) + " action number " + string(rune('a'+i))
		if err := m.Append(SectionRecentActions, entry); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	if err := m.CompactTo(300); err != nil {
		t.Fatalf("CompactTo failed: %v", err)
	}

	doc := m.Read()
	if EstimateTokens(doc.Markdown()) > 300 {
		t.Errorf("Document still over budget: %d tokens", EstimateTokens(doc.Markdown()))
	}

	// The newest action entry survives in place.
	actions := doc.Section(SectionRecentActions).Body
	if !strings.Contains(actions, "action number "+string(rune('a'+19))) {
		t.Errorf("Newest action entry should survive compaction, got %q", actions)
	}
	if len(splitEntries(actions)) != 1 {
		t.Errorf("Expected only the newest action entry, got %d", len(splitEntries(actions)))
	}

	// Identity and Next Steps are untouched.
	if !strings.Contains(doc.Section(SectionIdentity).Body, "write tests") {
		t.Error("Identity section must never be compacted")
	}
	if !strings.Contains(doc.Section(SectionNextSteps).Body, "strategy") {
		t.Error("Next Steps section must never be compacted")
	}
}

func TestCompactionIdempotent(t *testing.T) {
	m := bootstrapped(t, 5000)
	for i := 0; i < 10; i++ {
		m.Append(SectionRecentActions, strings.Repeat("y", 80))
		m.Append(SectionInsights, "insight "+strings.Repeat("z", 40)+string(rune('a'+i)))
	}

	if err := m.CompactTo(250); err != nil {
		t.Fatalf("CompactTo failed: %v", err)
	}
	first := m.Markdown()

	if err := m.CompactTo(250); err != nil {
		t.Fatalf("Second CompactTo failed: %v", err)
	}
	if m.Markdown() != first {
		t.Error("Compacting an already-compacted document must change nothing")
	}
}

func TestCompactionDedupesInsights(t *testing.T) {
	m := bootstrapped(t, 5000)

	for i := 0; i < 3; i++ {
		if err := m.Append(SectionInsights, "keep interfaces small"); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	// Force compaction to trigger the dedupe phase.
	if err := m.CompactTo(80); err != nil {
		t.Fatalf("CompactTo failed: %v", err)
	}
	body := m.Read().Section(SectionInsights).Body
	if strings.Count(body, "keep interfaces small") > 1 {
		t.Errorf("Duplicate insights should collapse, got %q", body)
	}
}

func TestCompactUnderBudgetIsNoop(t *testing.T) {
	m := bootstrapped(t, 5000)
	m.Append(SectionRecentActions, "small entry")
	before := m.Markdown()

	if err := m.Compact(); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}
	if m.Markdown() != before {
		t.Error("Compaction under budget must be a no-op")
	}
}

func TestPersistFailureRollsBack(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mem")
	m, err := NewManager(Config{
		Path:      filepath.Join(dir, "memory.md"),
		MaxTokens: 5000,
		Structure: testStructure,
	}, testLogger(t))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := m.Bootstrap("tester", "write tests", time.Now()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	before := m.Markdown()

	// Replace the memory directory with a regular file so the write fails.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}
	if err := os.WriteFile(dir, []byte("in the way"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	err = m.Append(SectionRecentActions, "must not stick")
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected PersistenceError, got %v", err)
	}
	if m.Markdown() != before {
		t.Error("In-memory document must roll back on persistence failure")
	}
}

func TestParseDocumentRoundTrip(t *testing.T) {
	doc := NewDocument("tester - Working Memory", testStructure)
	doc.Section(SectionIdentity).Body = "- Name: tester"
	doc.Section(SectionInsights).Body = "line one\nline two"

	parsed := ParseDocument(doc.Markdown(), testStructure)
	if parsed.Title != doc.Title {
		t.Errorf("Title: expected %q, got %q", doc.Title, parsed.Title)
	}
	if parsed.Section(SectionIdentity).Body != "- Name: tester" {
		t.Errorf("Identity body mismatch: %q", parsed.Section(SectionIdentity).Body)
	}
	if parsed.Section(SectionInsights).Body != "line one\nline two" {
		t.Errorf("Insights body mismatch: %q", parsed.Section(SectionInsights).Body)
	}
	if parsed.Section(SectionRecentActions).Body != "" {
		t.Errorf("Empty section should parse empty, got %q", parsed.Section(SectionRecentActions).Body)
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, c := range cases {
		if got := EstimateTokens(c.in); got != c.want {
			t.Errorf("EstimateTokens(%d bytes): expected %d, got %d", len(c.in), c.want, got)
		}
	}
}
