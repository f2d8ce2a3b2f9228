package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voslund/vigil/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "vigil.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "vigil.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestAppendAndQueryOrder(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	messages := []string{"first", "second", "third"}
	for i, msg := range messages {
		if _, err := s.AppendAt(models.LogTypeInfo, msg, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("AppendAt failed: %v", err)
		}
	}

	entries, err := s.Query(QueryOpts{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	for i, msg := range messages {
		if entries[i].Message != msg {
			t.Errorf("Entry %d: expected %q, got %q", i, msg, entries[i].Message)
		}
	}
	if entries[0].ID == "" {
		t.Error("Entry ID should not be empty")
	}
}

func TestQuerySinceStrictlyGreater(t *testing.T) {
	s := newTestStore(t)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := s.AppendAt(models.LogTypeInfo, "at boundary", ts); err != nil {
		t.Fatalf("AppendAt failed: %v", err)
	}
	if _, err := s.AppendAt(models.LogTypeInfo, "after boundary", ts.Add(time.Nanosecond)); err != nil {
		t.Fatalf("AppendAt failed: %v", err)
	}

	entries, err := s.Query(QueryOpts{Since: ts})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry strictly after boundary, got %d", len(entries))
	}
	if entries[0].Message != "after boundary" {
		t.Errorf("Expected 'after boundary', got %q", entries[0].Message)
	}

	// Polling from the last seen timestamp must return nothing new.
	entries, err = s.Query(QueryOpts{Since: entries[0].Timestamp})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no entries, got %d", len(entries))
	}
}

func TestQuerySinceSharedSecond(t *testing.T) {
	s := newTestStore(t)

	// Several entries inside the same wall-clock second must still be
	// separable by a since-query.
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Millisecond)
		if _, err := s.AppendAt(models.LogTypeInfo, "entry", ts); err != nil {
			t.Fatalf("AppendAt failed: %v", err)
		}
	}

	entries, err := s.Query(QueryOpts{Since: base.Add(2 * time.Millisecond)})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected 2 entries, got %d", len(entries))
	}
}

func TestQueryTypeAndLimit(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		s.AppendAt(models.LogTypeInfo, "info", base.Add(time.Duration(2*i)*time.Second))
		s.AppendAt(models.LogTypeAction, "action", base.Add(time.Duration(2*i+1)*time.Second))
	}

	entries, err := s.Query(QueryOpts{Type: models.LogTypeAction})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("Expected 4 action entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Type != models.LogTypeAction {
			t.Errorf("Expected action type, got %s", e.Type)
		}
	}

	// Limit without Since keeps the newest entries, still in ascending order.
	entries, err = s.Query(QueryOpts{Limit: 3})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if !entries[0].Timestamp.Before(entries[2].Timestamp) {
		t.Error("Limited entries should be in ascending timestamp order")
	}
	if entries[2].Timestamp != base.Add(7*time.Second) {
		t.Errorf("Expected newest entry last, got %v", entries[2].Timestamp)
	}
}

func TestInteractionsPairing(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.AppendAt(models.LogTypePrompt, "prompt 1", base)
	s.AppendAt(models.LogTypeResponse, "response 1", base.Add(time.Second))
	s.AppendAt(models.LogTypeInfo, "noise", base.Add(2*time.Second))
	s.AppendAt(models.LogTypePrompt, "prompt 2", base.Add(3*time.Second))
	s.AppendAt(models.LogTypeResponse, "response 2", base.Add(4*time.Second))
	// Prompt with no response yet.
	s.AppendAt(models.LogTypePrompt, "dangling", base.Add(5*time.Second))

	interactions, err := s.Interactions(0)
	if err != nil {
		t.Fatalf("Interactions failed: %v", err)
	}
	if len(interactions) != 2 {
		t.Fatalf("Expected 2 interactions, got %d", len(interactions))
	}
	if interactions[0].Prompt.Content != "prompt 1" || interactions[0].Response.Content != "response 1" {
		t.Errorf("First pair mismatched: %+v", interactions[0])
	}
	if interactions[1].Prompt.Content != "prompt 2" || interactions[1].Response.Content != "response 2" {
		t.Errorf("Second pair mismatched: %+v", interactions[1])
	}

	interactions, err = s.Interactions(1)
	if err != nil {
		t.Fatalf("Interactions failed: %v", err)
	}
	if len(interactions) != 1 || interactions[0].Prompt.Content != "prompt 2" {
		t.Errorf("Expected only the newest pair, got %+v", interactions)
	}
}

func TestLatestInteraction(t *testing.T) {
	s := newTestStore(t)

	last, err := s.LatestInteraction()
	if err != nil {
		t.Fatalf("LatestInteraction failed: %v", err)
	}
	if last != nil {
		t.Errorf("Expected nil on empty store, got %+v", last)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.AppendAt(models.LogTypePrompt, "p", base)
	s.AppendAt(models.LogTypeResponse, "r", base.Add(time.Second))

	last, err = s.LatestInteraction()
	if err != nil {
		t.Fatalf("LatestInteraction failed: %v", err)
	}
	if last == nil || last.Response.Content != "r" {
		t.Errorf("Expected latest pair, got %+v", last)
	}
}

func TestScheduleStateRoundTrip(t *testing.T) {
	s := newTestStore(t)

	st, err := s.LoadScheduleState()
	if err != nil {
		t.Fatalf("LoadScheduleState failed: %v", err)
	}
	if !st.LastActionTime.IsZero() || !st.LastReflectionTime.IsZero() {
		t.Errorf("Expected zero state on fresh store, got %+v", st)
	}

	want := models.ScheduleState{
		LastActionTime:     time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC),
		LastReflectionTime: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	}
	if err := s.SaveScheduleState(want); err != nil {
		t.Fatalf("SaveScheduleState failed: %v", err)
	}

	got, err := s.LoadScheduleState()
	if err != nil {
		t.Fatalf("LoadScheduleState failed: %v", err)
	}
	if !got.LastActionTime.Equal(want.LastActionTime) {
		t.Errorf("LastActionTime: expected %v, got %v", want.LastActionTime, got.LastActionTime)
	}
	if !got.LastReflectionTime.Equal(want.LastReflectionTime) {
		t.Errorf("LastReflectionTime: expected %v, got %v", want.LastReflectionTime, got.LastReflectionTime)
	}
	if !got.LastFineTuneTime.IsZero() {
		t.Errorf("LastFineTuneTime: expected zero, got %v", got.LastFineTuneTime)
	}

	// Saving again replaces rather than duplicates.
	want.LastActionTime = want.LastActionTime.Add(time.Hour)
	if err := s.SaveScheduleState(want); err != nil {
		t.Fatalf("SaveScheduleState failed: %v", err)
	}
	got, err = s.LoadScheduleState()
	if err != nil {
		t.Fatalf("LoadScheduleState failed: %v", err)
	}
	if !got.LastActionTime.Equal(want.LastActionTime) {
		t.Errorf("Expected updated LastActionTime %v, got %v", want.LastActionTime, got.LastActionTime)
	}
}

func TestFindings(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.AddFinding("go news", "release notes"); err != nil {
		t.Fatalf("AddFinding failed: %v", err)
	}
	if _, err := s.AddFinding("weather", "sunny"); err != nil {
		t.Fatalf("AddFinding failed: %v", err)
	}

	findings, err := s.RecentFindings(10)
	if err != nil {
		t.Fatalf("RecentFindings failed: %v", err)
	}
	if len(findings) != 2 {
		t.Fatalf("Expected 2 findings, got %d", len(findings))
	}
	if findings[0].Query == "" || findings[0].Content == "" {
		t.Errorf("Finding fields should be populated: %+v", findings[0])
	}
}
