// Package memory maintains the agent's working memory document within its
// token budget while preserving continuity of the agent's reasoning.
package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds memory manager settings.
type Config struct {
	// Path is the on-disk location of the memory document.
	Path string
	// MaxTokens is the serialized size budget, in estimated tokens.
	MaxTokens int
	// Structure is the ordered, fixed set of section names.
	Structure []string
}

// Manager owns the single memory document. All mutations go through it and
// are persisted before they become visible to readers.
type Manager struct {
	mu        sync.RWMutex
	path      string
	budget    int
	structure []string
	logger    *zap.Logger

	doc *Document
}

// NewManager creates a Manager, reloading the document from disk if present.
func NewManager(cfg Config, logger *zap.Logger) (*Manager, error) {
	if len(cfg.Structure) == 0 {
		return nil, fmt.Errorf("memory: structure must not be empty")
	}
	if cfg.MaxTokens <= 0 {
		return nil, fmt.Errorf("memory: max_tokens must be > 0")
	}

	m := &Manager{
		path:      cfg.Path,
		budget:    cfg.MaxTokens,
		structure: cfg.Structure,
		logger:    logger,
	}

	data, err := os.ReadFile(cfg.Path)
	if err == nil && len(strings.TrimSpace(string(data))) > 0 {
		m.doc = ParseDocument(string(data), cfg.Structure)
		logger.Info("memory reloaded from disk",
			zap.String("path", cfg.Path),
			zap.Int("tokens", EstimateTokens(m.doc.Markdown())))
	} else if err != nil && !os.IsNotExist(err) {
		return nil, &PersistenceError{Op: "read", Err: err}
	}

	return m, nil
}

// Bootstrapped reports whether a document exists yet.
func (m *Manager) Bootstrapped() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.doc != nil
}

// Bootstrap seeds a fresh document with the agent's identity and an initial
// plan, then persists it. It is a no-op when a document already exists.
func (m *Manager) Bootstrap(name, goal string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc != nil {
		return nil
	}

	doc := NewDocument(name+" - Working Memory", m.structure)
	if sec := doc.Section(SectionIdentity); sec != nil {
		sec.Body = fmt.Sprintf("- Name: %s\n- Goal: %s\n- Created: %s",
			name, goal, now.Format("2006-01-02 15:04:05"))
	}
	if sec := doc.Section(SectionProgressSummary); sec != nil {
		sec.Body = "Just beginning. No actions taken toward the goal yet."
	}
	if sec := doc.Section(SectionNextSteps); sec != nil {
		sec.Body = "1. Assess current capabilities\n" +
			"2. Develop a strategy for the goal\n" +
			"3. Begin executing the first step of the plan"
	}

	if err := m.persist(doc); err != nil {
		return err
	}
	m.doc = doc
	m.logger.Info("memory bootstrapped", zap.String("path", m.path))
	return nil
}

// Read returns a snapshot of the current in-memory document for prompt
// construction. It never touches disk.
func (m *Manager) Read() *Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.doc == nil {
		return NewDocument("", m.structure)
	}
	return m.doc.Clone()
}

// Markdown returns the serialized current document.
func (m *Manager) Markdown() string {
	return m.Read().Markdown()
}

// Append adds a timestamped entry to the named section, compacts if the
// budget is exceeded, and persists. The in-memory document is only replaced
// once the write is durable, so a persistence failure leaves no unpersisted
// in-memory-only change behind.
func (m *Manager) Append(section, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.validSection(section) {
		return &InvalidSectionError{Section: section}
	}
	if m.doc == nil {
		return fmt.Errorf("memory: document not bootstrapped")
	}

	work := m.doc.Clone()
	sec := work.Section(section)
	if sec == nil {
		return &InvalidSectionError{Section: section}
	}
	sec.Body = appendEntry(sec.Body, text, time.Now().UTC())

	work = compactDocument(work, m.budget)

	if err := m.persist(work); err != nil {
		return err
	}
	m.doc = work
	return nil
}

// Compact shrinks the document to the configured budget and persists the
// result. Running it on an already-compacted document changes nothing.
func (m *Manager) Compact() error {
	return m.CompactTo(m.budget)
}

// CompactTo compacts against an explicit budget.
func (m *Manager) CompactTo(budget int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return nil
	}

	work := compactDocument(m.doc.Clone(), budget)
	if work.Markdown() == m.doc.Markdown() {
		return nil
	}
	if err := m.persist(work); err != nil {
		return err
	}
	m.doc = work
	return nil
}

// Flush re-persists the current document. Called on shutdown so no pending
// state is lost.
func (m *Manager) Flush() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.doc == nil {
		return nil
	}
	return m.persist(m.doc)
}

func (m *Manager) validSection(name string) bool {
	for _, s := range m.structure {
		if s == name {
			return true
		}
	}
	return false
}

// persist writes the document atomically: temp file in the same directory,
// then rename.
func (m *Manager) persist(doc *Document) error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &PersistenceError{Op: "mkdir", Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".memory-*.md")
	if err != nil {
		return &PersistenceError{Op: "create", Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(doc.Markdown()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistenceError{Op: "write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Op: "close", Err: err}
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Op: "rename", Err: err}
	}
	return nil
}

// compactDocument shrinks doc until it fits the budget, in fixed priority
// order: oldest Recent Actions entries are folded into a running digest on
// Progress Summary, then Insights is deduplicated and trimmed oldest-first,
// then the Progress Summary digest itself is trimmed oldest-first. Identity
// and Next Steps are never touched. The whole procedure is deterministic and
// does nothing once the document fits, which makes it idempotent.
func compactDocument(doc *Document, budget int) *Document {
	size := func() int { return EstimateTokens(doc.Markdown()) }
	if size() <= budget {
		return doc
	}

	// Fold oldest action entries into the progress digest, always keeping the
	// most recent entry in place.
	actions := doc.Section(SectionRecentActions)
	progress := doc.Section(SectionProgressSummary)
	if actions != nil && progress != nil {
		entries := splitEntries(actions.Body)
		for size() > budget && len(entries) > 1 {
			digest := "- " + condenseEntry(entries[0])
			if strings.TrimSpace(progress.Body) == "" {
				progress.Body = digest
			} else {
				progress.Body = strings.TrimSpace(progress.Body) + "\n" + digest
			}
			entries = entries[1:]
			actions.Body = joinEntries(entries)
		}
	}

	// Deduplicate insights, preserving first occurrence order.
	if insights := doc.Section(SectionInsights); insights != nil {
		insights.Body = dedupeLines(insights.Body)
		lines := nonEmptyLines(insights.Body)
		for size() > budget && len(lines) > 1 {
			lines = lines[1:]
			insights.Body = strings.Join(lines, "\n")
		}
	}

	// Last resort: age out the oldest digest lines.
	if progress != nil {
		lines := nonEmptyLines(progress.Body)
		for size() > budget && len(lines) > 1 {
			lines = lines[1:]
			progress.Body = strings.Join(lines, "\n")
		}
	}

	return doc
}

// condenseEntry reduces an entry to its first line, capped in length.
func condenseEntry(entry string) string {
	line := entry
	if i := strings.IndexByte(entry, '\n'); i >= 0 {
		line = entry[:i]
	}
	line = strings.TrimSpace(line)
	const maxLen = 160
	if len(line) > maxLen {
		line = line[:maxLen-3] + "..."
	}
	return line
}

func dedupeLines(body string) string {
	seen := make(map[string]bool)
	var out []string
	for _, line := range strings.Split(body, "\n") {
		key := strings.TrimSpace(line)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func nonEmptyLines(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
