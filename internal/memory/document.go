package memory

import (
	"fmt"
	"strings"
	"time"
)

// Canonical section names. The configured structure may add more, but the
// compaction policy only knows how to act on these.
const (
	SectionIdentity        = "Identity and Goal"
	SectionProgressSummary = "Progress Summary"
	SectionRecentActions   = "Recent Actions"
	SectionNextSteps       = "Next Steps"
	SectionInsights        = "Insights"
)

// entrySeparator delimits appended entries inside a section body.
const entrySeparator = "\n\n"

// Document is the agent's working memory: an ordered set of named sections
// holding free text. It is mutated exclusively by the Manager.
type Document struct {
	Title    string
	Sections []Section
}

// Section is one named block of the memory document.
type Section struct {
	Name string
	Body string
}

// NewDocument creates an empty document with the given section structure.
func NewDocument(title string, structure []string) *Document {
	sections := make([]Section, len(structure))
	for i, name := range structure {
		sections[i] = Section{Name: name}
	}
	return &Document{Title: title, Sections: sections}
}

// Clone returns a deep copy so readers never observe in-flight mutations.
func (d *Document) Clone() *Document {
	dup := &Document{Title: d.Title, Sections: make([]Section, len(d.Sections))}
	copy(dup.Sections, d.Sections)
	return dup
}

// Section returns a pointer to the named section, or nil if absent.
func (d *Document) Section(name string) *Section {
	for i := range d.Sections {
		if d.Sections[i].Name == name {
			return &d.Sections[i]
		}
	}
	return nil
}

// Markdown serializes the document in the on-disk and prompt format.
func (d *Document) Markdown() string {
	var b strings.Builder
	if d.Title != "" {
		b.WriteString("# " + d.Title + "\n")
	}
	for _, sec := range d.Sections {
		b.WriteString("\n## " + sec.Name + "\n")
		body := strings.TrimSpace(sec.Body)
		if body != "" {
			b.WriteString(body + "\n")
		}
	}
	return b.String()
}

// ParseDocument reads a serialized document back into the configured
// structure. Sections present on disk but absent from the structure are
// dropped; configured sections missing from the data come back empty.
func ParseDocument(data string, structure []string) *Document {
	title := ""
	bodies := make(map[string]string)

	current := ""
	var buf []string
	flush := func() {
		if current != "" {
			bodies[current] = strings.TrimSpace(strings.Join(buf, "\n"))
		}
		buf = buf[:0]
	}

	for _, line := range strings.Split(data, "\n") {
		switch {
		case strings.HasPrefix(line, "## "):
			flush()
			current = strings.TrimSpace(strings.TrimPrefix(line, "## "))
		case strings.HasPrefix(line, "# ") && title == "":
			title = strings.TrimSpace(strings.TrimPrefix(line, "# "))
		default:
			buf = append(buf, line)
		}
	}
	flush()

	doc := NewDocument(title, structure)
	for i := range doc.Sections {
		doc.Sections[i].Body = bodies[doc.Sections[i].Name]
	}
	return doc
}

// appendEntry adds a timestamped entry to a section body.
func appendEntry(body, text string, at time.Time) string {
	entry := fmt.Sprintf("[%s] %s", at.Format("2006-01-02 15:04:05"), strings.TrimSpace(text))
	if strings.TrimSpace(body) == "" {
		return entry
	}
	return strings.TrimSpace(body) + entrySeparator + entry
}

// splitEntries breaks a section body into its appended entries.
func splitEntries(body string) []string {
	var entries []string
	for _, part := range strings.Split(body, entrySeparator) {
		if s := strings.TrimSpace(part); s != "" {
			entries = append(entries, s)
		}
	}
	return entries
}

func joinEntries(entries []string) string {
	return strings.Join(entries, entrySeparator)
}

// EstimateTokens is the deterministic token proxy used against the budget:
// one token per four bytes, rounded up. It over-estimates rather than
// under-estimates for typical English text, so a document that fits the
// budget also fits the model's context.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}
