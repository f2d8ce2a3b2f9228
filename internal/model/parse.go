package model

import "strings"

// ActionResult is the parsed outcome of an action cycle.
type ActionResult struct {
	// Summary is what the agent did and learned, ready to append to memory.
	Summary string
	// SearchQuery is a single web query the model requested, if any.
	SearchQuery string
	// Raw is the unmodified model response.
	Raw string
}

// ReflectionResult is the parsed outcome of a reflection cycle.
type ReflectionResult struct {
	// Insights is the condensed synthesis to fold into memory.
	Insights string
	// Raw is the unmodified model response.
	Raw string
}

// parseActionResponse turns the model's loosely structured text into an
// ActionResult. The contract is deliberately lenient: an "Outcome:" label
// selects the summary, but a response without labels is still usable as a
// whole. Only an empty response is malformed.
func parseActionResponse(raw string) (*ActionResult, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, &MalformedResponseError{Raw: raw}
	}

	result := &ActionResult{Raw: raw}

	var outcome []string
	inOutcome := false
	for _, line := range strings.Split(text, "\n") {
		stripped := stripDecoration(line)
		switch {
		case hasLabel(stripped, "Outcome:"):
			inOutcome = true
			if rest := labelValue(stripped, "Outcome:"); rest != "" {
				outcome = append(outcome, rest)
			}
		case hasLabel(stripped, "Search:"):
			inOutcome = false
			if result.SearchQuery == "" {
				result.SearchQuery = labelValue(stripped, "Search:")
			}
		case inOutcome:
			outcome = append(outcome, line)
		}
	}

	result.Summary = strings.TrimSpace(strings.Join(outcome, "\n"))
	if result.Summary == "" {
		// No labeled outcome: the whole response is the summary.
		result.Summary = text
	}
	return result, nil
}

// parseReflectionResponse validates and wraps a reflection response.
func parseReflectionResponse(raw string) (*ReflectionResult, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, &MalformedResponseError{Raw: raw}
	}
	return &ReflectionResult{Insights: text, Raw: raw}, nil
}

// stripDecoration removes markdown emphasis and heading markers so labels
// like "**Outcome:**" or "## Outcome:" still match.
func stripDecoration(line string) string {
	s := strings.TrimSpace(line)
	s = strings.TrimLeft(s, "#")
	s = strings.ReplaceAll(s, "**", "")
	return strings.TrimSpace(s)
}

func hasLabel(line, label string) bool {
	return len(line) >= len(label) && strings.EqualFold(line[:len(label)], label)
}

func labelValue(line, label string) string {
	return strings.TrimSpace(line[len(label):])
}
