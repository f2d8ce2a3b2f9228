// Package models defines the core domain types for vigil.
package models

import "time"

// LogType classifies an entry in the event log.
type LogType string

const (
	LogTypeInfo       LogType = "info"
	LogTypeAction     LogType = "action"
	LogTypeReflection LogType = "reflection"
	LogTypePrompt     LogType = "prompt"
	LogTypeResponse   LogType = "response"
	LogTypeError      LogType = "error"
)

// LogEntry is one immutable, timestamped observable event. Entries are only
// ever appended; ordering equals timestamp order.
type LogEntry struct {
	ID        string    `json:"id"`
	Type      LogType   `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Message is one side of a model exchange.
type Message struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Interaction is a prompt/response pair reconstructed from the log by pairing
// each prompt entry with the next response entry.
type Interaction struct {
	Prompt   Message `json:"prompt"`
	Response Message `json:"response"`
}

// ScheduleState gates the agent's cycles. It is mutated only by the scheduler
// after a cycle completes, and persisted no earlier than the cycle's log
// entries so a crash never silently skips a cycle.
type ScheduleState struct {
	LastActionTime     time.Time `json:"last_action_time"`
	LastReflectionTime time.Time `json:"last_reflection_time"`
	LastFineTuneTime   time.Time `json:"last_fine_tune_time"`
}

// AgentInfo describes the running agent for the dashboard.
type AgentInfo struct {
	Name      string    `json:"name"`
	Goal      string    `json:"goal"`
	Model     string    `json:"model"`
	StartTime time.Time `json:"startTime"`
}

// Finding is a piece of raw material returned by a web search, kept for later
// cycles to build on.
type Finding struct {
	ID           string    `json:"id"`
	Query        string    `json:"query"`
	Content      string    `json:"content"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// FineTuneExample is one stored prompt/response pair in the provider's
// chat-message training format.
type FineTuneExample struct {
	Messages  []ChatMessage `json:"messages"`
	Timestamp time.Time     `json:"timestamp"`
}

// ChatMessage is a single role-tagged message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
