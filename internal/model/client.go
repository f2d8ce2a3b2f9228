// Package model wraps calls to the external language model: it builds
// prompts, enforces token bounds, parses structured responses, and classifies
// failures. It is the only package permitted to reach the model endpoint.
package model

import "context"

// Client is a provider-neutral completion client.
type Client interface {
	// Complete sends a system+user prompt and returns the raw completion
	// text. maxTokens caps the response size. Errors are classified into the
	// package taxonomy (TransientError, AuthError).
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
	// ModelID identifies the configured model for logging and the dashboard.
	ModelID() string
}

// Searcher is implemented by providers that can execute retrieval-augmented
// requests.
type Searcher interface {
	Search(ctx context.Context, query string, maxTokens int) (string, error)
}

// Tuner is implemented by providers that support fine-tuning jobs.
type Tuner interface {
	// UploadTrainingFile uploads JSONL training data and returns a file ID.
	UploadTrainingFile(ctx context.Context, data []byte) (string, error)
	// CreateFineTuneJob starts a fine-tuning job over an uploaded file and
	// returns the job ID.
	CreateFineTuneJob(ctx context.Context, fileID string) (string, error)
}
