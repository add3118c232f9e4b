// Package generation defines the contract with the natural-language-to-code
// backend and the intent gate in front of it.
package generation

import (
	"context"

	"github.com/Raunak-cloud/pocket-dev/internal/app/domain/project"
)

// Request describes one generation or edit run.
type Request struct {
	// JobID correlates the run for best-effort cancellation.
	JobID           string
	UserID          string
	ProjectID       string
	Prompt          string
	ExistingFiles   []project.File
	AuthOptions     []string
	DatabaseOptions []string
}

// Result is the backend's output for one run.
type Result struct {
	Files        []project.File
	Dependencies map[string]string
	LintReport   string
	BackendJobID string
}

// ProgressFunc consumes ordered incremental stage messages.
type ProgressFunc func(message string)

// Backend runs generation jobs remotely. Generate blocks until the backend
// finishes; Cancel is a best-effort request and the backend is not guaranteed
// to stop, so callers must discard any result that arrives after they decided
// to cancel.
type Backend interface {
	Generate(ctx context.Context, req Request, onProgress ProgressFunc) (Result, error)
	Cancel(ctx context.Context, backendJobID string) error
}

// Intents reports which priced integrations a free-text prompt implies.
type Intents struct {
	HasAuthIntent     bool `json:"has_auth_intent"`
	HasDatabaseIntent bool `json:"has_database_intent"`
}

// Classifier gates whether a free-text prompt may reach the backend
// unmodified or must be redirected to explicit option selection.
type Classifier interface {
	Classify(ctx context.Context, text string) (Intents, error)
}
