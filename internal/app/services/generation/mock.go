package generation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Raunak-cloud/pocket-dev/internal/app/domain/project"
)

// MockBackend is a deterministic Backend for tests and local development.
type MockBackend struct {
	mu        sync.Mutex
	Delay     time.Duration
	Stages    []string
	Result    Result
	Err       error
	Cancelled []string

	// Block, when set, is closed by the test to release Generate; it
	// simulates a slow remote backend.
	Block chan struct{}
}

var _ Backend = (*MockBackend)(nil)

// NewMockBackend returns a backend producing a minimal single-page app.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		Stages: []string{"analyzing prompt", "generating files", "running lint"},
		Result: Result{
			Files: []project.File{
				{Path: "index.html", Content: "<html><body>generated</body></html>"},
			},
			Dependencies: map[string]string{},
			LintReport:   "clean",
		},
	}
}

// Generate streams the configured stages and returns the configured result.
func (m *MockBackend) Generate(ctx context.Context, _ Request, onProgress ProgressFunc) (Result, error) {
	for _, stage := range m.Stages {
		if onProgress != nil {
			onProgress(stage)
		}
		if m.Delay > 0 {
			select {
			case <-time.After(m.Delay):
			case <-ctx.Done():
				return Result{}, ctx.Err()
			}
		}
	}
	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if m.Err != nil {
		return Result{}, m.Err
	}
	res := m.Result
	if res.BackendJobID == "" {
		res.BackendJobID = uuid.New().String()
	}
	return res, nil
}

// Cancel records the cancel request.
func (m *MockBackend) Cancel(_ context.Context, backendJobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cancelled = append(m.Cancelled, backendJobID)
	return nil
}
