// Package gemini implements the generation backend on the Gemini API.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/Raunak-cloud/pocket-dev/internal/app/services/generation"
	"github.com/Raunak-cloud/pocket-dev/pkg/logger"
)

// Backend generates application source with a Gemini model. The Gemini API
// exposes no remote cancel, so Cancel only records the request; the caller's
// merge boundary discards late results.
type Backend struct {
	client *genai.Client
	model  *genai.GenerativeModel
	log    *logger.Logger

	mu        sync.Mutex
	cancelled map[string]struct{}
}

var _ generation.Backend = (*Backend)(nil)

// New constructs a Gemini-backed generation backend.
func New(ctx context.Context, apiKey, modelName string, log *logger.Logger) (*Backend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if log == nil {
		log = logger.NewDefault("gemini")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"
	return &Backend{
		client:    client,
		model:     model,
		log:       log,
		cancelled: make(map[string]struct{}),
	}, nil
}

// Close releases the underlying client.
func (b *Backend) Close() error {
	return b.client.Close()
}

// Generate builds the prompt, runs the model and parses the JSON response.
func (b *Backend) Generate(ctx context.Context, req generation.Request, onProgress generation.ProgressFunc) (generation.Result, error) {
	backendJobID := req.JobID
	if backendJobID == "" {
		backendJobID = uuid.New().String()
	}
	progress := func(msg string) {
		if onProgress != nil {
			onProgress(msg)
		}
	}

	progress("analyzing prompt")
	prompt := buildPrompt(req)

	progress("generating files")
	resp, err := b.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return generation.Result{}, fmt.Errorf("generate content: %w", err)
	}

	progress("parsing response")
	result, err := parseResult(responseText(resp))
	if err != nil {
		return generation.Result{}, err
	}
	result.BackendJobID = backendJobID

	if b.isCancelled(backendJobID) {
		b.log.Infof("backend job %s finished after cancel; result will be discarded by caller", backendJobID)
	}
	progress("generation complete")
	return result, nil
}

// Cancel records the request. Best effort only.
func (b *Backend) Cancel(_ context.Context, backendJobID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled[backendJobID] = struct{}{}
	return nil
}

func (b *Backend) isCancelled(backendJobID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.cancelled[backendJobID]
	return ok
}

func buildPrompt(req generation.Request) string {
	var sb strings.Builder
	sb.WriteString("You generate complete web application source code.\n")
	sb.WriteString("Respond with a single JSON object of the form:\n")
	sb.WriteString(`{"files":[{"path":"...","content":"..."}],"dependencies":{"name":"version"},"lint_report":"..."}`)
	sb.WriteString("\n\nRequest:\n")
	sb.WriteString(req.Prompt)
	if len(req.AuthOptions) > 0 {
		fmt.Fprintf(&sb, "\n\nAuthentication options to integrate: %s", strings.Join(req.AuthOptions, ", "))
	}
	if len(req.DatabaseOptions) > 0 {
		fmt.Fprintf(&sb, "\nDatabase options to integrate: %s", strings.Join(req.DatabaseOptions, ", "))
	}
	if len(req.ExistingFiles) > 0 {
		sb.WriteString("\n\nThis is an edit of an existing project. Current files:\n")
		for _, f := range req.ExistingFiles {
			fmt.Fprintf(&sb, "--- %s ---\n%s\n", f.Path, f.Content)
		}
		sb.WriteString("\nReturn only the files you changed or added.\n")
	}
	return sb.String()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	return sb.String()
}
