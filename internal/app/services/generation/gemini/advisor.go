package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/tidwall/gjson"

	domain "github.com/Raunak-cloud/pocket-dev/internal/app/domain/clarify"
	"github.com/Raunak-cloud/pocket-dev/internal/app/services/clarify"
)

// Evaluate implements clarify.Advisor: the model judges whether an edit
// request is specific enough to act on, and proposes one question when it is
// not.
func (b *Backend) Evaluate(ctx context.Context, prompt string, targetPaths []string, prior []domain.Exchange) (clarify.Result, error) {
	resp, err := b.model.GenerateContent(ctx, genai.Text(buildAdvisorPrompt(prompt, targetPaths, prior)))
	if err != nil {
		return clarify.Result{}, fmt.Errorf("evaluate clarification: %w", err)
	}

	text := stripFence(responseText(resp))
	if !gjson.Valid(text) {
		return clarify.Result{}, fmt.Errorf("clarification response is not valid JSON")
	}
	parsed := gjson.Parse(text)
	res := clarify.Result{
		NeedsClarification: parsed.Get("needs_clarification").Bool(),
		Question:           parsed.Get("question").String(),
		Suggestion:         parsed.Get("suggestion").String(),
	}
	if res.NeedsClarification && res.Question == "" {
		return clarify.Result{}, fmt.Errorf("clarification response carries no question")
	}
	return res, nil
}

var _ clarify.Advisor = (*Backend)(nil)

func buildAdvisorPrompt(prompt string, targetPaths []string, prior []domain.Exchange) string {
	var sb strings.Builder
	sb.WriteString("A user asked for a change to their web app. Decide whether the request is specific enough to implement.\n")
	sb.WriteString("Respond with a single JSON object:\n")
	sb.WriteString(`{"needs_clarification":true|false,"question":"one short question, empty when not needed","suggestion":"optional rephrasing of the request"}`)
	sb.WriteString("\n\nRequest:\n")
	sb.WriteString(prompt)
	if len(targetPaths) > 0 {
		fmt.Fprintf(&sb, "\n\nThe user selected these files as the target: %s", strings.Join(targetPaths, ", "))
	}
	if len(prior) > 0 {
		sb.WriteString("\n\nEarlier clarification rounds:\n")
		for _, ex := range prior {
			fmt.Fprintf(&sb, "Q: %s\nA: %s\n", ex.Question, ex.Answer)
		}
	}
	return sb.String()
}
