// Package clarify iteratively disambiguates underspecified edit requests
// before a job starts. When evaluation asks for clarification the job must
// not start; the caller collects an answer, appends the exchange and
// evaluates again. The accumulated history is folded into the final backend
// prompt as literal annotated context, never reinterpreted or summarized.
package clarify

import (
	"context"
	"fmt"
	"strings"

	domain "github.com/Raunak-cloud/pocket-dev/internal/app/domain/clarify"
	"github.com/Raunak-cloud/pocket-dev/pkg/logger"
)

// Result is one evaluation round's outcome.
type Result struct {
	NeedsClarification bool   `json:"needs_clarification"`
	Question           string `json:"question,omitempty"`
	Suggestion         string `json:"suggestion,omitempty"`
}

// Advisor evaluates whether an edit request needs clarification. Implemented
// by AI-backed advisors; the negotiator falls back to a deterministic
// heuristic when none is attached.
type Advisor interface {
	Evaluate(ctx context.Context, prompt string, targetPaths []string, prior []domain.Exchange) (Result, error)
}

// DefaultMaxRounds caps negotiation so an edit can never be trapped in an
// unbounded question loop.
const DefaultMaxRounds = 5

// Negotiator drives the clarification loop for one pending edit.
type Negotiator struct {
	advisor   Advisor
	maxRounds int
	log       *logger.Logger
}

// Option configures a Negotiator.
type Option func(*Negotiator)

// WithAdvisor attaches an AI-backed advisor.
func WithAdvisor(a Advisor) Option {
	return func(n *Negotiator) { n.advisor = a }
}

// WithMaxRounds overrides the negotiation round cap.
func WithMaxRounds(rounds int) Option {
	return func(n *Negotiator) {
		if rounds > 0 {
			n.maxRounds = rounds
		}
	}
}

// New constructs a negotiator.
func New(log *logger.Logger, opts ...Option) *Negotiator {
	if log == nil {
		log = logger.NewDefault("clarify")
	}
	n := &Negotiator{maxRounds: DefaultMaxRounds, log: log}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Evaluate decides whether the edit request is specific enough to start.
// Once the round cap is reached the edit proceeds with what it has.
func (n *Negotiator) Evaluate(ctx context.Context, prompt string, targetPaths []string, prior []domain.Exchange) (Result, error) {
	if len(prior) >= n.maxRounds {
		n.log.Warnf("clarification round cap (%d) reached; proceeding with accumulated context", n.maxRounds)
		return Result{}, nil
	}

	if n.advisor != nil {
		res, err := n.advisor.Evaluate(ctx, prompt, targetPaths, prior)
		if err != nil {
			n.log.WithError(err).Warn("clarification advisor failed; using heuristic")
			return heuristicEvaluate(prompt, targetPaths, prior), nil
		}
		return res, nil
	}
	return heuristicEvaluate(prompt, targetPaths, prior), nil
}

var vagueTerms = []string{
	"better", "nicer", "improve", "cleaner", "modern", "fix it", "polish", "fancier",
}

func heuristicEvaluate(prompt string, targetPaths []string, prior []domain.Exchange) Result {
	// An answered exchange counts as the user having disambiguated.
	for _, ex := range prior {
		if strings.TrimSpace(ex.Answer) != "" {
			return Result{}
		}
	}
	if len(targetPaths) > 0 {
		return Result{}
	}

	lower := strings.ToLower(prompt)
	words := strings.Fields(lower)
	vague := len(words) < 4
	for _, term := range vagueTerms {
		if strings.Contains(lower, term) {
			vague = true
			break
		}
	}
	if !vague {
		return Result{}
	}
	return Result{
		NeedsClarification: true,
		Question:           "Which section?",
		Suggestion:         "Name the page or section this change should apply to, e.g. the hero section.",
	}
}

// FoldPrompt appends the accumulated exchanges to the edit prompt as literal
// annotated context for the generation backend.
func FoldPrompt(prompt string, exchanges []domain.Exchange) string {
	if len(exchanges) == 0 {
		return prompt
	}
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nClarifications provided by the user:\n")
	for i, ex := range exchanges {
		fmt.Fprintf(&b, "%d. Q: %s\n   A: %s\n", i+1, ex.Question, ex.Answer)
	}
	return b.String()
}
