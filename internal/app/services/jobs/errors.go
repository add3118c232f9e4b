package jobs

import (
	"errors"
	"fmt"

	"github.com/Raunak-cloud/pocket-dev/internal/app/services/generation"
)

// ErrJobActive rejects a confirmation while another job of the same kind is
// already in flight for the user.
var ErrJobActive = errors.New("another job of this kind is already active")

// ClarificationRequiredError blocks an edit submission until the user answers
// the question. No job is created.
type ClarificationRequiredError struct {
	Question   string
	Suggestion string
}

func (e *ClarificationRequiredError) Error() string {
	return fmt.Sprintf("clarification required: %s", e.Question)
}

// TopUpRequiredError redirects a submission whose quote exceeds the balance
// to a token top-up. Terminal for this attempt; no debit was made.
type TopUpRequiredError struct {
	Required float64
	Balance  float64
}

func (e *TopUpRequiredError) Error() string {
	return fmt.Sprintf("insufficient tokens: required %.2f, balance %.2f", e.Required, e.Balance)
}

// IntegrationSelectionError redirects a free-text prompt that implies priced
// integrations to explicit option selection.
type IntegrationSelectionError struct {
	Intents generation.Intents
}

func (e *IntegrationSelectionError) Error() string {
	return "prompt implies priced integrations; select auth/database options explicitly"
}
