// Package ledger defines the token accounting domain model. Balances are held
// by the ledger store; this core reads and adjusts them and records a
// transaction per adjustment.
package ledger

import (
	"math"
	"time"
)

// Transaction types.
const (
	TxTypeDebit   = "debit"
	TxTypeCredit  = "credit"
	TxTypeDeposit = "deposit"
)

// Account holds a user's prepaid token balance.
type Account struct {
	UserID    string    `json:"user_id"`
	Balance   float64   `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transaction records one balance adjustment.
type Transaction struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Type         string    `json:"type"`
	Amount       float64   `json:"amount"`
	BalanceAfter float64   `json:"balance_after"`
	JobID        string    `json:"job_id,omitempty"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}

// CostQuote itemizes the price of one generation or edit job. Quotes are
// derived, never persisted.
type CostQuote struct {
	Base          float64 `json:"base"`
	AuthAddOn     float64 `json:"auth_add_on"`
	DatabaseAddOn float64 `json:"database_add_on"`
	Total         float64 `json:"total"`
}

// Round rounds a token amount to 2 decimals, half away from zero. All amounts
// are rounded before comparison and display.
func Round(v float64) float64 {
	return math.Round(v*100) / 100
}
