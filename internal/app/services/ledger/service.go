// Package ledger manages prepaid token balances: job pricing, debits, credits
// and top-up deposits. The external ledger store is the source of truth for
// balances; this service guarantees local bookkeeping only. Callers must not
// retry a debit for the same logical request, and refunds are issued at most
// once per job (tracked by the orchestrator via the job's RefundIssued flag).
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	domain "github.com/Raunak-cloud/pocket-dev/internal/app/domain/ledger"
	"github.com/Raunak-cloud/pocket-dev/internal/app/storage"
	"github.com/Raunak-cloud/pocket-dev/pkg/logger"
)

// ErrInsufficientBalance blocks a debit before any ledger write.
var ErrInsufficientBalance = errors.New("insufficient token balance")

// Service computes costs and issues debit/credit requests against the store.
type Service struct {
	store   storage.LedgerStore
	pricing PricingConfig
	log     *logger.Logger
	mu      sync.Mutex
}

// New constructs a ledger service.
func New(store storage.LedgerStore, pricing PricingConfig, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("ledger")
	}
	return &Service{store: store, pricing: pricing, log: log}
}

// Pricing returns the active pricing configuration.
func (s *Service) Pricing() PricingConfig {
	return s.pricing
}

// ComputeGenerationCost prices a full-app generation:
// base + per-auth-option unit + one flat amount for any database selection.
func (s *Service) ComputeGenerationCost(authOptions, databaseOptions []string) domain.CostQuote {
	return s.quote(s.pricing.GenerationBase, authOptions, databaseOptions)
}

// ComputeEditCost prices an incremental edit with the same add-on formula and
// a much smaller base.
func (s *Service) ComputeEditCost(authOptions, databaseOptions []string) domain.CostQuote {
	return s.quote(s.pricing.EditBase, authOptions, databaseOptions)
}

func (s *Service) quote(base float64, authOptions, databaseOptions []string) domain.CostQuote {
	q := domain.CostQuote{
		Base:      domain.Round(base),
		AuthAddOn: domain.Round(float64(len(authOptions)) * s.pricing.AuthOptionUnit),
	}
	if len(databaseOptions) > 0 {
		q.DatabaseAddOn = domain.Round(s.pricing.DatabaseFlat)
	}
	q.Total = domain.Round(q.Base + q.AuthAddOn + q.DatabaseAddOn)
	return q
}

// Balance returns the user's current balance, creating a zero-balance account
// on first sight.
func (s *Service) Balance(ctx context.Context, userID string) (float64, error) {
	acct, err := s.ensureAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	return domain.Round(acct.Balance), nil
}

// Debit removes amount from the user's balance. It fails with
// ErrInsufficientBalance when the balance does not cover the amount; the
// caller must not call Debit twice for the same logical request.
func (s *Service) Debit(ctx context.Context, userID string, amount float64, jobID, reason string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	amount = domain.Round(amount)
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %.2f", amount)
	}

	acct, err := s.ensureAccount(ctx, userID)
	if err != nil {
		return 0, err
	}

	balance := domain.Round(acct.Balance)
	if balance < amount {
		return balance, fmt.Errorf("%w: balance %.2f, required %.2f", ErrInsufficientBalance, balance, amount)
	}

	newBalance := domain.Round(balance - amount)
	if _, err := s.store.UpdateLedgerBalance(ctx, userID, newBalance); err != nil {
		return balance, fmt.Errorf("update balance: %w", err)
	}

	if err := s.record(ctx, userID, domain.TxTypeDebit, -amount, newBalance, jobID, reason); err != nil {
		s.log.WithError(err).Warnf("record debit transaction for job %s", jobID)
	}
	s.log.Infof("debited %.2f tokens from %s (job %s), balance %.2f", amount, userID, jobID, newBalance)
	return newBalance, nil
}

// Credit refunds amount to the user's balance, referencing exactly one job.
// The caller must ensure it is invoked at most once per job.
func (s *Service) Credit(ctx context.Context, userID string, amount float64, jobID, reason string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	amount = domain.Round(amount)
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %.2f", amount)
	}
	if jobID == "" {
		return 0, fmt.Errorf("credit requires a job reference")
	}

	acct, err := s.ensureAccount(ctx, userID)
	if err != nil {
		return 0, err
	}

	newBalance := domain.Round(acct.Balance + amount)
	if _, err := s.store.UpdateLedgerBalance(ctx, userID, newBalance); err != nil {
		return domain.Round(acct.Balance), fmt.Errorf("update balance: %w", err)
	}

	if err := s.record(ctx, userID, domain.TxTypeCredit, amount, newBalance, jobID, reason); err != nil {
		s.log.WithError(err).Warnf("record credit transaction for job %s", jobID)
	}
	s.log.Infof("credited %.2f tokens to %s (job %s), balance %.2f", amount, userID, jobID, newBalance)
	return newBalance, nil
}

// Deposit adds purchased tokens to the user's balance. Invoked when the
// billing gateway confirms a checkout session.
func (s *Service) Deposit(ctx context.Context, userID string, amount float64, reference string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	amount = domain.Round(amount)
	if amount <= 0 {
		return 0, fmt.Errorf("deposit amount must be positive, got %.2f", amount)
	}

	acct, err := s.ensureAccount(ctx, userID)
	if err != nil {
		return 0, err
	}

	newBalance := domain.Round(acct.Balance + amount)
	if _, err := s.store.UpdateLedgerBalance(ctx, userID, newBalance); err != nil {
		return domain.Round(acct.Balance), fmt.Errorf("update balance: %w", err)
	}
	if err := s.record(ctx, userID, domain.TxTypeDeposit, amount, newBalance, "", reference); err != nil {
		s.log.WithError(err).Warnf("record deposit transaction for %s", userID)
	}
	return newBalance, nil
}

// Transactions lists the user's ledger transactions.
func (s *Service) Transactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	return s.store.ListLedgerTransactions(ctx, userID)
}

func (s *Service) ensureAccount(ctx context.Context, userID string) (domain.Account, error) {
	if userID == "" {
		return domain.Account{}, fmt.Errorf("user id is required")
	}
	acct, err := s.store.GetLedgerAccount(ctx, userID)
	if err == nil {
		return acct, nil
	}
	created, createErr := s.store.CreateLedgerAccount(ctx, domain.Account{UserID: userID})
	if createErr != nil {
		return domain.Account{}, fmt.Errorf("ensure ledger account: %w", createErr)
	}
	return created, nil
}

func (s *Service) record(ctx context.Context, userID, txType string, amount, balanceAfter float64, jobID, reason string) error {
	_, err := s.store.CreateLedgerTransaction(ctx, domain.Transaction{
		ID:           uuid.New().String(),
		UserID:       userID,
		Type:         txType,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		JobID:        jobID,
		Reason:       reason,
		CreatedAt:    time.Now(),
	})
	return err
}
