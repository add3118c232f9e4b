package ledger

import (
	"context"
	"errors"
	"math"
	"testing"

	domain "github.com/Raunak-cloud/pocket-dev/internal/app/domain/ledger"
	"github.com/Raunak-cloud/pocket-dev/internal/app/storage/memory"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return New(store, DefaultPricing(), nil), store
}

func TestComputeGenerationCost(t *testing.T) {
	svc, _ := newService(t)

	q := svc.ComputeGenerationCost(nil, nil)
	if q.Total != 2.00 {
		t.Fatalf("base quote: got %.2f, want 2.00", q.Total)
	}

	q = svc.ComputeGenerationCost([]string{"email"}, nil)
	if q.Total != 4.00 {
		t.Fatalf("one auth option: got %.2f, want 4.00", q.Total)
	}

	// Database add-on is flat, not per option.
	one := svc.ComputeGenerationCost(nil, []string{"postgres"})
	three := svc.ComputeGenerationCost(nil, []string{"postgres", "kv", "blob"})
	if one.DatabaseAddOn != three.DatabaseAddOn {
		t.Fatalf("database add-on should be flat: %.2f vs %.2f", one.DatabaseAddOn, three.DatabaseAddOn)
	}

	// Monotonically non-decreasing in the number of auth options.
	prev := 0.0
	for n := 0; n < 5; n++ {
		opts := make([]string, n)
		total := svc.ComputeGenerationCost(opts, nil).Total
		if total < prev {
			t.Fatalf("cost decreased at %d auth options: %.2f < %.2f", n, total, prev)
		}
		prev = total
	}
}

func TestComputeEditCostSmallerBase(t *testing.T) {
	svc, _ := newService(t)
	gen := svc.ComputeGenerationCost(nil, nil)
	edit := svc.ComputeEditCost(nil, nil)
	if edit.Base >= gen.Base {
		t.Fatalf("edit base %.2f should be smaller than generation base %.2f", edit.Base, gen.Base)
	}
}

func TestDebit(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.Deposit(ctx, "user1", 5, "checkout-1"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Scenario: balance 5, base 2, one auth option at unit 2 => quote 4.
	q := svc.ComputeGenerationCost([]string{"email"}, nil)
	if q.Total != 4 {
		t.Fatalf("quote: got %.2f, want 4", q.Total)
	}

	balance, err := svc.Debit(ctx, "user1", q.Total, "job1", "app generation")
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if balance != 1 {
		t.Fatalf("balance after debit: got %.2f, want 1", balance)
	}

	_, err = svc.Debit(ctx, "user1", 2, "job2", "app generation")
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestCreditRequiresJobReference(t *testing.T) {
	svc, _ := newService(t)
	if _, err := svc.Credit(context.Background(), "user1", 1, "", "refund"); err == nil {
		t.Fatal("expected error for credit without job reference")
	}
}

func TestFractionalAmounts(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.Deposit(ctx, "user1", 1, "checkout-1"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	balance, err := svc.Debit(ctx, "user1", 0.10, "job1", "edit")
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if math.Abs(balance-0.90) > 1e-9 {
		t.Fatalf("balance after fractional debit: got %v, want 0.90", balance)
	}

	balance, err = svc.Credit(ctx, "user1", 0.10, "job1", "cancellation refund")
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if math.Abs(balance-1.00) > 1e-9 {
		t.Fatalf("balance after refund: got %v, want 1.00", balance)
	}
}

func TestTransactionsRecorded(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.Deposit(ctx, "user1", 5, "checkout-1"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := svc.Debit(ctx, "user1", 2, "job1", "generation"); err != nil {
		t.Fatalf("debit: %v", err)
	}

	txs, err := svc.Transactions(ctx, "user1")
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	if txs[0].Type != domain.TxTypeDeposit || txs[1].Type != domain.TxTypeDebit {
		t.Fatalf("unexpected transaction types: %s, %s", txs[0].Type, txs[1].Type)
	}
	if txs[1].JobID != "job1" {
		t.Fatalf("debit should reference the job, got %q", txs[1].JobID)
	}
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	cases := map[float64]float64{
		0.125:  0.13,
		-0.125: -0.13,
		1.006:  1.01,
		0.104:  0.10,
	}
	for in, want := range cases {
		if got := domain.Round(in); math.Abs(got-want) > 1e-9 {
			t.Fatalf("Round(%v): got %v, want %v", in, got, want)
		}
	}
}
