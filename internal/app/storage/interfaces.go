// Package storage defines the persistence interfaces for the application.
package storage

import (
	"context"

	"github.com/Raunak-cloud/pocket-dev/internal/app/domain/job"
	"github.com/Raunak-cloud/pocket-dev/internal/app/domain/ledger"
	"github.com/Raunak-cloud/pocket-dev/internal/app/domain/project"
)

// ProjectStore persists projects. ListProjects orders by recency. Deletes are
// soft.
type ProjectStore interface {
	CreateProject(ctx context.Context, p project.Project) (project.Project, error)
	UpdateProject(ctx context.Context, p project.Project) (project.Project, error)
	GetProject(ctx context.Context, id string) (project.Project, error)
	ListProjects(ctx context.Context, userID string) ([]project.Project, error)
	DeleteProject(ctx context.Context, id string) error
}

// LedgerStore persists token accounts and transactions.
type LedgerStore interface {
	GetLedgerAccount(ctx context.Context, userID string) (ledger.Account, error)
	CreateLedgerAccount(ctx context.Context, acct ledger.Account) (ledger.Account, error)
	UpdateLedgerBalance(ctx context.Context, userID string, balance float64) (ledger.Account, error)
	CreateLedgerTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error)
	ListLedgerTransactions(ctx context.Context, userID string) ([]ledger.Transaction, error)
}

// JobStore persists generation/edit jobs. The progress log is owned by
// AppendJobProgress: UpdateJob never writes it, so a concurrent append cannot
// be lost to a whole-record update carrying a stale snapshot.
type JobStore interface {
	CreateJob(ctx context.Context, j job.Job) (job.Job, error)
	UpdateJob(ctx context.Context, j job.Job) (job.Job, error)
	GetJob(ctx context.Context, id string) (job.Job, error)
	ListJobs(ctx context.Context, userID string) ([]job.Job, error)
	AppendJobProgress(ctx context.Context, id, message string) error
}

// HistoryStore persists pre-edit snapshots. Entries are append-only.
type HistoryStore interface {
	AppendHistory(ctx context.Context, entry project.HistoryEntry) (project.HistoryEntry, error)
	GetHistoryEntry(ctx context.Context, id string) (project.HistoryEntry, error)
	ListHistory(ctx context.Context, projectID string) ([]project.HistoryEntry, error)
}
