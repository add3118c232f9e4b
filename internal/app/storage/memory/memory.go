// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Raunak-cloud/pocket-dev/internal/app/domain/job"
	"github.com/Raunak-cloud/pocket-dev/internal/app/domain/ledger"
	"github.com/Raunak-cloud/pocket-dev/internal/app/domain/project"
	"github.com/Raunak-cloud/pocket-dev/internal/app/storage"
)

// Store holds all records behind a single mutex.
type Store struct {
	mu           sync.RWMutex
	nextID       int64
	projects     map[string]project.Project
	accounts     map[string]ledger.Account
	transactions map[string][]ledger.Transaction
	jobs         map[string]job.Job
	history      map[string][]project.HistoryEntry
	historyByID  map[string]project.HistoryEntry
}

var _ storage.ProjectStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)
var _ storage.JobStore = (*Store)(nil)
var _ storage.HistoryStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:       1,
		projects:     make(map[string]project.Project),
		accounts:     make(map[string]ledger.Account),
		transactions: make(map[string][]ledger.Transaction),
		jobs:         make(map[string]job.Job),
		history:      make(map[string][]project.HistoryEntry),
		historyByID:  make(map[string]project.HistoryEntry),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// ProjectStore implementation ------------------------------------------------

func (s *Store) CreateProject(_ context.Context, p project.Project) (project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = s.nextIDLocked()
	} else if _, exists := s.projects[p.ID]; exists {
		return project.Project{}, fmt.Errorf("project %s already exists", p.ID)
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.projects[p.ID] = p.Clone()
	return p, nil
}

func (s *Store) UpdateProject(_ context.Context, p project.Project) (project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.projects[p.ID]
	if !ok || existing.Deleted {
		return project.Project{}, fmt.Errorf("project %s not found", p.ID)
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now()
	s.projects[p.ID] = p.Clone()
	return p, nil
}

func (s *Store) GetProject(_ context.Context, id string) (project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok || p.Deleted {
		return project.Project{}, fmt.Errorf("project %s not found", id)
	}
	return p.Clone(), nil
}

func (s *Store) ListProjects(_ context.Context, userID string) ([]project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []project.Project
	for _, p := range s.projects {
		if p.UserID == userID && !p.Deleted {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) DeleteProject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok || p.Deleted {
		return fmt.Errorf("project %s not found", id)
	}
	p.Deleted = true
	p.UpdatedAt = time.Now()
	s.projects[id] = p
	return nil
}

// LedgerStore implementation -------------------------------------------------

func (s *Store) GetLedgerAccount(_ context.Context, userID string) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return ledger.Account{}, fmt.Errorf("ledger account %s not found", userID)
	}
	return acct, nil
}

func (s *Store) CreateLedgerAccount(_ context.Context, acct ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[acct.UserID]; exists {
		return ledger.Account{}, fmt.Errorf("ledger account %s already exists", acct.UserID)
	}
	now := time.Now()
	acct.CreatedAt = now
	acct.UpdatedAt = now
	s.accounts[acct.UserID] = acct
	return acct, nil
}

func (s *Store) UpdateLedgerBalance(_ context.Context, userID string, balance float64) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return ledger.Account{}, fmt.Errorf("ledger account %s not found", userID)
	}
	acct.Balance = balance
	acct.UpdatedAt = time.Now()
	s.accounts[userID] = acct
	return acct, nil
}

func (s *Store) CreateLedgerTransaction(_ context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = s.nextIDLocked()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	s.transactions[tx.UserID] = append(s.transactions[tx.UserID], tx)
	return tx, nil
}

func (s *Store) ListLedgerTransactions(_ context.Context, userID string) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := s.transactions[userID]
	out := make([]ledger.Transaction, len(txs))
	copy(out, txs)
	return out, nil
}

// JobStore implementation ----------------------------------------------------

func (s *Store) CreateJob(_ context.Context, j job.Job) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j.ID == "" {
		j.ID = s.nextIDLocked()
	} else if _, exists := s.jobs[j.ID]; exists {
		return job.Job{}, fmt.Errorf("job %s already exists", j.ID)
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	s.jobs[j.ID] = j.Clone()
	return j, nil
}

func (s *Store) UpdateJob(_ context.Context, j job.Job) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.jobs[j.ID]
	if !ok {
		return job.Job{}, fmt.Errorf("job %s not found", j.ID)
	}
	// The progress log is owned by AppendJobProgress; the caller's record is a
	// point-in-time snapshot and must not truncate it.
	j.ProgressLog = append([]string(nil), stored.ProgressLog...)
	s.jobs[j.ID] = j.Clone()
	return j, nil
}

func (s *Store) GetJob(_ context.Context, id string) (job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return job.Job{}, fmt.Errorf("job %s not found", id)
	}
	return j.Clone(), nil
}

func (s *Store) ListJobs(_ context.Context, userID string) ([]job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []job.Job
	for _, j := range s.jobs {
		if j.UserID == userID {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) AppendJobProgress(_ context.Context, id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	j.ProgressLog = append(j.ProgressLog, message)
	s.jobs[id] = j
	return nil
}

// HistoryStore implementation ------------------------------------------------

func (s *Store) AppendHistory(_ context.Context, entry project.HistoryEntry) (project.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = s.nextIDLocked()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.Files = project.CloneFiles(entry.Files)
	entry.Dependencies = project.CloneDependencies(entry.Dependencies)
	s.history[entry.ProjectID] = append(s.history[entry.ProjectID], entry)
	s.historyByID[entry.ID] = entry
	return entry, nil
}

func (s *Store) GetHistoryEntry(_ context.Context, id string) (project.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.historyByID[id]
	if !ok {
		return project.HistoryEntry{}, fmt.Errorf("history entry %s not found", id)
	}
	entry.Files = project.CloneFiles(entry.Files)
	entry.Dependencies = project.CloneDependencies(entry.Dependencies)
	return entry, nil
}

func (s *Store) ListHistory(_ context.Context, projectID string) ([]project.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.history[projectID]
	out := make([]project.HistoryEntry, len(entries))
	for i, e := range entries {
		e.Files = project.CloneFiles(e.Files)
		e.Dependencies = project.CloneDependencies(e.Dependencies)
		out[i] = e
	}
	return out, nil
}
