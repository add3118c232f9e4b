// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Raunak-cloud/pocket-dev/internal/app/domain/job"
	"github.com/Raunak-cloud/pocket-dev/internal/app/domain/ledger"
	"github.com/Raunak-cloud/pocket-dev/internal/app/domain/project"
	"github.com/Raunak-cloud/pocket-dev/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.ProjectStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)
var _ storage.JobStore = (*Store)(nil)
var _ storage.HistoryStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- ProjectStore -----------------------------------------------------------

func (s *Store) CreateProject(ctx context.Context, p project.Project) (project.Project, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	filesJSON, depsJSON, configJSON, err := marshalProjectBlobs(p)
	if err != nil {
		return project.Project{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (id, user_id, name, files, dependencies, lint_report, config,
			published, publish_stale, deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, p.ID, p.UserID, p.Name, filesJSON, depsJSON, p.LintReport, configJSON,
		p.Published, p.PublishStale, p.Deleted, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return project.Project{}, err
	}
	return p, nil
}

func (s *Store) UpdateProject(ctx context.Context, p project.Project) (project.Project, error) {
	existing, err := s.GetProject(ctx, p.ID)
	if err != nil {
		return project.Project{}, err
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	filesJSON, depsJSON, configJSON, err := marshalProjectBlobs(p)
	if err != nil {
		return project.Project{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET name = $2, files = $3, dependencies = $4, lint_report = $5, config = $6,
			published = $7, publish_stale = $8, updated_at = $9
		WHERE id = $1 AND NOT deleted
	`, p.ID, p.Name, filesJSON, depsJSON, p.LintReport, configJSON,
		p.Published, p.PublishStale, p.UpdatedAt)
	if err != nil {
		return project.Project{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return project.Project{}, sql.ErrNoRows
	}
	return p, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (project.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, files, dependencies, lint_report, config,
			published, publish_stale, created_at, updated_at
		FROM projects
		WHERE id = $1 AND NOT deleted
	`, id)
	return scanProject(row)
}

func (s *Store) ListProjects(ctx context.Context, userID string) ([]project.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, files, dependencies, lint_report, config,
			published, publish_stale, created_at, updated_at
		FROM projects
		WHERE user_id = $1 AND NOT deleted
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []project.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects SET deleted = TRUE, updated_at = $2 WHERE id = $1 AND NOT deleted
	`, id, time.Now().UTC())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (project.Project, error) {
	var (
		p         project.Project
		filesRaw  []byte
		depsRaw   []byte
		configRaw []byte
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &filesRaw, &depsRaw, &p.LintReport,
		&configRaw, &p.Published, &p.PublishStale, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return project.Project{}, err
	}
	if len(filesRaw) > 0 {
		_ = json.Unmarshal(filesRaw, &p.Files)
	}
	if len(depsRaw) > 0 {
		_ = json.Unmarshal(depsRaw, &p.Dependencies)
	}
	if len(configRaw) > 0 {
		_ = json.Unmarshal(configRaw, &p.Config)
	}
	return p, nil
}

func marshalProjectBlobs(p project.Project) (files, deps, config []byte, err error) {
	if files, err = json.Marshal(p.Files); err != nil {
		return nil, nil, nil, err
	}
	if deps, err = json.Marshal(p.Dependencies); err != nil {
		return nil, nil, nil, err
	}
	if config, err = json.Marshal(p.Config); err != nil {
		return nil, nil, nil, err
	}
	return files, deps, config, nil
}

// --- LedgerStore ------------------------------------------------------------

func (s *Store) GetLedgerAccount(ctx context.Context, userID string) (ledger.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, balance, created_at, updated_at
		FROM ledger_accounts
		WHERE user_id = $1
	`, userID)

	var acct ledger.Account
	if err := row.Scan(&acct.UserID, &acct.Balance, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
		return ledger.Account{}, err
	}
	return acct, nil
}

func (s *Store) CreateLedgerAccount(ctx context.Context, acct ledger.Account) (ledger.Account, error) {
	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_accounts (user_id, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`, acct.UserID, acct.Balance, acct.CreatedAt, acct.UpdatedAt)
	if err != nil {
		return ledger.Account{}, err
	}
	return acct, nil
}

func (s *Store) UpdateLedgerBalance(ctx context.Context, userID string, balance float64) (ledger.Account, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE ledger_accounts SET balance = $2, updated_at = $3 WHERE user_id = $1
	`, userID, balance, now)
	if err != nil {
		return ledger.Account{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ledger.Account{}, sql.ErrNoRows
	}
	return s.GetLedgerAccount(ctx, userID)
}

func (s *Store) CreateLedgerTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_transactions (id, user_id, type, amount, balance_after, job_id, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, tx.ID, tx.UserID, tx.Type, tx.Amount, tx.BalanceAfter, tx.JobID, tx.Reason, tx.CreatedAt)
	if err != nil {
		return ledger.Transaction{}, err
	}
	return tx, nil
}

func (s *Store) ListLedgerTransactions(ctx context.Context, userID string) ([]ledger.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, amount, balance_after, job_id, reason, created_at
		FROM ledger_transactions
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.Transaction
	for rows.Next() {
		var tx ledger.Transaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Type, &tx.Amount, &tx.BalanceAfter,
			&tx.JobID, &tx.Reason, &tx.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

// --- JobStore ---------------------------------------------------------------

func (s *Store) CreateJob(ctx context.Context, j job.Job) (job.Job, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}

	quoteJSON, err := json.Marshal(j.Quote)
	if err != nil {
		return job.Job{}, err
	}
	progressJSON, err := json.Marshal(j.ProgressLog)
	if err != nil {
		return job.Job{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, user_id, project_id, kind, status, prompt, quote, progress_log,
			cancel_requested, refund_issued, error, created_at, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, j.ID, j.UserID, j.ProjectID, string(j.Kind), j.Status.String(), j.Prompt,
		quoteJSON, progressJSON, j.CancelRequested, j.RefundIssued, j.Error,
		j.CreatedAt, nullTime(j.StartedAt), nullTime(j.FinishedAt))
	if err != nil {
		return job.Job{}, err
	}
	return j, nil
}

func (s *Store) UpdateJob(ctx context.Context, j job.Job) (job.Job, error) {
	quoteJSON, err := json.Marshal(j.Quote)
	if err != nil {
		return job.Job{}, err
	}

	// progress_log is deliberately absent from the SET list: it is owned by
	// AppendJobProgress and the caller's record is a point-in-time snapshot
	// that must not truncate it.
	var progressJSON []byte
	err = s.db.QueryRowContext(ctx, `
		UPDATE jobs
		SET project_id = $2, status = $3, quote = $4,
			cancel_requested = $5, refund_issued = $6, error = $7,
			started_at = $8, finished_at = $9
		WHERE id = $1
		RETURNING progress_log
	`, j.ID, j.ProjectID, j.Status.String(), quoteJSON,
		j.CancelRequested, j.RefundIssued, j.Error, nullTime(j.StartedAt), nullTime(j.FinishedAt)).Scan(&progressJSON)
	if err != nil {
		return job.Job{}, err
	}
	j.ProgressLog = nil
	if err := json.Unmarshal(progressJSON, &j.ProgressLog); err != nil {
		return job.Job{}, err
	}
	return j, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (job.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, project_id, kind, status, prompt, quote, progress_log,
			cancel_requested, refund_issued, error, created_at, started_at, finished_at
		FROM jobs
		WHERE id = $1
	`, id)
	return scanJob(row)
}

func (s *Store) ListJobs(ctx context.Context, userID string) ([]job.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, project_id, kind, status, prompt, quote, progress_log,
			cancel_requested, refund_issued, error, created_at, started_at, finished_at
		FROM jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, j)
	}
	return result, rows.Err()
}

func (s *Store) AppendJobProgress(ctx context.Context, id, message string) error {
	messageJSON, err := json.Marshal(message)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET progress_log = progress_log || $2::jsonb WHERE id = $1
	`, id, string(messageJSON))
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanJob(row rowScanner) (job.Job, error) {
	var (
		j           job.Job
		kind        string
		status      string
		quoteRaw    []byte
		progressRaw []byte
		startedAt   sql.NullTime
		finishedAt  sql.NullTime
	)
	err := row.Scan(&j.ID, &j.UserID, &j.ProjectID, &kind, &status, &j.Prompt,
		&quoteRaw, &progressRaw, &j.CancelRequested, &j.RefundIssued, &j.Error,
		&j.CreatedAt, &startedAt, &finishedAt)
	if err != nil {
		return job.Job{}, err
	}

	j.Kind = job.Kind(kind)
	j.Status = job.ParseStatus(status)

	if len(quoteRaw) > 0 {
		_ = json.Unmarshal(quoteRaw, &j.Quote)
	}
	if len(progressRaw) > 0 {
		_ = json.Unmarshal(progressRaw, &j.ProgressLog)
	}
	if startedAt.Valid {
		j.StartedAt = startedAt.Time
	}
	if finishedAt.Valid {
		j.FinishedAt = finishedAt.Time
	}
	return j, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// --- HistoryStore -----------------------------------------------------------

func (s *Store) AppendHistory(ctx context.Context, entry project.HistoryEntry) (project.HistoryEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	filesJSON, err := json.Marshal(entry.Files)
	if err != nil {
		return project.HistoryEntry{}, err
	}
	depsJSON, err := json.Marshal(entry.Dependencies)
	if err != nil {
		return project.HistoryEntry{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO history_entries (id, project_id, prompt, files, dependencies, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.ProjectID, entry.Prompt, filesJSON, depsJSON, entry.CreatedAt)
	if err != nil {
		return project.HistoryEntry{}, err
	}
	return entry, nil
}

func (s *Store) GetHistoryEntry(ctx context.Context, id string) (project.HistoryEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, prompt, files, dependencies, created_at
		FROM history_entries
		WHERE id = $1
	`, id)
	return scanHistoryEntry(row)
}

func (s *Store) ListHistory(ctx context.Context, projectID string) ([]project.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, prompt, files, dependencies, created_at
		FROM history_entries
		WHERE project_id = $1
		ORDER BY created_at
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []project.HistoryEntry
	for rows.Next() {
		entry, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func scanHistoryEntry(row rowScanner) (project.HistoryEntry, error) {
	var (
		entry    project.HistoryEntry
		filesRaw []byte
		depsRaw  []byte
	)
	err := row.Scan(&entry.ID, &entry.ProjectID, &entry.Prompt, &filesRaw, &depsRaw, &entry.CreatedAt)
	if err != nil {
		return project.HistoryEntry{}, err
	}
	if len(filesRaw) > 0 {
		_ = json.Unmarshal(filesRaw, &entry.Files)
	}
	if len(depsRaw) > 0 {
		_ = json.Unmarshal(depsRaw, &entry.Dependencies)
	}
	return entry, nil
}
