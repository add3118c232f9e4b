// Package jobs drives one generation or edit request through its lifecycle:
// pricing, balance check, confirmation, debit, backend dispatch, merge,
// persistence and cancellation with a refund window.
package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	clarifydomain "github.com/Raunak-cloud/pocket-dev/internal/app/domain/clarify"
	domain "github.com/Raunak-cloud/pocket-dev/internal/app/domain/job"
	"github.com/Raunak-cloud/pocket-dev/internal/app/domain/project"
	"github.com/Raunak-cloud/pocket-dev/internal/app/metrics"
	"github.com/Raunak-cloud/pocket-dev/internal/app/services/clarify"
	"github.com/Raunak-cloud/pocket-dev/internal/app/services/generation"
	historysvc "github.com/Raunak-cloud/pocket-dev/internal/app/services/history"
	ledgersvc "github.com/Raunak-cloud/pocket-dev/internal/app/services/ledger"
	"github.com/Raunak-cloud/pocket-dev/internal/app/services/merge"
	"github.com/Raunak-cloud/pocket-dev/internal/app/storage"
	"github.com/Raunak-cloud/pocket-dev/pkg/logger"
)

// DefaultRefundWindow is the interval after job start during which
// cancellation triggers an automatic credit. It is measured against local
// job-start time, independent of network round trips.
const DefaultRefundWindow = 10 * time.Second

// DefaultCancelAckDeadline bounds how long a job may sit in cancelling before
// the sweeper reaps it, so a backend that never acknowledges cannot orphan
// the job.
const DefaultCancelAckDeadline = 30 * time.Second

// SubmitRequest describes one generation or edit submission.
type SubmitRequest struct {
	UserID          string
	ProjectID       string
	ProjectName     string
	Kind            domain.Kind
	Prompt          string
	TargetPaths     []string
	Exchanges       []clarifydomain.Exchange
	AuthOptions     []string
	DatabaseOptions []string

	// AutoConfirm skips the confirmation prompt for users who opted out.
	AutoConfirm bool
}

type activeJob struct {
	key             string
	token           *CancelToken
	cancelRequested bool
	cancelledAt     time.Time
	finalized       bool
	subs            []chan string
}

// Orchestrator is the state machine tying pricing, clarification, debit,
// generation, merge and history together around one request. It is the sole
// writer of a project while a job is in flight.
type Orchestrator struct {
	projects storage.ProjectStore
	jobs     storage.JobStore
	ledger   *ledgersvc.Service
	log      *logger.Logger

	history    *historysvc.Service
	negotiator *clarify.Negotiator
	classifier generation.Classifier
	backend    generation.Backend

	refundWindow      time.Duration
	cancelAckDeadline time.Duration
	now               func() time.Time

	mu      sync.Mutex
	active  map[string]*activeJob
	pending map[string]SubmitRequest
	guard   *guard
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRefundWindow overrides the refund window.
func WithRefundWindow(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.refundWindow = d
		}
	}
}

// WithCancelAckDeadline overrides the cancel acknowledgement deadline.
func WithCancelAckDeadline(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.cancelAckDeadline = d
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New constructs an orchestrator.
func New(projects storage.ProjectStore, jobs storage.JobStore, ledger *ledgersvc.Service, log *logger.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = logger.NewDefault("jobs")
	}
	o := &Orchestrator{
		projects:          projects,
		jobs:              jobs,
		ledger:            ledger,
		log:               log,
		refundWindow:      DefaultRefundWindow,
		cancelAckDeadline: DefaultCancelAckDeadline,
		now:               time.Now,
		active:            make(map[string]*activeJob),
		pending:           make(map[string]SubmitRequest),
		guard:             newGuard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// AttachBackend wires the generation backend. Required before Confirm.
func (o *Orchestrator) AttachBackend(b generation.Backend) { o.backend = b }

// AttachHistory wires pre-edit snapshotting.
func (o *Orchestrator) AttachHistory(h *historysvc.Service) { o.history = h }

// AttachNegotiator wires the clarification loop for edit submissions.
func (o *Orchestrator) AttachNegotiator(n *clarify.Negotiator) { o.negotiator = n }

// AttachClassifier wires the integration intent gate.
func (o *Orchestrator) AttachClassifier(c generation.Classifier) { o.classifier = c }

// Submit prices the request and, when the balance covers the quote, creates a
// job awaiting confirmation. Edit submissions pass through the clarification
// loop first; no job is created while clarification is pending or when the
// balance is short.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (domain.Job, error) {
	if err := o.vetSubmission(ctx, &req); err != nil {
		return domain.Job{}, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.submitLocked(ctx, req)
}

// vetSubmission validates the request and runs the clarification and intent
// gates. It runs before the orchestrator lock is taken: the clarification
// advisor may be a slow remote call and must not stall cancellation or
// progress fan-out of other jobs.
func (o *Orchestrator) vetSubmission(ctx context.Context, req *SubmitRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("prompt is required")
	}
	if req.Kind == "" {
		req.Kind = domain.KindGeneration
	}

	if req.Kind == domain.KindEdit {
		if req.ProjectID == "" {
			return fmt.Errorf("edit jobs require a project id")
		}
		if _, err := o.projects.GetProject(ctx, req.ProjectID); err != nil {
			return fmt.Errorf("load project: %w", err)
		}
		if o.negotiator != nil {
			res, err := o.negotiator.Evaluate(ctx, req.Prompt, req.TargetPaths, req.Exchanges)
			if err != nil {
				return fmt.Errorf("evaluate clarification: %w", err)
			}
			if res.NeedsClarification {
				return &ClarificationRequiredError{Question: res.Question, Suggestion: res.Suggestion}
			}
		}
	}

	if o.classifier != nil {
		intents, err := o.classifier.Classify(ctx, req.Prompt)
		if err != nil {
			o.log.WithError(err).Warn("intent classification failed; proceeding")
		} else if (intents.HasAuthIntent && len(req.AuthOptions) == 0) ||
			(intents.HasDatabaseIntent && len(req.DatabaseOptions) == 0) {
			return &IntegrationSelectionError{Intents: intents}
		}
	}
	return nil
}

func (o *Orchestrator) submitLocked(ctx context.Context, req SubmitRequest) (domain.Job, error) {
	var quote = o.ledger.ComputeGenerationCost(req.AuthOptions, req.DatabaseOptions)
	if req.Kind == domain.KindEdit {
		quote = o.ledger.ComputeEditCost(req.AuthOptions, req.DatabaseOptions)
	}

	balance, err := o.ledger.Balance(ctx, req.UserID)
	if err != nil {
		return domain.Job{}, fmt.Errorf("check balance: %w", err)
	}
	if balance < quote.Total {
		return domain.Job{}, &TopUpRequiredError{Required: quote.Total, Balance: balance}
	}

	created, err := o.jobs.CreateJob(ctx, domain.Job{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
		Kind:      req.Kind,
		Status:    domain.StatusAwaitingConfirmation,
		Prompt:    clarify.FoldPrompt(req.Prompt, req.Exchanges),
		Quote:     quote,
		CreatedAt: o.now(),
	})
	if err != nil {
		return domain.Job{}, fmt.Errorf("create job: %w", err)
	}
	o.pending[created.ID] = req
	o.log.Infof("job %s (%s) submitted, quote %.2f tokens", created.ID, created.Kind, quote.Total)

	if req.AutoConfirm {
		return o.confirmLocked(ctx, created.ID)
	}
	return created, nil
}

// Confirm debits the quote and dispatches the backend. A failed debit moves
// the job to failed; nothing was started and nothing is refunded.
func (o *Orchestrator) Confirm(ctx context.Context, jobID string) (domain.Job, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.confirmLocked(ctx, jobID)
}

func (o *Orchestrator) confirmLocked(ctx context.Context, jobID string) (domain.Job, error) {
	if o.backend == nil {
		return domain.Job{}, fmt.Errorf("confirm job: no generation backend configured")
	}
	j, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	if j.Status != domain.StatusAwaitingConfirmation {
		return j, fmt.Errorf("job %s is %s, not awaiting confirmation", jobID, j.Status)
	}
	req, ok := o.pending[jobID]
	if !ok {
		return j, fmt.Errorf("job %s has no pending request in this session", jobID)
	}

	key := guardKey(j.UserID, j.Kind)
	if !o.guard.tryAcquire(key, jobID) {
		return j, fmt.Errorf("%w: user %s, kind %s", ErrJobActive, j.UserID, j.Kind)
	}

	j.Status = domain.StatusDebiting
	if updated, uerr := o.jobs.UpdateJob(ctx, j); uerr == nil {
		j = updated
	}

	if _, err := o.ledger.Debit(ctx, j.UserID, j.Quote.Total, j.ID, string(j.Kind)+" job"); err != nil {
		o.guard.release(key, jobID)
		delete(o.pending, jobID)
		j.Status = domain.StatusFailed
		j.Error = err.Error()
		j.FinishedAt = o.now()
		if updated, uerr := o.jobs.UpdateJob(ctx, j); uerr == nil {
			j = updated
		}
		metrics.ObserveJobFinished(string(j.Kind), j.Status.String(), 0)
		return j, fmt.Errorf("debit: %w", err)
	}
	metrics.AddTokensDebited(j.Quote.Total)

	j.Status = domain.StatusRunning
	j.StartedAt = o.now()
	if updated, uerr := o.jobs.UpdateJob(ctx, j); uerr == nil {
		j = updated
	} else {
		o.log.WithError(uerr).Warnf("persist job %s", jobID)
	}

	token := NewCancelToken()
	o.active[jobID] = &activeJob{key: key, token: token}
	delete(o.pending, jobID)

	go o.run(j, req, token)
	return j, nil
}

// run executes one dispatched job. It never holds the orchestrator lock while
// the backend call is in flight.
func (o *Orchestrator) run(j domain.Job, req SubmitRequest, token *CancelToken) {
	ctx := context.Background()
	onProgress := func(msg string) { o.publishProgress(ctx, j.ID, msg) }

	if token.Cancelled() {
		o.acknowledgeCancel(ctx, j.ID, CheckpointPreDispatch)
		return
	}

	genReq := generation.Request{
		JobID:           j.ID,
		UserID:          j.UserID,
		ProjectID:       j.ProjectID,
		Prompt:          j.Prompt,
		AuthOptions:     req.AuthOptions,
		DatabaseOptions: req.DatabaseOptions,
	}
	if j.Kind == domain.KindEdit {
		if p, err := o.projects.GetProject(ctx, j.ProjectID); err == nil {
			genReq.ExistingFiles = p.Files
		}
	}

	result, err := o.backend.Generate(ctx, genReq, onProgress)
	if err != nil {
		if token.Cancelled() {
			o.acknowledgeCancel(ctx, j.ID, CheckpointPreMerge)
			return
		}
		// Backend failure: tokens already debited stay debited; refunds are
		// reserved for explicit cancellation within the window.
		o.finalize(ctx, j.ID, func(cur *domain.Job) {
			cur.Status = domain.StatusFailed
			cur.Error = err.Error()
		})
		return
	}

	// The pre-merge check, the merge and the finalization share the lock so a
	// cancel cannot land between them: it is either observed here, before
	// anything is applied, or it waits and finds a terminal job.
	o.mu.Lock()
	defer o.mu.Unlock()

	if token.Cancelled() {
		// A result arriving after cancellation is discarded at the merge
		// boundary, never applied.
		o.log.Infof("job %s: cancellation acknowledged at %s, result discarded", j.ID, CheckpointPreMerge)
		o.finalizeLocked(ctx, j.ID, func(cur *domain.Job) {
			cur.Status = domain.StatusCancelled
		})
		return
	}

	projectID, err := o.applyResult(ctx, j, req, result)
	if err != nil {
		o.finalizeLocked(ctx, j.ID, func(cur *domain.Job) {
			cur.Status = domain.StatusFailed
			cur.Error = err.Error()
		})
		return
	}
	o.finalizeLocked(ctx, j.ID, func(cur *domain.Job) {
		cur.Status = domain.StatusSucceeded
		cur.ProjectID = projectID
	})
}

// applyResult merges the backend output into the project and persists it.
// Persistence failures are logged, not fatal: the in-memory project remains
// authoritative for the session.
func (o *Orchestrator) applyResult(ctx context.Context, j domain.Job, req SubmitRequest, result generation.Result) (string, error) {
	if j.ProjectID == "" {
		name := req.ProjectName
		if name == "" {
			name = "untitled app"
		}
		created, err := o.projects.CreateProject(ctx, project.Project{
			UserID:       j.UserID,
			Name:         name,
			Files:        result.Files,
			Dependencies: result.Dependencies,
			LintReport:   result.LintReport,
		})
		if err != nil {
			o.log.WithError(err).Warnf("persist generated project for job %s", j.ID)
			return "", nil
		}
		return created.ID, nil
	}

	p, err := o.projects.GetProject(ctx, j.ProjectID)
	if err != nil {
		return j.ProjectID, fmt.Errorf("load project: %w", err)
	}

	if j.Kind == domain.KindEdit && o.history != nil {
		if _, err := o.history.Snapshot(ctx, p, j.Prompt); err != nil {
			o.log.WithError(err).Warnf("snapshot project %s before edit", p.ID)
		}
	}

	p.Files = merge.Files(p.Files, result.Files)
	p.Dependencies = merge.Dependencies(p.Dependencies, result.Dependencies)
	if result.LintReport != "" {
		p.LintReport = result.LintReport
	}
	if p.Published {
		p.PublishStale = true
	}

	if _, err := o.projects.UpdateProject(ctx, p); err != nil {
		o.log.WithError(err).Warnf("persist project %s", p.ID)
	}
	return p.ID, nil
}

// Cancel requests cooperative cancellation: the token is set immediately, a
// best-effort remote cancel is sent, and a single credit is issued when the
// elapsed time since job start is below the refund window. A second cancel
// attempt never issues a second credit.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (domain.Job, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	j, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	if j.Status.IsTerminal() {
		return j, nil
	}

	if j.Status == domain.StatusAwaitingConfirmation {
		// Nothing debited yet; abandon outright, no refund involved.
		delete(o.pending, jobID)
		j.Status = domain.StatusCancelled
		j.CancelRequested = true
		j.FinishedAt = o.now()
		if updated, uerr := o.jobs.UpdateJob(ctx, j); uerr == nil {
			j = updated
		}
		metrics.ObserveJobFinished(string(j.Kind), j.Status.String(), 0)
		return j, nil
	}

	entry := o.active[jobID]
	if entry != nil && entry.cancelRequested {
		return j, nil
	}
	if !j.Status.CanCancel() {
		return j, fmt.Errorf("job %s cannot be cancelled while %s", jobID, j.Status)
	}
	if entry == nil {
		return j, fmt.Errorf("job %s is not in flight", jobID)
	}
	entry.cancelRequested = true
	entry.cancelledAt = o.now()
	entry.token.Cancel()

	if err := o.backend.Cancel(ctx, jobID); err != nil {
		o.log.WithError(err).Warnf("remote cancel for job %s", jobID)
	}

	j.CancelRequested = true
	j.Status = domain.StatusCancelling

	// Refund eligibility is a wall-clock deadline from local job start.
	elapsed := o.now().Sub(j.StartedAt)
	if elapsed < o.refundWindow && !j.RefundIssued {
		j.RefundIssued = true
		if _, cerr := o.ledger.Credit(ctx, j.UserID, j.Quote.Total, j.ID, "cancellation refund"); cerr != nil {
			o.log.WithError(cerr).Errorf("refund for job %s", jobID)
		} else {
			metrics.AddTokensCredited(j.Quote.Total)
			o.log.Infof("job %s cancelled at %.1fs, refunded %.2f tokens", jobID, elapsed.Seconds(), j.Quote.Total)
		}
	} else {
		o.log.Infof("job %s cancelled at %.1fs, outside refund window", jobID, elapsed.Seconds())
	}

	if updated, uerr := o.jobs.UpdateJob(ctx, j); uerr == nil {
		j = updated
	} else {
		o.log.WithError(uerr).Warnf("persist job %s", jobID)
	}
	return j, nil
}

// acknowledgeCancel moves a cancelling job to its terminal state once the run
// goroutine observes the token at a checkpoint.
func (o *Orchestrator) acknowledgeCancel(ctx context.Context, jobID, checkpoint string) {
	o.log.Infof("job %s: cancellation acknowledged at %s", jobID, checkpoint)
	o.finalize(ctx, jobID, func(cur *domain.Job) {
		cur.Status = domain.StatusCancelled
	})
}

func (o *Orchestrator) finalize(ctx context.Context, jobID string, mutate func(*domain.Job)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finalizeLocked(ctx, jobID, mutate)
}

func (o *Orchestrator) finalizeLocked(ctx context.Context, jobID string, mutate func(*domain.Job)) {
	entry := o.active[jobID]
	if entry == nil || entry.finalized {
		return
	}
	entry.finalized = true

	j, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		o.log.WithError(err).Errorf("finalize job %s", jobID)
		j = domain.Job{ID: jobID}
		mutate(&j)
	} else {
		from := j.Status
		mutate(&j)
		if attempted := j.Status; attempted != from && !from.CanTransition(attempted) {
			switch {
			case attempted == domain.StatusCancelled && entry.cancelRequested:
				// The cancelling write may have failed to persist; the job
				// still ends cancelled.
			case from == domain.StatusCancelling:
				// A requested cancel beats any later outcome.
				j.Status = domain.StatusCancelled
				o.log.Warnf("job %s: refused illegal transition %s -> %s, finishing as %s",
					jobID, from, attempted, j.Status)
			default:
				j.Status = from
				o.log.Warnf("job %s: refused illegal transition %s -> %s, finishing as %s",
					jobID, from, attempted, j.Status)
			}
		}
	}
	j.FinishedAt = o.now()
	if _, err := o.jobs.UpdateJob(ctx, j); err != nil {
		o.log.WithError(err).Warnf("persist job %s", jobID)
	}

	var elapsed time.Duration
	if !j.StartedAt.IsZero() {
		elapsed = j.FinishedAt.Sub(j.StartedAt)
	}
	metrics.ObserveJobFinished(string(j.Kind), j.Status.String(), elapsed)
	o.log.Infof("job %s finished: %s", jobID, j.Status)

	o.guard.release(entry.key, jobID)
	delete(o.active, jobID)
	for _, ch := range entry.subs {
		close(ch)
	}
	entry.subs = nil
}

// ReapStuckCancellations force-finalizes jobs whose cancellation was never
// acknowledged within the deadline, so an unresponsive backend cannot orphan
// them.
func (o *Orchestrator) ReapStuckCancellations(ctx context.Context) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	reaped := 0
	for jobID, entry := range o.active {
		if !entry.cancelRequested || entry.finalized {
			continue
		}
		if o.now().Sub(entry.cancelledAt) < o.cancelAckDeadline {
			continue
		}
		o.log.Warnf("job %s: cancel not acknowledged within %s, reaping", jobID, o.cancelAckDeadline)
		o.finalizeLocked(ctx, jobID, func(cur *domain.Job) {
			cur.Status = domain.StatusCancelled
		})
		reaped++
	}
	return reaped
}

// Get returns the job by id.
func (o *Orchestrator) Get(ctx context.Context, jobID string) (domain.Job, error) {
	return o.jobs.GetJob(ctx, jobID)
}

// List returns the user's jobs, newest first.
func (o *Orchestrator) List(ctx context.Context, userID string) ([]domain.Job, error) {
	return o.jobs.ListJobs(ctx, userID)
}

// SubscribeProgress subscribes to an in-flight job's progress. It returns the
// log accumulated so far and a channel of subsequent messages; the snapshot
// and the channel together form the full ordered sequence, with no message in
// both. The returned cancel function must be called when the consumer is
// done; the channel closes when the job finishes.
func (o *Orchestrator) SubscribeProgress(ctx context.Context, jobID string) ([]string, <-chan string, func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry := o.active[jobID]
	if entry == nil || entry.finalized {
		return nil, nil, nil, fmt.Errorf("job %s is not in flight", jobID)
	}
	j, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, nil, err
	}
	ch := make(chan string, 64)
	entry.subs = append(entry.subs, ch)

	unsubscribe := func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, sub := range entry.subs {
			if sub == ch {
				entry.subs = append(entry.subs[:i], entry.subs[i+1:]...)
				return
			}
		}
	}
	return j.ProgressLog, ch, unsubscribe, nil
}

// publishProgress appends to the job's ordered progress log and fans the
// message out to live subscribers. The log is append-only; it is never
// truncated or reordered within one job. Append and fan-out share the lock so
// a subscriber's replay snapshot and its live stream never overlap.
func (o *Orchestrator) publishProgress(ctx context.Context, jobID, message string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.jobs.AppendJobProgress(ctx, jobID, message); err != nil {
		o.log.WithError(err).Warnf("append progress for job %s", jobID)
	}
	entry := o.active[jobID]
	if entry == nil {
		return
	}
	for _, ch := range entry.subs {
		select {
		case ch <- message:
		default:
			// Slow subscriber; drop rather than stall the job.
		}
	}
}

func guardKey(userID string, kind domain.Kind) string {
	return userID + "/" + string(kind)
}
