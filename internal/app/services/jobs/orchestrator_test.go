package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	clarifydomain "github.com/Raunak-cloud/pocket-dev/internal/app/domain/clarify"
	domain "github.com/Raunak-cloud/pocket-dev/internal/app/domain/job"
	"github.com/Raunak-cloud/pocket-dev/internal/app/domain/project"
	"github.com/Raunak-cloud/pocket-dev/internal/app/services/clarify"
	"github.com/Raunak-cloud/pocket-dev/internal/app/services/generation"
	historysvc "github.com/Raunak-cloud/pocket-dev/internal/app/services/history"
	ledgersvc "github.com/Raunak-cloud/pocket-dev/internal/app/services/ledger"
	"github.com/Raunak-cloud/pocket-dev/internal/app/storage/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type env struct {
	orch    *Orchestrator
	store   *memory.Store
	ledger  *ledgersvc.Service
	backend *generation.MockBackend
	clock   *fakeClock
}

func newEnv(t *testing.T, balance float64) *env {
	t.Helper()
	store := memory.New()
	ledger := ledgersvc.New(store, ledgersvc.DefaultPricing(), nil)
	clock := newFakeClock()
	orch := New(store, store, ledger, nil, WithClock(clock.Now))
	backend := generation.NewMockBackend()
	orch.AttachBackend(backend)
	orch.AttachHistory(historysvc.New(store, store, nil))
	orch.AttachNegotiator(clarify.New(nil))
	orch.AttachClassifier(generation.KeywordClassifier{})
	if balance > 0 {
		if _, err := ledger.Deposit(context.Background(), "u1", balance, "test checkout"); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}
	return &env{orch: orch, store: store, ledger: ledger, backend: backend, clock: clock}
}

func waitStatus(t *testing.T, orch *Orchestrator, jobID string, want domain.Status) domain.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		j, err := orch.Get(context.Background(), jobID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if j.Status == want {
			return j
		}
		if j.Status.IsTerminal() {
			t.Fatalf("job ended %s, want %s (error: %q)", j.Status, want, j.Error)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for job %s to reach %s", jobID, want)
	return domain.Job{}
}

func TestGenerationHappyPath(t *testing.T) {
	e := newEnv(t, 10)
	ctx := context.Background()

	j, err := e.orch.Submit(ctx, SubmitRequest{
		UserID:      "u1",
		Prompt:      "build a recipe sharing app",
		ProjectName: "recipes",
		AutoConfirm: true,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if j.Status != domain.StatusRunning {
		t.Fatalf("after auto-confirm: got %s, want %s", j.Status, domain.StatusRunning)
	}

	j = waitStatus(t, e.orch, j.ID, domain.StatusSucceeded)
	if j.ProjectID == "" {
		t.Fatal("succeeded job should reference the created project")
	}

	p, err := e.store.GetProject(ctx, j.ProjectID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if len(p.Files) == 0 || p.Files[0].Path != "index.html" {
		t.Fatalf("project files: %+v", p.Files)
	}
	if p.Name != "recipes" {
		t.Fatalf("project name: got %q", p.Name)
	}

	bal, err := e.ledger.Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 8.00 {
		t.Fatalf("balance after 2.00 debit: got %.2f, want 8.00", bal)
	}

	if len(j.ProgressLog) != len(e.backend.Stages) {
		t.Fatalf("progress log: got %v, want the %d backend stages", j.ProgressLog, len(e.backend.Stages))
	}
	for i, stage := range e.backend.Stages {
		if j.ProgressLog[i] != stage {
			t.Fatalf("progress[%d]: got %q, want %q", i, j.ProgressLog[i], stage)
		}
	}
}

func TestEditMergesIntoProjectAndSnapshotsHistory(t *testing.T) {
	e := newEnv(t, 10)
	ctx := context.Background()

	p, err := e.store.CreateProject(ctx, project.Project{
		UserID: "u1",
		Name:   "site",
		Files: []project.File{
			{Path: "index.html", Content: "<h1>old</h1>"},
			{Path: "style.css", Content: "body{}"},
		},
		Dependencies: map[string]string{"react": "18.2.0"},
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	e.backend.Result = generation.Result{
		Files: []project.File{
			{Path: "index.html", Content: "<h1>new</h1>"},
			{Path: "about.html", Content: "<p>about</p>"},
		},
		Dependencies: map[string]string{"react": "18.3.1", "dayjs": "1.11.10"},
	}

	j, err := e.orch.Submit(ctx, SubmitRequest{
		UserID:      "u1",
		ProjectID:   p.ID,
		Kind:        domain.KindEdit,
		Prompt:      "replace the index headline and add an about page",
		AutoConfirm: true,
	})
	if err != nil {
		t.Fatalf("submit edit: %v", err)
	}
	waitStatus(t, e.orch, j.ID, domain.StatusSucceeded)

	got, err := e.store.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	wantPaths := []string{"index.html", "style.css", "about.html"}
	if len(got.Files) != len(wantPaths) {
		t.Fatalf("merged files: %+v", got.Files)
	}
	for i, path := range wantPaths {
		if got.Files[i].Path != path {
			t.Fatalf("file order[%d]: got %q, want %q", i, got.Files[i].Path, path)
		}
	}
	if got.Files[0].Content != "<h1>new</h1>" {
		t.Fatalf("returned file should win: %q", got.Files[0].Content)
	}
	if got.Files[1].Content != "body{}" {
		t.Fatalf("untouched file should survive: %q", got.Files[1].Content)
	}
	if got.Dependencies["react"] != "18.3.1" || got.Dependencies["dayjs"] == "" {
		t.Fatalf("merged dependencies: %v", got.Dependencies)
	}

	entries, err := e.store.ListHistory(ctx, p.ID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("history entries: got %d, want 1", len(entries))
	}
	if entries[0].Files[0].Content != "<h1>old</h1>" {
		t.Fatal("snapshot should capture the pre-edit state")
	}
}

func TestSubmitInsufficientBalanceRedirectsToTopUp(t *testing.T) {
	e := newEnv(t, 1)

	_, err := e.orch.Submit(context.Background(), SubmitRequest{
		UserID: "u1",
		Prompt: "build a notes app",
	})
	var topUp *TopUpRequiredError
	if !errors.As(err, &topUp) {
		t.Fatalf("want TopUpRequiredError, got %v", err)
	}
	if topUp.Required != 2.00 || topUp.Balance != 1.00 {
		t.Fatalf("top-up details: %+v", topUp)
	}

	jobsList, err := e.orch.List(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobsList) != 0 {
		t.Fatalf("no job should be created on a short balance, got %d", len(jobsList))
	}
}

func TestSubmitVagueEditRequiresClarification(t *testing.T) {
	e := newEnv(t, 10)
	ctx := context.Background()

	p, err := e.store.CreateProject(ctx, project.Project{UserID: "u1", Name: "site"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	_, err = e.orch.Submit(ctx, SubmitRequest{
		UserID:    "u1",
		ProjectID: p.ID,
		Kind:      domain.KindEdit,
		Prompt:    "change it",
	})
	var clarErr *ClarificationRequiredError
	if !errors.As(err, &clarErr) {
		t.Fatalf("want ClarificationRequiredError, got %v", err)
	}
	if clarErr.Question == "" {
		t.Fatal("clarification should carry a question")
	}

	jobsList, _ := e.orch.List(ctx, "u1")
	if len(jobsList) != 0 {
		t.Fatal("no job should be created while clarification is pending")
	}
}

func TestSubmitIntegrationIntentRequiresSelection(t *testing.T) {
	e := newEnv(t, 10)

	_, err := e.orch.Submit(context.Background(), SubmitRequest{
		UserID: "u1",
		Prompt: "build a forum where people sign up and post",
	})
	var sel *IntegrationSelectionError
	if !errors.As(err, &sel) {
		t.Fatalf("want IntegrationSelectionError, got %v", err)
	}
	if !sel.Intents.HasAuthIntent {
		t.Fatal("sign up should flag auth intent")
	}

	// Explicit selection clears the gate.
	j, err := e.orch.Submit(context.Background(), SubmitRequest{
		UserID:      "u1",
		Prompt:      "build a forum where people sign up and post",
		AuthOptions: []string{"email"},
	})
	if err != nil {
		t.Fatalf("submit with options: %v", err)
	}
	if j.Quote.Total != 4.00 {
		t.Fatalf("quote with one auth option: got %.2f, want 4.00", j.Quote.Total)
	}
}

func TestSecondJobOfSameKindRejectedWhileActive(t *testing.T) {
	e := newEnv(t, 20)
	ctx := context.Background()

	e.backend.Block = make(chan struct{})
	defer close(e.backend.Block)

	if _, err := e.orch.Submit(ctx, SubmitRequest{
		UserID:      "u1",
		Prompt:      "build a chat app",
		AutoConfirm: true,
	}); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	_, err := e.orch.Submit(ctx, SubmitRequest{
		UserID:      "u1",
		Prompt:      "build a weather app",
		AutoConfirm: true,
	})
	if !errors.Is(err, ErrJobActive) {
		t.Fatalf("want ErrJobActive, got %v", err)
	}
}

func TestCancelWithinWindowRefundsOnce(t *testing.T) {
	e := newEnv(t, 10)
	ctx := context.Background()

	e.backend.Block = make(chan struct{})

	j, err := e.orch.Submit(ctx, SubmitRequest{
		UserID:      "u1",
		Prompt:      "build a gallery app",
		AutoConfirm: true,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	e.clock.Advance(3 * time.Second)

	cancelled, err := e.orch.Cancel(ctx, j.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.StatusCancelling {
		t.Fatalf("after cancel: got %s, want %s", cancelled.Status, domain.StatusCancelling)
	}
	if !cancelled.RefundIssued {
		t.Fatal("cancel inside the window should flip the refund flag")
	}

	bal, _ := e.ledger.Balance(ctx, "u1")
	if bal != 10.00 {
		t.Fatalf("balance after refund: got %.2f, want 10.00", bal)
	}

	// A second request while still cancelling must not credit again.
	if _, err := e.orch.Cancel(ctx, j.ID); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	bal, _ = e.ledger.Balance(ctx, "u1")
	if bal != 10.00 {
		t.Fatalf("second cancel double-credited: balance %.2f", bal)
	}

	// Release the backend; its late result must be discarded, not merged.
	close(e.backend.Block)
	j = waitStatus(t, e.orch, j.ID, domain.StatusCancelled)

	if j.ProjectID != "" {
		t.Fatal("cancelled generation should not have produced a project")
	}
	projects, _ := e.store.ListProjects(ctx, "u1")
	if len(projects) != 0 {
		t.Fatalf("late result was applied: %d project(s)", len(projects))
	}
	if len(e.backend.Cancelled) != 1 || e.backend.Cancelled[0] != j.ID {
		t.Fatalf("remote cancel not forwarded: %v", e.backend.Cancelled)
	}
}

func TestCancelAfterWindowDoesNotRefund(t *testing.T) {
	e := newEnv(t, 10)
	ctx := context.Background()

	e.backend.Block = make(chan struct{})

	j, err := e.orch.Submit(ctx, SubmitRequest{
		UserID:      "u1",
		Prompt:      "build a budgeting app",
		AutoConfirm: true,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	e.clock.Advance(DefaultRefundWindow + time.Second)

	cancelled, err := e.orch.Cancel(ctx, j.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.RefundIssued {
		t.Fatal("cancel outside the window must not refund")
	}

	bal, _ := e.ledger.Balance(ctx, "u1")
	if bal != 8.00 {
		t.Fatalf("balance: got %.2f, want 8.00 (debit stands)", bal)
	}

	close(e.backend.Block)
	waitStatus(t, e.orch, j.ID, domain.StatusCancelled)
}

func TestCancelAwaitingConfirmationAbandonsWithoutDebit(t *testing.T) {
	e := newEnv(t, 10)
	ctx := context.Background()

	j, err := e.orch.Submit(ctx, SubmitRequest{
		UserID: "u1",
		Prompt: "build a kanban board",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if j.Status != domain.StatusAwaitingConfirmation {
		t.Fatalf("status: %s", j.Status)
	}

	cancelled, err := e.orch.Cancel(ctx, j.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.StatusCancelled {
		t.Fatalf("status: got %s, want %s", cancelled.Status, domain.StatusCancelled)
	}

	bal, _ := e.ledger.Balance(ctx, "u1")
	if bal != 10.00 {
		t.Fatalf("nothing was debited, balance should stay 10.00, got %.2f", bal)
	}
}

func TestBackendFailureKeepsDebit(t *testing.T) {
	e := newEnv(t, 10)
	ctx := context.Background()

	e.backend.Err = errors.New("model overloaded")

	j, err := e.orch.Submit(ctx, SubmitRequest{
		UserID:      "u1",
		Prompt:      "build a polling app",
		AutoConfirm: true,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, gerr := e.orch.Get(ctx, j.ID)
		if gerr != nil {
			t.Fatalf("get job: %v", gerr)
		}
		if got.Status == domain.StatusFailed {
			if got.Error == "" {
				t.Fatal("failed job should carry the backend error")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job stuck in %s", got.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}

	bal, _ := e.ledger.Balance(ctx, "u1")
	if bal != 8.00 {
		t.Fatalf("failure must not refund: balance %.2f, want 8.00", bal)
	}
}

func TestReapStuckCancellations(t *testing.T) {
	e := newEnv(t, 10)
	ctx := context.Background()

	e.backend.Block = make(chan struct{})

	j, err := e.orch.Submit(ctx, SubmitRequest{
		UserID:      "u1",
		Prompt:      "build a timer app",
		AutoConfirm: true,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := e.orch.Cancel(ctx, j.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Before the deadline the sweeper leaves the job alone.
	if n := e.orch.ReapStuckCancellations(ctx); n != 0 {
		t.Fatalf("reaped too early: %d", n)
	}

	e.clock.Advance(DefaultCancelAckDeadline + time.Second)
	if n := e.orch.ReapStuckCancellations(ctx); n != 1 {
		t.Fatalf("reaped: got %d, want 1", n)
	}

	got, err := e.orch.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != domain.StatusCancelled {
		t.Fatalf("status after reap: %s", got.Status)
	}

	// The freed guard admits a new job of the same kind. Closing the block
	// lets both the abandoned run and the new one proceed.
	close(e.backend.Block)
	next, err := e.orch.Submit(ctx, SubmitRequest{
		UserID:      "u1",
		Prompt:      "build a timer app again",
		AutoConfirm: true,
	})
	if err != nil {
		t.Fatalf("submit after reap: %v", err)
	}
	waitStatus(t, e.orch, next.ID, domain.StatusSucceeded)
}

func TestSubscribeProgressStreamsAndCloses(t *testing.T) {
	e := newEnv(t, 10)
	ctx := context.Background()

	e.backend.Block = make(chan struct{})

	j, err := e.orch.Submit(ctx, SubmitRequest{
		UserID:      "u1",
		Prompt:      "build a quiz app",
		AutoConfirm: true,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Let the backend emit its stages before subscribing, so the replay
	// snapshot is non-trivial.
	deadline := time.Now().Add(2 * time.Second)
	for {
		cur, gerr := e.orch.Get(ctx, j.ID)
		if gerr != nil {
			t.Fatalf("get job: %v", gerr)
		}
		if len(cur.ProgressLog) == len(e.backend.Stages) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("progress log never filled: %v", cur.ProgressLog)
		}
		time.Sleep(5 * time.Millisecond)
	}

	snapshot, ch, unsubscribe, err := e.orch.SubscribeProgress(ctx, j.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	close(e.backend.Block)

	// The channel closes once the job finalizes; any messages still queued
	// drain first.
	var live []string
	for msg := range ch {
		live = append(live, msg)
	}
	waitStatus(t, e.orch, j.ID, domain.StatusSucceeded)

	// Snapshot and live stream partition the log: together they are the full
	// ordered sequence, with no message delivered twice.
	got, _ := e.orch.Get(ctx, j.ID)
	combined := append(append([]string(nil), snapshot...), live...)
	if len(combined) != len(got.ProgressLog) {
		t.Fatalf("snapshot %v + live %v should equal log %v", snapshot, live, got.ProgressLog)
	}
	for i := range combined {
		if combined[i] != got.ProgressLog[i] {
			t.Fatalf("message %d: got %q, want %q", i, combined[i], got.ProgressLog[i])
		}
	}
}

// cancelOnPersistStore fires a cancel attempt while the generated project is
// being persisted, then pauses so the attempt has every chance to land
// mid-merge.
type cancelOnPersistStore struct {
	*memory.Store
	once   sync.Once
	cancel func()
	done   chan struct{}
}

func (s *cancelOnPersistStore) CreateProject(ctx context.Context, p project.Project) (project.Project, error) {
	s.once.Do(func() {
		go func() {
			s.cancel()
			close(s.done)
		}()
		time.Sleep(20 * time.Millisecond)
	})
	return s.Store.CreateProject(ctx, p)
}

func TestCancelArrivingDuringMergeDoesNotRefund(t *testing.T) {
	store := memory.New()
	ps := &cancelOnPersistStore{Store: store, done: make(chan struct{})}
	ldg := ledgersvc.New(store, ledgersvc.DefaultPricing(), nil)
	clock := newFakeClock()
	orch := New(ps, store, ldg, nil, WithClock(clock.Now))
	orch.AttachBackend(generation.NewMockBackend())
	ctx := context.Background()
	if _, err := ldg.Deposit(ctx, "u1", 10, "test checkout"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	j, err := orch.Submit(ctx, SubmitRequest{UserID: "u1", Prompt: "build a portfolio site"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	ps.cancel = func() { _, _ = orch.Cancel(ctx, j.ID) }
	if _, err := orch.Confirm(ctx, j.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	<-ps.done
	j = waitStatus(t, orch, j.ID, domain.StatusSucceeded)

	// The cancel either lands before the merge and the job ends cancelled, or
	// it waits out the merge and finds a finished job. It must never refund a
	// job whose result was applied.
	if j.RefundIssued {
		t.Fatal("refund issued for a job that finished succeeded")
	}
	bal, err := ldg.Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 8.00 {
		t.Fatalf("balance: got %.2f, want 8.00 (debit kept)", bal)
	}
	projects, _ := store.ListProjects(ctx, "u1")
	if len(projects) != 1 {
		t.Fatalf("projects: got %d, want 1", len(projects))
	}
}

// appendOnGetStore injects a progress append from another writer between a
// caller's read and write of the job record.
type appendOnGetStore struct {
	*memory.Store
	mu    sync.Mutex
	armed bool
}

func (s *appendOnGetStore) arm() {
	s.mu.Lock()
	s.armed = true
	s.mu.Unlock()
}

func (s *appendOnGetStore) GetJob(ctx context.Context, id string) (domain.Job, error) {
	j, err := s.Store.GetJob(ctx, id)
	s.mu.Lock()
	armed := s.armed
	s.armed = false
	s.mu.Unlock()
	if err == nil && armed {
		if aerr := s.Store.AppendJobProgress(ctx, id, "uploading assets"); aerr != nil {
			return j, aerr
		}
	}
	return j, err
}

func TestCancelKeepsConcurrentProgressAppend(t *testing.T) {
	store := memory.New()
	js := &appendOnGetStore{Store: store}
	ldg := ledgersvc.New(store, ledgersvc.DefaultPricing(), nil)
	clock := newFakeClock()
	orch := New(store, js, ldg, nil, WithClock(clock.Now))
	backend := generation.NewMockBackend()
	backend.Block = make(chan struct{})
	orch.AttachBackend(backend)
	ctx := context.Background()
	if _, err := ldg.Deposit(ctx, "u1", 10, "test checkout"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	j, err := orch.Submit(ctx, SubmitRequest{UserID: "u1", Prompt: "build a travel journal", AutoConfirm: true})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		cur, gerr := orch.Get(ctx, j.ID)
		if gerr != nil {
			t.Fatalf("get job: %v", gerr)
		}
		if len(cur.ProgressLog) == len(backend.Stages) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("progress log never filled: %v", cur.ProgressLog)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The cancel's whole-record write is built from a snapshot read just
	// before this message lands; the message must survive anyway.
	js.arm()
	if _, err := orch.Cancel(ctx, j.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	want := append(append([]string(nil), backend.Stages...), "uploading assets")
	got, _ := orch.Get(ctx, j.ID)
	if len(got.ProgressLog) != len(want) {
		t.Fatalf("progress log after cancel: got %v, want %v", got.ProgressLog, want)
	}
	for i := range want {
		if got.ProgressLog[i] != want[i] {
			t.Fatalf("progress log entry %d: got %q, want %q", i, got.ProgressLog[i], want[i])
		}
	}

	close(backend.Block)
	final := waitStatus(t, orch, j.ID, domain.StatusCancelled)
	if len(final.ProgressLog) != len(want) {
		t.Fatalf("progress log after finalize: got %v, want %v", final.ProgressLog, want)
	}
}

// stallingAdvisor parks inside the clarification call until released.
type stallingAdvisor struct {
	entered chan struct{}
	release chan struct{}
}

func (a *stallingAdvisor) Evaluate(context.Context, string, []string, []clarifydomain.Exchange) (clarify.Result, error) {
	close(a.entered)
	<-a.release
	return clarify.Result{}, nil
}

func TestSubmitClarificationDoesNotBlockOtherJobs(t *testing.T) {
	e := newEnv(t, 10)
	ctx := context.Background()

	adv := &stallingAdvisor{entered: make(chan struct{}), release: make(chan struct{})}
	e.orch.AttachNegotiator(clarify.New(nil, clarify.WithAdvisor(adv)))

	if _, err := e.ledger.Deposit(ctx, "u2", 1, "test checkout"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	p, err := e.store.CreateProject(ctx, project.Project{
		UserID: "u2",
		Name:   "shop",
		Files:  []project.File{{Path: "index.html", Content: "<html></html>"}},
	})
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}

	e.backend.Block = make(chan struct{})
	j, err := e.orch.Submit(ctx, SubmitRequest{UserID: "u1", Prompt: "build a blog", AutoConfirm: true})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	submitDone := make(chan error, 1)
	go func() {
		_, serr := e.orch.Submit(ctx, SubmitRequest{
			UserID:    "u2",
			ProjectID: p.ID,
			Kind:      domain.KindEdit,
			Prompt:    "make the hero headline larger",
		})
		submitDone <- serr
	}()
	<-adv.entered

	// The other user's cancel must go through while the advisor call is
	// still parked.
	cancelDone := make(chan error, 1)
	go func() {
		_, cerr := e.orch.Cancel(ctx, j.ID)
		cancelDone <- cerr
	}()
	select {
	case cerr := <-cancelDone:
		if cerr != nil {
			t.Fatalf("cancel: %v", cerr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancel stalled behind an in-flight clarification evaluation")
	}

	close(adv.release)
	if serr := <-submitDone; serr != nil {
		t.Fatalf("edit submit: %v", serr)
	}
	close(e.backend.Block)
	waitStatus(t, e.orch, j.ID, domain.StatusCancelled)
}
