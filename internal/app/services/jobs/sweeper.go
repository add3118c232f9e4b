package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Raunak-cloud/pocket-dev/pkg/logger"
)

// DefaultSweepInterval is how often the sweeper looks for cancellations that
// were never acknowledged.
const DefaultSweepInterval = 15 * time.Second

// Sweeper periodically reaps jobs stuck in cancelling. It runs as a managed
// system service alongside the HTTP server.
type Sweeper struct {
	orch     *Orchestrator
	interval time.Duration
	log      *logger.Logger
	cron     *cron.Cron
}

// NewSweeper constructs a sweeper over the orchestrator.
func NewSweeper(orch *Orchestrator, interval time.Duration, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if log == nil {
		log = logger.NewDefault("job-sweeper")
	}
	return &Sweeper{orch: orch, interval: interval, log: log}
}

// Name implements system.Service.
func (s *Sweeper) Name() string { return "job-sweeper" }

// Start schedules the sweep.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	s.log.Infof("job sweeper started, interval %s", s.interval)
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *Sweeper) sweep() {
	if n := s.orch.ReapStuckCancellations(context.Background()); n > 0 {
		s.log.Warnf("reaped %d stuck cancellation(s)", n)
	}
}
