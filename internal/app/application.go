// Package app assembles the services into one application with a managed
// lifecycle.
package app

import (
	"context"
	"fmt"

	"github.com/Raunak-cloud/pocket-dev/internal/app/services/assets"
	"github.com/Raunak-cloud/pocket-dev/internal/app/services/clarify"
	"github.com/Raunak-cloud/pocket-dev/internal/app/services/generation"
	"github.com/Raunak-cloud/pocket-dev/internal/app/services/generation/gemini"
	historysvc "github.com/Raunak-cloud/pocket-dev/internal/app/services/history"
	"github.com/Raunak-cloud/pocket-dev/internal/app/services/jobs"
	ledgersvc "github.com/Raunak-cloud/pocket-dev/internal/app/services/ledger"
	projectsvc "github.com/Raunak-cloud/pocket-dev/internal/app/services/projects"
	"github.com/Raunak-cloud/pocket-dev/internal/app/storage"
	"github.com/Raunak-cloud/pocket-dev/internal/app/storage/memory"
	"github.com/Raunak-cloud/pocket-dev/internal/app/system"
	"github.com/Raunak-cloud/pocket-dev/internal/config"
	"github.com/Raunak-cloud/pocket-dev/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Projects storage.ProjectStore
	Ledger   storage.LedgerStore
	Jobs     storage.JobStore
	History  storage.HistoryStore
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Projects *projectsvc.Service
	Ledger   *ledgersvc.Service
	Jobs     *jobs.Orchestrator
	History  *historysvc.Service
	Assets   *assets.Editor
	Uploads  *assets.LocalUploader
}

// New builds a fully initialised application with the provided stores.
func New(ctx context.Context, stores Stores, cfg *config.Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if cfg == nil {
		cfg = &config.Config{}
	}

	mem := memory.New()
	if stores.Projects == nil {
		stores.Projects = mem
	}
	if stores.Ledger == nil {
		stores.Ledger = mem
	}
	if stores.Jobs == nil {
		stores.Jobs = mem
	}
	if stores.History == nil {
		stores.History = mem
	}

	manager := system.NewManager()

	pricing := ledgersvc.LoadPricingOrDefault(cfg.Pricing.ConfigPath)
	ledgerService := ledgersvc.New(stores.Ledger, pricing, log)
	projectService := projectsvc.New(stores.Projects, log)
	historyService := historysvc.New(stores.Projects, stores.History, log)

	orchestrator := jobs.New(stores.Projects, stores.Jobs, ledgerService, log,
		jobs.WithRefundWindow(cfg.Jobs.RefundWindow),
		jobs.WithCancelAckDeadline(cfg.Jobs.CancelAckDeadline),
	)
	orchestrator.AttachHistory(historyService)
	orchestrator.AttachClassifier(generation.KeywordClassifier{})

	clarifyOpts := []clarify.Option{}
	if cfg.Jobs.MaxClarifyRounds > 0 {
		clarifyOpts = append(clarifyOpts, clarify.WithMaxRounds(cfg.Jobs.MaxClarifyRounds))
	}

	editor := assets.NewEditor(log)

	var backend generation.Backend
	if cfg.Generation.GeminiAPIKey != "" {
		gb, err := gemini.New(ctx, cfg.Generation.GeminiAPIKey, cfg.Generation.GeminiModel, log)
		if err != nil {
			return nil, fmt.Errorf("configure gemini backend: %w", err)
		}
		backend = gb
		editor.AttachRegenerator(gb)
		orchestrator.AttachNegotiator(clarify.New(log, append(clarifyOpts, clarify.WithAdvisor(gb))...))
	} else {
		log.Warn("GEMINI_API_KEY not set; using mock generation backend")
		backend = generation.NewMockBackend()
		orchestrator.AttachNegotiator(clarify.New(log, clarifyOpts...))
	}
	orchestrator.AttachBackend(backend)

	var uploads *assets.LocalUploader
	if cfg.Uploads.Dir != "" {
		up, err := assets.NewLocalUploader(cfg.Uploads.Dir, cfg.Uploads.PublicURL, log)
		if err != nil {
			return nil, fmt.Errorf("configure uploads: %w", err)
		}
		uploads = up
		editor.AttachUploader(up)
	} else {
		log.Warn("UPLOADS_DIR not set; asset upload disabled")
	}

	sweeper := jobs.NewSweeper(orchestrator, jobs.DefaultSweepInterval, log)
	if err := manager.Register(sweeper); err != nil {
		return nil, fmt.Errorf("register %s: %w", sweeper.Name(), err)
	}

	return &Application{
		manager:  manager,
		log:      log,
		Projects: projectService,
		Ledger:   ledgerService,
		Jobs:     orchestrator,
		History:  historyService,
		Assets:   editor,
		Uploads:  uploads,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
