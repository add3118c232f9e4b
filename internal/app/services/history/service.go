// Package history snapshots project state before each edit and supports
// rollback. History is append-only: rollback copies a snapshot forward as the
// new current state, it never truncates the log.
package history

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Raunak-cloud/pocket-dev/internal/app/domain/project"
	"github.com/Raunak-cloud/pocket-dev/internal/app/storage"
	"github.com/Raunak-cloud/pocket-dev/pkg/logger"
)

// Service manages pre-edit snapshots.
type Service struct {
	projects storage.ProjectStore
	store    storage.HistoryStore
	log      *logger.Logger
}

// New constructs a history service.
func New(projects storage.ProjectStore, store storage.HistoryStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("history")
	}
	return &Service{projects: projects, store: store, log: log}
}

// Snapshot records the project's files and dependencies as they are before an
// edit is applied.
func (s *Service) Snapshot(ctx context.Context, p project.Project, promptLabel string) (project.HistoryEntry, error) {
	entry, err := s.store.AppendHistory(ctx, project.HistoryEntry{
		ID:           uuid.New().String(),
		ProjectID:    p.ID,
		Prompt:       promptLabel,
		Files:        project.CloneFiles(p.Files),
		Dependencies: project.CloneDependencies(p.Dependencies),
	})
	if err != nil {
		return project.HistoryEntry{}, fmt.Errorf("append history: %w", err)
	}
	return entry, nil
}

// List returns the project's history entries in append order.
func (s *Service) List(ctx context.Context, projectID string) ([]project.HistoryEntry, error) {
	return s.store.ListHistory(ctx, projectID)
}

// Rollback replaces the project's current files and dependencies with the
// entry's snapshot and persists the result. Any existing publish is marked
// stale. Applying the same rollback twice yields identical file sets.
func (s *Service) Rollback(ctx context.Context, projectID, entryID string) (project.Project, error) {
	entry, err := s.store.GetHistoryEntry(ctx, entryID)
	if err != nil {
		return project.Project{}, fmt.Errorf("load history entry: %w", err)
	}
	if entry.ProjectID != projectID {
		return project.Project{}, fmt.Errorf("history entry %s does not belong to project %s", entryID, projectID)
	}

	p, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return project.Project{}, fmt.Errorf("load project: %w", err)
	}

	p.Files = project.CloneFiles(entry.Files)
	p.Dependencies = project.CloneDependencies(entry.Dependencies)
	if p.Published {
		p.PublishStale = true
	}

	updated, err := s.projects.UpdateProject(ctx, p)
	if err != nil {
		// The in-memory state remains authoritative for the session.
		s.log.WithError(err).Warnf("persist rollback of project %s", projectID)
		return p, nil
	}
	s.log.Infof("project %s rolled back to history entry %s", projectID, entryID)
	return updated, nil
}
