// Package projects exposes CRUD plus publish bookkeeping over the project
// store. Generation and edit flows write projects through the orchestrator;
// this service covers the direct surface.
package projects

import (
	"context"
	"fmt"
	"strings"

	"github.com/Raunak-cloud/pocket-dev/internal/app/domain/project"
	"github.com/Raunak-cloud/pocket-dev/internal/app/storage"
	"github.com/Raunak-cloud/pocket-dev/pkg/logger"
)

// Service wraps the project store with validation.
type Service struct {
	store storage.ProjectStore
	log   *logger.Logger
}

// New constructs the service.
func New(store storage.ProjectStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("projects")
	}
	return &Service{store: store, log: log}
}

// Create validates and persists a new project shell.
func (s *Service) Create(ctx context.Context, userID, name string) (project.Project, error) {
	if userID == "" {
		return project.Project{}, fmt.Errorf("user id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return project.Project{}, fmt.Errorf("project name is required")
	}
	return s.store.CreateProject(ctx, project.Project{UserID: userID, Name: name})
}

// Get returns the project by id.
func (s *Service) Get(ctx context.Context, id string) (project.Project, error) {
	return s.store.GetProject(ctx, id)
}

// List returns the user's projects, most recently updated first.
func (s *Service) List(ctx context.Context, userID string) ([]project.Project, error) {
	return s.store.ListProjects(ctx, userID)
}

// Rename updates the display name.
func (s *Service) Rename(ctx context.Context, id, name string) (project.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return project.Project{}, fmt.Errorf("project name is required")
	}
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return project.Project{}, err
	}
	p.Name = name
	return s.store.UpdateProject(ctx, p)
}

// Delete soft-deletes the project.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteProject(ctx, id)
}

// Apply persists a mutated project, flipping PublishStale when a published
// version exists so the preview and the live site diverge visibly.
func (s *Service) Apply(ctx context.Context, p project.Project) (project.Project, error) {
	if p.Published {
		p.PublishStale = true
	}
	return s.store.UpdateProject(ctx, p)
}

// Publish marks the current file set as the published version. Edits and
// rollbacks after this point flip PublishStale until the next publish.
func (s *Service) Publish(ctx context.Context, id string) (project.Project, error) {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return project.Project{}, err
	}
	if len(p.Files) == 0 {
		return project.Project{}, fmt.Errorf("project %s has no files to publish", id)
	}
	p.Published = true
	p.PublishStale = false
	updated, err := s.store.UpdateProject(ctx, p)
	if err != nil {
		return project.Project{}, fmt.Errorf("persist publish: %w", err)
	}
	s.log.Infof("project %s published", id)
	return updated, nil
}
