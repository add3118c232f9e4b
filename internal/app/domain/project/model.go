// Package project defines the generated-application domain model.
package project

import "time"

// File is one generated source file, unique by Path within a project.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Project is a generated application owned by a user. While a job is in
// flight the orchestrator is the only writer.
type Project struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	Name         string            `json:"name"`
	Files        []File            `json:"files"`
	Dependencies map[string]string `json:"dependencies"`
	LintReport   string            `json:"lint_report,omitempty"`
	Config       map[string]string `json:"config,omitempty"`
	Published    bool              `json:"published"`
	PublishStale bool              `json:"publish_stale"`
	Deleted      bool              `json:"-"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// HistoryEntry is a pre-edit snapshot of a project's files and dependencies.
// Entries are append-only; rollback copies a snapshot forward, it never
// removes entries.
type HistoryEntry struct {
	ID           string            `json:"id"`
	ProjectID    string            `json:"project_id"`
	Prompt       string            `json:"prompt"`
	Files        []File            `json:"files"`
	Dependencies map[string]string `json:"dependencies"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Clone returns a deep copy of the project.
func (p Project) Clone() Project {
	out := p
	out.Files = CloneFiles(p.Files)
	out.Dependencies = CloneDependencies(p.Dependencies)
	if p.Config != nil {
		out.Config = make(map[string]string, len(p.Config))
		for k, v := range p.Config {
			out.Config[k] = v
		}
	}
	return out
}

// CloneFiles deep copies a file slice.
func CloneFiles(files []File) []File {
	if files == nil {
		return nil
	}
	out := make([]File, len(files))
	copy(out, files)
	return out
}

// CloneDependencies deep copies a dependency map.
func CloneDependencies(deps map[string]string) map[string]string {
	if deps == nil {
		return nil
	}
	out := make(map[string]string, len(deps))
	for k, v := range deps {
		out[k] = v
	}
	return out
}
