package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/privgraph/modelhub/internal/model"
)

// Export is a portable dump of projects and their recorded metrics.
type Export struct {
	Projects          []model.Project         `json:"projects"`
	Versions          []model.ModelVersion    `json:"versions"`
	ConfusionMatrices []model.ConfusionMatrix `json:"confusion_matrices"`
}

// ExportAll returns every project with its versions and confusion matrices,
// optionally restricted to one project.
func (s *SQLiteStore) ExportAll(ctx context.Context, projectID string) (*Export, error) {
	return exportFrom(ctx, s, projectID)
}

// Import stores the records of an export, keeping project ids. Records that
// already exist are skipped. Returns the number of records written.
func (s *SQLiteStore) Import(ctx context.Context, e *Export) (int, error) {
	return importInto(ctx, s, e, s.importProject)
}

func (s *SQLiteStore) importProject(ctx context.Context, p model.Project) (bool, error) {
	p, err := withProjectDefaults(p)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, task_name, description, status, privacy_status, owner_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Name, p.TaskName, p.Description, p.Status, p.PrivacyStatus, p.OwnerID,
		p.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func exportFrom(ctx context.Context, s Store, projectID string) (*Export, error) {
	out := &Export{
		Projects:          []model.Project{},
		Versions:          []model.ModelVersion{},
		ConfusionMatrices: []model.ConfusionMatrix{},
	}

	if projectID != "" {
		p, err := s.GetProject(ctx, projectID)
		if err != nil {
			return nil, err
		}
		out.Projects = append(out.Projects, *p)
	} else {
		projects, err := s.ListProjects(ctx, ListProjectsParams{Limit: 1 << 30})
		if err != nil {
			return nil, err
		}
		out.Projects = append(out.Projects, projects...)
	}

	for _, p := range out.Projects {
		labels, err := s.ListVersions(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, label := range labels {
			v, err := s.GetVersion(ctx, p.ID, label)
			if err != nil {
				return nil, err
			}
			out.Versions = append(out.Versions, *v)

			m, err := s.GetConfusionMatrix(ctx, p.ID, label)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			out.ConfusionMatrices = append(out.ConfusionMatrices, *m)
		}
	}
	return out, nil
}

func importInto(ctx context.Context, s Store, e *Export, insertProject func(context.Context, model.Project) (bool, error)) (int, error) {
	imported := 0
	for _, p := range e.Projects {
		created, err := insertProject(ctx, p)
		if err != nil {
			return imported, err
		}
		if created {
			imported++
		}
		for _, c := range p.CollaboratorIDs {
			_, err := s.AddCollaborator(ctx, p.ID, c)
			if err != nil && !errors.Is(err, ErrAlreadyCollaborator) {
				return imported, err
			}
		}
	}
	for _, v := range e.Versions {
		_, err := s.PutVersion(ctx, v)
		if errors.Is(err, ErrDuplicateVersion) {
			continue
		}
		if err != nil {
			return imported, err
		}
		imported++
	}
	for _, m := range e.ConfusionMatrices {
		err := s.PutConfusionMatrix(ctx, m)
		if errors.Is(err, ErrDuplicateVersion) {
			continue
		}
		if err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

// withProjectDefaults fills the optional fields of an imported project and
// rejects statuses the store does not know.
func withProjectDefaults(p model.Project) (model.Project, error) {
	if p.ID == "" || p.OwnerID == "" {
		return p, fmt.Errorf("%w: imported project needs an id and an owner", ErrInvalidProject)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = model.StatusActive
	}
	if !model.ValidStatuses[p.Status] {
		return p, fmt.Errorf("%w: project %s has invalid status %q (valid: Active, Inactive, Completed)",
			ErrInvalidProject, p.ID, p.Status)
	}
	if p.PrivacyStatus == "" {
		p.PrivacyStatus = model.PrivacyPrivate
	}
	if !model.ValidPrivacyStatuses[p.PrivacyStatus] {
		return p, fmt.Errorf("%w: project %s has invalid privacy status %q (valid: Private, Public)",
			ErrInvalidProject, p.ID, p.PrivacyStatus)
	}
	return p, nil
}
