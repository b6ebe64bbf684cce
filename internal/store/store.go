// Package store provides the model-artifact storage interface with SQLite
// and PostgreSQL implementations.
package store

import (
	"context"
	"errors"

	"github.com/privgraph/modelhub/internal/model"
)

var (
	// ErrNotFound is returned when a project, version, matrix or artifact is absent.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateVersion is returned when a (project, version) record already exists.
	// Records are immutable once written; the first writer wins.
	ErrDuplicateVersion = errors.New("duplicate version")
	// ErrInvalidVersion is returned for records that break the data model invariants.
	ErrInvalidVersion = errors.New("invalid record")
	// ErrInvalidProject is returned for malformed project parameters.
	ErrInvalidProject = errors.New("invalid project")
	// ErrAlreadyCollaborator is returned when adding an existing collaborator.
	ErrAlreadyCollaborator = errors.New("user is already a collaborator")
)

// CreateProjectParams holds parameters for creating a project.
type CreateProjectParams struct {
	Name          string
	TaskName      string
	Description   string
	PrivacyStatus string
	OwnerID       string
}

// ListProjectsParams filters ListProjects. OwnerID matches owners and collaborators.
type ListProjectsParams struct {
	OwnerID    string
	PublicOnly bool
	Limit      int
}

// VersionReader is the read side used by dashboards.
type VersionReader interface {
	// ListVersions returns the sorted version labels of a project.
	// Returns ErrNotFound for an unknown project.
	ListVersions(ctx context.Context, projectID string) ([]string, error)

	// GetVersion returns one version. Returns ErrNotFound if absent.
	GetVersion(ctx context.Context, projectID, label string) (*model.ModelVersion, error)
}

// Store defines the artifact storage interface.
type Store interface {
	VersionReader

	CreateProject(ctx context.Context, p CreateProjectParams) (*model.Project, error)
	GetProject(ctx context.Context, id string) (*model.Project, error)
	ListProjects(ctx context.Context, p ListProjectsParams) ([]model.Project, error)
	// AddCollaborator appends a collaborator; there is no removal.
	AddCollaborator(ctx context.Context, projectID, userID string) (*model.Project, error)

	// PutVersion records a trained version. Fails with ErrDuplicateVersion if
	// the label already exists for the project.
	PutVersion(ctx context.Context, v model.ModelVersion) (*model.ModelVersion, error)

	PutConfusionMatrix(ctx context.Context, m model.ConfusionMatrix) error
	// GetConfusionMatrix returns ErrNotFound when no matrix was recorded,
	// which is distinct from a matrix of zero counts.
	GetConfusionMatrix(ctx context.Context, projectID, label string) (*model.ConfusionMatrix, error)

	// Deploy returns the endpoint of a version, creating it on first call.
	// Concurrent callers observe the same URL.
	Deploy(ctx context.Context, projectID, label string) (*model.DeploymentEndpoint, error)

	PutArtifact(ctx context.Context, projectID, label string, content []byte) error
	GetArtifact(ctx context.Context, projectID, label string) (*model.Artifact, error)

	Stats(ctx context.Context) (*Stats, error)
	ExportAll(ctx context.Context, projectID string) (*Export, error)
	Import(ctx context.Context, e *Export) (int, error)

	// Close closes the store.
	Close() error
}
