package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/privgraph/modelhub/internal/model"
)

// Deploy creates the endpoint of a version or returns the existing one. The
// insert and the read happen in one transaction keyed by (project, version),
// so racing callers all read the row of whichever insert landed first.
func (s *SQLiteStore) Deploy(ctx context.Context, projectID, label string) (*model.DeploymentEndpoint, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := requireVersion(ctx, tx, projectID, label); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO deployments (project_id, label, url, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (project_id, label) DO NOTHING`,
		projectID, label, deployURL(s.opts.deployBaseURL, projectID, label),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert deployment: %w", err)
	}

	ep := &model.DeploymentEndpoint{ProjectID: projectID, Label: label}
	var createdAt string
	err = tx.QueryRowContext(ctx,
		`SELECT url, created_at FROM deployments WHERE project_id = ? AND label = ?`,
		projectID, label).Scan(&ep.URL, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: deployment %s/%s", ErrNotFound, projectID, label)
	}
	if err != nil {
		return nil, err
	}
	ep.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ep, nil
}

// deployURL mints a fresh prediction URL: <base>/<project>/<version>/<token>.
func deployURL(base, projectID, label string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(projectID) + "/" +
		url.PathEscape(label) + "/" + uuid.NewString()
}
