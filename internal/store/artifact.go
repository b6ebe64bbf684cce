package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/privgraph/modelhub/internal/model"
)

// PutArtifact stores the trained model blob of a version. Like versions,
// artifacts are written once.
func (s *SQLiteStore) PutArtifact(ctx context.Context, projectID, label string, content []byte) error {
	if len(content) == 0 {
		return fmt.Errorf("%w: empty model artifact", ErrInvalidVersion)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := requireVersion(ctx, tx, projectID, label); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO model_artifacts (project_id, label, content, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (project_id, label) DO NOTHING`,
		projectID, label, content, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: artifact %s/%s", ErrDuplicateVersion, projectID, label)
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetArtifact(ctx context.Context, projectID, label string) (*model.Artifact, error) {
	a := &model.Artifact{ProjectID: projectID, Label: label}
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT content, created_at FROM model_artifacts WHERE project_id = ? AND label = ?`,
		projectID, label).Scan(&a.Content, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: artifact %s/%s", ErrNotFound, projectID, label)
	}
	if err != nil {
		return nil, err
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return a, nil
}
