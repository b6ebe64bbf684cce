package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/privgraph/modelhub/internal/model"
)

func (s *SQLiteStore) CreateProject(ctx context.Context, p CreateProjectParams) (*model.Project, error) {
	if strings.TrimSpace(p.Name) == "" || p.OwnerID == "" {
		return nil, fmt.Errorf("%w: project name and owner are required", ErrInvalidProject)
	}
	privacy := p.PrivacyStatus
	if privacy == "" {
		privacy = model.PrivacyPrivate
	}
	if !model.ValidPrivacyStatuses[privacy] {
		return nil, fmt.Errorf("%w: invalid privacy status %q (valid: Private, Public)", ErrInvalidProject, privacy)
	}

	now := time.Now().UTC()
	proj := &model.Project{
		ID:              s.newID(),
		Name:            p.Name,
		TaskName:        p.TaskName,
		Description:     p.Description,
		Status:          model.StatusActive,
		PrivacyStatus:   privacy,
		OwnerID:         p.OwnerID,
		CollaboratorIDs: []string{},
		CreatedAt:       now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, task_name, description, status, privacy_status, owner_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		proj.ID, proj.Name, proj.TaskName, proj.Description, proj.Status, proj.PrivacyStatus,
		proj.OwnerID, now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return proj, nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	return getProject(ctx, s.db, id)
}

func getProject(ctx context.Context, q querier, id string) (*model.Project, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, task_name, description, status, privacy_status, owner_id, created_at
		 FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	p.CollaboratorIDs, err = collaborators(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context, p ListProjectsParams) ([]model.Project, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 100
	}

	where := []string{"1 = 1"}
	args := []interface{}{}
	if p.OwnerID != "" {
		where = append(where, `(p.owner_id = ? OR EXISTS (
			SELECT 1 FROM project_collaborators c WHERE c.project_id = p.id AND c.user_id = ?))`)
		args = append(args, p.OwnerID, p.OwnerID)
	}
	if p.PublicOnly {
		where = append(where, "p.privacy_status = ?")
		args = append(args, model.PrivacyPublic)
	}

	query := fmt.Sprintf(`
		SELECT p.id, p.name, p.task_name, p.description, p.status, p.privacy_status, p.owner_id, p.created_at
		FROM projects p
		WHERE %s
		ORDER BY p.created_at DESC
		LIMIT ?`, strings.Join(where, " AND "))
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var projects []model.Project
	for rows.Next() {
		pr, err := scanProject(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		projects = append(projects, pr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// rows must be closed first: the store runs on a single connection
	for i := range projects {
		projects[i].CollaboratorIDs, err = collaborators(ctx, s.db, projects[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return projects, nil
}

// AddCollaborator appends userID to the project's collaborators.
func (s *SQLiteStore) AddCollaborator(ctx context.Context, projectID, userID string) (*model.Project, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: collaborator id is required", ErrInvalidProject)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := requireProject(ctx, tx, projectID); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO project_collaborators (project_id, user_id, seq, created_at)
		 VALUES (?, ?, (SELECT COUNT(*) FROM project_collaborators WHERE project_id = ?), ?)
		 ON CONFLICT (project_id, user_id) DO NOTHING`,
		projectID, userID, projectID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert collaborator: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: %s on %s", ErrAlreadyCollaborator, userID, projectID)
	}

	p, err := getProject(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

// collaborators returns the collaborator ids of a project in insertion order.
func collaborators(ctx context.Context, q querier, projectID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT user_id FROM project_collaborators WHERE project_id = ? ORDER BY seq`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanProject(row scanner) (model.Project, error) {
	var p model.Project
	var createdAt string

	err := row.Scan(&p.ID, &p.Name, &p.TaskName, &p.Description, &p.Status,
		&p.PrivacyStatus, &p.OwnerID, &createdAt)
	if err != nil {
		return p, err
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return p, nil
}
