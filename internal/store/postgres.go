package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgconn"
	pgerrcode "github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/privgraph/modelhub/internal/model"
)

// PostgresStore implements Store on PostgreSQL. Uniqueness is enforced by
// primary keys; constraint violations are mapped onto the store errors.
type PostgresStore struct {
	pool *pgxpool.Pool
	opts options

	mu      sync.Mutex
	entropy *rand.Rand
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to url and creates the schema if needed.
func NewPostgresStore(ctx context.Context, url string, opts ...Option) (*PostgresStore, error) {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PostgresStore{
		pool:    pool,
		opts:    buildOptions(opts),
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS projects (
		id             TEXT PRIMARY KEY,
		name           TEXT NOT NULL,
		task_name      TEXT NOT NULL DEFAULT '',
		description    TEXT NOT NULL DEFAULT '',
		status         TEXT NOT NULL DEFAULT 'Active',
		privacy_status TEXT NOT NULL DEFAULT 'Private',
		owner_id       TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner_id);

	CREATE TABLE IF NOT EXISTS project_collaborators (
		project_id TEXT NOT NULL REFERENCES projects(id),
		user_id    TEXT NOT NULL,
		seq        BIGSERIAL,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (project_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS model_versions (
		project_id          TEXT NOT NULL REFERENCES projects(id),
		label               TEXT NOT NULL,
		epochs              JSONB NOT NULL,
		training_accuracy   JSONB NOT NULL,
		training_loss       JSONB NOT NULL,
		validation_accuracy JSONB NOT NULL,
		created_at          TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (project_id, label)
	);

	CREATE TABLE IF NOT EXISTS confusion_matrices (
		project_id      TEXT NOT NULL,
		label           TEXT NOT NULL,
		true_positives  BIGINT NOT NULL CHECK (true_positives >= 0),
		false_positives BIGINT NOT NULL CHECK (false_positives >= 0),
		true_negatives  BIGINT NOT NULL CHECK (true_negatives >= 0),
		false_negatives BIGINT NOT NULL CHECK (false_negatives >= 0),
		created_at      TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (project_id, label),
		FOREIGN KEY (project_id, label) REFERENCES model_versions(project_id, label)
	);

	CREATE TABLE IF NOT EXISTS deployments (
		project_id TEXT NOT NULL,
		label      TEXT NOT NULL,
		url        TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (project_id, label),
		FOREIGN KEY (project_id, label) REFERENCES model_versions(project_id, label)
	);

	CREATE TABLE IF NOT EXISTS model_artifacts (
		project_id TEXT NOT NULL,
		label      TEXT NOT NULL,
		content    BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (project_id, label),
		FOREIGN KEY (project_id, label) REFERENCES model_versions(project_id, label)
	);`)
	return err
}

// classify maps constraint violations onto store errors.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	pgerr := new(pgconn.PgError)
	if !errors.As(err, &pgerr) {
		return err
	}
	switch pgerr.Code {
	case pgerrcode.UniqueViolation:
		return fmt.Errorf("%w: %s", ErrDuplicateVersion, what)
	case pgerrcode.ForeignKeyViolation:
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
		return fmt.Errorf("%w: %s: %s", ErrInvalidVersion, what, pgerr.Message)
	}
	return err
}

func (s *PostgresStore) CreateProject(ctx context.Context, p CreateProjectParams) (*model.Project, error) {
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

	proj := &model.Project{
		ID:              s.newID(),
		Name:            p.Name,
		TaskName:        p.TaskName,
		Description:     p.Description,
		Status:          model.StatusActive,
		PrivacyStatus:   privacy,
		OwnerID:         p.OwnerID,
		CollaboratorIDs: []string{},
		CreatedAt:       time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO projects (id, name, task_name, description, status, privacy_status, owner_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		proj.ID, proj.Name, proj.TaskName, proj.Description, proj.Status, proj.PrivacyStatus,
		proj.OwnerID, proj.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return proj, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, task_name, description, status, privacy_status, owner_id, created_at
		 FROM projects WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.TaskName, &p.Description, &p.Status, &p.PrivacyStatus, &p.OwnerID, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if p.CollaboratorIDs, err = s.collaborators(ctx, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context, p ListProjectsParams) ([]model.Project, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 100
	}

	where := []string{"TRUE"}
	args := []interface{}{}
	if p.OwnerID != "" {
		args = append(args, p.OwnerID)
		where = append(where, fmt.Sprintf(`(p.owner_id = $%d OR EXISTS (
			SELECT 1 FROM project_collaborators c WHERE c.project_id = p.id AND c.user_id = $%d))`,
			len(args), len(args)))
	}
	if p.PublicOnly {
		args = append(args, model.PrivacyPublic)
		where = append(where, fmt.Sprintf("p.privacy_status = $%d", len(args)))
	}
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT p.id, p.name, p.task_name, p.description, p.status, p.privacy_status, p.owner_id, p.created_at
		FROM projects p
		WHERE %s
		ORDER BY p.created_at DESC
		LIMIT $%d`, strings.Join(where, " AND "), len(args)), args...)
	if err != nil {
		return nil, err
	}
	var projects []model.Project
	for rows.Next() {
		var pr model.Project
		if err := rows.Scan(&pr.ID, &pr.Name, &pr.TaskName, &pr.Description, &pr.Status,
			&pr.PrivacyStatus, &pr.OwnerID, &pr.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		projects = append(projects, pr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range projects {
		projects[i].CollaboratorIDs, err = s.collaborators(ctx, projects[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return projects, nil
}

func (s *PostgresStore) AddCollaborator(ctx context.Context, projectID, userID string) (*model.Project, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: collaborator id is required", ErrInvalidProject)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO project_collaborators (project_id, user_id, created_at) VALUES ($1, $2, $3)`,
		projectID, userID, time.Now().UTC())
	if err != nil {
		err = classify(err, "project "+projectID)
		if errors.Is(err, ErrDuplicateVersion) {
			return nil, fmt.Errorf("%w: %s on %s", ErrAlreadyCollaborator, userID, projectID)
		}
		return nil, err
	}
	return s.GetProject(ctx, projectID)
}

func (s *PostgresStore) collaborators(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id FROM project_collaborators WHERE project_id = $1 ORDER BY seq`, projectID)
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

func (s *PostgresStore) PutVersion(ctx context.Context, v model.ModelVersion) (*model.ModelVersion, error) {
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVersion, err)
	}
	cols, err := marshalCurves(v)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO model_versions (project_id, label, epochs, training_accuracy, training_loss, validation_accuracy, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ProjectID, v.Label, cols[0], cols[1], cols[2], cols[3], now)
	if err != nil {
		return nil, classify(err, v.ProjectID+"/"+v.Label)
	}
	v.CreatedAt = now
	return &v, nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, projectID, label string) (*model.ModelVersion, error) {
	v := model.ModelVersion{ProjectID: projectID, Label: label}
	var cols [4]string
	err := s.pool.QueryRow(ctx,
		`SELECT epochs::text, training_accuracy::text, training_loss::text, validation_accuracy::text, created_at
		 FROM model_versions WHERE project_id = $1 AND label = $2`, projectID, label).
		Scan(&cols[0], &cols[1], &cols[2], &cols[3], &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: version %s/%s", ErrNotFound, projectID, label)
	}
	if err != nil {
		return nil, err
	}
	if err := unmarshalCurves(&v, cols); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, projectID string) ([]string, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, projectID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT label FROM model_versions WHERE project_id = $1 ORDER BY label`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	labels := []string{}
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

func (s *PostgresStore) PutConfusionMatrix(ctx context.Context, m model.ConfusionMatrix) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidVersion, err)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO confusion_matrices (project_id, label, true_positives, false_positives, true_negatives, false_negatives, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ProjectID, m.Label, m.TruePositives, m.FalsePositives, m.TrueNegatives, m.FalseNegatives, time.Now().UTC())
	return classify(err, "confusion matrix "+m.ProjectID+"/"+m.Label)
}

func (s *PostgresStore) GetConfusionMatrix(ctx context.Context, projectID, label string) (*model.ConfusionMatrix, error) {
	m := model.ConfusionMatrix{ProjectID: projectID, Label: label}
	err := s.pool.QueryRow(ctx,
		`SELECT true_positives, false_positives, true_negatives, false_negatives
		 FROM confusion_matrices WHERE project_id = $1 AND label = $2`, projectID, label).
		Scan(&m.TruePositives, &m.FalsePositives, &m.TrueNegatives, &m.FalseNegatives)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: confusion matrix %s/%s", ErrNotFound, projectID, label)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Deploy inserts or keeps the endpoint row and reads it back in the same
// transaction. A racing insert blocks on the primary key until the winner
// commits, after which the read observes the winner's URL.
func (s *PostgresStore) Deploy(ctx context.Context, projectID, label string) (*model.DeploymentEndpoint, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO deployments (project_id, label, url, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (project_id, label) DO NOTHING`,
		projectID, label, deployURL(s.opts.deployBaseURL, projectID, label), time.Now().UTC())
	if err != nil {
		return nil, classify(err, "version "+projectID+"/"+label)
	}

	ep := &model.DeploymentEndpoint{ProjectID: projectID, Label: label}
	err = tx.QueryRow(ctx,
		`SELECT url, created_at FROM deployments WHERE project_id = $1 AND label = $2`,
		projectID, label).Scan(&ep.URL, &ep.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ep, nil
}

func (s *PostgresStore) PutArtifact(ctx context.Context, projectID, label string, content []byte) error {
	if len(content) == 0 {
		return fmt.Errorf("%w: empty model artifact", ErrInvalidVersion)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO model_artifacts (project_id, label, content, created_at) VALUES ($1, $2, $3, $4)`,
		projectID, label, content, time.Now().UTC())
	return classify(err, "artifact "+projectID+"/"+label)
}

func (s *PostgresStore) GetArtifact(ctx context.Context, projectID, label string) (*model.Artifact, error) {
	a := &model.Artifact{ProjectID: projectID, Label: label}
	err := s.pool.QueryRow(ctx,
		`SELECT content, created_at FROM model_artifacts WHERE project_id = $1 AND label = $2`,
		projectID, label).Scan(&a.Content, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: artifact %s/%s", ErrNotFound, projectID, label)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	err := s.pool.QueryRow(ctx, `
		SELECT pg_database_size(current_database()),
		       (SELECT COUNT(*) FROM projects),
		       (SELECT COUNT(*) FROM model_versions),
		       (SELECT COUNT(*) FROM confusion_matrices),
		       (SELECT COUNT(*) FROM deployments),
		       (SELECT COUNT(*) FROM model_artifacts),
		       (SELECT COALESCE(SUM(LENGTH(content)), 0) FROM model_artifacts)`).
		Scan(&st.DBSizeBytes, &st.Projects, &st.Versions, &st.ConfusionMatrices,
			&st.Deployments, &st.Artifacts, &st.ArtifactBytes)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, perProjectStatsQuery)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var ps ProjectStats
		if err := rows.Scan(&ps.ProjectID, &ps.Name, &ps.Versions, &ps.Deployed); err != nil {
			return st, err
		}
		st.PerProject = append(st.PerProject, ps)
	}
	return st, rows.Err()
}

func (s *PostgresStore) ExportAll(ctx context.Context, projectID string) (*Export, error) {
	return exportFrom(ctx, s, projectID)
}

func (s *PostgresStore) Import(ctx context.Context, e *Export) (int, error) {
	return importInto(ctx, s, e, s.importProject)
}

func (s *PostgresStore) importProject(ctx context.Context, p model.Project) (bool, error) {
	p, err := withProjectDefaults(p)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO projects (id, name, task_name, description, status, privacy_status, owner_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Name, p.TaskName, p.Description, p.Status, p.PrivacyStatus, p.OwnerID, p.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
