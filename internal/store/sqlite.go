package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/privgraph/modelhub/internal/model"
)

// DefaultDeployBaseURL prefixes deployment URLs when no base is configured.
const DefaultDeployBaseURL = "http://localhost:8080/predict"

// Option configures a store.
type Option func(*options)

type options struct {
	deployBaseURL string
}

// WithDeployBaseURL sets the prefix of minted deployment URLs.
func WithDeployBaseURL(base string) Option {
	return func(o *options) {
		if base != "" {
			o.deployBaseURL = base
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{deployBaseURL: DefaultDeployBaseURL}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	opts options

	mu      sync.Mutex
	entropy *rand.Rand
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single connection serializes writers, which makes the
	// insert-or-ignore statements below first-writer-wins.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:      db,
		path:    dbPath,
		opts:    buildOptions(opts),
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id             TEXT PRIMARY KEY,
		name           TEXT NOT NULL,
		task_name      TEXT NOT NULL DEFAULT '',
		description    TEXT NOT NULL DEFAULT '',
		status         TEXT NOT NULL DEFAULT 'Active',
		privacy_status TEXT NOT NULL DEFAULT 'Private',
		owner_id       TEXT NOT NULL,
		created_at     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner_id);

	CREATE TABLE IF NOT EXISTS project_collaborators (
		project_id TEXT NOT NULL REFERENCES projects(id),
		user_id    TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (project_id, user_id)
	);
	CREATE INDEX IF NOT EXISTS idx_collaborators_user ON project_collaborators(user_id);

	CREATE TABLE IF NOT EXISTS model_versions (
		project_id          TEXT NOT NULL REFERENCES projects(id),
		label               TEXT NOT NULL,
		epochs              TEXT NOT NULL,
		training_accuracy   TEXT NOT NULL,
		training_loss       TEXT NOT NULL,
		validation_accuracy TEXT NOT NULL,
		created_at          TEXT NOT NULL,
		PRIMARY KEY (project_id, label)
	);

	CREATE TABLE IF NOT EXISTS confusion_matrices (
		project_id      TEXT NOT NULL,
		label           TEXT NOT NULL,
		true_positives  INTEGER NOT NULL,
		false_positives INTEGER NOT NULL,
		true_negatives  INTEGER NOT NULL,
		false_negatives INTEGER NOT NULL,
		created_at      TEXT NOT NULL,
		PRIMARY KEY (project_id, label),
		FOREIGN KEY (project_id, label) REFERENCES model_versions(project_id, label)
	);

	CREATE TABLE IF NOT EXISTS deployments (
		project_id TEXT NOT NULL,
		label      TEXT NOT NULL,
		url        TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (project_id, label),
		FOREIGN KEY (project_id, label) REFERENCES model_versions(project_id, label)
	);

	CREATE TABLE IF NOT EXISTS model_artifacts (
		project_id TEXT NOT NULL,
		label      TEXT NOT NULL,
		content    BLOB NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (project_id, label),
		FOREIGN KEY (project_id, label) REFERENCES model_versions(project_id, label)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) PutVersion(ctx context.Context, v model.ModelVersion) (*model.ModelVersion, error) {
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVersion, err)
	}
	now := time.Now().UTC()

	cols, err := marshalCurves(v)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := requireProject(ctx, tx, v.ProjectID); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO model_versions (project_id, label, epochs, training_accuracy, training_loss, validation_accuracy, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (project_id, label) DO NOTHING`,
		v.ProjectID, v.Label, cols[0], cols[1], cols[2], cols[3], now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrDuplicateVersion, v.ProjectID, v.Label)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	v.CreatedAt = now
	return &v, nil
}

func (s *SQLiteStore) GetVersion(ctx context.Context, projectID, label string) (*model.ModelVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT project_id, label, epochs, training_accuracy, training_loss, validation_accuracy, created_at
		 FROM model_versions WHERE project_id = ? AND label = ?`, projectID, label)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: version %s/%s", ErrNotFound, projectID, label)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *SQLiteStore) ListVersions(ctx context.Context, projectID string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := requireProject(ctx, tx, projectID); err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT label FROM model_versions WHERE project_id = ? ORDER BY label`, projectID)
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

func (s *SQLiteStore) PutConfusionMatrix(ctx context.Context, m model.ConfusionMatrix) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidVersion, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := requireVersion(ctx, tx, m.ProjectID, m.Label); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO confusion_matrices (project_id, label, true_positives, false_positives, true_negatives, false_negatives, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (project_id, label) DO NOTHING`,
		m.ProjectID, m.Label, m.TruePositives, m.FalsePositives, m.TrueNegatives, m.FalseNegatives,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert confusion matrix: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: confusion matrix %s/%s", ErrDuplicateVersion, m.ProjectID, m.Label)
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetConfusionMatrix(ctx context.Context, projectID, label string) (*model.ConfusionMatrix, error) {
	m := model.ConfusionMatrix{ProjectID: projectID, Label: label}
	err := s.db.QueryRowContext(ctx,
		`SELECT true_positives, false_positives, true_negatives, false_negatives
		 FROM confusion_matrices WHERE project_id = ? AND label = ?`, projectID, label).
		Scan(&m.TruePositives, &m.FalsePositives, &m.TrueNegatives, &m.FalseNegatives)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: confusion matrix %s/%s", ErrNotFound, projectID, label)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func requireProject(ctx context.Context, q querier, projectID string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id = ?`, projectID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}
	return err
}

func requireVersion(ctx context.Context, q querier, projectID, label string) error {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM model_versions WHERE project_id = ? AND label = ?`, projectID, label).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: version %s/%s", ErrNotFound, projectID, label)
	}
	return err
}

func marshalCurves(v model.ModelVersion) ([4]string, error) {
	var out [4]string
	for i, seq := range []interface{}{v.Epochs, v.TrainingAccuracy, v.TrainingLoss, v.ValidationAccuracy} {
		b, err := json.Marshal(seq)
		if err != nil {
			return out, fmt.Errorf("encode curves: %w", err)
		}
		out[i] = string(b)
	}
	return out, nil
}

func unmarshalCurves(v *model.ModelVersion, cols [4]string) error {
	dst := []interface{}{&v.Epochs, &v.TrainingAccuracy, &v.TrainingLoss, &v.ValidationAccuracy}
	for i, c := range cols {
		if err := json.Unmarshal([]byte(c), dst[i]); err != nil {
			return fmt.Errorf("decode curves: %w", err)
		}
	}
	return nil
}

func scanVersion(row scanner) (model.ModelVersion, error) {
	var v model.ModelVersion
	var cols [4]string
	var createdAt string

	err := row.Scan(&v.ProjectID, &v.Label, &cols[0], &cols[1], &cols[2], &cols[3], &createdAt)
	if err != nil {
		return v, err
	}
	if err := unmarshalCurves(&v, cols); err != nil {
		return v, err
	}
	v.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return v, nil
}
