package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath            string         `json:"db_path,omitempty"`
	DBSizeBytes       int64          `json:"db_size_bytes,omitempty"`
	Projects          int            `json:"projects"`
	Versions          int            `json:"versions"`
	ConfusionMatrices int            `json:"confusion_matrices"`
	Deployments       int            `json:"deployments"`
	Artifacts         int            `json:"artifacts"`
	ArtifactBytes     int64          `json:"artifact_bytes"`
	PerProject        []ProjectStats `json:"per_project"`
}

// ProjectStats holds per-project counts.
type ProjectStats struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Versions  int    `json:"versions"`
	Deployed  int    `json:"deployed"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path}

	// DB file size
	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&st.Projects)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM model_versions`).Scan(&st.Versions)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM confusion_matrices`).Scan(&st.ConfusionMatrices)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deployments`).Scan(&st.Deployments)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(LENGTH(content)), 0) FROM model_artifacts`).
		Scan(&st.Artifacts, &st.ArtifactBytes)

	rows, err := s.db.QueryContext(ctx, perProjectStatsQuery)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var ps ProjectStats
		rows.Scan(&ps.ProjectID, &ps.Name, &ps.Versions, &ps.Deployed)
		st.PerProject = append(st.PerProject, ps)
	}

	return st, nil
}

const perProjectStatsQuery = `
	SELECT p.id, p.name,
	       (SELECT COUNT(*) FROM model_versions v WHERE v.project_id = p.id) AS versions,
	       (SELECT COUNT(*) FROM deployments d WHERE d.project_id = p.id) AS deployed
	FROM projects p
	ORDER BY versions DESC, p.id`
