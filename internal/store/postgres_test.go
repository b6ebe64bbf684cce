package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/privgraph/modelhub/internal/model"
)

// newPostgresTestStore connects to the database named by MODELHUB_TEST_POSTGRES
// and skips the test when it is unset. Every test creates its own project, so
// the tables need no cleanup between runs.
func newPostgresTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("MODELHUB_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("MODELHUB_TEST_POSTGRES not set")
	}
	s, err := NewPostgresStore(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresVersions(t *testing.T) {
	ctx := context.Background()
	s := newPostgresTestStore(t)
	p := newTestProject(t, s)

	labels, err := s.ListVersions(ctx, p.ID)
	if err != nil || len(labels) != 0 {
		t.Fatalf("expected no versions, got %v (%v)", labels, err)
	}

	if _, err := s.PutVersion(ctx, testVersion(p.ID, "v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.PutVersion(ctx, testVersion(p.ID, "v1")); !errors.Is(err, ErrDuplicateVersion) {
		t.Errorf("expected ErrDuplicateVersion, got %v", err)
	}
	if _, err := s.PutVersion(ctx, testVersion("missing-project", "v1")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	got, err := s.GetVersion(ctx, p.ID, "v1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Epochs) != 3 || got.ValidationAccuracy[2] != 0.8 {
		t.Errorf("unexpected version %+v", got)
	}

	if _, err := s.ListVersions(ctx, "missing-project"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresConfusionMatrix(t *testing.T) {
	ctx := context.Background()
	s := newPostgresTestStore(t)
	p := newTestProject(t, s)
	s.PutVersion(ctx, testVersion(p.ID, "v1"))

	if _, err := s.GetConfusionMatrix(ctx, p.ID, "v1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	m := model.ConfusionMatrix{ProjectID: p.ID, Label: "v1", TruePositives: 1, FalseNegatives: 2}
	if err := s.PutConfusionMatrix(ctx, m); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.PutConfusionMatrix(ctx, m); !errors.Is(err, ErrDuplicateVersion) {
		t.Errorf("expected ErrDuplicateVersion, got %v", err)
	}
	if err := s.PutConfusionMatrix(ctx, model.ConfusionMatrix{ProjectID: p.ID, Label: "v9"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresDeployConcurrent(t *testing.T) {
	ctx := context.Background()
	s := newPostgresTestStore(t)
	p := newTestProject(t, s)
	s.PutVersion(ctx, testVersion(p.ID, "v1"))

	const callers = 10
	urls := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ep, err := s.Deploy(ctx, p.ID, "v1")
			if err != nil {
				t.Errorf("deploy: %v", err)
				return
			}
			urls[i] = ep.URL
		}(i)
	}
	wg.Wait()
	for _, u := range urls[1:] {
		if u != urls[0] {
			t.Fatalf("callers observed different urls: %v", urls)
		}
	}

	if _, err := s.Deploy(ctx, p.ID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresCollaborators(t *testing.T) {
	ctx := context.Background()
	s := newPostgresTestStore(t)
	p := newTestProject(t, s)

	if _, err := s.AddCollaborator(ctx, p.ID, "u1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := s.AddCollaborator(ctx, p.ID, "u1"); !errors.Is(err, ErrAlreadyCollaborator) {
		t.Errorf("expected ErrAlreadyCollaborator, got %v", err)
	}
	if _, err := s.AddCollaborator(ctx, "missing-project", "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
