package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/privgraph/modelhub/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"), WithDeployBaseURL("https://models.example/predict/"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestProject(t *testing.T, s Store) *model.Project {
	t.Helper()
	p, err := s.CreateProject(context.Background(), CreateProjectParams{
		Name: "graphs", TaskName: "node classification", Description: "test", OwnerID: "owner-1",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func testVersion(projectID, label string) model.ModelVersion {
	return model.ModelVersion{
		ProjectID:          projectID,
		Label:              label,
		Epochs:             []int{1, 2, 3},
		TrainingAccuracy:   []float64{0.5, 0.7, 0.9},
		TrainingLoss:       []float64{1.2, 0.8, 0.3},
		ValidationAccuracy: []float64{0.45, 0.6, 0.8},
	}
}

func TestPutAndGetVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := newTestProject(t, s)

	v, err := s.PutVersion(ctx, testVersion(p.ID, "version1.0"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if v.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	got, err := s.GetVersion(ctx, p.ID, "version1.0")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Epochs) != 3 || got.TrainingAccuracy[2] != 0.9 || got.TrainingLoss[0] != 1.2 || got.ValidationAccuracy[1] != 0.6 {
		t.Errorf("unexpected curves: %+v", got)
	}
}

func TestGetVersionNotFound(t *testing.T) {
	s := newTestStore(t)
	p := newTestProject(t, s)

	_, err := s.GetVersion(context.Background(), p.ID, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPutVersionDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := newTestProject(t, s)

	if _, err := s.PutVersion(ctx, testVersion(p.ID, "v1")); err != nil {
		t.Fatalf("first put: %v", err)
	}

	second := testVersion(p.ID, "v1")
	second.TrainingAccuracy = []float64{0.1, 0.1, 0.1}
	_, err := s.PutVersion(ctx, second)
	if !errors.Is(err, ErrDuplicateVersion) {
		t.Fatalf("expected ErrDuplicateVersion, got %v", err)
	}

	// the first record is unchanged
	got, _ := s.GetVersion(ctx, p.ID, "v1")
	if got.TrainingAccuracy[0] != 0.5 {
		t.Errorf("first-written record was overwritten: %v", got.TrainingAccuracy)
	}
}

func TestPutVersionConcurrentSameLabel(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := newTestProject(t, s)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.PutVersion(ctx, testVersion(p.ID, "race"))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, ErrDuplicateVersion):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("expected exactly one successful put, got %d", ok)
	}
}

func TestPutVersionConcurrentDifferentLabels(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := newTestProject(t, s)

	labels := []string{"a", "b", "c", "d", "e"}
	var wg sync.WaitGroup
	for _, l := range labels {
		wg.Add(1)
		go func(l string) {
			defer wg.Done()
			if _, err := s.PutVersion(ctx, testVersion(p.ID, l)); err != nil {
				t.Errorf("put %s: %v", l, err)
			}
		}(l)
	}
	wg.Wait()

	got, err := s.ListVersions(ctx, p.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.Join(got, ",") != "a,b,c,d,e" {
		t.Errorf("unexpected labels %v", got)
	}
}

func TestPutVersionInvalid(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := newTestProject(t, s)

	v := testVersion(p.ID, "uneven")
	v.TrainingLoss = v.TrainingLoss[:2]
	if _, err := s.PutVersion(ctx, v); !errors.Is(err, ErrInvalidVersion) {
		t.Errorf("expected ErrInvalidVersion, got %v", err)
	}

	if _, err := s.PutVersion(ctx, testVersion(p.ID, "")); !errors.Is(err, ErrInvalidVersion) {
		t.Errorf("expected ErrInvalidVersion for empty label, got %v", err)
	}
}

func TestPutVersionUnknownProject(t *testing.T) {
	s := newTestStore(t)
	_, err := s.PutVersion(context.Background(), testVersion("nope", "v1"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListVersions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := newTestProject(t, s)

	empty, err := s.ListVersions(ctx, p.ID)
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", empty)
	}

	s.PutVersion(ctx, testVersion(p.ID, "version2.0"))
	s.PutVersion(ctx, testVersion(p.ID, "version1.0"))

	labels, _ := s.ListVersions(ctx, p.ID)
	if strings.Join(labels, ",") != "version1.0,version2.0" {
		t.Errorf("unexpected labels %v", labels)
	}

	if _, err := s.ListVersions(ctx, "unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown project, got %v", err)
	}
}

func TestConfusionMatrix(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := newTestProject(t, s)
	s.PutVersion(ctx, testVersion(p.ID, "v1"))
	s.PutVersion(ctx, testVersion(p.ID, "v2"))

	// never recorded: NotFound, not zeros
	m, err := s.GetConfusionMatrix(ctx, p.ID, "v1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v (%+v)", err, m)
	}

	zeros := model.ConfusionMatrix{ProjectID: p.ID, Label: "v2"}
	if err := s.PutConfusionMatrix(ctx, zeros); err != nil {
		t.Fatalf("put zeros: %v", err)
	}
	got, err := s.GetConfusionMatrix(ctx, p.ID, "v2")
	if err != nil {
		t.Fatalf("get zeros: %v", err)
	}
	if *got != zeros {
		t.Errorf("expected all-zero matrix, got %+v", got)
	}

	full := model.ConfusionMatrix{ProjectID: p.ID, Label: "v1", TruePositives: 50, FalsePositives: 4, TrueNegatives: 40, FalseNegatives: 6}
	if err := s.PutConfusionMatrix(ctx, full); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.PutConfusionMatrix(ctx, full); !errors.Is(err, ErrDuplicateVersion) {
		t.Errorf("expected ErrDuplicateVersion on second put, got %v", err)
	}
	got, _ = s.GetConfusionMatrix(ctx, p.ID, "v1")
	if *got != full {
		t.Errorf("got %+v, want %+v", got, full)
	}

	if err := s.PutConfusionMatrix(ctx, model.ConfusionMatrix{ProjectID: p.ID, Label: "v3"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown version, got %v", err)
	}
	if err := s.PutConfusionMatrix(ctx, model.ConfusionMatrix{ProjectID: p.ID, Label: "v1", FalseNegatives: -1}); !errors.Is(err, ErrInvalidVersion) {
		t.Errorf("expected ErrInvalidVersion for negative count, got %v", err)
	}
}

func TestDeployIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := newTestProject(t, s)
	s.PutVersion(ctx, testVersion(p.ID, "v1"))

	first, err := s.Deploy(ctx, p.ID, "v1")
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if !strings.HasPrefix(first.URL, "https://models.example/predict/"+p.ID+"/v1/") {
		t.Errorf("unexpected url %q", first.URL)
	}

	second, err := s.Deploy(ctx, p.ID, "v1")
	if err != nil {
		t.Fatalf("second deploy: %v", err)
	}
	if second.URL != first.URL {
		t.Errorf("expected the same url, got %q and %q", first.URL, second.URL)
	}

	if _, err := s.Deploy(ctx, p.ID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeployConcurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
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
	st, _ := s.Stats(ctx)
	if st.Deployments != 1 {
		t.Errorf("expected exactly one deployment record, got %d", st.Deployments)
	}
}

func TestProjectsAndCollaborators(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := newTestProject(t, s)

	if p.Status != model.StatusActive || p.PrivacyStatus != model.PrivacyPrivate {
		t.Errorf("unexpected defaults: %+v", p)
	}

	if _, err := s.AddCollaborator(ctx, p.ID, "u2"); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, err := s.AddCollaborator(ctx, p.ID, "u1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if strings.Join(got.CollaboratorIDs, ",") != "u2,u1" {
		t.Errorf("expected insertion order, got %v", got.CollaboratorIDs)
	}

	if _, err := s.AddCollaborator(ctx, p.ID, "u2"); !errors.Is(err, ErrAlreadyCollaborator) {
		t.Errorf("expected ErrAlreadyCollaborator, got %v", err)
	}
	if _, err := s.AddCollaborator(ctx, "nope", "u2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	s.CreateProject(ctx, CreateProjectParams{Name: "public one", OwnerID: "owner-2", PrivacyStatus: model.PrivacyPublic})

	mine, _ := s.ListProjects(ctx, ListProjectsParams{OwnerID: "u1"})
	if len(mine) != 1 || mine[0].ID != p.ID {
		t.Errorf("expected collaborator to see the project, got %+v", mine)
	}
	public, _ := s.ListProjects(ctx, ListProjectsParams{PublicOnly: true})
	if len(public) != 1 || public[0].Name != "public one" {
		t.Errorf("expected one public project, got %+v", public)
	}

	if _, err := s.CreateProject(ctx, CreateProjectParams{Name: "x", OwnerID: "o", PrivacyStatus: "Secret"}); !errors.Is(err, ErrInvalidProject) {
		t.Errorf("expected ErrInvalidProject, got %v", err)
	}
}

func TestArtifacts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := newTestProject(t, s)
	s.PutVersion(ctx, testVersion(p.ID, "v1"))

	if _, err := s.GetArtifact(ctx, p.ID, "v1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.PutArtifact(ctx, p.ID, "v1", []byte{0x00, 0x01, 0xff}); err != nil {
		t.Fatalf("put artifact: %v", err)
	}
	if err := s.PutArtifact(ctx, p.ID, "v1", []byte{0x02}); !errors.Is(err, ErrDuplicateVersion) {
		t.Errorf("expected ErrDuplicateVersion, got %v", err)
	}
	a, err := s.GetArtifact(ctx, p.ID, "v1")
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	if string(a.Content) != "\x00\x01\xff" {
		t.Errorf("unexpected content %v", a.Content)
	}
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)
	p := newTestProject(t, src)
	src.AddCollaborator(ctx, p.ID, "u1")
	src.PutVersion(ctx, testVersion(p.ID, "v1"))
	src.PutVersion(ctx, testVersion(p.ID, "v2"))
	src.PutConfusionMatrix(ctx, model.ConfusionMatrix{ProjectID: p.ID, Label: "v1", TruePositives: 3})

	dump, err := src.ExportAll(ctx, "")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(dump.Projects) != 1 || len(dump.Versions) != 2 || len(dump.ConfusionMatrices) != 1 {
		t.Fatalf("unexpected export %+v", dump)
	}

	dst := newTestStore(t)
	n, err := dst.Import(ctx, dump)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 imported records, got %d", n)
	}

	// a second import skips everything
	n, err = dst.Import(ctx, dump)
	if err != nil || n != 0 {
		t.Errorf("expected 0 on re-import, got %d (%v)", n, err)
	}

	got, err := dst.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if len(got.CollaboratorIDs) != 1 || got.CollaboratorIDs[0] != "u1" {
		t.Errorf("collaborators not imported: %v", got.CollaboratorIDs)
	}
	m, err := dst.GetConfusionMatrix(ctx, p.ID, "v1")
	if err != nil || m.TruePositives != 3 {
		t.Errorf("matrix not imported: %+v %v", m, err)
	}
}

func TestImportRejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	dump := &Export{Projects: []model.Project{
		{ID: "p-archived", Name: "old", OwnerID: "u1", Status: "Archived"},
	}}
	if _, err := s.Import(ctx, dump); !errors.Is(err, ErrInvalidProject) {
		t.Fatalf("expected ErrInvalidProject, got %v", err)
	}
	if _, err := s.GetProject(ctx, "p-archived"); !errors.Is(err, ErrNotFound) {
		t.Errorf("rejected project was stored: %v", err)
	}

	dump.Projects[0].Status = model.StatusCompleted
	dump.Projects[0].PrivacyStatus = "Secret"
	if _, err := s.Import(ctx, dump); !errors.Is(err, ErrInvalidProject) {
		t.Fatalf("expected ErrInvalidProject for privacy status, got %v", err)
	}

	dump.Projects[0].PrivacyStatus = ""
	if n, err := s.Import(ctx, dump); err != nil || n != 1 {
		t.Fatalf("import: n=%d err=%v", n, err)
	}
	got, err := s.GetProject(ctx, "p-archived")
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if got.Status != model.StatusCompleted || got.PrivacyStatus != model.PrivacyPrivate {
		t.Errorf("unexpected statuses %q %q", got.Status, got.PrivacyStatus)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := newTestProject(t, s)
	s.PutVersion(ctx, testVersion(p.ID, "v1"))
	s.PutArtifact(ctx, p.ID, "v1", []byte("model"))

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Projects != 1 || st.Versions != 1 || st.Artifacts != 1 || st.ArtifactBytes != 5 {
		t.Errorf("unexpected stats %+v", st)
	}
	if len(st.PerProject) != 1 || st.PerProject[0].Versions != 1 {
		t.Errorf("unexpected per-project stats %+v", st.PerProject)
	}
}
