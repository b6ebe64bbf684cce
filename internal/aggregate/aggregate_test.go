package aggregate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privgraph/modelhub/internal/model"
	"github.com/privgraph/modelhub/internal/store"
)

// fakeReader serves versions from memory. Projects listed in vanishing
// disappear right after their labels are listed.
type fakeReader struct {
	mu        sync.Mutex
	versions  map[string]map[string]model.ModelVersion
	vanishing map[string]bool
}

func (f *fakeReader) ListVersions(_ context.Context, projectID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vs, ok := f.versions[projectID]
	if !ok {
		return nil, fmt.Errorf("%w: project %s", store.ErrNotFound, projectID)
	}
	labels := []string{}
	for l := range vs {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	if f.vanishing[projectID] {
		delete(f.versions, projectID)
	}
	return labels, nil
}

func (f *fakeReader) GetVersion(_ context.Context, projectID, label string) (*model.ModelVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.versions[projectID][label]
	if !ok {
		return nil, fmt.Errorf("%w: version %s/%s", store.ErrNotFound, projectID, label)
	}
	return &v, nil
}

func version(project, label string, acc float64) model.ModelVersion {
	return model.ModelVersion{
		ProjectID:          project,
		Label:              label,
		Epochs:             []int{1, 2},
		TrainingAccuracy:   []float64{acc, acc + 0.1},
		TrainingLoss:       []float64{1, 0.5},
		ValidationAccuracy: []float64{acc - 0.1, acc},
	}
}

func newFake() *fakeReader {
	return &fakeReader{
		versions: map[string]map[string]model.ModelVersion{
			"p1": {
				"v1": version("p1", "v1", 0.5),
				"v2": version("p1", "v2", 0.6),
			},
			"p2": {
				"v1": version("p2", "v1", 0.7),
			},
			"p3": {},
		},
		vanishing: map[string]bool{},
	}
}

func TestAggregate(t *testing.T) {
	a := New(newFake(), nil, 2)

	res, err := a.Aggregate(context.Background(), []string{"p1", "p2", "p3", "p1"})
	require.NoError(t, err)

	assert.False(t, res.Partial())
	assert.Len(t, res.Metrics, 3)
	assert.Len(t, res.Metrics["p1"], 2)
	assert.Equal(t, 0.7, res.Metrics["p2"]["v1"].TrainingAccuracy[0])
	assert.NotNil(t, res.Metrics["p3"])
	assert.Empty(t, res.Metrics["p3"])
}

func TestAggregateProjectDeletedMidCall(t *testing.T) {
	f := newFake()
	f.vanishing["p2"] = true
	a := New(f, nil, 4)

	res, err := a.Aggregate(context.Background(), []string{"p1", "p2"})
	require.NoError(t, err)

	assert.True(t, res.Partial())
	assert.Contains(t, res.Metrics, "p1")
	assert.NotContains(t, res.Metrics, "p2")
	require.Len(t, res.Unavailable, 1)
	assert.Equal(t, "p2", res.Unavailable[0].ProjectID)
}

func TestAggregateUnknownProject(t *testing.T) {
	a := New(newFake(), nil, 0)

	res, err := a.Aggregate(context.Background(), []string{"missing", "p1"})
	require.NoError(t, err)

	assert.Len(t, res.Metrics, 1)
	require.Len(t, res.Unavailable, 1)
	assert.Equal(t, "missing", res.Unavailable[0].ProjectID)
}

func TestAggregateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(newFake(), nil, 1).Aggregate(ctx, []string{"p1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewChart(t *testing.T) {
	f := newFake()
	f.vanishing["p2"] = true
	res, err := New(f, nil, 1).Aggregate(context.Background(), []string{"p2", "p1", "p3"})
	require.NoError(t, err)

	c := NewChart(res)
	assert.Equal(t, []int{1, 2}, c.Labels)
	assert.Equal(t, []string{"p2"}, c.Unavailable)
	require.Len(t, c.Datasets, 4)
	assert.Equal(t, "Project p1 - v1 - Training Accuracy", c.Datasets[0].Label)
	assert.False(t, c.Datasets[0].Dashed)
	assert.Equal(t, "Project p1 - v1 - Validation Accuracy", c.Datasets[1].Label)
	assert.True(t, c.Datasets[1].Dashed)
	assert.Equal(t, "Project p1 - v2 - Training Accuracy", c.Datasets[2].Label)
}
