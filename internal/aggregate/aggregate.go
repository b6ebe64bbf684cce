// Package aggregate merges the learning curves of many projects for
// side-by-side comparison.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/privgraph/modelhub/internal/logging"
	"github.com/privgraph/modelhub/internal/model"
	"github.com/privgraph/modelhub/internal/store"
)

// DefaultWorkers bounds concurrent project fetches when New is given zero.
const DefaultWorkers = 8

// Aggregator reads versions through a store.VersionReader. It keeps no state
// between calls.
type Aggregator struct {
	store   store.VersionReader
	log     *zap.Logger
	workers int
}

func New(r store.VersionReader, log *zap.Logger, workers int) *Aggregator {
	if log == nil {
		log = logging.Nop()
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Aggregator{store: r, log: log, workers: workers}
}

// Unavailable records a project left out of a Result and why.
type Unavailable struct {
	ProjectID string `json:"project_id"`
	Reason    string `json:"reason"`
}

// Result maps project id to version label to curves.
type Result struct {
	Metrics     map[string]map[string]model.Curves `json:"metrics"`
	Unavailable []Unavailable                       `json:"unavailable"`
}

// Partial reports whether any requested project was left out.
func (r *Result) Partial() bool {
	return len(r.Unavailable) > 0
}

// Aggregate fetches every version of every listed project. A project that
// cannot be read in full, including one removed while the call runs, is
// omitted and listed in Result.Unavailable. The only error returned is the
// context's.
func (a *Aggregator) Aggregate(ctx context.Context, projectIDs []string) (*Result, error) {
	res := &Result{
		Metrics:     map[string]map[string]model.Curves{},
		Unavailable: []Unavailable{},
	}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(a.workers)
	for _, id := range dedupe(projectIDs) {
		id := id
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			curves, err := a.project(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.log.Warn("project unavailable for aggregation",
					zap.String("project_id", id), zap.Error(err))
				res.Unavailable = append(res.Unavailable, Unavailable{ProjectID: id, Reason: err.Error()})
				return nil
			}
			res.Metrics[id] = curves
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(res.Unavailable, func(i, j int) bool {
		return res.Unavailable[i].ProjectID < res.Unavailable[j].ProjectID
	})
	a.log.Debug("aggregated",
		zap.Int("projects", len(res.Metrics)), zap.Int("unavailable", len(res.Unavailable)))
	return res, nil
}

func (a *Aggregator) project(ctx context.Context, id string) (map[string]model.Curves, error) {
	labels, err := a.store.ListVersions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	out := make(map[string]model.Curves, len(labels))
	for _, label := range labels {
		v, err := a.store.GetVersion(ctx, id, label)
		if err != nil {
			return nil, fmt.Errorf("get version %s: %w", label, err)
		}
		out[label] = v.Curves()
	}
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
