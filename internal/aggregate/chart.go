package aggregate

import (
	"fmt"
	"sort"
)

// Series is one line of the comparison chart.
type Series struct {
	Label  string    `json:"label"`
	Data   []float64 `json:"data"`
	Dashed bool      `json:"dashed,omitempty"`
}

// Chart is the dashboard view of a Result.
type Chart struct {
	Labels      []int    `json:"labels"`
	Datasets    []Series `json:"datasets"`
	Unavailable []string `json:"unavailable"`
}

// NewChart folds r into chart series. The x axis is the epochs of the first
// project and version in sorted order. Each version contributes a training
// accuracy line and a dashed validation accuracy line.
func NewChart(r *Result) *Chart {
	c := &Chart{Labels: []int{}, Datasets: []Series{}, Unavailable: []string{}}

	projects := make([]string, 0, len(r.Metrics))
	for id := range r.Metrics {
		projects = append(projects, id)
	}
	sort.Strings(projects)

	for _, id := range projects {
		versions := r.Metrics[id]
		labels := make([]string, 0, len(versions))
		for l := range versions {
			labels = append(labels, l)
		}
		sort.Strings(labels)

		for _, l := range labels {
			curves := versions[l]
			if len(c.Labels) == 0 && len(curves.Epochs) > 0 {
				c.Labels = append(c.Labels, curves.Epochs...)
			}
			c.Datasets = append(c.Datasets,
				Series{
					Label: fmt.Sprintf("Project %s - %s - Training Accuracy", id, l),
					Data:  curves.TrainingAccuracy,
				},
				Series{
					Label:  fmt.Sprintf("Project %s - %s - Validation Accuracy", id, l),
					Data:   curves.ValidationAccuracy,
					Dashed: true,
				})
		}
	}

	for _, u := range r.Unavailable {
		c.Unavailable = append(c.Unavailable, u.ProjectID)
	}
	return c
}
