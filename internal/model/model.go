// Package model defines the project and model-artifact record types.
package model

import (
	"errors"
	"fmt"
	"time"
)

// Project is a training project owned by one user and shared with collaborators.
type Project struct {
	ID              string    `json:"id"`
	Name            string    `json:"project_name"`
	TaskName        string    `json:"task_name"`
	Description     string    `json:"description"`
	Status          string    `json:"status"`
	PrivacyStatus   string    `json:"privacy_status"`
	OwnerID         string    `json:"owner_id"`
	CollaboratorIDs []string  `json:"collaborators"`
	CreatedAt       time.Time `json:"created_at"`
}

// ModelVersion holds the per-epoch learning curves of one trained model.
// All per-epoch sequences have the same length.
type ModelVersion struct {
	ProjectID          string    `json:"project_id"`
	Label              string    `json:"version"`
	Epochs             []int     `json:"epochs"`
	TrainingAccuracy   []float64 `json:"training_accuracy"`
	TrainingLoss       []float64 `json:"training_loss"`
	ValidationAccuracy []float64 `json:"validation_accuracy"`
	CreatedAt          time.Time `json:"created_at"`
}

// ErrUnevenCurves is returned by Validate when the per-epoch sequences differ in length.
var ErrUnevenCurves = errors.New("per-epoch sequences differ in length")

// Validate checks the equal-length invariant and that the version is addressable.
func (v ModelVersion) Validate() error {
	if v.ProjectID == "" || v.Label == "" {
		return fmt.Errorf("project_id and version are required")
	}
	n := len(v.Epochs)
	if len(v.TrainingAccuracy) != n || len(v.TrainingLoss) != n || len(v.ValidationAccuracy) != n {
		return fmt.Errorf("%w: epochs=%d training_accuracy=%d training_loss=%d validation_accuracy=%d",
			ErrUnevenCurves, n, len(v.TrainingAccuracy), len(v.TrainingLoss), len(v.ValidationAccuracy))
	}
	return nil
}

// Curves is the metrics view of a version as served to dashboards.
type Curves struct {
	Epochs             []int     `json:"epochs"`
	TrainingAccuracy   []float64 `json:"training_accuracy"`
	TrainingLoss       []float64 `json:"training_loss"`
	ValidationAccuracy []float64 `json:"validation_accuracy"`
}

// Curves returns the dashboard view of v.
func (v ModelVersion) Curves() Curves {
	return Curves{
		Epochs:             v.Epochs,
		TrainingAccuracy:   v.TrainingAccuracy,
		TrainingLoss:       v.TrainingLoss,
		ValidationAccuracy: v.ValidationAccuracy,
	}
}

// ConfusionMatrix holds the binary classification counts of one version.
type ConfusionMatrix struct {
	ProjectID      string `json:"project_id"`
	Label          string `json:"version"`
	TruePositives  int64  `json:"true_positives"`
	FalsePositives int64  `json:"false_positives"`
	TrueNegatives  int64  `json:"true_negatives"`
	FalseNegatives int64  `json:"false_negatives"`
}

// Validate rejects negative counts.
func (m ConfusionMatrix) Validate() error {
	if m.ProjectID == "" || m.Label == "" {
		return fmt.Errorf("project_id and version are required")
	}
	if m.TruePositives < 0 || m.FalsePositives < 0 || m.TrueNegatives < 0 || m.FalseNegatives < 0 {
		return fmt.Errorf("confusion matrix counts must be non-negative")
	}
	return nil
}

// DeploymentEndpoint is the prediction URL of a deployed version.
type DeploymentEndpoint struct {
	ProjectID string    `json:"project_id"`
	Label     string    `json:"version"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// Artifact is an opaque trained-model blob.
type Artifact struct {
	ProjectID string    `json:"project_id"`
	Label     string    `json:"version"`
	Content   []byte    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Project statuses.
const (
	StatusActive    = "Active"
	StatusInactive  = "Inactive"
	StatusCompleted = "Completed"
)

// Privacy statuses.
const (
	PrivacyPrivate = "Private"
	PrivacyPublic  = "Public"
)

// ValidStatuses are the allowed project statuses.
var ValidStatuses = map[string]bool{
	StatusActive:    true,
	StatusInactive:  true,
	StatusCompleted: true,
}

// ValidPrivacyStatuses are the allowed privacy settings.
var ValidPrivacyStatuses = map[string]bool{
	PrivacyPrivate: true,
	PrivacyPublic:  true,
}
