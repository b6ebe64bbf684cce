package model

import (
	"errors"
	"testing"
)

func TestModelVersionValidate(t *testing.T) {
	ok := ModelVersion{
		ProjectID:          "p1",
		Label:              "v1",
		Epochs:             []int{1, 2},
		TrainingAccuracy:   []float64{0.1, 0.2},
		TrainingLoss:       []float64{2, 1},
		ValidationAccuracy: []float64{0.1, 0.2},
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	empty := ModelVersion{ProjectID: "p1", Label: "v0"}
	if err := empty.Validate(); err != nil {
		t.Errorf("a version with no epochs is valid, got %v", err)
	}

	uneven := ok
	uneven.ValidationAccuracy = []float64{0.1}
	if err := uneven.Validate(); !errors.Is(err, ErrUnevenCurves) {
		t.Errorf("expected ErrUnevenCurves, got %v", err)
	}

	unlabeled := ok
	unlabeled.Label = ""
	if err := unlabeled.Validate(); err == nil {
		t.Error("expected error for missing label")
	}
}

func TestConfusionMatrixValidate(t *testing.T) {
	if err := (ConfusionMatrix{ProjectID: "p1", Label: "v1"}).Validate(); err != nil {
		t.Errorf("all-zero matrix is valid, got %v", err)
	}
	if err := (ConfusionMatrix{ProjectID: "p1", Label: "v1", TrueNegatives: -3}).Validate(); err == nil {
		t.Error("expected error for negative count")
	}
}

func TestCurves(t *testing.T) {
	v := ModelVersion{Epochs: []int{1}, TrainingAccuracy: []float64{0.5}, TrainingLoss: []float64{1}, ValidationAccuracy: []float64{0.4}}
	c := v.Curves()
	if c.Epochs[0] != 1 || c.TrainingAccuracy[0] != 0.5 || c.TrainingLoss[0] != 1 || c.ValidationAccuracy[0] != 0.4 {
		t.Errorf("unexpected curves %+v", c)
	}
}
