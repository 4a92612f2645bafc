package model

import (
	"context"
	"strconv"
	"time"
)

// Majority always predicts the most frequent training class and reports
// the training positive rate as its probability.
type Majority struct {
	art Artifact
}

// Predict returns 1 only when fraud was the strict majority in training.
func (m *Majority) Predict(x []float64) (int, error) {
	if err := checkWidth(x, len(m.art.FeatureNames)); err != nil {
		return 0, err
	}
	if m.art.Prior > 0.5 {
		return 1, nil
	}
	return 0, nil
}

// PredictProba returns the training positive rate.
func (m *Majority) PredictProba(x []float64) (float64, error) {
	if err := checkWidth(x, len(m.art.FeatureNames)); err != nil {
		return 0, err
	}
	return m.art.Prior, nil
}

// FeatureNames returns the input order.
func (m *Majority) FeatureNames() []string {
	return append([]string(nil), m.art.FeatureNames...)
}

// Artifact returns the serialized form.
func (m *Majority) Artifact() Artifact { return m.art }

// MajorityTrainer fits Majority.
type MajorityTrainer struct {
	Now func() time.Time
}

// Kind implements Trainer.
func (t *MajorityTrainer) Kind() Kind { return KindMajority }

// Fit implements Trainer.
func (t *MajorityTrainer) Fit(ctx context.Context, x [][]float64, y []int, featureNames []string) (Classifier, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateTrainingSet(x, y, featureNames); err != nil {
		return nil, err
	}
	var pos int
	for _, label := range y {
		pos += label
	}
	now := time.Now().UTC()
	if t.Now != nil {
		now = t.Now()
	}
	return FromArtifact(Artifact{
		Kind:         KindMajority,
		FeatureNames: append([]string(nil), featureNames...),
		Prior:        float64(pos) / float64(len(y)),
		Threshold:    0.5,
		TrainedAt:    now,
		Params:       map[string]string{"samples": strconv.Itoa(len(y))},
	})
}
