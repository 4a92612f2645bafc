// Package model holds the fraud classifiers, their trainers and the JSON
// artifact format used to ship a trained model to the prediction service.
package model

import (
	"context"
	"errors"
	"fmt"
)

// Kind names a classifier family.
type Kind string

// Supported kinds.
const (
	KindLogisticRegression Kind = "logistic_regression"
	KindMajority           Kind = "majority"
)

// ErrFeatureCount is returned when a vector has the wrong length.
var ErrFeatureCount = errors.New("feature count mismatch")

// Classifier scores feature vectors. Implementations are safe for concurrent use.
type Classifier interface {
	// Predict returns the hard label: 1 for fraud, 0 otherwise.
	Predict(x []float64) (int, error)
	// PredictProba returns the probability of class 1.
	PredictProba(x []float64) (float64, error)
	FeatureNames() []string
	Artifact() Artifact
}

// Linear is a classifier whose logit is an affine function of standardized inputs.
type Linear interface {
	Classifier
	Standardize(x []float64) ([]float64, error)
	Coefficients() []float64
	Intercept() float64
}

// Trainer fits a classifier on a design matrix.
type Trainer interface {
	Kind() Kind
	Fit(ctx context.Context, x [][]float64, y []int, featureNames []string) (Classifier, error)
}

// PredictAll applies Predict row by row.
func PredictAll(c Classifier, x [][]float64) ([]int, error) {
	out := make([]int, len(x))
	for i, row := range x {
		p, err := c.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}

// ProbaAll applies PredictProba row by row.
func ProbaAll(c Classifier, x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i, row := range x {
		p, err := c.PredictProba(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}

func checkWidth(x []float64, want int) error {
	if len(x) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrFeatureCount, len(x), want)
	}
	return nil
}

func validateTrainingSet(x [][]float64, y []int, featureNames []string) error {
	if len(x) == 0 {
		return errors.New("training set is empty")
	}
	if len(x) != len(y) {
		return fmt.Errorf("training set has %d rows and %d labels", len(x), len(y))
	}
	for i, row := range x {
		if err := checkWidth(row, len(featureNames)); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	for i, label := range y {
		if label != 0 && label != 1 {
			return fmt.Errorf("label %d: expected 0 or 1, got %d", i, label)
		}
	}
	return nil
}
