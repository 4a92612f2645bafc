package model

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Logistic is a standardized L2-regularized logistic regression.
type Logistic struct {
	art Artifact
}

// Predict thresholds PredictProba.
func (m *Logistic) Predict(x []float64) (int, error) {
	p, err := m.PredictProba(x)
	if err != nil {
		return 0, err
	}
	if p >= m.art.Threshold {
		return 1, nil
	}
	return 0, nil
}

// PredictProba returns sigmoid(intercept + w·z).
func (m *Logistic) PredictProba(x []float64) (float64, error) {
	z, err := m.Standardize(x)
	if err != nil {
		return 0, err
	}
	return sigmoid(m.art.Intercept + floats.Dot(m.art.Coefficients, z)), nil
}

// Standardize applies the training-time centering and scaling.
func (m *Logistic) Standardize(x []float64) ([]float64, error) {
	if err := checkWidth(x, len(m.art.FeatureNames)); err != nil {
		return nil, err
	}
	z := make([]float64, len(x))
	for j, v := range x {
		z[j] = (v - m.art.Means[j]) / m.art.Scales[j]
	}
	return z, nil
}

// Coefficients returns a copy of the weights on standardized inputs.
func (m *Logistic) Coefficients() []float64 {
	return append([]float64(nil), m.art.Coefficients...)
}

// Intercept returns the bias term.
func (m *Logistic) Intercept() float64 { return m.art.Intercept }

// FeatureNames returns the input order.
func (m *Logistic) FeatureNames() []string {
	return append([]string(nil), m.art.FeatureNames...)
}

// Artifact returns the serialized form.
func (m *Logistic) Artifact() Artifact { return m.art }

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// LogisticTrainer fits Logistic by full-batch gradient descent.
type LogisticTrainer struct {
	LearningRate float64
	MaxIter      int
	L2           float64
	Tolerance    float64
	Threshold    float64
	// Balanced reweights samples inversely to class frequency.
	Balanced bool
	Now      func() time.Time
}

// NewLogisticTrainer returns a trainer with sensible defaults.
func NewLogisticTrainer() *LogisticTrainer {
	return &LogisticTrainer{
		LearningRate: 0.1,
		MaxIter:      500,
		L2:           1e-4,
		Tolerance:    1e-6,
		Threshold:    0.5,
		Balanced:     true,
		Now:          func() time.Time { return time.Now().UTC() },
	}
}

// Kind implements Trainer.
func (t *LogisticTrainer) Kind() Kind { return KindLogisticRegression }

// Fit implements Trainer.
func (t *LogisticTrainer) Fit(ctx context.Context, x [][]float64, y []int, featureNames []string) (Classifier, error) {
	if err := validateTrainingSet(x, y, featureNames); err != nil {
		return nil, err
	}
	if t.LearningRate <= 0 || t.MaxIter <= 0 {
		return nil, fmt.Errorf("learning rate and max iterations must be > 0")
	}
	n, d := len(x), len(featureNames)

	means := make([]float64, d)
	scales := make([]float64, d)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		means[j], scales[j] = mean, std
	}

	z := make([][]float64, n)
	for i, row := range x {
		z[i] = make([]float64, d)
		for j, v := range row {
			z[i][j] = (v - means[j]) / scales[j]
		}
	}

	weights := t.sampleWeights(y)
	sumW := floats.Sum(weights)

	coef := make([]float64, d)
	grad := make([]float64, d)
	var intercept float64
	iterations := 0
	for iter := 0; iter < t.MaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iterations = iter + 1
		for j := range grad {
			grad[j] = 0
		}
		var gradB float64
		for i, row := range z {
			e := (sigmoid(intercept+floats.Dot(coef, row)) - float64(y[i])) * weights[i]
			floats.AddScaled(grad, e, row)
			gradB += e
		}
		floats.Scale(1/sumW, grad)
		gradB /= sumW
		floats.AddScaled(grad, t.L2, coef)

		floats.AddScaled(coef, -t.LearningRate, grad)
		intercept -= t.LearningRate * gradB

		if math.Max(floats.Norm(grad, math.Inf(1)), math.Abs(gradB)) < t.Tolerance {
			break
		}
	}

	art := Artifact{
		Kind:         KindLogisticRegression,
		FeatureNames: append([]string(nil), featureNames...),
		Means:        means,
		Scales:       scales,
		Coefficients: coef,
		Intercept:    intercept,
		Threshold:    t.Threshold,
		TrainedAt:    t.now(),
		Params: map[string]string{
			"learning_rate": strconv.FormatFloat(t.LearningRate, 'g', -1, 64),
			"max_iter":      strconv.Itoa(t.MaxIter),
			"l2":            strconv.FormatFloat(t.L2, 'g', -1, 64),
			"balanced":      strconv.FormatBool(t.Balanced),
			"iterations":    strconv.Itoa(iterations),
		},
	}
	return FromArtifact(art)
}

func (t *LogisticTrainer) sampleWeights(y []int) []float64 {
	w := make([]float64, len(y))
	if !t.Balanced {
		for i := range w {
			w[i] = 1
		}
		return w
	}
	var counts [2]int
	for _, label := range y {
		counts[label]++
	}
	var classWeight [2]float64
	for c, n := range counts {
		if n > 0 {
			classWeight[c] = float64(len(y)) / (2 * float64(n))
		}
	}
	for i, label := range y {
		w[i] = classWeight[label]
	}
	return w
}

func (t *LogisticTrainer) now() time.Time {
	if t.Now == nil {
		return time.Now().UTC()
	}
	return t.Now()
}
