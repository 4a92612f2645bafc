package explain

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/JakeFAU/fraud-detection/internal/model"
)

// ClassNames labels class 0 and class 1 in local explanations.
var ClassNames = []string{"Negative", "Positive"}

// LimeConfig tunes the local surrogate.
type LimeConfig struct {
	NumSamples int
	// KernelWidth defaults to 0.75 * sqrt(d).
	KernelWidth float64
	// NumFeatures caps the attributions returned.
	NumFeatures int
	Ridge       float64
	Seed        uint64
}

func (c LimeConfig) withDefaults(d int) LimeConfig {
	if c.NumSamples <= 0 {
		c.NumSamples = 5000
	}
	if c.KernelWidth <= 0 {
		c.KernelWidth = 0.75 * math.Sqrt(float64(d))
	}
	if c.NumFeatures <= 0 || c.NumFeatures > d {
		c.NumFeatures = min(10, d)
	}
	if c.Ridge <= 0 {
		c.Ridge = 1
	}
	return c
}

// LocalExplanation is a weighted linear surrogate around one instance.
type LocalExplanation struct {
	InstanceIndex int `json:"instance_index"`
	// Prediction is the model probability of the positive class.
	Prediction float64 `json:"prediction"`
	// LocalPrediction is the surrogate's value at the instance.
	LocalPrediction float64       `json:"local_prediction"`
	Intercept       float64       `json:"intercept"`
	Score           float64       `json:"score"`
	Weights         []Attribution `json:"weights"`
	ClassNames      []string      `json:"class_names"`
}

// Lime explains one instance by sampling Gaussian perturbations scaled by
// the training standard deviation, weighting them with an exponential
// kernel on their scaled distance, and fitting a ridge regression of
// PredictProba on the scaled perturbations.
func Lime(m model.Classifier, train [][]float64, instance []float64, cfg LimeConfig) (LocalExplanation, error) {
	if len(train) == 0 {
		return LocalExplanation{}, errors.New("training data is required")
	}
	d := len(instance)
	if d == 0 || d != len(train[0]) {
		return LocalExplanation{}, fmt.Errorf("instance has %d features, training data %d", d, len(train[0]))
	}
	cfg = cfg.withDefaults(d)
	names := m.FeatureNames()

	scale := make([]float64, d)
	col := make([]float64, len(train))
	for j := 0; j < d; j++ {
		for i := range train {
			col[i] = train[i][j]
		}
		_, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		scale[j] = std
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1))
	n := cfg.NumSamples
	z := mat.NewDense(n, d, nil)
	labels := make([]float64, n)
	weights := make([]float64, n)
	sample := make([]float64, d)
	for i := 0; i < n; i++ {
		var dist2 float64
		for j := 0; j < d; j++ {
			var v float64
			if i > 0 {
				v = rng.NormFloat64()
			}
			z.Set(i, j, v)
			sample[j] = instance[j] + v*scale[j]
			dist2 += v * v
		}
		p, err := m.PredictProba(sample)
		if err != nil {
			return LocalExplanation{}, fmt.Errorf("score perturbation %d: %w", i, err)
		}
		labels[i] = p
		weights[i] = math.Sqrt(math.Exp(-dist2 / (cfg.KernelWidth * cfg.KernelWidth)))
	}

	coef, intercept, score, err := weightedRidge(z, labels, weights, cfg.Ridge)
	if err != nil {
		return LocalExplanation{}, err
	}

	attrs := make([]Attribution, d)
	for j := range attrs {
		attrs[j] = Attribution{Feature: names[j], Value: coef[j]}
	}
	sortByMagnitude(attrs)

	return LocalExplanation{
		Prediction:      labels[0],
		LocalPrediction: intercept,
		Intercept:       intercept,
		Score:           score,
		Weights:         attrs[:cfg.NumFeatures],
		ClassNames:      append([]string(nil), ClassNames...),
	}, nil
}

// weightedRidge solves min sum_i w_i (y_i - b - x_i·beta)^2 + alpha |beta|^2
// with an unpenalized intercept, and returns the weighted R^2.
func weightedRidge(x *mat.Dense, y, w []float64, alpha float64) ([]float64, float64, float64, error) {
	n, d := x.Dims()
	sumW := 0.0
	for _, v := range w {
		sumW += v
	}
	if sumW == 0 {
		return nil, 0, 0, errors.New("all kernel weights are zero")
	}

	xMean := make([]float64, d)
	var yMean float64
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			xMean[j] += w[i] * x.At(i, j)
		}
		yMean += w[i] * y[i]
	}
	for j := range xMean {
		xMean[j] /= sumW
	}
	yMean /= sumW

	xc := mat.NewDense(n, d, nil)
	yc := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		sw := math.Sqrt(w[i])
		for j := 0; j < d; j++ {
			xc.Set(i, j, sw*(x.At(i, j)-xMean[j]))
		}
		yc.SetVec(i, sw*(y[i]-yMean))
	}

	var a mat.Dense
	a.Mul(xc.T(), xc)
	for j := 0; j < d; j++ {
		a.Set(j, j, a.At(j, j)+alpha)
	}
	var b mat.VecDense
	b.MulVec(xc.T(), yc)

	var beta mat.VecDense
	if err := beta.SolveVec(&a, &b); err != nil {
		return nil, 0, 0, fmt.Errorf("solve ridge system: %w", err)
	}
	coef := make([]float64, d)
	intercept := yMean
	for j := 0; j < d; j++ {
		coef[j] = beta.AtVec(j)
		intercept -= coef[j] * xMean[j]
	}

	var ssRes, ssTot float64
	for i := 0; i < n; i++ {
		pred := intercept
		for j := 0; j < d; j++ {
			pred += coef[j] * x.At(i, j)
		}
		ssRes += w[i] * (y[i] - pred) * (y[i] - pred)
		ssTot += w[i] * (y[i] - yMean) * (y[i] - yMean)
	}
	score := 0.0
	if ssTot > 0 {
		score = 1 - ssRes/ssTot
	}
	return coef, intercept, score, nil
}
