// Package explain produces feature attributions for a trained classifier:
// a global summary from exact linear SHAP values and a local, LIME-style
// surrogate for one instance.
package explain

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/JakeFAU/fraud-detection/internal/model"
)

// ErrNotLinear is returned when SHAP is requested for a non-linear model.
var ErrNotLinear = errors.New("linear shap requires a linear model")

// Attribution is a signed contribution of one feature.
type Attribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// GlobalExplanation summarizes SHAP values over a dataset.
type GlobalExplanation struct {
	// BaseValue is the expected logit over the background data.
	BaseValue float64 `json:"base_value"`
	// MeanAbs is mean |phi| per feature, largest first.
	MeanAbs []Attribution `json:"mean_abs"`
	// Values holds one row of phi per explained instance, in feature order.
	Values       [][]float64 `json:"values"`
	FeatureNames []string    `json:"feature_names"`
}

// LinearSHAP computes phi_ij = w_j * (z_ij - mean_j(z_background)) in logit
// space. For a linear model with independent features these are the exact
// Shapley values, and base + sum_j phi_ij equals the instance logit.
func LinearSHAP(m model.Classifier, background, x [][]float64) (GlobalExplanation, error) {
	lin, ok := m.(model.Linear)
	if !ok {
		return GlobalExplanation{}, ErrNotLinear
	}
	if len(background) == 0 || len(x) == 0 {
		return GlobalExplanation{}, errors.New("background and explained sets must be non-empty")
	}
	coef := lin.Coefficients()
	d := len(coef)

	mean := make([]float64, d)
	for i, row := range background {
		z, err := lin.Standardize(row)
		if err != nil {
			return GlobalExplanation{}, fmt.Errorf("background row %d: %w", i, err)
		}
		floats.Add(mean, z)
	}
	floats.Scale(1/float64(len(background)), mean)

	out := GlobalExplanation{
		BaseValue:    lin.Intercept() + floats.Dot(coef, mean),
		Values:       make([][]float64, len(x)),
		FeatureNames: m.FeatureNames(),
	}
	sumAbs := make([]float64, d)
	for i, row := range x {
		z, err := lin.Standardize(row)
		if err != nil {
			return GlobalExplanation{}, fmt.Errorf("row %d: %w", i, err)
		}
		phi := make([]float64, d)
		for j := range phi {
			phi[j] = coef[j] * (z[j] - mean[j])
			sumAbs[j] += math.Abs(phi[j])
		}
		out.Values[i] = phi
	}

	out.MeanAbs = make([]Attribution, d)
	for j, name := range out.FeatureNames {
		out.MeanAbs[j] = Attribution{Feature: name, Value: sumAbs[j] / float64(len(x))}
	}
	sortByMagnitude(out.MeanAbs)
	return out, nil
}

func sortByMagnitude(attrs []Attribution) {
	sort.SliceStable(attrs, func(i, j int) bool {
		return math.Abs(attrs[i].Value) > math.Abs(attrs[j].Value)
	})
}
