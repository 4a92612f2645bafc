// Package evaluation scores binary classifiers.
package evaluation

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// ErrUndefinedAUC is returned when y holds a single class.
var ErrUndefinedAUC = errors.New("roc auc is undefined when only one class is present")

// ZeroDivision is the value precision and recall take when their denominator is zero.
const ZeroDivision = 1.0

// Confusion is a 2x2 confusion matrix with class 1 as positive.
type Confusion struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	TN int `json:"tn"`
	FN int `json:"fn"`
}

// NewConfusion tallies predictions against labels.
func NewConfusion(yTrue, yPred []int) (Confusion, error) {
	if len(yTrue) != len(yPred) {
		return Confusion{}, fmt.Errorf("length mismatch: %d labels, %d predictions", len(yTrue), len(yPred))
	}
	var c Confusion
	for i := range yTrue {
		c.Add(yTrue[i], yPred[i])
	}
	return c, nil
}

// Add records one outcome.
func (c *Confusion) Add(truth, pred int) {
	switch {
	case truth == 1 && pred == 1:
		c.TP++
	case truth == 1:
		c.FN++
	case pred == 1:
		c.FP++
	default:
		c.TN++
	}
}

// Total is the number of recorded outcomes.
func (c Confusion) Total() int { return c.TP + c.FP + c.TN + c.FN }

// Accuracy is the fraction of correct predictions, 0 when empty.
func (c Confusion) Accuracy() float64 {
	if c.Total() == 0 {
		return 0
	}
	return float64(c.TP+c.TN) / float64(c.Total())
}

// Precision is TP/(TP+FP), or ZeroDivision when nothing was predicted positive.
func (c Confusion) Precision() float64 {
	if c.TP+c.FP == 0 {
		return ZeroDivision
	}
	return float64(c.TP) / float64(c.TP+c.FP)
}

// Recall is TP/(TP+FN), or ZeroDivision when there are no positives.
func (c Confusion) Recall() float64 {
	if c.TP+c.FN == 0 {
		return ZeroDivision
	}
	return float64(c.TP) / float64(c.TP+c.FN)
}

// F1 is the harmonic mean of precision and recall over the raw counts.
// It is 0 when there are no true positives, false positives or false negatives.
func (c Confusion) F1() float64 {
	denom := 2*c.TP + c.FP + c.FN
	if denom == 0 {
		return 0
	}
	return float64(2*c.TP) / float64(denom)
}

// Accuracy scores hard predictions.
func Accuracy(yTrue, yPred []int) (float64, error) {
	c, err := NewConfusion(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return c.Accuracy(), nil
}

// Precision scores hard predictions.
func Precision(yTrue, yPred []int) (float64, error) {
	c, err := NewConfusion(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return c.Precision(), nil
}

// Recall scores hard predictions.
func Recall(yTrue, yPred []int) (float64, error) {
	c, err := NewConfusion(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return c.Recall(), nil
}

// F1 scores hard predictions.
func F1(yTrue, yPred []int) (float64, error) {
	c, err := NewConfusion(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return c.F1(), nil
}

// ROCAUC integrates the ROC curve of scores against yTrue with the
// trapezoidal rule. Scores may be hard 0/1 predictions or probabilities.
func ROCAUC(yTrue []int, scores []float64) (float64, error) {
	if len(yTrue) != len(scores) {
		return 0, fmt.Errorf("length mismatch: %d labels, %d scores", len(yTrue), len(scores))
	}
	y := make([]float64, len(scores))
	classes := make([]bool, len(yTrue))
	var pos, neg int
	for i := range yTrue {
		y[i] = scores[i]
		classes[i] = yTrue[i] == 1
		if classes[i] {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0, ErrUndefinedAUC
	}

	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)

	type point struct{ x, y float64 }
	pts := make([]point, 0, len(fpr)+2)
	pts = append(pts, point{0, 0})
	for i := range fpr {
		pts = append(pts, point{fpr[i], tpr[i]})
	}
	pts = append(pts, point{1, 1})
	sort.SliceStable(pts, func(i, j int) bool {
		if pts[i].x != pts[j].x {
			return pts[i].x < pts[j].x
		}
		return pts[i].y < pts[j].y
	})

	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = p.x, p.y
	}
	return integrate.Trapezoidal(xs, ys), nil
}

// Scores bundles the metrics logged for every run.
type Scores struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
	// ROCAUC is nil when only one class is present in yTrue.
	ROCAUC    *float64  `json:"roc_auc,omitempty"`
	Confusion Confusion `json:"confusion"`
}

// Score computes every metric from hard predictions.
func Score(yTrue, yPred []int) (Scores, error) {
	c, err := NewConfusion(yTrue, yPred)
	if err != nil {
		return Scores{}, err
	}
	s := Scores{
		Accuracy:  c.Accuracy(),
		Precision: c.Precision(),
		Recall:    c.Recall(),
		F1:        c.F1(),
		Confusion: c,
	}
	hard := make([]float64, len(yPred))
	for i, p := range yPred {
		hard[i] = float64(p)
	}
	auc, err := ROCAUC(yTrue, hard)
	switch {
	case errors.Is(err, ErrUndefinedAUC):
	case err != nil:
		return Scores{}, err
	default:
		s.ROCAUC = &auc
	}
	return s, nil
}

// Map flattens the scores into the metric names logged per run.
func (s Scores) Map() map[string]float64 {
	out := map[string]float64{
		"accuracy":  s.Accuracy,
		"precision": s.Precision,
		"recall":    s.Recall,
		"f1_score":  s.F1,
	}
	if s.ROCAUC != nil {
		out["roc_auc"] = *s.ROCAUC
	}
	return out
}
