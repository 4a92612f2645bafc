package model

import (
	"fmt"
	"time"
)

// NewTrainer builds a trainer from a kind and loosely typed parameters, as
// read from an experiment file.
func NewTrainer(kind Kind, params map[string]any, now func() time.Time) (Trainer, error) {
	switch kind {
	case KindLogisticRegression:
		t := NewLogisticTrainer()
		if now != nil {
			t.Now = now
		}
		var err error
		if t.LearningRate, err = floatParam(params, "learning_rate", t.LearningRate); err != nil {
			return nil, err
		}
		if t.L2, err = floatParam(params, "l2", t.L2); err != nil {
			return nil, err
		}
		if t.Tolerance, err = floatParam(params, "tolerance", t.Tolerance); err != nil {
			return nil, err
		}
		if t.Threshold, err = floatParam(params, "threshold", t.Threshold); err != nil {
			return nil, err
		}
		maxIter, err := floatParam(params, "max_iter", float64(t.MaxIter))
		if err != nil {
			return nil, err
		}
		t.MaxIter = int(maxIter)
		if cw, ok := params["class_weight"]; ok {
			switch cw {
			case "balanced":
				t.Balanced = true
			case "none", nil:
				t.Balanced = false
			default:
				return nil, fmt.Errorf("class_weight must be balanced or none, got %v", cw)
			}
		}
		return t, nil
	case KindMajority:
		return &MajorityTrainer{Now: now}, nil
	default:
		return nil, fmt.Errorf("unknown model kind %q", kind)
	}
}

func floatParam(params map[string]any, key string, def float64) (float64, error) {
	raw, ok := params[key]
	if !ok {
		return def, nil
	}
	switch v := raw.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("param %s must be numeric, got %T", key, raw)
	}
}
