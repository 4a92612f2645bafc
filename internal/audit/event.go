package audit

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome classifies what happened to a prediction request.
type Outcome string

// Supported outcomes.
const (
	OutcomePredicted Outcome = "predicted"
	OutcomeRejected  Outcome = "rejected"
)

// Event captures a single prediction request.
type Event struct {
	// PredictionID is the UUIDv7 returned to the caller.
	PredictionID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS      time.Time
	Outcome Outcome
	// Label is "Fraud" or "Not Fraud" for predicted events.
	Label        string
	Fraud        bool
	Probability  float64
	ModelVersion string
	Latency      time.Duration
	// Client is the rate limiter key of the caller.
	Client string
	// Reason explains a rejection (e.g. missing features).
	Reason string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Outcome {
	case OutcomePredicted:
		if e.PredictionID == uuid.Nil {
			return errors.New("predicted event requires prediction id")
		}
		if e.Label == "" {
			return errors.New("predicted event requires label")
		}
		if e.Probability < 0 || e.Probability > 1 {
			return fmt.Errorf("probability %v out of range", e.Probability)
		}
	case OutcomeRejected:
		if e.Reason == "" {
			return errors.New("rejected event requires reason")
		}
	default:
		return fmt.Errorf("unknown outcome %q", e.Outcome)
	}
	if e.Latency < 0 {
		return errors.New("latency must be >= 0")
	}
	return nil
}
