package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/fraud-detection/internal/audit"
	"github.com/JakeFAU/fraud-detection/internal/publisher"
)

// Alert is the message published for each fraud prediction.
type Alert struct {
	PredictionID string    `json:"prediction_id"`
	Probability  float64   `json:"probability"`
	ModelVersion string    `json:"model_version"`
	Client       string    `json:"client,omitempty"`
	PredictedAt  time.Time `json:"predicted_at"`
}

// AlertSink publishes an Alert for every event labeled as fraud.
type AlertSink struct {
	pub   publisher.Publisher
	topic string
}

// NewAlertSink builds an AlertSink publishing to topic.
func NewAlertSink(pub publisher.Publisher, topic string) *AlertSink {
	return &AlertSink{pub: pub, topic: topic}
}

// Consume publishes fraud events; failures are joined so one bad publish
// does not stop the rest of the batch.
func (s *AlertSink) Consume(ctx context.Context, batch []audit.Event) error {
	if s == nil || s.pub == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if evt.Outcome != audit.OutcomePredicted || !evt.Fraud {
			continue
		}
		alert := Alert{
			PredictionID: evt.PredictionID.String(),
			Probability:  evt.Probability,
			ModelVersion: evt.ModelVersion,
			Client:       evt.Client,
			PredictedAt:  evt.TS,
		}
		if _, err := s.pub.Publish(ctx, s.topic, alert); err != nil {
			errs = append(errs, fmt.Errorf("publish alert %s: %w", alert.PredictionID, err))
		}
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *AlertSink) Close(context.Context) error {
	return nil
}
