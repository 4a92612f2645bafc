package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/fraud-detection/internal/audit"
)

// PrometheusSink exports prediction volume, latency and score distribution.
type PrometheusSink struct {
	predictions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	probability prometheus.Histogram
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fraud_predictions_total",
			Help: "Predictions served, partitioned by label.",
		}, []string{"label"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fraud_prediction_rejections_total",
			Help: "Prediction requests rejected before scoring, partitioned by reason.",
		}, []string{"reason"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fraud_prediction_latency_seconds",
			Help:    "Time spent scoring a request.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"outcome"}),
		probability: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fraud_prediction_probability",
			Help:    "Distribution of fraud probabilities returned.",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 9),
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.predictions,
		s.rejections,
		s.latency,
		s.probability,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register audit collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []audit.Event) error {
	for _, evt := range batch {
		switch evt.Outcome {
		case audit.OutcomePredicted:
			s.predictions.WithLabelValues(evt.Label).Inc()
			s.probability.Observe(evt.Probability)
		case audit.OutcomeRejected:
			s.rejections.WithLabelValues(evt.Reason).Inc()
		}
		if evt.Latency > 0 {
			s.latency.WithLabelValues(string(evt.Outcome)).Observe(evt.Latency.Seconds())
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
