package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/fraud-detection/internal/audit"
)

// LogSink writes one structured log line per audit event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []audit.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("outcome", string(evt.Outcome)),
			zap.Time("event_time", evt.TS),
			zap.String("client", evt.Client),
			zap.Duration("latency", evt.Latency),
		}
		if evt.Outcome == audit.OutcomeRejected {
			fields = append(fields, zap.String("reason", evt.Reason))
		} else {
			fields = append(fields,
				zap.Stringer("prediction_id", evt.PredictionID),
				zap.String("label", evt.Label),
				zap.Float64("probability", evt.Probability),
				zap.String("model_version", evt.ModelVersion),
			)
		}
		s.logger.Info("prediction audit", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
