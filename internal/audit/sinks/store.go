package sinks

import (
	"context"
	"fmt"

	"github.com/JakeFAU/fraud-detection/internal/audit"
)

// PredictionRepository persists predicted events.
type PredictionRepository interface {
	InsertPredictions(ctx context.Context, events []audit.Event) error
}

// StoreSink forwards predicted events to a repository in one call per batch.
type StoreSink struct {
	repo PredictionRepository
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo PredictionRepository) *StoreSink {
	return &StoreSink{repo: repo}
}

// Consume drops rejections and persists the rest.
func (s *StoreSink) Consume(ctx context.Context, batch []audit.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	rows := make([]audit.Event, 0, len(batch))
	for _, evt := range batch {
		if evt.Outcome == audit.OutcomePredicted {
			rows = append(rows, evt)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	if err := s.repo.InsertPredictions(ctx, rows); err != nil {
		return fmt.Errorf("insert predictions: %w", err)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
