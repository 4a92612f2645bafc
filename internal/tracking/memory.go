package tracking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps runs in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	runs    map[uuid.UUID]*Run
	metrics map[uuid.UUID]map[string]Metric
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:    make(map[uuid.UUID]*Run),
		metrics: make(map[uuid.UUID]map[string]Metric),
	}
}

// StartRun implements Repository.
func (s *MemoryStore) StartRun(_ context.Context, runID uuid.UUID, name string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; ok {
		return fmt.Errorf("run %s already exists", runID)
	}
	s.runs[runID] = &Run{
		ID:        runID,
		Name:      name,
		StartedAt: startedAt,
		Status:    RunRunning,
		Params:    map[string]string{},
	}
	return nil
}

// LogParams implements Repository.
func (s *MemoryStore) LogParams(_ context.Context, runID uuid.UUID, params map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return ErrNotFound
	}
	for k, v := range params {
		run.Params[k] = v
	}
	return nil
}

// LogMetrics implements Repository.
func (s *MemoryStore) LogMetrics(_ context.Context, runID uuid.UUID, metrics map[string]float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		return ErrNotFound
	}
	bucket := s.metrics[runID]
	if bucket == nil {
		bucket = make(map[string]Metric)
		s.metrics[runID] = bucket
	}
	for k, v := range metrics {
		bucket[k] = Metric{RunID: runID, Key: k, Value: v, LoggedAt: at}
	}
	return nil
}

// CompleteRun implements Repository.
func (s *MemoryStore) CompleteRun(_ context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return ErrNotFound
	}
	run.FinishedAt = &finishedAt
	run.Status = status
	run.ErrorMessage = errMsg
	return nil
}

// GetRun implements Repository.
func (s *MemoryStore) GetRun(_ context.Context, runID uuid.UUID) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return Run{}, ErrNotFound
	}
	return cloneRun(run), nil
}

// ListRuns implements Repository.
func (s *MemoryStore) ListRuns(_ context.Context, status *RunStatus, limit, offset int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, cloneRun(run))
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID.String() > runs[j].ID.String()
	})
	if offset >= len(runs) {
		return []Run{}, nil
	}
	runs = runs[offset:]
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs, nil
}

// ListMetrics implements Repository.
func (s *MemoryStore) ListMetrics(_ context.Context, runID uuid.UUID) ([]Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.runs[runID]; !ok {
		return nil, ErrNotFound
	}
	out := make([]Metric, 0, len(s.metrics[runID]))
	for _, m := range s.metrics[runID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Close implements Repository.
func (s *MemoryStore) Close() error { return nil }

func cloneRun(run *Run) Run {
	out := *run
	out.Params = make(map[string]string, len(run.Params))
	for k, v := range run.Params {
		out.Params[k] = v
	}
	if run.FinishedAt != nil {
		t := *run.FinishedAt
		out.FinishedAt = &t
	}
	return out
}
