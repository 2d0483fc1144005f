package fixity

import (
	"context"
	"fmt"
	"time"

	"github.com/APTrust/preservation-fixity/models/service"
	"github.com/op/go-logging"
)

// Policy describes what one scheduling pass should select.
type Policy struct {
	// CheckIntervalMinimum is the minimum time between checks of
	// the same object. Objects last checked longer ago than this
	// are due.
	CheckIntervalMinimum time.Duration

	// BatchSize is the maximum number of objects to select.
	BatchSize int

	// PriorityObjects are selected first, whether or not they
	// are due. Useful for spot checks.
	PriorityObjects []string
}

func (p Policy) Validate() error {
	if p.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", p.BatchSize)
	}
	if p.CheckIntervalMinimum < 0 {
		return fmt.Errorf("check interval must not be negative, got %s", p.CheckIntervalMinimum)
	}
	return nil
}

// Scheduler picks the objects due for a check and keeps track of the
// ones it has handed out. The in-flight set lives only in memory: it
// is emptied by Shutdown and starts empty after a restart.
type Scheduler struct {
	Index    StateIndex
	Logger   *logging.Logger
	InFlight *service.InFlightSet

	// Now returns the current time. Tests may replace it.
	Now func() time.Time
}

// NewScheduler creates a Scheduler with an empty in-flight set.
func NewScheduler(index StateIndex, logger *logging.Logger) *Scheduler {
	return &Scheduler{
		Index:    index,
		Logger:   logger,
		InFlight: service.NewInFlightSet(),
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// SelectBatch returns up to policy.BatchSize objects to check, in
// order: priority objects, then never-checked objects, then objects
// by oldest last check, then by identifier. Objects already in flight
// are left out. SelectBatch only reads the index; call Claim before
// dispatching the batch.
func (s *Scheduler) SelectBatch(ctx context.Context, policy Policy) ([]string, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	batch := make([]string, 0, policy.BatchSize)
	seen := make(map[string]bool)
	add := func(objectID string) {
		if len(batch) >= policy.BatchSize || seen[objectID] || s.InFlight.Contains(objectID) {
			return
		}
		seen[objectID] = true
		batch = append(batch, objectID)
	}

	for _, objectID := range policy.PriorityObjects {
		add(objectID)
	}
	if len(batch) >= policy.BatchSize {
		return batch, nil
	}

	// Ask for enough extra to cover anything we will skip.
	cutoff := s.Now().Add(-policy.CheckIntervalMinimum)
	limit := policy.BatchSize + s.InFlight.Len() + len(policy.PriorityObjects)
	due, err := s.Index.DueBefore(ctx, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("cannot list objects due before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	for _, objectID := range due {
		add(objectID)
	}
	s.Logger.Infof("Selected %d objects not checked since %s (%d priority)",
		len(batch), cutoff.Format(time.RFC3339), len(policy.PriorityObjects))
	return batch, nil
}

// Claim marks objects as in flight and returns the ones that were not
// already claimed, in their original order.
func (s *Scheduler) Claim(objectIDs []string) []string {
	claimed := make([]string, 0, len(objectIDs))
	for _, objectID := range objectIDs {
		if s.InFlight.Add(objectID) {
			claimed = append(claimed, objectID)
		}
	}
	return claimed
}

// Release clears the in-flight mark on objectID. Call it when the
// check finishes, whatever the outcome.
func (s *Scheduler) Release(objectID string) {
	s.InFlight.Del(objectID)
}

// Backlog returns the number of objects due under policy right now.
func (s *Scheduler) Backlog(ctx context.Context, policy Policy) (int64, error) {
	cutoff := s.Now().Add(-policy.CheckIntervalMinimum)
	return s.Index.CountDueBefore(ctx, cutoff)
}

// Shutdown forgets all in-flight objects.
func (s *Scheduler) Shutdown() {
	if n := s.InFlight.Len(); n > 0 {
		s.Logger.Infof("Scheduler shutting down with %d objects in flight", n)
	}
	s.InFlight.Clear()
}

// SyncCatalog registers every object in catalog with index, so that
// objects never checked before become due. It returns the number of
// objects seen.
func SyncCatalog(ctx context.Context, catalog Catalog, index StateIndex) (int, error) {
	const batchSize = 500
	count := 0
	batch := make([]string, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := index.Register(ctx, batch...)
		batch = batch[:0]
		return err
	}
	err := catalog.ForEachObject(ctx, func(objectID string) error {
		count++
		batch = append(batch, objectID)
		if len(batch) == batchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	return count, err
}
