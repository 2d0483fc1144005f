package workers

import (
	"context"
	"errors"

	"github.com/APTrust/preservation-fixity/fixity"
	"github.com/APTrust/preservation-fixity/models/service"
	"github.com/op/go-logging"
	"golang.org/x/sync/errgroup"
)

// BatchRunner checks a batch of objects in this process, running up to
// NumWorkers checks at a time.
type BatchRunner struct {
	Runner     *fixity.Runner
	Scheduler  *fixity.Scheduler
	Logger     *logging.Logger
	NumWorkers int
}

// NewBatchRunner creates a BatchRunner. NumWorkers below one is
// treated as one.
func NewBatchRunner(runner *fixity.Runner, scheduler *fixity.Scheduler, logger *logging.Logger, numWorkers int) *BatchRunner {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &BatchRunner{
		Runner:     runner,
		Scheduler:  scheduler,
		Logger:     logger,
		NumWorkers: numWorkers,
	}
}

// Run checks every object in objectIDs and adds the outcomes to result.
// The objects must already be claimed from the scheduler. Each claim
// is released when its check ends, whether or not a record was
// written. Objects not yet started when ctx is cancelled are released
// and counted as cancelled.
//
// Run returns after every started check has returned. The only error
// it returns is ctx.Err().
func (b *BatchRunner) Run(ctx context.Context, objectIDs []string, result *service.PassResult) error {
	var group errgroup.Group
	group.SetLimit(b.NumWorkers)
	for _, objectID := range objectIDs {
		if ctx.Err() != nil {
			b.Scheduler.Release(objectID)
			result.RecordCancelled()
			continue
		}
		group.Go(func() error {
			defer b.Scheduler.Release(objectID)
			b.check(ctx, objectID, result)
			return nil
		})
	}
	group.Wait()
	return ctx.Err()
}

func (b *BatchRunner) check(ctx context.Context, objectID string, result *service.PassResult) {
	record, err := b.Runner.Run(ctx, objectID)
	switch {
	case err == nil:
		result.RecordOutcome(record.Outcome)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		result.RecordCancelled()
	default:
		// Persistence failures leave the object due for the next pass.
		result.AddError(service.NewProcessingError(objectID, err.Error(), fixity.IsPersistenceError(err)))
	}
}
