package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/APTrust/preservation-fixity/constants"
	"github.com/APTrust/preservation-fixity/fixity"
	"github.com/APTrust/preservation-fixity/models/common"
	"github.com/APTrust/preservation-fixity/models/service"
)

// QueueFixity runs scheduling passes. Each pass registers new objects
// from the catalog, selects the objects due for a check, and either
// checks them here or pushes them into the NSQ fixity topic.
type QueueFixity struct {
	Context *common.Context

	// Identifier is an optional object identifier to check first,
	// whether or not it is due. This is useful for manual testing
	// and spot checks.
	Identifier string

	// Catalog lists the objects that should be checked. If nil,
	// the pass works only from objects already in the state index.
	Catalog fixity.Catalog

	Scheduler *fixity.Scheduler

	// Batch runs checks in this process. If nil, selected objects
	// go to NSQ for the apt_fixity workers.
	Batch *BatchRunner
}

// NewQueueFixity creates a new scheduler worker.
//
// This relies on these config settings:
//
// MaxDaysSinceFixityCheck specifies the number of days between
// fixity checks. Any object that hasn't been checked in this many
// days is eligible to be queued.
//
// QueueFixityInterval specifies how often this should check
// for objects to queue. In production, this is usually 60 mintes.
//
// MaxFixityItemsPerRun specifies the maximum number of items
// to queue per run. In production, this is usually 2500, though
// it could be set higher when we have the bandwidth and want to
// clear out backlogs.
//
// If local is true, checks run in this process on FixityWorkers
// goroutines instead of going to NSQ.
func NewQueueFixity(_context *common.Context, identifier string, local bool) (*QueueFixity, error) {
	q := &QueueFixity{
		Context:    _context,
		Identifier: identifier,
		Scheduler:  _context.NewScheduler(),
	}
	if _context.S3Registry != nil {
		q.Catalog = _context.S3Registry
	}
	if local {
		runner, err := _context.NewRunner()
		if err != nil {
			return nil, err
		}
		q.Batch = NewBatchRunner(runner, q.Scheduler, _context.Logger, _context.Config.FixityWorkers)
	}
	return q, nil
}

func (q *QueueFixity) logStartup() {
	q.Context.Logger.Info("Starting with config settings:")
	configJSON, _ := q.Context.Config.ToJSON()
	q.Context.Logger.Info(configJSON)
	q.Context.Logger.Infof("Scan interval: %s",
		q.Context.Config.QueueFixityInterval.String())
}

// RunOnce runs a single pass and returns its summary.
func (q *QueueFixity) RunOnce(ctx context.Context) *service.PassResult {
	q.logStartup()
	defer q.Scheduler.Shutdown()
	return q.run(ctx)
}

// RunAsService runs a pass, waits QueueFixityInterval, and repeats
// until ctx is cancelled.
func (q *QueueFixity) RunAsService(ctx context.Context) {
	q.logStartup()
	defer q.Scheduler.Shutdown()
	ticker := time.NewTicker(q.Context.Config.QueueFixityInterval)
	defer ticker.Stop()
	for {
		q.run(ctx)
		select {
		case <-ctx.Done():
			q.Context.Logger.Infof("Stopping: %v", ctx.Err())
			return
		case <-ticker.C:
		}
	}
}

func (q *QueueFixity) run(ctx context.Context) *service.PassResult {
	result := service.NewPassResult()
	result.Start()
	defer q.finish(result)

	if q.Catalog != nil {
		count, err := fixity.SyncCatalog(ctx, q.Catalog, q.Context.RedisClient)
		if err != nil {
			// Objects already registered can still be checked.
			q.Context.Logger.Errorf("Catalog sync stopped after %d objects: %v", count, err)
			result.AddError(service.NewProcessingError("", fmt.Sprintf("catalog sync: %v", err), false))
		} else {
			q.Context.Logger.Infof("Catalog lists %d objects", count)
		}
	}

	policy := q.policy()
	batch, err := q.Scheduler.SelectBatch(ctx, policy)
	if err != nil {
		q.Context.Logger.Errorf("Cannot select objects to check: %v", err)
		result.AddError(service.NewProcessingError("", err.Error(), true))
		return result
	}
	result.Selected = len(batch)
	claimed := q.Scheduler.Claim(batch)
	result.Dispatched = len(claimed)

	if q.Batch != nil {
		q.Context.Logger.Infof("Checking %d objects with %d workers", len(claimed), q.Batch.NumWorkers)
		q.Batch.Run(ctx, claimed, result)
	} else {
		q.addToNSQ(claimed, result)
	}
	q.updateBacklog(ctx, policy)
	return result
}

func (q *QueueFixity) policy() fixity.Policy {
	if q.Identifier != "" {
		return q.Context.Config.Policy(q.Identifier)
	}
	return q.Context.Config.Policy()
}

// addToNSQ publishes claimed in one request. The claims are released
// right away: once published, the object belongs to the apt_fixity
// workers, and if the check is never recorded the object is still due
// on the next pass.
func (q *QueueFixity) addToNSQ(claimed []string, result *service.PassResult) {
	defer func() {
		for _, objectID := range claimed {
			q.Scheduler.Release(objectID)
		}
	}()
	if len(claimed) == 0 {
		return
	}
	err := q.Context.NSQClient.EnqueueBatch(constants.TopicFixity, claimed)
	if err != nil {
		q.Context.Logger.Errorf("Error sending %d objects to %s: %v", len(claimed), constants.TopicFixity, err)
		result.AddError(service.NewProcessingError("", err.Error(), true))
		result.Dispatched = 0
		return
	}
	q.Context.Logger.Infof("Added %d objects to %s", len(claimed), constants.TopicFixity)
}

func (q *QueueFixity) updateBacklog(ctx context.Context, policy fixity.Policy) {
	backlog, err := q.Scheduler.Backlog(ctx, policy)
	if err != nil {
		q.Context.Logger.Warningf("Cannot count backlog: %v", err)
		return
	}
	fixity.BacklogObjects.Set(float64(backlog))
	q.Context.Logger.Infof("%d objects are still due", backlog)
}

func (q *QueueFixity) finish(result *service.PassResult) {
	result.Finish()
	resultJSON, err := result.ToJSON()
	if err != nil {
		q.Context.Logger.Errorf("Cannot serialize pass result: %v", err)
		return
	}
	if result.HasErrors() {
		q.Context.Logger.Warningf("Pass finished in %s with errors: %s", result.RunTime(), resultJSON)
	} else {
		q.Context.Logger.Infof("Pass finished in %s: %s", result.RunTime(), resultJSON)
	}
}
