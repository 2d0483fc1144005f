package fixity

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/APTrust/preservation-fixity/constants"
	"github.com/APTrust/preservation-fixity/models/history"
	"github.com/op/go-logging"
)

// State is a step in a single object's check.
type State string

const (
	StatePending          State = "PENDING"
	StateOpeningStream    State = "OPENING_STREAM"
	StateComputing        State = "COMPUTING"
	StateFailedNotFound   State = "FAILED_NOT_FOUND"
	StateFailedRead       State = "FAILED_READ"
	StateMatch            State = "MATCH"
	StateMismatch         State = "MISMATCH"
	StateNoExpectedDigest State = "NO_EXPECTED_DIGEST"
)

// Terminal returns true if no further transitions follow s.
func (s State) Terminal() bool {
	switch s {
	case StateFailedNotFound, StateFailedRead, StateMatch, StateMismatch, StateNoExpectedDigest:
		return true
	}
	return false
}

func stateFor(outcome history.Outcome) State {
	switch outcome {
	case history.OutcomeMatch:
		return StateMatch
	case history.OutcomeMismatch:
		return StateMismatch
	case history.OutcomeNoExpectedDigest:
		return StateNoExpectedDigest
	case history.OutcomeNotFound:
		return StateFailedNotFound
	}
	return StateFailedRead
}

// Runner checks one object end to end: it opens the content stream,
// computes the digest, classifies the result, appends a record to the
// history store and updates the state index.
//
// Every call that is not cancelled by its caller writes exactly one
// record, whatever the outcome. A process that dies before the append
// leaves no record, so the object is still due on the next pass.
type Runner struct {
	History   HistoryStore
	Index     StateIndex
	Registry  ObjectRegistry
	Logger    *logging.Logger
	Algorithm string

	// Timeout bounds opening and reading the stream. A check that
	// runs out of time is recorded as READ_ERROR. Zero means no limit.
	Timeout time.Duration

	// Now returns the current time. Tests may replace it.
	Now func() time.Time
}

// NewRunner creates a new Runner.
func NewRunner(store HistoryStore, index StateIndex, registry ObjectRegistry, logger *logging.Logger, alg string, timeout time.Duration) *Runner {
	return &Runner{
		History:   store,
		Index:     index,
		Registry:  registry,
		Logger:    logger,
		Algorithm: alg,
		Timeout:   timeout,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run checks objectID and returns the record it wrote.
//
// Outcomes such as MISMATCH and NOT_FOUND are data, not errors. Run
// returns an error in two cases only: ctx was cancelled before the
// record was appended (no record exists), or the append failed, in
// which case the error is a *PersistenceError.
func (r *Runner) Run(ctx context.Context, objectID string) (*history.CheckRecord, error) {
	record := &history.CheckRecord{
		ID:        history.NewRecordID(),
		ObjectID:  objectID,
		StartedAt: r.Now(),
		Algorithm: r.Algorithm,
	}
	r.transition(objectID, StatePending, StateOpeningStream)

	checkCtx, cancel := r.checkContext(ctx)
	defer cancel()
	r.check(checkCtx, record)

	if ctx.Err() != nil {
		r.Logger.Infof("Check of %s cancelled before it was recorded: %v", objectID, ctx.Err())
		return nil, ctx.Err()
	}

	record.EndedAt = r.Now()
	if record.EndedAt.Before(record.StartedAt) {
		// The wall clock stepped backward during the check.
		record.EndedAt = record.StartedAt
	}
	return r.save(ctx, record)
}

func (r *Runner) checkContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.Timeout > 0 {
		return context.WithTimeout(ctx, r.Timeout)
	}
	return context.WithCancel(ctx)
}

// check fills in the digests and outcome of record.
func (r *Runner) check(ctx context.Context, record *history.CheckRecord) {
	objectID := record.ObjectID
	record.ComputedDigest = constants.EmptyDigest

	expected, ok, err := r.Registry.ExpectedDigest(ctx, objectID, r.Algorithm)
	if err != nil {
		r.failOpen(ctx, record, err)
		return
	}
	if ok {
		record.ExpectedDigest = NormalizeDigest(expected)
	}

	stream, err := r.Registry.OpenContentStream(ctx, objectID)
	if err != nil {
		r.failOpen(ctx, record, err)
		return
	}

	// Closing the stream when the check times out unblocks a Read
	// that is waiting on the network.
	closer := &onceCloser{rc: stream}
	stop := context.AfterFunc(ctx, func() { closer.Close() })
	defer func() {
		stop()
		closer.Close()
	}()

	r.transition(objectID, StateOpeningStream, StateComputing)
	computed, bytesRead, err := ComputeDigest(stream, r.Algorithm)
	record.BytesRead = bytesRead
	if err != nil {
		var readErr *ReadError
		if errors.As(err, &readErr) {
			readErr.ObjectID = objectID
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			r.Logger.Warningf("Check of %s timed out after %s and %d bytes", objectID, r.Timeout, bytesRead)
		} else if readErr != nil {
			r.Logger.Warning(readErr.Detail())
		} else {
			r.Logger.Warningf("Cannot compute %s digest of %s: %v", r.Algorithm, objectID, err)
		}
		record.Outcome = Classify(record.ExpectedDigest, constants.EmptyDigest, false)
		r.transition(objectID, StateComputing, StateFailedRead)
		return
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		// The stream was closed under the digest, so computed
		// covers only part of the object.
		r.Logger.Warningf("Check of %s timed out after %s and %d bytes", objectID, r.Timeout, bytesRead)
		record.Outcome = Classify(record.ExpectedDigest, constants.EmptyDigest, false)
		r.transition(objectID, StateComputing, StateFailedRead)
		return
	}

	record.ComputedDigest = computed
	record.Outcome = Classify(record.ExpectedDigest, computed, true)
	r.transition(objectID, StateComputing, stateFor(record.Outcome))
}

// failOpen classifies a failure that happened before any bytes were
// read. A missing object is NOT_FOUND. Anything else, including a
// timeout, is READ_ERROR so that the attempt is still on record.
func (r *Runner) failOpen(ctx context.Context, record *history.CheckRecord, err error) {
	if IsNotFound(err) {
		r.Logger.Warningf("Object %s not found: %v", record.ObjectID, err)
		record.Outcome = history.OutcomeNotFound
		r.transition(record.ObjectID, StateOpeningStream, StateFailedNotFound)
		return
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		r.Logger.Warningf("Timed out opening %s after %s", record.ObjectID, r.Timeout)
	} else {
		r.Logger.Warningf("Cannot open %s: %v", record.ObjectID, err)
	}
	record.Outcome = history.OutcomeReadError
	r.transition(record.ObjectID, StateOpeningStream, StateFailedRead)
}

func (r *Runner) save(ctx context.Context, record *history.CheckRecord) (*history.CheckRecord, error) {
	err := r.History.Append(ctx, record)
	if err != nil {
		if ctx.Err() != nil {
			r.Logger.Infof("Check of %s cancelled while saving: %v", record.ObjectID, ctx.Err())
			return nil, ctx.Err()
		}
		var persistErr *PersistenceError
		if !errors.As(err, &persistErr) {
			persistErr = &PersistenceError{Op: "append", ObjectID: record.ObjectID, Err: err}
		}
		persistenceFailuresTotal.Inc()
		r.Logger.Error(persistErr.Detail())
		return nil, persistErr
	}

	checksTotal.WithLabelValues(record.Outcome.String()).Inc()
	checkDurationSeconds.Observe(record.Duration().Seconds())
	r.logOutcome(record)

	// The record is durable, so the index update goes ahead even if
	// the caller is shutting down. If it fails, RebuildFrom repairs it.
	err = r.Index.Upsert(context.WithoutCancel(ctx), record.ObjectID, record)
	if err != nil {
		r.Logger.Warningf("Record %s for %s is saved but the state index was not updated: %v",
			record.ID, record.ObjectID, err)
	}
	return record, nil
}

func (r *Runner) logOutcome(record *history.CheckRecord) {
	switch record.Outcome {
	case history.OutcomeMatch:
		r.Logger.Infof("Fixity matches for %s: %s:%s (%d bytes)",
			record.ObjectID, record.Algorithm, record.ComputedDigest, record.BytesRead)
	case history.OutcomeMismatch:
		r.Logger.Errorf("Fixity did not match for %s. Expected %s:%s, got %s:%s. Record %s",
			record.ObjectID, record.Algorithm, record.ExpectedDigest,
			record.Algorithm, record.ComputedDigest, record.ID)
	case history.OutcomeNoExpectedDigest:
		r.Logger.Noticef("No expected %s digest for %s. Recorded %s as baseline candidate",
			record.Algorithm, record.ObjectID, record.ComputedDigest)
	default:
		r.Logger.Warningf("Fixity check of %s ended with %s. Record %s",
			record.ObjectID, record.Outcome, record.ID)
	}
}

func (r *Runner) transition(objectID string, from, to State) {
	r.Logger.Debugf("%s: %s -> %s", objectID, from, to)
}

// onceCloser lets the timeout and the normal exit path both close
// the stream.
type onceCloser struct {
	rc   io.ReadCloser
	once sync.Once
}

func (c *onceCloser) Close() {
	c.once.Do(func() { c.rc.Close() })
}
