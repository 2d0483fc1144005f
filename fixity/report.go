package fixity

import (
	"context"
	"sort"
	"time"

	"github.com/APTrust/preservation-fixity/models/history"
)

// Reporter answers the questions operators ask about fixity: what
// failed, what happened to one object, and how far behind the
// checks are. It only reads.
type Reporter struct {
	History   HistoryStore
	Scheduler *Scheduler
	Policy    Policy
}

func NewReporter(store HistoryStore, scheduler *Scheduler, policy Policy) *Reporter {
	return &Reporter{
		History:   store,
		Scheduler: scheduler,
		Policy:    policy,
	}
}

// MismatchesSince returns every MISMATCH record that started at or
// after since, oldest first.
func (r *Reporter) MismatchesSince(ctx context.Context, since time.Time) ([]*history.CheckRecord, error) {
	return r.History.ListByOutcomeSince(ctx, history.OutcomeMismatch, since)
}

// FailuresSince returns MISMATCH, NOT_FOUND and READ_ERROR records
// that started at or after since, most severe first, then oldest first.
func (r *Reporter) FailuresSince(ctx context.Context, since time.Time) ([]*history.CheckRecord, error) {
	failures := make([]*history.CheckRecord, 0)
	for _, outcome := range history.Outcomes {
		if !outcome.IsFailure() {
			continue
		}
		records, err := r.History.ListByOutcomeSince(ctx, outcome, since)
		if err != nil {
			return nil, err
		}
		failures = append(failures, records...)
	}
	sort.SliceStable(failures, func(i, j int) bool {
		si, sj := failures[i].Outcome.Severity(), failures[j].Outcome.Severity()
		if si != sj {
			return si > sj
		}
		return failures[j].After(failures[i])
	})
	return failures, nil
}

// HistoryFor returns the full audit history of one object within tr,
// oldest first.
func (r *Reporter) HistoryFor(ctx context.Context, objectID string, tr history.TimeRange) ([]*history.CheckRecord, error) {
	records := make([]*history.CheckRecord, 0)
	for record, err := range r.History.QueryByObject(ctx, objectID, tr) {
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// BacklogSize returns the number of objects due for a check now.
func (r *Reporter) BacklogSize(ctx context.Context) (int64, error) {
	return r.Scheduler.Backlog(ctx, r.Policy)
}
