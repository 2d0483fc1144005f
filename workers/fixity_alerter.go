package workers

import (
	"context"
	"time"

	"github.com/APTrust/preservation-fixity/fixity"
	"github.com/APTrust/preservation-fixity/models/common"
	"github.com/APTrust/preservation-fixity/models/history"
)

// FixityAlerter reports failed fixity checks from the history store.
// It should run once a day, with Since set to the same interval.
type FixityAlerter struct {
	Context  *common.Context
	Reporter *fixity.Reporter

	// Since is how far back to look for failed checks.
	Since time.Duration

	// Now returns the current time. Tests may replace it.
	Now func() time.Time
}

// AlertSummary counts what the alerter found.
type AlertSummary struct {
	Mismatches int
	Failures   int
	Backlog    int64
}

// NewFixityAlerter returns a new fixity alerter looking back over
// since.
func NewFixityAlerter(_context *common.Context, since time.Duration) *FixityAlerter {
	return &FixityAlerter{
		Context:  _context,
		Reporter: fixity.NewReporter(_context.History, _context.NewScheduler(), _context.Config.Policy()),
		Since:    since,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run logs every mismatch and every NOT_FOUND or READ_ERROR recorded
// in the window, and the number of objects due now. The caller should
// exit non-zero when the summary shows mismatches.
//
// Note that unlike other workers that run forever (or until killed),
// this one runs once and then exits.
func (a *FixityAlerter) Run(ctx context.Context) (*AlertSummary, error) {
	a.Context.Logger.Info("Starting with config settings:")
	configJSON, _ := a.Context.Config.ToJSON()
	a.Context.Logger.Info(configJSON)

	since := a.Now().Add(-a.Since)
	summary := &AlertSummary{}
	a.Context.Logger.Infof("Looking for failed fixity checks since %s", since.Format(time.RFC3339))

	mismatches, err := a.Reporter.MismatchesSince(ctx, since)
	if err != nil {
		return nil, err
	}
	summary.Mismatches = len(mismatches)
	for _, record := range mismatches {
		a.Context.Logger.Errorf("MISMATCH %s at %s: expected %s:%s, got %s:%s (record %s)",
			record.ObjectID, record.StartedAt.Format(time.RFC3339), record.Algorithm,
			record.ExpectedDigest, record.Algorithm, record.ComputedDigest, record.ID)
	}

	failures, err := a.Reporter.FailuresSince(ctx, since)
	if err != nil {
		return nil, err
	}
	for _, record := range failures {
		if record.Outcome == history.OutcomeMismatch {
			continue
		}
		summary.Failures++
		a.Context.Logger.Warningf("%s %s at %s (record %s)",
			record.Outcome, record.ObjectID, record.StartedAt.Format(time.RFC3339), record.ID)
	}

	summary.Backlog, err = a.Reporter.BacklogSize(ctx)
	if err != nil {
		// The history is the record of truth. A missing backlog
		// count should not hide the alerts above.
		a.Context.Logger.Warningf("Cannot count backlog: %v", err)
		summary.Backlog = -1
	} else {
		fixity.BacklogObjects.Set(float64(summary.Backlog))
	}

	if summary.Mismatches > 0 {
		a.Context.Logger.Errorf("History shows %d fixity mismatches and %d other failed checks.",
			summary.Mismatches, summary.Failures)
	} else {
		a.Context.Logger.Infof("No fixity mismatches. %d other failed checks.", summary.Failures)
	}
	a.Context.Logger.Infof("%d objects are due for a check", summary.Backlog)
	return summary, nil
}
