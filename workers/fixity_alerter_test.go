package workers_test

import (
	"context"
	"testing"
	"time"

	"github.com/APTrust/preservation-fixity/models/history"
	"github.com/APTrust/preservation-fixity/util/testutil"
	"github.com/APTrust/preservation-fixity/workers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alerterNow = time.Date(2026, 6, 16, 8, 0, 0, 0, time.UTC)

func newFixityAlerter(env *workerEnv) *workers.FixityAlerter {
	alerter := workers.NewFixityAlerter(env.Context, 24*time.Hour)
	alerter.Now = func() time.Time { return alerterNow }
	alerter.Reporter.Scheduler.Now = alerter.Now
	return alerter
}

func TestFixityAlerter(t *testing.T) {
	env := newWorkerEnv(t)
	ctx := context.Background()
	records := []*history.CheckRecord{
		testutil.GetCheckRecord("last-week", history.OutcomeMismatch, alerterNow.Add(-7*24*time.Hour)),
		testutil.GetCheckRecord("mismatch", history.OutcomeMismatch, alerterNow.Add(-time.Hour)),
		testutil.GetCheckRecord("missing", history.OutcomeNotFound, alerterNow.Add(-2*time.Hour)),
		testutil.GetCheckRecord("unreadable", history.OutcomeReadError, alerterNow.Add(-3*time.Hour)),
		testutil.GetCheckRecord("good", history.OutcomeMatch, alerterNow.Add(-time.Hour)),
	}
	for _, record := range records {
		require.Nil(t, env.Context.History.Append(ctx, record))
		require.Nil(t, env.Context.RedisClient.Upsert(ctx, record.ObjectID, record))
	}
	require.Nil(t, env.Context.RedisClient.Register(ctx, "never-checked"))

	summary, err := newFixityAlerter(env).Run(ctx)
	require.Nil(t, err)
	assert.Equal(t, 1, summary.Mismatches)
	assert.Equal(t, 2, summary.Failures)
	assert.EqualValues(t, 1, summary.Backlog)
}

func TestFixityAlerterNothingFound(t *testing.T) {
	env := newWorkerEnv(t)
	summary, err := newFixityAlerter(env).Run(context.Background())
	require.Nil(t, err)
	assert.Equal(t, 0, summary.Mismatches)
	assert.Equal(t, 0, summary.Failures)
	assert.EqualValues(t, 0, summary.Backlog)
}

// Losing Redis does not hide what the history shows.
func TestFixityAlerterIndexDown(t *testing.T) {
	env := newWorkerEnv(t)
	ctx := context.Background()
	record := testutil.GetCheckRecord("mismatch", history.OutcomeMismatch, alerterNow.Add(-time.Hour))
	require.Nil(t, env.Context.History.Append(ctx, record))
	env.Redis.Close()

	summary, err := newFixityAlerter(env).Run(ctx)
	require.Nil(t, err)
	assert.Equal(t, 1, summary.Mismatches)
	assert.EqualValues(t, -1, summary.Backlog)
}

func TestFixityAlerterHistoryDown(t *testing.T) {
	env := newWorkerEnv(t)
	require.Nil(t, env.Context.History.Close())
	_, err := newFixityAlerter(env).Run(context.Background())
	assert.NotNil(t, err)
}
