package fixity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/APTrust/preservation-fixity/fixity"
	"github.com/APTrust/preservation-fixity/models/history"
	"github.com/APTrust/preservation-fixity/util/logger"
	"github.com/APTrust/preservation-fixity/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var schedulerNow = time.Date(2026, 6, 16, 8, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func newScheduler(env *testEnv) *fixity.Scheduler {
	scheduler := fixity.NewScheduler(env.Index, logger.DiscardLogger("fixity_test"))
	scheduler.Now = func() time.Time { return schedulerNow }
	return scheduler
}

// checkedAt records a MATCH for objectID that ended at endedAt.
func checkedAt(t *testing.T, env *testEnv, objectID string, endedAt time.Time) {
	record := testutil.GetCheckRecord(objectID, history.OutcomeMatch, endedAt.Add(-time.Second))
	record.EndedAt = endedAt
	require.Nil(t, env.Index.Upsert(context.Background(), objectID, record))
}

func weekly(batchSize int) fixity.Policy {
	return fixity.Policy{CheckIntervalMinimum: 7 * day, BatchSize: batchSize}
}

// A was never checked, B was checked ten days ago and C yesterday.
// With a seven day interval, A and B are due, A first, and C is not.
func TestSelectBatchFairness(t *testing.T) {
	env := newTestEnv(t)
	scheduler := newScheduler(env)
	ctx := context.Background()
	require.Nil(t, env.Index.Register(ctx, "A", "B", "C"))
	checkedAt(t, env, "C", schedulerNow.Add(-1*day))
	checkedAt(t, env, "B", schedulerNow.Add(-10*day))

	due, err := env.Index.DueBefore(ctx, schedulerNow.Add(-7*day), 0)
	require.Nil(t, err)
	assert.Equal(t, []string{"A", "B"}, due)

	batch, err := scheduler.SelectBatch(ctx, weekly(10))
	require.Nil(t, err)
	assert.Equal(t, []string{"A", "B"}, batch)
}

// B and D were checked at the same time, so the object id decides.
func TestSelectBatchTieBreak(t *testing.T) {
	env := newTestEnv(t)
	scheduler := newScheduler(env)
	checkedAt(t, env, "D", schedulerNow.Add(-10*day))
	checkedAt(t, env, "B", schedulerNow.Add(-10*day))

	batch, err := scheduler.SelectBatch(context.Background(), weekly(10))
	require.Nil(t, err)
	assert.Equal(t, []string{"B", "D"}, batch)
}

func TestSelectBatchOrder(t *testing.T) {
	env := newTestEnv(t)
	scheduler := newScheduler(env)
	ctx := context.Background()
	checkedAt(t, env, "recent-due", schedulerNow.Add(-8*day))
	checkedAt(t, env, "old", schedulerNow.Add(-30*day))
	require.Nil(t, env.Index.Register(ctx, "never-b", "never-a", "old"))

	batch, err := scheduler.SelectBatch(ctx, weekly(10))
	require.Nil(t, err)
	assert.Equal(t, []string{"never-a", "never-b", "old", "recent-due"}, batch)

	batch, err = scheduler.SelectBatch(ctx, weekly(3))
	require.Nil(t, err)
	assert.Equal(t, []string{"never-a", "never-b", "old"}, batch)
}

func TestSelectBatchPriorityObjects(t *testing.T) {
	env := newTestEnv(t)
	scheduler := newScheduler(env)
	ctx := context.Background()
	checkedAt(t, env, "fresh", schedulerNow.Add(-time.Hour))
	require.Nil(t, env.Index.Register(ctx, "never"))

	policy := weekly(2)
	policy.PriorityObjects = []string{"fresh", "fresh", "never"}
	batch, err := scheduler.SelectBatch(ctx, policy)
	require.Nil(t, err)
	assert.Equal(t, []string{"fresh", "never"}, batch)

	policy.BatchSize = 1
	batch, err = scheduler.SelectBatch(ctx, policy)
	require.Nil(t, err)
	assert.Equal(t, []string{"fresh"}, batch)
}

func TestSelectBatchSkipsInFlight(t *testing.T) {
	env := newTestEnv(t)
	scheduler := newScheduler(env)
	ctx := context.Background()
	ids := testutil.ObjectIDs(4)
	require.Nil(t, env.Index.Register(ctx, ids...))

	claimed := scheduler.Claim(ids[:2])
	assert.Equal(t, ids[:2], claimed)
	assert.Empty(t, scheduler.Claim(ids[:1]))

	batch, err := scheduler.SelectBatch(ctx, weekly(2))
	require.Nil(t, err)
	assert.Equal(t, ids[2:], batch)

	scheduler.Release(ids[0])
	batch, err = scheduler.SelectBatch(ctx, weekly(10))
	require.Nil(t, err)
	assert.Equal(t, []string{ids[0], ids[2], ids[3]}, batch)

	scheduler.Shutdown()
	assert.Equal(t, 0, scheduler.InFlight.Len())
}

// A check that was dispatched but never recorded leaves the object
// due. After a restart the in-flight set is empty, so it is selected
// again.
func TestSelectBatchAfterCrash(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.Nil(t, env.Index.Register(ctx, "X"))

	before := newScheduler(env)
	batch, err := before.SelectBatch(ctx, weekly(10))
	require.Nil(t, err)
	require.Equal(t, []string{"X"}, before.Claim(batch))

	after := newScheduler(env)
	batch, err = after.SelectBatch(ctx, weekly(10))
	require.Nil(t, err)
	assert.Equal(t, []string{"X"}, batch)
}

// The first attempt dies after the stream is open and before the
// digest is done. The retry from the next pass is the only record.
func TestSelectBatchRetriesAbortedCheck(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.Nil(t, env.Index.Register(ctx, "X"))
	env.Registry.Put("X", &testutil.FakeObject{
		Content:  testutil.Content,
		Expected: testutil.ContentSha256,
		Block:    true,
	})

	first := newScheduler(env)
	batch, err := first.SelectBatch(ctx, weekly(10))
	require.Nil(t, err)
	require.Equal(t, []string{"X"}, first.Claim(batch))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		_, err := env.Runner.Run(runCtx, "X")
		done <- err
	}()
	require.Eventually(t, func() bool {
		return env.Registry.OpenStreams() == 1
	}, 5*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.EqualValues(t, 0, env.count(t))

	// Restart: a new scheduler, and the object now reads normally.
	env.putGood("X")
	second := newScheduler(env)
	batch, err = second.SelectBatch(ctx, weekly(10))
	require.Nil(t, err)
	require.Equal(t, []string{"X"}, second.Claim(batch))
	record, err := env.Runner.Run(ctx, "X")
	require.Nil(t, err)
	second.Release("X")
	assert.Equal(t, history.OutcomeMatch, record.Outcome)
	assert.EqualValues(t, 1, env.count(t))

	records, err := env.Store.ListByOutcomeSince(ctx, history.OutcomeMatch, testutil.Bloomsday)
	require.Nil(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.ID, records[0].ID)
}

func TestSelectBatchRejectsBadPolicy(t *testing.T) {
	env := newTestEnv(t)
	scheduler := newScheduler(env)
	_, err := scheduler.SelectBatch(context.Background(), fixity.Policy{BatchSize: 0})
	assert.NotNil(t, err)
	_, err = scheduler.SelectBatch(context.Background(), fixity.Policy{BatchSize: 1, CheckIntervalMinimum: -time.Hour})
	assert.NotNil(t, err)
}

func TestSelectBatchIndexUnavailable(t *testing.T) {
	env := newTestEnv(t)
	scheduler := newScheduler(env)
	env.Redis.Close()
	_, err := scheduler.SelectBatch(context.Background(), weekly(10))
	assert.NotNil(t, err)
}

func TestBacklog(t *testing.T) {
	env := newTestEnv(t)
	scheduler := newScheduler(env)
	ctx := context.Background()
	checkedAt(t, env, "due", schedulerNow.Add(-8*day))
	checkedAt(t, env, "not-due", schedulerNow.Add(-6*day))
	require.Nil(t, env.Index.Register(ctx, "never"))

	backlog, err := scheduler.Backlog(ctx, weekly(1))
	require.Nil(t, err)
	assert.EqualValues(t, 2, backlog)
}

func TestSyncCatalog(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ids := testutil.ObjectIDs(1203)
	for _, id := range ids {
		env.Registry.Put(id, &testutil.FakeObject{Content: "x"})
	}
	checkedAt(t, env, ids[0], schedulerNow.Add(-time.Hour))

	count, err := fixity.SyncCatalog(ctx, env.Registry, env.Index)
	require.Nil(t, err)
	assert.Equal(t, 1203, count)

	// Registering does not reset the object that was already checked.
	due, err := env.Index.DueBefore(ctx, schedulerNow.Add(-day), 0)
	require.Nil(t, err)
	assert.Len(t, due, 1202)
	assert.Equal(t, ids[1:], due)

	// Syncing again changes nothing.
	count, err = fixity.SyncCatalog(ctx, env.Registry, env.Index)
	require.Nil(t, err)
	assert.Equal(t, 1203, count)
	total, err := env.Index.CountDueBefore(ctx, schedulerNow.Add(-day))
	require.Nil(t, err)
	assert.EqualValues(t, 1202, total)
}

type brokenCatalog struct{}

func (brokenCatalog) ForEachObject(ctx context.Context, fn func(string) error) error {
	if err := fn("first"); err != nil {
		return err
	}
	return errors.New("listing failed")
}

func TestSyncCatalogError(t *testing.T) {
	env := newTestEnv(t)
	count, err := fixity.SyncCatalog(context.Background(), brokenCatalog{}, env.Index)
	assert.NotNil(t, err)
	assert.Equal(t, 1, count)
}
