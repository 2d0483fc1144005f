package storage_test

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/APTrust/preservation-fixity/fixity"
	"github.com/APTrust/preservation-fixity/models/history"
	"github.com/APTrust/preservation-fixity/storage"
	"github.com/APTrust/preservation-fixity/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *storage.HistoryStore {
	t.Helper()
	store, err := storage.OpenHistoryStore(filepath.Join(t.TempDir(), "history.db"))
	require.Nil(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenHistoryStoreTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := storage.OpenHistoryStore(path)
	require.Nil(t, err)
	record := testutil.GetCheckRecord(testutil.ObjIdentifier, history.OutcomeMatch, testutil.Bloomsday)
	require.Nil(t, store.Append(context.Background(), record))
	require.Nil(t, store.Close())

	// Reopening applies the schema again without losing data.
	store, err = storage.OpenHistoryStore(path)
	require.Nil(t, err)
	defer store.Close()
	assert.Equal(t, path, store.Path())
	latest, err := store.MostRecentFor(context.Background(), testutil.ObjIdentifier)
	require.Nil(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, record.ID, latest.ID)
}

func TestAppendAndMostRecentFor(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	latest, err := store.MostRecentFor(ctx, testutil.ObjIdentifier)
	require.Nil(t, err)
	assert.Nil(t, latest)

	first := testutil.GetCheckRecord(testutil.ObjIdentifier, history.OutcomeMatch, testutil.Bloomsday)
	second := testutil.GetCheckRecord(testutil.ObjIdentifier, history.OutcomeMismatch, testutil.Bloomsday.Add(time.Hour))
	require.Nil(t, store.Append(ctx, second))
	require.Nil(t, store.Append(ctx, first))

	latest, err = store.MostRecentFor(ctx, testutil.ObjIdentifier)
	require.Nil(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, history.OutcomeMismatch, latest.Outcome)
	assert.True(t, second.StartedAt.Equal(latest.StartedAt))
	assert.True(t, second.EndedAt.Equal(latest.EndedAt))
	assert.Equal(t, second.ExpectedDigest, latest.ExpectedDigest)
	assert.Equal(t, second.ComputedDigest, latest.ComputedDigest)
	assert.Equal(t, second.BytesRead, latest.BytesRead)
	assert.Equal(t, second.Algorithm, latest.Algorithm)

	count, err := store.Count(ctx)
	require.Nil(t, err)
	assert.EqualValues(t, 2, count)
}

func TestMostRecentForTieBreak(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	a := testutil.GetCheckRecord(testutil.ObjIdentifier, history.OutcomeMatch, testutil.Bloomsday)
	b := testutil.GetCheckRecord(testutil.ObjIdentifier, history.OutcomeMismatch, testutil.Bloomsday)
	a.ID = "00000000-0000-7000-8000-00000000000a"
	b.ID = "00000000-0000-7000-8000-00000000000b"
	require.Nil(t, store.Append(ctx, b))
	require.Nil(t, store.Append(ctx, a))

	latest, err := store.MostRecentFor(ctx, testutil.ObjIdentifier)
	require.Nil(t, err)
	assert.Equal(t, b.ID, latest.ID)
}

func TestAppendRejectsInvalidRecord(t *testing.T) {
	store := openStore(t)
	record := testutil.GetCheckRecord(testutil.ObjIdentifier, history.OutcomeMatch, testutil.Bloomsday)
	record.EndedAt = record.StartedAt.Add(-time.Second)
	err := store.Append(context.Background(), record)
	require.NotNil(t, err)
	assert.True(t, fixity.IsPersistenceError(err))

	count, err := store.Count(context.Background())
	require.Nil(t, err)
	assert.EqualValues(t, 0, count)
}

func TestAppendDuplicateID(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	record := testutil.GetCheckRecord(testutil.ObjIdentifier, history.OutcomeMatch, testutil.Bloomsday)
	require.Nil(t, store.Append(ctx, record))

	// A second insert with the same id cannot overwrite the first.
	dupe := *record
	dupe.Outcome = history.OutcomeMismatch
	dupe.ComputedDigest = "bad"
	err := store.Append(ctx, &dupe)
	require.NotNil(t, err)
	assert.True(t, fixity.IsPersistenceError(err))

	latest, err := store.MostRecentFor(ctx, testutil.ObjIdentifier)
	require.Nil(t, err)
	assert.Equal(t, history.OutcomeMatch, latest.Outcome)
}

func TestQueryByObject(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		startedAt := testutil.Bloomsday.Add(time.Duration(i) * time.Hour)
		require.Nil(t, store.Append(ctx, testutil.GetCheckRecord(testutil.ObjIdentifier, history.OutcomeMatch, startedAt)))
		require.Nil(t, store.Append(ctx, testutil.GetCheckRecord("other", history.OutcomeMatch, startedAt)))
	}

	collect := func(tr history.TimeRange) []*history.CheckRecord {
		records := make([]*history.CheckRecord, 0)
		for record, err := range store.QueryByObject(ctx, testutil.ObjIdentifier, tr) {
			require.Nil(t, err)
			records = append(records, record)
		}
		return records
	}

	all := collect(history.AllTime)
	require.Len(t, all, 5)
	for i, record := range all {
		assert.Equal(t, testutil.ObjIdentifier, record.ObjectID)
		assert.True(t, testutil.Bloomsday.Add(time.Duration(i)*time.Hour).Equal(record.StartedAt))
	}

	// From is inclusive, To is exclusive.
	window := collect(history.TimeRange{
		From: testutil.Bloomsday.Add(time.Hour),
		To:   testutil.Bloomsday.Add(3 * time.Hour),
	})
	require.Len(t, window, 2)
	assert.Equal(t, all[1].ID, window[0].ID)
	assert.Equal(t, all[2].ID, window[1].ID)

	assert.Empty(t, collect(history.TimeRange{From: testutil.Bloomsday.Add(24 * time.Hour)}))
}

func TestQueryByObjectIsRestartable(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		startedAt := testutil.Bloomsday.Add(time.Duration(i) * time.Minute)
		require.Nil(t, store.Append(ctx, testutil.GetCheckRecord(testutil.ObjIdentifier, history.OutcomeMatch, startedAt)))
	}
	seq := store.QueryByObject(ctx, testutil.ObjIdentifier, history.AllTime)

	// Stop early, then range again from the start.
	for record, err := range seq {
		require.Nil(t, err)
		require.NotNil(t, record)
		break
	}
	count := 0
	for _, err := range seq {
		require.Nil(t, err)
		count++
	}
	assert.Equal(t, 3, count)

	// The sequence sees records appended after it was created.
	require.Nil(t, store.Append(ctx, testutil.GetCheckRecord(testutil.ObjIdentifier, history.OutcomeMatch, testutil.Bloomsday.Add(time.Hour))))
	count = 0
	for _, err := range seq {
		require.Nil(t, err)
		count++
	}
	assert.Equal(t, 4, count)
}

func TestAppendWhileIterating(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	ids := testutil.ObjectIDs(3)
	for _, id := range ids {
		require.Nil(t, store.Append(ctx, testutil.GetCheckRecord(id, history.OutcomeMatch, testutil.Bloomsday)))
	}
	err := store.Scan(ctx, func(record *history.CheckRecord) error {
		next := testutil.GetCheckRecord(record.ObjectID, history.OutcomeMatch, time.Now())
		return store.Append(ctx, next)
	})
	require.Nil(t, err)
	count, err := store.Count(ctx)
	require.Nil(t, err)
	assert.True(t, count >= 6)
}

func TestListByOutcomeSince(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	old := testutil.GetCheckRecord("a", history.OutcomeMismatch, testutil.Bloomsday)
	recent := testutil.GetCheckRecord("b", history.OutcomeMismatch, testutil.Bloomsday.Add(48*time.Hour))
	match := testutil.GetCheckRecord("c", history.OutcomeMatch, testutil.Bloomsday.Add(48*time.Hour))
	for _, r := range []*history.CheckRecord{old, recent, match} {
		require.Nil(t, store.Append(ctx, r))
	}

	records, err := store.ListByOutcomeSince(ctx, history.OutcomeMismatch, testutil.Bloomsday.Add(24*time.Hour))
	require.Nil(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, recent.ID, records[0].ID)

	records, err = store.ListByOutcomeSince(ctx, history.OutcomeMismatch, time.Time{})
	require.Nil(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, old.ID, records[0].ID)

	records, err = store.ListByOutcomeSince(ctx, history.OutcomeNotFound, time.Time{})
	require.Nil(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestScanStopsOnError(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	for _, id := range testutil.ObjectIDs(4) {
		require.Nil(t, store.Append(ctx, testutil.GetCheckRecord(id, history.OutcomeMatch, testutil.Bloomsday)))
	}
	seen := 0
	stop := fmt.Errorf("stop")
	err := store.Scan(ctx, func(*history.CheckRecord) error {
		seen++
		if seen == 2 {
			return stop
		}
		return nil
	})
	assert.Equal(t, stop, err)
	assert.Equal(t, 2, seen)
}

func TestConcurrentAppend(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Same object, same start time: both records must land.
			errs <- store.Append(ctx, testutil.GetCheckRecord(testutil.ObjIdentifier, history.OutcomeMatch, testutil.Bloomsday))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.Nil(t, err)
	}
	count, err := store.Count(ctx)
	require.Nil(t, err)
	assert.EqualValues(t, 40, count)
}

func TestHistoryStoreIsAppendOnly(t *testing.T) {
	storeType := reflect.TypeOf(&storage.HistoryStore{})
	for i := 0; i < storeType.NumMethod(); i++ {
		name := strings.ToLower(storeType.Method(i).Name)
		assert.False(t, strings.Contains(name, "update"), storeType.Method(i).Name)
		assert.False(t, strings.Contains(name, "delete"), storeType.Method(i).Name)
		assert.False(t, strings.Contains(name, "remove"), storeType.Method(i).Name)
		assert.False(t, strings.Contains(name, "prune"), storeType.Method(i).Name)
	}
	ifaceType := reflect.TypeOf((*fixity.HistoryStore)(nil)).Elem()
	assert.Equal(t, 5, ifaceType.NumMethod())
}
