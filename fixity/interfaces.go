package fixity

import (
	"context"
	"io"
	"iter"
	"time"

	"github.com/APTrust/preservation-fixity/models/history"
)

// HistoryStore is the append-only log of check records. It has no
// update or delete operations. Implementations must accept
// concurrent writers, and Append must not return until the record
// is durable.
type HistoryStore interface {
	// Append persists a fully formed record. It returns a
	// *PersistenceError if the record may not be durable.
	Append(ctx context.Context, record *history.CheckRecord) error

	// QueryByObject yields the object's records with StartedAt in
	// tr, oldest first. Each range over the sequence runs the query
	// again.
	QueryByObject(ctx context.Context, objectID string, tr history.TimeRange) iter.Seq2[*history.CheckRecord, error]

	// MostRecentFor returns the object's latest record, or nil if
	// the object has never been checked.
	MostRecentFor(ctx context.Context, objectID string) (*history.CheckRecord, error)

	// ListByOutcomeSince returns records with the given outcome
	// that started at or after since, oldest first.
	ListByOutcomeSince(ctx context.Context, outcome history.Outcome, since time.Time) ([]*history.CheckRecord, error)

	// Scan calls fn for every record in (StartedAt, ID) order.
	Scan(ctx context.Context, fn func(*history.CheckRecord) error) error
}

// StateIndex is the per-object projection of the most recent check,
// used to decide what is due.
type StateIndex interface {
	// Register adds objects the index has not seen. New objects
	// have no check and are always due.
	Register(ctx context.Context, objectIDs ...string) error

	// Upsert applies record if it is newer than the state already
	// held for objectID. Applying the same record twice is a no-op.
	Upsert(ctx context.Context, objectID string, record *history.CheckRecord) error

	// Get returns the current state of objectID, or nil if it has
	// never been checked.
	Get(ctx context.Context, objectID string) (*history.CurrentState, error)

	// DueBefore returns up to limit objects last checked before
	// cutoff. Never-checked objects come first, then the oldest
	// LastCheckedAt, then object ID ascending. Limit <= 0 means
	// no limit.
	DueBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error)

	// CountDueBefore returns the number of objects DueBefore
	// would return with no limit.
	CountDueBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// RebuildFrom replays the history store into the index and
	// returns the number of records that changed an object's
	// state. It also restores due-set entries for objects whose
	// state survived.
	RebuildFrom(ctx context.Context, store HistoryStore) (int, error)
}

// ObjectRegistry resolves object identifiers to content and expected
// digests. Both methods return a *NotFoundError when the object does
// not exist.
type ObjectRegistry interface {
	OpenContentStream(ctx context.Context, objectID string) (io.ReadCloser, error)

	// ExpectedDigest returns the last known-good digest of objectID
	// for algorithm alg. Param ok is false when the registry has no
	// such digest.
	ExpectedDigest(ctx context.Context, objectID, alg string) (digest string, ok bool, err error)
}

// Catalog enumerates the objects that should be checked.
type Catalog interface {
	ForEachObject(ctx context.Context, fn func(objectID string) error) error
}
