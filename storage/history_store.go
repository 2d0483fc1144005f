package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"iter"
	"net/url"
	"sync"
	"time"

	"github.com/APTrust/preservation-fixity/fixity"
	"github.com/APTrust/preservation-fixity/models/history"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial check_history table, indexes and append-only triggers
const currentSchemaVersion = 1

const selectColumns = `SELECT check_id, object_id, process_start_date, process_end_date,
	algorithm, checksum_expected, checksum_calculated, bytes_read, result
	FROM check_history`

var _ fixity.HistoryStore = (*HistoryStore)(nil)

// HistoryStore is the SQLite-backed, append-only fixity history.
//
// It exposes inserts and reads only. The table also carries triggers
// that abort any UPDATE or DELETE issued through another connection.
//
// The database runs in WAL mode with synchronous = FULL, so a record
// is on disk when Append returns. Writes are serialized in process;
// readers run concurrently with the writer.
type HistoryStore struct {
	db      *sql.DB
	path    string
	writeMu sync.Mutex
}

// OpenHistoryStore creates or opens the history database at path
// and applies the schema. It is safe to call on an existing database.
func OpenHistoryStore(path string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open history database %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to history database %s: %w", path, err)
	}

	// One writer at a time is enforced by writeMu. Extra connections
	// let readers iterate while a check is being appended.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &HistoryStore{db: db, path: path}, nil
}

// Close closes the database.
func (s *HistoryStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the path to the database file.
func (s *HistoryStore) Path() string {
	return s.path
}

// Append inserts record. It returns a *fixity.PersistenceError if the
// record is invalid or the insert fails; in either case nothing has
// been written.
func (s *HistoryStore) Append(ctx context.Context, record *history.CheckRecord) error {
	if err := record.Validate(); err != nil {
		return &fixity.PersistenceError{Op: "append", ObjectID: record.ObjectID, Err: err}
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO check_history (
			check_id, object_id, process_start_date, process_end_date,
			algorithm, checksum_expected, checksum_calculated, bytes_read, result
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.ObjectID,
		record.StartedAt.UnixNano(),
		record.EndedAt.UnixNano(),
		record.Algorithm,
		record.ExpectedDigest,
		record.ComputedDigest,
		record.BytesRead,
		record.Outcome.String(),
	)
	if err != nil {
		return &fixity.PersistenceError{Op: "append", ObjectID: record.ObjectID, Err: err}
	}
	return nil
}

// QueryByObject yields the records of objectID that started within
// tr, in (StartedAt, ID) order. The query runs when the sequence is
// ranged over, and again on every new range.
func (s *HistoryStore) QueryByObject(ctx context.Context, objectID string, tr history.TimeRange) iter.Seq2[*history.CheckRecord, error] {
	query := selectColumns + ` WHERE object_id = ?`
	args := []any{objectID}
	if !tr.From.IsZero() {
		query += ` AND process_start_date >= ?`
		args = append(args, tr.From.UnixNano())
	}
	if !tr.To.IsZero() {
		query += ` AND process_start_date < ?`
		args = append(args, tr.To.UnixNano())
	}
	query += ` ORDER BY process_start_date, check_id`
	return s.iterate(ctx, "query by object", objectID, query, args...)
}

// MostRecentFor returns the latest record of objectID, or nil if
// there is none.
func (s *HistoryStore) MostRecentFor(ctx context.Context, objectID string) (*history.CheckRecord, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+
		` WHERE object_id = ? ORDER BY process_start_date DESC, check_id DESC LIMIT 1`, objectID)
	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &fixity.PersistenceError{Op: "most recent", ObjectID: objectID, Err: err}
	}
	return record, nil
}

// ListByOutcomeSince returns records with outcome that started at or
// after since, oldest first.
func (s *HistoryStore) ListByOutcomeSince(ctx context.Context, outcome history.Outcome, since time.Time) ([]*history.CheckRecord, error) {
	records := make([]*history.CheckRecord, 0)
	seq := s.iterate(ctx, "list by outcome", "", selectColumns+
		` WHERE result = ? AND process_start_date >= ? ORDER BY process_start_date, check_id`,
		outcome.String(), since.UnixNano())
	for record, err := range seq {
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Scan calls fn for every record, oldest first. It stops at the first
// error fn returns and returns that error.
func (s *HistoryStore) Scan(ctx context.Context, fn func(*history.CheckRecord) error) error {
	seq := s.iterate(ctx, "scan", "", selectColumns+` ORDER BY process_start_date, check_id`)
	for record, err := range seq {
		if err != nil {
			return err
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the total number of records.
func (s *HistoryStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM check_history`).Scan(&count)
	if err != nil {
		return 0, &fixity.PersistenceError{Op: "count", Err: err}
	}
	return count, nil
}

func (s *HistoryStore) iterate(ctx context.Context, op, objectID, query string, args ...any) iter.Seq2[*history.CheckRecord, error] {
	return func(yield func(*history.CheckRecord, error) bool) {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(nil, &fixity.PersistenceError{Op: op, ObjectID: objectID, Err: err})
			return
		}
		defer rows.Close()
		for rows.Next() {
			record, err := scanRecord(rows)
			if err != nil {
				yield(nil, &fixity.PersistenceError{Op: op, ObjectID: objectID, Err: err})
				return
			}
			if !yield(record, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, &fixity.PersistenceError{Op: op, ObjectID: objectID, Err: err})
		}
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*history.CheckRecord, error) {
	var (
		record     history.CheckRecord
		startedAt  int64
		endedAt    int64
		outcomeStr string
	)
	err := row.Scan(
		&record.ID,
		&record.ObjectID,
		&startedAt,
		&endedAt,
		&record.Algorithm,
		&record.ExpectedDigest,
		&record.ComputedDigest,
		&record.BytesRead,
		&outcomeStr,
	)
	if err != nil {
		return nil, err
	}
	record.StartedAt = time.Unix(0, startedAt).UTC()
	record.EndedAt = time.Unix(0, endedAt).UTC()
	record.Outcome, err = history.ParseOutcome(outcomeStr)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// dataSourceName puts the pragmas in the DSN so that every pooled
// connection gets them, not just the first. FULL synchronous mode
// flushes the WAL on every commit.
func dataSourceName(path string) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_synchronous", "FULL")
	params.Set("_busy_timeout", "5000")
	params.Set("_foreign_keys", "on")
	return fmt.Sprintf("file:%s?%s", path, params.Encode())
}

func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("history database schema version %d is newer than supported version %d",
			version, currentSchemaVersion)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
