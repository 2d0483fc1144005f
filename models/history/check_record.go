package history

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CheckRecord is one entry in the append-only fixity history. A record
// is created only after a check attempt concludes, and is never
// changed or removed after it has been written.
type CheckRecord struct {
	ID             string    `json:"id"`
	ObjectID       string    `json:"object_id"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
	Algorithm      string    `json:"algorithm"`
	ExpectedDigest string    `json:"expected_digest"`
	ComputedDigest string    `json:"computed_digest"`
	BytesRead      int64     `json:"bytes_read"`
	Outcome        Outcome   `json:"outcome"`
}

// NewRecordID returns a new opaque record identifier. IDs are UUIDv7,
// so they sort in creation order, which makes them a usable tie-break
// for records that share a start time.
func NewRecordID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 fails only if the random source fails.
		return uuid.NewString()
	}
	return id.String()
}

// Validate returns an error describing the first problem found with
// this record, or nil if the record may be persisted.
func (r *CheckRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("check record has no id")
	}
	if r.ObjectID == "" {
		return fmt.Errorf("check record %s has no object id", r.ID)
	}
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return fmt.Errorf("check record %s is missing start or end time", r.ID)
	}
	if r.EndedAt.Before(r.StartedAt) {
		return fmt.Errorf("check record %s ends (%s) before it starts (%s)",
			r.ID, r.EndedAt.Format(time.RFC3339Nano), r.StartedAt.Format(time.RFC3339Nano))
	}
	if !r.Outcome.Valid() {
		return fmt.Errorf("check record %s has invalid outcome %q", r.ID, r.Outcome)
	}
	if (r.Outcome == OutcomeMatch || r.Outcome == OutcomeMismatch) && r.ExpectedDigest == "" {
		return fmt.Errorf("check record %s has outcome %s but no expected digest", r.ID, r.Outcome)
	}
	return nil
}

// After returns true if r comes after other in the per-object order:
// later StartedAt, with the record id breaking ties.
func (r *CheckRecord) After(other *CheckRecord) bool {
	if other == nil {
		return true
	}
	if !r.StartedAt.Equal(other.StartedAt) {
		return r.StartedAt.After(other.StartedAt)
	}
	return r.ID > other.ID
}

func (r *CheckRecord) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}
