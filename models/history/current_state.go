package history

import "time"

// CurrentState is the scheduling projection of an object's history:
// what the most recent check was and when it happened. It is derived
// from CheckRecords and may be rebuilt from them at any time. It is
// never evidence of fixity in its own right.
type CurrentState struct {
	ObjectID      string    `json:"object_id"`
	LastCheckedAt time.Time `json:"last_checked_at"`
	LastStartedAt time.Time `json:"last_started_at"`
	LastOutcome   Outcome   `json:"last_outcome"`
	LastRecordID  string    `json:"last_record_id"`
}

// StateFromRecord returns the CurrentState that record implies.
func StateFromRecord(record *CheckRecord) *CurrentState {
	return &CurrentState{
		ObjectID:      record.ObjectID,
		LastCheckedAt: record.EndedAt,
		LastStartedAt: record.StartedAt,
		LastOutcome:   record.Outcome,
		LastRecordID:  record.ID,
	}
}
