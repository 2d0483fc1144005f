package testutil

import (
	"fmt"
	"time"

	"github.com/APTrust/preservation-fixity/constants"
	"github.com/APTrust/preservation-fixity/models/history"
)

var Bloomsday, _ = time.Parse(time.RFC3339, "1904-06-16T15:04:05Z")

const (
	ObjIdentifier = "test.edu/test-bag/data/image.jpg"

	// Content is the body of most test objects. ContentSha256 and
	// ContentMd5 are its digests.
	Content       = "Stately, plump Buck Mulligan came from the stairhead."
	ContentSha256 = "a7764473e89aac2d38cc0a5b476621dfd38ecc3da5c2bfaee44fa057b0b78b09"
	ContentMd5    = "72cb3ebf4007b36cdf0594cbf2d12af0"
)

// GetCheckRecord returns a valid record for objectID that started at
// startedAt and took one second. Digests are filled in to suit the
// outcome.
func GetCheckRecord(objectID string, outcome history.Outcome, startedAt time.Time) *history.CheckRecord {
	record := &history.CheckRecord{
		ID:        history.NewRecordID(),
		ObjectID:  objectID,
		StartedAt: startedAt.UTC(),
		EndedAt:   startedAt.Add(time.Second).UTC(),
		Algorithm: constants.AlgSha256,
		Outcome:   outcome,
	}
	switch outcome {
	case history.OutcomeMatch:
		record.ExpectedDigest = fmt.Sprintf("%064d", 1)
		record.ComputedDigest = record.ExpectedDigest
		record.BytesRead = 1024
	case history.OutcomeMismatch:
		record.ExpectedDigest = fmt.Sprintf("%064d", 1)
		record.ComputedDigest = fmt.Sprintf("%064d", 2)
		record.BytesRead = 1024
	case history.OutcomeNoExpectedDigest:
		record.ComputedDigest = fmt.Sprintf("%064d", 3)
		record.BytesRead = 1024
	case history.OutcomeReadError:
		record.ExpectedDigest = fmt.Sprintf("%064d", 1)
		record.BytesRead = 512
	}
	return record
}

// ObjectIDs returns n object identifiers that sort in the order they
// are returned.
func ObjectIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("test.edu/bag-%04d/data/file.txt", i)
	}
	return ids
}
