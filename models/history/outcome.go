package history

import "fmt"

// Outcome is the result code of a single fixity check. The set of
// values is closed: these are engine semantics, not user data.
type Outcome string

const (
	OutcomeMatch            Outcome = "MATCH"
	OutcomeMismatch         Outcome = "MISMATCH"
	OutcomeNotFound         Outcome = "NOT_FOUND"
	OutcomeReadError        Outcome = "READ_ERROR"
	OutcomeNoExpectedDigest Outcome = "NO_EXPECTED_DIGEST"
)

// Outcomes lists every valid Outcome, most severe first.
var Outcomes = []Outcome{
	OutcomeMismatch,
	OutcomeNotFound,
	OutcomeReadError,
	OutcomeNoExpectedDigest,
	OutcomeMatch,
}

// ParseOutcome converts a stored result code back into an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	o := Outcome(s)
	if !o.Valid() {
		return "", fmt.Errorf("unknown fixity outcome %q", s)
	}
	return o, nil
}

func (o Outcome) String() string {
	return string(o)
}

// Valid returns true if o is one of the defined outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeMatch, OutcomeMismatch, OutcomeNotFound, OutcomeReadError, OutcomeNoExpectedDigest:
		return true
	}
	return false
}

// IsFailure returns true for every outcome other than MATCH and
// NO_EXPECTED_DIGEST. NO_EXPECTED_DIGEST is a missing baseline, not
// a failed check.
func (o Outcome) IsFailure() bool {
	return o == OutcomeMismatch || o == OutcomeNotFound || o == OutcomeReadError
}

// Severity ranks outcomes for operator reporting. MISMATCH is the
// highest, since it signals corruption or unauthorized modification.
func (o Outcome) Severity() int {
	switch o {
	case OutcomeMismatch:
		return 4
	case OutcomeNotFound:
		return 3
	case OutcomeReadError:
		return 2
	case OutcomeNoExpectedDigest:
		return 1
	}
	return 0
}
