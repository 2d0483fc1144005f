package fixity

import (
	"strings"

	"github.com/APTrust/preservation-fixity/constants"
	"github.com/APTrust/preservation-fixity/models/history"
)

// Classify compares an expected digest to a computed one. Param readOK
// says whether the content stream was read to the end without error.
// NOT_FOUND is not decided here: the runner assigns it when the
// stream cannot be opened at all.
//
// Classify is pure and does no retries.
func Classify(expected, computed string, readOK bool) history.Outcome {
	if !readOK {
		return history.OutcomeReadError
	}
	expected = NormalizeDigest(expected)
	if expected == "" {
		return history.OutcomeNoExpectedDigest
	}
	if expected == NormalizeDigest(computed) {
		return history.OutcomeMatch
	}
	return history.OutcomeMismatch
}

// NormalizeDigest returns digest in canonical form: trimmed, lower
// case, and without an "alg:" prefix such as the "sha256:<hex>" form
// used in PREMIS outcome details.
func NormalizeDigest(digest string) string {
	digest = strings.TrimSpace(digest)
	if i := strings.IndexByte(digest, ':'); i >= 0 {
		prefix := strings.ToLower(digest[:i])
		for _, alg := range constants.DigestAlgorithms {
			if prefix == alg {
				digest = digest[i+1:]
				break
			}
		}
	}
	return strings.ToLower(digest)
}
