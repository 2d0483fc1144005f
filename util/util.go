package util

import (
	"github.com/APTrust/preservation-fixity/constants"
)

// StringListContains returns true if the list of strings contains item.
func StringListContains(list []string, item string) bool {
	if list != nil {
		for i := range list {
			if list[i] == item {
				return true
			}
		}
	}
	return false
}

// IsSupportedAlgorithm returns true if alg is one of the digest
// algorithms fixity checks can use.
func IsSupportedAlgorithm(alg string) bool {
	return StringListContains(constants.DigestAlgorithms, alg)
}
