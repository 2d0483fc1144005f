package constants

import "time"

const (
	AlgMd5      = "md5"
	AlgSha1     = "sha1"
	AlgSha256   = "sha256"
	AlgSha512   = "sha512"
	AlgXXHash64 = "xxhash64"

	// EmptyDigest is the computed digest recorded when a content
	// stream could not be opened or was not read to the end.
	EmptyDigest = ""

	// TopicFixity is the NSQ topic that carries object identifiers
	// due for a fixity check.
	TopicFixity = "fixity_check"

	RedisKeyDue         = "fixity:due"
	RedisKeyStatePrefix = "fixity:state:"

	DefaultCheckTimeout   = 30 * time.Minute
	DefaultQueueInterval  = 60 * time.Minute
	DefaultMaxDaysSince   = 90
	DefaultItemsPerRun    = 2500
)

var DigestAlgorithms []string = []string{
	AlgMd5,
	AlgSha1,
	AlgSha256,
	AlgSha512,
	AlgXXHash64,
}
