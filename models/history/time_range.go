package history

import "time"

// TimeRange bounds history queries on StartedAt. From is inclusive and
// To is exclusive. A zero value on either end leaves that end open.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// AllTime is an unbounded TimeRange.
var AllTime = TimeRange{}
