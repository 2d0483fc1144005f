package workers

import (
	"encoding/json"
	"time"
)

// Settings contains settings for an NSQ fixity worker.
type Settings struct {
	// ChannelBufferSize is the maximum number of NSQ messages
	// the consumer will hold in flight at once.
	ChannelBufferSize int

	// MaxAttempts is the maximum number of times the worker should
	// try to check an object before giving up on the message. Only
	// checks that could not be recorded are retried. A recorded
	// outcome, even a failure, finishes the message.
	MaxAttempts int

	// NSQChannel is the NSQ channel the worker should subscribe
	// to to receive messages.
	NSQChannel string

	// NSQTopic is the NSQ topic the worker should subscribe
	// to to receive messages.
	NSQTopic string

	// NumberOfWorkers is the number of fixity checks to run at
	// once. Checks are mostly network-bound, since the whole object
	// streams from S3 through the digest. Setting this too high
	// will saturate the link to the storage service.
	NumberOfWorkers int

	// RequeueTimeout describes how long of a timeout to set
	// on the NSQ requeue after a check could not be recorded.
	RequeueTimeout time.Duration
}

func (settings *Settings) ToJSON() string {
	data, _ := json.Marshal(settings)
	return string(data)
}
