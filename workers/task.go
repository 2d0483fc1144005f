package workers

import (
	"strings"
	"sync"
	"time"

	"github.com/APTrust/preservation-fixity/models/history"
	"github.com/nsqio/go-nsq"
)

// touchInterval is how often a Task touches its NSQ message while the
// check runs.
var touchInterval = 2 * time.Minute

// Task carries one NSQ fixity message through the checker.
type Task struct {
	// ObjectID is the identifier of the object to check, taken from
	// the message body.
	ObjectID string

	// NSQMessage is the NSQ message the worker is processing.
	NSQMessage *nsq.Message

	// Record is the check record the runner wrote, if any.
	Record *history.CheckRecord

	// Err is the error the runner returned, if any. When Err is
	// set, no record was written.
	Err error

	stopOnce sync.Once
	stopChan chan struct{}

	// For testing
	nsqStartCalled bool

	// For testing
	tickerStopped chan struct{}
}

// NewTask returns a Task for message. The object ID is the trimmed
// message body.
func NewTask(message *nsq.Message) *Task {
	return &Task{
		ObjectID:      strings.TrimSpace(string(message.Body)),
		NSQMessage:    message,
		tickerStopped: make(chan struct{}),
	}
}

// NSQStart creates a timer that touches the NSQ message
// every two minutes while the check is in process. We need this
// because computing the digest of a 200GB object cannot pause to
// touch the NSQ message before it times out.
func (task *Task) NSQStart() {
	task.NSQMessage.DisableAutoResponse()
	ticker := time.NewTicker(touchInterval)
	task.stopChan = make(chan struct{})
	go func() {
		defer close(task.tickerStopped)
		for {
			select {
			case <-ticker.C:
				task.NSQMessage.Touch()
			case <-task.stopChan:
				ticker.Stop()
				return
			}
		}
	}()
	task.nsqStartCalled = true
}

// NSQRequeue requeues the message with the specified delay
// and stops sending touches.
func (task *Task) NSQRequeue(delay time.Duration) {
	task.stopTouching()
	task.NSQMessage.Requeue(delay)
}

// NSQFinish finishes the message and stops sending touches.
func (task *Task) NSQFinish() {
	task.stopTouching()
	task.NSQMessage.Finish()
}

func (task *Task) stopTouching() {
	if task.stopChan == nil {
		return
	}
	task.stopOnce.Do(func() { close(task.stopChan) })
	<-task.tickerStopped
}

// StartCalled returns true if NSQStart() has been called on this object.
// This method exist for testing purposes.
func (task *Task) StartCalled() bool {
	return task.nsqStartCalled
}

// TickerStopped returns true if either NSQFinish() or NSQRequeue()
// has been called after NSQStart(). This method exist for testing
// purposes.
func (task *Task) TickerStopped() bool {
	select {
	case <-task.tickerStopped:
		return true
	default:
		return false
	}
}
