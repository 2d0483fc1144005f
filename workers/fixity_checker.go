package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/APTrust/preservation-fixity/constants"
	"github.com/APTrust/preservation-fixity/fixity"
	"github.com/APTrust/preservation-fixity/models/common"
	"github.com/APTrust/preservation-fixity/models/service"
	"github.com/nsqio/go-nsq"
)

// FixityChecker is a worker that reads object identifiers from the NSQ
// fixity topic and checks each one.
type FixityChecker struct {
	Context  *common.Context
	Settings *Settings
	Runner   *fixity.Runner

	// ItemsInProcess keeps track of the objects this worker is
	// currently checking. We need to do this because NSQ does not
	// dedupe messages, so the worker must.
	ItemsInProcess *service.InFlightSet

	// NSQConsumer implements HandleMessage to receive messages from NSQ.
	NSQConsumer *nsq.Consumer

	ctx    context.Context
	cancel context.CancelFunc
}

// NewFixityChecker creates a new FixityChecker worker. It does not
// connect to NSQ until you call RegisterAsNsqConsumer.
func NewFixityChecker(_context *common.Context, bufSize, numWorkers, maxAttempts int, requeueTimeout time.Duration) (*FixityChecker, error) {
	if numWorkers < 1 {
		numWorkers = _context.Config.FixityWorkers
	}
	settings := &Settings{
		ChannelBufferSize: bufSize,
		MaxAttempts:       maxAttempts,
		NSQChannel:        constants.TopicFixity + "_worker_chan",
		NSQTopic:          constants.TopicFixity,
		NumberOfWorkers:   numWorkers,
		RequeueTimeout:    requeueTimeout,
	}
	runner, err := _context.NewRunner()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	checker := &FixityChecker{
		Context:        _context,
		Settings:       settings,
		Runner:         runner,
		ItemsInProcess: service.NewInFlightSet(),
		ctx:            ctx,
		cancel:         cancel,
	}

	checker.Context.Logger.Info("FixityCheck worker started with the following settings:")
	checker.Context.Logger.Info(settings.ToJSON())
	checker.Context.Logger.Info("Config settings (omitting sensitive credentials):")
	configJSON, _ := checker.Context.Config.ToJSON()
	checker.Context.Logger.Info(configJSON)
	return checker, nil
}

// RegisterAsNsqConsumer registers this worker as an NSQ consumer on
// Settings.NSQTopic and Settings.NSQChannel, with NumberOfWorkers
// concurrent handlers. Note that as soon as you call this, your worker
// will start handling messages if any are available.
func (c *FixityChecker) RegisterAsNsqConsumer() error {
	config := nsq.NewConfig()
	config.Set("heartbeat_interval", "10s")
	config.Set("max_in_flight", c.Settings.ChannelBufferSize)
	consumer, err := nsq.NewConsumer(c.Settings.NSQTopic, c.Settings.NSQChannel, config)
	if err != nil {
		return err
	}
	consumer.SetLogger(NewNsqLogger(c.Context.Logger), nsq.LogLevelWarning)
	c.NSQConsumer = consumer
	c.NSQConsumer.AddConcurrentHandlers(c, c.Settings.NumberOfWorkers)
	err = c.NSQConsumer.ConnectToNSQLookupd(c.Context.Config.NsqLookupd)
	if err != nil {
		return fmt.Errorf("cannot connect to nsqlookupd at %s: %w", c.Context.Config.NsqLookupd, err)
	}
	c.Context.Logger.Info("Registered as NSQ consumer")
	return nil
}

// HandleMessage checks the object named in the message body. The
// message is finished once a record is written, whatever the outcome.
// It is requeued when the record could not be written, so that
// another worker can try.
func (c *FixityChecker) HandleMessage(message *nsq.Message) error {
	task := NewTask(message)
	if task.ObjectID == "" {
		c.Context.Logger.Warning("Ignoring NSQ message with empty body")
		return nil
	}
	if !c.ItemsInProcess.Add(task.ObjectID) {
		c.Context.Logger.Infof("Skipping %s because this worker is already checking it", task.ObjectID)
		return nil
	}
	defer c.ItemsInProcess.Del(task.ObjectID)

	c.Context.Logger.Infof("Starting %s (attempt %d)", task.ObjectID, message.Attempts)
	task.NSQStart()
	task.Record, task.Err = c.Runner.Run(c.ctx, task.ObjectID)
	c.finishTask(task)
	return nil
}

func (c *FixityChecker) finishTask(task *Task) {
	switch {
	case task.Err == nil:
		task.NSQFinish()
	case errors.Is(task.Err, context.Canceled):
		// Shutting down. Hand the object to another worker.
		c.Context.Logger.Warningf("Check of %s cancelled; requeueing", task.ObjectID)
		task.NSQRequeue(0)
	case c.Settings.MaxAttempts > 0 && int(task.NSQMessage.Attempts) >= c.Settings.MaxAttempts:
		c.Context.Logger.Errorf("Giving up on %s after %d attempts: %v. It stays due for the next pass.",
			task.ObjectID, task.NSQMessage.Attempts, task.Err)
		task.NSQFinish()
	default:
		c.Context.Logger.Errorf("Check of %s was not recorded: %v. Requeueing in %s.",
			task.ObjectID, task.Err, c.Settings.RequeueTimeout)
		task.NSQRequeue(c.Settings.RequeueTimeout)
	}
}

// Stop disconnects from NSQ and cancels running checks. Cancelled
// checks write nothing and their messages are requeued.
func (c *FixityChecker) Stop() {
	if c.NSQConsumer != nil {
		c.Context.Logger.Warning("Disconnecting from NSQ")
		c.NSQConsumer.ChangeMaxInFlight(0)
	}
	c.cancel()
	if c.NSQConsumer != nil {
		c.NSQConsumer.Stop()
		<-c.NSQConsumer.StopChan
	}
	if n := c.ItemsInProcess.Len(); n > 0 {
		c.Context.Logger.Warningf("Stopped with %d checks still unwinding", n)
	}
}
