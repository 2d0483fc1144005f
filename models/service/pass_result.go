package service

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/APTrust/preservation-fixity/models/history"
)

// PassResult summarizes one scheduling pass: which objects were
// selected, how each check came out, and what went wrong.
type PassResult struct {
	// Host is the name of the network host on which the pass ran.
	Host string `json:"host"`

	// Pid is the pid of the process that ran the pass.
	Pid int `json:"pid"`

	// StartedAt describes when the pass started.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt describes when the pass completed. If
	// FinishedAt.IsZero(), the pass is still running.
	FinishedAt time.Time `json:"finished_at"`

	// Selected is the number of objects the scheduler selected.
	Selected int `json:"selected"`

	// Dispatched is the number of selected objects that were handed
	// to a worker or queued.
	Dispatched int `json:"dispatched"`

	// Outcomes counts completed checks by outcome.
	Outcomes map[history.Outcome]int `json:"outcomes"`

	// Cancelled is the number of checks that were abandoned before
	// a record was written, typically because of shutdown.
	Cancelled int `json:"cancelled"`

	// Errors is a list of ProcessingErrors. Don't write to this
	// directly. Use AddError.
	Errors []*ProcessingError `json:"errors"`

	mutex *sync.RWMutex
}

func NewPassResult() *PassResult {
	hostname, _ := os.Hostname()
	return &PassResult{
		Host:     hostname,
		Pid:      os.Getpid(),
		Outcomes: make(map[history.Outcome]int),
		Errors:   make([]*ProcessingError, 0),
		mutex:    &sync.RWMutex{},
	}
}

func (result *PassResult) Start() {
	result.StartedAt = time.Now().UTC()
}

func (result *PassResult) Finish() {
	result.FinishedAt = time.Now().UTC()
}

func (result *PassResult) Finished() bool {
	return !result.FinishedAt.IsZero()
}

func (result *PassResult) RunTime() time.Duration {
	startTime := result.StartedAt
	if startTime.IsZero() {
		return time.Duration(0)
	}
	endTime := result.FinishedAt
	if endTime.IsZero() {
		endTime = time.Now()
	}
	return endTime.Sub(startTime)
}

// RecordOutcome counts one completed check.
func (result *PassResult) RecordOutcome(outcome history.Outcome) {
	result.mutex.Lock()
	result.Outcomes[outcome]++
	result.mutex.Unlock()
}

// RecordCancelled counts one check that was abandoned without
// writing a record.
func (result *PassResult) RecordCancelled() {
	result.mutex.Lock()
	result.Cancelled++
	result.mutex.Unlock()
}

// Count returns the number of completed checks with the given outcome.
func (result *PassResult) Count(outcome history.Outcome) int {
	result.mutex.RLock()
	defer result.mutex.RUnlock()
	return result.Outcomes[outcome]
}

// Completed returns the number of checks that wrote a record.
func (result *PassResult) Completed() int {
	result.mutex.RLock()
	defer result.mutex.RUnlock()
	total := 0
	for _, count := range result.Outcomes {
		total += count
	}
	return total
}

// AddError adds a ProcessingError to the result. The total number of
// non-fatal errors is capped at 30. A storage outage will produce the
// same error for every object in the batch, and a few copies make the
// point. Fatal errors are always added.
func (result *PassResult) AddError(err *ProcessingError) {
	result.mutex.Lock()
	defer result.mutex.Unlock()
	if len(result.Errors) > 29 && !err.IsFatal {
		return
	}
	result.Errors = append(result.Errors, err)
}

// HasErrors returns true if this result has any errors,
// fatal or not.
func (result *PassResult) HasErrors() bool {
	result.mutex.RLock()
	hasErrors := len(result.Errors) > 0
	result.mutex.RUnlock()
	return hasErrors
}

// FatalErrors returns a list of all of this result's fatal errors.
func (result *PassResult) FatalErrors() (errors []*ProcessingError) {
	result.mutex.RLock()
	for _, err := range result.Errors {
		if err.IsFatal {
			errors = append(errors, err)
		}
	}
	result.mutex.RUnlock()
	return errors
}

// FatalErrorMessage returns all fatal error messages as a single
// pipe-demilimited string.
func (result *PassResult) FatalErrorMessage() string {
	errors := result.FatalErrors()
	messages := make([]string, len(errors))
	for i, err := range errors {
		messages[i] = err.Message
	}
	return strings.Join(messages, " | ")
}

func (result *PassResult) ToJSON() (string, error) {
	result.mutex.RLock()
	defer result.mutex.RUnlock()
	bytes, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
