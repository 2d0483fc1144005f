package service

import (
	"fmt"
	"runtime"
)

type ProcessingError struct {
	Identifier string `json:"identifier"`
	IsFatal    bool   `json:"is_fatal"`
	Message    string `json:"message"`
	Source     string `json:"source"`
}

// NewProcessingError returns a new ProcessingError. Param identifier
// is the identifier of the object being checked when the error
// occurred. Param isFatal describes whether the error prevented a
// check record from being written. Persistence failures are fatal for
// the check attempt; the object stays due and the next scheduling
// pass picks it up again.
func NewProcessingError(identifier, message string, isFatal bool) *ProcessingError {
	_, filename, line, ok := runtime.Caller(1)
	source := "unknown:0"
	if ok {
		source = fmt.Sprintf("%s:%d", filename, line)
	}
	return &ProcessingError{
		Identifier: identifier,
		IsFatal:    isFatal,
		Message:    message,
		Source:     source,
	}
}

func (e *ProcessingError) Error() string {
	severity := "non-fatal"
	if e.IsFatal {
		severity = "fatal"
	}
	source := "unknown:0"
	if e.Source != "" {
		source = e.Source
	}
	return fmt.Sprintf("(message: %s) (severity: %s) "+
		"(identifier: %s) (source: %s)", e.Message,
		severity, e.Identifier, source)
}
