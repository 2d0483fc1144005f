package common

import (
	"strings"

	"github.com/op/go-logging"
)

// Tracer lets us write Minio trace output to our logs. Turn it on with
// S3_TRACE=true. Each HTTP exchange with S3 is logged at DEBUG.
type Tracer struct {
	logger *logging.Logger
}

func NewTracer(logger *logging.Logger) *Tracer {
	return &Tracer{logger: logger}
}

func (t *Tracer) Write(p []byte) (n int, err error) {
	t.logger.Debug(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
