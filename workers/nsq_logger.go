package workers

import (
	"strings"

	"github.com/op/go-logging"
)

// NsqLogger sends go-nsq's log output to the worker's logger.
type NsqLogger struct {
	logger *logging.Logger
}

func NewNsqLogger(logger *logging.Logger) *NsqLogger {
	return &NsqLogger{logger: logger}
}

// Output implements the logger interface go-nsq expects. go-nsq
// prefixes each line with a level tag such as "ERR".
func (l *NsqLogger) Output(calldepth int, s string) error {
	switch {
	case strings.HasPrefix(s, "ERR"):
		l.logger.Error(s)
	case strings.HasPrefix(s, "WRN"):
		l.logger.Warning(s)
	case strings.HasPrefix(s, "INF"):
		l.logger.Info(s)
	default:
		l.logger.Debug(s)
	}
	return nil
}
