package logger

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path"
	"path/filepath"

	"github.com/op/go-logging"
)

/*
InitLogger creates and returns a logger suitable for logging
human-readable message. Also returns the path to the log file.
If logDir is empty, the logger writes to stderr and the returned
path is empty.
*/
func InitLogger(logDir string, logLevel logging.Level) (*logging.Logger, string) {
	processName := path.Base(os.Args[0])
	var writer io.Writer = os.Stderr
	filename := ""
	if logDir != "" {
		filename = filepath.Join(logDir, fmt.Sprintf("%s.log", processName))
		file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open log file '%s': %v\n", filename, err)
			os.Exit(1)
		}
		writer = file
	}
	log := logging.MustGetLogger(processName)
	format := logging.MustStringFormatter("[%{level}] %{message}")
	logging.SetFormatter(format)
	logBackend := logging.NewLogBackend(writer, "", stdlog.LstdFlags|stdlog.LUTC)
	logging.SetBackend(logBackend)
	logging.SetLevel(logLevel, processName)
	return log, filename
}

// ParseLevel converts a level name such as INFO or debug to a
// logging.Level. Empty means INFO.
func ParseLevel(name string) (logging.Level, error) {
	if name == "" {
		return logging.INFO, nil
	}
	return logging.LogLevel(name)
}

// DiscardLogger returns a logger that accepts every level and writes
// nowhere. Tests use it so that debug paths still run.
func DiscardLogger(module string) *logging.Logger {
	log := logging.MustGetLogger(module)
	backend := logging.AddModuleLevel(logging.NewLogBackend(io.Discard, "", 0))
	backend.SetLevel(logging.DEBUG, module)
	log.SetBackend(backend)
	logging.SetLevel(logging.DEBUG, module)
	return log
}
