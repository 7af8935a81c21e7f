package pebblestore

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cockroachdb/pebble"
)

// slogLogger routes Pebble's internal messages into the structured log.
type slogLogger struct {
	logger *slog.Logger
}

var _ pebble.Logger = slogLogger{}

func newSlogLogger(logger *slog.Logger) slogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return slogLogger{logger: logger}
}

func (l slogLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(pebbleMessage(format, args))
}

func (l slogLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(pebbleMessage(format, args))
}

// Fatalf matches pebble.DefaultLogger, which exits the process.
func (l slogLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Error(pebbleMessage(format, args), "fatal", true)
	os.Exit(1)
}

func pebbleMessage(format string, args []interface{}) string {
	return "[Pebble] " + strings.TrimSpace(fmt.Sprintf(format, args...))
}
