package pebblestore

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func newBufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestSlogLogger_Levels(t *testing.T) {
	logger, buf := newBufferLogger()
	l := newSlogLogger(logger)

	l.Infof("cleanup falling behind; job queue has over %d jobs", 100)
	require.Contains(t, buf.String(), "level=INFO")
	require.Contains(t, buf.String(), `msg="[Pebble] cleanup falling behind; job queue has over 100 jobs"`)

	buf.Reset()
	l.Errorf("WAL %s stopped reading\n", "000002.log")
	require.Contains(t, buf.String(), "level=ERROR")
	require.Contains(t, buf.String(), `msg="[Pebble] WAL 000002.log stopped reading"`)
}

func TestSlogLogger_NilUsesDefault(t *testing.T) {
	logger, buf := newBufferLogger()
	prev := slog.Default()
	slog.SetDefault(logger)
	t.Cleanup(func() { slog.SetDefault(prev) })

	newSlogLogger(nil).Infof("hello")
	require.Contains(t, buf.String(), "[Pebble] hello")
}

func TestPebbleOptions_RouteBackgroundErrorsToSlog(t *testing.T) {
	logger, buf := newBufferLogger()

	opts := newPebbleOptions(logger).EnsureDefaults()
	require.IsType(t, slogLogger{}, opts.Logger)

	opts.EventListener.BackgroundError(errors.New("disk stalled"))
	require.Contains(t, buf.String(), "[Pebble] background error: disk stalled")
}
