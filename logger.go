package studysync

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Debug log rotation limits.
const (
	debugLogMaxSizeMB  = 10
	debugLogMaxBackups = 3
	debugLogMaxAgeDays = 28
)

// NewLogger builds the structured logger used by every component.
//
// Without debug it logs warnings and above to stderr. With debug it logs at
// debug level, to logPath when set (rotated by size) or to stderr otherwise.
// The returned closer releases the log file; it is never nil.
func NewLogger(debug bool, logPath string) (*slog.Logger, io.Closer) {
	var w io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	level := slog.LevelWarn

	if debug {
		level = slog.LevelDebug
		if logPath != "" {
			rotating := &lumberjack.Logger{
				Filename:   logPath,
				MaxSize:    debugLogMaxSizeMB,
				MaxBackups: debugLogMaxBackups,
				MaxAge:     debugLogMaxAgeDays,
			}
			w, closer = rotating, rotating
		}
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("component", "studysync"), closer
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
