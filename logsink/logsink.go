// Package logsink supplies the five-level logging sink interface
// spec.md §1 carves out as an external collaborator ("formatting is
// trivial"), implemented over github.com/sirupsen/logrus the way
// nabbar-golib/logger wraps logrus in its golog.go adapter: a small
// type exposing level-gated methods over a *logrus.Logger, rather than
// badu-http's fallback to the stdlib "log" package.
package logsink

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Level mirrors spec.md §6's "logLevel env var sets the logging floor
// (0=DEBUG...5=EXCEPTION)" with an Exception tier folded into Error,
// since logrus has no separate "beyond fatal" level short of Panic.
type Level int

const (
	Debug Level = iota
	Verbose
	Info
	Warning
	Error
	Exception
)

var logrusLevel = map[Level]logrus.Level{
	Debug:     logrus.TraceLevel,
	Verbose:   logrus.DebugLevel,
	Info:      logrus.InfoLevel,
	Warning:   logrus.WarnLevel,
	Error:     logrus.ErrorLevel,
	Exception: logrus.ErrorLevel,
}

// Sink is the logging surface the server, connections and handlers log
// through. A formatted message plus a level is all the contract needs;
// everything else (destination, rotation, structured fields) is the
// concrete Sink's business.
type Sink interface {
	Log(level Level, format string, args ...interface{})
}

// logrusSink adapts *logrus.Logger to Sink.
type logrusSink struct {
	l *logrus.Logger
}

// New wraps an existing *logrus.Logger.
func New(l *logrus.Logger) Sink { return &logrusSink{l: l} }

// NewDefault builds a logrus-backed Sink writing to stderr, with its
// level floor taken from the LOGSINK_LEVEL environment variable
// (debug|verbose|info|warning|error|exception), defaulting to Info.
// This mirrors nabbar-golib/logger/config's environment-driven default
// level pattern.
func NewDefault() Sink {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrusLevel[levelFromEnv()])
	return &logrusSink{l: l}
}

func levelFromEnv() Level {
	switch os.Getenv("LOGSINK_LEVEL") {
	case "debug":
		return Debug
	case "verbose", "trace":
		return Verbose
	case "warning", "warn":
		return Warning
	case "error":
		return Error
	case "exception":
		return Exception
	default:
		return Info
	}
}

func (s *logrusSink) Log(level Level, format string, args ...interface{}) {
	s.l.Logf(logrusLevel[level], format, args...)
}

// Discard is a Sink that drops everything, for use by callers that
// haven't wired logging (and by tests).
var Discard Sink = discardSink{}

type discardSink struct{}

func (discardSink) Log(Level, string, ...interface{}) {}
