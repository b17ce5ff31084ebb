// Package worklog adapts a logrus logger to the setup package's leveled Log
// sink, so the driver's diagnostics land wherever the host process has
// configured logrus to write.
package worklog

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/walexzzy/netmirage/internal/setup"
)

// Logrus wraps a *logrus.Logger as a setup.Log.
type Logrus struct {
	log *logrus.Logger
}

// New constructs a Logrus sink around log. A nil log uses logrus's default
// standard logger.
func New(log *logrus.Logger) *Logrus {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Logrus{log: log}
}

func toLogrusLevel(level setup.Level) logrus.Level {
	switch level {
	case setup.LevelDebug:
		return logrus.DebugLevel
	case setup.LevelInfo:
		return logrus.InfoLevel
	case setup.LevelWarning:
		return logrus.WarnLevel
	case setup.LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// PassesThreshold reports whether level would actually be emitted, letting
// the driver skip formatting diagnostics that logrus would discard anyway.
func (l *Logrus) PassesThreshold(level setup.Level) bool {
	return l.log.IsLevelEnabled(toLogrusLevel(level))
}

// Logf formats and emits a message at level.
func (l *Logrus) Logf(level setup.Level, format string, args ...any) {
	l.log.Log(toLogrusLevel(level), fmt.Sprintf(format, args...))
}

var _ setup.Log = (*Logrus)(nil)
