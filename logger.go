package gostomp

import "github.com/sirupsen/logrus"

// Logger is the logging surface the connection supervisor writes to.
// Satisfied by *logrus.Entry and *logrus.Logger; the zero value of
// nopLogger is used when a caller does not supply one.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{})   {}
func (nopLogger) Infof(string, ...interface{})    {}
func (nopLogger) Warningf(string, ...interface{}) {}
func (nopLogger) Errorf(string, ...interface{})   {}

// logrusAdapter satisfies Logger using a *logrus.Entry, so callers that
// already standardized on logrus can pass their own entry straight
// through (e.g. logrus.WithField("component", "gostomp")).
type logrusAdapter struct {
	entry *logrus.Entry
}

// NewLogrusLogger adapts a *logrus.Entry to the Logger interface.
func NewLogrusLogger(entry *logrus.Entry) Logger {
	return &logrusAdapter{entry: entry}
}

func (l *logrusAdapter) Debugf(format string, args ...interface{})   { l.entry.Debugf(format, args...) }
func (l *logrusAdapter) Infof(format string, args ...interface{})    { l.entry.Infof(format, args...) }
func (l *logrusAdapter) Warningf(format string, args ...interface{}) { l.entry.Warningf(format, args...) }
func (l *logrusAdapter) Errorf(format string, args ...interface{})   { l.entry.Errorf(format, args...) }
