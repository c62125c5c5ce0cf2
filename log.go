package tftp

import "github.com/sirupsen/logrus"

// Logger is the leveled logging collaborator the engine writes to. It is
// satisfied directly by *logrus.Entry and *logrus.Logger. The engine never
// imports logrus for anything but this interface and the default
// implementation below, so callers may plug in any logger that implements
// it without the engine knowing the difference.
type Logger interface {
	Errorf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Tracef(format string, args ...interface{})
}

// NewDefaultLogger returns a Logger backed by a logrus.Logger writing to the
// standard logrus destination (stderr) at the given level.
func NewDefaultLogger(level logrus.Level) Logger {
	l := logrus.New()
	l.SetLevel(level)
	return l
}

// nopLogger discards everything; used when a caller does not supply one.
type nopLogger struct{}

func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Tracef(string, ...interface{}) {}
