package activity

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/sirupsen/logrus"
)

// logrusAdapter routes watermill's internal logging through logrus.
type logrusAdapter struct {
	entry *logrus.Entry
}

func newLogrusAdapter(entry *logrus.Entry) watermill.LoggerAdapter {
	return logrusAdapter{entry: entry}
}

func (l logrusAdapter) fields(fields watermill.LogFields) *logrus.Entry {
	return l.entry.WithFields(logrus.Fields(fields))
}

func (l logrusAdapter) Error(msg string, err error, fields watermill.LogFields) {
	l.fields(fields).WithError(err).Error(msg)
}

func (l logrusAdapter) Info(msg string, fields watermill.LogFields) {
	l.fields(fields).Info(msg)
}

func (l logrusAdapter) Debug(msg string, fields watermill.LogFields) {
	l.fields(fields).Debug(msg)
}

func (l logrusAdapter) Trace(msg string, fields watermill.LogFields) {
	l.fields(fields).Trace(msg)
}

func (l logrusAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return logrusAdapter{entry: l.fields(fields)}
}
