package xlog

import "github.com/sirupsen/logrus"

// NewLogrus returns a Logger backed by github.com/sirupsen/logrus using its
// default text formatter.
func NewLogrus() Logger {
	base := logrus.New()
	return &logrusLogger{log: logrus.NewEntry(base)}
}

type logrusLogger struct {
	log *logrus.Entry
}

func (l *logrusLogger) Debug(args ...interface{})                   { l.log.Debug(args...) }
func (l *logrusLogger) Debugf(format string, args ...interface{})   { l.log.Debugf(format, args...) }
func (l *logrusLogger) Info(args ...interface{})                    { l.log.Info(args...) }
func (l *logrusLogger) Infof(format string, args ...interface{})    { l.log.Infof(format, args...) }
func (l *logrusLogger) Warning(args ...interface{})                 { l.log.Warning(args...) }
func (l *logrusLogger) Warningf(format string, args ...interface{}) { l.log.Warningf(format, args...) }
func (l *logrusLogger) Error(args ...interface{})                   { l.log.Error(args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{})   { l.log.Errorf(format, args...) }

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{log: l.log.WithField(key, value)}
}

func (l *logrusLogger) WithFields(fields Fields) Logger {
	return &logrusLogger{log: l.log.WithFields(logrus.Fields(fields))}
}
