package xlog

import (
	"os"

	charm "github.com/charmbracelet/log"
)

// NewCharm returns a Logger backed by github.com/charmbracelet/log, useful
// for CLI-facing tools built on top of the AMQP core.
func NewCharm(prefix string) Logger {
	cl := charm.NewWithOptions(os.Stderr, charm.Options{
		Prefix:          prefix,
		Level:           charm.DebugLevel,
		ReportTimestamp: true,
	})
	return &charmLogger{log: cl}
}

type charmLogger struct {
	log *charm.Logger
}

func (c *charmLogger) Debug(args ...interface{})                   { c.log.Debug(sprint(args...)) }
func (c *charmLogger) Debugf(format string, args ...interface{})   { c.log.Debugf(format, args...) }
func (c *charmLogger) Info(args ...interface{})                    { c.log.Info(sprint(args...)) }
func (c *charmLogger) Infof(format string, args ...interface{})    { c.log.Infof(format, args...) }
func (c *charmLogger) Warning(args ...interface{})                 { c.log.Warn(sprint(args...)) }
func (c *charmLogger) Warningf(format string, args ...interface{}) { c.log.Warnf(format, args...) }
func (c *charmLogger) Error(args ...interface{})                   { c.log.Error(sprint(args...)) }
func (c *charmLogger) Errorf(format string, args ...interface{})   { c.log.Errorf(format, args...) }

func (c *charmLogger) WithField(key string, value interface{}) Logger {
	return &charmLogger{log: c.log.With(key, value)}
}

func (c *charmLogger) WithFields(fields Fields) Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &charmLogger{log: c.log.With(args...)}
}
