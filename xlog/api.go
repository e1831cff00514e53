// Package xlog is a small structured-logging facade, adapted from
// go.bryk.io/pkg/log's SimpleLogger/Logger interfaces and trimmed to the
// levels the AMQP core actually emits. Backends are thin adapters over real
// third-party loggers so the connection, session, and orchestrator code
// never talks to a concrete logging library directly.
package xlog

// Fields carries structured context alongside a log message.
type Fields map[string]interface{}

// Logger is the minimal leveled, structured logger the AMQP core depends on.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warning(args ...interface{})
	Warningf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	// WithField returns a derived logger that always includes key/value.
	WithField(key string, value interface{}) Logger

	// WithFields returns a derived logger that always includes fields.
	WithFields(fields Fields) Logger
}
