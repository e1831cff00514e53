package xlog

import (
	"os"

	"github.com/rs/zerolog"
)

// NewZero returns a Logger backed by github.com/rs/zerolog, writing to
// os.Stderr with an ISO timestamp on every entry.
func NewZero() Logger {
	return &zeroLogger{log: zerolog.New(os.Stderr).With().Timestamp().Logger()}
}

type zeroLogger struct {
	log zerolog.Logger
}

func (z *zeroLogger) event(lvl zerolog.Level, args ...interface{}) {
	z.log.WithLevel(lvl).Msg(sprint(args...))
}

func (z *zeroLogger) eventf(lvl zerolog.Level, format string, args ...interface{}) {
	z.log.WithLevel(lvl).Msgf(format, args...)
}

func (z *zeroLogger) Debug(args ...interface{})                   { z.event(zerolog.DebugLevel, args...) }
func (z *zeroLogger) Debugf(format string, args ...interface{})   { z.eventf(zerolog.DebugLevel, format, args...) }
func (z *zeroLogger) Info(args ...interface{})                    { z.event(zerolog.InfoLevel, args...) }
func (z *zeroLogger) Infof(format string, args ...interface{})    { z.eventf(zerolog.InfoLevel, format, args...) }
func (z *zeroLogger) Warning(args ...interface{})                 { z.event(zerolog.WarnLevel, args...) }
func (z *zeroLogger) Warningf(format string, args ...interface{}) { z.eventf(zerolog.WarnLevel, format, args...) }
func (z *zeroLogger) Error(args ...interface{})                   { z.event(zerolog.ErrorLevel, args...) }
func (z *zeroLogger) Errorf(format string, args ...interface{})   { z.eventf(zerolog.ErrorLevel, format, args...) }

func (z *zeroLogger) WithField(key string, value interface{}) Logger {
	return &zeroLogger{log: z.log.With().Interface(key, value).Logger()}
}

func (z *zeroLogger) WithFields(fields Fields) Logger {
	ctx := z.log.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &zeroLogger{log: ctx.Logger()}
}
