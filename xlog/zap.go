package xlog

import "go.uber.org/zap"

// NewZap returns a Logger backed by go.uber.org/zap using its default
// production encoder configuration.
func NewZap() Logger {
	base, err := zap.NewProduction()
	if err != nil {
		base = zap.NewNop()
	}
	return &zapLogger{log: base.Sugar()}
}

type zapLogger struct {
	log *zap.SugaredLogger
}

func (z *zapLogger) Debug(args ...interface{})                   { z.log.Debug(args...) }
func (z *zapLogger) Debugf(format string, args ...interface{})   { z.log.Debugf(format, args...) }
func (z *zapLogger) Info(args ...interface{})                    { z.log.Info(args...) }
func (z *zapLogger) Infof(format string, args ...interface{})    { z.log.Infof(format, args...) }
func (z *zapLogger) Warning(args ...interface{})                 { z.log.Warn(args...) }
func (z *zapLogger) Warningf(format string, args ...interface{}) { z.log.Warnf(format, args...) }
func (z *zapLogger) Error(args ...interface{})                   { z.log.Error(args...) }
func (z *zapLogger) Errorf(format string, args ...interface{})   { z.log.Errorf(format, args...) }

func (z *zapLogger) WithField(key string, value interface{}) Logger {
	return &zapLogger{log: z.log.With(key, value)}
}

func (z *zapLogger) WithFields(fields Fields) Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &zapLogger{log: z.log.With(args...)}
}
