package xlog

import "testing"

// backends exercises every constructor against the Logger interface so a
// broken adapter fails to compile/run rather than surfacing at first use.
func backends() []Logger {
	return []Logger{
		Discard(),
		NewZero(),
		NewZap(),
		NewLogrus(),
		NewCharm("test"),
	}
}

func TestBackendsImplementLogger(t *testing.T) {
	for _, l := range backends() {
		l = l.WithField("component", "test")
		l = l.WithFields(Fields{"attempt": 1})
		l.Debug("debug message")
		l.Debugf("debug %s", "message")
		l.Info("info message")
		l.Infof("info %s", "message")
		l.Warning("warning message")
		l.Warningf("warning %s", "message")
		l.Error("error message")
		l.Errorf("error %s", "message")
	}
}
