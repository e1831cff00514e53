package xlog

type discard struct{}

// Discard returns a Logger that drops every message. It is the default used
// when no logger option is provided.
func Discard() Logger {
	return discard{}
}

func (discard) Debug(...interface{})          {}
func (discard) Debugf(string, ...interface{})  {}
func (discard) Info(...interface{})            {}
func (discard) Infof(string, ...interface{})   {}
func (discard) Warning(...interface{})         {}
func (discard) Warningf(string, ...interface{}) {}
func (discard) Error(...interface{})           {}
func (discard) Errorf(string, ...interface{})  {}

func (d discard) WithField(string, interface{}) Logger { return d }
func (d discard) WithFields(Fields) Logger              { return d }
