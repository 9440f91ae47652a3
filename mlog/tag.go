package mlog

// Tagged 带前缀的日志, 用来区分同一进程内的多个owner(reactor, registry, session)
type Tagged struct {
	prefix string
}

func With(tag string) *Tagged {
	if tag == "" {
		return &Tagged{}
	}
	return &Tagged{prefix: "[" + tag + "] "}
}

func (t *Tagged) Tag() string {
	return t.prefix
}

func (t *Tagged) Tracef(format string, v ...any) {
	if l := enabled(TraceLevel); l != nil {
		l.Tracef(t.prefix+format, v...)
	}
}

func (t *Tagged) Debugf(format string, v ...any) {
	if l := enabled(DebugLevel); l != nil {
		l.Debugf(t.prefix+format, v...)
	}
}

func (t *Tagged) Infof(format string, v ...any) {
	if l := enabled(InfoLevel); l != nil {
		l.Infof(t.prefix+format, v...)
	}
}

func (t *Tagged) Warnf(format string, v ...any) {
	if l := enabled(WarnLevel); l != nil {
		l.Warnf(t.prefix+format, v...)
	}
}

func (t *Tagged) Errorf(format string, v ...any) {
	if l := enabled(ErrorLevel); l != nil {
		l.Errorf(t.prefix+format, v...)
	}
}
