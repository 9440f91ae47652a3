package mlog

import (
	"context"
	"sync"
	"sync/atomic"
)

type Logger interface {
	Trace(v ...any)
	Debug(v ...any)
	Info(v ...any)
	Notice(v ...any)
	Warn(v ...any)
	Error(v ...any)
	Fatal(v ...any)

	Tracef(format string, v ...any)
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Noticef(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
	Fatalf(format string, v ...any)

	IsLevelEnabled(level Level) bool
}

type Level uint32

const (
	FatalLevel Level = iota
	ErrorLevel
	WarnLevel
	NoticeLevel
	InfoLevel
	DebugLevel
	TraceLevel
)

var levelNames = [...]string{"fatal", "error", "warn", "notice", "info", "debug", "trace"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// holder atomic.Pointer不能直接存接口
type holder struct {
	l Logger
}

// reactor的工作协程和定时回调随时会打日志, 切换logger必须是原子的
var current atomic.Pointer[holder]

func SetLogger(l Logger) {
	if l == nil {
		current.Store(nil)
		return
	}
	current.Store(&holder{l: l})
}

func GetLogger() Logger {
	if h := current.Load(); h != nil {
		return h.l
	}
	return nil
}

// enabled 返回当前logger, 未设置或级别被过滤时返回nil
func enabled(level Level) Logger {
	l := GetLogger()
	if l == nil || !l.IsLevelEnabled(level) {
		return nil
	}
	return l
}

// UseDefaultLogger 异步写文件, ctx结束后把缓冲刷完再退出
func UseDefaultLogger(ctx context.Context, wg *sync.WaitGroup, conf *FileConfig) error {
	l, err := newDefaultLogger(conf)
	if err != nil {
		return err
	}
	l.Start(ctx, wg)
	SetLogger(l)
	return nil
}

func UseStdLogger(level Level) error {
	SetLogger(newStdoutLogger(level))
	return nil
}

func IsLevelEnabled(level Level) bool {
	return enabled(level) != nil
}

func Trace(a ...any) {
	if l := enabled(TraceLevel); l != nil {
		l.Trace(a...)
	}
}

func Tracef(format string, a ...any) {
	if l := enabled(TraceLevel); l != nil {
		l.Tracef(format, a...)
	}
}

func Debug(a ...any) {
	if l := enabled(DebugLevel); l != nil {
		l.Debug(a...)
	}
}

func Debugf(format string, a ...any) {
	if l := enabled(DebugLevel); l != nil {
		l.Debugf(format, a...)
	}
}

func Info(a ...any) {
	if l := enabled(InfoLevel); l != nil {
		l.Info(a...)
	}
}

func Infof(format string, a ...any) {
	if l := enabled(InfoLevel); l != nil {
		l.Infof(format, a...)
	}
}

func Notice(a ...any) {
	if l := enabled(NoticeLevel); l != nil {
		l.Notice(a...)
	}
}

func Noticef(format string, a ...any) {
	if l := enabled(NoticeLevel); l != nil {
		l.Noticef(format, a...)
	}
}

func Warn(a ...any) {
	if l := enabled(WarnLevel); l != nil {
		l.Warn(a...)
	}
}

func Warnf(format string, a ...any) {
	if l := enabled(WarnLevel); l != nil {
		l.Warnf(format, a...)
	}
}

func Error(a ...any) {
	if l := enabled(ErrorLevel); l != nil {
		l.Error(a...)
	}
}

func Errorf(format string, a ...any) {
	if l := enabled(ErrorLevel); l != nil {
		l.Errorf(format, a...)
	}
}

// Fatal 不做级别过滤, 由具体logger决定是否退出进程
func Fatal(a ...any) {
	if l := GetLogger(); l != nil {
		l.Fatal(a...)
	}
}

func Fatalf(format string, a ...any) {
	if l := GetLogger(); l != nil {
		l.Fatalf(format, a...)
	}
}
