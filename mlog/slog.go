package mlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/golang-cz/devslog"
	"github.com/phsym/console-slog"
	slogformatter "github.com/samber/slog-formatter"
)

const (
	slogLevelTrace  = slog.LevelDebug - 4
	slogLevelNotice = slog.LevelInfo + 2
	slogLevelFatal  = slog.LevelError + 4
)

var newFormatter = slogformatter.NewFormatterHandler(
	slogformatter.ErrorFormatter("error"),
)

type slogLogger struct {
	l     *slog.Logger
	level Level
}

// UseSlogLogger 任意slog.Handler作为后端
func UseSlogLogger(h slog.Handler, level Level) *slog.Logger {
	sl := slog.New(newFormatter(h))
	SetLogger(&slogLogger{l: sl, level: level})
	return sl
}

// UseConsoleLogger 彩色控制台输出
func UseConsoleLogger(w io.Writer, level Level) *slog.Logger {
	return UseSlogLogger(console.NewHandler(w, &console.HandlerOptions{
		Level:      toSlogLevel(level),
		TimeFormat: time.StampMilli,
	}), level)
}

// UseDevLogger 开发调试用, 多行展开属性
func UseDevLogger(w io.Writer, level Level) *slog.Logger {
	return UseSlogLogger(devslog.NewHandler(w, &devslog.Options{
		HandlerOptions: &slog.HandlerOptions{
			Level: toSlogLevel(level),
		},
		TimeFormat: time.StampMilli,
	}), level)
}

func toSlogLevel(level Level) slog.Level {
	switch level {
	case FatalLevel:
		return slogLevelFatal
	case ErrorLevel:
		return slog.LevelError
	case WarnLevel:
		return slog.LevelWarn
	case NoticeLevel:
		return slogLevelNotice
	case InfoLevel:
		return slog.LevelInfo
	case DebugLevel:
		return slog.LevelDebug
	}
	return slogLevelTrace
}

func (l *slogLogger) IsLevelEnabled(level Level) bool {
	return l.level >= level
}

func (l *slogLogger) log(level Level, msg string) {
	if l.IsLevelEnabled(level) {
		l.l.Log(context.Background(), toSlogLevel(level), msg)
	}
}

func (l *slogLogger) Trace(v ...any) {
	l.log(TraceLevel, fmt.Sprint(v...))
}

func (l *slogLogger) Tracef(format string, v ...any) {
	l.log(TraceLevel, fmt.Sprintf(format, v...))
}

func (l *slogLogger) Debug(v ...any) {
	l.log(DebugLevel, fmt.Sprint(v...))
}

func (l *slogLogger) Debugf(format string, v ...any) {
	l.log(DebugLevel, fmt.Sprintf(format, v...))
}

func (l *slogLogger) Info(v ...any) {
	l.log(InfoLevel, fmt.Sprint(v...))
}

func (l *slogLogger) Infof(format string, v ...any) {
	l.log(InfoLevel, fmt.Sprintf(format, v...))
}

func (l *slogLogger) Notice(v ...any) {
	l.log(NoticeLevel, fmt.Sprint(v...))
}

func (l *slogLogger) Noticef(format string, v ...any) {
	l.log(NoticeLevel, fmt.Sprintf(format, v...))
}

func (l *slogLogger) Warn(v ...any) {
	l.log(WarnLevel, fmt.Sprint(v...))
}

func (l *slogLogger) Warnf(format string, v ...any) {
	l.log(WarnLevel, fmt.Sprintf(format, v...))
}

func (l *slogLogger) Error(v ...any) {
	l.log(ErrorLevel, fmt.Sprint(v...))
}

func (l *slogLogger) Errorf(format string, v ...any) {
	l.log(ErrorLevel, fmt.Sprintf(format, v...))
}

func (l *slogLogger) Fatal(v ...any) {
	l.log(FatalLevel, fmt.Sprint(v...))
	os.Exit(1)
}

func (l *slogLogger) Fatalf(format string, v ...any) {
	l.log(FatalLevel, fmt.Sprintf(format, v...))
	os.Exit(1)
}
