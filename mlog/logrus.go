package mlog

import (
	"time"

	"github.com/sirupsen/logrus"
)

type logrusLogger struct {
	*logrus.Logger
	level Level
}

// UseLogrusLogger 用logrus输出, 文本格式带毫秒时间戳
func UseLogrusLogger(level Level) *logrus.Logger {
	ll := logrus.New()
	ll.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.StampMilli,
	})
	ll.SetLevel(toLogrusLevel(level))
	SetLogger(&logrusLogger{Logger: ll, level: level})
	return ll
}

func toLogrusLevel(level Level) logrus.Level {
	switch level {
	case FatalLevel:
		return logrus.FatalLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	case WarnLevel:
		return logrus.WarnLevel
	case NoticeLevel, InfoLevel:
		return logrus.InfoLevel
	case DebugLevel:
		return logrus.DebugLevel
	}
	return logrus.TraceLevel
}

func (l *logrusLogger) IsLevelEnabled(level Level) bool {
	return l.level >= level
}

// logrus没有notice级别, 以info输出并打上字段
func (l *logrusLogger) Notice(v ...any) {
	if l.IsLevelEnabled(NoticeLevel) {
		l.Logger.WithField("notice", true).Info(v...)
	}
}

func (l *logrusLogger) Noticef(format string, v ...any) {
	if l.IsLevelEnabled(NoticeLevel) {
		l.Logger.WithField("notice", true).Infof(format, v...)
	}
}
