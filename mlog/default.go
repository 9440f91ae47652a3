package mlog

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

type FileConfig struct {
	Path       string
	Name       string
	Level      Level
	StdOut     bool
	MaxSizeMB  int // 单个文件上限, 超过后滚动
	MaxBackups int
}

type fileLogger struct {
	out    *lumberjack.Logger
	ll     *log.Logger
	buff   chan string
	level  Level
	stdOut bool
}

func newDefaultLogger(conf *FileConfig) (*fileLogger, error) {
	logpath := conf.Path
	// 默认使用当前路径
	if len(logpath) == 0 {
		logpath = "."
	}
	if err := os.MkdirAll(logpath, 0755); err != nil {
		return nil, err
	}
	maxSize := conf.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	out := &lumberjack.Logger{
		Filename:   filepath.Join(logpath, genLogName(conf.Name)),
		MaxSize:    maxSize,
		MaxBackups: conf.MaxBackups,
		LocalTime:  true,
	}
	l := &fileLogger{
		out:    out,
		ll:     log.New(out, "", log.Ldate|log.Lmicroseconds),
		buff:   make(chan string, 0x10000),
		level:  conf.Level,
		stdOut: conf.StdOut,
	}
	if l.stdOut {
		log.SetFlags(log.Ldate | log.Lmicroseconds)
	}
	return l, nil
}

func (me *fileLogger) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("log recover error %v\n", r)
			}
			me.out.Close()
			wg.Done()
		}()

		for {
			select {
			case <-ctx.Done():
				for {
					select {
					case str := <-me.buff:
						me.write(str)
					default:
						return
					}
				}
			case str := <-me.buff:
				me.write(str)
			}
		}
	}()
}

func (me *fileLogger) write(str string) {
	if me.stdOut {
		log.Println(str)
	}
	me.ll.Println(str)
}

func (me *fileLogger) push(level Level, str string) {
	me.buff <- getLevelTag(level) + str
}

func (me *fileLogger) IsLevelEnabled(level Level) bool {
	return me.level >= level
}

func (me *fileLogger) Logf(level Level, format string, args ...any) {
	if me.IsLevelEnabled(level) {
		if len(format) == 0 {
			me.push(level, fmt.Sprint(args...))
		} else {
			me.push(level, fmt.Sprintf(format, args...))
		}
	}
}

func (me *fileLogger) Trace(args ...any) {
	me.Logf(TraceLevel, "", args...)
}

func (me *fileLogger) Tracef(format string, args ...any) {
	me.Logf(TraceLevel, format, args...)
}

func (me *fileLogger) Debug(args ...any) {
	me.Logf(DebugLevel, "", args...)
}

func (me *fileLogger) Debugf(format string, args ...any) {
	me.Logf(DebugLevel, format, args...)
}

func (me *fileLogger) Info(args ...any) {
	me.Logf(InfoLevel, "", args...)
}

func (me *fileLogger) Infof(format string, args ...any) {
	me.Logf(InfoLevel, format, args...)
}

func (me *fileLogger) Notice(args ...any) {
	me.Logf(NoticeLevel, "", args...)
}

func (me *fileLogger) Noticef(format string, args ...any) {
	me.Logf(NoticeLevel, format, args...)
}

func (me *fileLogger) Warn(args ...any) {
	me.Logf(WarnLevel, "", args...)
}

func (me *fileLogger) Warnf(format string, args ...any) {
	me.Logf(WarnLevel, format, args...)
}

func (me *fileLogger) Error(args ...any) {
	me.Logf(ErrorLevel, "", args...)
}

func (me *fileLogger) Errorf(format string, args ...any) {
	me.Logf(ErrorLevel, format, args...)
}

func (me *fileLogger) Fatal(args ...any) {
	me.Logf(FatalLevel, "", args...)
	time.Sleep(time.Second)
	os.Exit(1)
}

func (me *fileLogger) Fatalf(format string, args ...any) {
	me.Logf(FatalLevel, format, args...)
	time.Sleep(time.Second)
	os.Exit(1)
}

func genLogName(logName string) string {
	if logName == "" {
		logName = "mlog"
	}
	return logName + ".log"
}
