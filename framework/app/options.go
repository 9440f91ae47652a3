package app

import (
	"os"
	"syscall"
	"time"
)

type Options struct {
	DrainTimeout time.Duration // 模块销毁后等待异步调用结束的上限
	Signals      []os.Signal
}

type Option func(*Options)

func WithDrainTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.DrainTimeout = d
	}
}

// WithSignals SIGHUP只记日志不退出
func WithSignals(sigs ...os.Signal) Option {
	return func(o *Options) {
		o.Signals = sigs
	}
}

func loadOptions(opts ...Option) *Options {
	o := &Options{}
	for _, f := range opts {
		f(o)
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = 5 * time.Second
	}
	if len(o.Signals) == 0 {
		o.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}
	}
	return o
}
