package reactor

import (
	"runtime"

	"github.com/fixkme/gotimer/clock"
	"github.com/google/uuid"
)

type Options struct {
	Name         string
	Workers      int   // 执行完成回调的协程数
	TickMs       int64 // 时间轮精度
	FiredSize    int   // 时间轮到期通知的缓冲
	PanicHandler func(r any)
}

type Option func(*Options)

func WithName(name string) Option {
	return func(o *Options) {
		o.Name = name
	}
}

func WithWorkers(n int) Option {
	return func(o *Options) {
		o.Workers = n
	}
}

func WithTick(ms int64) Option {
	return func(o *Options) {
		o.TickMs = ms
	}
}

func WithFiredSize(n int) Option {
	return func(o *Options) {
		o.FiredSize = n
	}
}

func WithPanicHandler(f func(r any)) Option {
	return func(o *Options) {
		o.PanicHandler = f
	}
}

func loadOptions(opts ...Option) *Options {
	o := &Options{}
	for _, f := range opts {
		f(o)
	}
	if o.Name == "" {
		o.Name = "reactor-" + uuid.NewString()[:8]
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU() * 2
	}
	if o.TickMs <= 0 {
		o.TickMs = clock.DefaultTickMs
	}
	if o.FiredSize <= 0 {
		o.FiredSize = 1024
	}
	return o
}
