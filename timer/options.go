package timer

import (
	"math"
	"time"
)

type Options struct {
	Name string
	// Aligned 重新arm时扣除回调耗时, 让长期周期对齐墙钟
	Aligned bool
	// MaxTimers 记录数上限, 超过后创建失败
	MaxTimers int
	Now       func() time.Time
}

type Option func(*Options)

func WithName(name string) Option {
	return func(o *Options) {
		o.Name = name
	}
}

func WithAligned(aligned bool) Option {
	return func(o *Options) {
		o.Aligned = aligned
	}
}

func WithMaxTimers(n int) Option {
	return func(o *Options) {
		o.MaxTimers = n
	}
}

func WithNow(now func() time.Time) Option {
	return func(o *Options) {
		o.Now = now
	}
}

func loadOptions(opts ...Option) *Options {
	o := &Options{}
	for _, f := range opts {
		f(o)
	}
	if o.Name == "" {
		o.Name = "timer"
	}
	if o.MaxTimers <= 0 || o.MaxTimers > math.MaxUint16+1 {
		o.MaxTimers = math.MaxUint16 + 1
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
