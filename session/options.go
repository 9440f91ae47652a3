package session

import "time"

type Options struct {
	HeartbeatMs      uint32 // 0 不发心跳
	IdleTimeoutMs    uint32 // 0 不检查空闲
	StatsMs          uint32 // 0 不输出统计
	HeartbeatPayload []byte
	FlagTracker      bool // 用标记代替引用计数判断是否还有异步调用
	Now              func() time.Time
}

type Option func(*Options)

func WithHeartbeat(ms uint32, payload []byte) Option {
	return func(o *Options) {
		o.HeartbeatMs = ms
		o.HeartbeatPayload = payload
	}
}

func WithIdleTimeout(ms uint32) Option {
	return func(o *Options) {
		o.IdleTimeoutMs = ms
	}
}

func WithStats(ms uint32) Option {
	return func(o *Options) {
		o.StatsMs = ms
	}
}

func WithFlagTracker() Option {
	return func(o *Options) {
		o.FlagTracker = true
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
	if len(o.HeartbeatPayload) == 0 {
		o.HeartbeatPayload = []byte("ping\n")
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
