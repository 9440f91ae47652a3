package timer

import (
	"sync/atomic"

	"github.com/fixkme/gotimer/reactor"
)

// ID 定时器id, 在一个Registry内唯一
type ID uint16

// TimerEnd 扩展Registry的owner从这里开始分配自己的id, 子类再从父类的end开始
const TimerEnd ID = 0

type Status int32

const (
	Created Status = iota
	Started
	Canceled
)

func (s Status) String() string {
	switch s {
	case Created:
		return "created"
	case Started:
		return "started"
	case Canceled:
		return "canceled"
	}
	return "unknown"
}

// Callback 返回true继续定时器, false停止
type Callback func(id ID) bool

// Take 转移回调的所有权, 源变量被置空
func Take(cb *Callback) Callback {
	if cb == nil {
		return nil
	}
	c := *cb
	*cb = nil
	return c
}

// Info 定时器记录, 创建后在Registry的整个生命周期内有效.
// 各字段单独是原子的, 但同一个id上的复合操作(例如先改间隔再启动)需要调用方自己串行.
type Info struct {
	id       ID
	seq      atomic.Uint32 // 每次arm加一, 用来识别过期的完成通知
	status   atomic.Int32
	interval atomic.Uint32 // ms
	callback atomic.Pointer[Callback]
	wait     reactor.Waiter
}

func newInfo(id ID, w reactor.Waiter) *Info {
	return &Info{id: id, wait: w}
}

func (ti *Info) ID() ID {
	return ti.id
}

func (ti *Info) Status() Status {
	return Status(ti.status.Load())
}

// Interval ms
func (ti *Info) Interval() uint32 {
	return ti.interval.Load()
}

func (ti *Info) Seq() uint32 {
	return ti.seq.Load()
}

func (ti *Info) HasCallback() bool {
	cb := ti.callback.Load()
	return cb != nil && *cb != nil
}

func (ti *Info) setStatus(s Status) {
	ti.status.Store(int32(s))
}

func (ti *Info) setCallback(cb Callback) {
	if cb == nil {
		ti.callback.Store(nil)
		return
	}
	ti.callback.Store(&cb)
}

func (ti *Info) loadCallback() Callback {
	if cb := ti.callback.Load(); cb != nil {
		return *cb
	}
	return nil
}
