// Package tracker tells an owner whether asynchronous work it submitted is
// still outstanding, so that its destruction can be deferred or verified safe.
//
// Two strategies implement Tracker. Shared counts holders of a token captured
// by every submitted closure and tolerates completions on many workers at
// once. Flag is a single boolean the owner toggles itself; it is only sound
// when every submission and the owner's destruction go through one serialized
// execution domain.
package tracker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type Tracker interface {
	// IsAsyncCalling reports whether any tracked callback is still pending.
	IsAsyncCalling() bool
	// IsLastAsyncCall reports whether the running callback is the last
	// pending one. Only meaningful when called from inside a tracked callback.
	IsLastAsyncCall() bool
	// SetAsyncCalling is the explicit setter of the flag strategy. The shared
	// strategy ignores it.
	SetAsyncCalling(v bool)
	// Acquire registers one pending callback and returns its release func.
	// Calling release more than once has no further effect.
	Acquire() (release func())
}

// Shared 引用计数, 初始为1代表owner自己
type Shared struct {
	refs atomic.Int64
}

func NewShared() *Shared {
	s := &Shared{}
	s.refs.Store(1)
	return s
}

func (s *Shared) IsAsyncCalling() bool {
	return s.refs.Load() > 1
}

// IsLastAsyncCall owner加上当前正在执行的回调共两个持有者
func (s *Shared) IsLastAsyncCall() bool {
	return s.refs.Load() <= 2
}

func (s *Shared) SetAsyncCalling(bool) {}

func (s *Shared) Acquire() func() {
	s.refs.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { s.refs.Add(-1) })
	}
}

// Holders 当前持有者数量, 包括owner
func (s *Shared) Holders() int64 {
	return s.refs.Load()
}

// Flag 只能区分有没有, 不能区分是不是最后一个
type Flag struct {
	calling atomic.Bool
}

func NewFlag() *Flag {
	return &Flag{}
}

func (f *Flag) IsAsyncCalling() bool {
	return f.calling.Load()
}

func (f *Flag) IsLastAsyncCall() bool {
	return true
}

func (f *Flag) SetAsyncCalling(v bool) {
	f.calling.Store(v)
}

func (f *Flag) Acquire() func() {
	return func() {}
}

// WaitIdle 在回调之外轮询, 直到没有挂起的回调或ctx结束
func WaitIdle(ctx context.Context, t Tracker, poll time.Duration) error {
	if !t.IsAsyncCalling() {
		return nil
	}
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !t.IsAsyncCalling() {
				return nil
			}
		}
	}
}
