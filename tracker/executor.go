package tracker

import (
	"github.com/fixkme/gotimer/reactor"
)

// Executor 提交到reactor的每个任务都持有一份活动计数, 任务返回时释放
type Executor struct {
	Tracker
	binding reactor.Binding
}

func NewExecutor(b reactor.Binding, t Tracker) *Executor {
	if t == nil {
		t = NewShared()
	}
	return &Executor{Tracker: t, binding: b}
}

func (e *Executor) Binding() reactor.Binding {
	return e.binding
}

func (e *Executor) Stopped() bool {
	return e.binding.Stopped()
}

func (e *Executor) Post(fn func()) error {
	return submit(e.Tracker, e.binding.Post, fn)
}

func (e *Executor) Defer(fn func()) error {
	return submit(e.Tracker, e.binding.Defer, fn)
}

func (e *Executor) Dispatch(fn func()) error {
	return submit(e.Tracker, e.binding.Dispatch, fn)
}

// Strand 返回一个带计数的串行执行域
func (e *Executor) Strand() reactor.Executor {
	return &trackedStrand{t: e.Tracker, s: e.binding.NewStrand()}
}

// MakeHandler 包装等待的完成回调. 如果等待没有arm成功, 调用方需要调用release
func (e *Executor) MakeHandler(h func(error)) (handler func(error), release func()) {
	return MakeHandler(e.Tracker, h)
}

func MakeHandler(t Tracker, h func(error)) (handler func(error), release func()) {
	release = t.Acquire()
	handler = func(err error) {
		defer release()
		h(err)
	}
	return
}

func submit(t Tracker, via func(func()) error, fn func()) error {
	release := t.Acquire()
	err := via(func() {
		defer release()
		fn()
	})
	if err != nil {
		release()
	}
	return err
}

type trackedStrand struct {
	t Tracker
	s reactor.Executor
}

func (ts *trackedStrand) Post(fn func()) error {
	return submit(ts.t, ts.s.Post, fn)
}

func (ts *trackedStrand) Defer(fn func()) error {
	return submit(ts.t, ts.s.Defer, fn)
}

func (ts *trackedStrand) Dispatch(fn func()) error {
	return submit(ts.t, ts.s.Dispatch, fn)
}
