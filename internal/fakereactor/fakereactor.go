// Package fakereactor is a deterministic reactor.Binding for tests. Nothing
// runs until the test drives it: Fire completes a pending wait, Run executes
// queued completions and tasks on the calling goroutine.
package fakereactor

import (
	"sync"
	"time"

	"github.com/fixkme/gotimer/reactor"
)

type Reactor struct {
	mu      sync.Mutex
	queue   []func()
	waiters []*Waiter
	closed  bool
}

var _ reactor.Binding = (*Reactor)(nil)

func New() *Reactor {
	return &Reactor{}
}

func (r *Reactor) push(fn func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return reactor.ErrClosed
	}
	r.queue = append(r.queue, fn)
	return nil
}

func (r *Reactor) Post(fn func()) error {
	return r.push(fn)
}

func (r *Reactor) Defer(fn func()) error {
	return r.push(fn)
}

func (r *Reactor) Dispatch(fn func()) error {
	if r.Stopped() {
		return reactor.ErrClosed
	}
	fn()
	return nil
}

func (r *Reactor) NewStrand() reactor.Executor {
	return r
}

func (r *Reactor) Stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Reactor) NewWaiter() reactor.Waiter {
	w := &Waiter{r: r}
	r.mu.Lock()
	r.waiters = append(r.waiters, w)
	r.mu.Unlock()
	return w
}

// Waiters 按创建顺序
func (r *Reactor) Waiters() []*Waiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Waiter(nil), r.waiters...)
}

// Queued 排队中的任务数
func (r *Reactor) Queued() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// RunOne 执行队首任务
func (r *Reactor) RunOne() bool {
	r.mu.Lock()
	if len(r.queue) == 0 {
		r.mu.Unlock()
		return false
	}
	fn := r.queue[0]
	r.queue = r.queue[1:]
	r.mu.Unlock()
	fn()
	return true
}

// Run 执行到队列为空, 返回执行数量
func (r *Reactor) Run() int {
	n := 0
	for r.RunOne() {
		n++
	}
	return n
}

// Close 未完成的等待以ErrClosed排队
func (r *Reactor) Close() {
	r.mu.Lock()
	ws := r.waiters
	r.mu.Unlock()
	for _, w := range ws {
		w.complete(reactor.ErrClosed)
	}
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

type Waiter struct {
	r       *Reactor
	mu      sync.Mutex
	handler func(error)
	armed   []time.Duration
	cancels int
	armErr  error
}

// FailNextArm 下一次Arm返回err
func (w *Waiter) FailNextArm(err error) {
	w.mu.Lock()
	w.armErr = err
	w.mu.Unlock()
}

func (w *Waiter) Arm(d time.Duration, h func(error)) error {
	if w.r.Stopped() {
		return reactor.ErrClosed
	}
	w.mu.Lock()
	if err := w.armErr; err != nil {
		w.armErr = nil
		w.mu.Unlock()
		return err
	}
	old := w.handler
	w.handler = h
	w.armed = append(w.armed, d)
	w.mu.Unlock()
	if old != nil {
		w.r.push(func() { old(reactor.ErrCanceled) })
	}
	return nil
}

func (w *Waiter) Cancel() error {
	w.mu.Lock()
	w.cancels++
	w.mu.Unlock()
	w.complete(reactor.ErrCanceled)
	return nil
}

// Fire 模拟到期: 完成回调排队, 需要Run才执行
func (w *Waiter) Fire() bool {
	return w.complete(nil)
}

// FireWith 模拟带错误的完成
func (w *Waiter) FireWith(err error) bool {
	return w.complete(err)
}

func (w *Waiter) complete(err error) bool {
	w.mu.Lock()
	h := w.handler
	w.handler = nil
	w.mu.Unlock()
	if h == nil {
		return false
	}
	if w.r.push(func() { h(err) }) != nil {
		h(err)
	}
	return true
}

func (w *Waiter) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handler != nil
}

// Armed 每次Arm的时长
func (w *Waiter) Armed() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.armed...)
}

func (w *Waiter) Cancels() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancels
}
