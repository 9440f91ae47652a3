package reactor

import (
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/fixkme/gotimer/clock"
	"github.com/fixkme/gotimer/lock"
	"github.com/fixkme/gotimer/mlog"
	"github.com/panjf2000/ants/v2"
)

const (
	stateNone int32 = iota
	stateRunning
	stateClosed
)

// Reactor 时间轮负责延时, ants协程池执行回调.
// 投递的任务先进无界队列, 由loop协程转交给池, 调用方永远不会因为池满而阻塞.
type Reactor struct {
	opt   *Options
	log   *mlog.Tagged
	clock *clock.Clock
	pool  *ants.Pool
	fired chan *clock.Promise

	lock    lock.SpinLock
	pending *queue.Queue
	notify  chan struct{}

	armedMu sync.Mutex
	armed   map[*wait]struct{}
	sealed  bool

	state atomic.Int32
	quit  chan struct{}
	wg    sync.WaitGroup
}

var _ Binding = (*Reactor)(nil)

func New(opts ...Option) (*Reactor, error) {
	o := loadOptions(opts...)
	r := &Reactor{
		opt:     o,
		log:     mlog.With(o.Name),
		clock:   clock.NewClock(o.TickMs),
		fired:   make(chan *clock.Promise, o.FiredSize),
		pending: queue.New(),
		notify:  make(chan struct{}, 1),
		armed:   make(map[*wait]struct{}),
		quit:    make(chan struct{}),
	}
	if r.opt.PanicHandler == nil {
		r.opt.PanicHandler = func(p any) {
			r.log.Errorf("task panic: %v\n%s", p, debug.Stack())
		}
	}
	pool, err := ants.NewPool(o.Workers, ants.WithPanicHandler(r.opt.PanicHandler))
	if err != nil {
		return nil, err
	}
	r.pool = pool
	return r, nil
}

func (r *Reactor) Name() string {
	return r.opt.Name
}

func (r *Reactor) Start() {
	if !r.state.CompareAndSwap(stateNone, stateRunning) {
		return
	}
	r.clock.Start(r.quit)
	r.wg.Add(1)
	go r.loop()
	r.log.Infof("started, workers:%d, tick:%dms", r.opt.Workers, r.opt.TickMs)
}

// Close 停止时间轮, 未触发的等待以ErrClosed结束, 已投递的任务在当前协程执行完
func (r *Reactor) Close() {
	r.lock.Lock()
	if r.state.Load() != stateRunning {
		r.state.Store(stateClosed)
		r.lock.Unlock()
		r.pool.Release()
		return
	}
	r.state.Store(stateClosed)
	r.lock.Unlock()

	close(r.quit)
	r.wg.Wait()
	<-r.clock.Done()

	for _, w := range r.sealArmed() {
		w.abort(ErrClosed)
	}
	for {
		r.lock.Lock()
		if r.pending.Length() == 0 {
			r.lock.Unlock()
			break
		}
		task := r.pending.Remove().(func())
		r.lock.Unlock()
		r.exec(task)
	}
	if err := r.pool.ReleaseTimeout(3 * time.Second); err != nil {
		r.log.Warnf("release pool: %v", err)
	}
	r.log.Infof("closed")
}

func (r *Reactor) Stopped() bool {
	return r.state.Load() != stateRunning
}

func (r *Reactor) Post(fn func()) error {
	return r.enqueue(fn)
}

// Defer 与Post相同, 任务排在已投递的任务之后
func (r *Reactor) Defer(fn func()) error {
	return r.enqueue(fn)
}

// Dispatch 在调用方协程直接执行
func (r *Reactor) Dispatch(fn func()) error {
	if r.Stopped() {
		return ErrClosed
	}
	r.exec(fn)
	return nil
}

func (r *Reactor) NewWaiter() Waiter {
	return &wait{r: r}
}

func (r *Reactor) NewStrand() Executor {
	return newStrand(r)
}

func (r *Reactor) enqueue(task func()) error {
	r.lock.Lock()
	switch r.state.Load() {
	case stateNone:
		r.lock.Unlock()
		return ErrNotStarted
	case stateClosed:
		r.lock.Unlock()
		return ErrClosed
	}
	r.pending.Add(task)
	r.lock.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
	return nil
}

// complete 完成回调不能丢, 否则持有的活动计数永远不会释放
func (r *Reactor) complete(h func(error), err error) {
	task := func() { h(err) }
	if r.enqueue(task) != nil {
		r.exec(task)
	}
}

func (r *Reactor) exec(task func()) {
	defer func() {
		if p := recover(); p != nil {
			r.opt.PanicHandler(p)
		}
	}()
	task()
}

func (r *Reactor) loop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.quit:
			return
		case p := <-r.fired:
			if tk, ok := p.Data.(*armToken); ok {
				tk.w.fire(tk.gen)
			}
		case <-r.notify:
			r.flush()
		}
	}
}

func (r *Reactor) flush() {
	for {
		r.lock.Lock()
		if r.pending.Length() == 0 {
			r.lock.Unlock()
			return
		}
		task := r.pending.Remove().(func())
		r.lock.Unlock()
		if err := r.pool.Submit(func() { r.exec(task) }); err != nil {
			// 池已关闭
			r.exec(task)
		}
	}
}

func (r *Reactor) track(w *wait) bool {
	r.armedMu.Lock()
	defer r.armedMu.Unlock()
	if r.sealed {
		return false
	}
	r.armed[w] = struct{}{}
	return true
}

func (r *Reactor) untrack(w *wait) {
	r.armedMu.Lock()
	delete(r.armed, w)
	r.armedMu.Unlock()
}

func (r *Reactor) sealArmed() []*wait {
	r.armedMu.Lock()
	defer r.armedMu.Unlock()
	r.sealed = true
	ws := make([]*wait, 0, len(r.armed))
	for w := range r.armed {
		ws = append(ws, w)
	}
	return ws
}
