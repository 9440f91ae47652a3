package reactor

import (
	"github.com/eapache/queue"
	"github.com/fixkme/gotimer/lock"
)

// Strand 串行执行域: 任务按投递顺序执行, 同一时刻最多一个在跑, 但不独占协程
type Strand struct {
	r       *Reactor
	lock    lock.SpinLock
	tasks   *queue.Queue
	running bool
}

func newStrand(r *Reactor) *Strand {
	return &Strand{r: r, tasks: queue.New()}
}

func (s *Strand) Post(fn func()) error {
	if s.r.Stopped() {
		return ErrClosed
	}
	s.lock.Lock()
	s.tasks.Add(fn)
	if s.running {
		s.lock.Unlock()
		return nil
	}
	s.running = true
	s.lock.Unlock()

	if err := s.r.enqueue(s.drain); err != nil {
		// reactor刚关闭, 已接收的任务就地执行完
		s.drain()
	}
	return nil
}

func (s *Strand) Defer(fn func()) error {
	return s.Post(fn)
}

// Dispatch 串行域里无法判断调用方是否已在域内, 按Post处理
func (s *Strand) Dispatch(fn func()) error {
	return s.Post(fn)
}

func (s *Strand) drain() {
	for {
		s.lock.Lock()
		if s.tasks.Length() == 0 {
			s.running = false
			s.lock.Unlock()
			return
		}
		fn := s.tasks.Remove().(func())
		s.lock.Unlock()
		s.r.exec(fn)
	}
}
