package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fixkme/gotimer/mlog"
	"github.com/fixkme/gotimer/reactor"
	"github.com/fixkme/gotimer/timer"
	"github.com/fixkme/gotimer/tracker"
	"github.com/rs/xid"
)

const TimerReclaim = timer.TimerEnd

// Pool 管理在线会话. 移除的会话先进入待回收列表,
// 由回收定时器在它不再有异步调用时释放
type Pool struct {
	log       *mlog.Tagged
	timers    *timer.Registry
	reclaimMs uint32

	mu      sync.Mutex
	live    map[xid.ID]*Session
	closing []*Session

	reclaimed atomic.Uint64
}

func NewPool(b reactor.Binding, reclaimMs uint32) *Pool {
	if reclaimMs == 0 {
		reclaimMs = 1000
	}
	p := &Pool{
		log:       mlog.With("session-pool"),
		timers:    timer.NewRegistry(b, nil, timer.WithName("session-pool")),
		reclaimMs: reclaimMs,
		live:      make(map[xid.ID]*Session),
	}
	p.timers.CreateOrUpdateTimer(TimerReclaim, reclaimMs, p.reclaim, false)
	return p
}

// Start 开始周期回收, reactor需要已经启动
func (p *Pool) Start() bool {
	return p.timers.StartTimer(TimerReclaim)
}

func (p *Pool) Add(s *Session) {
	p.mu.Lock()
	p.live[s.ID()] = s
	p.mu.Unlock()
}

func (p *Pool) Get(id xid.ID) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live[id]
}

// Remove 关闭会话并放入待回收列表
func (p *Pool) Remove(id xid.ID) bool {
	p.mu.Lock()
	s, ok := p.live[id]
	if ok {
		delete(p.live, id)
		p.closing = append(p.closing, s)
	}
	p.mu.Unlock()
	if ok {
		s.Close()
	}
	return ok
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}

// Closing 待回收的数量
func (p *Pool) Closing() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.closing)
}

func (p *Pool) Reclaimed() uint64 {
	return p.reclaimed.Load()
}

func (p *Pool) reclaim(timer.ID) bool {
	p.mu.Lock()
	keep := p.closing[:0]
	var freed int
	for _, s := range p.closing {
		if s.IsAsyncCalling() {
			keep = append(keep, s)
			continue
		}
		freed++
	}
	for i := len(keep); i < len(p.closing); i++ {
		p.closing[i] = nil
	}
	p.closing = keep
	p.mu.Unlock()

	if freed > 0 {
		p.reclaimed.Add(uint64(freed))
		p.log.Debugf("reclaimed %d sessions", freed)
	}
	return true
}

// Close 关闭全部会话, 等待它们的异步调用结束
func (p *Pool) Close(ctx context.Context) error {
	p.timers.Close()

	p.mu.Lock()
	for id, s := range p.live {
		delete(p.live, id)
		p.closing = append(p.closing, s)
	}
	closing := p.closing
	p.closing = nil
	p.mu.Unlock()

	for _, s := range closing {
		s.Close()
	}
	for _, s := range closing {
		if err := tracker.WaitIdle(ctx, s.Tracker(), time.Millisecond); err != nil {
			p.log.Warnf("session %s still busy: %v", s.ID(), err)
			return err
		}
	}
	p.reclaimed.Add(uint64(len(closing)))
	p.log.Infof("closed, reclaimed %d sessions", p.reclaimed.Load())
	return nil
}
