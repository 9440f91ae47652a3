// Package session is a connection-like owner of timers: every session owns a
// tracked executor and a timer registry, and can only be reclaimed once no
// callback it scheduled is still pending.
package session

import (
	"sync"
	"sync/atomic"

	"github.com/fixkme/gotimer/mlog"
	"github.com/fixkme/gotimer/reactor"
	"github.com/fixkme/gotimer/timer"
	"github.com/fixkme/gotimer/tracker"
	"github.com/rs/xid"
)

// 会话自己的定时器id, 扩展会话的类型从TimerEnd开始分配
const (
	TimerHeartbeat = timer.TimerEnd + iota
	TimerIdle
	TimerStats
	TimerEnd
)

// Conn 会话写出和关闭所用的连接
type Conn interface {
	Send(b []byte) error
	Close() error
}

type Stats struct {
	BytesIn    uint64
	BytesOut   uint64
	Heartbeats uint64
}

type Session struct {
	id     xid.ID
	opt    *Options
	conn   Conn
	log    *mlog.Tagged
	exec   *tracker.Executor
	strand reactor.Executor // 写出串行
	timers *timer.Registry

	// flag模式: 所有投递经过strand, owner自己维护标记
	flag        *tracker.Flag
	flagMu      sync.Mutex
	flagPending int

	lastActive atomic.Int64 // unix ms
	bytesIn    atomic.Uint64
	bytesOut   atomic.Uint64
	heartbeats atomic.Uint64
	closed     atomic.Bool
}

func New(b reactor.Binding, conn Conn, opts ...Option) *Session {
	o := loadOptions(opts...)
	s := &Session{
		id:   xid.New(),
		opt:  o,
		conn: conn,
	}
	name := "session-" + s.id.String()
	s.log = mlog.With(name)
	var t tracker.Tracker
	if o.FlagTracker {
		// 定时器的等待不计入标记, 只有strand上的任务计入
		s.flag = tracker.NewFlag()
		t = s.flag
	} else {
		t = tracker.NewShared()
	}
	s.exec = tracker.NewExecutor(b, t)
	s.strand = s.exec.Strand()
	s.timers = timer.NewRegistry(b, s.exec.Tracker, timer.WithName(name), timer.WithNow(o.Now))
	s.touch()
	return s
}

func (s *Session) ID() xid.ID {
	return s.id
}

func (s *Session) Timers() *timer.Registry {
	return s.timers
}

// IsAsyncCalling 还有投递出去的回调或等待没有结束
func (s *Session) IsAsyncCalling() bool {
	return s.exec.IsAsyncCalling()
}

func (s *Session) Tracker() tracker.Tracker {
	return s.exec.Tracker
}

func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Start 启动配置了间隔的定时器
func (s *Session) Start() bool {
	ok := true
	if s.opt.HeartbeatMs > 0 {
		ok = s.arm(TimerHeartbeat, s.opt.HeartbeatMs, s.onHeartbeat) && ok
	}
	if s.opt.IdleTimeoutMs > 0 {
		ok = s.arm(TimerIdle, s.opt.IdleTimeoutMs, s.onIdle) && ok
	}
	if s.opt.StatsMs > 0 {
		ok = s.arm(TimerStats, s.opt.StatsMs, s.onStats) && ok
	}
	return ok
}

// arm SetTimer只保证记录可用, 是否真的启动要看IsTimer
func (s *Session) arm(id timer.ID, intervalMs uint32, cb timer.Callback) bool {
	return s.timers.SetTimer(id, intervalMs, cb) && s.timers.IsTimer(id)
}

// Received 回显收到的数据. b会被复制, 调用方可以复用
func (s *Session) Received(b []byte) error {
	if s.closed.Load() {
		return reactor.ErrClosed
	}
	s.touch()
	s.bytesIn.Add(uint64(len(b)))
	buf := make([]byte, len(b))
	copy(buf, b)
	return s.send(buf)
}

func (s *Session) Stats() Stats {
	return Stats{
		BytesIn:    s.bytesIn.Load(),
		BytesOut:   s.bytesOut.Load(),
		Heartbeats: s.heartbeats.Load(),
	}
}

// Close 停止所有定时器, 不关闭连接. 可以重复调用
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.timers.Close()
	s.log.Debugf("closed, %+v", s.Stats())
}

func (s *Session) touch() {
	s.lastActive.Store(s.opt.Now().UnixMilli())
}

func (s *Session) send(b []byte) error {
	return s.submit(func() {
		if s.closed.Load() {
			return
		}
		if err := s.conn.Send(b); err != nil {
			s.log.Warnf("send: %v", err)
			return
		}
		s.bytesOut.Add(uint64(len(b)))
	})
}

// submit 写出任务串行执行. flag模式下在投递前置位, 最后一个任务结束时清除
func (s *Session) submit(fn func()) error {
	if s.flag == nil {
		return s.strand.Post(fn)
	}
	s.flagMu.Lock()
	s.flagPending++
	s.flag.SetAsyncCalling(true)
	s.flagMu.Unlock()
	err := s.strand.Post(func() {
		defer s.flagDone()
		fn()
	})
	if err != nil {
		s.flagDone()
	}
	return err
}

func (s *Session) flagDone() {
	s.flagMu.Lock()
	s.flagPending--
	if s.flagPending == 0 {
		s.flag.SetAsyncCalling(false)
	}
	s.flagMu.Unlock()
}

func (s *Session) onHeartbeat(timer.ID) bool {
	if s.closed.Load() {
		return false
	}
	if err := s.send(s.opt.HeartbeatPayload); err != nil {
		return false
	}
	s.heartbeats.Add(1)
	return true
}

// onIdle 没有超时则把下次检查推迟到刚好超时的时刻
func (s *Session) onIdle(id timer.ID) bool {
	if s.closed.Load() {
		return false
	}
	idle := s.opt.Now().UnixMilli() - s.lastActive.Load()
	timeout := int64(s.opt.IdleTimeoutMs)
	if idle < timeout {
		s.timers.ChangeTimerInterval(id, uint32(timeout-idle))
		return true
	}
	s.log.Infof("idle %dms, kick", idle)
	if err := s.conn.Close(); err != nil {
		s.log.Warnf("close conn: %v", err)
	}
	s.Close()
	return false
}

func (s *Session) onStats(timer.ID) bool {
	if s.closed.Load() {
		return false
	}
	st := s.Stats()
	s.log.Debugf("in:%d out:%d heartbeats:%d", st.BytesIn, st.BytesOut, st.Heartbeats)
	return true
}
