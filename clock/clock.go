package clock

import (
	"sync/atomic"
	"time"

	"github.com/fixkme/gotimer/errs"
	"github.com/fixkme/gotimer/mlog"
)

const (
	DefaultTickMs     = 10 // ms
	_TIME_WHEEL_LEVEL = 4
	_TASK_CHAN_SIZE   = 10240
)

var (
	_LEVEL_DIVIS = [_TIME_WHEEL_LEVEL]int64{0, 10, 18, 24}
	_LEVEL_SLOTS = [_TIME_WHEEL_LEVEL]int64{1 << 10, 1 << 8, 1 << 6, 1 << 6}
	_LEVEL_MASKS = [_TIME_WHEEL_LEVEL]int64{}
	_LEVEL_TICKS = [_TIME_WHEEL_LEVEL]int64{}
)

var (
	ErrClosed     = errs.ReactorClosed.Print("clock closed")
	ErrNotStarted = errs.ReactorClosed.Print("clock not started")
	ErrTaskFull   = errs.Overload.Print("clock task chan full")
)

func init() {
	for i := 0; i < _TIME_WHEEL_LEVEL; i++ {
		_LEVEL_MASKS[i] = _LEVEL_SLOTS[i] - 1
		if i > 0 {
			_LEVEL_TICKS[i] = _LEVEL_SLOTS[i] * _LEVEL_TICKS[i-1]
		} else {
			_LEVEL_TICKS[i] = _LEVEL_SLOTS[i]
		}
	}
}

// Clock 多层时间轮, 所有状态只在run协程内修改, 外部操作通过taskch投递
type Clock struct {
	genId    int64
	tickMs   int64
	lastTime int64
	slot     [_TIME_WHEEL_LEVEL]int64 //每层的指针位置
	tw       [_TIME_WHEEL_LEVEL]timeWheel
	taskch   chan func()
	locs     map[int64]*_Timer //记录位置
	started  atomic.Bool
	closed   atomic.Bool
	stopped  chan struct{}
}

type timeWheel []*_List

func NewClock(tickMs int64) *Clock {
	if tickMs <= 0 {
		tickMs = DefaultTickMs
	}
	c := &Clock{
		tickMs:  tickMs,
		taskch:  make(chan func(), _TASK_CHAN_SIZE),
		locs:    make(map[int64]*_Timer),
		stopped: make(chan struct{}),
	}
	for i := 0; i < _TIME_WHEEL_LEVEL; i++ {
		c.tw[i] = make(timeWheel, _LEVEL_SLOTS[i])
	}
	return c
}

func (c *Clock) Start(quit <-chan struct{}) {
	if c.started.Swap(true) {
		return
	}
	c.lastTime = time.Now().UnixMilli()
	go c.run(quit)
}

// Done run协程退出后关闭
func (c *Clock) Done() <-chan struct{} {
	return c.stopped
}

func (c *Clock) TickMs() int64 {
	return c.tickMs
}

// NewTimer when为到期的毫秒时间戳, 到期后Promise投递到receiver
func (c *Clock) NewTimer(when int64, data any, receiver chan<- *Promise) (id int64, err error) {
	t := &_Timer{
		when:     when,
		data:     data,
		receiver: receiver,
	}
	err = c.pushTask(func() {
		c.genId++
		t.id = c.genId
		c.addTimer(t)
		id = t.id
	})
	return
}

// CancelTimer ok为false表示定时器已经触发或不存在
func (c *Clock) CancelTimer(id int64) (ok bool, err error) {
	err = c.pushTask(func() {
		t := c.delTimer(id)
		ok = t != nil
	})
	return
}

func (c *Clock) UpdateTimer(id int64, when int64) (ok bool, err error) {
	err = c.pushTask(func() {
		ok = c.updateTimer(id, when)
	})
	return
}

// Len 未触发的定时器数量
func (c *Clock) Len() (n int, err error) {
	err = c.pushTask(func() {
		n = len(c.locs)
	})
	return
}

func (c *Clock) locate(ticks int64) (level, slot int64) {
	for level = 0; level < _TIME_WHEEL_LEVEL; level++ {
		if ticks < _LEVEL_TICKS[level] {
			slot = ((ticks >> _LEVEL_DIVIS[level]) + c.slot[level]) & _LEVEL_MASKS[level]
			return
		}
	}
	// 超出最高层, 放在最远的槽, 转到时重新计算
	level = _TIME_WHEEL_LEVEL - 1
	slot = (c.slot[level] + _LEVEL_MASKS[level]) & _LEVEL_MASKS[level]
	return
}

func (c *Clock) addTimer(timer *_Timer) {
	ticks := (timer.when - c.lastTime + c.tickMs - 1) / c.tickMs //diff 向上取整
	if ticks <= 0 {
		ticks = 1
	}
	level, slot := c.locate(ticks)
	mlog.Tracef("clock add timer [%d, %d, %d], when=%d, lastTime=%d, ticks:%d", timer.id, level, slot, timer.when, c.lastTime, ticks)
	c.putTimer(level, slot, timer)
}

func (c *Clock) putTimer(level, slot int64, timer *_Timer) {
	timerList := c.tw[level][slot]
	if timerList == nil {
		timerList = newTimerList()
		c.tw[level][slot] = timerList
	}
	timerList.PushBack(timer)
	c.locs[timer.id] = timer
}

func (c *Clock) delTimer(id int64) *_Timer {
	timer, ok := c.locs[id]
	if ok {
		timer.removeFromList()
		delete(c.locs, id)
		return timer
	}
	return nil
}

func (c *Clock) updateTimer(id int64, when int64) bool {
	t := c.delTimer(id)
	if t != nil {
		t.when = when
		c.addTimer(t)
		return true
	}
	return false
}

func (c *Clock) trigger(nowMs int64) {
	timerList := c.tw[0][c.slot[0]]
	if timerList == nil {
		return
	}
	timerList.PopRange(func(timer *_Timer) bool {
		delete(c.locs, timer.id)
		if timer.when > nowMs {
			// 重新加入时间轮, 一般是下一次tick
			c.addTimer(timer)
			return true
		}
		promise := &Promise{TimerId: timer.id, NowTs: nowMs, Data: timer.data}
		select {
		case timer.receiver <- promise:
			mlog.Tracef("clock trigger id:%d, when:%d, now:%d", timer.id, timer.when, nowMs)
		default:
			// 接收方满了, 放入下一个tick
			c.putTimer(0, (c.slot[0]+1)&_LEVEL_MASKS[0], timer)
		}
		return true
	})
}

func (c *Clock) tick(nowMs, tkTime int64) {
	c.slot[0] = (c.slot[0] + 1) & _LEVEL_MASKS[0]
	// 0层触发定时器
	c.trigger(nowMs)
	// 高层轮动
	for i := 1; i < _TIME_WHEEL_LEVEL; i++ {
		if c.slot[i-1] != 0 {
			break
		}
		c.slot[i] = (c.slot[i] + 1) & _LEVEL_MASKS[i]
		timerList := c.tw[i][c.slot[i]]
		if timerList == nil {
			continue
		}
		timerList.PopRange(func(timer *_Timer) bool {
			//加入到下一层
			ticks := (timer.when - tkTime + c.tickMs - 1) / c.tickMs
			if ticks <= 0 {
				ticks = 1
			}
			level, slot := c.locate(ticks)
			c.putTimer(level, slot, timer)
			return true
		})
	}
}

func (c *Clock) run(quit <-chan struct{}) {
	defer close(c.stopped)
	tickSpan := time.Duration(c.tickMs) * time.Millisecond
	ticker := time.NewTicker(tickSpan)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			c.closed.Store(true)
			return
		case <-ticker.C:
			nowMs := time.Now().UnixMilli()
			tk := c.lastTime + c.tickMs
			c.lastTime += c.tickMs * ((nowMs - c.lastTime) / c.tickMs)
			for ; tk <= c.lastTime; tk += c.tickMs {
				c.tick(nowMs, tk)
			}
		case fn := <-c.taskch:
			fn()
		}
	}
}

func (c *Clock) pushTask(f func()) error {
	if !c.started.Load() {
		return ErrNotStarted
	}
	if c.closed.Load() {
		return ErrClosed
	}
	done := make(chan struct{})
	ff := func() {
		defer close(done)
		f()
	}
	select {
	case c.taskch <- ff:
	case <-c.stopped:
		return ErrClosed
	default:
		return ErrTaskFull
	}
	select {
	case <-done:
		return nil
	case <-c.stopped:
		return ErrClosed
	}
}
