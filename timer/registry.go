// Package timer multiplexes independently named timers onto single-shot
// reactor waits.
//
// Operations on distinct ids are safe to call concurrently. Operations on the
// same id must be serialized by the caller; the registry deliberately does
// not lock a record, only the id index. For one timer, completions are
// delivered one after another (the next arm happens after the previous
// callback returned), possibly on different goroutines over time. Callbacks
// of distinct timers may run concurrently.
package timer

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/fixkme/gotimer/errs"
	"github.com/fixkme/gotimer/mlog"
	"github.com/fixkme/gotimer/reactor"
	"github.com/fixkme/gotimer/tracker"
)

type Registry struct {
	opt     *Options
	binding reactor.Binding
	tracker tracker.Tracker
	log     *mlog.Tagged

	mu     sync.Mutex // 只保护timers/index的结构, 不在回调期间持有
	timers []*Info
	index  map[ID]*Info
}

// NewRegistry t为nil时等待不计入活动计数
func NewRegistry(b reactor.Binding, t tracker.Tracker, opts ...Option) *Registry {
	o := loadOptions(opts...)
	return &Registry{
		opt:     o,
		binding: b,
		tracker: t,
		log:     mlog.With(o.Name),
		index:   make(map[ID]*Info),
	}
}

// CreateOrUpdateTimer 回调被移入记录, 需要保留所有权时请用Take转移.
// 返回值表示记录是否可用, start失败只记日志.
func (r *Registry) CreateOrUpdateTimer(id ID, intervalMs uint32, cb Callback, start bool) bool {
	ti, err := r.findOrCreate(id)
	if err != nil {
		r.log.Errorf("cannot create timer %d (%v)", id, err)
		return false
	}
	ti.interval.Store(intervalMs)
	ti.setCallback(cb)
	if start {
		r.startTimer(ti, intervalMs)
	}
	return true
}

// SetTimer 创建并启动
func (r *Registry) SetTimer(id ID, intervalMs uint32, cb Callback) bool {
	return r.CreateOrUpdateTimer(id, intervalMs, cb, true)
}

func (r *Registry) ChangeTimerStatus(id ID, status Status) bool {
	ti := r.FindTimer(id)
	if ti == nil {
		return false
	}
	ti.setStatus(status)
	return true
}

// ChangeTimerInterval 下次arm生效
func (r *Registry) ChangeTimerInterval(id ID, intervalMs uint32) bool {
	ti := r.FindTimer(id)
	if ti == nil {
		return false
	}
	ti.interval.Store(intervalMs)
	return true
}

func (r *Registry) ChangeTimerCallBack(id ID, cb Callback) bool {
	ti := r.FindTimer(id)
	if ti == nil {
		return false
	}
	ti.setCallback(cb)
	return true
}

func (r *Registry) FindTimer(id ID) *Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index[id]
}

func (r *Registry) IsTimer(id ID) bool {
	ti := r.FindTimer(id)
	return ti != nil && ti.Status() == Started
}

// StartTimer 已经在跑的定时器会被重新arm, 旧的完成通知被丢弃
func (r *Registry) StartTimer(id ID) bool {
	ti := r.FindTimer(id)
	if ti == nil {
		r.log.Debugf("start timer %d: %v", id, errs.UnknownTimer)
		return false
	}
	return r.startTimer(ti, ti.Interval())
}

// StopTimer 对没有启动的定时器是空操作
func (r *Registry) StopTimer(id ID) {
	if ti := r.FindTimer(id); ti != nil {
		r.stopTimer(ti)
	}
}

// StopAllTimer 在锁内复制记录列表, 取消等待在锁外进行
func (r *Registry) StopAllTimer() {
	for _, ti := range r.records() {
		r.stopTimer(ti)
	}
}

func (r *Registry) StopAllTimerExcept(exceptedId ID) {
	for _, ti := range r.records() {
		if ti.id != exceptedId {
			r.stopTimer(ti)
		}
	}
}

// DoSomethingToAll 持有结构锁遍历, pred里不能再调用Registry上需要查找id的方法
func (r *Registry) DoSomethingToAll(pred func(ti *Info)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ti := range r.timers {
		pred(ti)
	}
}

// DoSomethingToOne pred返回true时停止遍历
func (r *Registry) DoSomethingToOne(pred func(ti *Info) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ti := range r.timers {
		if pred(ti) {
			return
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Close owner销毁前调用
func (r *Registry) Close() {
	r.StopAllTimer()
}

// records 记录只增不删, 复制出的指针一直有效
func (r *Registry) records() []*Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Info(nil), r.timers...)
}

func (r *Registry) findOrCreate(id ID) (ti *Info, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ti = r.index[id]; ti != nil {
		return ti, nil
	}
	if len(r.timers) >= r.opt.MaxTimers {
		return nil, errs.ResourceExhausted.Printf("max timers %d", r.opt.MaxTimers)
	}
	defer func() {
		if p := recover(); p != nil {
			ti = nil
			err = errs.ResourceExhausted.Print(fmt.Sprint(p))
		}
	}()
	ti = newInfo(id, r.binding.NewWaiter())
	r.timers = append(r.timers, ti)
	r.index[id] = ti
	return ti, nil
}

func (r *Registry) acquire() func() {
	if r.tracker == nil {
		return func() {}
	}
	return r.tracker.Acquire()
}

func (r *Registry) startTimer(ti *Info, intervalMs uint32) bool {
	if !ti.HasCallback() {
		r.log.Debugf("start timer %d: %v", ti.id, errs.NoCallback)
		return false
	}
	// 先置状态再arm, 完成通知可能在Arm返回前就到达
	ti.setStatus(Started)
	seq := ti.seq.Add(1)
	release := r.acquire()
	err := ti.wait.Arm(time.Duration(intervalMs)*time.Millisecond, func(err error) {
		defer release()
		r.onTimer(err, ti, seq)
	})
	if err != nil {
		release()
		if ti.seq.Load() == seq {
			ti.setStatus(Canceled)
		}
		r.log.Errorf("cannot start timer %d (%v)", ti.id, err)
		return false
	}
	return true
}

func (r *Registry) stopTimer(ti *Info) {
	if ti.Status() != Started {
		return
	}
	if err := ti.wait.Cancel(); err != nil {
		r.log.Errorf("cannot stop timer %d (%v)", ti.id, err)
	}
	ti.setStatus(Canceled)
}

// onTimer 完成通知, 不持有结构锁
func (r *Registry) onTimer(err error, ti *Info, prevSeq uint32) {
	// 取消或已被更新的一代覆盖, 静默丢弃
	if errors.Is(err, reactor.ErrCanceled) || prevSeq != ti.seq.Load() {
		return
	}
	if err != nil {
		if errors.Is(err, reactor.ErrClosed) {
			r.log.Debugf("timer %d stopped by reactor shutdown", ti.id)
		} else {
			r.log.Warnf("timer %d: %v", ti.id, errs.ReactorError.Print(err.Error()))
		}
	} else {
		begin := r.opt.Now()
		if r.invoke(ti) && ti.Status() == Started {
			// 回调里重启了自己, 新的一代已经arm
			if prevSeq != ti.seq.Load() {
				return
			}
			interval := ti.Interval()
			if r.opt.Aligned {
				interval = NextInterval(interval, r.opt.Now().Sub(begin))
			}
			r.startTimer(ti, interval)
			return
		}
	}
	// 排除回调里重启了自己又返回false的情况
	if prevSeq == ti.seq.Load() {
		ti.setStatus(Canceled)
	}
}

func (r *Registry) invoke(ti *Info) (ok bool) {
	cb := ti.loadCallback()
	if cb == nil {
		return false
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Errorf("timer %d callback panic: %v\n%s", ti.id, p, debug.Stack())
			ok = false
		}
	}()
	return cb(ti.id)
}

// NextInterval 对齐模式下的下次间隔: 扣除已耗时间, 超过一个周期时取模, 结果不会为负
func NextInterval(intervalMs uint32, elapsed time.Duration) uint32 {
	if intervalMs == 0 || elapsed <= 0 {
		return intervalMs
	}
	elapsedMs := uint64(elapsed / time.Millisecond)
	if elapsedMs > uint64(intervalMs) {
		elapsedMs %= uint64(intervalMs)
	}
	return intervalMs - uint32(elapsedMs)
}
