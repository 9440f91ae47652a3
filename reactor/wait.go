package reactor

import (
	"errors"
	"sync"
	"time"
)

var errNilHandler = errors.New("reactor: nil wait handler")

type armToken struct {
	w   *wait
	gen uint64
}

// wait 时间轮上的单次等待. gen每次arm/cancel都会变化, 时间轮送来的旧通知据此丢弃
type wait struct {
	r       *Reactor
	mu      sync.Mutex
	gen     uint64
	clockId int64
	handler func(error)
}

func (w *wait) Arm(d time.Duration, h func(error)) error {
	if h == nil {
		return errNilHandler
	}
	if d < 0 {
		d = 0
	}
	w.mu.Lock()
	// 覆盖上一次arm
	old, err := w.cancelLocked()
	if err != nil {
		w.r.log.Debugf("supersede wait: %v", err)
	}
	err = w.armLocked(d, h)
	w.mu.Unlock()

	if old != nil {
		w.r.complete(old, ErrCanceled)
	}
	return err
}

func (w *wait) armLocked(d time.Duration, h func(error)) error {
	if !w.r.track(w) {
		return ErrClosed
	}
	w.gen++
	when := time.Now().Add(d).UnixMilli()
	id, err := w.r.clock.NewTimer(when, &armToken{w: w, gen: w.gen}, w.r.fired)
	if err != nil {
		w.r.untrack(w)
		return err
	}
	w.clockId = id
	w.handler = h
	return nil
}

func (w *wait) Cancel() error {
	w.mu.Lock()
	h, err := w.cancelLocked()
	w.mu.Unlock()
	if h != nil {
		w.r.complete(h, ErrCanceled)
	}
	return err
}

// cancelLocked 摘下未完成的handler, 由调用方在解锁后投递
func (w *wait) cancelLocked() (func(error), error) {
	h := w.handler
	if h == nil {
		return nil, nil
	}
	w.handler = nil
	w.gen++
	w.r.untrack(w)
	// 已经触发的通知会因为gen不匹配被丢弃, 所以忽略ok
	_, err := w.r.clock.CancelTimer(w.clockId)
	w.clockId = 0
	if errors.Is(err, ErrClosed) {
		err = nil
	}
	return h, err
}

// fire loop协程收到时间轮通知
func (w *wait) fire(gen uint64) {
	w.mu.Lock()
	if w.gen != gen || w.handler == nil {
		w.mu.Unlock()
		return
	}
	h := w.handler
	w.handler = nil
	w.clockId = 0
	w.r.untrack(w)
	w.mu.Unlock()

	w.r.complete(h, nil)
}

// abort reactor关闭时结束未触发的等待
func (w *wait) abort(err error) {
	w.mu.Lock()
	h := w.handler
	w.handler = nil
	w.gen++
	w.mu.Unlock()
	if h != nil {
		w.r.exec(func() { h(err) })
	}
}
