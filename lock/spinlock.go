package lock

import (
	"runtime"
	"sync"
	"sync/atomic"
)

const maxBackoff = 16

// SpinLock 适合极短的临界区(队列push/pop), 零值可用
type SpinLock struct {
	v atomic.Uint32
}

func (sl *SpinLock) Lock() {
	backoff := 1
	for !sl.v.CompareAndSwap(0, 1) {
		// 指数退避
		for i := 0; i < backoff; i++ {
			runtime.Gosched()
		}
		if backoff < maxBackoff {
			backoff <<= 1
		}
	}
}

func (sl *SpinLock) TryLock() bool {
	return sl.v.CompareAndSwap(0, 1)
}

func (sl *SpinLock) Unlock() {
	sl.v.Store(0)
}

func NewSpinLock() sync.Locker {
	return new(SpinLock)
}
