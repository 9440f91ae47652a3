package timer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fixkme/gotimer/reactor"
	"github.com/fixkme/gotimer/tracker"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("github.com/panjf2000/ants/v2.(*poolCommon).purgeStaleWorkers"),
		goleak.IgnoreAnyFunction("github.com/panjf2000/ants/v2.(*poolCommon).ticktock"),
		goleak.IgnoreAnyFunction("github.com/panjf2000/ants/v2.(*goWorker).run.func1"),
	)
}

func newReactor(t *testing.T) *reactor.Reactor {
	t.Helper()
	r, err := reactor.New(reactor.WithWorkers(8), reactor.WithTick(1))
	require.NoError(t, err)
	r.Start()
	t.Cleanup(r.Close)
	return r
}

func waitIdle(t *testing.T, tr tracker.Tracker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tracker.WaitIdle(ctx, tr, time.Millisecond))
}

func TestRealReactorFirings(t *testing.T) {
	rc := newReactor(t)
	tr := tracker.NewShared()
	r := NewRegistry(rc, tr)

	const timers = 32
	var counts [timers]atomic.Int32
	for i := 0; i < timers; i++ {
		id := ID(i)
		require.True(t, r.SetTimer(id, uint32(i%5+1), func(id ID) bool {
			return counts[id].Add(1) < 3
		}))
	}
	waitIdle(t, tr)
	for i := range counts {
		require.Equal(t, int32(3), counts[i].Load(), "timer %d", i)
	}
	r.DoSomethingToAll(func(ti *Info) {
		require.Equal(t, Canceled, ti.Status())
	})
}

// StopAllTimer与新建定时器并发, 结束后记录集合保持一致
func TestStopAllVersusCreate(t *testing.T) {
	rc := newReactor(t)
	tr := tracker.NewShared()
	r := NewRegistry(rc, tr)

	var stopping atomic.Bool
	cb := func(ID) bool { return !stopping.Load() }

	const created = 200
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < created; i++ {
			r.CreateOrUpdateTimer(ID(i), uint32(i%3+1), cb, true)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			r.StopAllTimer()
			time.Sleep(100 * time.Microsecond)
		}
	}()
	wg.Wait()

	stopping.Store(true)
	r.StopAllTimer()
	waitIdle(t, tr)

	require.Equal(t, created, r.Len())
	seen := make(map[ID]struct{}, created)
	r.DoSomethingToAll(func(ti *Info) {
		_, dup := seen[ti.ID()]
		require.False(t, dup)
		seen[ti.ID()] = struct{}{}
		require.NotEqual(t, Started, ti.Status(), "timer %d", ti.ID())
		require.Equal(t, ti, r.index[ti.ID()])
	})
	require.False(t, tr.IsAsyncCalling())
}

// 一个定时器的回调阻塞时, 其他id照常触发, 对它们的操作也不会被阻塞
func TestBlockedCallbackIsolation(t *testing.T) {
	rc := newReactor(t)
	tr := tracker.NewShared()
	r := NewRegistry(rc, tr)

	entered := make(chan struct{})
	release := make(chan struct{})
	enter := sync.OnceFunc(func() { close(entered) })
	unblock := sync.OnceFunc(func() { close(release) })
	t.Cleanup(unblock)

	require.True(t, r.SetTimer(1, 1, func(ID) bool {
		enter()
		<-release
		return false
	}))
	var stopping atomic.Bool
	var fired atomic.Int32
	require.True(t, r.SetTimer(2, 1, func(ID) bool {
		fired.Add(1)
		return !stopping.Load()
	}))

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("timer 1 not fired")
	}
	base := fired.Load()
	require.Eventually(t, func() bool { return fired.Load() >= base+5 }, 2*time.Second, time.Millisecond)

	var changed, started bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		changed = r.ChangeTimerInterval(2, 2)
		r.StopTimer(2)
		started = r.StartTimer(2)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("operations on timer 2 blocked by timer 1")
	}
	require.True(t, changed)
	require.True(t, started)
	require.Equal(t, uint32(2), r.FindTimer(2).Interval())
	// 阻塞中的定时器状态不变
	require.True(t, r.IsTimer(1))

	base = fired.Load()
	require.Eventually(t, func() bool { return fired.Load() >= base+3 }, 2*time.Second, time.Millisecond)

	stopping.Store(true)
	r.StopTimer(2)
	unblock()
	waitIdle(t, tr)
	require.False(t, r.IsTimer(1))
	require.False(t, r.IsTimer(2))
}
