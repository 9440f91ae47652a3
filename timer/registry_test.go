package timer

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fixkme/gotimer/internal/fakereactor"
	"github.com/fixkme/gotimer/reactor"
	"github.com/fixkme/gotimer/tracker"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type snap struct {
	ID       ID
	Status   Status
	Interval uint32
}

func snapshot(r *Registry) []snap {
	var out []snap
	r.DoSomethingToAll(func(ti *Info) {
		out = append(out, snap{ti.ID(), ti.Status(), ti.Interval()})
	})
	return out
}

func fire(t *testing.T, fr *fakereactor.Reactor, w *fakereactor.Waiter) {
	t.Helper()
	require.True(t, w.Fire())
	fr.Run()
}

func TestThreeFirings(t *testing.T) {
	fr := fakereactor.New()
	r := NewRegistry(fr, nil)
	n := 0
	require.True(t, r.SetTimer(1, 100, func(id ID) bool {
		require.Equal(t, ID(1), id)
		n++
		return n < 3
	}))
	require.True(t, r.IsTimer(1))
	w := fr.Waiters()[0]
	for i := 0; i < 3; i++ {
		fire(t, fr, w)
	}
	require.Equal(t, 3, n)
	require.False(t, w.Pending())
	require.False(t, r.IsTimer(1))
	require.Equal(t, Canceled, r.FindTimer(1).Status())
	require.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond}, w.Armed())
}

func TestStopIdempotent(t *testing.T) {
	fr := fakereactor.New()
	r := NewRegistry(fr, nil)
	called := false
	r.SetTimer(1, 100, func(ID) bool { called = true; return true })
	w := fr.Waiters()[0]

	r.StopTimer(1)
	r.StopTimer(1)
	require.Equal(t, 1, w.Cancels())
	fr.Run()
	require.False(t, called)
	require.Equal(t, Canceled, r.FindTimer(1).Status())

	// 未知id
	r.StopTimer(99)
}

func TestSelfRestartThenDecline(t *testing.T) {
	fr := fakereactor.New()
	r := NewRegistry(fr, nil)
	var calls int
	r.SetTimer(1, 100, func(id ID) bool {
		calls++
		r.ChangeTimerInterval(id, 40)
		require.True(t, r.StartTimer(id))
		return false
	})
	w := fr.Waiters()[0]
	seq := r.FindTimer(1).Seq()
	fire(t, fr, w)

	require.Equal(t, 1, calls)
	ti := r.FindTimer(1)
	require.Equal(t, Started, ti.Status())
	require.Equal(t, seq+1, ti.Seq())
	require.True(t, w.Pending())
	require.Equal(t, 40*time.Millisecond, w.Armed()[1])
}

func TestStaleCompletionDropped(t *testing.T) {
	fr := fakereactor.New()
	r := NewRegistry(fr, nil)
	calls := 0
	r.SetTimer(1, 100, func(ID) bool { calls++; return false })
	w := fr.Waiters()[0]

	// 到期通知已排队, 随后重新启动
	require.True(t, w.Fire())
	require.True(t, r.StartTimer(1))
	fr.Run()
	require.Zero(t, calls)
	require.True(t, r.IsTimer(1))

	fire(t, fr, w)
	require.Equal(t, 1, calls)
	require.False(t, r.IsTimer(1))
}

func TestRestartWhilePending(t *testing.T) {
	fr := fakereactor.New()
	r := NewRegistry(fr, nil)
	calls := 0
	r.SetTimer(1, 100, func(ID) bool { calls++; return false })
	require.True(t, r.StartTimer(1))
	// 被覆盖的一代以取消结束
	require.Equal(t, 1, fr.Run())
	require.Zero(t, calls)
	require.True(t, r.IsTimer(1))
}

func TestAligned(t *testing.T) {
	fr := fakereactor.New()
	now := time.Unix(0, 0)
	r := NewRegistry(fr, nil, WithAligned(true), WithNow(func() time.Time { return now }))

	spend := []time.Duration{30 * time.Millisecond, 250 * time.Millisecond, 0}
	i := 0
	r.SetTimer(1, 100, func(ID) bool {
		now = now.Add(spend[i])
		i++
		return i < len(spend)
	})
	w := fr.Waiters()[0]
	for range spend {
		fire(t, fr, w)
	}
	require.Equal(t, []time.Duration{
		100 * time.Millisecond,
		70 * time.Millisecond,
		50 * time.Millisecond,
	}, w.Armed())
}

func TestNextInterval(t *testing.T) {
	cases := []struct {
		interval uint32
		elapsed  time.Duration
		want     uint32
	}{
		{100, 0, 100},
		{100, 30 * time.Millisecond, 70},
		{100, 100 * time.Millisecond, 0},
		{100, 250 * time.Millisecond, 50},
		{100, 1000 * time.Millisecond, 100},
		{100, -time.Millisecond, 100},
		{0, time.Second, 0},
	}
	for _, c := range cases {
		require.Equal(t, c.want, NextInterval(c.interval, c.elapsed), "%d/%v", c.interval, c.elapsed)
	}
}

func TestCreateWithoutStart(t *testing.T) {
	fr := fakereactor.New()
	r := NewRegistry(fr, nil)
	require.True(t, r.CreateOrUpdateTimer(1, 10, func(ID) bool { return false }, false))
	require.Equal(t, Created, r.FindTimer(1).Status())
	require.Empty(t, fr.Waiters()[0].Armed())

	// 更新复用同一条记录
	require.True(t, r.CreateOrUpdateTimer(1, 20, func(ID) bool { return false }, false))
	require.Equal(t, 1, r.Len())
	require.Equal(t, uint32(20), r.FindTimer(1).Interval())
}

func TestStartFailures(t *testing.T) {
	fr := fakereactor.New()
	r := NewRegistry(fr, nil)
	require.False(t, r.StartTimer(7))

	// 没有回调时记录可用但不会启动
	require.True(t, r.CreateOrUpdateTimer(1, 10, nil, true))
	require.False(t, r.IsTimer(1))
	require.False(t, r.StartTimer(1))
	require.Nil(t, r.FindTimer(8))
}

func TestArmFailure(t *testing.T) {
	fr := fakereactor.New()
	tr := tracker.NewShared()
	r := NewRegistry(fr, tr)
	r.CreateOrUpdateTimer(1, 10, func(ID) bool { return true }, false)
	fr.Waiters()[0].FailNextArm(errors.New("boom"))

	require.False(t, r.StartTimer(1))
	require.Equal(t, Canceled, r.FindTimer(1).Status())
	require.False(t, tr.IsAsyncCalling())

	require.True(t, r.StartTimer(1))
	require.True(t, tr.IsAsyncCalling())
}

func TestCapacity(t *testing.T) {
	fr := fakereactor.New()
	r := NewRegistry(fr, nil, WithMaxTimers(2))
	cb := func(ID) bool { return false }
	require.True(t, r.CreateOrUpdateTimer(1, 10, cb, false))
	require.True(t, r.CreateOrUpdateTimer(2, 10, cb, false))
	require.False(t, r.CreateOrUpdateTimer(3, 10, cb, true))
	require.Equal(t, 2, r.Len())
	require.Nil(t, r.FindTimer(3))
	require.True(t, r.CreateOrUpdateTimer(1, 30, cb, true))
}

func TestPanicCallbackDeclines(t *testing.T) {
	fr := fakereactor.New()
	tr := tracker.NewShared()
	r := NewRegistry(fr, tr)
	r.SetTimer(1, 10, func(ID) bool { panic("bad callback") })
	w := fr.Waiters()[0]
	require.NotPanics(t, func() { fire(t, fr, w) })
	require.Equal(t, Canceled, r.FindTimer(1).Status())
	require.False(t, w.Pending())
	require.False(t, tr.IsAsyncCalling())
}

func TestReactorCloseStopsTimer(t *testing.T) {
	fr := fakereactor.New()
	tr := tracker.NewShared()
	r := NewRegistry(fr, tr)
	called := false
	r.SetTimer(1, 10, func(ID) bool { called = true; return true })
	require.True(t, tr.IsAsyncCalling())

	fr.Close()
	fr.Run()
	require.False(t, called)
	require.Equal(t, Canceled, r.FindTimer(1).Status())
	require.False(t, tr.IsAsyncCalling())

	require.False(t, r.StartTimer(1))
}

func TestTrackedStop(t *testing.T) {
	fr := fakereactor.New()
	tr := tracker.NewShared()
	r := NewRegistry(fr, tr)
	r.SetTimer(1, 10, func(ID) bool { return true })
	r.SetTimer(2, 10, func(ID) bool { return true })
	require.Equal(t, int64(3), tr.Holders())

	r.Close()
	require.True(t, tr.IsAsyncCalling())
	fr.Run()
	require.False(t, tr.IsAsyncCalling())
}

func TestStopAllExcept(t *testing.T) {
	fr := fakereactor.New()
	r := NewRegistry(fr, nil)
	for id := ID(1); id <= 3; id++ {
		r.SetTimer(id, uint32(id)*10, func(ID) bool { return true })
	}
	r.StopAllTimerExcept(2)
	fr.Run()

	want := []snap{
		{1, Canceled, 10},
		{2, Started, 20},
		{3, Canceled, 30},
	}
	if diff := cmp.Diff(want, snapshot(r)); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	r.StopAllTimer()
	fr.Run()
	r.DoSomethingToAll(func(ti *Info) {
		require.Equal(t, Canceled, ti.Status())
	})
}

func TestDoSomethingToOne(t *testing.T) {
	fr := fakereactor.New()
	r := NewRegistry(fr, nil)
	for id := ID(1); id <= 5; id++ {
		r.CreateOrUpdateTimer(id, 10, func(ID) bool { return true }, false)
	}
	visits := 0
	var found *Info
	r.DoSomethingToOne(func(ti *Info) bool {
		visits++
		if ti.ID() == 3 {
			found = ti
			return true
		}
		return false
	})
	require.Equal(t, 3, visits)
	require.Same(t, r.FindTimer(3), found)
}

func TestChangeFields(t *testing.T) {
	fr := fakereactor.New()
	r := NewRegistry(fr, nil)
	require.False(t, r.ChangeTimerStatus(1, Started))
	require.False(t, r.ChangeTimerInterval(1, 10))
	require.False(t, r.ChangeTimerCallBack(1, nil))

	var got []string
	r.SetTimer(1, 100, func(ID) bool { got = append(got, "a"); return true })
	w := fr.Waiters()[0]
	require.True(t, r.ChangeTimerInterval(1, 50))
	require.True(t, r.ChangeTimerCallBack(1, func(ID) bool { got = append(got, "b"); return false }))
	fire(t, fr, w)
	require.Equal(t, []string{"b"}, got)
	require.Equal(t, []time.Duration{100 * time.Millisecond}, w.Armed())

	r.ChangeTimerCallBack(1, func(ID) bool { got = append(got, "c"); return true })
	require.True(t, r.StartTimer(1))
	fire(t, fr, w)
	require.Equal(t, 50*time.Millisecond, w.Armed()[2])

	// 状态改为非Started后不再重新arm
	require.True(t, r.ChangeTimerStatus(1, Canceled))
	fire(t, fr, w)
	require.False(t, w.Pending())
	require.Equal(t, []string{"b", "c", "c"}, got)
}

func TestTakeCallback(t *testing.T) {
	fr := fakereactor.New()
	r := NewRegistry(fr, nil)
	cb := Callback(func(ID) bool { return false })
	require.True(t, r.SetTimer(1, 10, Take(&cb)))
	require.Nil(t, cb)
	require.True(t, r.FindTimer(1).HasCallback())
	require.Nil(t, Take(nil))
}

func TestOwnerIds(t *testing.T) {
	const (
		heartbeat = TimerEnd + iota
		idle
	)
	fr := fakereactor.New()
	r := NewRegistry(fr, nil)
	r.CreateOrUpdateTimer(heartbeat, 10, func(ID) bool { return false }, false)
	r.CreateOrUpdateTimer(idle, 10, func(ID) bool { return false }, false)
	require.Equal(t, 2, r.Len())
	require.Equal(t, "created", r.FindTimer(idle).Status().String())
}

// 不同id的操作互不影响
func TestIdIsolationConcurrent(t *testing.T) {
	fr := fakereactor.New()
	r := NewRegistry(fr, nil)
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := ID(g*100 + i)
				r.CreateOrUpdateTimer(id, uint32(g+1), func(ID) bool { return false }, true)
				if i%2 == 0 {
					r.StopTimer(id)
				}
				r.ChangeTimerInterval(id, uint32(g+1)*10)
			}
		}(g)
	}
	wg.Wait()
	fr.Run()

	require.Equal(t, 16*50, r.Len())
	seen := make(map[ID]bool)
	r.DoSomethingToAll(func(ti *Info) {
		require.False(t, seen[ti.ID()])
		seen[ti.ID()] = true
		g := int(ti.ID()) / 100
		require.Equal(t, uint32(g+1)*10, ti.Interval())
		if int(ti.ID())%2 == 0 {
			require.Equal(t, Canceled, ti.Status())
		} else {
			require.Equal(t, Started, ti.Status())
		}
	})
}

// cancelHookBinding 每次Cancel前先调用onCancel
type cancelHookBinding struct {
	*fakereactor.Reactor
	onCancel func()
}

func (b *cancelHookBinding) NewWaiter() reactor.Waiter {
	return &cancelHookWaiter{Waiter: b.Reactor.NewWaiter(), onCancel: b.onCancel}
}

type cancelHookWaiter struct {
	reactor.Waiter
	onCancel func()
}

func (w *cancelHookWaiter) Cancel() error {
	w.onCancel()
	return w.Waiter.Cancel()
}

// 批量停止时取消等待不持有结构锁
func TestStopAllCancelsOutsideLock(t *testing.T) {
	var r *Registry
	var lookups int
	b := &cancelHookBinding{
		Reactor: fakereactor.New(),
		onCancel: func() {
			if r.FindTimer(2) != nil && r.Len() == 3 {
				lookups++
			}
		},
	}
	r = NewRegistry(b, nil)
	for id := ID(1); id <= 3; id++ {
		r.SetTimer(id, 10, func(ID) bool { return true })
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.StopAllTimerExcept(2)
		r.StopAllTimer()
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("bulk stop holds the registry lock while cancelling")
	}
	require.Equal(t, 3, lookups)
	r.DoSomethingToAll(func(ti *Info) {
		require.Equal(t, Canceled, ti.Status())
	})
}
