package reactor

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newReactor(t *testing.T, opts ...Option) *Reactor {
	r, err := New(append([]Option{WithWorkers(4), WithName("test")}, opts...)...)
	require.NoError(t, err)
	r.Start()
	t.Cleanup(r.Close)
	return r
}

func recvErr(t *testing.T, ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
	return nil
}

func TestPost(t *testing.T) {
	r := newReactor(t)
	var wg sync.WaitGroup
	var n atomic.Int32
	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.NoError(t, r.Post(func() {
			defer wg.Done()
			n.Add(1)
		}))
	}
	wg.Wait()
	require.Equal(t, int32(100), n.Load())
}

func TestNotStarted(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()
	require.True(t, r.Stopped())
	require.ErrorIs(t, r.Post(func() {}), ErrNotStarted)
}

func TestDispatchInline(t *testing.T) {
	r := newReactor(t)
	ran := false
	require.NoError(t, r.Dispatch(func() { ran = true }))
	require.True(t, ran)
}

func TestPanicRecovered(t *testing.T) {
	caught := make(chan any, 1)
	r := newReactor(t, WithPanicHandler(func(p any) { caught <- p }))
	require.NoError(t, r.Post(func() { panic("boom") }))
	select {
	case p := <-caught:
		require.Equal(t, "boom", p)
	case <-time.After(2 * time.Second):
		t.Fatal("panic handler not called")
	}
}

func TestStrandSerial(t *testing.T) {
	r := newReactor(t, WithWorkers(8))
	s := r.NewStrand()

	var (
		mu      sync.Mutex
		order   []int
		running atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)
	for i := 0; i < 200; i++ {
		i := i
		wg.Add(1)
		require.NoError(t, s.Post(func() {
			defer wg.Done()
			if running.Add(1) > 1 {
				overlap.Store(true)
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			running.Add(-1)
		}))
	}
	wg.Wait()
	require.False(t, overlap.Load())
	for i, v := range order {
		require.Equal(t, i, v)
	}
}

func TestWaitFire(t *testing.T) {
	r := newReactor(t)
	w := r.NewWaiter()
	ch := make(chan error, 1)
	begin := time.Now()
	require.NoError(t, w.Arm(50*time.Millisecond, func(err error) { ch <- err }))
	require.NoError(t, recvErr(t, ch))
	require.GreaterOrEqual(t, time.Since(begin), 40*time.Millisecond)
}

func TestWaitCancel(t *testing.T) {
	r := newReactor(t)
	w := r.NewWaiter()
	ch := make(chan error, 2)
	require.NoError(t, w.Arm(time.Second, func(err error) { ch <- err }))
	require.NoError(t, w.Cancel())
	require.ErrorIs(t, recvErr(t, ch), ErrCanceled)

	// 没有挂起的等待时取消是空操作
	require.NoError(t, w.Cancel())
	select {
	case err := <-ch:
		t.Fatalf("unexpected completion %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWaitSupersede(t *testing.T) {
	r := newReactor(t)
	w := r.NewWaiter()
	first := make(chan error, 1)
	second := make(chan error, 1)
	require.NoError(t, w.Arm(time.Second, func(err error) { first <- err }))
	require.NoError(t, w.Arm(20*time.Millisecond, func(err error) { second <- err }))
	require.ErrorIs(t, recvErr(t, first), ErrCanceled)
	require.NoError(t, recvErr(t, second))
}

func TestCloseAbortsPendingWaits(t *testing.T) {
	r, err := New(WithWorkers(2))
	require.NoError(t, err)
	r.Start()

	w := r.NewWaiter()
	ch := make(chan error, 1)
	require.NoError(t, w.Arm(time.Hour, func(err error) { ch <- err }))
	r.Close()
	require.True(t, errors.Is(recvErr(t, ch), ErrClosed))

	require.ErrorIs(t, r.Post(func() {}), ErrClosed)
	require.Error(t, w.Arm(time.Millisecond, func(error) {}))
	require.ErrorIs(t, r.NewStrand().Post(func() {}), ErrClosed)
	// 重复关闭
	r.Close()
}

func TestCloseRunsQueuedTasks(t *testing.T) {
	r, err := New(WithWorkers(1))
	require.NoError(t, err)
	r.Start()

	block := make(chan struct{})
	var n atomic.Int32
	require.NoError(t, r.Post(func() { <-block }))
	for i := 0; i < 10; i++ {
		require.NoError(t, r.Post(func() { n.Add(1) }))
	}
	close(block)
	r.Close()
	require.Equal(t, int32(10), n.Load())
}
