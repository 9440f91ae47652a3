// Package app runs a set of modules on top of one shared reactor.
//
// The reactor starts before any module initializes and closes only after
// every module has been destroyed and drained, so timer cancellations and
// queued writes issued during shutdown are still delivered.
package app

import (
	"context"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"

	"braces.dev/errtrace"
	"github.com/fixkme/gotimer/mlog"
)

const (
	AppStateNone = iota // 未开始或已停止
	AppStateInit        // 正在初始化中
	AppStateRun         // 正在运行中
	AppStateStop        // 正在停止中
)

var ErrStarted = errtrace.New("app already started")

// Runtime 模块共享的reactor
type Runtime interface {
	Start()
	Close()
	Stopped() bool
}

type Module interface {
	OnInit() error // reactor已启动
	Destroy()      // 让Run返回
	Run()
	Name() string
}

// Drainer 所有模块销毁后, reactor关闭前调用, 等待模块的异步调用结束
type Drainer interface {
	Drain(ctx context.Context) error
}

// App 一次Run对应一次完整的生命周期, 不能重复使用
type App struct {
	rt    Runtime
	opt   *Options
	mods  []Module
	state atomic.Int32
	sig   chan os.Signal
	wg    sync.WaitGroup
	log   *mlog.Tagged
}

func New(rt Runtime, opts ...Option) *App {
	return &App{
		rt:  rt,
		opt: loadOptions(opts...),
		sig: make(chan os.Signal, 1),
		log: mlog.With("app"),
	}
}

func (app *App) GetState() int32 {
	return app.state.Load()
}

// Run 阻塞到收到退出信号或Stop, 初始化失败时返回错误
func (app *App) Run(mods ...Module) error {
	if err := app.start(mods...); err != nil {
		return err
	}
	signal.Notify(app.sig, app.opt.Signals...)
	defer signal.Stop(app.sig)
	for {
		sig := <-app.sig
		app.log.Infof("closing down (signal: %v)", sig)
		if sig != syscall.SIGHUP {
			break
		}
	}
	app.stop()
	return nil
}

// Stop 可以在任意协程调用, 重复调用无效
func (app *App) Stop() {
	select {
	case app.sig <- syscall.SIGTERM:
	default:
	}
}

func (app *App) start(mods ...Module) error {
	if !app.state.CompareAndSwap(AppStateNone, AppStateInit) || app.mods != nil {
		return ErrStarted
	}
	app.mods = mods
	app.rt.Start()
	app.log.Infof("starting %d modules", len(mods))
	for i, m := range mods {
		if err := m.OnInit(); err != nil {
			// 已经初始化的模块逆序销毁, 再关闭reactor
			for j := i - 1; j >= 0; j-- {
				app.destroy(mods[j])
			}
			app.shutdown(mods[:i])
			app.state.Store(AppStateNone)
			return errtrace.Errorf("module %s init: %w", m.Name(), err)
		}
	}
	for _, m := range mods {
		app.wg.Add(1)
		go app.run(m)
	}
	app.state.Store(AppStateRun)
	app.log.Infof("started")
	return nil
}

func (app *App) stop() {
	app.state.Store(AppStateStop)
	// 先进后出
	for i := len(app.mods) - 1; i >= 0; i-- {
		app.destroy(app.mods[i])
	}
	app.wg.Wait()
	app.shutdown(app.mods)
	app.state.Store(AppStateNone)
	app.log.Infof("stopped")
}

// shutdown 排空后关闭reactor, 超时只记日志
func (app *App) shutdown(mods []Module) {
	ctx, cancel := context.WithTimeout(context.Background(), app.opt.DrainTimeout)
	defer cancel()
	for i := len(mods) - 1; i >= 0; i-- {
		d, ok := mods[i].(Drainer)
		if !ok {
			continue
		}
		if err := d.Drain(ctx); err != nil {
			app.log.Warnf("drain %s: %v", mods[i].Name(), err)
		}
	}
	app.rt.Close()
}

func (app *App) run(m Module) {
	defer app.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			app.log.Errorf("%s module run panic: %v\n%s", m.Name(), r, debug.Stack())
		}
	}()
	m.Run()
}

func (app *App) destroy(m Module) {
	defer func() {
		if r := recover(); r != nil {
			app.log.Errorf("%s module destroy panic: %v\n%s", m.Name(), r, debug.Stack())
		}
	}()
	app.log.Infof("destroy module %s", m.Name())
	m.Destroy()
}
