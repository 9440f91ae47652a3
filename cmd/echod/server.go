package main

import (
	"context"
	"sync"
	"time"

	"github.com/fixkme/gotimer/framework/config"
	"github.com/fixkme/gotimer/mlog"
	"github.com/fixkme/gotimer/reactor"
	"github.com/fixkme/gotimer/session"
	"github.com/panjf2000/gnet/v2"
)

// gnetConn 会话通过AsyncWrite写回, 可以在任意协程调用
type gnetConn struct {
	c gnet.Conn
}

func (gc gnetConn) Send(b []byte) error {
	return gc.c.AsyncWrite(b, nil)
}

func (gc gnetConn) Close() error {
	return gc.c.Close()
}

type echoServer struct {
	gnet.BuiltinEventEngine
	mu      sync.Mutex
	eng     gnet.Engine
	stopped bool
	conf    *config.EchoConfig
	reactor *reactor.Reactor
	pool    *session.Pool
	opts    []session.Option
	drain   time.Duration
	log     *mlog.Tagged
}

func newEchoServer(conf *config.AppConfig) (*echoServer, error) {
	r, err := reactor.New(
		reactor.WithName("echod"),
		reactor.WithWorkers(conf.Workers),
		reactor.WithTick(conf.TickMs),
	)
	if err != nil {
		return nil, err
	}
	opts := []session.Option{
		session.WithHeartbeat(conf.HeartbeatMs, nil),
		session.WithIdleTimeout(conf.IdleTimeoutMs),
		session.WithStats(conf.StatsMs),
	}
	if conf.FlagTracker {
		opts = append(opts, session.WithFlagTracker())
	}
	drain := time.Duration(conf.DrainMs) * time.Millisecond
	if drain <= 0 {
		drain = 5 * time.Second
	}
	return &echoServer{
		conf:    &conf.EchoConfig,
		reactor: r,
		pool:    session.NewPool(r, conf.ReclaimMs),
		opts:    opts,
		drain:   drain,
		log:     mlog.With("echod"),
	}, nil
}

func (es *echoServer) Name() string {
	return "echod"
}

// OnInit reactor由app启动
func (es *echoServer) OnInit() error {
	if !es.pool.Start() {
		return reactor.ErrNotStarted
	}
	return nil
}

func (es *echoServer) Run() {
	es.log.Infof("listening on %s", es.conf.ListenAddr)
	if err := gnet.Run(es, es.conf.ListenAddr, gnet.WithMulticore(es.conf.Multicore)); err != nil {
		es.log.Errorf("server exited with error: %v", err)
	}
}

// Destroy 只停止引擎, 会话在Drain里关闭
func (es *echoServer) Destroy() {
	es.mu.Lock()
	es.stopped = true
	eng := es.eng
	es.mu.Unlock()
	// 引擎还没有boot, 由OnBoot直接退出
	if eng.Validate() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), es.drain)
	defer cancel()
	if err := eng.Stop(ctx); err != nil {
		es.log.Warnf("stop engine: %v", err)
	}
}

// Drain 关闭所有会话并等待它们的定时器和写出任务结束
func (es *echoServer) Drain(ctx context.Context) error {
	return es.pool.Close(ctx)
}

func (es *echoServer) OnBoot(eng gnet.Engine) gnet.Action {
	es.mu.Lock()
	defer es.mu.Unlock()
	if es.stopped {
		return gnet.Shutdown
	}
	es.eng = eng
	return gnet.None
}

func (es *echoServer) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	s := session.New(es.reactor, gnetConn{c: c}, es.opts...)
	if !s.Start() {
		es.log.Errorf("session %s cannot start timers", s.ID())
		s.Close()
		return nil, gnet.Close
	}
	c.SetContext(s)
	es.pool.Add(s)
	es.log.Debugf("open %s from %s", s.ID(), c.RemoteAddr())
	return nil, gnet.None
}

func (es *echoServer) OnTraffic(c gnet.Conn) gnet.Action {
	s, ok := c.Context().(*session.Session)
	if !ok {
		return gnet.Close
	}
	buf, _ := c.Next(-1)
	if err := s.Received(buf); err != nil {
		return gnet.Close
	}
	return gnet.None
}

func (es *echoServer) OnClose(c gnet.Conn, err error) gnet.Action {
	if s, ok := c.Context().(*session.Session); ok {
		es.pool.Remove(s.ID())
		es.log.Debugf("close %s: %v", s.ID(), err)
	}
	return gnet.None
}
