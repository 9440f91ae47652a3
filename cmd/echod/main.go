package main

import (
	"context"
	"flag"
	"log"
	"os"
	"sync"

	"github.com/fixkme/gotimer/framework/app"
	"github.com/fixkme/gotimer/framework/config"
	"github.com/fixkme/gotimer/mlog"
)

func main() {
	configFile := flag.String("config", "", "json config file")
	flag.Parse()

	if err := config.LoadConfig(*configFile, config.LoadFromEnv); err != nil {
		log.Fatalf("load config: %v", err)
	}
	conf := config.Config

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	if err := setupLogger(ctx, wg, conf); err != nil {
		log.Fatalf("setup logger: %v", err)
	}
	mlog.Infof("log level %s, config: %s", mlog.Level(conf.LogLevel), conf.JsonFormat())

	server, err := newEchoServer(conf)
	if err != nil {
		mlog.Fatalf("create server: %v", err)
	}
	a := app.New(server.reactor, app.WithDrainTimeout(server.drain))
	if err := a.Run(server); err != nil {
		mlog.Errorf("run: %v", err)
	}

	cancel()
	wg.Wait()
}

func setupLogger(ctx context.Context, wg *sync.WaitGroup, conf *config.AppConfig) error {
	level := mlog.Level(conf.LogLevel)
	if conf.IsDebug {
		mlog.UseDevLogger(os.Stdout, mlog.DebugLevel)
		return nil
	}
	if conf.LogPath == "" {
		if conf.LogStdOut {
			mlog.UseConsoleLogger(os.Stdout, level)
		} else {
			mlog.UseLogrusLogger(level)
		}
		return nil
	}
	return mlog.UseDefaultLogger(ctx, wg, &mlog.FileConfig{
		Path:       conf.LogPath,
		Name:       conf.LogName,
		Level:      level,
		StdOut:     conf.LogStdOut,
		MaxSizeMB:  conf.LogMaxSizeMB,
		MaxBackups: conf.LogMaxBackups,
	})
}
