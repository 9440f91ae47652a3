package config

import (
	"encoding/json"
	"os"
	"strconv"

	"braces.dev/errtrace"
)

var Config *AppConfig

type AppConfig struct {
	LogConfig     `json:",inline"`
	ReactorConfig `json:"reactor"`
	EchoConfig    `json:"echo"`
	IsDebug       bool `json:"is_debug"`
}

type LogConfig struct {
	LogPath       string `json:"log_path"`
	LogName       string `json:"log_name"`
	LogLevel      int    `json:"log_level"`
	LogStdOut     bool   `json:"log_std_out"`
	LogMaxSizeMB  int    `json:"log_max_size_mb"` // 单个日志文件上限
	LogMaxBackups int    `json:"log_max_backups"`
}

type ReactorConfig struct {
	Workers int   `json:"workers"` // 执行回调的协程数, 0为cpu数*2
	TickMs  int64 `json:"tick_ms"` // 时间轮精度 毫秒
}

type EchoConfig struct {
	ListenAddr    string `json:"listen_addr"` // 例如 tcp://:8080
	Multicore     bool   `json:"multicore"`
	HeartbeatMs   uint32 `json:"heartbeat_ms"`    // 0不发送心跳
	IdleTimeoutMs uint32 `json:"idle_timeout_ms"` // 0不检查空闲
	StatsMs       uint32 `json:"stats_ms"`        // 会话统计日志间隔
	ReclaimMs     uint32 `json:"reclaim_ms"`      // 关闭会话的回收检查间隔
	FlagTracker   bool   `json:"flag_tracker"`    // 会话只用标记跟踪写出任务
	DrainMs       uint32 `json:"drain_ms"`        // 退出时等待会话结束的上限
}

// Default 没有配置文件时使用
func Default() *AppConfig {
	return &AppConfig{
		LogConfig: LogConfig{
			LogName:   "echod",
			LogLevel:  4,
			LogStdOut: true,
		},
		EchoConfig: EchoConfig{
			ListenAddr:    "tcp://:8080",
			Multicore:     true,
			HeartbeatMs:   10_000,
			IdleTimeoutMs: 60_000,
			StatsMs:       30_000,
			ReclaimMs:     1_000,
			DrainMs:       5_000,
		},
	}
}

func LoadConfig(configFile string, loadConfigFromEnv func(*AppConfig) error) error {
	Config = Default()
	if len(configFile) != 0 {
		if err := loadConfigFromFile(configFile); err != nil {
			return err
		}
	}
	if loadConfigFromEnv != nil {
		return errtrace.Wrap(loadConfigFromEnv(Config))
	}
	return nil
}

func loadConfigFromFile(configFile string) error {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return errtrace.Wrap(err)
	}
	return errtrace.Wrap(json.Unmarshal(data, Config))
}

// LoadFromEnv 环境变量覆盖文件中的配置, 没有设置的保持原值
func LoadFromEnv(conf *AppConfig) error {
	if v, ok := os.LookupEnv("ECHOD_LISTEN_ADDR"); ok {
		conf.ListenAddr = v
	}
	if v, ok := os.LookupEnv("ECHOD_LOG_PATH"); ok {
		conf.LogPath = v
	}
	ints := []struct {
		key string
		set func(n int64)
	}{
		{"ECHOD_LOG_LEVEL", func(n int64) { conf.LogLevel = int(n) }},
		{"ECHOD_WORKERS", func(n int64) { conf.Workers = int(n) }},
		{"ECHOD_TICK_MS", func(n int64) { conf.TickMs = n }},
		{"ECHOD_HEARTBEAT_MS", func(n int64) { conf.HeartbeatMs = uint32(n) }},
		{"ECHOD_IDLE_TIMEOUT_MS", func(n int64) { conf.IdleTimeoutMs = uint32(n) }},
		{"ECHOD_STATS_MS", func(n int64) { conf.StatsMs = uint32(n) }},
		{"ECHOD_RECLAIM_MS", func(n int64) { conf.ReclaimMs = uint32(n) }},
		{"ECHOD_DRAIN_MS", func(n int64) { conf.DrainMs = uint32(n) }},
	}
	for _, e := range ints {
		v, ok := os.LookupEnv(e.key)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return errtrace.Errorf("invalid %s=%q", e.key, v)
		}
		e.set(n)
	}
	bools := []struct {
		key string
		dst *bool
	}{
		{"ECHOD_MULTICORE", &conf.Multicore},
		{"ECHOD_FLAG_TRACKER", &conf.FlagTracker},
	}
	for _, e := range bools {
		v, ok := os.LookupEnv(e.key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errtrace.Errorf("invalid %s=%q", e.key, v)
		}
		*e.dst = b
	}
	return nil
}

func (conf *AppConfig) JsonFormat() string {
	if conf == nil {
		return "{}"
	}
	data, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
