// Package config 读取宿主进程的 YAML 配置。
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/IMBotPlatform/Clovers/pkg/ai"
	"github.com/IMBotPlatform/Clovers/pkg/botcore"
	"github.com/IMBotPlatform/Clovers/pkg/command"
	"github.com/IMBotPlatform/Clovers/pkg/platform/webhook"
	"github.com/IMBotPlatform/Clovers/pkg/platform/ws"
)

// PluginConfig 覆盖单个插件的装配参数，未设置的字段保持插件自身的默认值。
type PluginConfig struct {
	Priority *int  `yaml:"priority,omitempty"`
	Block    *bool `yaml:"block,omitempty"`
	Disabled bool  `yaml:"disabled,omitempty"`
}

// WebhookConfig 是 HTTP 回调入口配置。
type WebhookConfig struct {
	Listen    string        `yaml:"listen"`
	Path      string        `yaml:"path"`
	Timeout   time.Duration `yaml:"timeout"`    // 主动回复 HTTP 超时
	AckWait   time.Duration `yaml:"ack_wait"`   // 应答前等待分发完成的时长
	DedupeTTL time.Duration `yaml:"dedupe_ttl"` // 重投过滤的 msgid 保留时长
}

// WSConfig 是 WebSocket 入口配置。
type WSConfig struct {
	Listen      string   `yaml:"listen"`
	Path        string   `yaml:"path"`
	Origins     []string `yaml:"origins"`      // 允许的 Origin，空表示仅同源，"*" 表示任意
	ReadLimit   int64    `yaml:"read_limit"`   // 单帧字节上限
	MaxInflight int      `yaml:"max_inflight"` // 单连接并发分发上限
}

// Config 是宿主进程的全部配置。
type Config struct {
	LogLevel        string                  `yaml:"log_level"`
	DispatchTimeout time.Duration           `yaml:"dispatch_timeout"`
	TempTimeout     time.Duration           `yaml:"temp_timeout"`
	CommandTTL      time.Duration           `yaml:"command_ttl"`
	Plugins         map[string]PluginConfig `yaml:"plugins"`
	AI              *ai.Config              `yaml:"ai"`
	Webhook         WebhookConfig           `yaml:"webhook"`
	WS              WSConfig                `yaml:"ws"`
}

// Default 返回默认配置。
func Default() *Config {
	return &Config{
		LogLevel:        "info",
		DispatchTimeout: 30 * time.Second,
		TempTimeout:     botcore.DefaultTempTimeout,
		CommandTTL:      command.DefaultContextTTL,
		Plugins:         make(map[string]PluginConfig),
		Webhook: WebhookConfig{
			Listen:    ":8080",
			Path:      "/callback",
			Timeout:   10 * time.Second,
			AckWait:   webhook.DefaultAckWait,
			DedupeTTL: time.Minute,
		},
		WS: WSConfig{
			Listen:      ":8081",
			Path:        "/ws",
			ReadLimit:   ws.DefaultReadLimit,
			MaxInflight: ws.DefaultMaxInflight,
		},
	}
}

// Load 读取 YAML 配置并叠加到默认值上。path 为空或文件不存在时返回默认配置。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Plugins == nil {
		cfg.Plugins = make(map[string]PluginConfig)
	}
	if _, err := cfg.Level(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Level 解析日志级别，空串视为 info。
func (c *Config) Level() (zapcore.Level, error) {
	if c.LogLevel == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return lvl, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// Enabled 判断插件是否启用，未配置的插件默认启用。
func (c *Config) Enabled(name string) bool {
	return !c.Plugins[name].Disabled
}

// PluginOptions 把配置覆盖转为插件选项，临时响应器超时对全部插件生效。
func (c *Config) PluginOptions(name string) []botcore.PluginOption {
	var opts []botcore.PluginOption
	if c.TempTimeout > 0 {
		opts = append(opts, botcore.WithTempTimeout(c.TempTimeout))
	}
	pc, ok := c.Plugins[name]
	if !ok {
		return opts
	}
	if pc.Priority != nil {
		opts = append(opts, botcore.WithPluginPriority(*pc.Priority))
	}
	if pc.Block != nil {
		opts = append(opts, botcore.WithPluginBlock(*pc.Block))
	}
	return opts
}
