package main

import (
	"go.uber.org/zap"

	"github.com/IMBotPlatform/Clovers/pkg/ai"
	"github.com/IMBotPlatform/Clovers/pkg/botcore"
	"github.com/IMBotPlatform/Clovers/pkg/command"
	"github.com/IMBotPlatform/Clovers/pkg/config"
	"github.com/IMBotPlatform/Clovers/pkg/platform"
	"github.com/IMBotPlatform/Clovers/plugins/basic"
)

// agentTools 是 Agent 可以调用的适配器方法。
var agentTools = map[string]string{
	"time":     "current time in RFC 3339",
	"nickname": "display name of the user talking to you",
	"platform": "name of the chat platform",
}

// newAIService 按配置创建 AI 服务，未配置模型时返回 nil。
func newAIService(cfg *config.Config, logger *zap.Logger) (*ai.Service, error) {
	if !cfg.AI.Enabled() {
		return nil, nil
	}
	var store ai.SessionStore = ai.NewMemoryStore()
	if cfg.AI.HistoryDir != "" {
		fs, err := ai.NewFileStore(cfg.AI.HistoryDir, logger.Named("history"))
		if err != nil {
			return nil, err
		}
		store = fs
	}
	return ai.NewService(cfg.AI, store, ai.WithLogger(logger.Named("ai"))), nil
}

// buildPlugins 为一个分发器创建全新的插件实例（插件持有临时响应器状态，不能跨分发器共享），
// 再叠加配置中的优先级、阻断与临时响应器超时。被配置禁用的插件不会创建。
func buildPlugins(cfg *config.Config, service *ai.Service, logger *zap.Logger) []*botcore.Plugin {
	type entry struct {
		name  string
		build func() *botcore.Plugin
	}
	entries := []entry{
		{"ping", func() *botcore.Plugin { return basic.Ping() }},
		{"echo", func() *botcore.Plugin { return basic.Echo() }},
		{"sign", func() *botcore.Plugin { return basic.Sign() }},
		{"confirm", func() *botcore.Plugin { return basic.Confirm(cfg.TempTimeout) }},
		{"command", func() *botcore.Plugin {
			mopts := []command.ManagerOption{
				command.WithLogger(logger.Named("command")),
				command.WithStore(command.NewMemoryStore(command.WithTTL(cfg.CommandTTL))),
				command.WithProperties("user_id", "chat_id"),
			}
			if service != nil {
				mopts = append(mopts, command.WithLLM(service))
			}
			return command.NewManager(basic.Commands(), mopts...).Plugin("command")
		}},
	}
	if service != nil {
		entries = append(entries, entry{"ai", func() *botcore.Plugin {
			opts := []ai.PluginOption{
				ai.WithCallTools(agentTools),
				ai.WithTrigger(cfg.AI.Trigger),
				ai.WithSessionTimeout(cfg.AI.SessionTimeout),
			}
			if cfg.AI.AgentTrigger != "" {
				opts = append(opts, ai.WithAgentTrigger(cfg.AI.AgentTrigger))
			}
			return ai.NewPlugin("ai", service, opts...)
		}})
	}

	var plugins []*botcore.Plugin
	for _, e := range entries {
		if !cfg.Enabled(e.name) {
			logger.Info("plugin disabled by config", zap.String("plugin", e.name))
			continue
		}
		p := e.build()
		p.Apply(cfg.PluginOptions(e.name)...)
		plugins = append(plugins, p)
	}
	return plugins
}

// newDispatcher 为平台适配器补齐通用方法并装配插件，尚未 Startup。
func newDispatcher(cfg *config.Config, adapter *botcore.Adapter, plugins []*botcore.Plugin, logger *zap.Logger, opts ...botcore.Option) (*botcore.Dispatcher, error) {
	adapter.Remix(platform.Common(adapter.Name, nil))
	opts = append([]botcore.Option{
		botcore.WithLogger(logger.Named("dispatch").With(zap.String("adapter", adapter.Name))),
		botcore.WithDispatchTimeout(cfg.DispatchTimeout),
	}, opts...)
	d := botcore.NewDispatcher(adapter, opts...)
	if err := d.AddPlugin(plugins...); err != nil {
		return nil, err
	}
	return d, nil
}
