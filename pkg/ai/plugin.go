package ai

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/IMBotPlatform/Clovers/pkg/botcore"
)

// DefaultSessionTimeout 是对话空闲多久后自动结束。
const DefaultSessionTimeout = 2 * time.Minute

// 对话结束口令。
const byeWord = "bye"

// PluginOption 定制对话插件。
type PluginOption func(*pluginOptions)

type pluginOptions struct {
	trigger      string
	agentTrigger string
	timeout      time.Duration
	tools        map[string]string
}

// WithTrigger 设置开启对话的关键字，默认 "ai"，空串保持默认。
func WithTrigger(word string) PluginOption {
	return func(o *pluginOptions) {
		if word != "" {
			o.trigger = word
		}
	}
}

// WithAgentTrigger 设置 Agent 模式的关键字，默认 "agent"，空串表示关闭。
func WithAgentTrigger(word string) PluginOption {
	return func(o *pluginOptions) {
		o.agentTrigger = word
	}
}

// WithSessionTimeout 设置对话空闲超时。
func WithSessionTimeout(d time.Duration) PluginOption {
	return func(o *pluginOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithCallTools 把适配器 call 方法暴露给 Agent，key 为 call 名，value 为工具描述。
func WithCallTools(tools map[string]string) PluginOption {
	return func(o *pluginOptions) {
		for k, v := range tools {
			o.tools[k] = v
		}
	}
}

// chatPlugin 把 Service 接入分发核心：关键字开启对话，之后同一用户的消息
// 由临时响应器继续处理，直到 "bye" 或空闲超时。
type chatPlugin struct {
	service *Service
	opts    pluginOptions
}

// NewPlugin 创建对话插件。需要适配器提供 user_id。
func NewPlugin(name string, service *Service, opts ...PluginOption) *botcore.Plugin {
	o := pluginOptions{
		trigger:      "ai",
		agentTrigger: "agent",
		timeout:      DefaultSessionTimeout,
		tools:        make(map[string]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	cp := &chatPlugin{service: service, opts: o}
	p := botcore.NewPlugin(name, botcore.WithTempTimeout(o.timeout))
	_, _ = p.Handle(botcore.Literal(o.trigger), cp.start(p), botcore.WithProperties("user_id"))
	if o.agentTrigger != "" {
		_, _ = p.Handle(botcore.Literal(o.agentTrigger), cp.agent, botcore.WithProperties("user_id"))
	}
	return p
}

func sessionKey(userID string) string {
	return "ai:" + userID
}

// sameUser 限定临时响应器只处理开启对话的用户。
func sameUser(owner string) botcore.Checker {
	return func(e *botcore.Event) bool {
		uid, _ := botcore.Property[string](e, "user_id")
		return uid == owner
	}
}

func (cp *chatPlugin) start(p *botcore.Plugin) botcore.HandlerFunc {
	return func(ctx context.Context, e *botcore.Event) (*botcore.Result, error) {
		prompt := strings.TrimSpace(strings.Join(e.Args, " "))
		if prompt == "" {
			return botcore.Text("用法: " + cp.opts.trigger + " <问题>，结束对话请发送 " + byeWord), nil
		}
		uid, _ := botcore.Property[string](e, "user_id")
		key := sessionKey(uid)

		answer, err := cp.service.Complete(ctx, key, prompt)
		if err != nil {
			return nil, err
		}
		p.TempHandle(key, cp.opts.timeout, cp.follow,
			botcore.WithProperties("user_id"),
			botcore.WithRule(sameUser(uid)),
		)
		return botcore.Text(answer), nil
	}
}

func (cp *chatPlugin) follow(ctx context.Context, e *botcore.Event, s *botcore.Session) (*botcore.Result, error) {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return nil, nil
	}
	if strings.EqualFold(msg, byeWord) {
		s.Finish()
		if err := cp.service.Store().ClearHistory(ctx, s.Key()); err != nil {
			return nil, err
		}
		return botcore.Text("再见"), nil
	}
	s.Delay(cp.opts.timeout)
	answer, err := cp.service.Complete(ctx, s.Key(), msg)
	if err != nil {
		return nil, err
	}
	return botcore.Text(answer), nil
}

func (cp *chatPlugin) agent(ctx context.Context, e *botcore.Event) (*botcore.Result, error) {
	prompt := strings.TrimSpace(strings.Join(e.Args, " "))
	if prompt == "" {
		return nil, nil
	}
	names := make([]string, 0, len(cp.opts.tools))
	for name := range cp.opts.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	tools := make([]ToolDefinition, 0, len(names))
	for _, name := range names {
		tools = append(tools, CallTool(e, name, cp.opts.tools[name]))
	}

	uid, _ := botcore.Property[string](e, "user_id")
	answer, err := cp.service.RunAgent(ctx, sessionKey(uid), prompt, AgentOptions{Tools: tools})
	if err != nil {
		return nil, err
	}
	return botcore.Text(answer), nil
}
