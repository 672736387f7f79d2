package command

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/IMBotPlatform/Clovers/pkg/botcore"
)

const commandLogSnippet = 256

// Manager 负责串联解析、构建 Cobra 命令树并执行，对外暴露为一个 botcore 响应器。
type Manager struct {
	factory    CommandFactory
	prefix     string
	store      ConversationStore
	llm        LLMProvider
	properties []string
	logger     *zap.Logger
}

// ManagerOption 自定义 Manager 行为。
type ManagerOption func(*Manager)

// WithLogger 注入自定义日志记录器。
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithPrefix 设置命令前缀，默认 "/"，空串保持默认。
func WithPrefix(prefix string) ManagerOption {
	return func(m *Manager) {
		if prefix != "" {
			m.prefix = prefix
		}
	}
}

// WithStore 注入命令上下文存储。
func WithStore(store ConversationStore) ManagerOption {
	return func(m *Manager) {
		m.store = store
	}
}

// WithLLM 注入 AI 服务，命令通过 ExecutionContext.LLM 使用。
func WithLLM(llm LLMProvider) ManagerOption {
	return func(m *Manager) {
		m.llm = llm
	}
}

// WithProperties 声明执行命令前需要解析的 property（例如 user_id、chat_id 用于会话 key）。
func WithProperties(names ...string) ManagerOption {
	return func(m *Manager) {
		m.properties = append(m.properties, names...)
	}
}

// NewManager 绑定命令工厂，返回管理器。
func NewManager(factory CommandFactory, opts ...ManagerOption) *Manager {
	mgr := &Manager{
		factory: factory,
		prefix:  DefaultPrefix,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(mgr)
		}
	}
	return mgr
}

// Plugin 以命令前缀为字面量触发器，把 Manager 包装为插件。
// 注册失败会记录在插件上，插件在 Startup 时被排除。
func (m *Manager) Plugin(name string, opts ...botcore.PluginOption) *botcore.Plugin {
	p := botcore.NewPlugin(name, opts...)
	_, _ = p.Handle(botcore.Literal(m.prefix), m.Handle, botcore.WithProperties(m.properties...))
	return p
}

// Handle 为每条消息构建独立的命令树并执行，收集输出作为回复。
// event 需由 Plugin 注册的前缀触发器产生，命令 token 取自其 Args。
//
// 流程图：
//
//	[解析前缀] --非命令--> [不响应]
//	     |
//	[构建命令树] -> [Find] --未知命令--> [不响应]
//	     |
//	[加载上下文] -> [ExecuteContext] --error--> [追加错误提示]
//	     |
//	[SetNoResponse?] --是--> [不响应]
//	     |
//	[SetResult?] --是--> [返回该 Result]
//	     |
//	[返回收集的文本]
func (m *Manager) Handle(ctx context.Context, event *botcore.Event) (*botcore.Result, error) {
	if m == nil || m.factory == nil {
		return nil, fmt.Errorf("command manager not initialized: %w", ErrCommandRequired)
	}

	parsed := parseEvent(m.prefix, event)
	if !parsed.IsCommand {
		return nil, nil
	}

	rootCmd := m.factory()
	if rootCmd == nil {
		return nil, ErrCommandRequired
	}
	out := NewBufferWriter()
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.InitDefaultHelpCmd()

	args := parsed.Tokens
	// 第一个 token 与根命令同名时移除，避免 "unknown command X for X"
	if len(args) > 0 && strings.EqualFold(args[0], rootCmd.Name()) {
		args = args[1:]
	}
	if _, _, err := rootCmd.Find(args); err != nil {
		m.logger.Debug("command not found",
			zap.Strings("args", args),
			zap.Error(fmt.Errorf("%w: %v", ErrCommandNotFound, err)),
		)
		return nil, nil
	}

	execCtx := &ExecutionContext{
		Event:  event,
		Parsed: parsed,
		Store:  m.store,
		llm:    m.llm,
	}
	if m.store != nil {
		if key := execCtx.ConversationKey(); key != "" {
			values, err := m.store.Load(key)
			if err != nil {
				m.logger.Warn("load command context failed", zap.String("key", key), zap.Error(err))
			}
			execCtx.Values = values
		}
	}

	rootCmd.SetArgs(args)
	m.logger.Debug("executing command",
		zap.String("text", truncateForLog(parsed.Raw, commandLogSnippet)),
		zap.Strings("args", args),
	)
	if err := rootCmd.ExecuteContext(WithExecutionContext(ctx, execCtx)); err != nil {
		m.logger.Info("command execution error", zap.Strings("args", args), zap.Error(err))
		fmt.Fprintf(out, "\n执行出错: %v", err)
	}

	result, silenced := execCtx.outcome()
	switch {
	case silenced:
		return nil, nil
	case result != nil:
		return result, nil
	}
	text := out.String()
	if text == "" {
		return nil, nil
	}
	return botcore.Text(text), nil
}

// truncateForLog 限制日志中输出的文本长度。
func truncateForLog(src string, limit int) string {
	if limit <= 0 || len(src) <= limit {
		return src
	}
	return fmt.Sprintf("%s...(truncated)", src[:limit])
}
