package command

import (
	"context"
	"fmt"
	"sync"

	"github.com/IMBotPlatform/Clovers/pkg/botcore"
)

// keyExecutionContext 是 context.Context 中存储 ExecutionContext 的键。
type keyExecutionContext struct{}

// ContextValues 存储命令执行过程中的上下文扩展字段。
type ContextValues map[string]string

// ConversationStore 定义上下文存取接口，便于替换实现。
type ConversationStore interface {
	Load(key string) (ContextValues, error)
	Save(key string, values ContextValues) error
}

// ExecutionContext 为命令 handler 提供必要的环境信息。
type ExecutionContext struct {
	Event  *botcore.Event
	Parsed ParseResult
	Values ContextValues
	Store  ConversationStore
	llm    LLMProvider

	mu       sync.Mutex
	result   *botcore.Result
	silenced bool
}

// SetResult 指定命令的最终回复，覆盖 Out/Err 收集到的文本（例如发送 markdown）。
func (ctx *ExecutionContext) SetResult(result *botcore.Result) {
	ctx.mu.Lock()
	ctx.result = result
	ctx.mu.Unlock()
}

// SetNoResponse 声明本次命令不回复，即使有输出。
func (ctx *ExecutionContext) SetNoResponse() {
	ctx.mu.Lock()
	ctx.silenced = true
	ctx.mu.Unlock()
}

func (ctx *ExecutionContext) outcome() (*botcore.Result, bool) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.result, ctx.silenced
}

// LLM 返回 AI 服务提供者，未注入时为 nil。
func (ctx *ExecutionContext) LLM() LLMProvider {
	return ctx.llm
}

// ConversationKey 返回当前上下文在存储中的唯一 key（chat_id:user_id）。
func (ctx *ExecutionContext) ConversationKey() string {
	if ctx == nil || ctx.Event == nil {
		return ""
	}
	chatID, _ := botcore.Property[string](ctx.Event, "chat_id")
	userID, _ := botcore.Property[string](ctx.Event, "user_id")
	if chatID == "" && userID == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", chatID, userID)
}

// WithExecutionContext 将 ExecutionContext 注入到标准 context.Context 中。
func WithExecutionContext(ctx context.Context, execCtx *ExecutionContext) context.Context {
	return context.WithValue(ctx, keyExecutionContext{}, execCtx)
}

// FromContext 从标准 context.Context 中提取 ExecutionContext。
func FromContext(ctx context.Context) *ExecutionContext {
	val, _ := ctx.Value(keyExecutionContext{}).(*ExecutionContext)
	return val
}
