package command

import "context"

// LLMProvider 定义命令层依赖的 AI 能力接口。
// 这使得命令可以调用 AI 服务，而无需直接依赖 pkg/ai 包。
type LLMProvider interface {
	// Complete 在 sessionID 对应的会话中发起一轮对话并返回完整回复。
	Complete(ctx context.Context, sessionID, prompt string) (string, error)
}
