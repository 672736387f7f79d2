package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/IMBotPlatform/Clovers/pkg/botcore"
)

// ErrMaxTurns 表示 Agent 在允许的轮数内没有给出最终回复。
var ErrMaxTurns = errors.New("max turns reached")

// DefaultMaxTurns 是 Agent 循环的默认轮数上限。
const DefaultMaxTurns = 10

// ToolDefinition 定义工具的接口
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON Schema
	Function    func(ctx context.Context, args string) (string, error)
}

// emptyObjectSchema 是无参数工具的 JSON Schema。
var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// CallTool 把事件上绑定的适配器 call 方法包装为无参数工具，
// 让模型可以按需查询 user_id、time 等平台信息。
func CallTool(event *botcore.Event, name, description string) ToolDefinition {
	return ToolDefinition{
		Name:        name,
		Description: description,
		Parameters:  emptyObjectSchema,
		Function: func(ctx context.Context, _ string) (string, error) {
			v, err := event.Call(ctx, name)
			if err != nil {
				return "", err
			}
			return fmt.Sprint(v), nil
		},
	}
}

// AgentOptions 定义 Agent 运行时的选项
type AgentOptions struct {
	Model      string
	Tools      []ToolDefinition
	MaxTurns   int
	StreamFunc func(string) // 实时输出中间思考过程或工具结果
}

// RunAgent 运行一个支持工具调用的 Agent 循环。
// 中间步骤不写入会话存储，只读取已有历史作为上下文。
//
// 流程图：
//
//	[加载历史+prompt] -> [GenerateContent(tools)] --无工具调用--> [返回最终回复]
//	                           ^        |
//	                           |   [逐个执行工具]
//	                           |        |
//	                           +--[追加工具结果]  (超过 MaxTurns -> ErrMaxTurns)
func (s *Service) RunAgent(ctx context.Context, sessionID, prompt string, opts AgentOptions) (string, error) {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	options := s.chatOptions([]ChatOption{WithModel(opts.Model)})

	llm, err := s.getModel(ctx, options.Model)
	if err != nil {
		return "", err
	}

	messages, err := s.history(ctx, sessionID)
	if err != nil {
		return "", err
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	var llmTools []llms.Tool
	toolMap := make(map[string]ToolDefinition)
	for _, t := range opts.Tools {
		toolMap[t.Name] = t
		llmTools = append(llmTools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	callOpts := s.callOptions(options.Model)
	if len(llmTools) > 0 {
		callOpts = append(callOpts, llms.WithTools(llmTools))
	}

	for i := 0; i < opts.MaxTurns; i++ {
		resp, err := llm.GenerateContent(ctx, messages, callOpts...)
		if err != nil {
			return "", fmt.Errorf("llm generate error: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("empty response from llm")
		}

		choice := resp.Choices[0]
		if len(choice.ToolCalls) == 0 {
			if opts.StreamFunc != nil {
				opts.StreamFunc(choice.Content)
			}
			return choice.Content, nil
		}

		if choice.Content != "" && opts.StreamFunc != nil {
			opts.StreamFunc(choice.Content + "\n")
		}

		// Assistant 消息需要带上工具调用，否则后续的工具结果无法对应
		msg := llms.MessageContent{
			Role:  llms.ChatMessageTypeAI,
			Parts: []llms.ContentPart{llms.TextPart(choice.Content)},
		}
		for _, tc := range choice.ToolCalls {
			fc := functionCall(tc)
			msg.Parts = append(msg.Parts, llms.ToolCall{
				ID:           tc.ID,
				Type:         tc.Type,
				FunctionCall: &fc,
			})
		}
		messages = append(messages, msg)

		for _, tc := range choice.ToolCalls {
			name := functionCall(tc).Name
			result := s.runTool(ctx, toolMap, tc)
			if opts.StreamFunc != nil {
				opts.StreamFunc(fmt.Sprintf("tool %s: %s\n", name, result))
			}
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: tc.ID,
						Name:       name,
						Content:    result,
					},
				},
			})
		}
	}

	return "", ErrMaxTurns
}

// runTool 执行单个工具调用，错误以文本形式回传给模型。
func (s *Service) runTool(ctx context.Context, tools map[string]ToolDefinition, tc llms.ToolCall) string {
	if tc.FunctionCall == nil {
		s.logger.Warn("agent returned tool call without function", zap.String("id", tc.ID))
		return "Error: tool call has no function"
	}
	name := tc.FunctionCall.Name
	tool, ok := tools[name]
	if !ok || tool.Function == nil {
		s.logger.Warn("agent requested unknown tool", zap.String("tool", name))
		return fmt.Sprintf("Error: Tool %s not found", name)
	}
	result, err := tool.Function(ctx, tc.FunctionCall.Arguments)
	if err != nil {
		s.logger.Info("agent tool failed", zap.String("tool", name), zap.Error(err))
		return fmt.Sprintf("Error: %v", err)
	}
	return result
}

// functionCall 返回工具调用的函数部分，模型漏掉时为零值。
func functionCall(tc llms.ToolCall) llms.FunctionCall {
	if tc.FunctionCall == nil {
		return llms.FunctionCall{}
	}
	return *tc.FunctionCall
}
