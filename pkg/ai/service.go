package ai

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// Service 是 AI 逻辑的主要入口点。
// 它负责管理模型实例、会话状态以及与 LLM 的交互。
type Service struct {
	config *Config
	store  SessionStore
	logger *zap.Logger

	mu         sync.Mutex
	modelCache map[string]llms.Model
}

// ServiceOption 定制 Service 行为。
type ServiceOption func(*Service)

// WithLogger 注入日志记录器。
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService 创建一个新的 AI 服务实例。store 为 nil 时使用 MemoryStore。
func NewService(config *Config, store SessionStore, opts ...ServiceOption) *Service {
	if config == nil {
		config = &Config{}
	}
	if store == nil {
		store = NewMemoryStore()
	}
	s := &Service{
		config:     config,
		store:      store,
		logger:     zap.NewNop(),
		modelCache: make(map[string]llms.Model),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Store 返回会话存储。
func (s *Service) Store() SessionStore {
	return s.store
}

// RegisterModel 以 name 注册一个已构建的模型，优先于配置中的同名模型。
func (s *Service) RegisterModel(name string, model llms.Model) {
	s.mu.Lock()
	s.modelCache[name] = model
	s.mu.Unlock()
}

// resolveAPIKey 解析 API 密钥。
// 如果密钥以 "env:" 开头，则从环境变量中获取实际值。
func resolveAPIKey(key string) string {
	if strings.HasPrefix(key, "env:") {
		return os.Getenv(strings.TrimPrefix(key, "env:"))
	}
	return key
}

func (s *Service) modelConfig(name string) *ModelConfig {
	for i := range s.config.Models {
		if s.config.Models[i].Name == name {
			return &s.config.Models[i]
		}
	}
	return nil
}

// getModel 获取模型实例。
// 如果缓存中存在则直接返回，否则初始化一个新的模型实例并缓存。
//
// 逻辑流程:
// Check Cache -> (Hit) -> Return
//
//	  |
//	(Miss)
//	  v
//
// Load Config -> Init Provider (OpenAI/Google/Anthropic) -> Update Cache -> Return
func (s *Service) getModel(ctx context.Context, modelName string) (llms.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if model, ok := s.modelCache[modelName]; ok {
		return model, nil
	}

	cfg := s.modelConfig(modelName)
	if cfg == nil {
		return nil, fmt.Errorf("model '%s' not found in configuration", modelName)
	}

	var llm llms.Model
	var err error

	apiKey := resolveAPIKey(cfg.APIKey)

	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(apiKey),
			openai.WithModel(cfg.ModelName),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	case "google":
		llm, err = googleai.New(ctx,
			googleai.WithAPIKey(apiKey),
			googleai.WithDefaultModel(cfg.ModelName),
		)
	case "anthropic":
		opts := []anthropic.Option{
			anthropic.WithToken(apiKey),
			anthropic.WithModel(cfg.ModelName),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		llm, err = anthropic.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create model provider: %w", err)
	}

	s.modelCache[modelName] = llm
	return llm, nil
}

// callOptions 把模型配置转为调用参数。
func (s *Service) callOptions(modelName string) []llms.CallOption {
	cfg := s.modelConfig(modelName)
	if cfg == nil {
		return nil
	}
	var opts []llms.CallOption
	if cfg.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(cfg.Temperature))
	}
	return opts
}

// ChatOptions 定义调用 Chat 时的配置。
type ChatOptions struct {
	Model string
}

// ChatOption 是配置 ChatOptions 的函数。
type ChatOption func(*ChatOptions)

// WithModel 指定使用的模型。
func WithModel(model string) ChatOption {
	return func(o *ChatOptions) {
		o.Model = model
	}
}

func (s *Service) chatOptions(opts []ChatOption) ChatOptions {
	options := ChatOptions{Model: s.config.DefaultModel}
	for _, o := range opts {
		if o != nil {
			o(&options)
		}
	}
	if options.Model == "" {
		options.Model = s.config.DefaultModel
	}
	return options
}

// history 加载会话历史并转为 GenerateContent 所需的消息片段，系统提示词置于最前。
func (s *Service) history(ctx context.Context, sessionID string) ([]llms.MessageContent, error) {
	history, err := s.store.GetHistory(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	messages := make([]llms.MessageContent, 0, len(history)+1)
	if s.config.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, s.config.System))
	}
	for _, msg := range history {
		messages = append(messages, llms.TextParts(msg.GetType(), msg.GetContent()))
	}
	return messages, nil
}

// generate 完成一轮对话：保存用户消息、加载历史、调用模型、保存回复。
// onChunk 非 nil 时以流式方式逐段回调。
func (s *Service) generate(ctx context.Context, sessionID, prompt string, options ChatOptions, onChunk func(string) error) (string, error) {
	llm, err := s.getModel(ctx, options.Model)
	if err != nil {
		return "", err
	}

	if err := s.store.AddUserMessage(ctx, sessionID, prompt); err != nil {
		return "", fmt.Errorf("failed to add user message: %w", err)
	}

	// TODO: 长对话可在此处增加窗口裁剪以控制 Token 大小。
	messages, err := s.history(ctx, sessionID)
	if err != nil {
		return "", err
	}

	callOpts := s.callOptions(options.Model)
	var fullResponse strings.Builder
	if onChunk != nil {
		callOpts = append(callOpts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			fullResponse.Write(chunk)
			return onChunk(string(chunk))
		}))
	}

	resp, err := llm.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return "", fmt.Errorf("llm generate error: %w", err)
	}
	if fullResponse.Len() == 0 && resp != nil && len(resp.Choices) > 0 {
		fullResponse.WriteString(resp.Choices[0].Content)
	}

	answer := fullResponse.String()
	if answer != "" {
		// 存储失败不影响已生成的回复
		if err := s.store.AddAIMessage(context.WithoutCancel(ctx), sessionID, answer); err != nil {
			s.logger.Warn("failed to save ai message", zap.String("session", sessionID), zap.Error(err))
		}
	}
	return answer, nil
}

// Complete 处理用户的消息并返回完整回复。
func (s *Service) Complete(ctx context.Context, sessionID, prompt string) (string, error) {
	return s.generate(ctx, sessionID, prompt, s.chatOptions(nil), nil)
}

// Chat 处理用户的消息，与 LLM 交互，并返回流式响应。
//
// 核心架构流程图:
//
//	User Input (String)
//	      |
//	      v
//	+-------------------------+
//	| SessionStore            |
//	| 1. Save User Message    |
//	| 2. Load Full History    |
//	+-----------+-------------+
//	            |
//	            v
//	+--------------------------+
//	| LLM Provider (OpenAI/..) |
//	| 3. GenerateContent()     |
//	+-----------+--------------+
//	            |
//	            +-------------------------> [Output Channel] -> (Stream to User)
//	            |
//	            v
//	+-------------------------+
//	| SessionStore            |
//	| 4. Save AI Response     |
//	+-------------------------+
//
// 调用方必须读完通道或取消 ctx。
func (s *Service) Chat(ctx context.Context, sessionID, prompt string, opts ...ChatOption) (<-chan string, error) {
	options := s.chatOptions(opts)
	if _, err := s.getModel(ctx, options.Model); err != nil {
		return nil, err
	}

	stream := make(chan string)
	go func() {
		defer close(stream)
		send := func(chunk string) error {
			select {
			case stream <- chunk:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if _, err := s.generate(ctx, sessionID, prompt, options, send); err != nil {
			s.logger.Warn("streaming error", zap.String("session", sessionID), zap.Error(err))
			_ = send(fmt.Sprintf("\n[AI_ERROR]: %v", err))
		}
	}()

	return stream, nil
}
