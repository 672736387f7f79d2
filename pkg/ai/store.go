package ai

import (
	"context"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// SessionStore manages the persistence of chat history.
type SessionStore interface {
	// GetHistory retrieves the chat history for a given session.
	GetHistory(ctx context.Context, sessionID string) ([]llms.ChatMessage, error)

	// AddUserMessage adds a user message to the session history.
	AddUserMessage(ctx context.Context, sessionID, text string) error

	// AddAIMessage adds an AI response to the session history.
	AddAIMessage(ctx context.Context, sessionID, text string) error

	// ClearHistory clears the session history.
	ClearHistory(ctx context.Context, sessionID string) error
}

// MemoryStore 是进程内的 SessionStore，进程重启即丢失。
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]llms.ChatMessage
}

// NewMemoryStore 创建内存存储实例。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]llms.ChatMessage)}
}

// GetHistory 返回历史记录副本。
func (s *MemoryStore) GetHistory(ctx context.Context, sessionID string) ([]llms.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]llms.ChatMessage{}, s.data[sessionID]...), nil
}

// AddUserMessage 追加用户消息。
func (s *MemoryStore) AddUserMessage(ctx context.Context, sessionID, text string) error {
	s.append(sessionID, llms.HumanChatMessage{Content: text})
	return nil
}

// AddAIMessage 追加 AI 消息。
func (s *MemoryStore) AddAIMessage(ctx context.Context, sessionID, text string) error {
	s.append(sessionID, llms.AIChatMessage{Content: text})
	return nil
}

// ClearHistory 清空会话历史。
func (s *MemoryStore) ClearHistory(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.data, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) append(sessionID string, msg llms.ChatMessage) {
	s.mu.Lock()
	s.data[sessionID] = append(s.data[sessionID], msg)
	s.mu.Unlock()
}
