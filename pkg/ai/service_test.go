package ai

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeModel 回显最后一条消息，并记录每次调用看到的消息。
type fakeModel struct {
	mu    sync.Mutex
	seen  [][]llms.MessageContent
	reply func(messages []llms.MessageContent) (*llms.ContentResponse, error)
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	f.mu.Lock()
	f.seen = append(f.seen, append([]llms.MessageContent(nil), messages...))
	f.mu.Unlock()

	reply := f.reply
	if reply == nil {
		reply = echoReply
	}
	resp, err := reply(messages)
	if err != nil {
		return nil, err
	}
	if opts.StreamingFunc != nil && len(resp.Choices) > 0 {
		content := resp.Choices[0].Content
		half := len(content) / 2
		for _, chunk := range []string{content[:half], content[half:]} {
			if err := opts.StreamingFunc(ctx, []byte(chunk)); err != nil {
				return nil, err
			}
		}
	}
	return resp, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func (f *fakeModel) calls() [][]llms.MessageContent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]llms.MessageContent(nil), f.seen...)
}

func textOf(m llms.MessageContent) string {
	var b strings.Builder
	for _, p := range m.Parts {
		if t, ok := p.(llms.TextContent); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

func echoReply(messages []llms.MessageContent) (*llms.ContentResponse, error) {
	last := messages[len(messages)-1]
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "echo: " + textOf(last)}}}, nil
}

func newTestService(t *testing.T, model llms.Model, system string) *Service {
	t.Helper()
	s := NewService(&Config{DefaultModel: "fake", System: system}, nil)
	s.RegisterModel("fake", model)
	return s
}

func TestServiceCompleteKeepsHistory(t *testing.T) {
	model := &fakeModel{}
	s := newTestService(t, model, "be brief")

	got, err := s.Complete(context.Background(), "s1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", got)

	got, err = s.Complete(context.Background(), "s1", "again")
	require.NoError(t, err)
	assert.Equal(t, "echo: again", got)

	calls := model.calls()
	require.Len(t, calls, 2)
	second := calls[1]
	require.Len(t, second, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, second[0].Role)
	assert.Equal(t, "be brief", textOf(second[0]))
	assert.Equal(t, "echo: hello", textOf(second[2]))

	history, err := s.Store().GetHistory(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestServiceChatStreams(t *testing.T) {
	s := newTestService(t, &fakeModel{}, "")
	stream, err := s.Chat(context.Background(), "s1", "stream me")
	require.NoError(t, err)

	var chunks []string
	for c := range stream {
		chunks = append(chunks, c)
	}
	assert.Len(t, chunks, 2)
	assert.Equal(t, "echo: stream me", strings.Join(chunks, ""))

	history, err := s.Store().GetHistory(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "echo: stream me", history[1].GetContent())
}

func TestServiceChatReportsError(t *testing.T) {
	model := &fakeModel{reply: func([]llms.MessageContent) (*llms.ContentResponse, error) {
		return nil, errors.New("quota exceeded")
	}}
	s := newTestService(t, model, "")
	stream, err := s.Chat(context.Background(), "s1", "hi")
	require.NoError(t, err)
	var out strings.Builder
	for c := range stream {
		out.WriteString(c)
	}
	assert.Contains(t, out.String(), "[AI_ERROR]")
	assert.Contains(t, out.String(), "quota exceeded")
}

func TestServiceUnknownModel(t *testing.T) {
	s := NewService(&Config{DefaultModel: "missing"}, nil)
	_, err := s.Complete(context.Background(), "s1", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in configuration")

	s = NewService(&Config{DefaultModel: "x", Models: []ModelConfig{{Name: "x", Provider: "nope"}}}, nil)
	_, err = s.Chat(context.Background(), "s1", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("CLOVERS_TEST_KEY", "secret")
	assert.Equal(t, "secret", resolveAPIKey("env:CLOVERS_TEST_KEY"))
	assert.Equal(t, "plain", resolveAPIKey("plain"))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ai.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default_model: gpt
system: you are a bot
session_timeout: 90s
models:
  - name: gpt
    provider: openai
    api_key: env:OPENAI_API_KEY
    model_name: gpt-4o-mini
    max_tokens: 512
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.Enabled())
	assert.Equal(t, "gpt", cfg.DefaultModel)
	assert.Equal(t, 90*time.Second, cfg.SessionTimeout)
	require.Len(t, cfg.Models, 1)
	assert.Equal(t, 512, cfg.Models[0].MaxTokens)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.AddUserMessage(ctx, "ai:u1", "question <1>"))
	require.NoError(t, store.AddAIMessage(ctx, "ai:u1", "answer"))

	path := store.getFilePath("ai:u1")
	assert.Equal(t, dir, filepath.Dir(path))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	history, err := store.GetHistory(ctx, "ai:u1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, llms.ChatMessageTypeHuman, history[0].GetType())
	assert.Equal(t, "question <1>", history[0].GetContent())
	assert.Equal(t, llms.ChatMessageTypeAI, history[1].GetType())

	require.NoError(t, store.ClearHistory(ctx, "ai:u1"))
	require.NoError(t, store.ClearHistory(ctx, "ai:u1"))
	history, err = store.GetHistory(ctx, "ai:u1")
	require.NoError(t, err)
	assert.Empty(t, history)

	assert.Equal(t, dir, filepath.Dir(store.getFilePath("../../etc/passwd")))
}
