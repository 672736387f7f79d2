package ai

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/IMBotPlatform/Clovers/pkg/botcore"
)

type outbox struct {
	mu   sync.Mutex
	sent []any
}

func (o *outbox) send(ctx context.Context, payload any, extras botcore.Extras) error {
	o.mu.Lock()
	o.sent = append(o.sent, payload)
	o.mu.Unlock()
	return nil
}

func (o *outbox) last() any {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sent) == 0 {
		return nil
	}
	return o.sent[len(o.sent)-1]
}

func newTestDispatcher(t *testing.T, p *botcore.Plugin, out *outbox) *botcore.Dispatcher {
	t.Helper()
	adapter := botcore.NewAdapter("test").Send("text", out.send)
	adapter.Property("user_id", func(ctx context.Context, extras botcore.Extras) (any, error) {
		return extras.String("uid"), nil
	})
	d := botcore.NewDispatcher(adapter)
	require.NoError(t, d.AddPlugin(p))
	require.NoError(t, d.Startup(context.Background()))
	return d
}

func TestPluginConversation(t *testing.T) {
	s := newTestService(t, &fakeModel{}, "")
	out := &outbox{}
	d := newTestDispatcher(t, NewPlugin("ai", s), out)
	ctx := context.Background()
	u1 := botcore.Extras{"uid": "u1"}
	u2 := botcore.Extras{"uid": "u2"}

	assert.Equal(t, 1, d.Dispatch(ctx, "ai", u1))
	assert.Contains(t, out.last(), "用法")

	assert.Equal(t, 1, d.Dispatch(ctx, "ai hello there", u1))
	assert.Equal(t, "echo: hello there", out.last())

	assert.Equal(t, 1, d.Dispatch(ctx, "and more", u1))
	assert.Equal(t, "echo: and more", out.last())

	// 其他用户不会被拉进对话
	assert.Equal(t, 0, d.Dispatch(ctx, "and more", u2))

	history, err := s.Store().GetHistory(ctx, "ai:u1")
	require.NoError(t, err)
	assert.Len(t, history, 4)

	assert.Equal(t, 1, d.Dispatch(ctx, "bye", u1))
	assert.Equal(t, "再见", out.last())
	history, err = s.Store().GetHistory(ctx, "ai:u1")
	require.NoError(t, err)
	assert.Empty(t, history)

	assert.Equal(t, 0, d.Dispatch(ctx, "are you there", u1))
}

func TestPluginCustomTriggers(t *testing.T) {
	s := newTestService(t, &fakeModel{}, "")
	out := &outbox{}
	p := NewPlugin("ai", s, WithTrigger("chat"), WithAgentTrigger(""), WithSessionTimeout(time.Minute))
	d := newTestDispatcher(t, p, out)
	ctx := context.Background()
	u1 := botcore.Extras{"uid": "u1"}

	assert.Equal(t, 0, d.Dispatch(ctx, "ai hello", u1))
	assert.Equal(t, 0, d.Dispatch(ctx, "agent hello", u1))

	assert.Equal(t, 1, d.Dispatch(ctx, "chat hello", u1))
	assert.Equal(t, "echo: hello", out.last())
	assert.Len(t, p.TemporaryHandles(), 1)
}

func TestPluginAgentUsesCallTools(t *testing.T) {
	model := &fakeModel{reply: func(messages []llms.MessageContent) (*llms.ContentResponse, error) {
		last := messages[len(messages)-1]
		if last.Role == llms.ChatMessageTypeTool {
			resp := last.Parts[0].(llms.ToolCallResponse)
			return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "you are " + resp.Content}}}, nil
		}
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
			ToolCalls: []llms.ToolCall{{
				ID:           "call-1",
				Type:         "function",
				FunctionCall: &llms.FunctionCall{Name: "user_id", Arguments: "{}"},
			}},
		}}}, nil
	}}
	s := newTestService(t, model, "")
	out := &outbox{}
	p := NewPlugin("ai", s, WithCallTools(map[string]string{"user_id": "current user id"}))
	d := newTestDispatcher(t, p, out)

	assert.Equal(t, 1, d.Dispatch(context.Background(), "agent who am i", botcore.Extras{"uid": "u9"}))
	assert.Equal(t, "you are u9", out.last())
	assert.Len(t, model.calls(), 2)
}

func TestRunAgentMaxTurns(t *testing.T) {
	model := &fakeModel{reply: func(messages []llms.MessageContent) (*llms.ContentResponse, error) {
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
			ToolCalls: []llms.ToolCall{{ID: "x", Type: "function", FunctionCall: &llms.FunctionCall{Name: "missing"}}},
		}}}, nil
	}}
	s := newTestService(t, model, "")
	_, err := s.RunAgent(context.Background(), "s", "loop", AgentOptions{MaxTurns: 3})
	assert.ErrorIs(t, err, ErrMaxTurns)
	assert.Len(t, model.calls(), 3)
}

func TestRunAgentToolCallWithoutFunction(t *testing.T) {
	model := &fakeModel{reply: func(messages []llms.MessageContent) (*llms.ContentResponse, error) {
		last := messages[len(messages)-1]
		if last.Role == llms.ChatMessageTypeTool {
			resp := last.Parts[0].(llms.ToolCallResponse)
			return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "tool said: " + resp.Content}}}, nil
		}
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
			ToolCalls: []llms.ToolCall{{ID: "bad", Type: "function"}},
		}}}, nil
	}}
	s := newTestService(t, model, "")

	got, err := s.RunAgent(context.Background(), "s", "go", AgentOptions{})
	require.NoError(t, err)
	assert.Equal(t, "tool said: Error: tool call has no function", got)

	calls := model.calls()
	require.Len(t, calls, 2)
	assistant := calls[1][len(calls[1])-2]
	call, ok := assistant.Parts[1].(llms.ToolCall)
	require.True(t, ok)
	require.NotNil(t, call.FunctionCall)
	assert.Equal(t, "bad", call.ID)
}
