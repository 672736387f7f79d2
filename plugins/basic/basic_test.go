package basic

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IMBotPlatform/Clovers/pkg/botcore"
	"github.com/IMBotPlatform/Clovers/pkg/command"
	"github.com/IMBotPlatform/Clovers/pkg/platform"
)

type harness struct {
	mu   sync.Mutex
	sent []string
	d    *botcore.Dispatcher
}

func newHarness(t *testing.T, plugins ...*botcore.Plugin) *harness {
	t.Helper()
	h := &harness{}
	a := botcore.NewAdapter("test")
	a.Property("user_id", func(ctx context.Context, extras botcore.Extras) (any, error) {
		return extras.String("uid"), nil
	})
	a.Property("chat_id", func(ctx context.Context, extras botcore.Extras) (any, error) {
		return "room", nil
	})
	a.Property("nickname", func(ctx context.Context, extras botcore.Extras) (any, error) {
		return "nick-" + extras.String("uid"), nil
	})
	a.Send("text", func(ctx context.Context, payload any, extras botcore.Extras) error {
		h.mu.Lock()
		h.sent = append(h.sent, payload.(string))
		h.mu.Unlock()
		return nil
	})
	a.Remix(platform.Common("test", func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }))

	h.d = botcore.NewDispatcher(a)
	require.NoError(t, h.d.AddPlugin(plugins...))
	require.NoError(t, h.d.Startup(context.Background()))
	return h
}

func (h *harness) say(uid, text string) (int, string) {
	n := h.d.Dispatch(context.Background(), text, botcore.Extras{"uid": uid})
	h.mu.Lock()
	defer h.mu.Unlock()
	if n == 0 || len(h.sent) == 0 {
		return n, ""
	}
	return n, h.sent[len(h.sent)-1]
}

func TestPingAndEcho(t *testing.T) {
	h := newHarness(t, Ping(), Echo(botcore.WithPluginPriority(1)))

	n, got := h.say("u1", "ping")
	assert.Equal(t, 1, n)
	assert.Equal(t, "pong", got)

	n, got = h.say("u1", "echo hello world")
	assert.Equal(t, 1, n)
	assert.Equal(t, "hello world", got)

	n, _ = h.say("u1", "say echo hi")
	assert.Equal(t, 0, n)
}

func TestSignSharedPrefix(t *testing.T) {
	h := newHarness(t, Sign())

	_, got := h.say("u1", "signin")
	assert.Equal(t, "nick-u1 签到成功，累计 1 次", got)
	_, got = h.say("u1", "sign in")
	assert.Equal(t, "nick-u1 签到成功，累计 2 次", got)
	_, got = h.say("u1", "sign out")
	assert.Equal(t, "nick-u1 签退成功", got)
	_, got = h.say("u1", "sign")
	assert.Equal(t, "用法: sign in | sign out", got)

	n, _ := h.say("u1", "sign up")
	assert.Equal(t, 0, n)
}

func TestConfirmConversation(t *testing.T) {
	h := newHarness(t, Confirm(time.Minute), Ping(botcore.WithPluginPriority(1)))

	_, got := h.say("u1", "confirm deploy")
	assert.Equal(t, "确认执行 deploy 吗？(yes/no)", got)

	// 其他用户不受影响
	_, got = h.say("u2", "ping")
	assert.Equal(t, "pong", got)

	_, got = h.say("u1", "maybe")
	assert.Equal(t, "请回答 yes 或 no", got)

	n, got := h.say("u1", "yes")
	assert.Equal(t, 1, n)
	assert.Equal(t, "已执行 deploy", got)

	_, got = h.say("u1", "ping")
	assert.Equal(t, "pong", got)
}

func TestCommands(t *testing.T) {
	mgr := command.NewManager(Commands(),
		command.WithStore(command.NewMemoryStore()),
		command.WithProperties("user_id", "chat_id"),
	)
	h := newHarness(t, mgr.Plugin("command"))

	cases := []struct{ in, want string }{
		{"/ping", "pong"},
		{"/echo -u shout it", "SHOUT IT"},
		{"/whoami", "room:u1"},
		{"/time", "2024-01-01T00:00:00Z"},
		{"/remember color green", "已记住 color"},
		{"/remember color", "color = green"},
		{"/remember size", "没有记录 size"},
		{"/ask anything", "执行出错: AI 未配置"},
	}
	for _, tc := range cases {
		n, got := h.say("u1", tc.in)
		assert.Equal(t, 1, n, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}
