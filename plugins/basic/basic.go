// Package basic 提供演示用的基础插件：ping、echo、签到与确认对话。
package basic

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IMBotPlatform/Clovers/pkg/botcore"
)

// Ping 回复 pong。
func Ping(opts ...botcore.PluginOption) *botcore.Plugin {
	p := botcore.NewPlugin("ping", opts...)
	_, _ = p.Handle(botcore.Literal("ping"), func(ctx context.Context, e *botcore.Event) (*botcore.Result, error) {
		return botcore.Text("pong"), nil
	})
	return p
}

// Echo 复读 "echo <text>" 中的 text。
func Echo(opts ...botcore.PluginOption) *botcore.Plugin {
	p := botcore.NewPlugin("echo", opts...)
	_, _ = p.Handle(botcore.Regex(`^echo\s+(.+)$`), func(ctx context.Context, e *botcore.Event) (*botcore.Result, error) {
		return botcore.Text(e.Args[0]), nil
	})
	return p
}

// signBook 记录每个用户的签到次数。
type signBook struct {
	mu     sync.Mutex
	counts map[string]int
}

func (b *signBook) add(user string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts[user]++
	return b.counts[user]
}

// Sign 是签到插件。"signin" 与 "sign" 共享前缀：
// "signin" 精确匹配优先，"sign in" / "sign out" 由 "sign" 处理。
func Sign(opts ...botcore.PluginOption) *botcore.Plugin {
	book := &signBook{counts: make(map[string]int)}
	p := botcore.NewPlugin("sign", opts...)

	signin := func(ctx context.Context, e *botcore.Event) (*botcore.Result, error) {
		uid, _ := botcore.Property[string](e, "user_id")
		nick, _ := botcore.Property[string](e, "nickname")
		n := book.add(uid)
		return botcore.Text(fmt.Sprintf("%s 签到成功，累计 %d 次", nick, n)), nil
	}
	props := botcore.WithProperties("user_id", "nickname")

	_, _ = p.Handle(botcore.Literal("signin"), signin, props)
	_, _ = p.Handle(botcore.Literal("sign"), func(ctx context.Context, e *botcore.Event) (*botcore.Result, error) {
		if len(e.Args) == 0 {
			return botcore.Text("用法: sign in | sign out"), nil
		}
		switch e.Args[0] {
		case "in":
			return signin(ctx, e)
		case "out":
			nick, _ := botcore.Property[string](e, "nickname")
			return botcore.Text(nick + " 签退成功"), nil
		}
		return nil, nil
	}, props, botcore.WithPriority(1))
	return p
}

// Confirm 演示临时响应器：发送 "confirm <动作>" 后进入确认对话，
// 同一用户回复 yes/no 结束，其他回复会续期并重新提示。
func Confirm(timeout time.Duration, opts ...botcore.PluginOption) *botcore.Plugin {
	p := botcore.NewPlugin("confirm", opts...)
	_, _ = p.Handle(botcore.Literal("confirm"), func(ctx context.Context, e *botcore.Event) (*botcore.Result, error) {
		action := strings.TrimSpace(strings.Join(e.Args, " "))
		if action == "" {
			return botcore.Text("用法: confirm <动作>"), nil
		}
		uid, _ := botcore.Property[string](e, "user_id")
		p.TempHandle("confirm:"+uid, timeout, answer(action, timeout),
			botcore.WithProperties("user_id"),
			botcore.WithRule(sameUser(uid)),
		)
		return botcore.Text(fmt.Sprintf("确认执行 %s 吗？(yes/no)", action)), nil
	}, botcore.WithProperties("user_id"))
	return p
}

func answer(action string, timeout time.Duration) botcore.TempHandlerFunc {
	return func(ctx context.Context, e *botcore.Event, s *botcore.Session) (*botcore.Result, error) {
		switch strings.ToLower(strings.TrimSpace(e.Message)) {
		case "yes", "y":
			s.Finish()
			return botcore.Text("已执行 " + action), nil
		case "no", "n":
			s.Finish()
			return botcore.Text("已取消 " + action), nil
		}
		s.Delay(timeout)
		return botcore.Text("请回答 yes 或 no"), nil
	}
}

func sameUser(owner string) botcore.Checker {
	return func(e *botcore.Event) bool {
		uid, _ := botcore.Property[string](e, "user_id")
		return uid == owner
	}
}
