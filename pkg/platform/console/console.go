// Package console 把标准输入输出接成一个单用户聊天平台，便于本地调试插件。
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/IMBotPlatform/Clovers/pkg/botcore"
)

// Console 是读写两端与身份信息。
type Console struct {
	UserID   string
	Nickname string

	mu  sync.Mutex
	out io.Writer
}

// New 创建 Console，输出写到 out。
func New(out io.Writer, userID, nickname string) *Console {
	if userID == "" {
		userID = "console"
	}
	return &Console{UserID: userID, Nickname: nickname, out: out}
}

func (c *Console) writef(format string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, format, args...)
	return err
}

// Adapter 返回控制台适配器。
//
// property: user_id, chat_id, nickname
// send: text, markdown
func (c *Console) Adapter(opts ...botcore.AdapterOption) *botcore.Adapter {
	a := botcore.NewAdapter("console", opts...)
	a.Property("user_id", func(ctx context.Context, extras botcore.Extras) (any, error) {
		return c.UserID, nil
	})
	a.Property("chat_id", func(ctx context.Context, extras botcore.Extras) (any, error) {
		return "console", nil
	})
	if c.Nickname != "" {
		a.Property("nickname", func(ctx context.Context, extras botcore.Extras) (any, error) {
			return c.Nickname, nil
		})
	}
	a.Send("text", func(ctx context.Context, payload any, extras botcore.Extras) error {
		return c.writef("%v\n", payload)
	})
	a.Send("markdown", func(ctx context.Context, payload any, extras botcore.Extras) error {
		return c.writef("[markdown]\n%v\n", payload)
	})
	return a
}

// Run 逐行读取 in 并分发，直到输入结束或 ctx 取消。空行被忽略。
func (c *Console) Run(ctx context.Context, in io.Reader, d *botcore.Dispatcher) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if d.Dispatch(ctx, line, botcore.Extras{}) == 0 {
			if err := c.writef("(no response)\n"); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}
