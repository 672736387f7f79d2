package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/IMBotPlatform/Clovers/pkg/botcore"
)

// ExtraMessage 是 extras 中存放 *Message 的键。
const ExtraMessage = "webhook.message"

var errNoMessage = errors.New("extras carry no webhook message")

// MessageFrom 从 extras 取出回调消息。
func MessageFrom(extras botcore.Extras) (*Message, bool) {
	msg, ok := extras[ExtraMessage].(*Message)
	return msg, ok && msg != nil
}

// Extract 是 botcore.Extractor：取回调消息的文本内容。
func Extract(extras botcore.Extras) (string, bool) {
	msg, ok := MessageFrom(extras)
	if !ok {
		return "", false
	}
	content := msg.Content()
	return content, content != ""
}

// messageProperty 把对 *Message 的字段读取包装为 property 方法。
func messageProperty(get func(*Message) string) botcore.PropertyFunc {
	return func(ctx context.Context, extras botcore.Extras) (any, error) {
		msg, ok := MessageFrom(extras)
		if !ok {
			return nil, errNoMessage
		}
		return get(msg), nil
	}
}

// messageSend 把 payload 通过 response_url 发送。
func messageSend(send func(ctx context.Context, url, content string) error) botcore.SendFunc {
	return func(ctx context.Context, payload any, extras botcore.Extras) error {
		msg, ok := MessageFrom(extras)
		if !ok {
			return errNoMessage
		}
		return send(ctx, msg.ResponseURL, fmt.Sprint(payload))
	}
}

// NewAdapter 创建 webhook 平台适配器。
//
// property: user_id, chat_id, chat_type, nickname, msg_id
// send: text, markdown
func NewAdapter(client *Client, opts ...botcore.AdapterOption) *botcore.Adapter {
	a := botcore.NewAdapter("webhook", opts...)
	a.Property("user_id", messageProperty(func(m *Message) string { return m.From.UserID }))
	a.Property("chat_id", messageProperty(func(m *Message) string { return m.ChatID }))
	a.Property("chat_type", messageProperty(func(m *Message) string { return m.ChatType }))
	a.Property("msg_id", messageProperty(func(m *Message) string { return m.MsgID }))
	a.Property("nickname", messageProperty(func(m *Message) string {
		if m.From.Name != "" {
			return m.From.Name
		}
		return m.From.UserID
	}))
	a.Send("text", messageSend(client.SendText))
	a.Send("markdown", messageSend(client.SendMarkdown))
	return a
}
