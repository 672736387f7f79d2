// Package webhook 接入以 HTTP JSON 回调推送消息、通过 response_url 主动回复的 IM 平台。
package webhook

// Message 表示平台回调的消息结构。
type Message struct {
	MsgID       string        `json:"msgid"`                 // 消息唯一标识，用于识别平台重投
	CreateTime  int64         `json:"create_time,omitempty"` // 消息创建时间
	ChatID      string        `json:"chatid"`                // 群或私聊会话 ID
	ChatType    string        `json:"chattype"`              // single/group
	From        MessageSender `json:"from"`                  // 触发者信息
	ResponseURL string        `json:"response_url"`          // 主动回复 URL
	MsgType     string        `json:"msgtype"`               // text, voice
	Text        *TextPayload  `json:"text,omitempty"`
	Voice       *VoicePayload `json:"voice,omitempty"`
}

// MessageSender 描述消息的触发者。
type MessageSender struct {
	UserID string `json:"userid"`
	Name   string `json:"name,omitempty"`
}

// TextPayload 为文本消息内容。
type TextPayload struct {
	Content string `json:"content"`
}

// VoicePayload 为语音消息内容。
type VoicePayload struct {
	Content string `json:"content"` // 语音转文本内容
}

// Content 返回可供分发的文本，非文本类消息返回空串。
func (m *Message) Content() string {
	if m == nil {
		return ""
	}
	switch {
	case m.Text != nil:
		return m.Text.Content
	case m.Voice != nil:
		return m.Voice.Content
	}
	return ""
}

// TextMessage 主动回复文本消息结构
type TextMessage struct {
	MsgType string      `json:"msgtype"` // text
	Text    TextPayload `json:"text"`
}

// MarkdownMessage 主动回复 Markdown 消息结构
type MarkdownMessage struct {
	MsgType  string          `json:"msgtype"` // markdown
	Markdown MarkdownPayload `json:"markdown"`
}

// MarkdownPayload 为 Markdown 消息内容。
type MarkdownPayload struct {
	Content string `json:"content"`
}
