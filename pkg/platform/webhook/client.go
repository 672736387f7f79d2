package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNoResponseURL 表示消息没有可用的 response_url。
var ErrNoResponseURL = errors.New("response_url is empty")

// Client 封装主动回复功能。
type Client struct {
	httpClient *http.Client
}

// NewClient 创建一个新的 Client，timeout<=0 时使用 10 秒。
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Send 向指定的 response_url 发送主动回复消息。
func (c *Client) Send(ctx context.Context, responseURL string, msg any) error {
	if responseURL == "" {
		return ErrNoResponseURL
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, responseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reply api error: status=%d body=%s", resp.StatusCode, string(respBody))
	}
	return nil
}

// SendText 发送文本消息
func (c *Client) SendText(ctx context.Context, responseURL, content string) error {
	return c.Send(ctx, responseURL, TextMessage{
		MsgType: "text",
		Text:    TextPayload{Content: content},
	})
}

// SendMarkdown 发送 Markdown 消息
func (c *Client) SendMarkdown(ctx context.Context, responseURL, content string) error {
	return c.Send(ctx, responseURL, MarkdownMessage{
		MsgType:  "markdown",
		Markdown: MarkdownPayload{Content: content},
	})
}
