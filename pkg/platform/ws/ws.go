// Package ws 通过 WebSocket 接入消息：每个文本帧是一条入站消息，回复以 JSON 帧写回同一连接。
package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/IMBotPlatform/Clovers/pkg/botcore"
)

// writeWait 是单次写帧的超时。
const writeWait = 10 * time.Second

const (
	// DefaultReadLimit 是单个入站帧的大小上限，超出时连接被关闭。
	DefaultReadLimit = 1 << 20
	// DefaultMaxInflight 是单个连接同时分发的帧数上限，达到后暂停读取。
	DefaultMaxInflight = 8
)

// extras 中的键。
const (
	ExtraConn    = "ws.conn"
	ExtraInbound = "ws.inbound"
)

var errNoConn = errors.New("extras carry no websocket connection")

// Inbound 是入站帧。非 JSON 的文本帧整体视为 Text。
type Inbound struct {
	Text     string `json:"text"`
	UserID   string `json:"user_id,omitempty"`
	ChatID   string `json:"chat_id,omitempty"`
	Nickname string `json:"nickname,omitempty"`
}

// Outbound 是出站帧。
type Outbound struct {
	Type    string `json:"type"` // text, markdown
	Content string `json:"content"`
}

// Conn 是一条 WebSocket 连接，写入串行化。
type Conn struct {
	ID string

	mu sync.Mutex
	ws *websocket.Conn
}

// WriteJSON 写出一个 JSON 帧。
func (c *Conn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

func parseInbound(data []byte) Inbound {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var in Inbound
		if err := json.Unmarshal(trimmed, &in); err == nil {
			return in
		}
	}
	return Inbound{Text: string(trimmed)}
}

func fromExtras(extras botcore.Extras) (*Conn, Inbound, error) {
	c, ok := extras[ExtraConn].(*Conn)
	if !ok || c == nil {
		return nil, Inbound{}, errNoConn
	}
	in, _ := extras[ExtraInbound].(Inbound)
	return c, in, nil
}

func inboundProperty(get func(c *Conn, in Inbound) string) botcore.PropertyFunc {
	return func(ctx context.Context, extras botcore.Extras) (any, error) {
		c, in, err := fromExtras(extras)
		if err != nil {
			return nil, err
		}
		return get(c, in), nil
	}
}

func userID(c *Conn, in Inbound) string {
	if in.UserID != "" {
		return in.UserID
	}
	return "ws-" + c.ID
}

func outboundSend(kind string) botcore.SendFunc {
	return func(ctx context.Context, payload any, extras botcore.Extras) error {
		c, _, err := fromExtras(extras)
		if err != nil {
			return err
		}
		content, ok := payload.(string)
		if !ok {
			data, err := json.Marshal(payload)
			if err != nil {
				return err
			}
			content = string(data)
		}
		return c.WriteJSON(Outbound{Type: kind, Content: content})
	}
}

// NewAdapter 创建 WebSocket 适配器。未声明身份的连接以连接 ID 作为用户与会话。
//
// property: user_id, chat_id, nickname
// send: text, markdown
func NewAdapter(opts ...botcore.AdapterOption) *botcore.Adapter {
	a := botcore.NewAdapter("ws", opts...)
	a.Property("user_id", inboundProperty(userID))
	a.Property("chat_id", inboundProperty(func(c *Conn, in Inbound) string {
		if in.ChatID != "" {
			return in.ChatID
		}
		return c.ID
	}))
	a.Property("nickname", inboundProperty(func(c *Conn, in Inbound) string {
		if in.Nickname != "" {
			return in.Nickname
		}
		return userID(c, in)
	}))
	a.Send("text", outboundSend("text"))
	a.Send("markdown", outboundSend("markdown"))
	return a
}

// Server 是 WebSocket 入口。
type Server struct {
	dispatcher  *botcore.Dispatcher
	upgrader    websocket.Upgrader
	logger      *zap.Logger
	readLimit   int64
	maxInflight int
}

// ServerOption 定制 Server。
type ServerOption func(*Server)

// WithLogger 注入日志记录器。
func WithLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCheckOrigin 设置握手时的 Origin 校验，默认与 gorilla 一致（同源）。
func WithCheckOrigin(fn func(r *http.Request) bool) ServerOption {
	return func(s *Server) {
		s.upgrader.CheckOrigin = fn
	}
}

// WithReadLimit 设置单帧大小上限，非正值保持默认。
func WithReadLimit(n int64) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.readLimit = n
		}
	}
}

// WithMaxInflight 设置单连接并发分发上限，非正值保持默认。
func WithMaxInflight(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxInflight = n
		}
	}
}

// AllowOrigins 返回只接受列表内 Origin 的校验函数，"*" 接受任意来源。
// 列表为空时返回 nil，即沿用 gorilla 的同源校验。
func AllowOrigins(origins ...string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		if _, ok := allowed["*"]; ok {
			return true
		}
		_, ok := allowed[r.Header.Get("Origin")]
		return ok
	}
}

// NewServer 创建入口，dispatcher 应绑定 NewAdapter 返回的适配器。
func NewServer(dispatcher *botcore.Dispatcher, opts ...ServerOption) *Server {
	s := &Server{
		dispatcher:  dispatcher,
		logger:      zap.NewNop(),
		readLimit:   DefaultReadLimit,
		maxInflight: DefaultMaxInflight,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// ServeHTTP 升级连接并进入读循环。每帧独立并发分发，同时在途的帧数达到上限时
// 暂停读取；超过大小上限的帧会使连接关闭。连接关闭前等待在途分发结束。
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Info("websocket upgrade failed", zap.Error(err))
		return
	}
	wsConn.SetReadLimit(s.readLimit)
	c := &Conn{ID: uuid.NewString(), ws: wsConn}
	log := s.logger.With(zap.String("conn", c.ID))
	log.Debug("websocket connected", zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	slots := make(chan struct{}, s.maxInflight)
	var inflight sync.WaitGroup
	defer func() {
		inflight.Wait()
		cancel()
		_ = wsConn.Close()
		log.Debug("websocket closed")
	}()

	for {
		mt, data, err := wsConn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		in := parseInbound(data)
		if in.Text == "" {
			continue
		}
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return
		}
		inflight.Add(1)
		go func() {
			defer func() {
				<-slots
				inflight.Done()
			}()
			n := s.dispatcher.Dispatch(ctx, in.Text, botcore.Extras{ExtraConn: c, ExtraInbound: in})
			log.Debug("frame dispatched", zap.Int("count", n))
		}()
	}
}
