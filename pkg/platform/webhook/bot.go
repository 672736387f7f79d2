package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/IMBotPlatform/Clovers/pkg/botcore"
)

// maxBodyBytes 限制回调请求体大小。
const maxBodyBytes = 1 << 20

// DefaultAckWait 是应答前等待分发完成的时长，超时后分发转入后台继续。
const DefaultAckWait = 200 * time.Millisecond

// Bot 是回调入口：解析消息、过滤重投并在后台分发，回复经 response_url 送达平台。
// 分发不依赖回调请求的生命周期，平台放弃等待后回复仍会发出；分发时长由
// Dispatcher 的 WithDispatchTimeout 约束。
type Bot struct {
	dispatcher *botcore.Dispatcher
	seen       *Deduper
	logger     *zap.Logger
	ackWait    time.Duration

	inflight sync.WaitGroup
}

// BotOption 用于定制 Bot 行为。
type BotOption func(*Bot)

// WithLogger 注入日志记录器。
func WithLogger(l *zap.Logger) BotOption {
	return func(b *Bot) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithDeduper 替换重投过滤器。
func WithDeduper(d *Deduper) BotOption {
	return func(b *Bot) {
		if d != nil {
			b.seen = d
		}
	}
}

// WithAckWait 设置应答前等待分发完成的时长，0 表示立即应答。
func WithAckWait(d time.Duration) BotOption {
	return func(b *Bot) {
		if d >= 0 {
			b.ackWait = d
		}
	}
}

// NewBot 创建回调入口。dispatcher 需要以 botcore.WithExtractor(Extract) 构建。
func NewBot(dispatcher *botcore.Dispatcher, opts ...BotOption) *Bot {
	b := &Bot{
		dispatcher: dispatcher,
		seen:       NewDeduper(0),
		logger:     zap.NewNop(),
		ackWait:    DefaultAckWait,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// ack 是回调的同步应答。
type ack struct {
	MsgID     string `json:"msgid,omitempty"`
	Count     int    `json:"count"`
	Pending   bool   `json:"pending,omitempty"` // 应答时分发尚未结束，Count 不完整
	Duplicate bool   `json:"duplicate,omitempty"`
}

// ServeHTTP 实现 http.Handler 接口。
//
// 流程图：
//
//	[非POST] -> [405]
//	   |
//	[清理过期msgid] -> [解析JSON体] --失败--> [400]
//	   |
//	[重投?] --是--> [200 duplicate]
//	   |
//	[后台 dispatcher.Response] --ackWait 内完成--> [200 count]
//	   |
//	  超时 -> [200 pending]（后台继续分发并回复）
func (b *Bot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if b == nil || b.dispatcher == nil {
		http.Error(w, "server misconfigured", http.StatusInternalServerError)
		return
	}

	b.seen.Cleanup()

	defer r.Body.Close()
	var msg Message
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&msg); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if msg.MsgType == "" || msg.From.UserID == "" {
		http.Error(w, "missing msgtype or sender", http.StatusBadRequest)
		return
	}

	reply := ack{MsgID: msg.MsgID}
	if !b.seen.Mark(msg.MsgID) {
		b.logger.Debug("duplicate callback ignored", zap.String("msgid", msg.MsgID))
		reply.Duplicate = true
	} else {
		done := b.dispatch(context.WithoutCancel(r.Context()), &msg)
		timer := time.NewTimer(b.ackWait)
		defer timer.Stop()
		select {
		case reply.Count = <-done:
		case <-timer.C:
			reply.Pending = true
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(reply)
}

// dispatch 在后台分发消息，返回接收响应数的通道。
func (b *Bot) dispatch(ctx context.Context, msg *Message) <-chan int {
	done := make(chan int, 1)
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		n := b.dispatcher.Response(ctx, botcore.Extras{ExtraMessage: msg})
		b.logger.Debug("callback dispatched",
			zap.String("msgid", msg.MsgID),
			zap.String("user", msg.From.UserID),
			zap.Int("count", n),
		)
		done <- n
	}()
	return done
}

// Wait 等待后台分发全部结束，供关闭时调用。
func (b *Bot) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
