package botcore

import (
	"context"
	"time"
)

// TempHandlerFunc 是临时响应器函数体，session 用于结束或续期当前会话。
type TempHandlerFunc func(ctx context.Context, event *Event, session *Session) (*Result, error)

// TempHandle 是一个存活中的临时响应器。
type TempHandle struct {
	Key       string
	ExpiresAt time.Time
	Handle    *Handle
}

type tempEntry struct {
	expiresAt time.Time
	handle    *Handle
}

// Session 是临时响应器在执行时拿到的会话句柄。
// Finish/Delay 只作用于注册时的那个条目：同 key 被重新注册后，旧句柄的操作不会影响新条目。
type Session struct {
	plugin *Plugin
	key    string
	entry  *tempEntry
}

// Key 返回会话 key。
func (s *Session) Key() string {
	return s.key
}

// Finish 结束会话，删除自身条目。
func (s *Session) Finish() {
	p := s.plugin
	p.tempMu.Lock()
	defer p.tempMu.Unlock()
	if p.temps[s.key] == s.entry {
		delete(p.temps, s.key)
	}
}

// Delay 以当前时间为起点重新设置过期时间，timeout<=0 时使用插件默认值。
// 条目已被结束或过期清理时返回 false。
func (s *Session) Delay(timeout time.Duration) bool {
	p := s.plugin
	if timeout <= 0 {
		timeout = p.tempTimeout
	}
	p.tempMu.Lock()
	defer p.tempMu.Unlock()
	if p.temps[s.key] != s.entry {
		return false
	}
	s.entry.expiresAt = p.now().Add(timeout)
	return true
}

// TempHandle 注册（或覆盖）key 对应的临时响应器。
// Parameters:
//   - key: 会话 key，由调用方选择（例如 "confirm:" + user_id），同 key 只保留最新一个
//   - timeout: 存活时长，<=0 时使用插件默认值
//   - fn: 函数体
//   - opts: property 声明、阻断、规则（优先级对临时响应器无意义）
//
// 临时响应器可以在分发过程中注册，因此不受 Ready 冻结限制。
func (p *Plugin) TempHandle(key string, timeout time.Duration, fn TempHandlerFunc, opts ...HandleOption) {
	if timeout <= 0 {
		timeout = p.tempTimeout
	}
	o := newHandleOptions(opts)
	entry := &tempEntry{}
	session := &Session{plugin: p, key: key, entry: entry}
	body := func(ctx context.Context, event *Event) (*Result, error) {
		return fn(ctx, event, session)
	}
	entry.handle = &Handle{
		Plugin:     p.Name,
		Key:        -1,
		Properties: dedupe(o.properties),
		Block:      o.block,
		fn:         guard(body, o.rules),
	}

	p.tempMu.Lock()
	entry.expiresAt = p.now().Add(timeout)
	p.temps[key] = entry
	p.tempMu.Unlock()
}

// CheckTemporary 清除 expiresAt<=now 的临时响应器，返回是否仍有存活条目。
// 这是唯一的过期回收机制，分发器在每次分发前以插件自身的时间源调用，
// 与 TempHandle、Delay 打时间戳用的是同一个时钟。
func (p *Plugin) CheckTemporary(now time.Time) bool {
	p.tempMu.Lock()
	defer p.tempMu.Unlock()
	for key, entry := range p.temps {
		if !entry.expiresAt.After(now) {
			delete(p.temps, key)
		}
	}
	return len(p.temps) > 0
}

// TemporaryHandles 返回当前临时响应器的快照。
func (p *Plugin) TemporaryHandles() []TempHandle {
	p.tempMu.Lock()
	defer p.tempMu.Unlock()
	out := make([]TempHandle, 0, len(p.temps))
	for key, entry := range p.temps {
		out = append(out, TempHandle{Key: key, ExpiresAt: entry.expiresAt, Handle: entry.handle})
	}
	return out
}
