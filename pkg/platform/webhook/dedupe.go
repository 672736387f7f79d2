package webhook

import (
	"sync"
	"time"
)

// Deduper 记录近期处理过的 msgid。平台在回调超时后会用同一 msgid 重投，
// 重投的消息不再分发。
type Deduper struct {
	mu   sync.Mutex
	seen map[string]time.Time // msgid -> 首次收到时间
	ttl  time.Duration
	now  func() time.Time
}

// NewDeduper 创建 Deduper。
// Parameters:
//   - ttl: 记录保留时长，非正值时回退为 1 分钟
func NewDeduper(ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Deduper{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Mark 记录 msgid，返回是否首次出现。空 msgid 视为首次。
func (d *Deduper) Mark(msgID string) bool {
	if msgID == "" {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if at, ok := d.seen[msgID]; ok && d.now().Sub(at) < d.ttl {
		return false
	}
	d.seen[msgID] = d.now()
	return true
}

// Cleanup 移除过期记录，每次请求前调用。
func (d *Deduper) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for id, at := range d.seen {
		if now.Sub(at) >= d.ttl {
			delete(d.seen, id)
		}
	}
}

// Len 返回当前记录数。
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
