package command

import (
	"maps"
	"sync"
	"time"
)

// DefaultContextTTL 是命令上下文在最后一次写入后的保留时长。
const DefaultContextTTL = 30 * time.Minute

// MemoryStore 是按会话 key（chat_id:user_id）保存命令上下文的内存存储。
// 与临时响应器一样没有后台定时器：每次 Save 续期，过期条目在下一次读写前统一清除。
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*storeEntry
	ttl     time.Duration
	now     func() time.Time
}

type storeEntry struct {
	values    ContextValues
	expiresAt time.Time
}

// StoreOption 定制 MemoryStore。
type StoreOption func(*MemoryStore)

// WithTTL 设置上下文保留时长，非正值保持默认。
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *MemoryStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithStoreClock 替换时间源。
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore 创建内存存储实例。
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*storeEntry),
		ttl:     DefaultContextTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Load 返回 key 对应上下文的副本，不存在或已过期时返回 nil。
func (s *MemoryStore) Load(key string) (ContextValues, error) {
	if s == nil || key == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(s.now())
	if e, ok := s.entries[key]; ok {
		return maps.Clone(e.values), nil
	}
	return nil, nil
}

// Save 合并上下文增量并续期。值为空串的键被删除，删空后整个条目一并移除。
func (s *MemoryStore) Save(key string, values ContextValues) error {
	if s == nil || key == "" || len(values) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.purge(now)

	e, ok := s.entries[key]
	if !ok {
		e = &storeEntry{values: ContextValues{}}
		s.entries[key] = e
	}
	for k, v := range values {
		if v == "" {
			delete(e.values, k)
			continue
		}
		e.values[k] = v
	}
	if len(e.values) == 0 {
		delete(s.entries, key)
		return nil
	}
	e.expiresAt = now.Add(s.ttl)
	return nil
}

// purge 清除 expiresAt<=now 的条目，调用方持有锁。
func (s *MemoryStore) purge(now time.Time) {
	for key, e := range s.entries {
		if !e.expiresAt.After(now) {
			delete(s.entries, key)
		}
	}
}
