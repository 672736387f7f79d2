package botcore

import (
	"context"
	"fmt"
	"sync"
)

// Extras 是宿主传入的透传上下文（平台对象、请求元数据等），在一次分发内原样转交。
type Extras map[string]any

// String 读取字符串类型的扩展字段，不存在或类型不符时返回空串。
func (x Extras) String(key string) string {
	if x == nil {
		return ""
	}
	s, _ := x[key].(string)
	return s
}

// Result 是 Handle 的产出，由 Adapter 按 SendMethod 查找发送方法投递 Payload。
type Result struct {
	SendMethod string
	Payload    any
}

// Text 构造一个走 "text" 发送方法的 Result。
func Text(s string) *Result {
	return &Result{SendMethod: "text", Payload: s}
}

// Event 描述一次触发：原始消息与匹配时提取的参数不可变，
// properties 在分发过程中由 Adapter 单调填充。
//
// 临时响应器阶段同一个 Event 会被多个 Handle 并发使用，因此 properties 受锁保护。
type Event struct {
	Message string   // 触发的原始消息
	Args    []string // 匹配时提取的参数（空白切分的尾部或正则捕获组）

	mu         sync.RWMutex
	properties map[string]any
	calls      map[string]CallFunc
	extras     Extras
}

// NewEvent 创建一个新的 Event。
func NewEvent(message string, args []string) *Event {
	return &Event{
		Message:    message,
		Args:       args,
		properties: make(map[string]any),
	}
}

// Property 返回已解析的 property 值。
func (e *Event) Property(name string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.properties[name]
	return v, ok
}

// Properties 返回已解析 property 的快照。
func (e *Event) Properties() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]any, len(e.properties))
	for k, v := range e.properties {
		out[k] = v
	}
	return out
}

// Extras 返回本次分发的透传上下文。
func (e *Event) Extras() Extras {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.extras
}

// Call 调用适配器提供的 call 方法，extras 自动附带。
func (e *Event) Call(ctx context.Context, name string, args ...any) (any, error) {
	e.mu.RLock()
	fn, ok := e.calls[name]
	extras := e.extras
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingCall, name)
	}
	return fn(ctx, extras, args...)
}

// missing 返回 names 中尚未解析的部分，保持声明顺序。
func (e *Event) missing(names []string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []string
	for _, name := range names {
		if _, ok := e.properties[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// merge 写入解析结果；已存在的键保持不变，保证只增不改。
func (e *Event) merge(values map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, v := range values {
		if _, ok := e.properties[k]; !ok {
			e.properties[k] = v
		}
	}
}

func (e *Event) bind(calls map[string]CallFunc, extras Extras) {
	e.mu.Lock()
	e.calls = calls
	e.extras = extras
	e.mu.Unlock()
}

// Property 以类型断言读取 property，类型不符时视为不存在。
func Property[T any](e *Event, name string) (T, bool) {
	var zero T
	if e == nil {
		return zero, false
	}
	v, ok := e.Property(name)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
