package botcore

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PropertyFunc 根据 extras 解析一个 property。
type PropertyFunc func(ctx context.Context, extras Extras) (any, error)

// SendFunc 将 Result.Payload 投递到平台。
type SendFunc func(ctx context.Context, payload any, extras Extras) error

// CallFunc 是供响应器主动调用的平台能力。
type CallFunc func(ctx context.Context, extras Extras, args ...any) (any, error)

// Adapter 是平台相关的 property/send/call 方法集合。
// 启动阶段装配（Property/Send/Call/Remix/Update），分发阶段只读。
type Adapter struct {
	Name string

	mu         sync.RWMutex
	properties map[string]PropertyFunc
	sends      map[string]SendFunc
	calls      map[string]CallFunc
	logger     *zap.Logger
}

// AdapterOption 定制 Adapter 行为。
type AdapterOption func(*Adapter)

// WithAdapterLogger 注入日志记录器。
func WithAdapterLogger(l *zap.Logger) AdapterOption {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAdapter 创建空的 Adapter。
func NewAdapter(name string, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		Name:       name,
		properties: make(map[string]PropertyFunc),
		sends:      make(map[string]SendFunc),
		calls:      make(map[string]CallFunc),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Property 注册 property 方法；同名 call 不存在时一并注册为 call。
func (a *Adapter) Property(name string, fn PropertyFunc) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.properties[name] = fn
	if _, ok := a.calls[name]; !ok {
		a.calls[name] = func(ctx context.Context, extras Extras, _ ...any) (any, error) {
			return fn(ctx, extras)
		}
	}
	return a
}

// Send 注册 send 方法；同名 call 不存在时一并注册为 call（第一个参数作为 payload）。
func (a *Adapter) Send(name string, fn SendFunc) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sends[name] = fn
	if _, ok := a.calls[name]; !ok {
		a.calls[name] = func(ctx context.Context, extras Extras, args ...any) (any, error) {
			var payload any
			if len(args) > 0 {
				payload = args[0]
			}
			return nil, fn(ctx, payload, extras)
		}
	}
	return a
}

// Call 注册 call 方法，覆盖同名项。
func (a *Adapter) Call(name string, fn CallFunc) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[name] = fn
	return a
}

// Remix 混入 other 中本地不存在的方法，先注册者优先。
func (a *Adapter) Remix(other *Adapter) {
	if other == nil || other == a {
		return
	}
	other.mu.RLock()
	defer other.mu.RUnlock()
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, v := range other.properties {
		if _, ok := a.properties[k]; !ok {
			a.properties[k] = v
		}
	}
	for k, v := range other.sends {
		if _, ok := a.sends[k]; !ok {
			a.sends[k] = v
		}
	}
	for k, v := range other.calls {
		if _, ok := a.calls[k]; !ok {
			a.calls[k] = v
		}
	}
}

// Update 用 other 中的方法覆盖本地同名方法。
func (a *Adapter) Update(other *Adapter) {
	if other == nil || other == a {
		return
	}
	other.mu.RLock()
	defer other.mu.RUnlock()
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, v := range other.properties {
		a.properties[k] = v
	}
	for k, v := range other.sends {
		a.sends[k] = v
	}
	for k, v := range other.calls {
		a.calls[k] = v
	}
}

// HasProperty 判断是否提供了 property 方法。
func (a *Adapter) HasProperty(name string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.properties[name]
	return ok
}

// PropertyNames 返回已注册的 property 名（排序后）。
func (a *Adapter) PropertyNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.properties))
	for k := range a.properties {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// MissingProperties 返回 names 中适配器无法解析的部分。
func (a *Adapter) MissingProperties(names []string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var miss []string
	for _, n := range names {
		if _, ok := a.properties[n]; !ok {
			miss = append(miss, n)
		}
	}
	return miss
}

// Response 使用适配器执行一个 Handle。
// Parameters:
//   - ctx: 分发上下文，透传给 property/handler/send
//   - handle: 被触发的响应器
//   - event: 触发事件，缺失的 property 会被解析并写入
//   - extras: 宿主透传上下文
//
// Returns:
//   - block: 响应成功时返回 handle.Block
//   - responded: 是否产生并发送了结果；任何失败都视为未响应
//
// 流程图：
//
//	[计算缺失property] -> [并发解析(errgroup)] --失败--> [记录日志, 未响应]
//	        |
//	[合并到event] -> [执行handle] --error/panic--> [记录日志, 未响应]
//	        |
//	   [Result为空?] --是--> [未响应]
//	        |
//	[查找send方法] --缺失--> [记录日志, 未响应]
//	        |
//	[发送] -> [返回handle.Block]
func (a *Adapter) Response(ctx context.Context, handle *Handle, event *Event, extras Extras) (block, responded bool) {
	err := a.respond(ctx, handle, event, extras)
	switch {
	case err == nil:
		return handle.Block, true
	case errors.Is(err, errNoResult):
		return false, false
	default:
		a.logger.Error("response failed",
			zap.String("adapter", a.Name),
			zap.String("plugin", handle.Plugin),
			zap.Int("handle", handle.Key),
			zap.Error(err),
		)
		return false, false
	}
}

var errNoResult = errors.New("no result")

func (a *Adapter) respond(ctx context.Context, handle *Handle, event *Event, extras Extras) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()

	if err := a.resolve(ctx, handle, event, extras); err != nil {
		return err
	}

	a.mu.RLock()
	calls := a.calls
	a.mu.RUnlock()
	event.bind(calls, extras)

	result, err := handle.Invoke(ctx, event)
	if err != nil {
		return fmt.Errorf("handler: %w", err)
	}
	if result == nil {
		return errNoResult
	}

	a.mu.RLock()
	send, ok := a.sends[result.SendMethod]
	a.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingSend, result.SendMethod)
	}
	if err := send(ctx, result.Payload, extras); err != nil {
		return fmt.Errorf("send %s: %w", result.SendMethod, err)
	}
	return nil
}

// resolve 并发解析缺失的 property，全部完成后一次性合并（屏障）。
func (a *Adapter) resolve(ctx context.Context, handle *Handle, event *Event, extras Extras) error {
	missing := event.missing(handle.Properties)
	if len(missing) == 0 {
		return nil
	}

	fns := make([]PropertyFunc, len(missing))
	a.mu.RLock()
	for i, name := range missing {
		fn, ok := a.properties[name]
		if !ok {
			a.mu.RUnlock()
			return fmt.Errorf("%w: %s", ErrMissingProperty, name)
		}
		fns[i] = fn
	}
	a.mu.RUnlock()

	values := make([]any, len(missing))
	g, gctx := errgroup.WithContext(ctx)
	for i := range missing {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("property %s panic: %v", missing[i], r)
				}
			}()
			v, err := fns[i](gctx, extras)
			if err != nil {
				return fmt.Errorf("property %s: %w", missing[i], err)
			}
			values[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	resolved := make(map[string]any, len(missing))
	for i, name := range missing {
		resolved[name] = values[i]
	}
	event.merge(resolved)
	return nil
}
