package botcore

import "context"

// HandlerFunc 是响应器的函数体。返回 nil Result 表示不响应；返回 error 由 Adapter 记录并视为不响应。
type HandlerFunc func(ctx context.Context, event *Event) (*Result, error)

// Checker 是响应规则，返回 false 时响应器不执行。
type Checker func(event *Event) bool

// Handle 是一个已注册的响应器。
type Handle struct {
	Plugin     string   // 所属插件名，用于日志
	Key        int      // 插件内的注册序号，临时响应器为 -1
	Properties []string // 执行前需要解析的 property
	Block      bool     // 响应后是否阻断低优先级的响应器/插件

	fn HandlerFunc
}

// Invoke 执行响应器函数体。
func (h *Handle) Invoke(ctx context.Context, event *Event) (*Result, error) {
	if h == nil || h.fn == nil {
		return nil, nil
	}
	return h.fn(ctx, event)
}

// HandleOption 定制 Handle 注册参数。
type HandleOption func(*handleOptions)

type handleOptions struct {
	properties []string
	priority   int
	block      bool
	rules      []Checker
}

func newHandleOptions(opts []HandleOption) handleOptions {
	o := handleOptions{block: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithProperties 声明响应器需要的 property。
func WithProperties(names ...string) HandleOption {
	return func(o *handleOptions) {
		o.properties = append(o.properties, names...)
	}
}

// WithPriority 设置触发器优先级，数值越小越先匹配。默认 0。
func WithPriority(priority int) HandleOption {
	return func(o *handleOptions) {
		o.priority = priority
	}
}

// WithBlock 设置响应后是否阻断后续响应器。默认 true。
func WithBlock(block bool) HandleOption {
	return func(o *handleOptions) {
		o.block = block
	}
}

// WithRule 追加响应规则，全部通过才执行函数体。
func WithRule(checkers ...Checker) HandleOption {
	return func(o *handleOptions) {
		o.rules = append(o.rules, checkers...)
	}
}

// guard 用规则包装函数体。
func guard(fn HandlerFunc, rules []Checker) HandlerFunc {
	if len(rules) == 0 {
		return fn
	}
	return func(ctx context.Context, event *Event) (*Result, error) {
		for _, check := range rules {
			if check != nil && !check(event) {
				return nil, nil
			}
		}
		return fn(ctx, event)
	}
}

// dedupe 去除重复的 property 名，保留首次出现的顺序。
func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
