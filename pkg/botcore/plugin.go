package botcore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultTempTimeout 是临时响应器的默认存活时长。
const DefaultTempTimeout = 30 * time.Second

// Task 是插件的启动/关闭任务。
type Task func(ctx context.Context) error

// Plugin 持有一组 Handle，维护按优先级排序的触发表，并管理临时响应器。
//
// 注册只允许发生在 Ready 之前（装配阶段）；Ready 之后触发表只读，
// 临时响应器表在并发分发中被读写，由 tempMu 串行化。
type Plugin struct {
	Name     string
	Priority int  // 插件优先级，数值越小越先被询问
	Block    bool // 插件产生响应后是否阻断低优先级插件

	tempTimeout time.Duration
	now         func() time.Time

	mu      sync.Mutex
	handles map[int]*Handle
	nextKey int
	pending []rule
	table   []rule
	errs    []error
	ready   bool

	startup  []Task
	shutdown []Task

	tempMu sync.Mutex
	temps  map[string]*tempEntry
}

// PluginOption 定制 Plugin 行为。
type PluginOption func(*Plugin)

// WithPluginPriority 设置插件优先级。
func WithPluginPriority(priority int) PluginOption {
	return func(p *Plugin) {
		p.Priority = priority
	}
}

// WithPluginBlock 设置插件级阻断开关。
func WithPluginBlock(block bool) PluginOption {
	return func(p *Plugin) {
		p.Block = block
	}
}

// WithTempTimeout 设置临时响应器默认存活时长。
func WithTempTimeout(d time.Duration) PluginOption {
	return func(p *Plugin) {
		if d > 0 {
			p.tempTimeout = d
		}
	}
}

// WithClock 替换时间源，便于测试过期逻辑。
func WithClock(now func() time.Time) PluginOption {
	return func(p *Plugin) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPlugin 创建插件。默认优先级 0、阻断开启、临时响应器 30 秒过期。
func NewPlugin(name string, opts ...PluginOption) *Plugin {
	p := &Plugin{
		Name:        name,
		Block:       true,
		tempTimeout: DefaultTempTimeout,
		now:         time.Now,
		handles:     make(map[int]*Handle),
		temps:       make(map[string]*tempEntry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// rename 修改插件名，已注册的 Handle 同步更新。
func (p *Plugin) rename(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Name = name
	for _, h := range p.handles {
		h.Plugin = name
	}
}

// Apply 在装配阶段追加选项（例如来自配置文件的覆盖）。
func (p *Plugin) Apply(opts ...PluginOption) {
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
}

// Handle 注册一个响应器，返回其 key。
// Parameters:
//   - trigger: 触发器，见 Literal/Literals/Regex/Pattern/CatchAll
//   - fn: 响应器函数体
//   - opts: property 声明、优先级、阻断、规则
//
// Returns:
//   - int: 插件内唯一且不复用的 key
//   - error: 触发器非法（ErrInvalidTrigger）或插件已 Ready（ErrPluginReady）
//
// 非法触发器会被记录，插件因此在 Ready 时被排除。
func (p *Plugin) Handle(trigger Trigger, fn HandlerFunc, opts ...HandleOption) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ready {
		return -1, fmt.Errorf("%w: %s", ErrPluginReady, p.Name)
	}
	if err := trigger.validate(); err != nil {
		err = fmt.Errorf("plugin %s: %w", p.Name, err)
		p.errs = append(p.errs, err)
		return -1, err
	}
	if fn == nil {
		err := fmt.Errorf("plugin %s: nil handler", p.Name)
		p.errs = append(p.errs, err)
		return -1, err
	}

	o := newHandleOptions(opts)
	key := p.nextKey
	p.nextKey++
	p.handles[key] = &Handle{
		Plugin:     p.Name,
		Key:        key,
		Properties: dedupe(o.properties),
		Block:      o.block,
		fn:         guard(fn, o.rules),
	}

	switch trigger.kind {
	case TriggerLiteral:
		for _, lit := range trigger.literals {
			p.pending = append(p.pending, rule{kind: TriggerLiteral, literal: lit, key: key, priority: o.priority, seq: len(p.pending)})
		}
	case TriggerRegex:
		p.pending = append(p.pending, rule{kind: TriggerRegex, re: trigger.re, key: key, priority: o.priority, seq: len(p.pending)})
	}
	return key, nil
}

// OnStartup 注册启动任务。
func (p *Plugin) OnStartup(task Task) {
	p.mu.Lock()
	p.startup = append(p.startup, task)
	p.mu.Unlock()
}

// OnShutdown 注册关闭任务。
func (p *Plugin) OnShutdown(task Task) {
	p.mu.Lock()
	p.shutdown = append(p.shutdown, task)
	p.mu.Unlock()
}

// Err 返回注册阶段累积的错误。
func (p *Plugin) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.errs...)
}

// Ready 构建触发表并冻结注册。没有任何 Handle 或存在注册错误时返回 false。
// 重复调用是幂等的。
func (p *Plugin) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.handles) == 0 || len(p.errs) > 0 {
		return false
	}
	if p.ready {
		return true
	}
	table := make([]rule, len(p.pending))
	copy(table, p.pending)
	sort.SliceStable(table, func(i, j int) bool {
		return table[i].priority < table[j].priority
	})
	p.table = table
	p.ready = true
	return true
}

// Handles 按 key 顺序返回已注册的 Handle。
func (p *Plugin) Handles() []*Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Handle, 0, len(p.handles))
	for key := 0; key < p.nextKey; key++ {
		if h, ok := p.handles[key]; ok {
			out = append(out, h)
		}
	}
	return out
}

// Properties 返回全部 Handle 声明过的 property 名（去重）。
func (p *Plugin) Properties() []string {
	var names []string
	for _, h := range p.Handles() {
		names = append(names, h.Properties...)
	}
	return dedupe(names)
}

// Match 将消息映射为被触发的 (Handle, Event) 序列，按触发表顺序排列。
// 同一插件内一条消息可以触发多个 Handle；未 Ready 的插件不匹配任何消息。
func (p *Plugin) Match(message string) []Triggered {
	tokens := strings.Fields(message)
	if len(tokens) == 0 {
		return nil
	}
	p.mu.Lock()
	table := p.table
	handles := p.handles
	p.mu.Unlock()

	var out []Triggered
	for _, r := range table {
		var (
			args []string
			ok   bool
		)
		switch r.kind {
		case TriggerLiteral:
			args, ok = matchLiteral(r.literal, tokens)
		case TriggerRegex:
			args, ok = matchRegex(r.re, message)
		}
		if !ok {
			continue
		}
		out = append(out, Triggered{Handle: handles[r.key], Event: NewEvent(message, args)})
	}
	return out
}

// Triggered 是一次匹配结果。
type Triggered struct {
	Handle *Handle
	Event  *Event
}

// String 输出触发表，便于排查优先级。
func (p *Plugin) String() string {
	p.mu.Lock()
	rules := p.table
	if !p.ready {
		rules = make([]rule, len(p.pending))
		copy(rules, p.pending)
		sort.SliceStable(rules, func(i, j int) bool { return rules[i].priority < rules[j].priority })
	}
	p.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "<Plugin %s priority=%d block=%t>\n", p.Name, p.Priority, p.Block)
	for _, r := range rules {
		fmt.Fprintf(&b, "\t<Handle key=%d priority=%d kind=%s pattern=%q />\n", r.key, r.priority, r.kind, r.pattern())
	}
	b.WriteString("</Plugin>")
	return b.String()
}

func (p *Plugin) tasks(shutdown bool) []Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	if shutdown {
		return append([]Task(nil), p.shutdown...)
	}
	return append([]Task(nil), p.startup...)
}
