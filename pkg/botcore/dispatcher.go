package botcore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Extractor 从宿主透传的 extras 中提取消息文本。
type Extractor func(extras Extras) (string, bool)

// Dispatcher 持有插件与适配器，对每条消息按插件优先级询问并汇总响应数。
type Dispatcher struct {
	adapter   *Adapter
	logger    *zap.Logger
	timeout   time.Duration
	extractor Extractor

	mu      sync.RWMutex
	plugins []*Plugin
	running bool
}

// Option 定制 Dispatcher 行为。
type Option func(*Dispatcher)

// WithLogger 注入日志记录器。
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithDispatchTimeout 为每次分发设置截止时间，<=0 表示不限制。
func WithDispatchTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

// WithExtractor 设置 Response 使用的消息提取函数。
func WithExtractor(fn Extractor) Option {
	return func(d *Dispatcher) {
		d.extractor = fn
	}
}

// NewDispatcher 绑定适配器并返回 Dispatcher。
func NewDispatcher(adapter *Adapter, opts ...Option) *Dispatcher {
	if adapter == nil {
		adapter = NewAdapter("")
	}
	d := &Dispatcher{
		adapter: adapter,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Adapter 返回绑定的适配器。
func (d *Dispatcher) Adapter() *Adapter {
	return d.adapter
}

// AddPlugin 加入插件，重复加入同一实例会被忽略。只能在 Startup 之前调用。
func (d *Dispatcher) AddPlugin(plugins ...*Plugin) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrAlreadyRunning
	}
	for _, p := range plugins {
		if p == nil {
			continue
		}
		if d.contains(p) {
			d.logger.Warn("plugin already loaded", zap.String("plugin", p.Name))
			continue
		}
		if p.Name == "" {
			p.rename(fmt.Sprintf("plugin-%d", len(d.plugins)))
		}
		d.logger.Debug("plugin loaded", zap.String("plugin", p.Name), zap.Int("priority", p.Priority))
		d.plugins = append(d.plugins, p)
	}
	return nil
}

func (d *Dispatcher) contains(p *Plugin) bool {
	for _, existing := range d.plugins {
		if existing == p {
			return true
		}
	}
	return false
}

// Plugins 返回参与分发的插件（Startup 后为排序、过滤后的列表）。
func (d *Dispatcher) Plugins() []*Plugin {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*Plugin(nil), d.plugins...)
}

// Startup 完成装配阶段：排序、执行启动任务、Ready 并校验 property。
//
// 流程图：
//
//	[按优先级稳定排序] -> [并发执行启动任务] --失败--> [返回错误]
//	        |
//	[逐个Ready] --未就绪/注册错误--> [排除并记录]
//	        |
//	[校验property可解析] --缺失--> [排除并记录]
//	        |
//	[running=true]
func (d *Dispatcher) Startup(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrAlreadyRunning
	}

	sort.SliceStable(d.plugins, func(i, j int) bool {
		return d.plugins[i].Priority < d.plugins[j].Priority
	})

	if err := runTasks(ctx, d.plugins, false); err != nil {
		return fmt.Errorf("startup tasks: %w", err)
	}

	ready := make([]*Plugin, 0, len(d.plugins))
	for _, p := range d.plugins {
		if !p.Ready() {
			if err := p.Err(); err != nil {
				d.logger.Error("plugin rejected", zap.String("plugin", p.Name), zap.Error(err))
			} else {
				d.logger.Warn("plugin has no handles", zap.String("plugin", p.Name))
			}
			continue
		}
		if miss := d.adapter.MissingProperties(p.Properties()); len(miss) > 0 {
			d.logger.Warn("plugin requires properties not defined by adapter",
				zap.String("plugin", p.Name),
				zap.String("adapter", d.adapter.Name),
				zap.Strings("missing", miss),
			)
			continue
		}
		ready = append(ready, p)
	}
	d.plugins = ready
	d.running = true
	d.logger.Info("dispatcher started",
		zap.Int("plugins", len(ready)),
		zap.Strings("properties", d.adapter.PropertyNames()),
	)
	return nil
}

// Shutdown 并发执行全部关闭任务并等待完成。
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return ErrNotRunning
	}
	d.running = false
	if err := runTasks(ctx, d.plugins, true); err != nil {
		return fmt.Errorf("shutdown tasks: %w", err)
	}
	d.logger.Info("dispatcher stopped")
	return nil
}

func runTasks(ctx context.Context, plugins []*Plugin, shutdown bool) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range plugins {
		for _, task := range p.tasks(shutdown) {
			if task == nil {
				continue
			}
			g.Go(func() error {
				if err := task(gctx); err != nil {
					return fmt.Errorf("plugin %s: %w", p.Name, err)
				}
				return nil
			})
		}
	}
	return g.Wait()
}

// Response 通过 Extractor 提取消息并分发；未配置或提取失败时返回 0。
func (d *Dispatcher) Response(ctx context.Context, extras Extras) int {
	if d.extractor == nil {
		return 0
	}
	message, ok := d.extractor(extras)
	if !ok {
		return 0
	}
	return d.Dispatch(ctx, message, extras)
}

// Dispatch 分发一条消息，返回发送的响应数。
// 单个响应器/插件的任何失败都在 Adapter.Response 处被吸收，不会中断分发。
//
// 流程图（每个插件）：
//
//	[检查临时响应器] --有存活--> [共享Event并发执行] --有响应--> [任一阻断且插件阻断?] --是--> [终止]
//	        |                                              |
//	       无                                              否 -> [跳过本插件匹配阶段，下一个插件]
//	        |
//	[匹配触发表] -> [按序逐个执行] --阻断--> [停止本插件]
//	        |
//	[本插件有响应且插件阻断?] --是--> [终止]
//	        |
//	   [下一个插件]
func (d *Dispatcher) Dispatch(ctx context.Context, message string, extras Extras) int {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	log := d.logger.With(zap.String("dispatch_id", uuid.NewString()))

	d.mu.RLock()
	plugins := d.plugins
	running := d.running
	d.mu.RUnlock()
	if !running {
		log.Warn("dispatch before startup")
		return 0
	}

	count := 0
	var tempEvent *Event
	for _, p := range plugins {
		if p.CheckTemporary(p.now()) {
			if tempEvent == nil {
				tempEvent = NewEvent(message, nil)
			}
			flags := d.responseTemps(ctx, p, tempEvent, extras)
			if len(flags) > 0 {
				count += len(flags)
				if anyTrue(flags) && p.Block {
					log.Debug("blocked by temporary handle", zap.String("plugin", p.Name))
					break
				}
				continue
			}
		}

		triggered := p.Match(message)
		if len(triggered) == 0 {
			continue
		}
		inner := 0
		for _, t := range triggered {
			block, ok := d.adapter.Response(ctx, t.Handle, t.Event, extras)
			if !ok {
				continue
			}
			inner++
			if block {
				break
			}
		}
		count += inner
		if inner > 0 && p.Block {
			log.Debug("blocked by plugin", zap.String("plugin", p.Name))
			break
		}
	}
	log.Debug("dispatch finished", zap.Int("count", count))
	return count
}

// responseTemps 并发执行插件的全部临时响应器，返回已响应者的阻断标志。
func (d *Dispatcher) responseTemps(ctx context.Context, p *Plugin, event *Event, extras Extras) []bool {
	temps := p.TemporaryHandles()
	type outcome struct{ block, ok bool }
	outcomes := make([]outcome, len(temps))
	var wg sync.WaitGroup
	for i, t := range temps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			block, ok := d.adapter.Response(ctx, t.Handle, event, extras)
			outcomes[i] = outcome{block: block, ok: ok}
		}()
	}
	wg.Wait()

	var flags []bool
	for _, o := range outcomes {
		if o.ok {
			flags = append(flags, o.block)
		}
	}
	return flags
}

func anyTrue(flags []bool) bool {
	for _, f := range flags {
		if f {
			return true
		}
	}
	return false
}
