package botcore

import "errors"

// 注册、装配与响应阶段的通用错误，调用方通过 errors.Is 判定。
var (
	// ErrInvalidTrigger 表示注册时传入的触发器不合法（零值或正则编译失败）。
	ErrInvalidTrigger = errors.New("invalid trigger")
	// ErrPluginReady 表示插件已完成 Ready，不再接受新的注册。
	ErrPluginReady = errors.New("plugin already ready")
	// ErrMissingProperty 表示 Handle 声明了适配器未提供的 property。
	ErrMissingProperty = errors.New("undefined property method")
	// ErrMissingSend 表示 Result 指定了适配器未提供的 send 方法。
	ErrMissingSend = errors.New("undefined send method")
	// ErrMissingCall 表示 Event.Call 调用了不存在的 call 方法。
	ErrMissingCall = errors.New("undefined call method")
	// ErrAlreadyRunning 表示 Dispatcher 已经启动。
	ErrAlreadyRunning = errors.New("dispatcher already running")
	// ErrNotRunning 表示 Dispatcher 尚未启动。
	ErrNotRunning = errors.New("dispatcher not running")
)
