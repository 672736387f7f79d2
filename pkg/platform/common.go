// Package platform 汇集各平台共用的适配器能力，具体平台见子包。
package platform

import (
	"context"
	"time"

	"github.com/IMBotPlatform/Clovers/pkg/botcore"
)

// Anonymous 是平台不提供昵称时的默认值。
const Anonymous = "anonymous"

// Common 返回与平台无关的兜底适配器，供平台适配器 Remix：
// 平台已注册的同名方法保持不变。
//
// property: nickname, time, platform
func Common(platform string, now func() time.Time) *botcore.Adapter {
	if now == nil {
		now = time.Now
	}
	a := botcore.NewAdapter("common")
	a.Property("nickname", func(ctx context.Context, extras botcore.Extras) (any, error) {
		return Anonymous, nil
	})
	a.Property("time", func(ctx context.Context, extras botcore.Extras) (any, error) {
		return now().Format(time.RFC3339), nil
	})
	a.Property("platform", func(ctx context.Context, extras botcore.Extras) (any, error) {
		return platform, nil
	})
	return a
}
