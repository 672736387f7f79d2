package command

import (
	"strings"

	"github.com/IMBotPlatform/Clovers/pkg/botcore"
)

// DefaultPrefix 是命令前缀的默认值。
const DefaultPrefix = "/"

// ParseResult 是一条命令消息的结构化结果。
type ParseResult struct {
	IsCommand   bool     // 首个词是否为 "前缀+命令名"
	Tokens      []string // 命令名及参数，命令名已去掉前缀与 "@bot" 后缀
	Raw         string   // 原始消息
	ArgumentRaw string   // 命令名之后的原始参数串，保留内部空白
}

// parseEvent 从 Literal(prefix) 触发得到的 Event 中还原命令。
// 触发器已去掉首词的前缀并按空白切分出 Args，这里只需要：
// 排除前缀单独成词的情况（"/ ping"），以及剥掉 "@bot" 后缀。
func parseEvent(prefix string, e *botcore.Event) ParseResult {
	res := ParseResult{Raw: e.Message}
	fields := strings.Fields(e.Message)
	if len(fields) == 0 || len(e.Args) == 0 || fields[0] == prefix || !strings.HasPrefix(fields[0], prefix) {
		return res
	}
	name, _, _ := strings.Cut(e.Args[0], "@")
	if name == "" {
		return res
	}
	res.IsCommand = true
	res.Tokens = append([]string{name}, e.Args[1:]...)
	res.ArgumentRaw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(e.Message), fields[0]))
	return res
}
