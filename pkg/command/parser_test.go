package command

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/IMBotPlatform/Clovers/pkg/botcore"
)

// commandEvent 经由 Literal(prefix) 触发器生成 Event，与分发时 Manager 收到的一致。
// 触发器不匹配时返回不带参数的 Event。
func commandEvent(prefix, text string) *botcore.Event {
	p := botcore.NewPlugin("trigger")
	_, _ = p.Handle(botcore.Literal(prefix), func(ctx context.Context, e *botcore.Event) (*botcore.Result, error) {
		return nil, nil
	})
	p.Ready()
	if matched := p.Match(text); len(matched) > 0 {
		return matched[0].Event
	}
	return botcore.NewEvent(text, nil)
}

func TestParseEvent(t *testing.T) {
	cases := []struct {
		name   string
		prefix string
		text   string
		want   ParseResult
	}{
		{
			name: "plain command",
			text: "/ping",
			want: ParseResult{IsCommand: true, Tokens: []string{"ping"}, Raw: "/ping"},
		},
		{
			name: "mention suffix and args",
			text: "  /echo@bot hello   world ",
			want: ParseResult{
				IsCommand:   true,
				Tokens:      []string{"echo", "hello", "world"},
				Raw:         "  /echo@bot hello   world ",
				ArgumentRaw: "hello   world",
			},
		},
		{
			name: "bare prefix",
			text: "/",
			want: ParseResult{Raw: "/"},
		},
		{
			name: "prefix as separate word",
			text: "/ ping",
			want: ParseResult{Raw: "/ ping"},
		},
		{
			name: "mention only",
			text: "/@bot",
			want: ParseResult{Raw: "/@bot"},
		},
		{
			name: "not a command",
			text: "hello /ping",
			want: ParseResult{Raw: "hello /ping"},
		},
		{
			name:   "custom prefix",
			prefix: "!",
			text:   "!roll 2d6",
			want:   ParseResult{IsCommand: true, Tokens: []string{"roll", "2d6"}, Raw: "!roll 2d6", ArgumentRaw: "2d6"},
		},
		{
			name: "empty",
			text: "   ",
			want: ParseResult{Raw: "   "},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prefix := DefaultPrefix
			if tc.prefix != "" {
				prefix = tc.prefix
			}
			got := parseEvent(prefix, commandEvent(prefix, tc.text))
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("parseEvent(%q) mismatch (-want +got):\n%s", tc.text, diff)
			}
		})
	}
}
