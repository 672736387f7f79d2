package botcore

import (
	"fmt"
	"regexp"
)

// TriggerKind 区分字面前缀与正则两类触发方式。
type TriggerKind int

const (
	TriggerLiteral TriggerKind = iota + 1
	TriggerRegex
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerLiteral:
		return "literal"
	case TriggerRegex:
		return "regex"
	default:
		return "invalid"
	}
}

// Trigger 决定一个 Handle 是否被某条消息触发。零值不合法，注册时返回 ErrInvalidTrigger。
type Trigger struct {
	kind     TriggerKind
	literals []string
	re       *regexp.Regexp
	err      error
}

// Literal 以单个字面前缀触发。空串等价于 CatchAll。
func Literal(command string) Trigger {
	return Trigger{kind: TriggerLiteral, literals: []string{command}}
}

// Literals 以一组字面前缀触发，任一命中即触发。
func Literals(commands ...string) Trigger {
	if len(commands) == 0 {
		return Trigger{err: fmt.Errorf("%w: empty literal set", ErrInvalidTrigger)}
	}
	return Trigger{kind: TriggerLiteral, literals: append([]string(nil), commands...)}
}

// Regex 编译正则并以其触发；匹配必须从消息开头开始。
func Regex(pattern string) Trigger {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Trigger{err: fmt.Errorf("%w: %v", ErrInvalidTrigger, err)}
	}
	return Trigger{kind: TriggerRegex, re: re}
}

// Pattern 以已编译的正则触发。
func Pattern(re *regexp.Regexp) Trigger {
	if re == nil {
		return Trigger{err: fmt.Errorf("%w: nil pattern", ErrInvalidTrigger)}
	}
	return Trigger{kind: TriggerRegex, re: re}
}

// CatchAll 匹配任意非空消息，整条消息按空白切分后作为参数。
func CatchAll() Trigger {
	return Literal("")
}

func (t Trigger) validate() error {
	if t.err != nil {
		return t.err
	}
	switch t.kind {
	case TriggerLiteral:
		if len(t.literals) == 0 {
			return fmt.Errorf("%w: empty literal set", ErrInvalidTrigger)
		}
	case TriggerRegex:
		if t.re == nil {
			return fmt.Errorf("%w: nil pattern", ErrInvalidTrigger)
		}
	default:
		return fmt.Errorf("%w: zero trigger", ErrInvalidTrigger)
	}
	return nil
}

// rule 是触发表中的一行。
type rule struct {
	kind     TriggerKind
	literal  string
	re       *regexp.Regexp
	key      int
	priority int
	seq      int
}

func (r rule) pattern() string {
	if r.kind == TriggerRegex {
		return r.re.String()
	}
	return r.literal
}

// matchLiteral 判断首 token 是否以 literal 开头并返回参数。
// 首 token 与 literal 完全相等时参数为其余 token；否则首 token 去掉前缀后连同其余 token 作为参数。
func matchLiteral(literal string, tokens []string) ([]string, bool) {
	first := tokens[0]
	if len(first) < len(literal) || first[:len(literal)] != literal {
		return nil, false
	}
	if first == literal {
		return append([]string{}, tokens[1:]...), true
	}
	args := make([]string, len(tokens))
	copy(args, tokens)
	args[0] = first[len(literal):]
	return args, true
}

// matchRegex 要求匹配起点为消息开头，捕获组作为参数。
func matchRegex(re *regexp.Regexp, message string) ([]string, bool) {
	loc := re.FindStringSubmatchIndex(message)
	if loc == nil || loc[0] != 0 {
		return nil, false
	}
	groups := make([]string, 0, len(loc)/2-1)
	for i := 2; i < len(loc); i += 2 {
		if loc[i] < 0 {
			groups = append(groups, "")
			continue
		}
		groups = append(groups, message[loc[i]:loc[i+1]])
	}
	return groups, true
}
