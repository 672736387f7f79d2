package basic

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/IMBotPlatform/Clovers/pkg/command"
)

// Commands 返回演示用的命令树工厂，配合 command.Manager 使用。
// whoami/remember 依赖 user_id、chat_id，Manager 需以 command.WithProperties 声明。
func Commands() command.CommandFactory {
	return func() *cobra.Command {
		root := &cobra.Command{
			Use:   "bot",
			Short: "clovers 命令",
		}

		root.AddCommand(&cobra.Command{
			Use:   "ping",
			Short: "连通性检查",
			Run: func(cmd *cobra.Command, args []string) {
				cmd.Print("pong")
			},
		})

		var upper bool
		echo := &cobra.Command{
			Use:   "echo [text...]",
			Short: "复读",
			Args:  cobra.MinimumNArgs(1),
			Run: func(cmd *cobra.Command, args []string) {
				text := strings.Join(args, " ")
				if upper {
					text = strings.ToUpper(text)
				}
				cmd.Print(text)
			},
		}
		echo.Flags().BoolVarP(&upper, "upper", "u", false, "转为大写")
		root.AddCommand(echo)

		root.AddCommand(&cobra.Command{
			Use:   "whoami",
			Short: "显示当前会话标识",
			Run: func(cmd *cobra.Command, args []string) {
				ec := command.FromContext(cmd.Context())
				cmd.Print(ec.ConversationKey())
			},
		})

		root.AddCommand(&cobra.Command{
			Use:   "time",
			Short: "显示平台时间",
			RunE: func(cmd *cobra.Command, args []string) error {
				ec := command.FromContext(cmd.Context())
				v, err := ec.Event.Call(cmd.Context(), "time")
				if err != nil {
					return err
				}
				cmd.Print(v)
				return nil
			},
		})

		root.AddCommand(&cobra.Command{
			Use:   "remember <key> [value]",
			Short: "记住或读取一个值",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				ec := command.FromContext(cmd.Context())
				key := ec.ConversationKey()
				if ec.Store == nil || key == "" {
					return errors.New("存储不可用")
				}
				if len(args) == 2 {
					if err := ec.Store.Save(key, command.ContextValues{args[0]: args[1]}); err != nil {
						return err
					}
					cmd.Printf("已记住 %s", args[0])
					return nil
				}
				v, ok := ec.Values[args[0]]
				if !ok {
					cmd.Printf("没有记录 %s", args[0])
					return nil
				}
				cmd.Printf("%s = %s", args[0], v)
				return nil
			},
		})

		root.AddCommand(&cobra.Command{
			Use:   "ask <question>",
			Short: "向 AI 提问",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ec := command.FromContext(cmd.Context())
				if ec.LLM() == nil {
					return errors.New("AI 未配置")
				}
				answer, err := ec.LLM().Complete(cmd.Context(), "cmd:"+ec.ConversationKey(), ec.Parsed.ArgumentRaw)
				if err != nil {
					return err
				}
				cmd.Print(answer)
				return nil
			},
		})
		return root
	}
}
