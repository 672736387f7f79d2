package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/IMBotPlatform/Clovers/pkg/botcore"
	"github.com/IMBotPlatform/Clovers/pkg/platform/console"
)

var (
	replUser     string
	replNickname string
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Talk to the plugins from the terminal",
	Long:  `Reads one message per line from stdin and prints every reply to stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := console.New(cmd.OutOrStdout(), replUser, replNickname)
		d, err := setup(cmd.Context(), c.Adapter(botcore.WithAdapterLogger(logger.Named("console"))))
		if err != nil {
			return err
		}
		defer d.Shutdown(context.Background())

		return c.Run(cmd.Context(), os.Stdin, d)
	},
}

func init() {
	replCmd.Flags().StringVarP(&replUser, "user", "u", "console", "user id of the console speaker")
	replCmd.Flags().StringVarP(&replNickname, "nickname", "n", "", "nickname of the console speaker")
}

// setup 创建插件、分发器并完成 Startup。
func setup(ctx context.Context, adapter *botcore.Adapter, opts ...botcore.Option) (*botcore.Dispatcher, error) {
	service, err := newAIService(cfg, logger)
	if err != nil {
		return nil, err
	}
	d, err := newDispatcher(cfg, adapter, buildPlugins(cfg, service, logger), logger, opts...)
	if err != nil {
		return nil, err
	}
	if err := d.Startup(ctx); err != nil {
		return nil, err
	}
	return d, nil
}
