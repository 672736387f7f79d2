package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/IMBotPlatform/Clovers/pkg/botcore"
	"github.com/IMBotPlatform/Clovers/pkg/platform/console"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List the plugins that would be served",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := setup(cmd.Context(), console.New(io.Discard, "", "").Adapter())
		if err != nil {
			return err
		}
		defer d.Shutdown(cmd.Context())

		printPlugins(cmd.OutOrStdout(), d.Plugins())
		return nil
	},
}

func printPlugins(w io.Writer, plugins []*botcore.Plugin) {
	for _, p := range plugins {
		fmt.Fprintln(w, p.String())
	}
}
