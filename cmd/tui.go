package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/timada-org/todobase/internal/core"
	"github.com/timada-org/todobase/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Run the terminal interface",

	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.NewConfig(cfgFile)
		if err != nil {
			return err
		}

		log, err := core.NewLogger(config.Log)
		if err != nil {
			return err
		}

		// the terminal belongs to the interface
		if config.Log.File == "" {
			log.SetOutput(io.Discard)
		}

		r, err := newRuntime(config, log)
		if err != nil {
			return err
		}
		defer r.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		if err := r.start(ctx); err != nil {
			return err
		}

		return tui.Run(ctx, r.ctrl)
	},
}
