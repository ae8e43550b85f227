package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/timada-org/todobase/internal/core"
	"github.com/timada-org/todobase/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the browser interface",

	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.NewConfig(cfgFile)
		if err != nil {
			return err
		}

		log, err := core.NewLogger(config.Log)
		if err != nil {
			return err
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

		server, err := web.New(web.Options{
			Controller:     r.ctrl,
			Addr:           config.Addr,
			AllowedOrigins: config.AllowedOrigins,
			Log:            log,
		})
		if err != nil {
			return err
		}
		defer server.Close()

		log.WithField("url", "http://"+strings.Replace(config.Addr, "0.0.0.0", "localhost", 1)).Info("open in a browser")

		return server.Run(ctx)
	},
}
