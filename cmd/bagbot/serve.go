package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"bagbot/internal/app"
)

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 融合接口与统计快照",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, closeLog, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			defer closeLog()

			a, err := app.NewApp(cfg, path)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Run(ctx)
		},
	}
}
