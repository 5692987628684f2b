package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vyud-ai/vyud/internal/app"
	"github.com/vyud-ai/vyud/pkg/logger"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the payment webhook, admin API, scheduler and Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log := logger.New(cfg.LogLevel)

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(runCtx, cfg, log, app.Options{Telegram: true})
			if err != nil {
				return err
			}
			defer a.Close()

			log.Info("vyud starting", "backend", cfg.StoreBackend, "addr", cfg.AdminListenAddr)
			if err := a.Serve(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
