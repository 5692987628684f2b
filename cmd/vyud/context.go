package main

import (
	"context"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/vyud-ai/vyud/internal/app"
	"github.com/vyud-ai/vyud/internal/config"
	"github.com/vyud-ai/vyud/pkg/logger"
)

type commandContext struct {
	secretsFlag *string

	configOnce sync.Once
	config     config.Config
	configErr  error
}

func newCommandContext(secretsFlag *string) *commandContext {
	return &commandContext{secretsFlag: secretsFlag}
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.secretsFlag != nil {
			path = strings.TrimSpace(*c.secretsFlag)
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

// withApp builds the services for one command and releases them afterwards.
// SQL schemas are applied first; they are idempotent.
func (c *commandContext) withApp(cmd *cobra.Command, opts app.Options, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	log := logger.NewWriter(cmd.ErrOrStderr(), cfg.LogLevel)
	a, err := app.New(ctx, cfg, log, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.StoreBackend != config.BackendSupabase {
		if err := a.Migrate(ctx); err != nil {
			return err
		}
	}
	return fn(ctx, a)
}
