// Package app wires configuration, storage backends and services together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jmoiron/sqlx"

	"github.com/vyud-ai/vyud/internal/admin"
	"github.com/vyud-ai/vyud/internal/config"
	"github.com/vyud-ai/vyud/internal/database"
	"github.com/vyud-ai/vyud/internal/repository"
	"github.com/vyud-ai/vyud/internal/retry"
	"github.com/vyud-ai/vyud/internal/scheduler"
	"github.com/vyud-ai/vyud/internal/service"
	"github.com/vyud-ai/vyud/internal/storage"
	"github.com/vyud-ai/vyud/internal/supabase"
	"github.com/vyud-ai/vyud/internal/telegram"
)

// App holds the constructed services for one process.
type App struct {
	Config config.Config
	Log    *slog.Logger
	Policy retry.Policy
	Stores service.Stores

	Credits       *service.CreditService
	Quizzes       *service.QuizService
	Payments      *service.PaymentService
	Stats         *service.StatsService
	Subscriptions *service.SubscriptionService
	Backup        *service.BackupService

	db     *sqlx.DB
	botAPI *tgbotapi.BotAPI
}

// Options toggles collaborators that reach out to the network at
// construction time.
type Options struct {
	// Telegram connects the bot API when a token is configured.
	Telegram bool
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Log: log, Policy: Policy(cfg, log)}

	stores, db, err := OpenStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.Stores = stores
	a.db = db

	var notifier service.Notifier
	if opts.Telegram && cfg.NotificationsEnabled() {
		api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("telegram bot: %w", err)
		}
		a.botAPI = api
		notifier = telegram.NewNotifier(api, cfg.AdminChatID, log)
	}

	var uploader service.Uploader
	if cfg.BackupEnabled() {
		u, err := storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("storage uploader: %w", err)
		}
		uploader = u
	}

	a.Credits = service.NewCreditService(stores.Accounts, stores.Generations, a.Policy, cfg.WelcomeCredits, log).
		WithRegistrationGrant(cfg.RegisterCredits)
	a.Quizzes = service.NewQuizService(stores.Quizzes, a.Policy, log)
	a.Payments = service.NewPaymentService(a.Credits, stores.Payments, a.Policy, notifier, log)
	a.Stats = service.NewStatsService(a.Credits, stores.Generations, a.Policy)
	a.Subscriptions = service.NewSubscriptionService(stores.Accounts, a.Policy, log)
	a.Backup = service.NewBackupService(a.Credits, a.Quizzes, uploader, log)
	return a, nil
}

// Policy builds the store retry policy from configuration.
func Policy(cfg config.Config, log *slog.Logger) retry.Policy {
	p := retry.Default(log)
	if cfg.RetryMaxAttempts > 0 {
		p.MaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RetryBaseDelay > 0 {
		p.BaseDelay = cfg.RetryBaseDelay
	}
	if cfg.RetryMaxDelay > 0 {
		p.MaxDelay = cfg.RetryMaxDelay
	}
	return p
}

// OpenStores builds the repositories of the configured backend. The returned
// *sqlx.DB is nil for the hosted backend.
func OpenStores(ctx context.Context, cfg config.Config, log *slog.Logger) (service.Stores, *sqlx.DB, error) {
	if cfg.StoreBackend == config.BackendSupabase {
		client := supabase.NewClient(cfg, log)
		return service.Stores{
			Accounts:    supabase.NewAccountRepository(client),
			Quizzes:     supabase.NewQuizRepository(client),
			Payments:    supabase.NewPaymentRepository(client),
			Generations: supabase.NewGenerationRepository(client),
		}, nil, nil
	}

	dialect, err := database.ParseDialect(cfg.StoreBackend)
	if err != nil {
		return service.Stores{}, nil, err
	}
	db, err := database.Connect(ctx, dialect, cfg.DatabaseDSN)
	if err != nil {
		return service.Stores{}, nil, fmt.Errorf("database connect: %w", err)
	}
	return service.Stores{
		Accounts:    repository.NewAccountRepository(db),
		Quizzes:     repository.NewQuizRepository(db),
		Payments:    repository.NewPaymentRepository(db),
		Generations: repository.NewGenerationRepository(db),
	}, db, nil
}

// Migrate applies the SQL schema. The hosted backend is provisioned from
// database.SupabaseSQL instead.
func (a *App) Migrate(ctx context.Context) error {
	if a.db == nil {
		return fmt.Errorf("migrate: backend %q is provisioned with `vyud schema`", a.Config.StoreBackend)
	}
	dialect, err := database.ParseDialect(a.Config.StoreBackend)
	if err != nil {
		return err
	}
	return database.Migrate(ctx, a.db, dialect)
}

// Serve runs the HTTP server, the maintenance scheduler and, when polling is
// enabled, the Telegram bot until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cfg := a.Config
	if a.db != nil {
		if err := a.Migrate(ctx); err != nil {
			return fmt.Errorf("database migrate: %w", err)
		}
	}

	sched := scheduler.New(a.Log)
	if err := sched.Add("expire-subscriptions", cfg.ExpirySchedule, func(ctx context.Context) error {
		_, err := a.Subscriptions.ExpireLapsed(ctx)
		return err
	}); err != nil {
		return err
	}
	if cfg.BackupEnabled() {
		if err := sched.Add("backup", cfg.BackupSchedule, func(ctx context.Context) error {
			_, err := a.Backup.Run(ctx)
			return err
		}); err != nil {
			return err
		}
	}
	sched.Start(ctx)
	defer sched.Stop()

	server := admin.NewServer(admin.Options{
		Addr:           cfg.AdminListenAddr,
		Username:       cfg.AdminUsername,
		Password:       cfg.AdminPassword,
		ProdamusSecret: cfg.ProdamusSecretKey,
		Health: admin.HealthFlags{
			ProdamusConfigured: cfg.ProdamusSecretKey != "",
			StoreConfigured:    true,
			TelegramConfigured: a.botAPI != nil,
			AdminNotifications: a.botAPI != nil && cfg.AdminChatID != 0,
		},
	}, a.Log, a.Credits, a.Quizzes, a.Payments, a.Stats)

	var wg sync.WaitGroup
	if a.botAPI != nil && cfg.TelegramPolling {
		bot := telegram.NewBot(a.botAPI, a.Log, a.Credits, a.Quizzes)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.Log.Error("bot stopped", "err", err)
			}
		}()
	}

	err := server.Run(ctx)
	cancel()
	wg.Wait()
	return err
}

func (a *App) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
