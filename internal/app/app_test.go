package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/vyud-ai/vyud/internal/config"
	"github.com/vyud-ai/vyud/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPolicyFromConfig(t *testing.T) {
	p := Policy(config.Config{RetryMaxAttempts: 2, RetryBaseDelay: 50 * time.Millisecond}, discardLogger())
	if p.MaxAttempts != 2 || p.BaseDelay != 50*time.Millisecond {
		t.Fatalf("policy = %+v", p)
	}
	if p.MaxDelay != 10*time.Second {
		t.Fatalf("max delay should keep its default, got %v", p.MaxDelay)
	}
}

func TestNewSQLiteBackend(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{
		StoreBackend:   config.BackendSQLite,
		DatabaseDSN:    filepath.Join(t.TempDir(), "app.db"),
		WelcomeCredits: 4,
	}
	a, err := New(ctx, cfg, discardLogger(), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	if err := a.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if _, _, err := a.Credits.EnsureAccount(ctx, "new@test.io", models.Profile{}); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	balance, err := a.Credits.GetBalance(ctx, "new@test.io")
	if err != nil || balance != 4 {
		t.Fatalf("GetBalance = %d, %v; want welcome grant", balance, err)
	}
	if _, err := a.Backup.Run(ctx); err == nil {
		t.Fatal("backup without storage should fail")
	}
}

func TestSupabaseBackendHasNoMigrations(t *testing.T) {
	cfg := config.Config{
		StoreBackend: config.BackendSupabase,
		SupabaseURL:  "https://demo.supabase.co",
		SupabaseKey:  "key",
	}
	a, err := New(context.Background(), cfg, discardLogger(), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Stores.Accounts == nil || a.Stores.Quizzes == nil {
		t.Fatal("stores not wired")
	}
	if err := a.Migrate(context.Background()); err == nil {
		t.Fatal("expected migrate to refuse the hosted backend")
	}
}

func TestUnknownBackend(t *testing.T) {
	_, err := New(context.Background(), config.Config{StoreBackend: "redis"}, discardLogger(), Options{})
	if err == nil {
		t.Fatal("expected error")
	}
}
