package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vyud-ai/vyud/internal/models"
	"github.com/vyud-ai/vyud/internal/retry"
	"github.com/vyud-ai/vyud/internal/storeerr"
)

// CreditService owns account balances. Balances only change through single
// atomic statements in the backend.
type CreditService struct {
	accounts        AccountStore
	generations     GenerationStore
	policy          retry.Policy
	log             *slog.Logger
	welcomeCredits  int
	registerCredits int
	hashCost        int
	now             func() time.Time
}

func NewCreditService(accounts AccountStore, generations GenerationStore, policy retry.Policy, welcomeCredits int, log *slog.Logger) *CreditService {
	return &CreditService{
		accounts:        accounts,
		generations:     generations,
		policy:          policy,
		log:             log,
		welcomeCredits:  welcomeCredits,
		registerCredits: welcomeCredits,
		hashCost:        bcrypt.DefaultCost,
		now:             utcNow,
	}
}

// WithRegistrationGrant sets the credits a password registration starts
// with. It defaults to the welcome grant.
func (s *CreditService) WithRegistrationGrant(credits int) *CreditService {
	s.registerCredits = credits
	return s
}

// EnsureAccount creates the account with the welcome grant when it does not
// exist yet. An existing account only gets its profile refreshed.
func (s *CreditService) EnsureAccount(ctx context.Context, key string, profile models.Profile) (models.Account, bool, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return models.Account{}, false, err
	}

	existing, err := s.lookup(ctx, key)
	if err != nil {
		return models.Account{}, false, err
	}
	if existing != nil {
		s.refreshProfile(ctx, existing, profile)
		return *existing, false, nil
	}

	now := s.now()
	acc := models.Account{
		Key:         key,
		Credits:     s.welcomeCredits,
		TelegramID:  profile.TelegramID,
		DisplayName: profile.DisplayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = call(ctx, s.policy, "create account", func(ctx context.Context) error {
		return s.accounts.Create(ctx, &acc)
	})
	if storeerr.IsDuplicate(err) {
		// Lost a creation race; the winner's row is authoritative.
		existing, err := s.lookup(ctx, key)
		if err != nil {
			return models.Account{}, false, err
		}
		if existing == nil {
			return models.Account{}, false, fmt.Errorf("account %s vanished after duplicate insert", key)
		}
		s.refreshProfile(ctx, existing, profile)
		return *existing, false, nil
	}
	if err != nil {
		return models.Account{}, false, err
	}
	if s.log != nil {
		s.log.Info("account created", "account", key, "credits", acc.Credits)
	}
	return acc, true, nil
}

// GetBalance returns the current balance, 0 for an unknown account. It never
// writes.
func (s *CreditService) GetBalance(ctx context.Context, key string) (int, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return 0, err
	}
	acc, err := s.lookup(ctx, key)
	if err != nil {
		return 0, err
	}
	if acc == nil {
		return 0, nil
	}
	return acc.Credits, nil
}

// Account returns the full row, nil when missing.
func (s *CreditService) Account(ctx context.Context, key string) (*models.Account, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	return s.lookup(ctx, key)
}

// Debit subtracts amount when the balance covers it. It returns false, and
// leaves the balance untouched, when funds are insufficient or the account
// does not exist.
func (s *CreditService) Debit(ctx context.Context, key string, amount int) (bool, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return false, err
	}
	if amount < 1 {
		return false, ErrInvalidAmount
	}
	var ok bool
	err = call(ctx, s.policy, "debit credits", func(ctx context.Context) error {
		var err error
		ok, err = s.accounts.Debit(ctx, key, amount, s.now())
		return err
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Credit adds amount to the balance, creating the account with exactly that
// balance when it does not exist.
func (s *CreditService) Credit(ctx context.Context, key string, amount int) (bool, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return false, err
	}
	if amount < 1 {
		return false, ErrInvalidAmount
	}

	ok, err := s.addCredits(ctx, key, amount)
	if err != nil || ok {
		return ok, err
	}

	now := s.now()
	acc := models.Account{Key: key, Credits: amount, CreatedAt: now, UpdatedAt: now}
	err = call(ctx, s.policy, "create account", func(ctx context.Context) error {
		return s.accounts.Create(ctx, &acc)
	})
	if storeerr.IsDuplicate(err) {
		return s.addCredits(ctx, key, amount)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Charge debits one credit for a generation and records it. The log entry
// and counter are best effort.
func (s *CreditService) Charge(ctx context.Context, key, kind string, telegramID *int64) (bool, error) {
	ok, err := s.Debit(ctx, key, 1)
	if err != nil || !ok {
		return ok, err
	}
	key = models.NormalizeAccountKey(key)

	entry := models.GenerationLog{AccountKey: key, TelegramID: telegramID, Kind: kind, CreatedAt: s.now()}
	if err := call(ctx, s.policy, "log generation", func(ctx context.Context) error {
		return s.generations.Log(ctx, &entry)
	}); err != nil && s.log != nil {
		s.log.Warn("failed to log generation", "account", key, "kind", kind, "err", err)
	}
	if err := call(ctx, s.policy, "bump generations", func(ctx context.Context) error {
		return s.accounts.BumpGenerations(ctx, key, s.now())
	}); err != nil && s.log != nil {
		s.log.Warn("failed to bump generation counter", "account", key, "err", err)
	}
	return true, nil
}

// RecordPurchase stores the tariff side of a payment.
func (s *CreditService) RecordPurchase(ctx context.Context, key string, purchase models.Purchase) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	return call(ctx, s.policy, "record purchase", func(ctx context.Context) error {
		return s.accounts.RecordPurchase(ctx, key, purchase)
	})
}

func (s *CreditService) ListAccounts(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	err := call(ctx, s.policy, "list accounts", func(ctx context.Context) error {
		var err error
		accounts, err = s.accounts.List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *CreditService) lookup(ctx context.Context, key string) (*models.Account, error) {
	var acc *models.Account
	err := call(ctx, s.policy, "get account", func(ctx context.Context) error {
		var err error
		acc, err = s.accounts.Get(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *CreditService) addCredits(ctx context.Context, key string, amount int) (bool, error) {
	var ok bool
	err := call(ctx, s.policy, "add credits", func(ctx context.Context) error {
		var err error
		ok, err = s.accounts.AddCredits(ctx, key, amount, s.now())
		return err
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (s *CreditService) refreshProfile(ctx context.Context, acc *models.Account, profile models.Profile) {
	if profile.TelegramID == nil && profile.DisplayName == "" {
		return
	}
	err := call(ctx, s.policy, "update profile", func(ctx context.Context) error {
		return s.accounts.UpdateProfile(ctx, acc.Key, profile, s.now())
	})
	if err != nil {
		if s.log != nil {
			s.log.Warn("failed to refresh profile", "account", acc.Key, "err", err)
		}
		return
	}
	if profile.TelegramID != nil {
		acc.TelegramID = profile.TelegramID
	}
	if profile.DisplayName != "" {
		acc.DisplayName = profile.DisplayName
	}
}
