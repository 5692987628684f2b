package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vyud-ai/vyud/internal/models"
)

const accountColumns = `email, credits, telegram_id, display_name, password_hash, is_premium, generations, tariff,
subscription_expires, last_payment_at, created_at, updated_at`

type AccountRepository struct {
	db *sqlx.DB
}

func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Get returns nil, nil when no account has the key.
func (r *AccountRepository) Get(ctx context.Context, key string) (*models.Account, error) {
	query := r.db.Rebind(`SELECT ` + accountColumns + ` FROM users_credits WHERE email = ?`)
	var acc models.Account
	if err := r.db.GetContext(ctx, &acc, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrap("select account", err)
	}
	return &acc, nil
}

// Create inserts a new account. A taken key fails with storeerr.ErrDuplicate.
func (r *AccountRepository) Create(ctx context.Context, acc *models.Account) error {
	query := r.db.Rebind(`
INSERT INTO users_credits (email, credits, telegram_id, display_name, password_hash, is_premium, generations, tariff,
    subscription_expires, last_payment_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		acc.Key, acc.Credits, acc.TelegramID, acc.DisplayName, acc.PasswordHash, acc.IsPremium, acc.Generations, acc.Tariff,
		acc.SubscriptionExpires, acc.LastPaymentAt, acc.CreatedAt, acc.UpdatedAt)
	return wrap("insert account", err)
}

// UpdateProfile overwrites the Telegram id and display name when provided.
func (r *AccountRepository) UpdateProfile(ctx context.Context, key string, profile models.Profile, now time.Time) error {
	if profile.TelegramID == nil && profile.DisplayName == "" {
		return nil
	}
	query := r.db.Rebind(`
UPDATE users_credits
SET telegram_id = COALESCE(?, telegram_id), display_name = COALESCE(NULLIF(?, ''), display_name), updated_at = ?
WHERE email = ?`)
	_, err := r.db.ExecContext(ctx, query, profile.TelegramID, profile.DisplayName, now, key)
	return wrap("update profile", err)
}

// Debit subtracts amount only when the balance covers it, in one statement.
func (r *AccountRepository) Debit(ctx context.Context, key string, amount int, now time.Time) (bool, error) {
	query := r.db.Rebind(`
UPDATE users_credits SET credits = credits - ?, updated_at = ?
WHERE email = ? AND credits >= ?`)
	res, err := r.db.ExecContext(ctx, query, amount, now, key, amount)
	if err != nil {
		return false, wrap("debit credits", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, wrap("debit rows affected", err)
	}
	return affected > 0, nil
}

// AddCredits increments the balance; false means the account does not exist.
func (r *AccountRepository) AddCredits(ctx context.Context, key string, amount int, now time.Time) (bool, error) {
	query := r.db.Rebind(`UPDATE users_credits SET credits = credits + ?, updated_at = ? WHERE email = ?`)
	res, err := r.db.ExecContext(ctx, query, amount, now, key)
	if err != nil {
		return false, wrap("add credits", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, wrap("add credits rows affected", err)
	}
	return affected > 0, nil
}

func (r *AccountRepository) BumpGenerations(ctx context.Context, key string, now time.Time) error {
	query := r.db.Rebind(`UPDATE users_credits SET generations = generations + 1, updated_at = ? WHERE email = ?`)
	_, err := r.db.ExecContext(ctx, query, now, key)
	return wrap("bump generations", err)
}

// RecordPurchase stores the tariff and payment time. Subscription fields are
// only touched when the purchase carries an expiry.
func (r *AccountRepository) RecordPurchase(ctx context.Context, key string, p models.Purchase) error {
	var err error
	if p.SubscriptionExpires != nil {
		query := r.db.Rebind(`
UPDATE users_credits
SET tariff = ?, last_payment_at = ?, is_premium = ?, subscription_expires = ?, updated_at = ?
WHERE email = ?`)
		_, err = r.db.ExecContext(ctx, query, p.Tariff, p.PaidAt, p.Premium, *p.SubscriptionExpires, p.PaidAt, key)
	} else {
		query := r.db.Rebind(`UPDATE users_credits SET tariff = ?, last_payment_at = ?, updated_at = ? WHERE email = ?`)
		_, err = r.db.ExecContext(ctx, query, p.Tariff, p.PaidAt, p.PaidAt, key)
	}
	return wrap("record purchase", err)
}

// List returns every account, newest first.
func (r *AccountRepository) List(ctx context.Context) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users_credits ORDER BY created_at DESC, email`
	var accounts []models.Account
	if err := r.db.SelectContext(ctx, &accounts, query); err != nil {
		return nil, wrap("list accounts", err)
	}
	return accounts, nil
}

// ExpireSubscriptions drops the premium flag from lapsed subscriptions and
// reports how many accounts changed. Balances are left alone.
func (r *AccountRepository) ExpireSubscriptions(ctx context.Context, now time.Time) (int, error) {
	query := r.db.Rebind(`
UPDATE users_credits SET is_premium = ?, tariff = '', updated_at = ?
WHERE is_premium = ? AND subscription_expires IS NOT NULL AND subscription_expires < ?`)
	res, err := r.db.ExecContext(ctx, query, false, now, true, now)
	if err != nil {
		return 0, wrap("expire subscriptions", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, wrap("expire rows affected", err)
	}
	return int(affected), nil
}
