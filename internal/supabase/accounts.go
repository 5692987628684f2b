package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/vyud-ai/vyud/internal/models"
)

const accountsTable = "users_credits"

// accountRow is the wire form of a users_credits row. models.Account keeps
// the password hash out of JSON, so it travels in its own field here.
type accountRow struct {
	models.Account
	PasswordHash string `json:"password_hash,omitempty"`
}

func (row accountRow) account() models.Account {
	acc := row.Account
	acc.PasswordHash = row.PasswordHash
	return acc
}

type AccountRepository struct {
	client *Client
}

func NewAccountRepository(client *Client) *AccountRepository {
	return &AccountRepository{client: client}
}

// Get returns nil, nil when no account has the key.
func (r *AccountRepository) Get(ctx context.Context, key string) (*models.Account, error) {
	query := url.Values{"select": {"*"}, "email": {eq(key)}, "limit": {"1"}}
	var rows []accountRow
	if err := r.client.do(ctx, request{method: http.MethodGet, path: accountsTable, query: query}, &rows); err != nil {
		return nil, fmt.Errorf("select account: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	acc := rows[0].account()
	return &acc, nil
}

func (r *AccountRepository) Create(ctx context.Context, acc *models.Account) error {
	body := accountRow{Account: *acc, PasswordHash: acc.PasswordHash}
	req := request{method: http.MethodPost, path: accountsTable, body: body, prefer: "return=minimal"}
	if err := r.client.do(ctx, req, nil); err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *AccountRepository) UpdateProfile(ctx context.Context, key string, profile models.Profile, now time.Time) error {
	patch := map[string]any{"updated_at": now}
	if profile.TelegramID != nil {
		patch["telegram_id"] = *profile.TelegramID
	}
	if profile.DisplayName != "" {
		patch["display_name"] = profile.DisplayName
	}
	if len(patch) == 1 {
		return nil
	}
	if err := r.patch(ctx, key, patch); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// Debit calls vyud_debit_credits, a conditional UPDATE on the server.
func (r *AccountRepository) Debit(ctx context.Context, key string, amount int, _ time.Time) (bool, error) {
	ok, err := r.rpcBool(ctx, "vyud_debit_credits", map[string]any{"p_email": key, "p_amount": amount})
	if err != nil {
		return false, fmt.Errorf("debit credits: %w", err)
	}
	return ok, nil
}

// AddCredits calls vyud_add_credits; false means the account does not exist.
func (r *AccountRepository) AddCredits(ctx context.Context, key string, amount int, _ time.Time) (bool, error) {
	ok, err := r.rpcBool(ctx, "vyud_add_credits", map[string]any{"p_email": key, "p_amount": amount})
	if err != nil {
		return false, fmt.Errorf("add credits: %w", err)
	}
	return ok, nil
}

func (r *AccountRepository) BumpGenerations(ctx context.Context, key string, _ time.Time) error {
	req := request{method: http.MethodPost, path: "rpc/vyud_bump_generations", body: map[string]any{"p_email": key}}
	if err := r.client.do(ctx, req, nil); err != nil {
		return fmt.Errorf("bump generations: %w", err)
	}
	return nil
}

func (r *AccountRepository) RecordPurchase(ctx context.Context, key string, p models.Purchase) error {
	patch := map[string]any{
		"tariff":          p.Tariff,
		"last_payment_at": p.PaidAt,
		"updated_at":      p.PaidAt,
	}
	if p.SubscriptionExpires != nil {
		patch["subscription_expires"] = *p.SubscriptionExpires
		patch["is_premium"] = p.Premium
	}
	if err := r.patch(ctx, key, patch); err != nil {
		return fmt.Errorf("record purchase: %w", err)
	}
	return nil
}

func (r *AccountRepository) List(ctx context.Context) ([]models.Account, error) {
	query := url.Values{"select": {"*"}, "order": {"created_at.desc,email.asc"}}
	accounts, err := selectAll[models.Account](ctx, r.client, accountsTable, query)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

func (r *AccountRepository) ExpireSubscriptions(ctx context.Context, now time.Time) (int, error) {
	query := url.Values{
		"is_premium":           {"is.true"},
		"subscription_expires": {"lt." + now.UTC().Format(time.RFC3339)},
		"select":               {"email"},
	}
	req := request{
		method: http.MethodPatch,
		path:   accountsTable,
		query:  query,
		body:   map[string]any{"is_premium": false, "tariff": "", "updated_at": now},
		prefer: "return=representation",
	}
	var rows []struct {
		Email string `json:"email"`
	}
	if err := r.client.do(ctx, req, &rows); err != nil {
		return 0, fmt.Errorf("expire subscriptions: %w", err)
	}
	return len(rows), nil
}

func (r *AccountRepository) patch(ctx context.Context, key string, patch map[string]any) error {
	req := request{
		method: http.MethodPatch,
		path:   accountsTable,
		query:  url.Values{"email": {eq(key)}},
		body:   patch,
		prefer: "return=minimal",
	}
	return r.client.do(ctx, req, nil)
}

func (r *AccountRepository) rpcBool(ctx context.Context, fn string, args map[string]any) (bool, error) {
	var ok bool
	if err := r.client.do(ctx, request{method: http.MethodPost, path: "rpc/" + fn, body: args}, &ok); err != nil {
		return false, err
	}
	return ok, nil
}
