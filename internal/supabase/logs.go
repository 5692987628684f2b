package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/vyud-ai/vyud/internal/models"
)

type PaymentRepository struct {
	client *Client
}

func NewPaymentRepository(client *Client) *PaymentRepository {
	return &PaymentRepository{client: client}
}

func (r *PaymentRepository) Log(ctx context.Context, rec *models.PaymentRecord) error {
	row := struct {
		Email        string    `json:"email"`
		OrderID      string    `json:"order_id"`
		Product      string    `json:"product"`
		CreditsAdded int       `json:"credits_added"`
		AmountRUB    int       `json:"amount_rub"`
		CreatedAt    time.Time `json:"created_at"`
	}{rec.AccountKey, rec.OrderID, rec.Product, rec.CreditsAdded, rec.AmountRUB, rec.CreatedAt}

	req := request{
		method: http.MethodPost,
		path:   "payments_log",
		query:  url.Values{"select": {"id"}},
		body:   row,
		prefer: "return=representation",
	}
	var created []struct {
		ID int64 `json:"id"`
	}
	if err := r.client.do(ctx, req, &created); err != nil {
		return fmt.Errorf("insert payment log: %w", err)
	}
	if len(created) > 0 {
		rec.ID = created[0].ID
	}
	return nil
}

func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*models.PaymentRecord, error) {
	query := url.Values{"select": {"*"}, "order_id": {eq(orderID)}, "order": {"id.asc"}, "limit": {"1"}}
	var rows []models.PaymentRecord
	if err := r.client.do(ctx, request{method: http.MethodGet, path: "payments_log", query: query}, &rows); err != nil {
		return nil, fmt.Errorf("select payment log: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *PaymentRepository) Release(ctx context.Context, orderID string) error {
	req := request{method: http.MethodDelete, path: "payments_log", query: url.Values{"order_id": {eq(orderID)}}}
	if err := r.client.do(ctx, req, nil); err != nil {
		return fmt.Errorf("delete payment log: %w", err)
	}
	return nil
}

type GenerationRepository struct {
	client *Client
}

func NewGenerationRepository(client *Client) *GenerationRepository {
	return &GenerationRepository{client: client}
}

func (r *GenerationRepository) Log(ctx context.Context, entry *models.GenerationLog) error {
	row := struct {
		Email      string    `json:"email"`
		TelegramID *int64    `json:"telegram_id"`
		Kind       string    `json:"generation_type"`
		CreatedAt  time.Time `json:"created_at"`
	}{entry.AccountKey, entry.TelegramID, entry.Kind, entry.CreatedAt}

	req := request{method: http.MethodPost, path: "generation_logs", body: row, prefer: "return=minimal"}
	if err := r.client.do(ctx, req, nil); err != nil {
		return fmt.Errorf("insert generation log: %w", err)
	}
	return nil
}

// CountByType tallies generation types client side; hosted PostgREST has
// aggregates disabled by default.
func (r *GenerationRepository) CountByType(ctx context.Context) (map[string]int, error) {
	rows, err := selectAll[struct {
		Kind string `json:"generation_type"`
	}](ctx, r.client, "generation_logs", url.Values{"select": {"generation_type"}, "order": {"id.asc"}})
	if err != nil {
		return nil, fmt.Errorf("count generations: %w", err)
	}
	counts := make(map[string]int)
	for _, row := range rows {
		counts[row.Kind]++
	}
	return counts, nil
}
