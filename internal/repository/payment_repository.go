package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/vyud-ai/vyud/internal/models"
)

type PaymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Log appends a payment record and fills in its id. A second record for the
// same order id fails with storeerr.ErrDuplicate.
func (r *PaymentRepository) Log(ctx context.Context, rec *models.PaymentRecord) error {
	const query = `
INSERT INTO payments_log (email, order_id, product, credits_added, amount_rub, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	id, err := insertReturningID(ctx, r.db, query,
		rec.AccountKey, rec.OrderID, rec.Product, rec.CreditsAdded, rec.AmountRUB, rec.CreatedAt)
	if err != nil {
		return wrap("insert payment log", err)
	}
	rec.ID = id
	return nil
}

// Release removes the record of an order so a later delivery can claim it
// again.
func (r *PaymentRepository) Release(ctx context.Context, orderID string) error {
	query := r.db.Rebind(`DELETE FROM payments_log WHERE order_id = ?`)
	if _, err := r.db.ExecContext(ctx, query, orderID); err != nil {
		return wrap("delete payment log", err)
	}
	return nil
}

// FindByOrderID returns the first record for the order, or nil, nil.
func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*models.PaymentRecord, error) {
	query := r.db.Rebind(`
SELECT id, email, order_id, product, credits_added, amount_rub, created_at
FROM payments_log WHERE order_id = ? ORDER BY id LIMIT 1`)
	var rec models.PaymentRecord
	if err := r.db.GetContext(ctx, &rec, query, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrap("select payment log", err)
	}
	return &rec, nil
}

// insertReturningID runs an INSERT and reports the generated id. The pgx
// driver has no LastInsertId, so Postgres uses RETURNING.
func insertReturningID(ctx context.Context, db *sqlx.DB, query string, args ...any) (int64, error) {
	if db.DriverName() == "pgx" {
		var id int64
		if err := db.QueryRowxContext(ctx, db.Rebind(query+` RETURNING id`), args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
