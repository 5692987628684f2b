package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/vyud-ai/vyud/internal/models"
)

type GenerationRepository struct {
	db *sqlx.DB
}

func NewGenerationRepository(db *sqlx.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

func (r *GenerationRepository) Log(ctx context.Context, entry *models.GenerationLog) error {
	const query = `
INSERT INTO generation_logs (email, telegram_id, generation_type, created_at)
VALUES (?, ?, ?, ?)`
	id, err := insertReturningID(ctx, r.db, query, entry.AccountKey, entry.TelegramID, entry.Kind, entry.CreatedAt)
	if err != nil {
		return wrap("insert generation log", err)
	}
	entry.ID = id
	return nil
}

// CountByType returns the number of logged generations per type.
func (r *GenerationRepository) CountByType(ctx context.Context) (map[string]int, error) {
	const query = `SELECT generation_type, COUNT(*) AS total FROM generation_logs GROUP BY generation_type`
	var rows []struct {
		Kind  string `db:"generation_type"`
		Total int    `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, wrap("count generations", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Kind] = row.Total
	}
	return counts, nil
}
