package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vyud-ai/vyud/internal/models"
)

const quizColumns = `id, owner_email, title, questions, hints, is_public, created_at`

type quizRow struct {
	ID        string    `db:"id"`
	OwnerKey  string    `db:"owner_email"`
	Title     string    `db:"title"`
	Questions []byte    `db:"questions"`
	Hints     string    `db:"hints"`
	IsPublic  bool      `db:"is_public"`
	CreatedAt time.Time `db:"created_at"`
}

func (row quizRow) toModel() (models.Quiz, error) {
	questions, err := models.DecodeQuestions(row.Questions)
	if err != nil {
		return models.Quiz{}, fmt.Errorf("quiz %s: %w", row.ID, err)
	}
	return models.Quiz{
		ID:        row.ID,
		OwnerKey:  row.OwnerKey,
		Title:     row.Title,
		Questions: questions,
		Hints:     models.DecodeHints(row.Hints),
		IsPublic:  row.IsPublic,
		CreatedAt: row.CreatedAt,
	}, nil
}

type QuizRepository struct {
	db *sqlx.DB
}

func NewQuizRepository(db *sqlx.DB) *QuizRepository {
	return &QuizRepository{db: db}
}

// Insert stores a new quiz. A taken id fails with storeerr.ErrDuplicate.
func (r *QuizRepository) Insert(ctx context.Context, quiz *models.Quiz) error {
	questions, err := models.EncodeQuestions(quiz.Questions)
	if err != nil {
		return err
	}
	hints, err := models.EncodeHints(quiz.Hints)
	if err != nil {
		return err
	}
	query := r.db.Rebind(`
INSERT INTO quizzes (id, owner_email, title, questions, hints, is_public, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err = r.db.ExecContext(ctx, query,
		quiz.ID, quiz.OwnerKey, quiz.Title, string(questions), hints, quiz.IsPublic, quiz.CreatedAt)
	return wrap("insert quiz", err)
}

// Get returns nil, nil when the id is unknown.
func (r *QuizRepository) Get(ctx context.Context, id string) (*models.Quiz, error) {
	query := r.db.Rebind(`SELECT ` + quizColumns + ` FROM quizzes WHERE id = ?`)
	var row quizRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrap("select quiz", err)
	}
	quiz, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &quiz, nil
}

// ListByOwner returns the owner's quizzes, newest first.
func (r *QuizRepository) ListByOwner(ctx context.Context, owner string, limit int) ([]models.Quiz, error) {
	query := r.db.Rebind(`SELECT ` + quizColumns + ` FROM quizzes WHERE owner_email = ? ORDER BY created_at DESC, id LIMIT ?`)
	return r.selectQuizzes(ctx, "list quizzes", query, owner, limit)
}

// CreatedSince returns quizzes created at or after since, oldest first.
func (r *QuizRepository) CreatedSince(ctx context.Context, since time.Time) ([]models.Quiz, error) {
	query := r.db.Rebind(`SELECT ` + quizColumns + ` FROM quizzes WHERE created_at >= ? ORDER BY created_at, id`)
	return r.selectQuizzes(ctx, "list recent quizzes", query, since)
}

// SetPublic flips the visibility flag; false means the quiz does not exist.
func (r *QuizRepository) SetPublic(ctx context.Context, id string, public bool) (bool, error) {
	// MySQL reports zero affected rows when the flag already has the value,
	// so existence is checked separately.
	query := r.db.Rebind(`UPDATE quizzes SET is_public = ? WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, public, id); err != nil {
		return false, wrap("update quiz visibility", err)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, r.db.Rebind(`SELECT COUNT(*) FROM quizzes WHERE id = ?`), id); err != nil {
		return false, wrap("count quiz", err)
	}
	return count > 0, nil
}

func (r *QuizRepository) selectQuizzes(ctx context.Context, op, query string, args ...any) ([]models.Quiz, error) {
	var rows []quizRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrap(op, err)
	}
	quizzes := make([]models.Quiz, 0, len(rows))
	for _, row := range rows {
		quiz, err := row.toModel()
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, quiz)
	}
	return quizzes, nil
}
