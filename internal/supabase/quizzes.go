package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/vyud-ai/vyud/internal/models"
)

const quizzesTable = "quizzes"

// quizRow is the wire shape of a quizzes row; questions is jsonb and may
// hold either an array or a JSON-encoded string in older rows.
type quizRow struct {
	ID        string          `json:"id"`
	OwnerKey  string          `json:"owner_email"`
	Title     string          `json:"title"`
	Questions json.RawMessage `json:"questions"`
	Hints     *string         `json:"hints"`
	IsPublic  bool            `json:"is_public"`
	CreatedAt time.Time       `json:"created_at"`
}

func (row quizRow) toModel() (models.Quiz, error) {
	questions, err := models.DecodeQuestions(row.Questions)
	if err != nil {
		return models.Quiz{}, fmt.Errorf("quiz %s: %w", row.ID, err)
	}
	var hints []string
	if row.Hints != nil {
		hints = models.DecodeHints(*row.Hints)
	}
	return models.Quiz{
		ID:        row.ID,
		OwnerKey:  row.OwnerKey,
		Title:     row.Title,
		Questions: questions,
		Hints:     hints,
		IsPublic:  row.IsPublic,
		CreatedAt: row.CreatedAt,
	}, nil
}

type QuizRepository struct {
	client *Client
}

func NewQuizRepository(client *Client) *QuizRepository {
	return &QuizRepository{client: client}
}

func (r *QuizRepository) Insert(ctx context.Context, quiz *models.Quiz) error {
	questions, err := models.EncodeQuestions(quiz.Questions)
	if err != nil {
		return err
	}
	hints, err := models.EncodeHints(quiz.Hints)
	if err != nil {
		return err
	}
	row := quizRow{
		ID:        quiz.ID,
		OwnerKey:  quiz.OwnerKey,
		Title:     quiz.Title,
		Questions: questions,
		Hints:     &hints,
		IsPublic:  quiz.IsPublic,
		CreatedAt: quiz.CreatedAt,
	}
	req := request{method: http.MethodPost, path: quizzesTable, body: row, prefer: "return=minimal"}
	if err := r.client.do(ctx, req, nil); err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	return nil
}

func (r *QuizRepository) Get(ctx context.Context, id string) (*models.Quiz, error) {
	query := url.Values{"select": {"*"}, "id": {eq(id)}, "limit": {"1"}}
	quizzes, err := r.selectQuizzes(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select quiz: %w", err)
	}
	if len(quizzes) == 0 {
		return nil, nil
	}
	return &quizzes[0], nil
}

func (r *QuizRepository) ListByOwner(ctx context.Context, owner string, limit int) ([]models.Quiz, error) {
	query := url.Values{
		"select":      {"*"},
		"owner_email": {eq(owner)},
		"order":       {"created_at.desc,id.asc"},
		"limit":       {strconv.Itoa(limit)},
	}
	quizzes, err := r.selectQuizzes(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	return quizzes, nil
}

func (r *QuizRepository) CreatedSince(ctx context.Context, since time.Time) ([]models.Quiz, error) {
	query := url.Values{
		"select":     {"*"},
		"created_at": {"gte." + since.UTC().Format(time.RFC3339Nano)},
		"order":      {"created_at.asc,id.asc"},
	}
	rows, err := selectAll[quizRow](ctx, r.client, quizzesTable, query)
	if err != nil {
		return nil, fmt.Errorf("list recent quizzes: %w", err)
	}
	return toQuizzes(rows)
}

func (r *QuizRepository) SetPublic(ctx context.Context, id string, public bool) (bool, error) {
	req := request{
		method: http.MethodPatch,
		path:   quizzesTable,
		query:  url.Values{"id": {eq(id)}, "select": {"id"}},
		body:   map[string]any{"is_public": public},
		prefer: "return=representation",
	}
	var rows []struct {
		ID string `json:"id"`
	}
	if err := r.client.do(ctx, req, &rows); err != nil {
		return false, fmt.Errorf("update quiz visibility: %w", err)
	}
	return len(rows) > 0, nil
}

func (r *QuizRepository) selectQuizzes(ctx context.Context, query url.Values) ([]models.Quiz, error) {
	var rows []quizRow
	if err := r.client.do(ctx, request{method: http.MethodGet, path: quizzesTable, query: query}, &rows); err != nil {
		return nil, err
	}
	return toQuizzes(rows)
}

func toQuizzes(rows []quizRow) ([]models.Quiz, error) {
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
