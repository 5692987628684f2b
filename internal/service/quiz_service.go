package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vyud-ai/vyud/internal/models"
	"github.com/vyud-ai/vyud/internal/retry"
	"github.com/vyud-ai/vyud/internal/storeerr"
)

const (
	quizIDLength     = 8
	quizIDAttempts   = 5
	defaultQuizLimit = 50
	maxQuizLimit     = 200
)

var errNoFreeQuizID = errors.New("no free quiz id")

type QuizService struct {
	quizzes QuizStore
	policy  retry.Policy
	log     *slog.Logger
	now     func() time.Time
	newID   func() string
}

func NewQuizService(quizzes QuizStore, policy retry.Policy, log *slog.Logger) *QuizService {
	return &QuizService{
		quizzes: quizzes,
		policy:  policy,
		log:     log,
		now:     utcNow,
		newID:   newQuizID,
	}
}

// newQuizID returns a short shareable code; uniqueness is enforced by the
// primary key and SaveQuiz retries on collision.
func newQuizID() string {
	return uuid.NewString()[:quizIDLength]
}

// SaveQuiz stores a private quiz and returns its id.
func (s *QuizService) SaveQuiz(ctx context.Context, key, title string, questions []models.Question, hints []string) (string, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return "", err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%w: title is empty", ErrInvalidQuiz)
	}
	if len(questions) == 0 {
		return "", fmt.Errorf("%w: no questions", ErrInvalidQuiz)
	}
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return "", fmt.Errorf("%w: question %d: %v", ErrInvalidQuiz, i+1, err)
		}
	}

	quiz := models.Quiz{
		OwnerKey:  key,
		Title:     title,
		Questions: questions,
		Hints:     hints,
		CreatedAt: s.now(),
	}
	for attempt := 1; attempt <= quizIDAttempts; attempt++ {
		quiz.ID = s.newID()
		err := call(ctx, s.policy, "insert quiz", func(ctx context.Context) error {
			return s.quizzes.Insert(ctx, &quiz)
		})
		if err == nil {
			if s.log != nil {
				s.log.Info("quiz saved", "quiz_id", quiz.ID, "account", key, "questions", len(questions))
			}
			return quiz.ID, nil
		}
		if !storeerr.IsDuplicate(err) {
			return "", fmt.Errorf("save quiz: %w", err)
		}
		if s.log != nil {
			s.log.Debug("quiz id collision", "quiz_id", quiz.ID, "attempt", attempt)
		}
	}
	return "", fmt.Errorf("save quiz: %w after %d attempts", errNoFreeQuizID, quizIDAttempts)
}

// QuizzesForOwner lists the owner's quizzes, newest first.
func (s *QuizService) QuizzesForOwner(ctx context.Context, key string, limit int) ([]models.Quiz, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultQuizLimit
	}
	if limit > maxQuizLimit {
		limit = maxQuizLimit
	}
	var quizzes []models.Quiz
	err = call(ctx, s.policy, "list quizzes", func(ctx context.Context) error {
		var err error
		quizzes, err = s.quizzes.ListByOwner(ctx, key, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return quizzes, nil
}

// QuizByID returns the quiz regardless of visibility, nil when unknown.
func (s *QuizService) QuizByID(ctx context.Context, id string) (*models.Quiz, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	var quiz *models.Quiz
	err := call(ctx, s.policy, "get quiz", func(ctx context.Context) error {
		var err error
		quiz, err = s.quizzes.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return quiz, nil
}

// PublicQuiz returns the quiz only when it is published.
func (s *QuizService) PublicQuiz(ctx context.Context, id string) (*models.Quiz, error) {
	quiz, err := s.QuizByID(ctx, id)
	if err != nil || quiz == nil || !quiz.IsPublic {
		return nil, err
	}
	return quiz, nil
}

// SetVisibility publishes or hides a quiz; false means it does not exist.
func (s *QuizService) SetVisibility(ctx context.Context, id string, public bool) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, nil
	}
	var ok bool
	err := call(ctx, s.policy, "set quiz visibility", func(ctx context.Context) error {
		var err error
		ok, err = s.quizzes.SetPublic(ctx, id, public)
		return err
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// QuizzesSince returns quizzes created at or after since.
func (s *QuizService) QuizzesSince(ctx context.Context, since time.Time) ([]models.Quiz, error) {
	var quizzes []models.Quiz
	err := call(ctx, s.policy, "list recent quizzes", func(ctx context.Context) error {
		var err error
		quizzes, err = s.quizzes.CreatedSince(ctx, since)
		return err
	})
	if err != nil {
		return nil, err
	}
	return quizzes, nil
}
