package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vyud-ai/vyud/internal/models"
	"github.com/vyud-ai/vyud/internal/retry"
	"github.com/vyud-ai/vyud/internal/storeerr"
)

var (
	// ErrUnavailable means the backend kept failing transiently until the
	// retry budget ran out.
	ErrUnavailable = errors.New("store unavailable")
	// ErrMisconfigured means the backend rejected the call permanently
	// (bad credentials, missing table or function, malformed request).
	ErrMisconfigured = errors.New("store misconfigured")

	ErrInvalidAmount  = errors.New("amount must be a positive number of credits")
	ErrInvalidAccount = errors.New("account key is empty")
	ErrInvalidQuiz    = errors.New("invalid quiz")
)

// AccountStore persists users_credits rows. Get returns nil, nil for a
// missing key; Create fails with storeerr.ErrDuplicate for a taken key.
type AccountStore interface {
	Get(ctx context.Context, key string) (*models.Account, error)
	Create(ctx context.Context, acc *models.Account) error
	UpdateProfile(ctx context.Context, key string, profile models.Profile, now time.Time) error
	Debit(ctx context.Context, key string, amount int, now time.Time) (bool, error)
	AddCredits(ctx context.Context, key string, amount int, now time.Time) (bool, error)
	BumpGenerations(ctx context.Context, key string, now time.Time) error
	RecordPurchase(ctx context.Context, key string, p models.Purchase) error
	List(ctx context.Context) ([]models.Account, error)
	ExpireSubscriptions(ctx context.Context, now time.Time) (int, error)
}

// QuizStore persists quizzes. Get returns nil, nil for an unknown id.
type QuizStore interface {
	Insert(ctx context.Context, quiz *models.Quiz) error
	Get(ctx context.Context, id string) (*models.Quiz, error)
	ListByOwner(ctx context.Context, owner string, limit int) ([]models.Quiz, error)
	CreatedSince(ctx context.Context, since time.Time) ([]models.Quiz, error)
	SetPublic(ctx context.Context, id string, public bool) (bool, error)
}

// PaymentStore persists payments_log rows. The order id is unique: Log fails
// with storeerr.ErrDuplicate when the order is already recorded.
type PaymentStore interface {
	Log(ctx context.Context, rec *models.PaymentRecord) error
	FindByOrderID(ctx context.Context, orderID string) (*models.PaymentRecord, error)
	Release(ctx context.Context, orderID string) error
}

type GenerationStore interface {
	Log(ctx context.Context, entry *models.GenerationLog) error
	CountByType(ctx context.Context) (map[string]int, error)
}

// Stores bundles one backend's repositories.
type Stores struct {
	Accounts    AccountStore
	Quizzes     QuizStore
	Payments    PaymentStore
	Generations GenerationStore
}

// call runs fn under the retry policy and maps the outcome onto the
// service error taxonomy. Duplicate-key errors keep their marker so callers
// can react to them.
func call(ctx context.Context, policy retry.Policy, op string, fn func(ctx context.Context) error) error {
	err := policy.Do(ctx, op, fn)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	case storeerr.IsDuplicate(err):
		return fmt.Errorf("%s: %w", op, err)
	case storeerr.IsTransient(err):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrMisconfigured, err)
	}
}

func normalizeKey(key string) (string, error) {
	key = models.NormalizeAccountKey(key)
	if key == "" {
		return "", ErrInvalidAccount
	}
	return key, nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}
