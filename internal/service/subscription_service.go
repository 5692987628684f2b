package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/vyud-ai/vyud/internal/retry"
)

// SubscriptionService lapses expired subscriptions.
type SubscriptionService struct {
	accounts AccountStore
	policy   retry.Policy
	log      *slog.Logger
	now      func() time.Time
}

func NewSubscriptionService(accounts AccountStore, policy retry.Policy, log *slog.Logger) *SubscriptionService {
	return &SubscriptionService{accounts: accounts, policy: policy, log: log, now: utcNow}
}

// ExpireLapsed clears the premium flag and tariff of every subscription past
// its expiry. Credits stay with the account.
func (s *SubscriptionService) ExpireLapsed(ctx context.Context) (int, error) {
	var n int
	err := call(ctx, s.policy, "expire subscriptions", func(ctx context.Context) error {
		var err error
		n, err = s.accounts.ExpireSubscriptions(ctx, s.now())
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 && s.log != nil {
		s.log.Info("subscriptions expired", "count", n)
	}
	return n, nil
}
