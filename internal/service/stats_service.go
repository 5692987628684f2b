package service

import (
	"context"
	"sort"

	"github.com/vyud-ai/vyud/internal/models"
	"github.com/vyud-ai/vyud/internal/retry"
)

const topAccountsLimit = 10

// Summary aggregates account and generation activity.
type Summary struct {
	Accounts         int              `json:"accounts"`
	Premium          int              `json:"premium"`
	TotalCredits     int              `json:"total_credits"`
	TotalGenerations int              `json:"total_generations"`
	ByType           map[string]int   `json:"generations_by_type"`
	TopAccounts      []models.Account `json:"top_accounts"`
}

type StatsService struct {
	credits     *CreditService
	generations GenerationStore
	policy      retry.Policy
}

func NewStatsService(credits *CreditService, generations GenerationStore, policy retry.Policy) *StatsService {
	return &StatsService{credits: credits, generations: generations, policy: policy}
}

func (s *StatsService) Summary(ctx context.Context) (Summary, error) {
	accounts, err := s.credits.ListAccounts(ctx)
	if err != nil {
		return Summary{}, err
	}

	var byType map[string]int
	err = call(ctx, s.policy, "count generations", func(ctx context.Context) error {
		var err error
		byType, err = s.generations.CountByType(ctx)
		return err
	})
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Accounts: len(accounts), ByType: byType}
	for _, acc := range accounts {
		if acc.IsPremium {
			summary.Premium++
		}
		summary.TotalCredits += acc.Credits
		summary.TotalGenerations += acc.Generations
	}

	top := make([]models.Account, 0, len(accounts))
	for _, acc := range accounts {
		if acc.Generations > 0 {
			top = append(top, acc)
		}
	}
	sort.SliceStable(top, func(i, j int) bool { return top[i].Generations > top[j].Generations })
	if len(top) > topAccountsLimit {
		top = top[:topAccountsLimit]
	}
	summary.TopAccounts = top
	return summary, nil
}
