package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/vyud-ai/vyud/internal/models"
	"github.com/vyud-ai/vyud/internal/storeerr"
)

var (
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Register creates a password account seeded with the registration grant. A taken
// email fails with ErrAccountExists, whoever created it.
func (s *CreditService) Register(ctx context.Context, email, password string) (*models.Account, error) {
	key, err := normalizeKey(email)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, ErrInvalidPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPassword, err)
	}

	now := s.now()
	acc := models.Account{
		Key:          key,
		Credits:      s.registerCredits,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = call(ctx, s.policy, "create account", func(ctx context.Context) error {
		return s.accounts.Create(ctx, &acc)
	})
	if storeerr.IsDuplicate(err) {
		return nil, ErrAccountExists
	}
	if err != nil {
		return nil, err
	}
	if s.log != nil {
		s.log.Info("account registered", "account", key, "credits", acc.Credits)
	}
	return &acc, nil
}

// Authenticate checks an email and password. Unknown accounts, accounts
// without a password and wrong passwords all fail with ErrInvalidCredentials.
func (s *CreditService) Authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	acc, err := s.Account(ctx, email)
	if err != nil {
		return nil, err
	}
	if acc == nil || acc.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return acc, nil
}
