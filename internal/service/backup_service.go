package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/vyud-ai/vyud/internal/models"
)

const backupWindow = 24 * time.Hour

// Uploader stores a finished snapshot and returns its location.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// Snapshot is the JSON document written by BackupService.
type Snapshot struct {
	TakenAt  time.Time        `json:"taken_at"`
	Accounts []models.Account `json:"accounts"`
	Quizzes  []models.Quiz    `json:"quizzes"`
}

// BackupService exports every account and the last day's quizzes.
type BackupService struct {
	credits  *CreditService
	quizzes  *QuizService
	uploader Uploader
	log      *slog.Logger
	now      func() time.Time
}

func NewBackupService(credits *CreditService, quizzes *QuizService, uploader Uploader, log *slog.Logger) *BackupService {
	return &BackupService{credits: credits, quizzes: quizzes, uploader: uploader, log: log, now: utcNow}
}

// Snapshot collects the backup document without uploading it.
func (s *BackupService) Snapshot(ctx context.Context) (Snapshot, error) {
	now := s.now()
	accounts, err := s.credits.ListAccounts(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot accounts: %w", err)
	}
	quizzes, err := s.quizzes.QuizzesSince(ctx, now.Add(-backupWindow))
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot quizzes: %w", err)
	}
	return Snapshot{TakenAt: now, Accounts: accounts, Quizzes: quizzes}, nil
}

// Run takes a snapshot and uploads it.
func (s *BackupService) Run(ctx context.Context) (string, error) {
	if s.uploader == nil {
		return "", fmt.Errorf("backup storage is not configured")
	}
	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	location, err := s.uploader.Upload(ctx, "snapshot", data, "application/json")
	if err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}
	if s.log != nil {
		s.log.Info("backup uploaded", "location", location, "accounts", len(snapshot.Accounts), "quizzes", len(snapshot.Quizzes), "bytes", len(data))
	}
	return location, nil
}
