package services

import (
	"context"
	"time"

	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/repositories"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/utils"
)

// VerificationCleanupService purges resolved verification requests past
// the retention window. Pending requests are kept regardless of age so
// stuck ones stay visible for manual review.
type VerificationCleanupService interface {
	// CleanupDaily is the cron entry point.
	CleanupDaily(ctx context.Context) error
	// RunOnce deletes eligible rows and returns how many were removed.
	RunOnce(ctx context.Context) (int64, error)
}

type verificationCleanupService struct {
	repo      repositories.VerificationRequestRepository
	retention time.Duration
}

func NewVerificationCleanupService(
	repo repositories.VerificationRequestRepository,
	retention time.Duration,
) VerificationCleanupService {
	return &verificationCleanupService{repo: repo, retention: retention}
}

func (s *verificationCleanupService) RunOnce(ctx context.Context) (int64, error) {
	deleted, err := s.repo.CleanupTerminal(ctx, s.retention)
	if err != nil {
		utils.Logger.WithError(err).Error("Failed to cleanup verify_requests")
		return 0, err
	}
	utils.Logger.WithField("deleted", deleted).Info("verify_requests cleanup completed")
	return deleted, nil
}

func (s *verificationCleanupService) CleanupDaily(ctx context.Context) error {
	_, err := s.RunOnce(ctx)
	return err
}
