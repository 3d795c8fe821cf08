package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/constants"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/dtos"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/guard"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/models"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/repositories"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/utils"
)

// VerificationService is the write path for verification requests and the
// read/approve surface used by the bot and the approval worker.
type VerificationService interface {
	// Submit stores a new pending request. Guard rejections come back as
	// *guard.Violation.
	Submit(ctx context.Context, userID, pattern, chain string) (*models.VerificationRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*models.VerificationRequest, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]*models.VerificationRequest, error)
	Quota(ctx context.Context, userID string) (*dtos.QuotaResponse, error)
	Approve(ctx context.Context, id uuid.UUID, message string) (*models.VerificationRequest, error)
	Deny(ctx context.Context, id uuid.UUID, message string) (*models.VerificationRequest, error)
}

type verificationService struct {
	repo  repositories.VerificationRequestRepository
	guard *guard.Guard
}

func NewVerificationService(repo repositories.VerificationRequestRepository, g *guard.Guard) VerificationService {
	return &verificationService{repo: repo, guard: g}
}

func (s *verificationService) Submit(ctx context.Context, userID, pattern, chain string) (*models.VerificationRequest, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, utils.ErrInvalidPayload
	}
	chain = strings.ToLower(strings.TrimSpace(chain))
	if chain == "" {
		chain = constants.DefaultChain
	}

	req := &models.VerificationRequest{
		ID:      uuid.New(),
		UserID:  userID,
		Pattern: strings.TrimSpace(pattern),
		Chain:   chain,
	}

	logger := utils.Logger.WithFields(logrus.Fields{
		"user_id": userID,
		"chain":   chain,
	})

	if err := s.repo.CreateGuarded(ctx, req, s.guard); err != nil {
		var v *guard.Violation
		if errors.As(err, &v) {
			logger.WithFields(logrus.Fields{
				"code":        v.Code,
				"retry_after": v.RetryAfter.String(),
			}).Warn("Verification request rejected")
			return nil, v
		}
		logger.WithError(err).Error("Failed to store verification request")
		return nil, fmt.Errorf("storing verification request: %w", err)
	}

	logger.WithField("request_id", req.ID).Info("Verification request accepted")
	return req, nil
}

func (s *verificationService) Get(ctx context.Context, id uuid.UUID) (*models.VerificationRequest, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, utils.ErrNotFound
	}
	return rec, nil
}

func (s *verificationService) ListForUser(ctx context.Context, userID string, limit int) ([]*models.VerificationRequest, error) {
	if limit <= 0 {
		limit = constants.DefaultListLimit
	}
	limit = min(limit, constants.MaxListLimit)

	recs, err := s.repo.ListByUser(ctx, strings.TrimSpace(userID), limit)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []*models.VerificationRequest{}
	}
	return recs, nil
}

func (s *verificationService) Quota(ctx context.Context, userID string) (*dtos.QuotaResponse, error) {
	userID = strings.TrimSpace(userID)
	rules := s.guard.Rules()

	snap, err := s.repo.Snapshot(ctx, userID, rules)
	if err != nil {
		return nil, err
	}

	return &dtos.QuotaResponse{
		UserID:        userID,
		Remaining:     max(rules.UserLimit-snap.UserCount, 0),
		Limit:         rules.UserLimit,
		NextAllowedAt: s.guard.NextAllowed(snap),
	}, nil
}

func (s *verificationService) Approve(ctx context.Context, id uuid.UUID, message string) (*models.VerificationRequest, error) {
	return s.resolve(ctx, id, models.VerificationApproved, message)
}

func (s *verificationService) Deny(ctx context.Context, id uuid.UUID, message string) (*models.VerificationRequest, error) {
	return s.resolve(ctx, id, models.VerificationDenied, message)
}

func (s *verificationService) resolve(
	ctx context.Context,
	id uuid.UUID,
	status models.VerificationStatus,
	message string,
) (*models.VerificationRequest, error) {
	var msg *string
	if m := strings.TrimSpace(message); m != "" {
		if len(m) > constants.MaxResponseMessageSize {
			return nil, utils.ErrInvalidPayload
		}
		msg = utils.Ptr(m)
	}

	rec, err := s.repo.Resolve(ctx, id, status, msg)
	if err != nil {
		if !errors.Is(err, utils.ErrWrongStatus) && !errors.Is(err, utils.ErrNotFound) {
			utils.Logger.WithError(err).WithField("request_id", id).Error("Failed to resolve verification request")
		}
		return rec, err
	}

	utils.Logger.WithFields(logrus.Fields{
		"request_id": id,
		"user_id":    rec.UserID,
		"status":     rec.Status,
		"message":    utils.Val(rec.ResponseMessage),
	}).Info("Verification request resolved")
	return rec, nil
}
