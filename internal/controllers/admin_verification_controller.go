package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/dtos"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/middleware"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/models"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/services"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/utils"
)

type AdminVerificationController struct {
	verificationService services.VerificationService
	cleanupService      services.VerificationCleanupService
	validate            *validator.Validate
}

func NewAdminVerificationController(
	s services.VerificationService,
	cleanup services.VerificationCleanupService,
) *AdminVerificationController {
	return &AdminVerificationController{
		verificationService: s,
		cleanupService:      cleanup,
		validate:            validator.New(),
	}
}

type resolveFunc func(ctx context.Context, id uuid.UUID, message string) (*models.VerificationRequest, error)

// POST /verify/v1/admin/requests/{id}/approve
func (c *AdminVerificationController) ApproveHandler(w http.ResponseWriter, r *http.Request) {
	c.resolve(w, r, "ApproveHandler", c.verificationService.Approve)
}

// POST /verify/v1/admin/requests/{id}/deny
func (c *AdminVerificationController) DenyHandler(w http.ResponseWriter, r *http.Request) {
	c.resolve(w, r, "DenyHandler", c.verificationService.Deny)
}

func (c *AdminVerificationController) resolve(w http.ResponseWriter, r *http.Request, handler string, fn resolveFunc) {
	logger := utils.Logger.WithFields(logrus.Fields{
		"handler": handler,
		"adminID": middleware.AdminID(r.Context()),
	})

	id, err := pathUUID(r, "id")
	if err != nil {
		utils.HandleAppError(w, err)
		return
	}

	// The body is optional; an empty one resolves without a message.
	var req dtos.ResolveVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Invalid JSON payload", nil, err)
		return
	}
	if err := c.validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	rec, err := fn(r.Context(), id, req.Message)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	logger.WithFields(logrus.Fields{
		"requestID": rec.ID,
		"status":    rec.Status,
	}).Info("Verification request resolved by admin")
	utils.RespondWithJSON(w, http.StatusOK, rec)
}

// POST /verify/v1/admin/cleanup
func (c *AdminVerificationController) CleanupHandler(w http.ResponseWriter, r *http.Request) {
	deleted, err := c.cleanupService.RunOnce(r.Context())
	if err != nil {
		utils.RespondErrorWithCode(w, http.StatusInternalServerError, utils.ErrCodeInternal, "Cleanup failed", nil, err)
		return
	}
	utils.Logger.WithFields(logrus.Fields{
		"adminID": middleware.AdminID(r.Context()),
		"deleted": deleted,
	}).Info("Manual verify_requests cleanup")
	utils.RespondWithJSON(w, http.StatusOK, dtos.CleanupResponse{Deleted: deleted})
}
