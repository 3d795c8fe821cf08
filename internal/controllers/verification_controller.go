package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/constants"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/dtos"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/services"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/utils"
)

type VerificationController struct {
	verificationService services.VerificationService
	validate            *validator.Validate
}

func NewVerificationController(s services.VerificationService) *VerificationController {
	return &VerificationController{
		verificationService: s,
		validate:            validator.New(),
	}
}

// POST /verify/v1/requests
func (c *VerificationController) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	logger := utils.Logger.WithFields(logrus.Fields{
		"handler":  "SubmitHandler",
		"clientIP": utils.ClientIP(r),
	})

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxSubmitBodyBytes)

	var req dtos.SubmitVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondErrorWithCode(w, http.StatusRequestEntityTooLarge, utils.ErrCodeInvalidPayload, "Request body too large", nil, err)
			return
		}
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Invalid JSON payload", nil, err)
		return
	}
	if err := c.validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	rec, err := c.verificationService.Submit(r.Context(), req.UserID, req.Pattern, req.Chain)
	if err != nil {
		logger.WithField("userID", req.UserID).Debug("Submit rejected")
		respondServiceError(w, err)
		return
	}
	logger.WithField("requestID", rec.ID).Debug("Submit accepted")
	utils.RespondWithJSON(w, http.StatusCreated, rec)
}

// GET /verify/v1/requests/{id}
func (c *VerificationController) GetHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		utils.HandleAppError(w, err)
		return
	}

	rec, err := c.verificationService.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, rec)
}

// GET /verify/v1/users/{user_id}/requests?limit=N
func (c *VerificationController) ListForUserHandler(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(mux.Vars(r)["user_id"])
	if userID == "" {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Missing user_id", nil)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "limit must be a non-negative integer", nil, err)
			return
		}
		limit = n
	}

	recs, err := c.verificationService.ListForUser(r.Context(), userID, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.VerificationRequestListResponse{Requests: recs})
}

// GET /verify/v1/users/{user_id}/quota
func (c *VerificationController) QuotaHandler(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(mux.Vars(r)["user_id"])
	if userID == "" {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Missing user_id", nil)
		return
	}

	quota, err := c.verificationService.Quota(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, quota)
}
