package controllers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/dtos"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/guard"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/utils"
)

// formatValidationErrors converts validator errors into a user-friendly format.
func formatValidationErrors(errs validator.ValidationErrors) []dtos.ValidationErrorDetail {
	var details []dtos.ValidationErrorDetail
	for _, err := range errs {
		var message string
		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("Field '%s' is required", err.Field())
		case "max":
			message = fmt.Sprintf("Field '%s' must not exceed %s in length", err.Field(), err.Param())
		case "alphanum":
			message = fmt.Sprintf("Field '%s' must contain only letters and digits", err.Field())
		default:
			message = fmt.Sprintf("Field validation for '%s' failed on the '%s' tag", err.Field(), err.Tag())
		}
		details = append(details, dtos.ValidationErrorDetail{
			Field:   err.Field(),
			Message: message,
			Code:    "validation_" + err.Tag(),
		})
	}
	return details
}

func respondValidationError(w http.ResponseWriter, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		utils.RespondErrorWithCode(
			w, http.StatusBadRequest, utils.ErrCodeValidation, "Validation error",
			formatValidationErrors(validationErrs), err,
		)
		return
	}
	utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, "Validation error", nil, err)
}

// violationStatus maps a guard rejection to its HTTP status.
func violationStatus(code guard.Code) int {
	switch code {
	case guard.CodeUserHourly, guard.CodeUserSpacing:
		return http.StatusTooManyRequests
	case guard.CodePatternFormat:
		return http.StatusUnprocessableEntity
	case guard.CodeGlobal:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// retryAfterSeconds rounds up so a client never retries early.
func retryAfterSeconds(v *guard.Violation) int64 {
	return int64(math.Ceil(v.RetryAfter.Seconds()))
}

// respondServiceError translates service-layer errors into responses.
func respondServiceError(w http.ResponseWriter, err error) {
	var v *guard.Violation
	switch {
	case errors.As(err, &v):
		var details any
		if v.IsRateLimit() {
			secs := retryAfterSeconds(v)
			w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
			details = dtos.RateLimitDetails{RetryAfterSeconds: secs}
		}
		utils.RespondErrorWithCode(w, violationStatus(v.Code), string(v.Code), v.Message, details)
	case errors.Is(err, utils.ErrInvalidPayload):
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Invalid request", nil, err)
	case errors.Is(err, utils.ErrNotFound):
		utils.RespondErrorWithCode(w, http.StatusNotFound, utils.ErrCodeNotFound, "Verification request not found", nil, err)
	case errors.Is(err, utils.ErrWrongStatus):
		utils.RespondErrorWithCode(w, http.StatusConflict, utils.ErrCodeWrongStatus, "Verification request is already resolved", nil, err)
	default:
		utils.HandleAppError(w, err)
	}
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := mux.Vars(r)[name]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &utils.AppError{
			StatusCode: http.StatusBadRequest,
			Code:       utils.ErrCodeInvalidPayload,
			Message:    fmt.Sprintf("Invalid %s", name),
			Err:        err,
		}
	}
	return id, nil
}
