package dtos

import (
	"time"

	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/models"
)

// ----------------------
// Submission
// ----------------------

// Pattern is left to the guard, empty included, so it is judged after the
// per-user throttles and rejected as VALIDATION_PATTERN_FORMAT.
type SubmitVerificationRequest struct {
	UserID  string `json:"user_id" validate:"required,max=64"`
	Pattern string `json:"pattern"`
	Chain   string `json:"chain,omitempty" validate:"omitempty,alphanum,max=32"`
}

type VerificationRequestListResponse struct {
	Requests []*models.VerificationRequest `json:"requests"`
}

type QuotaResponse struct {
	UserID        string    `json:"user_id"`
	Remaining     int       `json:"remaining"`
	Limit         int       `json:"limit"`
	NextAllowedAt time.Time `json:"next_allowed_at"`
}

// RateLimitDetails is the Details payload of a guard rejection.
type RateLimitDetails struct {
	RetryAfterSeconds int64 `json:"retry_after_seconds"`
}

// ----------------------
// Approval (admin)
// ----------------------

type ResolveVerificationRequest struct {
	Message string `json:"message,omitempty" validate:"max=500"`
}

type CleanupResponse struct {
	Deleted int64 `json:"deleted"`
}
