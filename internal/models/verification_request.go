package models

import (
	"time"

	"github.com/google/uuid"
)

// VerificationStatus mirrors the CHECK constraint on verify_requests.status.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationDenied   VerificationStatus = "denied"
)

// IsTerminal reports whether the status can no longer change.
func (s VerificationStatus) IsTerminal() bool {
	return s == VerificationApproved || s == VerificationDenied
}

func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationPending, VerificationApproved, VerificationDenied:
		return true
	}
	return false
}

// VerificationRequest for the verify_requests table. Rows are immutable
// after insert except for Status, ResponseMessage and ResolvedAt.
type VerificationRequest struct {
	ID              uuid.UUID          `json:"id"`
	UserID          string             `json:"user_id"`
	Pattern         string             `json:"pattern"`
	Chain           string             `json:"chain"`
	Status          VerificationStatus `json:"status"`
	ResponseMessage *string            `json:"response_message,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	ResolvedAt      *time.Time         `json:"resolved_at,omitempty"`
}
