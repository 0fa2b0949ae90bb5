package dto

import (
	"time"

	"github.com/noah-isme/intern-bli-api/internal/models"
)

// CreateApplicationRequest opens a draft application for the acting
// student within the active session.
type CreateApplicationRequest struct {
	CompanyName    string    `json:"company_name" validate:"required"`
	CompanyAddress string    `json:"company_address"`
	StartDate      time.Time `json:"start_date" validate:"required"`
	EndDate        time.Time `json:"end_date" validate:"required"`
}

// RejectApplicationRequest is the administrative override.
type RejectApplicationRequest struct {
	// Target is REJECTED or OFFER_REJECTED.
	Target models.ApplicationStatus `json:"target" validate:"required"`
	Reason string                   `json:"reason"`
}
