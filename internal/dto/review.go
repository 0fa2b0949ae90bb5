package dto

import "github.com/noah-isme/intern-bli-api/internal/models"

// ReviewDecisionRequest records one reviewer verdict on a document.
// Comments are mandatory when requesting changes.
type ReviewDecisionRequest struct {
	Decision models.ReviewDecision `json:"decision" validate:"required"`
	Comments string                `json:"comments"`
}

// ReviewOutcome reports the states reached by applying a decision.
type ReviewOutcome struct {
	Review            models.Review            `json:"review"`
	DocumentStatus    models.DocumentStatus    `json:"document_status"`
	ApplicationStatus models.ApplicationStatus `json:"application_status"`
}
