package models

import "time"

// ReviewDecision enumerates the reviewer verdicts on one document.
type ReviewDecision string

const (
	ReviewDecisionApprove        ReviewDecision = "APPROVE"
	ReviewDecisionRequestChanges ReviewDecision = "REQUEST_CHANGES"
	ReviewDecisionReject         ReviewDecision = "REJECT"
)

// Valid reports whether the decision is one of the supported kinds.
func (d ReviewDecision) Valid() bool {
	switch d {
	case ReviewDecisionApprove, ReviewDecisionRequestChanges, ReviewDecisionReject:
		return true
	}
	return false
}

// Review is an immutable record of one reviewer's decision on one
// document at one point in time. Rows are append-only and written
// before the corresponding status mutation within the same
// transaction.
type Review struct {
	ID            string         `db:"id" json:"id"`
	ApplicationID string         `db:"application_id" json:"application_id"`
	DocumentID    string         `db:"document_id" json:"document_id"`
	Decision      ReviewDecision `db:"decision" json:"decision"`
	Comments      *string        `db:"comments" json:"comments,omitempty"`
	ReviewerID    string         `db:"reviewer_id" json:"reviewer_id"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}
