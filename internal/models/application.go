package models

import "time"

// ApplicationStatus is the stored lifecycle status of an application.
// ONGOING and COMPLETED are presentation labels derived from APPROVED
// plus document signature state and are never stored.
type ApplicationStatus string

const (
	ApplicationStatusDraft            ApplicationStatus = "DRAFT"
	ApplicationStatusSubmitted        ApplicationStatus = "SUBMITTED"
	ApplicationStatusUnderReview      ApplicationStatus = "UNDER_REVIEW"
	ApplicationStatusChangesRequested ApplicationStatus = "CHANGES_REQUESTED"
	ApplicationStatusApproved         ApplicationStatus = "APPROVED"
	ApplicationStatusRejected         ApplicationStatus = "REJECTED"
	ApplicationStatusOfferRejected    ApplicationStatus = "OFFER_REJECTED"
)

// Terminal reports whether the status is an escape state with no
// outgoing transitions.
func (s ApplicationStatus) Terminal() bool {
	return s == ApplicationStatusRejected || s == ApplicationStatusOfferRejected
}

// ProgressLabel is the derived presentation state for an approved
// application.
type ProgressLabel string

const (
	ProgressLabelOngoing   ProgressLabel = "ONGOING"
	ProgressLabelCompleted ProgressLabel = "COMPLETED"
)

// Application is a student's internship-approval workflow instance for
// one session. At most one non-terminal instance exists per
// (student, session) pair.
type Application struct {
	ID             string            `db:"id" json:"id"`
	EnrollmentID   string            `db:"enrollment_id" json:"enrollment_id"`
	StudentID      string            `db:"student_id" json:"student_id"`
	SessionID      string            `db:"session_id" json:"session_id"`
	Status         ApplicationStatus `db:"status" json:"status"`
	CompanyName    string            `db:"company_name" json:"company_name"`
	CompanyAddress string            `db:"company_address" json:"company_address"`
	StartDate      time.Time         `db:"start_date" json:"start_date"`
	EndDate        time.Time         `db:"end_date" json:"end_date"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`
}

// Progress is the ledger projection over an application's documents.
// It is recomputed on every read and never persisted.
type Progress struct {
	Percent        int            `json:"percent"`
	Label          ProgressLabel  `json:"label,omitempty"`
	SubmittedTypes []DocumentType `json:"submitted_types"`
	SignedTypes    []DocumentType `json:"signed_types"`
}

// ApplicationDetail bundles an application with its owned documents,
// reviews, and the derived progress projection.
type ApplicationDetail struct {
	Application
	Documents []Document `json:"documents"`
	Reviews   []Review   `json:"reviews"`
	Progress  Progress   `json:"progress"`
}

// ApplicationFilter constrains listing queries.
type ApplicationFilter struct {
	SessionID string
	StudentID string
	Status    ApplicationStatus
	Page      int
	PageSize  int
}
