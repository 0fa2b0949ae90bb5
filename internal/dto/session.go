package dto

import "time"

// CreateSessionRequest describes payload for creating internship sessions.
type CreateSessionRequest struct {
	Name                string    `json:"name" validate:"required"`
	AcademicYear        string    `json:"academic_year" validate:"required"`
	MinCredits          float64   `json:"min_credits" validate:"gte=0"`
	MinTrainingWeeks    int       `json:"min_training_weeks" validate:"gt=0"`
	MaxTrainingWeeks    int       `json:"max_training_weeks" validate:"gt=0"`
	ApplicationDeadline time.Time `json:"application_deadline" validate:"required"`
	MidTermDeadline     time.Time `json:"mid_term_deadline" validate:"required"`
	ReportingDeadline   time.Time `json:"reporting_deadline" validate:"required"`
	IsActive            bool      `json:"is_active"`
}

// UpdateSessionRequest updates mutable fields on a session.
type UpdateSessionRequest struct {
	Name                string    `json:"name" validate:"required"`
	AcademicYear        string    `json:"academic_year" validate:"required"`
	MinCredits          float64   `json:"min_credits" validate:"gte=0"`
	MinTrainingWeeks    int       `json:"min_training_weeks" validate:"gt=0"`
	MaxTrainingWeeks    int       `json:"max_training_weeks" validate:"gt=0"`
	ApplicationDeadline time.Time `json:"application_deadline" validate:"required"`
	MidTermDeadline     time.Time `json:"mid_term_deadline" validate:"required"`
	ReportingDeadline   time.Time `json:"reporting_deadline" validate:"required"`
}

// AttachSessionSignatureRequest records the coordinator signature.
type AttachSessionSignatureRequest struct {
	Data      []byte `json:"data" validate:"required"`
	MediaType string `json:"media_type" validate:"required"`
}
