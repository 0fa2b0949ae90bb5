package models

import "time"

// Session models one academic term's internship window with its own
// eligibility threshold and deadlines.
type Session struct {
	ID                  string     `db:"id" json:"id"`
	Name                string     `db:"name" json:"name"`
	AcademicYear        string     `db:"academic_year" json:"academic_year"`
	MinCredits          float64    `db:"min_credits" json:"min_credits"`
	MinTrainingWeeks    int        `db:"min_training_weeks" json:"min_training_weeks"`
	MaxTrainingWeeks    int        `db:"max_training_weeks" json:"max_training_weeks"`
	ApplicationDeadline time.Time  `db:"application_deadline" json:"application_deadline"`
	MidTermDeadline     time.Time  `db:"mid_term_deadline" json:"mid_term_deadline"`
	ReportingDeadline   time.Time  `db:"reporting_deadline" json:"reporting_deadline"`
	IsActive            bool       `db:"is_active" json:"is_active"`
	CoordinatorID       string     `db:"coordinator_id" json:"coordinator_id"`
	SignatureRef        *string    `db:"signature_ref" json:"signature_ref,omitempty"`
	SignatureMediaType  *string    `db:"signature_media_type" json:"signature_media_type,omitempty"`
	SignedAt            *time.Time `db:"signed_at" json:"signed_at,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// SessionFilter defines filters supported by list endpoints.
type SessionFilter struct {
	AcademicYear string
	IsActive     *bool
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
