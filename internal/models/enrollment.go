package models

import "time"

// Enrollment links a student to an internship session. Eligible is a
// cached value derived from the credit snapshot and the session
// threshold; it is recomputed and persisted whenever either input
// changes, never joined live.
type Enrollment struct {
	ID            string     `db:"id" json:"id"`
	StudentID     string     `db:"student_id" json:"student_id"`
	SessionID     string     `db:"session_id" json:"session_id"`
	CreditsEarned *float64   `db:"credits_earned" json:"credits_earned,omitempty"`
	Eligible      bool       `db:"eligible" json:"eligible"`
	EnrolledAt    time.Time  `db:"enrolled_at" json:"enrolled_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student and session info.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
	SessionName string `db:"session_name" json:"session_name"`
}
