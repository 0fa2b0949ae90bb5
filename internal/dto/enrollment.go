package dto

// EnrollStudentRequest imports a student into a session with a credit
// snapshot. A missing snapshot imports the student as ineligible.
type EnrollStudentRequest struct {
	StudentID     string   `json:"student_id" validate:"required"`
	SessionID     string   `json:"session_id" validate:"required"`
	CreditsEarned *float64 `json:"credits_earned" validate:"omitempty,gte=0"`
}

// UpdateCreditsRequest replaces an enrollment's credit snapshot.
type UpdateCreditsRequest struct {
	CreditsEarned *float64 `json:"credits_earned" validate:"omitempty,gte=0"`
}
