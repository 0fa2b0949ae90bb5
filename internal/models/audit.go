package models

import "time"

// AuditAction constants represent workflow actions to be logged.
const (
	AuditActionLogin             = "LOGIN"
	AuditActionSessionCreate     = "SESSION_CREATE"
	AuditActionSessionUpdate     = "SESSION_UPDATE"
	AuditActionEnrollmentImport  = "ENROLLMENT_IMPORT"
	AuditActionCreditsUpdate     = "CREDITS_UPDATE"
	AuditActionApplicationCreate = "APPLICATION_CREATE"
	AuditActionApplicationSubmit = "APPLICATION_SUBMIT"
	AuditActionApplicationReject = "APPLICATION_REJECT"
	AuditActionDocumentUpload    = "DOCUMENT_UPLOAD"
	AuditActionDocumentSign      = "DOCUMENT_SIGN"
	AuditActionReviewDecision    = "REVIEW_DECISION"
)

// RequestMeta carries caller metadata for audit records.
type RequestMeta struct {
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
