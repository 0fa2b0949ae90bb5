package models

import "time"

// DocumentType identifies one of the seven fixed form kinds in the
// internship approval packet.
type DocumentType string

const (
	DocumentTypeApplicationForm      DocumentType = "BLI_01"
	DocumentTypeOfferLetter          DocumentType = "BLI_02"
	DocumentTypeTrainingAgreement    DocumentType = "BLI_03"
	DocumentTypeCompletionReport     DocumentType = "BLI_04"
	DocumentTypeAttendanceLog        DocumentType = "BLI_05"
	DocumentTypeSupervisorEvaluation DocumentType = "BLI_06"
	DocumentTypeFinalReport          DocumentType = "BLI_07"
)

// AllDocumentTypes lists every required form kind in packet order.
var AllDocumentTypes = []DocumentType{
	DocumentTypeApplicationForm,
	DocumentTypeOfferLetter,
	DocumentTypeTrainingAgreement,
	DocumentTypeCompletionReport,
	DocumentTypeAttendanceLog,
	DocumentTypeSupervisorEvaluation,
	DocumentTypeFinalReport,
}

// RequiredDocumentCount is the size of a complete packet.
const RequiredDocumentCount = 7

// PacketTerminalType closes the initial submission packet; its
// approval moves the application from UNDER_REVIEW to APPROVED.
const PacketTerminalType = DocumentTypeTrainingAgreement

// CompletionDocumentType is the in-training completion report; its
// signature flips the derived label from ONGOING to COMPLETED.
const CompletionDocumentType = DocumentTypeCompletionReport

// Valid reports whether the type is one of the seven packet kinds.
func (t DocumentType) Valid() bool {
	for _, known := range AllDocumentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// DocumentStatus is the per-record review state of a document.
//
// The API itself writes UPLOADED on receipt and moves straight to a
// decision status; PENDING_UPLOAD and UNDER_REVIEW are valid stored
// values only rows created by external tooling (migrations, roster
// imports) carry. The ledger treats both as active and unsigned.
type DocumentStatus string

const (
	DocumentStatusPendingUpload    DocumentStatus = "PENDING_UPLOAD"
	DocumentStatusUploaded         DocumentStatus = "UPLOADED"
	DocumentStatusUnderReview      DocumentStatus = "UNDER_REVIEW"
	DocumentStatusChangesRequested DocumentStatus = "CHANGES_REQUESTED"
	DocumentStatusApproved         DocumentStatus = "APPROVED"
	DocumentStatusSigned           DocumentStatus = "SIGNED"
	DocumentStatusRejected         DocumentStatus = "REJECTED"
	DocumentStatusSuperseded       DocumentStatus = "SUPERSEDED"
)

// SignerRole identifies who countersigned a document.
type SignerRole string

const (
	SignerRoleStudent     SignerRole = "STUDENT"
	SignerRoleSupervisor  SignerRole = "SUPERVISOR"
	SignerRoleCoordinator SignerRole = "COORDINATOR"
)

// Document is one stored form record owned by exactly one application.
// Records are never deleted: resubmission supersedes the prior active
// record of the same type, preserving the audit trail. Version guards
// concurrent review decisions on the same record.
type Document struct {
	ID            string         `db:"id" json:"id"`
	ApplicationID string         `db:"application_id" json:"application_id"`
	Type          DocumentType   `db:"type" json:"type"`
	Status        DocumentStatus `db:"status" json:"status"`
	FileRef       string         `db:"file_ref" json:"file_ref"`
	FileName      string         `db:"file_name" json:"file_name"`
	MediaType     string         `db:"media_type" json:"media_type"`
	Version       int            `db:"version" json:"version"`
	UploadedBy    string         `db:"uploaded_by" json:"uploaded_by"`
	SignatureRole *SignerRole    `db:"signature_role" json:"signature_role,omitempty"`
	SignatureRef  *string        `db:"signature_ref" json:"signature_ref,omitempty"`
	SignedAt      *time.Time     `db:"signed_at" json:"signed_at,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// Active reports whether the record still represents its type in the
// ledger. Rejected and superseded records are kept for audit only.
func (d Document) Active() bool {
	return d.Status != DocumentStatusRejected && d.Status != DocumentStatusSuperseded
}
