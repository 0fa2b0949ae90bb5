package dto

import "github.com/noah-isme/intern-bli-api/internal/models"

// UploadDocumentRequest carries one packet form upload or
// resubmission. Data is the raw payload handed to the file store.
type UploadDocumentRequest struct {
	Type      models.DocumentType `json:"type" validate:"required"`
	FileName  string              `json:"file_name" validate:"required"`
	MediaType string              `json:"media_type" validate:"required"`
	Data      []byte              `json:"-"`
}

// SignDocumentRequest attaches a countersignature to an approved
// document.
type SignDocumentRequest struct {
	Role      models.SignerRole `json:"role" validate:"required"`
	MediaType string            `json:"media_type" validate:"required"`
	Data      []byte            `json:"-"`
}

// DownloadTokenResponse wraps a signed download token.
type DownloadTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}
