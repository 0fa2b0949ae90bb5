package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/intern-bli-api/internal/dto"
	"github.com/noah-isme/intern-bli-api/internal/models"
	"github.com/noah-isme/intern-bli-api/internal/repository"
	"github.com/noah-isme/intern-bli-api/internal/workflow"
	appErrors "github.com/noah-isme/intern-bli-api/pkg/errors"
)

type documentStore interface {
	FindByID(ctx context.Context, id string) (*models.Application, error)
	FindDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, applicationID string) ([]models.Document, error)
	SubmitDocument(ctx context.Context, params repository.SubmitDocumentParams) error
	AttachDocumentSignature(ctx context.Context, documentID string, version int, role models.SignerRole, ref string, signedAt time.Time) error
}

type payloadStore interface {
	Save(ref string, data []byte) (string, error)
	Open(ref string) (*os.File, error)
}

type downloadSigner interface {
	Generate(documentID, ref string) (string, time.Time, error)
	Parse(token string) (documentID, ref string, expiresAt time.Time, err error)
}

// DocumentLimits bounds accepted uploads.
type DocumentLimits struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// DocumentService handles packet uploads, countersignatures and
// payload downloads. Payload bytes live in the file store; the
// database holds only the opaque reference, so records survive even
// when a newer version supersedes them.
type DocumentService struct {
	repo      documentStore
	gate      participantGate
	files     payloadStore
	signer    downloadSigner
	audit     auditStore
	limits    DocumentLimits
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDocumentService creates a new document service instance.
func NewDocumentService(repo documentStore, gate participantGate, files payloadStore, signer downloadSigner, audit auditStore, limits DocumentLimits, validate *validator.Validate, logger *zap.Logger) *DocumentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{repo: repo, gate: gate, files: files, signer: signer, audit: audit, limits: limits, validator: validate, logger: logger}
}

// Upload stores one packet form for the student's application. A type
// whose active record was flagged for changes is superseded by the new
// upload; a type with any other active record refuses the duplicate.
// Resubmitting the flagged document moves the application back under
// review.
func (s *DocumentService) Upload(ctx context.Context, applicationID string, req dto.UploadDocumentRequest, studentID string, meta models.RequestMeta) (*models.Document, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid document payload")
	}
	if !req.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown document type %s", req.Type))
	}
	if err := s.checkLimits(req.MediaType, int64(len(req.Data))); err != nil {
		return nil, err
	}

	if _, _, err := s.gate.Authorize(ctx, studentID); err != nil {
		return nil, err
	}
	app, err := s.loadOwnedApplication(ctx, applicationID, studentID)
	if err != nil {
		return nil, err
	}
	if app.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot upload documents while application is %s", app.Status))
	}

	docs, err := s.repo.ListDocuments(ctx, app.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	ledger := workflow.NewLedger(docs)

	resubmission := false
	if active, ok := ledger.ActiveByType(req.Type); ok {
		if active.Status != models.DocumentStatusChangesRequested {
			return nil, appErrors.Clone(appErrors.ErrDuplicateActiveDocument,
				fmt.Sprintf("an active %s record already exists with status %s", req.Type, active.Status))
		}
		resubmission = true
	}

	ref := fmt.Sprintf("applications/%s/%s/%s_%s", app.ID, req.Type, uuid.New().String(), req.FileName)
	if _, err := s.files.Save(ref, req.Data); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document payload")
	}

	doc := &models.Document{
		ApplicationID: app.ID,
		Type:          req.Type,
		Status:        models.DocumentStatusUploaded,
		FileRef:       ref,
		FileName:      req.FileName,
		MediaType:     req.MediaType,
		UploadedBy:    studentID,
	}

	params := repository.SubmitDocumentParams{Document: doc}
	if resubmission && app.Status == models.ApplicationStatusChangesRequested {
		next, err := workflow.Next(app.Status, workflow.EventResubmit)
		if err != nil {
			return nil, err
		}
		params.StatusFrom = app.Status
		params.StatusTo = next
	}
	if err := s.repo.SubmitDocument(ctx, params); err != nil {
		return nil, err
	}

	s.emitAudit(ctx, studentID, models.AuditActionDocumentUpload, doc.ID, map[string]interface{}{
		"application_id": app.ID,
		"type":           doc.Type,
		"resubmission":   resubmission,
	}, meta)
	return doc, nil
}

// Sign attaches a countersignature to an approved document, provided
// the owning student's enrollment is still eligible in the active
// session. Signing the completion report is what flips the derived
// label to COMPLETED; no stored status changes.
func (s *DocumentService) Sign(ctx context.Context, documentID string, req dto.SignDocumentRequest, actor *models.JWTClaims, meta models.RequestMeta) (*models.Document, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid signature payload")
	}
	doc, err := s.loadDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	app, err := s.loadApplication(ctx, doc.ApplicationID)
	if err != nil {
		return nil, err
	}
	if err := checkSignerRole(req.Role, actor, app); err != nil {
		return nil, err
	}
	if _, _, err := s.gate.Authorize(ctx, app.StudentID); err != nil {
		return nil, err
	}
	if doc.Status != models.DocumentStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("only approved documents may be signed; %s is %s", doc.ID, doc.Status))
	}

	ref := fmt.Sprintf("applications/%s/%s/signature_%s", app.ID, doc.Type, uuid.New().String())
	if _, err := s.files.Save(ref, req.Data); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store signature payload")
	}

	signedAt := time.Now().UTC()
	if err := s.repo.AttachDocumentSignature(ctx, doc.ID, doc.Version, req.Role, ref, signedAt); err != nil {
		return nil, err
	}

	doc.Status = models.DocumentStatusSigned
	doc.SignatureRole = &req.Role
	doc.SignatureRef = &ref
	doc.SignedAt = &signedAt
	doc.Version++

	s.emitAudit(ctx, actor.UserID, models.AuditActionDocumentSign, doc.ID, map[string]interface{}{
		"application_id": app.ID,
		"type":           doc.Type,
		"role":           req.Role,
	}, meta)
	return doc, nil
}

// DownloadToken issues a short-lived signed token for the document's
// payload.
func (s *DocumentService) DownloadToken(ctx context.Context, documentID string, actor *models.JWTClaims) (*dto.DownloadTokenResponse, error) {
	doc, err := s.loadDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	app, err := s.loadApplication(ctx, doc.ApplicationID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleStudent && app.StudentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only download their own documents")
	}
	token, expiresAt, err := s.signer.Generate(doc.ID, doc.FileRef)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}
	return &dto.DownloadTokenResponse{Token: token, ExpiresAt: expiresAt.Unix()}, nil
}

// Download redeems a signed token and returns the document record plus
// an open payload handle. The caller owns closing the handle.
func (s *DocumentService) Download(ctx context.Context, token string) (*models.Document, *os.File, error) {
	documentID, ref, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	doc, err := s.loadDocument(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	if doc.FileRef != ref {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "download token does not match the stored payload")
	}
	file, err := s.files.Open(doc.FileRef)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open document payload")
	}
	return doc, file, nil
}

func (s *DocumentService) checkLimits(mediaType string, size int64) error {
	if s.limits.MaxFileSizeBytes > 0 && size > s.limits.MaxFileSizeBytes {
		return appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("document exceeds the %d byte limit", s.limits.MaxFileSizeBytes))
	}
	if len(s.limits.AllowedMIMEs) == 0 {
		return nil
	}
	for _, allowed := range s.limits.AllowedMIMEs {
		if allowed == mediaType {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("media type %s is not accepted", mediaType))
}

func (s *DocumentService) loadDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.repo.FindDocumentByID(ctx, id)
	if err != nil {
		if repository.IsNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	return doc, nil
}

func (s *DocumentService) loadApplication(ctx context.Context, id string) (*models.Application, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if repository.IsNoRows(err) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return app, nil
}

func (s *DocumentService) loadOwnedApplication(ctx context.Context, id, studentID string) (*models.Application, error) {
	app, err := s.loadApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "application belongs to another student")
	}
	return app, nil
}

func (s *DocumentService) emitAudit(ctx context.Context, actorID, action, resourceID string, values map[string]interface{}, meta models.RequestMeta) {
	payload, _ := json.Marshal(values)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "documents",
		ResourceID: &resourceID,
		NewValues:  payload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record document audit log", zap.Error(err))
	}
}

func checkSignerRole(role models.SignerRole, actor *models.JWTClaims, app *models.Application) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleAdmin {
		return nil
	}
	switch role {
	case models.SignerRoleStudent:
		if actor.Role == models.RoleStudent && app.StudentID == actor.UserID {
			return nil
		}
	case models.SignerRoleSupervisor:
		if actor.Role == models.RoleSupervisor {
			return nil
		}
	case models.SignerRoleCoordinator:
		if actor.Role == models.RoleCoordinator {
			return nil
		}
	default:
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown signer role %s", role))
	}
	return appErrors.Clone(appErrors.ErrForbidden,
		fmt.Sprintf("%s may not sign as %s", actor.Role, role))
}
