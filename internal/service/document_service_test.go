package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/intern-bli-api/internal/dto"
	"github.com/noah-isme/intern-bli-api/internal/models"
	"github.com/noah-isme/intern-bli-api/internal/repository"
	appErrors "github.com/noah-isme/intern-bli-api/pkg/errors"
)

type documentRepoStub struct {
	apps      map[string]*models.Application
	docs      map[string]*models.Document
	submitted []repository.SubmitDocumentParams
}

func newDocumentRepoStub() *documentRepoStub {
	return &documentRepoStub{
		apps: make(map[string]*models.Application),
		docs: make(map[string]*models.Document),
	}
}

func (r *documentRepoStub) FindByID(ctx context.Context, id string) (*models.Application, error) {
	if app, ok := r.apps[id]; ok {
		copy := *app
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (r *documentRepoStub) FindDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	if doc, ok := r.docs[id]; ok {
		copy := *doc
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (r *documentRepoStub) ListDocuments(ctx context.Context, applicationID string) ([]models.Document, error) {
	var docs []models.Document
	for _, doc := range r.docs {
		if doc.ApplicationID == applicationID {
			docs = append(docs, *doc)
		}
	}
	return docs, nil
}

func (r *documentRepoStub) SubmitDocument(ctx context.Context, params repository.SubmitDocumentParams) error {
	doc := params.Document
	if doc.ID == "" {
		doc.ID = fmt.Sprintf("doc-%d", len(r.docs)+1)
	}
	if doc.Version == 0 {
		doc.Version = 1
	}
	for _, existing := range r.docs {
		if existing.ApplicationID == doc.ApplicationID && existing.Type == doc.Type && existing.Active() {
			existing.Status = models.DocumentStatusSuperseded
		}
	}
	stored := *doc
	r.docs[doc.ID] = &stored
	if params.StatusTo != "" && params.StatusTo != params.StatusFrom {
		app, ok := r.apps[doc.ApplicationID]
		if !ok || app.Status != params.StatusFrom {
			return appErrors.ErrStorageConflict
		}
		app.Status = params.StatusTo
	}
	r.submitted = append(r.submitted, params)
	return nil
}

func (r *documentRepoStub) AttachDocumentSignature(ctx context.Context, documentID string, version int, role models.SignerRole, ref string, signedAt time.Time) error {
	doc, ok := r.docs[documentID]
	if !ok || doc.Version != version || doc.Status != models.DocumentStatusApproved {
		return appErrors.ErrStorageConflict
	}
	doc.Status = models.DocumentStatusSigned
	doc.SignatureRole = &role
	doc.SignatureRef = &ref
	doc.SignedAt = &signedAt
	doc.Version++
	return nil
}

type payloadStoreStub struct {
	saved map[string][]byte
}

func (f *payloadStoreStub) Save(ref string, data []byte) (string, error) {
	if f.saved == nil {
		f.saved = make(map[string][]byte)
	}
	f.saved[ref] = data
	return ref, nil
}

func (f *payloadStoreStub) Open(ref string) (*os.File, error) {
	data, ok := f.saved[ref]
	if !ok {
		return nil, os.ErrNotExist
	}
	file, err := os.CreateTemp("", "payload")
	if err != nil {
		return nil, err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return nil, err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, err
	}
	return file, nil
}

type signerStub struct{}

func (signerStub) Generate(documentID, ref string) (string, time.Time, error) {
	return documentID + "|" + ref, time.Now().Add(30 * time.Minute), nil
}

func (signerStub) Parse(token string) (string, string, time.Time, error) {
	for i := 0; i < len(token); i++ {
		if token[i] == '|' {
			return token[:i], token[i+1:], time.Now().Add(30 * time.Minute), nil
		}
	}
	return "", "", time.Time{}, appErrors.ErrUnauthorized
}

func defaultLimits() DocumentLimits {
	return DocumentLimits{
		MaxFileSizeBytes: 1 << 20,
		AllowedMIMEs:     []string{"application/pdf", "image/png"},
	}
}

func newDocumentService(repo *documentRepoStub) *DocumentService {
	return NewDocumentService(repo, okGate(), &payloadStoreStub{}, signerStub{}, &auditStub{}, defaultLimits(), nil, nil)
}

func uploadRequest(docType models.DocumentType) dto.UploadDocumentRequest {
	return dto.UploadDocumentRequest{
		Type:      docType,
		FileName:  "form.pdf",
		MediaType: "application/pdf",
		Data:      []byte("pdf-bytes"),
	}
}

func storedApplication(repo *documentRepoStub, status models.ApplicationStatus) *models.Application {
	app := &models.Application{
		ID:           "app-1",
		EnrollmentID: "enroll-1",
		StudentID:    "student-1",
		SessionID:    "session-1",
		Status:       status,
	}
	repo.apps[app.ID] = app
	return app
}

func TestDocumentUpload(t *testing.T) {
	repo := newDocumentRepoStub()
	app := storedApplication(repo, models.ApplicationStatusDraft)
	svc := newDocumentService(repo)

	doc, err := svc.Upload(context.Background(), app.ID, uploadRequest(models.DocumentTypeApplicationForm), "student-1", models.RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, models.DocumentStatusUploaded, doc.Status)
	require.Equal(t, "student-1", doc.UploadedBy)
	require.Len(t, repo.submitted, 1)
	require.Empty(t, repo.submitted[0].StatusTo)
}

func TestDocumentUploadRefusesDuplicateActive(t *testing.T) {
	repo := newDocumentRepoStub()
	app := storedApplication(repo, models.ApplicationStatusUnderReview)
	repo.docs["doc-1"] = &models.Document{
		ID: "doc-1", ApplicationID: app.ID,
		Type: models.DocumentTypeApplicationForm, Status: models.DocumentStatusUnderReview, Version: 1,
	}
	svc := newDocumentService(repo)

	_, err := svc.Upload(context.Background(), app.ID, uploadRequest(models.DocumentTypeApplicationForm), "student-1", models.RequestMeta{})
	requireCode(t, err, appErrors.ErrDuplicateActiveDocument.Code)
	require.Empty(t, repo.submitted)
}

func TestDocumentResubmissionSupersedesAndResumesReview(t *testing.T) {
	repo := newDocumentRepoStub()
	app := storedApplication(repo, models.ApplicationStatusChangesRequested)
	repo.docs["doc-1"] = &models.Document{
		ID: "doc-1", ApplicationID: app.ID,
		Type: models.DocumentTypeOfferLetter, Status: models.DocumentStatusChangesRequested, Version: 1,
	}
	svc := newDocumentService(repo)

	doc, err := svc.Upload(context.Background(), app.ID, uploadRequest(models.DocumentTypeOfferLetter), "student-1", models.RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, models.DocumentStatusSuperseded, repo.docs["doc-1"].Status)
	require.Equal(t, models.DocumentStatusUploaded, repo.docs[doc.ID].Status)
	require.Equal(t, models.ApplicationStatusUnderReview, repo.apps[app.ID].Status)
}

func TestDocumentUploadAfterRejectionIsNotADuplicate(t *testing.T) {
	repo := newDocumentRepoStub()
	app := storedApplication(repo, models.ApplicationStatusUnderReview)
	repo.docs["doc-1"] = &models.Document{
		ID: "doc-1", ApplicationID: app.ID,
		Type: models.DocumentTypeApplicationForm, Status: models.DocumentStatusRejected, Version: 1,
	}
	svc := newDocumentService(repo)

	_, err := svc.Upload(context.Background(), app.ID, uploadRequest(models.DocumentTypeApplicationForm), "student-1", models.RequestMeta{})
	require.NoError(t, err)
	// The application stays under review; only a CHANGES_REQUESTED
	// application resumes via resubmission.
	require.Equal(t, models.ApplicationStatusUnderReview, repo.apps[app.ID].Status)
}

func TestDocumentUploadChecksLimits(t *testing.T) {
	repo := newDocumentRepoStub()
	app := storedApplication(repo, models.ApplicationStatusDraft)
	svc := newDocumentService(repo)

	req := uploadRequest(models.DocumentTypeApplicationForm)
	req.MediaType = "application/zip"
	_, err := svc.Upload(context.Background(), app.ID, req, "student-1", models.RequestMeta{})
	requireCode(t, err, appErrors.ErrValidation.Code)

	req = uploadRequest(models.DocumentTypeApplicationForm)
	req.Data = make([]byte, (1<<20)+1)
	_, err = svc.Upload(context.Background(), app.ID, req, "student-1", models.RequestMeta{})
	requireCode(t, err, appErrors.ErrValidation.Code)
}

func TestDocumentUploadTerminalApplication(t *testing.T) {
	repo := newDocumentRepoStub()
	app := storedApplication(repo, models.ApplicationStatusRejected)
	svc := newDocumentService(repo)

	_, err := svc.Upload(context.Background(), app.ID, uploadRequest(models.DocumentTypeApplicationForm), "student-1", models.RequestMeta{})
	requireCode(t, err, appErrors.ErrInvalidTransition.Code)
}

func TestDocumentSign(t *testing.T) {
	repo := newDocumentRepoStub()
	app := storedApplication(repo, models.ApplicationStatusApproved)
	repo.docs["doc-1"] = &models.Document{
		ID: "doc-1", ApplicationID: app.ID,
		Type: models.DocumentTypeCompletionReport, Status: models.DocumentStatusApproved, Version: 2,
	}
	svc := newDocumentService(repo)

	actor := &models.JWTClaims{UserID: "supervisor-1", Role: models.RoleSupervisor}
	doc, err := svc.Sign(context.Background(), "doc-1", dto.SignDocumentRequest{
		Role:      models.SignerRoleSupervisor,
		MediaType: "image/png",
		Data:      []byte("png-bytes"),
	}, actor, models.RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, models.DocumentStatusSigned, doc.Status)
	require.Equal(t, models.DocumentStatusSigned, repo.docs["doc-1"].Status)
	require.NotNil(t, repo.docs["doc-1"].SignedAt)
}

func TestDocumentSignRequiresApprovedStatus(t *testing.T) {
	repo := newDocumentRepoStub()
	app := storedApplication(repo, models.ApplicationStatusUnderReview)
	repo.docs["doc-1"] = &models.Document{
		ID: "doc-1", ApplicationID: app.ID,
		Type: models.DocumentTypeCompletionReport, Status: models.DocumentStatusUnderReview, Version: 1,
	}
	svc := newDocumentService(repo)

	actor := &models.JWTClaims{UserID: "supervisor-1", Role: models.RoleSupervisor}
	_, err := svc.Sign(context.Background(), "doc-1", dto.SignDocumentRequest{
		Role:      models.SignerRoleSupervisor,
		MediaType: "image/png",
		Data:      []byte("png-bytes"),
	}, actor, models.RequestMeta{})
	requireCode(t, err, appErrors.ErrInvalidTransition.Code)
}

func TestDocumentSignRefusesMismatchedRole(t *testing.T) {
	repo := newDocumentRepoStub()
	app := storedApplication(repo, models.ApplicationStatusApproved)
	repo.docs["doc-1"] = &models.Document{
		ID: "doc-1", ApplicationID: app.ID,
		Type: models.DocumentTypeCompletionReport, Status: models.DocumentStatusApproved, Version: 1,
	}
	svc := newDocumentService(repo)

	actor := &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}
	_, err := svc.Sign(context.Background(), "doc-1", dto.SignDocumentRequest{
		Role:      models.SignerRoleSupervisor,
		MediaType: "image/png",
		Data:      []byte("png-bytes"),
	}, actor, models.RequestMeta{})
	requireCode(t, err, appErrors.ErrForbidden.Code)
}

func TestDocumentSignRefusedWhenEnrollmentIneligible(t *testing.T) {
	repo := newDocumentRepoStub()
	app := storedApplication(repo, models.ApplicationStatusApproved)
	repo.docs["doc-1"] = &models.Document{
		ID: "doc-1", ApplicationID: app.ID,
		Type: models.DocumentTypeCompletionReport, Status: models.DocumentStatusApproved, Version: 2,
	}
	svc := NewDocumentService(repo, &gateStub{err: appErrors.ErrNotEligible}, &payloadStoreStub{}, signerStub{}, &auditStub{}, defaultLimits(), nil, nil)

	actor := &models.JWTClaims{UserID: "supervisor-1", Role: models.RoleSupervisor}
	_, err := svc.Sign(context.Background(), "doc-1", dto.SignDocumentRequest{
		Role:      models.SignerRoleSupervisor,
		MediaType: "image/png",
		Data:      []byte("png-bytes"),
	}, actor, models.RequestMeta{})
	requireCode(t, err, appErrors.ErrNotEligible.Code)
	require.Equal(t, models.DocumentStatusApproved, repo.docs["doc-1"].Status)
	require.Nil(t, repo.docs["doc-1"].SignedAt)
}

func TestDocumentSignRefusedWhenSessionInactive(t *testing.T) {
	repo := newDocumentRepoStub()
	app := storedApplication(repo, models.ApplicationStatusApproved)
	repo.docs["doc-1"] = &models.Document{
		ID: "doc-1", ApplicationID: app.ID,
		Type: models.DocumentTypeTrainingAgreement, Status: models.DocumentStatusApproved, Version: 1,
	}
	svc := NewDocumentService(repo, &gateStub{err: appErrors.ErrSessionInactive}, &payloadStoreStub{}, signerStub{}, &auditStub{}, defaultLimits(), nil, nil)

	actor := &models.JWTClaims{UserID: "coordinator-1", Role: models.RoleCoordinator}
	_, err := svc.Sign(context.Background(), "doc-1", dto.SignDocumentRequest{
		Role:      models.SignerRoleCoordinator,
		MediaType: "image/png",
		Data:      []byte("png-bytes"),
	}, actor, models.RequestMeta{})
	requireCode(t, err, appErrors.ErrSessionInactive.Code)
	require.Equal(t, models.DocumentStatusApproved, repo.docs["doc-1"].Status)
}

func TestDocumentDownloadTokenForeignStudent(t *testing.T) {
	repo := newDocumentRepoStub()
	app := storedApplication(repo, models.ApplicationStatusApproved)
	repo.docs["doc-1"] = &models.Document{
		ID: "doc-1", ApplicationID: app.ID,
		Type: models.DocumentTypeApplicationForm, Status: models.DocumentStatusApproved, Version: 1,
		FileRef: "applications/app-1/BLI_01/form.pdf",
	}
	svc := newDocumentService(repo)

	actor := &models.JWTClaims{UserID: "student-2", Role: models.RoleStudent}
	_, err := svc.DownloadToken(context.Background(), "doc-1", actor)
	requireCode(t, err, appErrors.ErrForbidden.Code)
}

func TestDocumentDownloadRoundTrip(t *testing.T) {
	repo := newDocumentRepoStub()
	app := storedApplication(repo, models.ApplicationStatusDraft)
	files := &payloadStoreStub{}
	svc := NewDocumentService(repo, okGate(), files, signerStub{}, &auditStub{}, defaultLimits(), nil, nil)

	uploaded, err := svc.Upload(context.Background(), app.ID, uploadRequest(models.DocumentTypeApplicationForm), "student-1", models.RequestMeta{})
	require.NoError(t, err)

	actor := &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}
	token, err := svc.DownloadToken(context.Background(), uploaded.ID, actor)
	require.NoError(t, err)

	doc, file, err := svc.Download(context.Background(), token.Token)
	require.NoError(t, err)
	defer file.Close()
	defer os.Remove(file.Name())

	require.Equal(t, uploaded.ID, doc.ID)
	payload, err := io.ReadAll(file)
	require.NoError(t, err)
	require.Equal(t, []byte("pdf-bytes"), payload)
}
