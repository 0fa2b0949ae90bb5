package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/intern-bli-api/internal/dto"
	"github.com/noah-isme/intern-bli-api/internal/models"
	"github.com/noah-isme/intern-bli-api/internal/repository"
	appErrors "github.com/noah-isme/intern-bli-api/pkg/errors"
)

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func (a *auditStub) ListByResource(ctx context.Context, resource, resourceID string) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	for _, entry := range a.logs {
		if entry.Resource == resource && entry.ResourceID != nil && *entry.ResourceID == resourceID {
			logs = append(logs, *entry)
		}
	}
	return logs, nil
}

type metricsStub struct {
	reviews     []string
	transitions [][2]string
}

func (m *metricsStub) ObserveReview(decision string) {
	m.reviews = append(m.reviews, decision)
}

func (m *metricsStub) ObserveTransition(from, to string) {
	m.transitions = append(m.transitions, [2]string{from, to})
}

type notifierStub struct {
	approved []string
}

func (n *notifierStub) ApplicationApproved(applicationID string) {
	n.approved = append(n.approved, applicationID)
}

type reviewRepoStub struct {
	apps    map[string]*models.Application
	docs    map[string]*models.Document
	applied []repository.ReviewDecisionParams
}

func newReviewRepoStub() *reviewRepoStub {
	return &reviewRepoStub{
		apps: make(map[string]*models.Application),
		docs: make(map[string]*models.Document),
	}
}

func (r *reviewRepoStub) FindByID(ctx context.Context, id string) (*models.Application, error) {
	if app, ok := r.apps[id]; ok {
		copy := *app
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (r *reviewRepoStub) FindDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	if doc, ok := r.docs[id]; ok {
		copy := *doc
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (r *reviewRepoStub) ListReviews(ctx context.Context, applicationID string) ([]models.Review, error) {
	return nil, nil
}

func (r *reviewRepoStub) ApplyReviewDecision(ctx context.Context, params repository.ReviewDecisionParams) error {
	r.applied = append(r.applied, params)
	if params.Review.ID == "" {
		params.Review.ID = "review-" + params.Review.DocumentID
	}
	doc := r.docs[params.Review.DocumentID]
	doc.Status = params.DocumentStatus
	doc.Version++
	if params.StatusTo != "" && params.StatusTo != params.StatusFrom {
		r.apps[params.Review.ApplicationID].Status = params.StatusTo
	}
	return nil
}

func reviewFixture(appStatus models.ApplicationStatus, docType models.DocumentType, docStatus models.DocumentStatus) (*reviewRepoStub, *models.Application, *models.Document) {
	repo := newReviewRepoStub()
	app := &models.Application{ID: "app-1", StudentID: "student-1", Status: appStatus}
	doc := &models.Document{ID: "doc-1", ApplicationID: app.ID, Type: docType, Status: docStatus, Version: 1}
	repo.apps[app.ID] = app
	repo.docs[doc.ID] = doc
	return repo, app, doc
}

func reviewerClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "coordinator-1", Role: models.RoleCoordinator}
}

func TestReviewDecideApprovesTerminalPacketDocument(t *testing.T) {
	repo, app, doc := reviewFixture(models.ApplicationStatusUnderReview, models.DocumentTypeTrainingAgreement, models.DocumentStatusUploaded)
	metrics := &metricsStub{}
	notifier := &notifierStub{}
	svc := NewReviewService(repo, okGate(), &auditStub{}, metrics, notifier, nil, nil)

	outcome, err := svc.Decide(context.Background(), doc.ID, dto.ReviewDecisionRequest{Decision: models.ReviewDecisionApprove}, reviewerClaims(), models.RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, models.DocumentStatusApproved, outcome.DocumentStatus)
	require.Equal(t, models.ApplicationStatusApproved, outcome.ApplicationStatus)
	require.Equal(t, models.ApplicationStatusApproved, repo.apps[app.ID].Status)
	require.Equal(t, []string{app.ID}, notifier.approved)
	require.Equal(t, [][2]string{{"UNDER_REVIEW", "APPROVED"}}, metrics.transitions)
}

func TestReviewDecideApproveOtherDocumentLeavesApplication(t *testing.T) {
	repo, app, doc := reviewFixture(models.ApplicationStatusUnderReview, models.DocumentTypeApplicationForm, models.DocumentStatusUploaded)
	notifier := &notifierStub{}
	svc := NewReviewService(repo, okGate(), &auditStub{}, &metricsStub{}, notifier, nil, nil)

	outcome, err := svc.Decide(context.Background(), doc.ID, dto.ReviewDecisionRequest{Decision: models.ReviewDecisionApprove}, reviewerClaims(), models.RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, models.DocumentStatusApproved, outcome.DocumentStatus)
	require.Equal(t, models.ApplicationStatusUnderReview, repo.apps[app.ID].Status)
	require.Empty(t, notifier.approved)
}

func TestReviewDecideFirstDecisionStartsReview(t *testing.T) {
	repo, app, doc := reviewFixture(models.ApplicationStatusSubmitted, models.DocumentTypeApplicationForm, models.DocumentStatusUploaded)
	svc := NewReviewService(repo, okGate(), &auditStub{}, &metricsStub{}, &notifierStub{}, nil, nil)

	outcome, err := svc.Decide(context.Background(), doc.ID, dto.ReviewDecisionRequest{Decision: models.ReviewDecisionApprove}, reviewerClaims(), models.RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusUnderReview, outcome.ApplicationStatus)
	require.Equal(t, models.ApplicationStatusUnderReview, repo.apps[app.ID].Status)
}

func TestReviewDecideRequestChangesRequiresComments(t *testing.T) {
	repo, _, doc := reviewFixture(models.ApplicationStatusUnderReview, models.DocumentTypeOfferLetter, models.DocumentStatusUploaded)
	svc := NewReviewService(repo, okGate(), &auditStub{}, &metricsStub{}, &notifierStub{}, nil, nil)

	_, err := svc.Decide(context.Background(), doc.ID, dto.ReviewDecisionRequest{Decision: models.ReviewDecisionRequestChanges}, reviewerClaims(), models.RequestMeta{})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrMissingRequiredComment.Code, appErr.Code)
	require.Empty(t, repo.applied)
}

func TestReviewDecideRequestChangesFlagsApplication(t *testing.T) {
	repo, app, doc := reviewFixture(models.ApplicationStatusUnderReview, models.DocumentTypeOfferLetter, models.DocumentStatusUploaded)
	svc := NewReviewService(repo, okGate(), &auditStub{}, &metricsStub{}, &notifierStub{}, nil, nil)

	outcome, err := svc.Decide(context.Background(), doc.ID, dto.ReviewDecisionRequest{
		Decision: models.ReviewDecisionRequestChanges,
		Comments: "missing company stamp",
	}, reviewerClaims(), models.RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, models.DocumentStatusChangesRequested, outcome.DocumentStatus)
	require.Equal(t, models.ApplicationStatusChangesRequested, repo.apps[app.ID].Status)
	require.NotNil(t, outcome.Review.Comments)
	require.Equal(t, "missing company stamp", *outcome.Review.Comments)
}

func TestReviewDecideRejectDocumentKeepsApplication(t *testing.T) {
	repo, app, doc := reviewFixture(models.ApplicationStatusUnderReview, models.DocumentTypeOfferLetter, models.DocumentStatusUploaded)
	svc := NewReviewService(repo, okGate(), &auditStub{}, &metricsStub{}, &notifierStub{}, nil, nil)

	outcome, err := svc.Decide(context.Background(), doc.ID, dto.ReviewDecisionRequest{Decision: models.ReviewDecisionReject}, reviewerClaims(), models.RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, models.DocumentStatusRejected, outcome.DocumentStatus)
	require.Equal(t, models.ApplicationStatusUnderReview, repo.apps[app.ID].Status)
}

func TestReviewDecideOnApprovedApplicationLeavesStatus(t *testing.T) {
	repo, app, doc := reviewFixture(models.ApplicationStatusApproved, models.DocumentTypeCompletionReport, models.DocumentStatusUploaded)
	notifier := &notifierStub{}
	svc := NewReviewService(repo, okGate(), &auditStub{}, &metricsStub{}, notifier, nil, nil)

	outcome, err := svc.Decide(context.Background(), doc.ID, dto.ReviewDecisionRequest{Decision: models.ReviewDecisionApprove}, reviewerClaims(), models.RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, models.DocumentStatusApproved, outcome.DocumentStatus)
	require.Equal(t, models.ApplicationStatusApproved, repo.apps[app.ID].Status)
	require.Empty(t, notifier.approved, "re-approval must not refire the notification")
}

func TestReviewDecideRefusedWhenEnrollmentIneligible(t *testing.T) {
	repo, app, doc := reviewFixture(models.ApplicationStatusUnderReview, models.DocumentTypeTrainingAgreement, models.DocumentStatusUploaded)
	notifier := &notifierStub{}
	svc := NewReviewService(repo, &gateStub{err: appErrors.ErrNotEligible}, &auditStub{}, &metricsStub{}, notifier, nil, nil)

	_, err := svc.Decide(context.Background(), doc.ID, dto.ReviewDecisionRequest{Decision: models.ReviewDecisionApprove}, reviewerClaims(), models.RequestMeta{})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrNotEligible.Code, appErr.Code)
	require.Empty(t, repo.applied)
	require.Equal(t, models.ApplicationStatusUnderReview, repo.apps[app.ID].Status)
	require.Empty(t, notifier.approved)
}

func TestReviewDecideRefusedWhenSessionInactive(t *testing.T) {
	repo, app, doc := reviewFixture(models.ApplicationStatusUnderReview, models.DocumentTypeOfferLetter, models.DocumentStatusUploaded)
	svc := NewReviewService(repo, &gateStub{err: appErrors.ErrSessionInactive}, &auditStub{}, &metricsStub{}, &notifierStub{}, nil, nil)

	_, err := svc.Decide(context.Background(), doc.ID, dto.ReviewDecisionRequest{
		Decision: models.ReviewDecisionRequestChanges,
		Comments: "stale roster",
	}, reviewerClaims(), models.RequestMeta{})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrSessionInactive.Code, appErr.Code)
	require.Empty(t, repo.applied)
	require.Equal(t, models.ApplicationStatusUnderReview, repo.apps[app.ID].Status)
}

func TestReviewDecideRefusesSelfReview(t *testing.T) {
	repo, _, doc := reviewFixture(models.ApplicationStatusUnderReview, models.DocumentTypeOfferLetter, models.DocumentStatusUploaded)
	svc := NewReviewService(repo, okGate(), &auditStub{}, &metricsStub{}, &notifierStub{}, nil, nil)

	self := &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}
	_, err := svc.Decide(context.Background(), doc.ID, dto.ReviewDecisionRequest{Decision: models.ReviewDecisionApprove}, self, models.RequestMeta{})
	require.Error(t, err)
	require.Empty(t, repo.applied)
}

func TestReviewDecideRefusesInactiveDocument(t *testing.T) {
	repo, _, doc := reviewFixture(models.ApplicationStatusUnderReview, models.DocumentTypeOfferLetter, models.DocumentStatusSuperseded)
	svc := NewReviewService(repo, okGate(), &auditStub{}, &metricsStub{}, &notifierStub{}, nil, nil)

	_, err := svc.Decide(context.Background(), doc.ID, dto.ReviewDecisionRequest{Decision: models.ReviewDecisionApprove}, reviewerClaims(), models.RequestMeta{})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
}
