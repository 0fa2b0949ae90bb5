package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/intern-bli-api/internal/dto"
	"github.com/noah-isme/intern-bli-api/internal/models"
	"github.com/noah-isme/intern-bli-api/internal/repository"
	"github.com/noah-isme/intern-bli-api/internal/workflow"
	appErrors "github.com/noah-isme/intern-bli-api/pkg/errors"
)

type applicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	FindByID(ctx context.Context, id string) (*models.Application, error)
	FindNonTerminalByEnrollment(ctx context.Context, enrollmentID string) (*models.Application, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error)
	UpdateStatus(ctx context.Context, id string, from, to models.ApplicationStatus) error
	ListDocuments(ctx context.Context, applicationID string) ([]models.Document, error)
	ListReviews(ctx context.Context, applicationID string) ([]models.Review, error)
}

type participantGate interface {
	Authorize(ctx context.Context, studentID string) (*models.Enrollment, *models.Session, error)
}

type transitionObserver interface {
	ObserveTransition(from, to string)
}

// ApplicationService drives the application lifecycle. Every status
// move goes through the workflow transition table; the stored status is
// the only authority and derived labels are computed on read.
type ApplicationService struct {
	repo      applicationStore
	gate      participantGate
	audit     auditStore
	metrics   transitionObserver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewApplicationService creates a new application service instance.
func NewApplicationService(repo applicationStore, gate participantGate, audit auditStore, metrics transitionObserver, validate *validator.Validate, logger *zap.Logger) *ApplicationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationService{repo: repo, gate: gate, audit: audit, metrics: metrics, validator: validate, logger: logger}
}

// CreateDraft opens a DRAFT application for the acting student in the
// active session. At most one non-terminal application may exist per
// enrollment; a second attempt is refused while the first is open.
func (s *ApplicationService) CreateDraft(ctx context.Context, req dto.CreateApplicationRequest, studentID string, meta models.RequestMeta) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}
	enrollment, session, err := s.gate.Authorize(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if err := validateTrainingPeriod(req.StartDate, req.EndDate, session); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindNonTerminalByEnrollment(ctx, enrollment.ID)
	if err != nil && !repository.IsNoRows(err) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open applications")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("an application is already open with status %s", existing.Status))
	}

	app := &models.Application{
		EnrollmentID:   enrollment.ID,
		StudentID:      studentID,
		SessionID:      session.ID,
		Status:         models.ApplicationStatusDraft,
		CompanyName:    req.CompanyName,
		CompanyAddress: req.CompanyAddress,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
	}
	if err := s.repo.Create(ctx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}

	s.emitAudit(ctx, studentID, models.AuditActionApplicationCreate, app.ID, nil, map[string]interface{}{
		"status":  app.Status,
		"company": app.CompanyName,
	}, meta)
	return app, nil
}

// Submit moves the student's draft into SUBMITTED. Submission must
// land before the session's application deadline.
func (s *ApplicationService) Submit(ctx context.Context, applicationID, studentID string, meta models.RequestMeta) (*models.Application, error) {
	_, session, err := s.gate.Authorize(ctx, studentID)
	if err != nil {
		return nil, err
	}
	app, err := s.loadOwned(ctx, applicationID, studentID)
	if err != nil {
		return nil, err
	}
	if time.Now().UTC().After(session.ApplicationDeadline) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "application deadline has passed")
	}

	next, err := workflow.Next(app.Status, workflow.EventSubmit)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, app.ID, app.Status, next); err != nil {
		return nil, err
	}
	s.observeTransition(app.Status, next)

	s.emitAudit(ctx, studentID, models.AuditActionApplicationSubmit, app.ID,
		map[string]interface{}{"status": app.Status},
		map[string]interface{}{"status": next}, meta)

	app.Status = next
	return app, nil
}

// Get returns the full detail view: the application, its document and
// review history, and the progress projection recomputed on this read.
func (s *ApplicationService) Get(ctx context.Context, applicationID string, actor *models.JWTClaims) (*models.ApplicationDetail, error) {
	app, err := s.load(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleStudent && app.StudentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only view their own application")
	}

	docs, err := s.repo.ListDocuments(ctx, app.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	reviews, err := s.repo.ListReviews(ctx, app.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reviews")
	}

	ledger := workflow.NewLedger(docs)
	return &models.ApplicationDetail{
		Application: *app,
		Documents:   docs,
		Reviews:     reviews,
		Progress:    ledger.Progress(app.Status),
	}, nil
}

// Mine returns the student's open (or most recent) application in the
// active session as a detail view.
func (s *ApplicationService) Mine(ctx context.Context, studentID string) (*models.ApplicationDetail, error) {
	enrollment, _, err := s.gate.Authorize(ctx, studentID)
	if err != nil {
		return nil, err
	}
	app, err := s.repo.FindNonTerminalByEnrollment(ctx, enrollment.ID)
	if err != nil {
		if repository.IsNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no open application")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return s.Get(ctx, app.ID, &models.JWTClaims{UserID: studentID, Role: models.RoleStudent})
}

// List returns paginated applications for staff views.
func (s *ApplicationService) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, *models.Pagination, error) {
	apps, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return apps, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// AdminReject applies the administrative override, moving any
// non-terminal application into REJECTED or OFFER_REJECTED.
func (s *ApplicationService) AdminReject(ctx context.Context, applicationID string, req dto.RejectApplicationRequest, actorID string, meta models.RequestMeta) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rejection payload")
	}
	var event workflow.Event
	switch req.Target {
	case models.ApplicationStatusRejected:
		event = workflow.EventReject
	case models.ApplicationStatusOfferRejected:
		event = workflow.EventRejectOffer
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "target must be REJECTED or OFFER_REJECTED")
	}

	app, err := s.load(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	next, err := workflow.Next(app.Status, event)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, app.ID, app.Status, next); err != nil {
		return nil, err
	}
	s.observeTransition(app.Status, next)

	s.emitAudit(ctx, actorID, models.AuditActionApplicationReject, app.ID,
		map[string]interface{}{"status": app.Status},
		map[string]interface{}{"status": next, "reason": req.Reason}, meta)

	app.Status = next
	return app, nil
}

// AuditTrail returns the audit records for one application, oldest
// first.
func (s *ApplicationService) AuditTrail(ctx context.Context, applicationID string) ([]models.AuditLog, error) {
	if _, err := s.load(ctx, applicationID); err != nil {
		return nil, err
	}
	logs, err := s.audit.ListByResource(ctx, "applications", applicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit trail")
	}
	return logs, nil
}

func (s *ApplicationService) load(ctx context.Context, id string) (*models.Application, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if repository.IsNoRows(err) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return app, nil
}

func (s *ApplicationService) loadOwned(ctx context.Context, id, studentID string) (*models.Application, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "application belongs to another student")
	}
	return app, nil
}

func (s *ApplicationService) observeTransition(from, to models.ApplicationStatus) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(string(from), string(to))
	}
}

func (s *ApplicationService) emitAudit(ctx context.Context, actorID, action, resourceID string, oldValues, newValues map[string]interface{}, meta models.RequestMeta) {
	entry := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "applications",
		ResourceID: &resourceID,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record application audit log", zap.Error(err))
	}
}

func validateTrainingPeriod(start, end time.Time, session *models.Session) error {
	if !end.After(start) {
		return appErrors.Clone(appErrors.ErrValidation, "end date must be after start date")
	}
	weeks := end.Sub(start).Hours() / (24 * 7)
	if weeks < float64(session.MinTrainingWeeks) || weeks > float64(session.MaxTrainingWeeks) {
		return appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("training period must span between %d and %d weeks", session.MinTrainingWeeks, session.MaxTrainingWeeks))
	}
	return nil
}
