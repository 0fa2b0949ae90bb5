package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/intern-bli-api/internal/dto"
	"github.com/noah-isme/intern-bli-api/internal/models"
	"github.com/noah-isme/intern-bli-api/internal/workflow"
	appErrors "github.com/noah-isme/intern-bli-api/pkg/errors"
)

type sessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	Update(ctx context.Context, session *models.Session) error
	SetActive(ctx context.Context, id string) error
	AttachSignature(ctx context.Context, id, ref, mediaType string, signedAt time.Time) error
	FindByID(ctx context.Context, id string) (*models.Session, error)
	FindActive(ctx context.Context) (*models.Session, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error)
	HasEnrollments(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type sessionEnrollmentStore interface {
	ListBySession(ctx context.Context, sessionID string) ([]models.Enrollment, error)
	UpdateEligibility(ctx context.Context, id string, eligible bool) error
}

type signaturePayloadStore interface {
	Save(ref string, data []byte) (string, error)
}

// SessionService orchestrates internship session administration.
type SessionService struct {
	repo        sessionStore
	enrollments sessionEnrollmentStore
	files       signaturePayloadStore
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewSessionService creates a new session service instance.
func NewSessionService(repo sessionStore, enrollments sessionEnrollmentStore, files signaturePayloadStore, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{repo: repo, enrollments: enrollments, files: files, validator: validate, logger: logger}
}

// Create persists a new session owned by the acting coordinator.
func (s *SessionService) Create(ctx context.Context, req dto.CreateSessionRequest, coordinatorID string) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if err := validateSessionWindow(req.MinTrainingWeeks, req.MaxTrainingWeeks, req.ApplicationDeadline, req.ReportingDeadline); err != nil {
		return nil, err
	}
	session := &models.Session{
		Name:                req.Name,
		AcademicYear:        req.AcademicYear,
		MinCredits:          req.MinCredits,
		MinTrainingWeeks:    req.MinTrainingWeeks,
		MaxTrainingWeeks:    req.MaxTrainingWeeks,
		ApplicationDeadline: req.ApplicationDeadline,
		MidTermDeadline:     req.MidTermDeadline,
		ReportingDeadline:   req.ReportingDeadline,
		IsActive:            req.IsActive,
		CoordinatorID:       coordinatorID,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	return session, nil
}

// Update mutates a session. Only the owning coordinator may edit it.
// A threshold change re-evaluates and persists every enrollment's
// eligibility flag: the cached value must never contradict its inputs.
func (s *SessionService) Update(ctx context.Context, id string, req dto.UpdateSessionRequest, actor *models.JWTClaims) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if err := validateSessionWindow(req.MinTrainingWeeks, req.MaxTrainingWeeks, req.ApplicationDeadline, req.ReportingDeadline); err != nil {
		return nil, err
	}
	session, err := s.loadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && session.CoordinatorID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning coordinator may edit this session")
	}

	thresholdChanged := session.MinCredits != req.MinCredits

	session.Name = req.Name
	session.AcademicYear = req.AcademicYear
	session.MinCredits = req.MinCredits
	session.MinTrainingWeeks = req.MinTrainingWeeks
	session.MaxTrainingWeeks = req.MaxTrainingWeeks
	session.ApplicationDeadline = req.ApplicationDeadline
	session.MidTermDeadline = req.MidTermDeadline
	session.ReportingDeadline = req.ReportingDeadline

	if err := s.repo.Update(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
	}

	if thresholdChanged {
		if err := s.recomputeEligibility(ctx, session); err != nil {
			return nil, err
		}
	}
	return session, nil
}

// SetActive activates one session, deactivating the rest.
func (s *SessionService) SetActive(ctx context.Context, id string) error {
	if err := s.repo.SetActive(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate session")
	}
	return nil
}

// AttachSignature stores the coordinator's signature payload and
// records the opaque reference on the session.
func (s *SessionService) AttachSignature(ctx context.Context, id string, req dto.AttachSessionSignatureRequest, actor *models.JWTClaims) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid signature payload")
	}
	session, err := s.loadSession(ctx, id)
	if err != nil {
		return err
	}
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && session.CoordinatorID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the owning coordinator may sign this session")
	}
	signedAt := time.Now().UTC()
	ref, err := s.files.Save(fmt.Sprintf("sessions/%s/signature", session.ID), req.Data)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store signature payload")
	}
	if err := s.repo.AttachSignature(ctx, session.ID, ref, req.MediaType, signedAt); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record signature")
	}
	return nil
}

// Delete removes a session that was created by mistake. A session with
// enrollments is part of the workflow record and can only be
// deactivated.
func (s *SessionService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	session, err := s.loadSession(ctx, id)
	if err != nil {
		return err
	}
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && session.CoordinatorID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the owning coordinator may delete this session")
	}
	enrolled, err := s.repo.HasEnrollments(ctx, session.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check session enrollments")
	}
	if enrolled {
		return appErrors.Clone(appErrors.ErrConflict, "session has enrollments; deactivate it instead")
	}
	if err := s.repo.Delete(ctx, session.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
	}
	return nil
}

// Get returns a session by ID.
func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	return s.loadSession(ctx, id)
}

// GetActive returns the currently active session.
func (s *SessionService) GetActive(ctx context.Context) (*models.Session, error) {
	session, err := s.repo.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSessionInactive
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active session")
	}
	return session, nil
}

// List returns paginated sessions.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, *models.Pagination, error) {
	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return sessions, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *SessionService) loadSession(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

func (s *SessionService) recomputeEligibility(ctx context.Context, session *models.Session) error {
	enrollments, err := s.enrollments.ListBySession(ctx, session.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments for recompute")
	}
	for i := range enrollments {
		enrollment := &enrollments[i]
		eligible := workflow.EvaluateEligibility(enrollment.CreditsEarned, session.MinCredits)
		if eligible == enrollment.Eligible {
			continue
		}
		if err := s.enrollments.UpdateEligibility(ctx, enrollment.ID, eligible); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist recomputed eligibility")
		}
	}
	s.logger.Info("recomputed session eligibility",
		zap.String("session_id", session.ID),
		zap.Float64("min_credits", session.MinCredits),
		zap.Int("enrollments", len(enrollments)))
	return nil
}

func validateSessionWindow(minWeeks, maxWeeks int, applicationDeadline, reportingDeadline time.Time) error {
	if maxWeeks < minWeeks {
		return appErrors.Clone(appErrors.ErrValidation, "max training weeks must not be below min training weeks")
	}
	if reportingDeadline.Before(applicationDeadline) {
		return appErrors.Clone(appErrors.ErrValidation, "reporting deadline must not precede the application deadline")
	}
	return nil
}
