package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/intern-bli-api/internal/dto"
	"github.com/noah-isme/intern-bli-api/internal/models"
	"github.com/noah-isme/intern-bli-api/internal/workflow"
	appErrors "github.com/noah-isme/intern-bli-api/pkg/errors"
)

type enrollmentStore interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindByStudentAndSession(ctx context.Context, studentID, sessionID string) (*models.Enrollment, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.Enrollment, error)
	UpdateCredits(ctx context.Context, id string, credits *float64, eligible bool) error
}

type enrollmentSessionStore interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
	FindActive(ctx context.Context) (*models.Session, error)
}

type auditStore interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
	ListByResource(ctx context.Context, resource, resourceID string) ([]models.AuditLog, error)
}

// EnrollmentService manages session rosters and decides who may act as
// a participant. Every student-facing workflow passes through
// Authorize before touching application state.
type EnrollmentService struct {
	repo      enrollmentStore
	sessions  enrollmentSessionStore
	audit     auditStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService creates a new enrollment service instance.
func NewEnrollmentService(repo enrollmentStore, sessions enrollmentSessionStore, audit auditStore, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, sessions: sessions, audit: audit, validator: validate, logger: logger}
}

// Enroll imports a student into a session. Eligibility is computed
// from the credit snapshot at import time; a missing snapshot imports
// the student as ineligible rather than blocking the import.
func (s *EnrollmentService) Enroll(ctx context.Context, req dto.EnrollStudentRequest, actorID string, meta models.RequestMeta) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	session, err := s.sessions.FindByID(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	enrollment := &models.Enrollment{
		StudentID:     req.StudentID,
		SessionID:     session.ID,
		CreditsEarned: req.CreditsEarned,
		Eligible:      workflow.EvaluateEligibility(req.CreditsEarned, session.MinCredits),
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll student")
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"student_id": enrollment.StudentID,
		"session_id": enrollment.SessionID,
		"eligible":   enrollment.Eligible,
	})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionEnrollmentImport,
		Resource:   "enrollments",
		ResourceID: &enrollment.ID,
		NewValues:  payload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record enrollment audit log", zap.Error(err))
	}
	return enrollment, nil
}

// UpdateCredits replaces the credit snapshot and recomputes the
// eligibility flag against the session threshold in the same call.
func (s *EnrollmentService) UpdateCredits(ctx context.Context, id string, req dto.UpdateCreditsRequest, actorID string, meta models.RequestMeta) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid credits payload")
	}
	enrollment, err := s.loadEnrollment(ctx, id)
	if err != nil {
		return nil, err
	}
	session, err := s.sessions.FindByID(ctx, enrollment.SessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"credits_earned": enrollment.CreditsEarned, "eligible": enrollment.Eligible})

	eligible := workflow.EvaluateEligibility(req.CreditsEarned, session.MinCredits)
	if err := s.repo.UpdateCredits(ctx, enrollment.ID, req.CreditsEarned, eligible); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update credits")
	}
	enrollment.CreditsEarned = req.CreditsEarned
	enrollment.Eligible = eligible

	newPayload, _ := json.Marshal(map[string]interface{}{"credits_earned": enrollment.CreditsEarned, "eligible": enrollment.Eligible})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionCreditsUpdate,
		Resource:   "enrollments",
		ResourceID: &enrollment.ID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record credits audit log", zap.Error(err))
	}
	return enrollment, nil
}

// Authorize resolves the active session and the student's enrollment
// in it, rejecting students who are absent from the roster or below
// the credit threshold. It is the single gate in front of every
// participant operation.
func (s *EnrollmentService) Authorize(ctx context.Context, studentID string) (*models.Enrollment, *models.Session, error) {
	session, err := s.sessions.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.ErrSessionInactive
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active session")
	}
	enrollment, err := s.repo.FindByStudentAndSession(ctx, studentID, session.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.ErrNotEnrolled
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if !enrollment.Eligible {
		return nil, nil, appErrors.ErrNotEligible
	}
	return enrollment, session, nil
}

// MyEnrollment returns the student's enrollment in the active session,
// if any, without the eligibility gate. Students may always see their
// own roster status.
func (s *EnrollmentService) MyEnrollment(ctx context.Context, studentID string) (*models.Enrollment, error) {
	session, err := s.sessions.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSessionInactive
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active session")
	}
	enrollment, err := s.repo.FindByStudentAndSession(ctx, studentID, session.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotEnrolled
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// ListBySession returns the full roster for a session.
func (s *EnrollmentService) ListBySession(ctx context.Context, sessionID string) ([]models.Enrollment, error) {
	enrollments, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

func (s *EnrollmentService) loadEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}
