package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/intern-bli-api/internal/dto"
	"github.com/noah-isme/intern-bli-api/internal/models"
	appErrors "github.com/noah-isme/intern-bli-api/pkg/errors"
)

type enrollmentRepoStub struct {
	enrollments map[string]*models.Enrollment
}

func newEnrollmentRepoStub() *enrollmentRepoStub {
	return &enrollmentRepoStub{enrollments: make(map[string]*models.Enrollment)}
}

func (r *enrollmentRepoStub) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = "enroll-" + enrollment.StudentID
	}
	r.enrollments[enrollment.ID] = enrollment
	return nil
}

func (r *enrollmentRepoStub) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := r.enrollments[id]; ok {
		copy := *e
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (r *enrollmentRepoStub) FindByStudentAndSession(ctx context.Context, studentID, sessionID string) (*models.Enrollment, error) {
	for _, e := range r.enrollments {
		if e.StudentID == studentID && e.SessionID == sessionID {
			copy := *e
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *enrollmentRepoStub) ListBySession(ctx context.Context, sessionID string) ([]models.Enrollment, error) {
	result := []models.Enrollment{}
	for _, e := range r.enrollments {
		if e.SessionID == sessionID {
			result = append(result, *e)
		}
	}
	return result, nil
}

func (r *enrollmentRepoStub) UpdateCredits(ctx context.Context, id string, credits *float64, eligible bool) error {
	e, ok := r.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	e.CreditsEarned = credits
	e.Eligible = eligible
	return nil
}

type sessionLookupStub struct {
	sessions map[string]*models.Session
	active   *models.Session
}

func (s *sessionLookupStub) FindByID(ctx context.Context, id string) (*models.Session, error) {
	if session, ok := s.sessions[id]; ok {
		return session, nil
	}
	return nil, sql.ErrNoRows
}

func (s *sessionLookupStub) FindActive(ctx context.Context) (*models.Session, error) {
	if s.active == nil {
		return nil, sql.ErrNoRows
	}
	return s.active, nil
}

func enrollmentFixture() (*enrollmentRepoStub, *sessionLookupStub, *EnrollmentService) {
	repo := newEnrollmentRepoStub()
	session := activeSessionFixture()
	sessions := &sessionLookupStub{sessions: map[string]*models.Session{session.ID: session}, active: session}
	svc := NewEnrollmentService(repo, sessions, &auditStub{}, nil, nil)
	return repo, sessions, svc
}

func credits(v float64) *float64 { return &v }

func TestEnrollComputesEligibility(t *testing.T) {
	_, _, svc := enrollmentFixture()

	eligible, err := svc.Enroll(context.Background(), dto.EnrollStudentRequest{
		StudentID:     "student-1",
		SessionID:     "session-1",
		CreditsEarned: credits(120),
	}, "admin-1", models.RequestMeta{})
	require.NoError(t, err)
	require.True(t, eligible.Eligible)

	below, err := svc.Enroll(context.Background(), dto.EnrollStudentRequest{
		StudentID:     "student-2",
		SessionID:     "session-1",
		CreditsEarned: credits(80),
	}, "admin-1", models.RequestMeta{})
	require.NoError(t, err)
	require.False(t, below.Eligible)
}

func TestEnrollWithoutSnapshotIsIneligible(t *testing.T) {
	_, _, svc := enrollmentFixture()

	enrollment, err := svc.Enroll(context.Background(), dto.EnrollStudentRequest{
		StudentID: "student-1",
		SessionID: "session-1",
	}, "admin-1", models.RequestMeta{})
	require.NoError(t, err)
	require.False(t, enrollment.Eligible)
	require.Nil(t, enrollment.CreditsEarned)
}

func TestUpdateCreditsRecomputesEligibility(t *testing.T) {
	_, _, svc := enrollmentFixture()

	enrollment, err := svc.Enroll(context.Background(), dto.EnrollStudentRequest{
		StudentID:     "student-1",
		SessionID:     "session-1",
		CreditsEarned: credits(80),
	}, "admin-1", models.RequestMeta{})
	require.NoError(t, err)
	require.False(t, enrollment.Eligible)

	updated, err := svc.UpdateCredits(context.Background(), enrollment.ID, dto.UpdateCreditsRequest{
		CreditsEarned: credits(105),
	}, "admin-1", models.RequestMeta{})
	require.NoError(t, err)
	require.True(t, updated.Eligible)
}

func TestAuthorizeWithoutActiveSession(t *testing.T) {
	_, sessions, svc := enrollmentFixture()
	sessions.active = nil

	_, _, err := svc.Authorize(context.Background(), "student-1")
	requireCode(t, err, appErrors.ErrSessionInactive.Code)
}

func TestAuthorizeUnknownStudent(t *testing.T) {
	_, _, svc := enrollmentFixture()

	_, _, err := svc.Authorize(context.Background(), "stranger")
	requireCode(t, err, appErrors.ErrNotEnrolled.Code)
}

func TestAuthorizeIneligibleStudent(t *testing.T) {
	_, _, svc := enrollmentFixture()

	_, err := svc.Enroll(context.Background(), dto.EnrollStudentRequest{
		StudentID:     "student-1",
		SessionID:     "session-1",
		CreditsEarned: credits(50),
	}, "admin-1", models.RequestMeta{})
	require.NoError(t, err)

	_, _, err = svc.Authorize(context.Background(), "student-1")
	requireCode(t, err, appErrors.ErrNotEligible.Code)
}

func TestAuthorizeEligibleStudent(t *testing.T) {
	_, _, svc := enrollmentFixture()

	_, err := svc.Enroll(context.Background(), dto.EnrollStudentRequest{
		StudentID:     "student-1",
		SessionID:     "session-1",
		CreditsEarned: credits(150),
	}, "admin-1", models.RequestMeta{})
	require.NoError(t, err)

	enrollment, session, err := svc.Authorize(context.Background(), "student-1")
	require.NoError(t, err)
	require.Equal(t, "student-1", enrollment.StudentID)
	require.Equal(t, "session-1", session.ID)
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, code, appErr.Code)
}
