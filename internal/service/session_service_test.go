package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/intern-bli-api/internal/dto"
	"github.com/noah-isme/intern-bli-api/internal/models"
	appErrors "github.com/noah-isme/intern-bli-api/pkg/errors"
)

type sessionRepoStub struct {
	sessions map[string]*models.Session
	enrolled map[string]bool
}

func newSessionRepoStub() *sessionRepoStub {
	return &sessionRepoStub{
		sessions: make(map[string]*models.Session),
		enrolled: make(map[string]bool),
	}
}

func (r *sessionRepoStub) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = "session-" + session.Name
	}
	r.sessions[session.ID] = session
	return nil
}

func (r *sessionRepoStub) Update(ctx context.Context, session *models.Session) error {
	if _, ok := r.sessions[session.ID]; !ok {
		return sql.ErrNoRows
	}
	r.sessions[session.ID] = session
	return nil
}

func (r *sessionRepoStub) SetActive(ctx context.Context, id string) error {
	target, ok := r.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	for _, s := range r.sessions {
		s.IsActive = false
	}
	target.IsActive = true
	return nil
}

func (r *sessionRepoStub) AttachSignature(ctx context.Context, id, ref, mediaType string, signedAt time.Time) error {
	session, ok := r.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	session.SignatureRef = &ref
	session.SignatureMediaType = &mediaType
	session.SignedAt = &signedAt
	return nil
}

func (r *sessionRepoStub) FindByID(ctx context.Context, id string) (*models.Session, error) {
	if s, ok := r.sessions[id]; ok {
		copy := *s
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (r *sessionRepoStub) FindActive(ctx context.Context) (*models.Session, error) {
	for _, s := range r.sessions {
		if s.IsActive {
			copy := *s
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *sessionRepoStub) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	result := make([]models.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		result = append(result, *s)
	}
	return result, len(result), nil
}

func (r *sessionRepoStub) HasEnrollments(ctx context.Context, id string) (bool, error) {
	return r.enrolled[id], nil
}

func (r *sessionRepoStub) Delete(ctx context.Context, id string) error {
	if _, ok := r.sessions[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.sessions, id)
	return nil
}

type eligibilityStub struct {
	enrollments map[string]*models.Enrollment
	updates     map[string]bool
}

func newEligibilityStub() *eligibilityStub {
	return &eligibilityStub{
		enrollments: make(map[string]*models.Enrollment),
		updates:     make(map[string]bool),
	}
}

func (s *eligibilityStub) ListBySession(ctx context.Context, sessionID string) ([]models.Enrollment, error) {
	result := []models.Enrollment{}
	for _, e := range s.enrollments {
		if e.SessionID == sessionID {
			result = append(result, *e)
		}
	}
	return result, nil
}

func (s *eligibilityStub) UpdateEligibility(ctx context.Context, id string, eligible bool) error {
	s.updates[id] = eligible
	s.enrollments[id].Eligible = eligible
	return nil
}

type fileStoreStub struct {
	saved map[string][]byte
}

func (f *fileStoreStub) Save(ref string, data []byte) (string, error) {
	if f.saved == nil {
		f.saved = make(map[string][]byte)
	}
	f.saved[ref] = data
	return ref, nil
}

func sessionRequest() dto.CreateSessionRequest {
	now := time.Now()
	return dto.CreateSessionRequest{
		Name:                "Internship 2026",
		AcademicYear:        "2025/2026",
		MinCredits:          100,
		MinTrainingWeeks:    8,
		MaxTrainingWeeks:    24,
		ApplicationDeadline: now.Add(30 * 24 * time.Hour),
		MidTermDeadline:     now.Add(90 * 24 * time.Hour),
		ReportingDeadline:   now.Add(180 * 24 * time.Hour),
		IsActive:            true,
	}
}

func TestSessionCreate(t *testing.T) {
	repo := newSessionRepoStub()
	svc := NewSessionService(repo, newEligibilityStub(), &fileStoreStub{}, nil, nil)

	session, err := svc.Create(context.Background(), sessionRequest(), "coordinator-1")
	require.NoError(t, err)
	require.Equal(t, "coordinator-1", session.CoordinatorID)
	require.Len(t, repo.sessions, 1)
}

func TestSessionCreateRejectsInvertedWeeks(t *testing.T) {
	svc := NewSessionService(newSessionRepoStub(), newEligibilityStub(), &fileStoreStub{}, nil, nil)

	req := sessionRequest()
	req.MinTrainingWeeks = 20
	req.MaxTrainingWeeks = 8

	_, err := svc.Create(context.Background(), req, "coordinator-1")
	requireCode(t, err, appErrors.ErrValidation.Code)
}

func TestSessionUpdateThresholdRecomputesRoster(t *testing.T) {
	repo := newSessionRepoStub()
	enrollments := newEligibilityStub()
	svc := NewSessionService(repo, enrollments, &fileStoreStub{}, nil, nil)

	session, err := svc.Create(context.Background(), sessionRequest(), "coordinator-1")
	require.NoError(t, err)

	enrollments.enrollments["e1"] = &models.Enrollment{ID: "e1", SessionID: session.ID, CreditsEarned: credits(110), Eligible: true}
	enrollments.enrollments["e2"] = &models.Enrollment{ID: "e2", SessionID: session.ID, CreditsEarned: credits(95), Eligible: false}
	enrollments.enrollments["e3"] = &models.Enrollment{ID: "e3", SessionID: session.ID, CreditsEarned: nil, Eligible: false}

	req := dto.UpdateSessionRequest{
		Name:                session.Name,
		AcademicYear:        session.AcademicYear,
		MinCredits:          90,
		MinTrainingWeeks:    session.MinTrainingWeeks,
		MaxTrainingWeeks:    session.MaxTrainingWeeks,
		ApplicationDeadline: session.ApplicationDeadline,
		MidTermDeadline:     session.MidTermDeadline,
		ReportingDeadline:   session.ReportingDeadline,
	}
	actor := &models.JWTClaims{UserID: "coordinator-1", Role: models.RoleCoordinator}
	_, err = svc.Update(context.Background(), session.ID, req, actor)
	require.NoError(t, err)

	// e2 crosses the lowered threshold; e1 keeps its flag; e3 stays
	// ineligible without a snapshot.
	require.Equal(t, map[string]bool{"e2": true}, enrollments.updates)
	require.True(t, enrollments.enrollments["e2"].Eligible)
	require.False(t, enrollments.enrollments["e3"].Eligible)
}

func TestSessionUpdateSameThresholdSkipsRecompute(t *testing.T) {
	repo := newSessionRepoStub()
	enrollments := newEligibilityStub()
	svc := NewSessionService(repo, enrollments, &fileStoreStub{}, nil, nil)

	session, err := svc.Create(context.Background(), sessionRequest(), "coordinator-1")
	require.NoError(t, err)
	enrollments.enrollments["e1"] = &models.Enrollment{ID: "e1", SessionID: session.ID, CreditsEarned: credits(110), Eligible: true}

	req := dto.UpdateSessionRequest{
		Name:                "Renamed",
		AcademicYear:        session.AcademicYear,
		MinCredits:          session.MinCredits,
		MinTrainingWeeks:    session.MinTrainingWeeks,
		MaxTrainingWeeks:    session.MaxTrainingWeeks,
		ApplicationDeadline: session.ApplicationDeadline,
		MidTermDeadline:     session.MidTermDeadline,
		ReportingDeadline:   session.ReportingDeadline,
	}
	actor := &models.JWTClaims{UserID: "coordinator-1", Role: models.RoleCoordinator}
	_, err = svc.Update(context.Background(), session.ID, req, actor)
	require.NoError(t, err)
	require.Empty(t, enrollments.updates)
}

func TestSessionUpdateRefusesForeignCoordinator(t *testing.T) {
	repo := newSessionRepoStub()
	svc := NewSessionService(repo, newEligibilityStub(), &fileStoreStub{}, nil, nil)

	session, err := svc.Create(context.Background(), sessionRequest(), "coordinator-1")
	require.NoError(t, err)

	req := dto.UpdateSessionRequest{
		Name:                session.Name,
		AcademicYear:        session.AcademicYear,
		MinCredits:          session.MinCredits,
		MinTrainingWeeks:    session.MinTrainingWeeks,
		MaxTrainingWeeks:    session.MaxTrainingWeeks,
		ApplicationDeadline: session.ApplicationDeadline,
		MidTermDeadline:     session.MidTermDeadline,
		ReportingDeadline:   session.ReportingDeadline,
	}
	actor := &models.JWTClaims{UserID: "coordinator-2", Role: models.RoleCoordinator}
	_, err = svc.Update(context.Background(), session.ID, req, actor)
	requireCode(t, err, appErrors.ErrForbidden.Code)
}

func TestSessionAttachSignature(t *testing.T) {
	repo := newSessionRepoStub()
	files := &fileStoreStub{}
	svc := NewSessionService(repo, newEligibilityStub(), files, nil, nil)

	session, err := svc.Create(context.Background(), sessionRequest(), "coordinator-1")
	require.NoError(t, err)

	actor := &models.JWTClaims{UserID: "coordinator-1", Role: models.RoleCoordinator}
	err = svc.AttachSignature(context.Background(), session.ID, dto.AttachSessionSignatureRequest{
		Data:      []byte("png-bytes"),
		MediaType: "image/png",
	}, actor)
	require.NoError(t, err)
	require.Len(t, files.saved, 1)
	require.NotNil(t, repo.sessions[session.ID].SignatureRef)
}

func TestSessionDeleteRefusedWithEnrollments(t *testing.T) {
	repo := newSessionRepoStub()
	svc := NewSessionService(repo, newEligibilityStub(), &fileStoreStub{}, nil, nil)

	session, err := svc.Create(context.Background(), sessionRequest(), "coordinator-1")
	require.NoError(t, err)
	repo.enrolled[session.ID] = true

	actor := &models.JWTClaims{UserID: "coordinator-1", Role: models.RoleCoordinator}
	err = svc.Delete(context.Background(), session.ID, actor)
	requireCode(t, err, appErrors.ErrConflict.Code)
	require.Len(t, repo.sessions, 1)
}

func TestSessionDeleteEmptySession(t *testing.T) {
	repo := newSessionRepoStub()
	svc := NewSessionService(repo, newEligibilityStub(), &fileStoreStub{}, nil, nil)

	session, err := svc.Create(context.Background(), sessionRequest(), "coordinator-1")
	require.NoError(t, err)

	actor := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	require.NoError(t, svc.Delete(context.Background(), session.ID, actor))
	require.Empty(t, repo.sessions)
}

func TestSessionGetActiveWithoutOne(t *testing.T) {
	svc := NewSessionService(newSessionRepoStub(), newEligibilityStub(), &fileStoreStub{}, nil, nil)

	_, err := svc.GetActive(context.Background())
	requireCode(t, err, appErrors.ErrSessionInactive.Code)
}
