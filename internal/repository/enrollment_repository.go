package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/intern-bli-api/internal/models"
	appErrors "github.com/noah-isme/intern-bli-api/pkg/errors"
)

const enrollmentColumns = `id, student_id, session_id, credits_earned, eligible, enrolled_at, updated_at`

// EnrollmentRepository handles persistence of session enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Create persists a new enrollment. The (student, session) pair is
// unique; a duplicate import surfaces as a conflict.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}
	enrollment.UpdatedAt = now

	const query = `INSERT INTO session_enrollments (id, student_id, session_id, credits_earned, eligible, enrolled_at, updated_at)
        VALUES (:id, :student_id, :session_id, :credits_earned, :eligible, :enrolled_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return appErrors.Clone(appErrors.ErrConflict, "student already enrolled in this session")
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM session_enrollments WHERE id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindByStudentAndSession returns the enrollment for the pair.
func (r *EnrollmentRepository) FindByStudentAndSession(ctx context.Context, studentID, sessionID string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM session_enrollments WHERE student_id = $1 AND session_id = $2`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, sessionID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListBySession returns all enrollments for a session.
func (r *EnrollmentRepository) ListBySession(ctx context.Context, sessionID string) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM session_enrollments WHERE session_id = $1 ORDER BY enrolled_at`, enrollmentColumns)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session enrollments: %w", err)
	}
	return enrollments, nil
}

// UpdateCredits persists a new credit snapshot together with the
// recomputed eligibility flag. The two always change together so the
// cached flag can never contradict the snapshot it was derived from.
func (r *EnrollmentRepository) UpdateCredits(ctx context.Context, id string, credits *float64, eligible bool) error {
	const query = `UPDATE session_enrollments SET credits_earned = $2, eligible = $3, updated_at = $4 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, credits, eligible, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update enrollment credits: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateEligibility persists a recomputed eligibility flag, used when
// the session threshold changes while credits stay the same.
func (r *EnrollmentRepository) UpdateEligibility(ctx context.Context, id string, eligible bool) error {
	const query = `UPDATE session_enrollments SET eligible = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, eligible, time.Now().UTC()); err != nil {
		return fmt.Errorf("update enrollment eligibility: %w", err)
	}
	return nil
}
