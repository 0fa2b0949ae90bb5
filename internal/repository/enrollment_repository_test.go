package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/intern-bli-api/internal/models"
	appErrors "github.com/noah-isme/intern-bli-api/pkg/errors"
)

func TestEnrollmentRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO session_enrollments")).
		WillReturnError(&pq.Error{Code: "23505"})

	credits := 120.0
	err := repo.Create(context.Background(), &models.Enrollment{
		StudentID:     "student-1",
		SessionID:     "session-1",
		CreditsEarned: &credits,
		Eligible:      true,
	})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindByStudentAndSession(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	rows := sqlmock.NewRows([]string{"id", "student_id", "session_id", "credits_earned", "eligible", "enrolled_at", "updated_at"}).
		AddRow("enroll-1", "student-1", "session-1", 120.0, true, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, session_id, credits_earned")).
		WithArgs("student-1", "session-1").
		WillReturnRows(rows)

	enrollment, err := repo.FindByStudentAndSession(context.Background(), "student-1", "session-1")
	require.NoError(t, err)
	require.Equal(t, "enroll-1", enrollment.ID)
	require.True(t, enrollment.Eligible)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateCreditsMissing(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE session_enrollments SET credits_earned")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	credits := 90.0
	err := repo.UpdateCredits(context.Background(), "enroll-missing", &credits, false)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
