package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/intern-bli-api/internal/models"
)

const activeSessionCacheKey = "intern:session:active"

const sessionColumns = `id, name, academic_year, min_credits, min_training_weeks, max_training_weeks,
        application_deadline, mid_term_deadline, reporting_deadline, is_active, coordinator_id,
        signature_ref, signature_media_type, signed_at, created_at, updated_at`

// SessionRepository handles persistence of internship sessions. The
// active-session lookup is cached in Redis because the enrollment gate
// reads it on every workflow mutation; every session write invalidates
// the cache.
type SessionRepository struct {
	db       *sqlx.DB
	cache    *redis.Client
	cacheTTL time.Duration
}

// NewSessionRepository constructs the repository. The cache client is
// optional; without it every FindActive hits the database.
func NewSessionRepository(db *sqlx.DB, cache *redis.Client, cacheTTL time.Duration) *SessionRepository {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &SessionRepository{db: db, cache: cache, cacheTTL: cacheTTL}
}

// Create persists a new session. When the session is created active,
// every other session is deactivated in the same transaction.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create session: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if session.IsActive {
		if _, err := tx.ExecContext(ctx, `UPDATE sessions SET is_active = FALSE, updated_at = $1 WHERE is_active`, now); err != nil {
			return fmt.Errorf("deactivate sessions: %w", err)
		}
	}
	const query = `INSERT INTO sessions (id, name, academic_year, min_credits, min_training_weeks, max_training_weeks,
        application_deadline, mid_term_deadline, reporting_deadline, is_active, coordinator_id,
        signature_ref, signature_media_type, signed_at, created_at, updated_at)
        VALUES (:id, :name, :academic_year, :min_credits, :min_training_weeks, :max_training_weeks,
        :application_deadline, :mid_term_deadline, :reporting_deadline, :is_active, :coordinator_id,
        :signature_ref, :signature_media_type, :signed_at, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create session: %w", err)
	}
	r.invalidateActive(ctx)
	return nil
}

// Update persists all mutable session fields.
func (r *SessionRepository) Update(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sessions SET name = :name, academic_year = :academic_year, min_credits = :min_credits,
        min_training_weeks = :min_training_weeks, max_training_weeks = :max_training_weeks,
        application_deadline = :application_deadline, mid_term_deadline = :mid_term_deadline,
        reporting_deadline = :reporting_deadline, updated_at = :updated_at
        WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, session)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	r.invalidateActive(ctx)
	return nil
}

// SetActive marks the given session active and deactivates the rest.
func (r *SessionRepository) SetActive(ctx context.Context, id string) error {
	now := time.Now().UTC()
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set active session: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET is_active = FALSE, updated_at = $1 WHERE is_active AND id <> $2`, now, id); err != nil {
		return fmt.Errorf("deactivate sessions: %w", err)
	}
	result, err := tx.ExecContext(ctx, `UPDATE sessions SET is_active = TRUE, updated_at = $1 WHERE id = $2`, now, id)
	if err != nil {
		return fmt.Errorf("activate session: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set active session: %w", err)
	}
	r.invalidateActive(ctx)
	return nil
}

// AttachSignature records the coordinator's digital signature metadata.
func (r *SessionRepository) AttachSignature(ctx context.Context, id, ref, mediaType string, signedAt time.Time) error {
	const query = `UPDATE sessions SET signature_ref = $2, signature_media_type = $3, signed_at = $4, updated_at = $5 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, ref, mediaType, signedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("attach session signature: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	r.invalidateActive(ctx)
	return nil
}

// FindByID returns a session by its ID.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE id = $1`, sessionColumns)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindActive returns the session currently driving eligibility, or
// sql.ErrNoRows when none is active.
func (r *SessionRepository) FindActive(ctx context.Context) (*models.Session, error) {
	if cached := r.readActiveCache(ctx); cached != nil {
		return cached, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE is_active LIMIT 1`, sessionColumns)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query); err != nil {
		return nil, err
	}
	r.writeActiveCache(ctx, &session)
	return &session, nil
}

// List returns sessions filtered by the provided criteria.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	var conditions []string
	var args []interface{}

	if filter.AcademicYear != "" {
		conditions = append(conditions, fmt.Sprintf("academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}
	if filter.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, *filter.IsActive)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM sessions%s ORDER BY created_at %s LIMIT %d OFFSET %d`,
		sessionColumns, clause, order, size, offset)

	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM sessions" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return sessions, total, nil
}

// HasEnrollments reports whether any student is enrolled in the
// session. Sessions with enrollments are never hard-deleted.
func (r *SessionRepository) HasEnrollments(ctx context.Context, id string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM session_enrollments WHERE session_id = $1 LIMIT 1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check session enrollments: %w", err)
	}
	return true, nil
}

// Delete removes a session row. Callers must refuse deletion of
// sessions that hold enrollments.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	r.invalidateActive(ctx)
	return nil
}

func (r *SessionRepository) readActiveCache(ctx context.Context) *models.Session {
	if r.cache == nil {
		return nil
	}
	raw, err := r.cache.Get(ctx, activeSessionCacheKey).Bytes()
	if err != nil {
		return nil
	}
	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil
	}
	return &session
}

func (r *SessionRepository) writeActiveCache(ctx context.Context, session *models.Session) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return
	}
	_ = r.cache.Set(ctx, activeSessionCacheKey, raw, r.cacheTTL).Err()
}

func (r *SessionRepository) invalidateActive(ctx context.Context) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Del(ctx, activeSessionCacheKey).Err()
}
