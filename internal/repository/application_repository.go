package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/intern-bli-api/internal/models"
	appErrors "github.com/noah-isme/intern-bli-api/pkg/errors"
)

const applicationColumns = `id, enrollment_id, student_id, session_id, status, company_name, company_address,
        start_date, end_date, created_at, updated_at`

const documentColumns = `id, application_id, type, status, file_ref, file_name, media_type, version,
        uploaded_by, signature_role, signature_ref, signed_at, created_at, updated_at`

const reviewColumns = `id, application_id, document_id, decision, comments, reviewer_id, created_at`

// ApplicationRepository persists the application aggregate: the
// application row plus the documents and reviews it exclusively owns.
// Workflow mutations run as single transactions so a review record,
// the document status, and the application status can never diverge.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create persists a new draft application.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	app.CreatedAt = now
	app.UpdatedAt = now
	const query = `INSERT INTO applications (id, enrollment_id, student_id, session_id, status, company_name, company_address,
        start_date, end_date, created_at, updated_at)
        VALUES (:id, :enrollment_id, :student_id, :session_id, :status, :company_name, :company_address,
        :start_date, :end_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// FindByID returns an application by its ID.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE id = $1`, applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// FindNonTerminalByEnrollment returns the open application for an
// enrollment, if any. At most one exists per (student, session).
func (r *ApplicationRepository) FindNonTerminalByEnrollment(ctx context.Context, enrollmentID string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE enrollment_id = $1 AND status NOT IN ($2, $3) LIMIT 1`, applicationColumns)
	var app models.Application
	err := r.db.GetContext(ctx, &app, query, enrollmentID,
		models.ApplicationStatusRejected, models.ApplicationStatusOfferRejected)
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// List returns applications filtered by the provided criteria.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	conditions := []string{}
	args := []interface{}{}
	if filter.SessionID != "" {
		conditions = append(conditions, fmt.Sprintf("session_id = $%d", len(args)+1))
		args = append(args, filter.SessionID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
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

	query := fmt.Sprintf(`SELECT %s FROM applications%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		applicationColumns, clause, size, offset)
	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM applications"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return apps, total, nil
}

// UpdateStatus moves an application from one status to another. The
// update is guarded by the expected current status; zero affected rows
// means another operation won the race and the caller sees a storage
// conflict.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, id string, from, to models.ApplicationStatus) error {
	const query = `UPDATE applications SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return appErrors.Clone(appErrors.ErrStorageConflict,
			fmt.Sprintf("application %s is no longer %s", id, from))
	}
	return nil
}

// ListDocuments returns the full document history for an application.
func (r *ApplicationRepository) ListDocuments(ctx context.Context, applicationID string) ([]models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE application_id = $1 ORDER BY created_at`, documentColumns)
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, applicationID); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// FindDocumentByID returns a document by its ID.
func (r *ApplicationRepository) FindDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE id = $1`, documentColumns)
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListReviews returns the append-only review trail for an application.
func (r *ApplicationRepository) ListReviews(ctx context.Context, applicationID string) ([]models.Review, error) {
	query := fmt.Sprintf(`SELECT %s FROM reviews WHERE application_id = $1 ORDER BY created_at`, reviewColumns)
	var reviews []models.Review
	if err := r.db.SelectContext(ctx, &reviews, query, applicationID); err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}

// SubmitDocumentParams describes an upload or resubmission. When the
// upload also moves the application (resubmission of a flagged
// document), StatusFrom/StatusTo carry the transition.
type SubmitDocumentParams struct {
	Document   *models.Document
	StatusFrom models.ApplicationStatus
	StatusTo   models.ApplicationStatus
}

// SubmitDocument supersedes any active record of the same type and
// inserts the new one atomically, optionally advancing the application
// status in the same transaction.
func (r *ApplicationRepository) SubmitDocument(ctx context.Context, params SubmitDocumentParams) error {
	doc := params.Document
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Version == 0 {
		doc.Version = 1
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin submit document: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const supersede = `UPDATE documents SET status = $3, updated_at = $4
        WHERE application_id = $1 AND type = $2 AND status NOT IN ($5, $6)`
	if _, err := tx.ExecContext(ctx, supersede, doc.ApplicationID, doc.Type,
		models.DocumentStatusSuperseded, now,
		models.DocumentStatusRejected, models.DocumentStatusSuperseded); err != nil {
		return fmt.Errorf("supersede document: %w", err)
	}

	const insert = `INSERT INTO documents (id, application_id, type, status, file_ref, file_name, media_type, version,
        uploaded_by, signature_role, signature_ref, signed_at, created_at, updated_at)
        VALUES (:id, :application_id, :type, :status, :file_ref, :file_name, :media_type, :version,
        :uploaded_by, :signature_role, :signature_ref, :signed_at, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insert, doc); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	if params.StatusTo != "" && params.StatusTo != params.StatusFrom {
		const move = `UPDATE applications SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
		result, err := tx.ExecContext(ctx, move, doc.ApplicationID, params.StatusFrom, params.StatusTo, now)
		if err != nil {
			return fmt.Errorf("advance application: %w", err)
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			return appErrors.Clone(appErrors.ErrStorageConflict,
				fmt.Sprintf("application %s is no longer %s", doc.ApplicationID, params.StatusFrom))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit submit document: %w", err)
	}
	return nil
}

// ReviewDecisionParams describes a reviewer decision applied to one
// document and, transitively, the owning application.
type ReviewDecisionParams struct {
	Review          *models.Review
	DocumentVersion int
	DocumentStatus  models.DocumentStatus
	StatusFrom      models.ApplicationStatus
	StatusTo        models.ApplicationStatus
}

// ApplyReviewDecision appends the review record and applies the
// document and application status mutations as one transaction. The
// review insert runs first so a failure can never leave a status
// change without its audit entry; the document update is guarded by
// the version the reviewer read, turning concurrent decisions into a
// storage conflict instead of a silent overwrite.
func (r *ApplicationRepository) ApplyReviewDecision(ctx context.Context, params ReviewDecisionParams) error {
	review := params.Review
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	review.CreatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin review decision: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT INTO reviews (id, application_id, document_id, decision, comments, reviewer_id, created_at)
        VALUES (:id, :application_id, :document_id, :decision, :comments, :reviewer_id, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, review); err != nil {
		return fmt.Errorf("insert review: %w", err)
	}

	const updateDoc = `UPDATE documents SET status = $3, version = version + 1, updated_at = $4
        WHERE id = $1 AND version = $2`
	result, err := tx.ExecContext(ctx, updateDoc, review.DocumentID, params.DocumentVersion, params.DocumentStatus, now)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return appErrors.Clone(appErrors.ErrStorageConflict,
			fmt.Sprintf("document %s was reviewed concurrently", review.DocumentID))
	}

	if params.StatusTo != "" && params.StatusTo != params.StatusFrom {
		const move = `UPDATE applications SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
		result, err := tx.ExecContext(ctx, move, review.ApplicationID, params.StatusFrom, params.StatusTo, now)
		if err != nil {
			return fmt.Errorf("advance application: %w", err)
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			return appErrors.Clone(appErrors.ErrStorageConflict,
				fmt.Sprintf("application %s is no longer %s", review.ApplicationID, params.StatusFrom))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit review decision: %w", err)
	}
	return nil
}

// AttachDocumentSignature records signature metadata on an approved
// document and flips its status to SIGNED, guarded by the version the
// signer read.
func (r *ApplicationRepository) AttachDocumentSignature(ctx context.Context, documentID string, version int, role models.SignerRole, ref string, signedAt time.Time) error {
	const query = `UPDATE documents SET status = $5, signature_role = $3, signature_ref = $4, signed_at = $6,
        version = version + 1, updated_at = $7
        WHERE id = $1 AND version = $2 AND status = $8`
	result, err := r.db.ExecContext(ctx, query, documentID, version, role, ref,
		models.DocumentStatusSigned, signedAt, time.Now().UTC(), models.DocumentStatusApproved)
	if err != nil {
		return fmt.Errorf("attach document signature: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return appErrors.Clone(appErrors.ErrStorageConflict,
			fmt.Sprintf("document %s is not signable at the read version", documentID))
	}
	return nil
}

// IsNoRows reports whether err is the driver's empty-result sentinel.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
