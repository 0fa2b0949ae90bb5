package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/intern-bli-api/internal/dto"
	"github.com/noah-isme/intern-bli-api/internal/models"
	"github.com/noah-isme/intern-bli-api/internal/repository"
	"github.com/noah-isme/intern-bli-api/internal/workflow"
	appErrors "github.com/noah-isme/intern-bli-api/pkg/errors"
)

type reviewStore interface {
	FindByID(ctx context.Context, id string) (*models.Application, error)
	FindDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListReviews(ctx context.Context, applicationID string) ([]models.Review, error)
	ApplyReviewDecision(ctx context.Context, params repository.ReviewDecisionParams) error
}

type reviewObserver interface {
	ObserveReview(decision string)
	ObserveTransition(from, to string)
}

type ApprovalNotifier interface {
	ApplicationApproved(applicationID string)
}

// ReviewService records reviewer verdicts on documents and derives the
// application transitions they trigger. The review row, the document
// status and any application move commit in one transaction, review
// first, so a recorded decision always explains the state it produced.
type ReviewService struct {
	repo      reviewStore
	gate      participantGate
	audit     auditStore
	metrics   reviewObserver
	notifier  ApprovalNotifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewReviewService creates a new review service instance.
func NewReviewService(repo reviewStore, gate participantGate, audit auditStore, metrics reviewObserver, notifier ApprovalNotifier, validate *validator.Validate, logger *zap.Logger) *ReviewService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewService{repo: repo, gate: gate, audit: audit, metrics: metrics, notifier: notifier, validator: validate, logger: logger}
}

// Decide applies one reviewer verdict to a document. The first
// decision against a submitted application also starts the review;
// approving the training agreement while the packet is under review
// approves the application. Rejecting a document never rejects the
// application, and decisions on a document of an approved application
// leave the application untouched. Decisions are refused while the
// owning student's enrollment is ineligible or no session is active;
// a roster change mid-review freezes the application until it is
// resolved.
func (s *ReviewService) Decide(ctx context.Context, documentID string, req dto.ReviewDecisionRequest, reviewer *models.JWTClaims, meta models.RequestMeta) (*dto.ReviewOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	if !req.Decision.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown decision %s", req.Decision))
	}
	if req.Decision == models.ReviewDecisionRequestChanges && req.Comments == "" {
		return nil, appErrors.ErrMissingRequiredComment
	}

	doc, err := s.repo.FindDocumentByID(ctx, documentID)
	if err != nil {
		if repository.IsNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if !doc.Active() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("document %s is %s and no longer reviewable", doc.ID, doc.Status))
	}

	app, err := s.repo.FindByID(ctx, doc.ApplicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if reviewer == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if reviewer.UserID == app.StudentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "reviewers may not review their own application")
	}
	if app.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("application %s is %s and no longer reviewable", app.ID, app.Status))
	}
	if _, _, err := s.gate.Authorize(ctx, app.StudentID); err != nil {
		return nil, err
	}

	docStatus := documentStatusFor(req.Decision)
	appFrom, appTo, err := applicationMoveFor(app.Status, req.Decision, doc.Type)
	if err != nil {
		return nil, err
	}

	review := &models.Review{
		ApplicationID: app.ID,
		DocumentID:    doc.ID,
		Decision:      req.Decision,
		ReviewerID:    reviewer.UserID,
	}
	if req.Comments != "" {
		comments := req.Comments
		review.Comments = &comments
	}

	if err := s.repo.ApplyReviewDecision(ctx, repository.ReviewDecisionParams{
		Review:          review,
		DocumentVersion: doc.Version,
		DocumentStatus:  docStatus,
		StatusFrom:      appFrom,
		StatusTo:        appTo,
	}); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ObserveReview(string(req.Decision))
		if appTo != "" && appTo != appFrom {
			s.metrics.ObserveTransition(string(appFrom), string(appTo))
		}
	}

	finalStatus := app.Status
	if appTo != "" {
		finalStatus = appTo
	}
	if finalStatus == models.ApplicationStatusApproved && app.Status != models.ApplicationStatusApproved && s.notifier != nil {
		s.notifier.ApplicationApproved(app.ID)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"document_id":        doc.ID,
		"decision":           req.Decision,
		"document_status":    docStatus,
		"application_status": finalStatus,
	})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &reviewer.UserID,
		Action:     models.AuditActionReviewDecision,
		Resource:   "reviews",
		ResourceID: &review.ID,
		NewValues:  payload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record review audit log", zap.Error(err))
	}

	return &dto.ReviewOutcome{
		Review:            *review,
		DocumentStatus:    docStatus,
		ApplicationStatus: finalStatus,
	}, nil
}

// ListByApplication returns the append-only decision history.
func (s *ReviewService) ListByApplication(ctx context.Context, applicationID string) ([]models.Review, error) {
	reviews, err := s.repo.ListReviews(ctx, applicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reviews")
	}
	return reviews, nil
}

func documentStatusFor(decision models.ReviewDecision) models.DocumentStatus {
	switch decision {
	case models.ReviewDecisionApprove:
		return models.DocumentStatusApproved
	case models.ReviewDecisionRequestChanges:
		return models.DocumentStatusChangesRequested
	default:
		return models.DocumentStatusRejected
	}
}

// applicationMoveFor derives the application transition a document
// decision triggers, if any. The first decision against a SUBMITTED
// application chains START_REVIEW before the decision's own event; the
// two hops collapse into one guarded update.
func applicationMoveFor(status models.ApplicationStatus, decision models.ReviewDecision, docType models.DocumentType) (models.ApplicationStatus, models.ApplicationStatus, error) {
	current := status
	if current == models.ApplicationStatusSubmitted {
		next, err := workflow.Next(current, workflow.EventStartReview)
		if err != nil {
			return "", "", err
		}
		current = next
	}
	if current != models.ApplicationStatusUnderReview {
		// Decisions outside the packet review phase touch only the
		// document.
		return "", "", nil
	}

	switch decision {
	case models.ReviewDecisionRequestChanges:
		next, err := workflow.Next(current, workflow.EventRequestChanges)
		if err != nil {
			return "", "", err
		}
		return status, next, nil
	case models.ReviewDecisionApprove:
		if docType != models.PacketTerminalType {
			if current != status {
				return status, current, nil
			}
			return "", "", nil
		}
		next, err := workflow.Next(current, workflow.EventApprove)
		if err != nil {
			return "", "", err
		}
		return status, next, nil
	default:
		// Rejecting a document never rejects the application, but the
		// first decision still starts the review.
		if current != status {
			return status, current, nil
		}
		return "", "", nil
	}
}
