package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/intern-bli-api/internal/models"
	"github.com/noah-isme/intern-bli-api/pkg/export"
	"github.com/noah-isme/intern-bli-api/pkg/jobs"
)

type notificationApplicationStore interface {
	FindByID(ctx context.Context, id string) (*models.Application, error)
	ListDocuments(ctx context.Context, applicationID string) ([]models.Document, error)
}

type notificationUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type notificationSessionStore interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
}

// NotificationService runs post-transition side effects in the
// background. An approval enqueues a job that renders the approval
// summary document; a failing job is retried and logged but never
// affects the transition that produced it.
type NotificationService struct {
	apps     notificationApplicationStore
	users    notificationUserStore
	sessions notificationSessionStore
	files    signaturePayloadStore
	exporter *export.PDFExporter
	queue    *jobs.Queue
	logger   *zap.Logger
}

// NewNotificationService builds the service and its backing queue.
func NewNotificationService(apps notificationApplicationStore, users notificationUserStore, sessions notificationSessionStore, files signaturePayloadStore, cfg jobs.QueueConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		apps:     apps,
		users:    users,
		sessions: sessions,
		files:    files,
		exporter: export.NewPDFExporter(),
		logger:   logger,
	}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	s.queue = jobs.NewQueue("notifications", s.handle, cfg)
	return s
}

// Start begins background processing.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// ApplicationApproved enqueues the approval summary job. Errors are
// logged only; callers never wait on the queue.
func (s *NotificationService) ApplicationApproved(applicationID string) {
	if err := s.queue.Enqueue(jobs.Job{Type: "application.approved", Payload: applicationID}); err != nil {
		s.logger.Warn("failed to enqueue approval notification",
			zap.String("application_id", applicationID), zap.Error(err))
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	applicationID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}

	app, err := s.apps.FindByID(ctx, applicationID)
	if err != nil {
		return fmt.Errorf("load application: %w", err)
	}
	student, err := s.users.FindByID(ctx, app.StudentID)
	if err != nil {
		return fmt.Errorf("load student: %w", err)
	}
	session, err := s.sessions.FindByID(ctx, app.SessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	docs, err := s.apps.ListDocuments(ctx, app.ID)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	summary := export.ApprovalSummary{
		ApplicationID: app.ID,
		StudentName:   student.FullName,
		SessionName:   session.Name,
		CompanyName:   app.CompanyName,
		Period:        fmt.Sprintf("%s to %s", app.StartDate.Format("2006-01-02"), app.EndDate.Format("2006-01-02")),
		Status:        string(app.Status),
	}
	for _, doc := range docs {
		if !doc.Active() {
			continue
		}
		summary.Documents = append(summary.Documents, export.DocumentRow{
			Type:     string(doc.Type),
			Status:   string(doc.Status),
			FileName: doc.FileName,
		})
	}

	rendered, err := s.exporter.Render(summary)
	if err != nil {
		return fmt.Errorf("render approval summary: %w", err)
	}
	ref := fmt.Sprintf("applications/%s/approval_summary.pdf", app.ID)
	if _, err := s.files.Save(ref, rendered); err != nil {
		return fmt.Errorf("store approval summary: %w", err)
	}

	s.logger.Info("approval summary rendered",
		zap.String("application_id", app.ID),
		zap.String("ref", ref))
	return nil
}
