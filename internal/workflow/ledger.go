package workflow

import (
	"math"

	"github.com/noah-isme/intern-bli-api/internal/models"
)

// Ledger is a read-side projection over an application's document set.
// It is always recomputed from the current records; nothing it derives
// is ever stored.
type Ledger struct {
	activeByType map[models.DocumentType]models.Document
}

// NewLedger builds the projection from the application's full document
// history. Only the active (non-rejected, non-superseded) record per
// type participates.
func NewLedger(docs []models.Document) Ledger {
	active := make(map[models.DocumentType]models.Document, models.RequiredDocumentCount)
	for _, doc := range docs {
		if doc.Active() {
			active[doc.Type] = doc
		}
	}
	return Ledger{activeByType: active}
}

// ActiveByType returns the active record for the given type, if any.
func (l Ledger) ActiveByType(t models.DocumentType) (models.Document, bool) {
	doc, ok := l.activeByType[t]
	return doc, ok
}

// SubmittedTypes returns, in packet order, the types with an active
// record.
func (l Ledger) SubmittedTypes() []models.DocumentType {
	types := make([]models.DocumentType, 0, len(l.activeByType))
	for _, t := range models.AllDocumentTypes {
		if _, ok := l.activeByType[t]; ok {
			types = append(types, t)
		}
	}
	return types
}

// SignedTypes returns the subset of submitted types whose active
// record has been approved or countersigned.
func (l Ledger) SignedTypes() []models.DocumentType {
	types := make([]models.DocumentType, 0, len(l.activeByType))
	for _, t := range models.AllDocumentTypes {
		doc, ok := l.activeByType[t]
		if !ok {
			continue
		}
		if doc.Status == models.DocumentStatusApproved || doc.Status == models.DocumentStatusSigned {
			types = append(types, t)
		}
	}
	return types
}

// CompletionSigned reports whether the completion report carries a
// countersignature.
func (l Ledger) CompletionSigned() bool {
	doc, ok := l.activeByType[models.CompletionDocumentType]
	return ok && doc.Status == models.DocumentStatusSigned
}

// Progress computes the aggregate projection for an application in the
// given stored status. Before approval progress tracks paperwork
// completeness; once the internship is underway it tracks sign-off
// completeness.
func (l Ledger) Progress(status models.ApplicationStatus) models.Progress {
	submitted := l.SubmittedTypes()
	signed := l.SignedTypes()
	progress := models.Progress{
		SubmittedTypes: submitted,
		SignedTypes:    signed,
	}

	switch status {
	case models.ApplicationStatusDraft:
		progress.Percent = 0
	case models.ApplicationStatusApproved:
		if l.CompletionSigned() {
			progress.Label = models.ProgressLabelCompleted
			progress.Percent = percentOfPacket(len(signed))
		} else {
			progress.Label = models.ProgressLabelOngoing
			progress.Percent = percentOfPacket(len(submitted))
		}
	default:
		progress.Percent = percentOfPacket(len(submitted))
	}
	return progress
}

func percentOfPacket(count int) int {
	return int(math.Round(float64(count) / float64(models.RequiredDocumentCount) * 100))
}
