package workflow

import (
	"fmt"

	"github.com/noah-isme/intern-bli-api/internal/models"
	appErrors "github.com/noah-isme/intern-bli-api/pkg/errors"
)

// Event is a workflow trigger applied to an application status.
type Event string

const (
	// EventSubmit fires when the student submits the initial packet.
	EventSubmit Event = "SUBMIT"
	// EventStartReview fires on the first review action against a
	// submitted application.
	EventStartReview Event = "START_REVIEW"
	// EventRequestChanges fires when a reviewer requests changes on
	// any document.
	EventRequestChanges Event = "REQUEST_CHANGES"
	// EventResubmit fires when the flagged document is uploaded again.
	EventResubmit Event = "RESUBMIT"
	// EventApprove fires when the terminal packet document is approved.
	EventApprove Event = "APPROVE"
	// EventReject is the administrative rejection override.
	EventReject Event = "REJECT"
	// EventRejectOffer marks the company offer as withdrawn/declined.
	EventRejectOffer Event = "REJECT_OFFER"
)

// Events lists every workflow trigger.
var Events = []Event{
	EventSubmit,
	EventStartReview,
	EventRequestChanges,
	EventResubmit,
	EventApprove,
	EventReject,
	EventRejectOffer,
}

// transitions is the single authoritative table. Any (status, event)
// pair absent here is illegal. The administrative rejections are legal
// from every non-terminal status and are handled in Next so the table
// stays readable.
var transitions = map[models.ApplicationStatus]map[Event]models.ApplicationStatus{
	models.ApplicationStatusDraft: {
		EventSubmit: models.ApplicationStatusSubmitted,
	},
	models.ApplicationStatusSubmitted: {
		EventStartReview: models.ApplicationStatusUnderReview,
	},
	models.ApplicationStatusUnderReview: {
		EventRequestChanges: models.ApplicationStatusChangesRequested,
		EventApprove:        models.ApplicationStatusApproved,
	},
	models.ApplicationStatusChangesRequested: {
		EventResubmit: models.ApplicationStatusUnderReview,
	},
	models.ApplicationStatusApproved: {},
}

// Next returns the status reached by applying event to current. Pairs
// outside the transition table fail with INVALID_TRANSITION naming
// both the current status and the attempted event.
func Next(current models.ApplicationStatus, event Event) (models.ApplicationStatus, error) {
	if !current.Terminal() {
		switch event {
		case EventReject:
			return models.ApplicationStatusRejected, nil
		case EventRejectOffer:
			return models.ApplicationStatusOfferRejected, nil
		}
	}
	if row, ok := transitions[current]; ok {
		if next, ok := row[event]; ok {
			return next, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrInvalidTransition,
		fmt.Sprintf("cannot apply %s while application is %s", event, current))
}
