package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/intern-bli-api/internal/models"
	appErrors "github.com/noah-isme/intern-bli-api/pkg/errors"
)

var allStatuses = []models.ApplicationStatus{
	models.ApplicationStatusDraft,
	models.ApplicationStatusSubmitted,
	models.ApplicationStatusUnderReview,
	models.ApplicationStatusChangesRequested,
	models.ApplicationStatusApproved,
	models.ApplicationStatusRejected,
	models.ApplicationStatusOfferRejected,
}

func TestNextLegalTransitions(t *testing.T) {
	cases := []struct {
		from  models.ApplicationStatus
		event Event
		to    models.ApplicationStatus
	}{
		{models.ApplicationStatusDraft, EventSubmit, models.ApplicationStatusSubmitted},
		{models.ApplicationStatusSubmitted, EventStartReview, models.ApplicationStatusUnderReview},
		{models.ApplicationStatusUnderReview, EventRequestChanges, models.ApplicationStatusChangesRequested},
		{models.ApplicationStatusUnderReview, EventApprove, models.ApplicationStatusApproved},
		{models.ApplicationStatusChangesRequested, EventResubmit, models.ApplicationStatusUnderReview},
	}
	for _, tc := range cases {
		next, err := Next(tc.from, tc.event)
		require.NoError(t, err, "%s + %s", tc.from, tc.event)
		require.Equal(t, tc.to, next)
	}
}

func TestNextAdministrativeRejectionFromAnyNonTerminal(t *testing.T) {
	for _, status := range allStatuses {
		if status.Terminal() {
			continue
		}
		next, err := Next(status, EventReject)
		require.NoError(t, err, "REJECT from %s", status)
		require.Equal(t, models.ApplicationStatusRejected, next)

		next, err = Next(status, EventRejectOffer)
		require.NoError(t, err, "REJECT_OFFER from %s", status)
		require.Equal(t, models.ApplicationStatusOfferRejected, next)
	}
}

func TestNextTerminalStatusesHaveNoExit(t *testing.T) {
	for _, status := range []models.ApplicationStatus{models.ApplicationStatusRejected, models.ApplicationStatusOfferRejected} {
		for _, event := range Events {
			_, err := Next(status, event)
			require.Error(t, err, "%s + %s", status, event)
		}
	}
}

func TestNextIllegalPairsReportInvalidTransition(t *testing.T) {
	legal := map[models.ApplicationStatus]map[Event]bool{
		models.ApplicationStatusDraft:            {EventSubmit: true},
		models.ApplicationStatusSubmitted:        {EventStartReview: true},
		models.ApplicationStatusUnderReview:      {EventRequestChanges: true, EventApprove: true},
		models.ApplicationStatusChangesRequested: {EventResubmit: true},
	}

	for _, status := range allStatuses {
		for _, event := range Events {
			if !status.Terminal() && (event == EventReject || event == EventRejectOffer) {
				continue
			}
			if legal[status][event] {
				continue
			}
			_, err := Next(status, event)
			require.Error(t, err, "%s + %s", status, event)

			var appErr *appErrors.Error
			require.True(t, errors.As(err, &appErr))
			require.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
		}
	}
}
