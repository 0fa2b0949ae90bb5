package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluateEligibility(t *testing.T) {
	credits := func(v float64) *float64 { return &v }

	require.True(t, EvaluateEligibility(credits(110), 100))
	require.True(t, EvaluateEligibility(credits(100), 100))
	require.False(t, EvaluateEligibility(credits(99.5), 100))
	require.True(t, EvaluateEligibility(credits(0), 0))
}

func TestEvaluateEligibilityMissingSnapshotFailsClosed(t *testing.T) {
	require.False(t, EvaluateEligibility(nil, 100))
	require.False(t, EvaluateEligibility(nil, 0))
}
