package platform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second, MaxDelay: 4 * time.Second}

	require.Equal(t, time.Second, policy.Backoff(1))
	require.Equal(t, 2*time.Second, policy.Backoff(2))
	require.Equal(t, 4*time.Second, policy.Backoff(3))
	require.Equal(t, 4*time.Second, policy.Backoff(4))
}

func TestBackoffJitterSpread(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second, MaxDelay: time.Minute, JitterFraction: 0.5}

	low := policy.WithRandom(func() float64 { return 0 }).Backoff(1)
	high := policy.WithRandom(func() float64 { return 1 }).Backoff(1)
	mid := policy.WithRandom(func() float64 { return 0.5 }).Backoff(1)

	require.Equal(t, 500*time.Millisecond, low)
	require.Equal(t, 1500*time.Millisecond, high)
	require.Equal(t, time.Second, mid)
}

func TestBackoffTreatsBadAttemptAsFirst(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second, MaxDelay: time.Minute}

	require.Equal(t, time.Second, policy.Backoff(0))
	require.Equal(t, time.Second, policy.Backoff(-3))
}

func TestDefaultRetryPolicyIsBounded(t *testing.T) {
	policy := DefaultRetryPolicy()

	require.Equal(t, 8, policy.MaxAttempts)
	require.Equal(t, 5*time.Minute, policy.MaxElapsed)
	require.Greater(t, policy.BaseDelay, time.Duration(0))
	require.Greater(t, policy.MaxDelay, policy.BaseDelay)
}
