package health_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marginrisk/pkg/fixedpoint"
	"marginrisk/pkg/health"
)

func TestMaxPerpForHealthRatioZeroWhenAlreadyBelowThreshold(t *testing.T) {
	acct, retriever := newAccountWithPerp(t, -50, fixedpoint.FromInt64(-9000))
	cache, err := health.New(acct, retriever)
	require.NoError(t, err)
	require.True(t, cache.HealthRatio(health.Maint).LessThan(fixedpoint.Zero()))

	lots, err := cache.MaxPerpForHealthRatio(health.Maint, 0, -1, fixedpoint.FromInt64(1), fixedpoint.FromInt64(50))
	require.NoError(t, err)
	require.Equal(t, int64(0), lots)
}

func TestMaxPerpForHealthRatioPositiveWhenHealthy(t *testing.T) {
	acct, retriever := newAccountWithPerp(t, 0, fixedpoint.Zero())
	cache, err := health.New(acct, retriever)
	require.NoError(t, err)

	lots, err := cache.MaxPerpForHealthRatio(health.Maint, 0, 1, fixedpoint.FromInt64(1), fixedpoint.FromInt64(50))
	require.NoError(t, err)
	require.True(t, lots > 0)
}

func TestMaxPerpForHealthRatioRejectsUnknownMarket(t *testing.T) {
	acct, retriever := newAccountWithPerp(t, 0, fixedpoint.Zero())
	cache, err := health.New(acct, retriever)
	require.NoError(t, err)

	_, err = cache.MaxPerpForHealthRatio(health.Maint, 7, 1, fixedpoint.FromInt64(1), fixedpoint.FromInt64(50))
	require.Error(t, err)
}

func TestMaxPerpForHealthRatioRejectsNonPositivePrice(t *testing.T) {
	acct, retriever := newAccountWithPerp(t, 0, fixedpoint.Zero())
	cache, err := health.New(acct, retriever)
	require.NoError(t, err)

	_, err = cache.MaxPerpForHealthRatio(health.Maint, 0, 1, fixedpoint.Zero(), fixedpoint.FromInt64(50))
	require.Error(t, err)
}
