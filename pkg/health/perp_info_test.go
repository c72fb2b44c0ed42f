package health_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marginrisk/pkg/account"
	"marginrisk/pkg/fixedpoint"
	"marginrisk/pkg/health"
)

func oneToOnePerpMarket(idx uint16) *account.PerpMarket {
	return &account.PerpMarket{
		PerpMarketIndex:         idx,
		SettleTokenIndex:        1,
		BaseLotSize:             100,
		MaintBaseAssetWeight:    fixedpoint.FromFloat64(0.9),
		MaintBaseLiabWeight:     fixedpoint.FromFloat64(1.1),
		InitBaseAssetWeight:     fixedpoint.FromFloat64(0.8),
		InitBaseLiabWeight:      fixedpoint.FromFloat64(1.2),
		MaintOverallAssetWeight: fixedpoint.FromFloat64(1.0),
		InitOverallAssetWeight:  fixedpoint.FromFloat64(1.0),
		LongFunding:             fixedpoint.Zero(),
		ShortFunding:            fixedpoint.Zero(),
	}
}

func newAccountWithPerp(t *testing.T, baseLots int64, quoteNative fixedpoint.Q) (*account.Account, *fakeRetriever) {
	t.Helper()
	acct := newTestAccount(t)
	collateral, _, _ := acct.EnsureTokenPosition(1)
	collateral.IndexedPosition = fixedpoint.FromInt64(1000)
	perp, ok := acct.EnsurePerpPosition(0)
	require.True(t, ok)
	perp.BasePositionLots = baseLots
	perp.QuotePositionNative = quoteNative

	retriever := &fakeRetriever{
		banks:  map[uint16]*account.Bank{1: oneToOneBank(1)},
		prices: map[uint16]health.Price{1: unitPrice()},
		markets: map[uint16]*account.PerpMarket{
			0: oneToOnePerpMarket(0),
		},
		perpPrices: map[uint16]health.Price{
			0: unitPrice(),
		},
	}
	return acct, retriever
}

// TestPerpUntrustedMarketIgnoresPositivePnl checks §4.4's "overall asset
// weight 0 implements untrusted markets": a long base position with
// positive unweighted PnL contributes nothing when overall_asset_weight is
// zero.
func TestPerpUntrustedMarketIgnoresPositivePnl(t *testing.T) {
	acct, retriever := newAccountWithPerp(t, 10, fixedpoint.FromInt64(2000))
	retriever.markets[0].InitOverallAssetWeight = fixedpoint.Zero()
	retriever.markets[0].MaintOverallAssetWeight = fixedpoint.Zero()

	cache, err := health.New(acct, retriever)
	require.NoError(t, err)

	require.True(t, cache.PerpInfos[0].UnweightedHealthContribution(health.Maint).Sign() > 0)
	require.True(t, cache.PerpInfos[0].HealthContribution(health.Maint).IsZero())
}

func TestPerpNegativeContributionAlwaysCountsFull(t *testing.T) {
	acct, retriever := newAccountWithPerp(t, -10, fixedpoint.FromInt64(500))
	retriever.markets[0].InitOverallAssetWeight = fixedpoint.Zero()
	retriever.markets[0].MaintOverallAssetWeight = fixedpoint.Zero()

	cache, err := health.New(acct, retriever)
	require.NoError(t, err)

	// short 10 lots * 100 lot size = -1000 base native, valued at the liab
	// price/weight since the position is negative: -1000*1.1 + 500 = -600
	// (to within the 2^-48 rounding of the 1.1 weight).
	require.InDelta(t, float64(-600), cache.PerpInfos[0].HealthContribution(health.Maint).Float64(), 1e-9)
}

// TestPerpZeroBaseZeroOverallWeightContributesZero exercises §8's stated
// edge case: zero base_lots with positive perp quote and zero
// overall_asset_weight contributes zero health, since the unweighted
// contribution is entirely positive and therefore fully scaled away.
func TestPerpZeroBaseZeroOverallWeightContributesZero(t *testing.T) {
	acct, retriever := newAccountWithPerp(t, 0, fixedpoint.FromInt64(250))
	retriever.markets[0].InitOverallAssetWeight = fixedpoint.Zero()
	retriever.markets[0].MaintOverallAssetWeight = fixedpoint.Zero()

	cache, err := health.New(acct, retriever)
	require.NoError(t, err)
	require.True(t, cache.PerpInfos[0].UnweightedHealthContribution(health.Maint).Sign() > 0)
	require.True(t, cache.PerpInfos[0].HealthContribution(health.Maint).IsZero())
}
