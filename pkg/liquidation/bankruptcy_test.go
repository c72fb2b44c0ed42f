package liquidation_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marginrisk/pkg/account"
	"marginrisk/pkg/fixedpoint"
	"marginrisk/pkg/health"
	"marginrisk/pkg/liquidation"
)

func bankruptcyMarket() *account.PerpMarket {
	m := basicMarket()
	m.BaseLiquidationFee = fixedpoint.Zero()
	return m
}

func bankruptcyCache(settleBalance, quote fixedpoint.Q) *health.Cache {
	return &health.Cache{
		TokenInfos: []health.TokenInfo{
			{
				TokenIndex:            1,
				Balance:               settleBalance,
				Prices:                health.Price{Oracle: fixedpoint.FromInt64(1), Stable: fixedpoint.FromInt64(1)},
				MaintAssetWeight:      fixedpoint.FromFloat64(1.0),
				MaintLiabWeight:       fixedpoint.FromFloat64(1.0),
				InitAssetWeight:       fixedpoint.FromFloat64(1.0),
				InitLiabWeight:        fixedpoint.FromFloat64(1.0),
				InitScaledAssetWeight: fixedpoint.FromFloat64(1.0),
				InitScaledLiabWeight:  fixedpoint.FromFloat64(1.0),
			},
		},
		PerpInfos: []health.PerpInfo{
			{
				PerpMarketIndex:     0,
				BaseLotSize:         100,
				BaseLots:            0,
				QuotePositionNative: quote,
				Prices:              health.Price{Oracle: fixedpoint.FromInt64(1), Stable: fixedpoint.FromInt64(1)},
			},
		},
		BeingLiquidated: true,
	}
}

// TestBankruptcySettlesFullyWithoutBankruptcy covers the plain settlement
// path (§4.8 step 1): ample collateral backs the settle token so the whole
// negative PnL clears at zero health cost and step 2 never fires.
func TestBankruptcySettlesFullyWithoutBankruptcy(t *testing.T) {
	market := bankruptcyMarket()
	bank := basicSettleBank()

	liqee := perpPosition(0, fixedpoint.FromInt64(-500))
	liqee.RecurringSettleAllowance = fixedpoint.FromInt64(10000)
	liqor := perpPosition(0, fixedpoint.Zero())

	cache := bankruptcyCache(fixedpoint.Zero(), fixedpoint.FromInt64(-500))
	cache.TokenInfos = append(cache.TokenInfos, health.TokenInfo{
		TokenIndex:            3,
		Balance:               fixedpoint.FromInt64(2000),
		Prices:                health.Price{Oracle: fixedpoint.FromInt64(1), Stable: fixedpoint.FromInt64(1)},
		MaintAssetWeight:      fixedpoint.FromFloat64(1.0),
		MaintLiabWeight:       fixedpoint.FromFloat64(1.0),
		InitAssetWeight:       fixedpoint.FromFloat64(1.0),
		InitLiabWeight:        fixedpoint.FromFloat64(1.0),
		InitScaledAssetWeight: fixedpoint.FromFloat64(1.0),
		InitScaledLiabWeight:  fixedpoint.FromFloat64(1.0),
	})
	liqeeLiqEndBefore := cache.Health(health.LiquidationEnd)

	result, err := liquidation.Bankruptcy(liquidation.BankruptcyInput{
		Group: addr(1), Liqor: addr(2), Liqee: addr(3),
		Market:                 market,
		SettleBank:             bank,
		InsuranceVaultBalance:  fixedpoint.Zero(),
		SettleTokenOraclePrice: fixedpoint.FromInt64(1),
		InsuranceOraclePrice:   fixedpoint.FromInt64(1),
		PerpOraclePrice:        fixedpoint.FromInt64(1),
		LiqeePosition:          liqee,
		LiqorPosition:          liqor,
		LiqeeTokenPosition:     &account.TokenPosition{TokenIndex: 1},
		LiqorTokenPosition:     &account.TokenPosition{TokenIndex: 1},
		LiqorInsuranceToken:    &account.TokenPosition{TokenIndex: 1},
		LiqeeHealth:             cache,
		LiqeeLiqEndHealthBefore: liqeeLiqEndBefore,
		MaxLiabTransfer:         fixedpoint.FromInt64(1000),
	})
	require.NoError(t, err)

	require.True(t, result.Settlement.Cmp(fixedpoint.FromInt64(500)) == 0, "got %v", result.Settlement.Float64())
	require.True(t, result.InsuranceTransfer.IsZero())
	require.True(t, result.SocializedLoss.IsZero())
}

// TestBankruptcyDrawsInsuranceFund covers step 2 when the settle token has
// no excess collateral backing it but the market's insurance fund is large
// enough to absorb the whole remaining negative PnL.
func TestBankruptcyDrawsInsuranceFund(t *testing.T) {
	market := bankruptcyMarket()
	market.GroupInsuranceFund = true
	bank := basicSettleBank()

	liqee := perpPosition(0, fixedpoint.FromInt64(-1000))
	liqor := perpPosition(0, fixedpoint.Zero())

	cache := bankruptcyCache(fixedpoint.Zero(), fixedpoint.FromInt64(-1000))
	liqeeLiqEndBefore := cache.Health(health.LiquidationEnd)
	require.True(t, liqeeLiqEndBefore.Cmp(fixedpoint.FromInt64(-1000)) == 0)

	result, err := liquidation.Bankruptcy(liquidation.BankruptcyInput{
		Group: addr(1), Liqor: addr(2), Liqee: addr(3),
		Market:                 market,
		SettleBank:             bank,
		InsuranceVaultBalance:  fixedpoint.FromInt64(2000),
		SettleTokenOraclePrice: fixedpoint.FromInt64(1),
		InsuranceOraclePrice:   fixedpoint.FromInt64(1),
		PerpOraclePrice:        fixedpoint.FromInt64(1),
		LiqeePosition:          liqee,
		LiqorPosition:          liqor,
		LiqeeTokenPosition:     &account.TokenPosition{TokenIndex: 1},
		LiqorTokenPosition:     &account.TokenPosition{TokenIndex: 1},
		LiqorInsuranceToken:    &account.TokenPosition{TokenIndex: 1},
		LiqeeHealth:             cache,
		LiqeeLiqEndHealthBefore: liqeeLiqEndBefore,
		MaxLiabTransfer:         fixedpoint.FromInt64(1000),
	})
	require.NoError(t, err)

	require.True(t, result.Settlement.IsZero())
	require.True(t, result.InsuranceTransfer.Cmp(fixedpoint.FromInt64(1000)) == 0, "got %v", result.InsuranceTransfer.Float64())
	require.True(t, result.SocializedLoss.IsZero())
}

// TestBankruptcySocializesLossWhenInsuranceFundEmpty covers the last-resort
// path: no insurance fund at all, so the remaining negative PnL is spread
// across the market's funding indexes (§4.8's socialize_loss).
func TestBankruptcySocializesLossWhenInsuranceFundEmpty(t *testing.T) {
	market := bankruptcyMarket()
	market.GroupInsuranceFund = false
	market.OpenInterest = 1000
	bank := basicSettleBank()

	liqee := perpPosition(0, fixedpoint.FromInt64(-1000))
	liqor := perpPosition(0, fixedpoint.Zero())

	cache := bankruptcyCache(fixedpoint.Zero(), fixedpoint.FromInt64(-1000))
	liqeeLiqEndBefore := cache.Health(health.LiquidationEnd)

	result, err := liquidation.Bankruptcy(liquidation.BankruptcyInput{
		Group: addr(1), Liqor: addr(2), Liqee: addr(3),
		Market:                 market,
		SettleBank:             bank,
		InsuranceVaultBalance:  fixedpoint.Zero(),
		SettleTokenOraclePrice: fixedpoint.FromInt64(1),
		InsuranceOraclePrice:   fixedpoint.FromInt64(1),
		PerpOraclePrice:        fixedpoint.FromInt64(1),
		LiqeePosition:          liqee,
		LiqorPosition:          liqor,
		LiqeeTokenPosition:     &account.TokenPosition{TokenIndex: 1},
		LiqorTokenPosition:     &account.TokenPosition{TokenIndex: 1},
		LiqorInsuranceToken:    &account.TokenPosition{TokenIndex: 1},
		LiqeeHealth:             cache,
		LiqeeLiqEndHealthBefore: liqeeLiqEndBefore,
		MaxLiabTransfer:         fixedpoint.FromInt64(1000),
	})
	require.NoError(t, err)

	require.True(t, result.Settlement.IsZero())
	require.True(t, result.InsuranceTransfer.IsZero())
	require.True(t, result.SocializedLoss.Cmp(fixedpoint.FromInt64(1000)) == 0, "got %v", result.SocializedLoss.Float64())

	// 1000 of loss over 1000 lots of open interest: longs' funding index
	// rises by 1 and shorts' falls by 1, so both sides pay on settlement.
	require.True(t, result.EndingLongFunding.Cmp(fixedpoint.FromInt64(1)) == 0)
	require.True(t, result.EndingShortFunding.Cmp(fixedpoint.FromInt64(-1)) == 0)
}

// TestBankruptcyRejectsZeroBaseLotsPrecondition covers §4.8's precondition
// that the base position has already been reduced to zero.
func TestBankruptcyRejectsZeroBaseLotsPrecondition(t *testing.T) {
	market := bankruptcyMarket()
	bank := basicSettleBank()

	liqee := perpPosition(5, fixedpoint.FromInt64(-1000))
	liqor := perpPosition(0, fixedpoint.Zero())

	cache := bankruptcyCache(fixedpoint.Zero(), fixedpoint.FromInt64(-1000))
	cache.PerpInfos[0].BaseLots = 5

	_, err := liquidation.Bankruptcy(liquidation.BankruptcyInput{
		Group: addr(1), Liqor: addr(2), Liqee: addr(3),
		Market:                 market,
		SettleBank:             bank,
		SettleTokenOraclePrice: fixedpoint.FromInt64(1),
		InsuranceOraclePrice:   fixedpoint.FromInt64(1),
		PerpOraclePrice:        fixedpoint.FromInt64(1),
		LiqeePosition:          liqee,
		LiqorPosition:          liqor,
		LiqeeTokenPosition:     &account.TokenPosition{TokenIndex: 1},
		LiqorTokenPosition:     &account.TokenPosition{TokenIndex: 1},
		LiqeeHealth:             cache,
		LiqeeLiqEndHealthBefore: fixedpoint.FromInt64(-1000),
		MaxLiabTransfer:         fixedpoint.FromInt64(1000),
	})
	require.Error(t, err)
}
