// Package liquidation implements the perp liquidation engine: pure functions
// over pkg/account and pkg/health state that reduce a liquidatable account's
// perp base position, take over its positive PnL, settle its negative PnL,
// and — as a last resort — draw the insurance fund or socialize loss across
// the market. Every function here mutates the accounts and health cache
// passed to it in place and performs no I/O, matching the on-chain
// instruction's synchronous, non-suspendable execution model (§5).
package liquidation

import (
	"marginrisk/pkg/account"
	"marginrisk/pkg/fixedpoint"
	"marginrisk/pkg/health"
	"marginrisk/pkg/identity"
	"marginrisk/pkg/riskerr"
)

// BaseOrPositivePnlInput is the argument set for BaseOrPositivePnl, mirroring
// the on-chain instruction's fixed account list plus its typed argument
// struct (§6).
type BaseOrPositivePnlInput struct {
	Group identity.Address
	Liqor identity.Address
	Liqee identity.Address

	Market     *account.PerpMarket
	SettleBank *account.Bank

	LiqeePosition *account.PerpPosition
	LiqorPosition *account.PerpPosition

	LiqeeTokenPosition *account.TokenPosition
	LiqorTokenPosition *account.TokenPosition

	LiqeeHealth      *health.Cache
	LiqeeLiqEndHealthBefore fixedpoint.Q

	NowTs int64

	// MaxBaseTransfer must share liqee's base position sign (or be zero);
	// it is clamped to the liqee's base position magnitude internally.
	MaxBaseTransfer int64
	// MaxPnlTransfer bounds the settle-token value of positive PnL the
	// liqor may take over in phase 4.
	MaxPnlTransfer fixedpoint.Q
}

// BaseOrPositivePnlResult mirrors the on-chain instruction's returned tuple
// and is the payload of PerpLiqBaseOrPositivePnlLog (§6).
type BaseOrPositivePnlResult struct {
	BaseTransfer           int64
	QuoteTransfer          fixedpoint.Q
	PnlTransfer            fixedpoint.Q
	PnlSettleLimitTransfer fixedpoint.Q
}

// BaseOrPositivePnl runs the four-phase liquidation of §4.7: base position
// reduction (phases 1-3) followed by a positive-PnL takeover (phase 4). It
// asserts the liq-end health monotonicity postcondition before returning.
func BaseOrPositivePnl(in BaseOrPositivePnlInput) (*BaseOrPositivePnlResult, error) {
	liqeeBaseLots := in.LiqeePosition.BasePositionLots
	if liqeeBaseLots > 0 && in.MaxBaseTransfer < 0 {
		return nil, riskerr.Wrap(riskerr.KindInputDomain, riskerr.ErrMaxBaseTransferSignMismatch)
	}
	if liqeeBaseLots <= 0 && in.MaxBaseTransfer > 0 {
		return nil, riskerr.Wrap(riskerr.KindInputDomain, riskerr.ErrMaxBaseTransferSignMismatch)
	}
	if err := in.LiqeeHealth.RequireAfterPhase1Liquidation(); err != nil {
		return nil, err
	}
	if in.LiqeePosition.HasOpenTakerFills() {
		return nil, riskerr.Wrap(riskerr.KindStateGate, riskerr.ErrHasOpenPerpTakerFills)
	}

	perpIdx, ok := in.LiqeeHealth.PerpInfoIndex(in.Market.PerpMarketIndex)
	if !ok {
		return nil, riskerr.Wrap(riskerr.KindInputDomain, riskerr.ErrPerpPositionDoesNotExist)
	}
	perpInfo := &in.LiqeeHealth.PerpInfos[perpIdx]
	oraclePrice := perpInfo.Prices.Oracle
	baseLotSize := fixedpoint.FromInt64(in.Market.BaseLotSize)
	oraclePricePerLot := baseLotSize.Mul(oraclePrice)

	liqeePositiveSettleLimit := in.LiqeePosition.SettleLimit(in.Market, perpInfo.Prices.Stable)

	maxPnlTransfer := in.MaxPnlTransfer

	var (
		direction              int64
		feeFactor              fixedpoint.Q
		unweightedHealthPerLot fixedpoint.Q
	)
	if liqeeBaseLots > 0 {
		direction = -1
		feeFactor = fixedpoint.FromInt64(1).Sub(in.Market.BaseLiquidationFee)
		assetPrice := perpInfo.Prices.Asset(health.LiquidationEnd)
		unweightedHealthPerLot = assetPrice.Neg().Mul(baseLotSize).Mul(in.Market.InitBaseAssetWeight).
			Add(oraclePricePerLot.Mul(feeFactor))
	} else {
		direction = 1
		feeFactor = fixedpoint.FromInt64(1).Add(in.Market.BaseLiquidationFee)
		liabPrice := perpInfo.Prices.Liab(health.LiquidationEnd)
		unweightedHealthPerLot = liabPrice.Mul(baseLotSize).Mul(in.Market.InitBaseLiabWeight).
			Sub(oraclePricePerLot.Mul(feeFactor))
	}

	spotGainPerSettled := fixedpoint.FromInt64(1).Sub(in.Market.PositivePnlLiquidationFee)
	initOverallAssetWeight := in.Market.InitOverallAssetWeight

	expectedPerpHealth := func(unweighted fixedpoint.Q) fixedpoint.Q {
		switch {
		case unweighted.Sign() < 0:
			return unweighted
		case unweighted.LessThan(maxPnlTransfer):
			return unweighted.Mul(spotGainPerSettled)
		default:
			unsettled := unweighted.Sub(maxPnlTransfer)
			return maxPnlTransfer.Mul(spotGainPerSettled).Add(unsettled.Mul(initOverallAssetWeight))
		}
	}

	currentUnweightedPerpHealth := perpInfo.UnweightedHealthContribution(health.LiquidationEnd)
	initialWeightedPerpHealth := perpInfo.WeighHealthContribution(currentUnweightedPerpHealth, health.LiquidationEnd)
	currentExpectedPerpHealth := expectedPerpHealth(currentUnweightedPerpHealth)
	currentExpectedHealth := in.LiqeeLiqEndHealthBefore.Add(currentExpectedPerpHealth).Sub(initialWeightedPerpHealth)

	baseReduction := int64(0)
	// reduceBase implements the shared step of phases 1-3: healthAmount is
	// the most this step is willing to move expected health by, or nil for
	// "uncapped" (phase 3, where only the remaining base/transfer limits
	// apply).
	reduceBase := func(healthAmount *fixedpoint.Q, healthPerLot fixedpoint.Q) {
		healthLimit := currentExpectedHealth.Neg()
		if healthAmount != nil {
			healthLimit = fixedpoint.Min(*healthAmount, healthLimit)
		}
		healthLimit = fixedpoint.Max(healthLimit, fixedpoint.Zero())

		baseLots := int64(0)
		if !healthPerLot.IsZero() {
			q, err := healthLimit.Div(healthPerLot)
			if err == nil {
				baseLots = q.CeilToInt64()
			}
		}
		remainingLiqeeBase := abs64(liqeeBaseLots) - baseReduction
		remainingMaxTransfer := abs64(in.MaxBaseTransfer) - baseReduction
		if baseLots > remainingLiqeeBase {
			baseLots = remainingLiqeeBase
		}
		if baseLots > remainingMaxTransfer {
			baseLots = remainingMaxTransfer
		}
		if baseLots < 0 {
			baseLots = 0
		}

		unweightedChange := fixedpoint.FromInt64(baseLots).Mul(unweightedHealthPerLot)
		newUnweightedPerp := currentUnweightedPerpHealth.Add(unweightedChange)
		newExpectedPerp := expectedPerpHealth(newUnweightedPerp)
		currentExpectedHealth = currentExpectedHealth.Add(newExpectedPerp.Sub(currentExpectedPerpHealth))

		baseReduction += baseLots
		currentUnweightedPerpHealth = newUnweightedPerp
		currentExpectedPerpHealth = newExpectedPerp
	}

	// Phase 1: unweighted perp health negative, every lot counts at full
	// value.
	if currentUnweightedPerpHealth.Sign() < 0 {
		negated := currentUnweightedPerpHealth.Neg()
		reduceBase(&negated, unweightedHealthPerLot)
	}

	// Phase 2: positive but below max_pnl_transfer, discounted by the
	// settle-liquidation fee.
	if currentUnweightedPerpHealth.Sign() >= 0 && currentUnweightedPerpHealth.LessThan(maxPnlTransfer) {
		settledHealthPerLot := unweightedHealthPerLot.Mul(spotGainPerSettled)
		remaining := maxPnlTransfer.Sub(currentUnweightedPerpHealth)
		reduceBase(&remaining, settledHealthPerLot)
	}

	// Phase 3: above max_pnl_transfer, only the overall asset weight
	// benefits health.
	if currentUnweightedPerpHealth.Cmp(maxPnlTransfer) >= 0 && initOverallAssetWeight.Sign() > 0 {
		weightedHealthPerLot := unweightedHealthPerLot.Mul(initOverallAssetWeight)
		reduceBase(nil, weightedHealthPerLot)
	}

	baseTransfer := direction * baseReduction
	quoteTransfer := fixedpoint.FromInt64(-baseTransfer).Mul(oraclePricePerLot).Mul(feeFactor)
	if baseTransfer != 0 {
		in.LiqeePosition.RecordTrade(in.Market, baseTransfer, quoteTransfer)
		in.LiqorPosition.RecordTrade(in.Market, -baseTransfer, quoteTransfer.Neg())
	}

	// Phase 4: positive-PnL takeover while actual health is still negative.
	finalWeightedPerpHealth := perpInfo.WeighHealthContribution(currentUnweightedPerpHealth, health.LiquidationEnd)
	currentActualHealth := in.LiqeeLiqEndHealthBefore.Sub(initialWeightedPerpHealth).Add(finalWeightedPerpHealth)
	pnlTransferPossible := currentActualHealth.Sign() < 0 &&
		currentUnweightedPerpHealth.Sign() > 0 &&
		maxPnlTransfer.Sign() > 0

	pnlTransfer, limitTransfer := fixedpoint.Zero(), fixedpoint.Zero()
	if pnlTransferPossible {
		healthPerTransfer := spotGainPerSettled.Sub(initOverallAssetWeight)
		transferForZero := fixedpoint.Zero()
		if !healthPerTransfer.IsZero() {
			q, err := currentActualHealth.Neg().Div(healthPerTransfer)
			if err == nil {
				transferForZero = fixedpoint.FromInt64(q.CeilToInt64())
			}
		}

		liqeePnl := in.LiqeePosition.UnsettledPnl(in.Market, oraclePrice)

		pnlTransfer = fixedpoint.Min(liqeePnl, maxPnlTransfer)
		pnlTransfer = fixedpoint.Min(pnlTransfer, transferForZero)
		pnlTransfer = fixedpoint.Min(pnlTransfer, currentUnweightedPerpHealth)
		pnlTransfer = fixedpoint.Max(pnlTransfer, fixedpoint.Zero())

		liqeeLimit := liqeePositiveSettleLimit.FloorToInt64()
		settle := pnlTransfer.FloorToInt64()
		total := liqeePnl.CeilToInt64()
		limitTransfer = fixedpoint.FromInt64(1)
		if total != 0 {
			liqorLimit := fixedpoint.FromInt64(liqeeLimit).MulInt64(settle).DivInt64(total)
			limitTransfer = fixedpoint.Min(liqorLimit, pnlTransfer)
			limitTransfer = fixedpoint.Max(limitTransfer, fixedpoint.FromInt64(1))
		}

		tokenTransfer := pnlTransfer.Mul(spotGainPerSettled)

		if pnlTransfer.Sign() > 0 {
			in.LiqorPosition.RecordLiquidationPnlTakeover(pnlTransfer, limitTransfer)
			in.LiqeePosition.RecordSettle(pnlTransfer)

			transferNative := tokenTransfer.CeilToInt64()
			in.LiqorPosition.PerpSpotTransfers -= transferNative
			in.LiqeePosition.PerpSpotTransfers += transferNative

			in.SettleBank.ApplyNativeChange(in.LiqeeTokenPosition, tokenTransfer)
			in.SettleBank.ApplyNativeChange(in.LiqorTokenPosition, tokenTransfer.Neg())
			if err := in.LiqeeHealth.AdjustTokenBalance(in.Market.SettleTokenIndex, tokenTransfer); err != nil {
				return nil, err
			}
		}
	}

	if err := in.LiqeeHealth.RecomputePerpInfo(in.LiqeePosition, in.Market); err != nil {
		return nil, err
	}

	liqEndHealthAfter := in.LiqeeHealth.Health(health.LiquidationEnd)
	if liqEndHealthAfter.LessThan(in.LiqeeLiqEndHealthBefore) {
		return nil, riskerr.Wrap(riskerr.KindHealthPostcondition, riskerr.ErrHealthRegressed)
	}

	return &BaseOrPositivePnlResult{
		BaseTransfer:           baseTransfer,
		QuoteTransfer:          quoteTransfer,
		PnlTransfer:            pnlTransfer,
		PnlSettleLimitTransfer: limitTransfer,
	}, nil
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
