package liquidation

import (
	"marginrisk/pkg/account"
	"marginrisk/pkg/fixedpoint"
	"marginrisk/pkg/health"
	"marginrisk/pkg/identity"
	"marginrisk/pkg/riskerr"
)

// BankruptcyInput is the argument set for Bankruptcy (§4.8), covering the
// two-step negative-PnL settlement and insurance-fund/socialized-loss
// bankruptcy sequence. It is only valid to call once RequireAfterPhase2Liquidation
// has passed (the base position is already zero).
type BankruptcyInput struct {
	Group identity.Address
	Liqor identity.Address
	Liqee identity.Address

	Market     *account.PerpMarket
	SettleBank *account.Bank

	// InsuranceBank is the bank backing the insurance vault; nil means the
	// insurance fund is denominated in the settle token itself.
	InsuranceBank          *account.Bank
	InsuranceVaultBalance  fixedpoint.Q
	SettleTokenOraclePrice fixedpoint.Q
	InsuranceOraclePrice   fixedpoint.Q
	PerpOraclePrice        fixedpoint.Q

	LiqeePosition *account.PerpPosition
	LiqorPosition *account.PerpPosition

	LiqeeTokenPosition     *account.TokenPosition
	LiqorTokenPosition     *account.TokenPosition
	LiqorInsuranceToken    *account.TokenPosition

	LiqeeHealth             *health.Cache
	LiqeeLiqEndHealthBefore fixedpoint.Q

	NowTs int64

	// MaxLiabTransfer bounds the settle-token value of negative PnL the
	// liqor takes on across both steps combined. A remainder socialized in
	// step 2 is not bounded by it.
	MaxLiabTransfer fixedpoint.Q
}

// BankruptcyResult mirrors the on-chain instruction's returned tuple plus
// the additional fields needed to populate PerpLiqBankruptcyLog (§6).
type BankruptcyResult struct {
	Settlement         fixedpoint.Q
	InsuranceTransfer  fixedpoint.Q
	SocializedLoss     fixedpoint.Q
	StartingLongFunding  fixedpoint.Q
	StartingShortFunding fixedpoint.Q
	EndingLongFunding    fixedpoint.Q
	EndingShortFunding   fixedpoint.Q
}

// Bankruptcy runs the two-step §4.8 sequence: settle as much negative PnL as
// possible at zero health cost, then — if the liqee's settle limit and
// perp_max_settle are both exhausted and negative PnL remains — draw the
// insurance fund and, if that's exhausted too, socialize the remainder
// across the market's funding indexes.
func Bankruptcy(in BankruptcyInput) (*BankruptcyResult, error) {
	if err := in.LiqeeHealth.RequireAfterPhase2Liquidation(in.Market.PerpMarketIndex); err != nil {
		return nil, err
	}

	in.LiqeePosition.SettleFunding(in.Market)
	in.LiqorPosition.SettleFunding(in.Market)

	liqeePnl := in.LiqeePosition.UnsettledPnl(in.Market, in.PerpOraclePrice)
	if liqeePnl.Sign() >= 0 {
		return nil, riskerr.Wrap(riskerr.KindInputDomain, riskerr.ErrProfitabilityMismatch)
	}

	liqeeMaxSettle, err := in.LiqeeHealth.PerpMaxSettle(in.Market.SettleTokenIndex)
	if err != nil {
		return nil, err
	}

	stableIdx, ok := in.LiqeeHealth.PerpInfoIndex(in.Market.PerpMarketIndex)
	if !ok {
		return nil, riskerr.Wrap(riskerr.KindInputDomain, riskerr.ErrPerpPositionDoesNotExist)
	}
	stablePrice := in.LiqeeHealth.PerpInfos[stableIdx].Prices.Stable

	in.LiqeePosition.UpdateSettleLimit(in.Market, stablePrice, in.NowTs)
	liqeeSettleablePnl := in.LiqeePosition.ApplyPnlSettleLimit(in.Market, stablePrice, liqeePnl)

	maxSettlementLiqee := fixedpoint.Max(fixedpoint.Min(liqeeMaxSettle, liqeeSettleablePnl.Neg()), fixedpoint.Zero())
	settlement := fixedpoint.Max(fixedpoint.Min(maxSettlementLiqee, in.MaxLiabTransfer), fixedpoint.Zero())

	if settlement.Sign() > 0 {
		in.LiqorPosition.RecordLiquidationQuoteChange(settlement.Neg())
		in.LiqeePosition.RecordSettle(settlement.Neg())

		settlementNative := settlement.FloorToInt64()
		in.LiqorPosition.PerpSpotTransfers += settlementNative
		in.LiqeePosition.PerpSpotTransfers -= settlementNative

		in.SettleBank.ApplyNativeChange(in.LiqorTokenPosition, settlement)
		in.SettleBank.ApplyNativeChange(in.LiqeeTokenPosition, settlement.Neg())
		if err := in.LiqeeHealth.AdjustTokenBalance(in.Market.SettleTokenIndex, settlement.Neg()); err != nil {
			return nil, err
		}

		liqeePnl = liqeePnl.Add(settlement)
	}

	maxLiabTransferRemaining := in.MaxLiabTransfer.Sub(settlement)

	result := &BankruptcyResult{
		Settlement:           settlement,
		StartingLongFunding:  in.Market.LongFunding,
		StartingShortFunding: in.Market.ShortFunding,
		EndingLongFunding:    in.Market.LongFunding,
		EndingShortFunding:   in.Market.ShortFunding,
	}

	if !(settlement.Cmp(maxSettlementLiqee) == 0 && liqeePnl.Sign() < 0) {
		return result, nil
	}

	// Step 2: bankruptcy. Recompute pnl for safety after the settlement.
	liqeePnl = in.LiqeePosition.UnsettledPnl(in.Market, in.PerpOraclePrice)

	settleTokenBalance, err := in.LiqeeHealth.EffectiveTokenBalance(in.Market.SettleTokenIndex, health.LiquidationEnd)
	if err != nil {
		return nil, err
	}

	liabWeightedPrice := in.SettleTokenOraclePrice.Mul(in.SettleBank.InitLiabWeight)
	assetWeightedPrice := in.SettleTokenOraclePrice.Mul(in.SettleBank.InitAssetWeight)
	maxForHealth, err := health.SpotAmountGivenForHealthZero(in.LiqeeLiqEndHealthBefore, settleTokenBalance, assetWeightedPrice, liabWeightedPrice)
	if err != nil {
		return nil, err
	}

	maxLiabTransferFromLiqee := fixedpoint.Max(fixedpoint.Min(liqeePnl.Neg(), maxForHealth), fixedpoint.Zero())
	maxLiabTransferToLiqor := fixedpoint.Max(fixedpoint.Min(maxLiabTransferFromLiqee, maxLiabTransferRemaining), fixedpoint.Zero())

	insuranceVaultAmount := fixedpoint.Zero()
	if in.Market.GroupInsuranceFund {
		insuranceVaultAmount = in.InsuranceVaultBalance
	}

	liquidationFeeFactor := fixedpoint.FromInt64(1).Add(in.Market.BaseLiquidationFee)
	settleTokenPriceWithFee := in.SettleTokenOraclePrice.Mul(liquidationFeeFactor)

	insuranceTransfer := fixedpoint.Zero()
	if !in.InsuranceOraclePrice.IsZero() {
		needed, dErr := maxLiabTransferToLiqor.Mul(settleTokenPriceWithFee).Div(in.InsuranceOraclePrice)
		if dErr == nil {
			insuranceTransfer = fixedpoint.FromInt64(needed.CeilToInt64())
		}
	}
	insuranceTransfer = fixedpoint.Min(insuranceTransfer, insuranceVaultAmount)
	// Exhausted is true even when insuranceVaultAmount is zero (no fund, or
	// not insurance-eligible): 0 == 0 still counts as drained, which is what
	// lets socialization fire for markets with no insurance backing at all.
	insuranceFundExhausted := insuranceTransfer.Cmp(insuranceVaultAmount) == 0

	insuranceLiabTransfer := fixedpoint.Zero()
	if !settleTokenPriceWithFee.IsZero() {
		q, dErr := insuranceTransfer.Mul(in.InsuranceOraclePrice).Div(settleTokenPriceWithFee)
		if dErr == nil {
			insuranceLiabTransfer = fixedpoint.Min(q, maxLiabTransferToLiqor)
		}
	}

	if insuranceTransfer.Sign() > 0 {
		insuranceBank := in.InsuranceBank
		if insuranceBank == nil {
			insuranceBank = in.SettleBank
		}
		insuranceBank.ApplyNativeChange(in.LiqorInsuranceToken, insuranceTransfer)

		in.LiqeePosition.RecordSettle(insuranceLiabTransfer.Neg())
		in.LiqorPosition.RecordLiquidationQuoteChange(insuranceLiabTransfer.Neg())
	}

	remainingLiab := maxLiabTransferFromLiqee.Sub(insuranceLiabTransfer)
	socializedLoss := fixedpoint.Zero()
	if insuranceFundExhausted && remainingLiab.Sign() > 0 {
		in.Market.SocializeLoss(remainingLiab.Neg())
		in.LiqeePosition.RecordSettle(remainingLiab.Neg())
		socializedLoss = remainingLiab
	}

	result.InsuranceTransfer = insuranceTransfer
	result.SocializedLoss = socializedLoss
	result.EndingLongFunding = in.Market.LongFunding
	result.EndingShortFunding = in.Market.ShortFunding
	return result, nil
}
