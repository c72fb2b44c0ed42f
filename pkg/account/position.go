package account

import "marginrisk/pkg/fixedpoint"

// TokenPosition is an account's balance in one bank, in indexed
// (index-scaled) units. InUseCount prevents deactivation while an
// order-book reservation still references this slot (§3.9).
type TokenPosition struct {
	TokenIndex      uint16
	IndexedPosition fixedpoint.Q
	InUseCount      uint32
}

// IsActive reports whether the slot holds a live position.
func (p *TokenPosition) IsActive() bool { return p.TokenIndex != TokenIndexUnset }

// Serum3Orders records that an account has registered open-orders capacity
// on an order-book market. The live reserved amounts are supplied by the
// AccountRetriever at health-cache construction time (§3.5); this struct
// only tracks which token slots the market holds in use.
type Serum3Orders struct {
	MarketIndex     uint16
	BaseTokenIndex  uint16
	QuoteTokenIndex uint16
}

// IsActive reports whether the slot holds a live order-book registration.
func (p *Serum3Orders) IsActive() bool { return p.MarketIndex != Serum3MarketIndexUnset }

// SettlePnlLimitWindowSeconds is the period over which a perp position's
// per-window settle allowance (§4.4) resets.
const SettlePnlLimitWindowSeconds int64 = 24 * 60 * 60

// PerpPosition is an account's state in one perpetual futures market
// (§3.7): the fields surfaced into the health cache's PerpInfo plus the
// bookkeeping needed to settle funding and PnL.
type PerpPosition struct {
	PerpMarketIndex uint16

	BasePositionLots int64
	QuotePositionNative fixedpoint.Q

	BidsBaseLots int64
	AsksBaseLots int64

	TakerBaseLots  int64
	TakerQuoteLots int64

	LongSettledFunding  fixedpoint.Q
	ShortSettledFunding fixedpoint.Q

	RealizedTradePnlNative fixedpoint.Q
	PerpSpotTransfers      int64

	SettleLimitWindowStartTs int64
	SettleLimitWindowUsed    fixedpoint.Q
	RecurringSettleAllowance fixedpoint.Q
}

// IsActive reports whether the slot holds a live perp position.
func (p *PerpPosition) IsActive() bool { return p.PerpMarketIndex != PerpMarketIndexUnset }

// HasOpenPerpOrders reports resting maker interest on the book.
func (p *PerpPosition) HasOpenPerpOrders() bool {
	return p.BidsBaseLots != 0 || p.AsksBaseLots != 0
}

// HasOpenTakerFills reports unprocessed taker fills blocking
// base-or-positive-pnl liquidation per §4.7's preconditions.
func (p *PerpPosition) HasOpenTakerFills() bool {
	return p.TakerBaseLots != 0 || p.TakerQuoteLots != 0
}

// SettleFunding folds the market's cumulative funding indexes into the
// position's quote balance and advances the position's settled-funding
// snapshot, the standard perpetual-futures funding mechanism referenced by
// §3.7's "cumulative funding index snapshots".
func (p *PerpPosition) SettleFunding(market *PerpMarket) {
	var funding fixedpoint.Q
	if p.BasePositionLots > 0 {
		funding = market.LongFunding.Sub(p.LongSettledFunding).MulInt64(p.BasePositionLots)
	} else {
		funding = market.ShortFunding.Sub(p.ShortSettledFunding).MulInt64(p.BasePositionLots)
	}
	p.QuotePositionNative = p.QuotePositionNative.Sub(funding)
	p.LongSettledFunding = market.LongFunding
	p.ShortSettledFunding = market.ShortFunding
}

// UpdateSettleLimit resets the per-window settle allowance when now crosses
// a window boundary (§4.4).
func (p *PerpPosition) UpdateSettleLimit(market *PerpMarket, stablePrice fixedpoint.Q, now int64) {
	windowStart := (now / SettlePnlLimitWindowSeconds) * SettlePnlLimitWindowSeconds
	if windowStart != p.SettleLimitWindowStartTs {
		p.SettleLimitWindowStartTs = windowStart
		p.SettleLimitWindowUsed = fixedpoint.Zero()
	}
	_ = stablePrice
}

// SettleLimit returns the remaining per-window allowance, proportional to
// settle_pnl_limit_factor × |stable_price × base_position_native| per §4.4,
// combined with the recurring allowance accrued from realized trades.
func (p *PerpPosition) SettleLimit(market *PerpMarket, stablePrice fixedpoint.Q) fixedpoint.Q {
	baseNative := fixedpoint.FromInt64(p.BasePositionLots).MulInt64(market.BaseLotSize)
	notional := stablePrice.Mul(baseNative).Abs()
	total := market.SettlePnlLimitFactor.Mul(notional)
	remainingWindow := total.Sub(p.SettleLimitWindowUsed)
	if remainingWindow.Sign() < 0 {
		remainingWindow = fixedpoint.Zero()
	}
	return fixedpoint.Max(remainingWindow, p.RecurringSettleAllowance)
}

// ApplyPnlSettleLimit clamps pnl (which may be positive or negative) to the
// position's current settle allowance, consuming window allowance for the
// amount used.
func (p *PerpPosition) ApplyPnlSettleLimit(market *PerpMarket, stablePrice fixedpoint.Q, pnl fixedpoint.Q) fixedpoint.Q {
	limit := p.SettleLimit(market, stablePrice)
	var clamped fixedpoint.Q
	if pnl.Sign() >= 0 {
		clamped = fixedpoint.Min(pnl, limit)
	} else {
		clamped = fixedpoint.Max(pnl, limit.Neg())
	}
	p.SettleLimitWindowUsed = p.SettleLimitWindowUsed.Add(clamped.Abs())
	return clamped
}

// RecordTrade applies a forced or voluntary trade of baseLots at quoteChange
// native units to the position, accumulating realized PnL into the recurring
// settle allowance when the trade reduces an existing position (§4.4).
func (p *PerpPosition) RecordTrade(market *PerpMarket, baseLots int64, quoteChange fixedpoint.Q) {
	reducing := (p.BasePositionLots > 0 && baseLots < 0) || (p.BasePositionLots < 0 && baseLots > 0)
	if reducing {
		closedLots := baseLots
		if abs64(closedLots) > abs64(p.BasePositionLots) {
			closedLots = -p.BasePositionLots
		}
		realized := quoteChange.Abs().MulInt64(abs64(closedLots)).DivInt64(abs64(baseLots))
		p.RealizedTradePnlNative = p.RealizedTradePnlNative.Add(realized)
		p.RecurringSettleAllowance = p.RecurringSettleAllowance.Add(realized)
	}
	p.BasePositionLots += baseLots
	p.QuotePositionNative = p.QuotePositionNative.Add(quoteChange)
}

// RecordSettle moves amount out of the position's quote balance into (or
// out of) the settle-token spot balance; amount is negative when reducing
// negative PnL.
func (p *PerpPosition) RecordSettle(amount fixedpoint.Q) {
	p.QuotePositionNative = p.QuotePositionNative.Sub(amount)
}

// RecordLiquidationPnlTakeover credits the liqor's perp quote position with
// pnlTransfer and grants a proportional slice of the liqee's settle limit,
// per §4.7 phase 4.
func (p *PerpPosition) RecordLiquidationPnlTakeover(pnlTransfer, limitTransfer fixedpoint.Q) {
	p.QuotePositionNative = p.QuotePositionNative.Add(pnlTransfer)
	p.RecurringSettleAllowance = p.RecurringSettleAllowance.Add(limitTransfer)
}

// RecordLiquidationQuoteChange directly adjusts the quote position during
// negative-pnl settlement or bankruptcy (§4.8), without touching realized
// PnL bookkeeping.
func (p *PerpPosition) RecordLiquidationQuoteChange(amount fixedpoint.Q) {
	p.QuotePositionNative = p.QuotePositionNative.Add(amount)
}

// UnsettledPnl returns the position's mark-to-market PnL in settle-token
// native units at oraclePrice.
func (p *PerpPosition) UnsettledPnl(market *PerpMarket, oraclePrice fixedpoint.Q) fixedpoint.Q {
	baseNative := fixedpoint.FromInt64(p.BasePositionLots).MulInt64(market.BaseLotSize)
	return p.QuotePositionNative.Add(baseNative.Mul(oraclePrice))
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// PerpOpenOrder tracks a single resting maker order on a perp market,
// enough to decide whether phase-1 order cancellation has completed
// (§4.7's preconditions reference "no open order-book or perp orders").
type PerpOpenOrder struct {
	PerpMarketIndex uint16
	ClientOrderID   uint64
}

// IsActive reports whether the slot holds a live open order.
func (o *PerpOpenOrder) IsActive() bool { return o.PerpMarketIndex != PerpMarketIndexUnset }
