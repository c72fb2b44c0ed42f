// Package account models the cross-margin account state that the health
// cache reads and the liquidation engine mutates: token positions,
// order-book reservations, and perpetual futures positions, plus the
// market-level configuration (Bank, PerpMarket) that weights them.
package account

import "marginrisk/pkg/fixedpoint"

// TokenIndexUnset is the inactive-slot sentinel for token/bank indices,
// matching the "max index rather than shrinking" convention of §3.8.
const TokenIndexUnset uint16 = ^uint16(0)

// PerpMarketIndexUnset is the inactive-slot sentinel for perp market
// indices.
const PerpMarketIndexUnset uint16 = ^uint16(0)

// Serum3MarketIndexUnset is the inactive-slot sentinel for order-book
// market indices.
const Serum3MarketIndexUnset uint16 = ^uint16(0)

// Bank holds the market-level configuration and accrual state for a single
// token, keyed by TokenIndex. It is retrieved by the health cache through
// an AccountRetriever, never owned by an Account.
type Bank struct {
	TokenIndex uint16
	Name       string

	// DepositIndex and BorrowIndex convert an account's IndexedPosition
	// into native units: native = indexed × DepositIndex when indexed ≥ 0,
	// native = indexed × BorrowIndex when indexed < 0.
	DepositIndex fixedpoint.Q
	BorrowIndex  fixedpoint.Q

	MaintAssetWeight fixedpoint.Q
	MaintLiabWeight  fixedpoint.Q
	InitAssetWeight  fixedpoint.Q
	InitLiabWeight   fixedpoint.Q

	// InitScaledAssetWeight/InitScaledLiabWeight account for bank-level
	// deposit/borrow caps per §3.4; they equal the plain Init weights until
	// a cap-scaling policy (out of scope here) lowers them.
	InitScaledAssetWeight fixedpoint.Q
	InitScaledLiabWeight  fixedpoint.Q

	ReduceOnly bool

	// NetBorrowLimitPerWindowQuote bounds how much new borrowing (in quote
	// native units) may occur within one net-borrow window. The window's
	// length is not a Bank field; trigger.AvailableBorrowNative takes it as
	// an argument.
	NetBorrowLimitPerWindowQuote fixedpoint.Q
	NetBorrowsInWindow           fixedpoint.Q
	LastNetBorrowsWindowStartTs  int64
}

// NativeFromIndexed converts a signed indexed balance into native token
// units using the deposit index for non-negative balances and the borrow
// index for negative ones.
func (b *Bank) NativeFromIndexed(indexed fixedpoint.Q) fixedpoint.Q {
	if indexed.Sign() >= 0 {
		return indexed.Mul(b.DepositIndex)
	}
	return indexed.Mul(b.BorrowIndex)
}

// ApplyNativeChange moves delta native units into pos's indexed balance,
// re-deriving the indexed amount from whichever index applies to the
// balance on each side of the change. A change that flips the position's
// sign is split at zero so the crossed-over portion is indexed against the
// new side's rate rather than carried over from the old one, mirroring how
// the lending book switches an account between its deposit and borrow index
// the moment a repayment or liquidation pushes a balance through zero.
func (b *Bank) ApplyNativeChange(pos *TokenPosition, delta fixedpoint.Q) {
	if delta.IsZero() {
		return
	}
	current := b.NativeFromIndexed(pos.IndexedPosition)
	next := current.Add(delta)

	switch {
	case current.Sign() >= 0 && next.Sign() >= 0:
		pos.IndexedPosition = b.indexNative(next, b.DepositIndex)
	case current.Sign() <= 0 && next.Sign() <= 0:
		pos.IndexedPosition = b.indexNative(next, b.BorrowIndex)
	case current.Sign() > 0:
		pos.IndexedPosition = b.indexNative(next, b.BorrowIndex)
	default:
		pos.IndexedPosition = b.indexNative(next, b.DepositIndex)
	}
}

func (b *Bank) indexNative(native, index fixedpoint.Q) fixedpoint.Q {
	indexed, err := native.Div(index)
	if err != nil {
		return fixedpoint.Zero()
	}
	return indexed
}

// PerpMarket holds the market-level configuration for a single perpetual
// futures market, keyed by PerpMarketIndex.
type PerpMarket struct {
	PerpMarketIndex  uint16
	SettleTokenIndex uint16
	BaseLotSize      int64

	MaintBaseAssetWeight fixedpoint.Q
	MaintBaseLiabWeight  fixedpoint.Q
	InitBaseAssetWeight  fixedpoint.Q
	InitBaseLiabWeight   fixedpoint.Q

	// InitOverallAssetWeight/MaintOverallAssetWeight scale a *positive*
	// unweighted perp contribution; zero marks an "untrusted" market where
	// positive unrealized PnL cannot be used as collateral.
	InitOverallAssetWeight  fixedpoint.Q
	MaintOverallAssetWeight fixedpoint.Q

	BaseLiquidationFee        fixedpoint.Q
	PositivePnlLiquidationFee fixedpoint.Q
	SettlePnlLimitFactor      fixedpoint.Q

	GroupInsuranceFund bool

	// OpenInterest is the total base lots outstanding across every account
	// holding this market (both sides counted once each), maintained by
	// whatever mutates positions; it is the divisor socialized loss spreads
	// across.
	OpenInterest int64

	// LongFunding/ShortFunding are the cumulative per-lot funding indexes;
	// socialized loss adjusts both in lockstep (§4.8).
	LongFunding  fixedpoint.Q
	ShortFunding fixedpoint.Q
}

// SocializeLoss distributes amount (a negative pnl owed to the bankrupt
// account) across all participants of the market by moving both funding
// indexes, per §4.8's "zero-sum transfer from all longs+shorts". Spread is
// per unit of open interest, not per lot size, so the total amount every
// counterparty absorbs on next funding settlement sums to exactly amount
// regardless of how concentrated the market's positions are.
func (m *PerpMarket) SocializeLoss(amount fixedpoint.Q) {
	if amount.IsZero() || m.OpenInterest == 0 {
		return
	}
	perLot := amount.DivInt64(m.OpenInterest)
	m.LongFunding = m.LongFunding.Sub(perLot)
	m.ShortFunding = m.ShortFunding.Add(perLot)
}
