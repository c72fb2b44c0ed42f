// Package trigger implements the off-chain token conditional swap (TCS)
// executor (§4.9–§4.10): a bounded concurrent scheduler that scans accounts
// for triggerable conditional swap orders, prepares profitable ones against
// an external quote source, and executes the ones that still clear their
// profit bar after preparation.
package trigger

import "marginrisk/pkg/fixedpoint"

// Mode selects how the liquidator funds the buy side of a triggered swap.
type Mode int

const (
	// ModeBorrowBuyToken borrows the buy token outright and rebalances later.
	ModeBorrowBuyToken Mode = iota
	// ModeSwapCollateralIntoBuy pre-converts existing collateral into the buy
	// token before executing the trigger.
	ModeSwapCollateralIntoBuy
	// ModeSwapSellIntoBuy bundles a reverse swap into the same transaction,
	// falling back to ModeSwapCollateralIntoBuy when the sell-token borrow
	// path is blocked (reduce-only, or its net-borrow limit is exhausted).
	ModeSwapSellIntoBuy
)

func (m Mode) String() string {
	switch m {
	case ModeSwapCollateralIntoBuy:
		return "SwapCollateralIntoBuy"
	case ModeSwapSellIntoBuy:
		return "SwapSellIntoBuy"
	default:
		return "BorrowBuyToken"
	}
}

// SwapCostEstimator looks up the auxiliary overhead factor §4.10 applies to
// a token's side of a trigger, keyed by token index (slippage, fees, the
// liquidity discount a large order would incur).
type SwapCostEstimator interface {
	Overhead(tokenIndex uint16) fixedpoint.Q
}

// TCS is a single resting token-conditional-swap order on an account.
type TCS struct {
	Index int

	SellTokenIndex uint16
	BuyTokenIndex  uint16

	// Threshold is the base-price (buy_oracle / sell_oracle) level that
	// triggers the order; Direction indicates whether the order fires when
	// the price crosses above or below Threshold.
	Threshold fixedpoint.Q
	Direction PriceDirection

	// PremiumBps and ProtocolFeeBps load onto the base oracle price to
	// produce the order's taker price.
	PremiumBps     int64
	ProtocolFeeBps int64

	// MaxBuy/MaxSell cap the order's remaining volume in native units of
	// each side.
	MaxBuy  fixedpoint.Q
	MaxSell fixedpoint.Q

	ExpiryTs int64
}

// PriceDirection is the comparison a TCS threshold crossing must satisfy.
type PriceDirection int

const (
	// PriceAbove triggers once the base price rises to or above Threshold.
	PriceAbove PriceDirection = iota
	// PriceBelow triggers once the base price falls to or below Threshold.
	PriceBelow
)

// Interesting reports whether t is triggerable right now: either it has
// expired (closeable at no liqor risk) or its base price has crossed the
// threshold and the taker price clears both the base oracle price and the
// cost-adjusted profit bar (§4.10).
func Interesting(t TCS, nowTs int64, buyOracle, sellOracle, profitFraction fixedpoint.Q, estimator SwapCostEstimator) bool {
	if t.ExpiryTs != 0 && nowTs >= t.ExpiryTs {
		return true
	}
	if sellOracle.IsZero() {
		return false
	}
	basePrice, err := buyOracle.Div(sellOracle)
	if err != nil {
		return false
	}
	if !crossed(t.Direction, basePrice, t.Threshold) {
		return false
	}

	takerPrice := takerPrice(basePrice, t.PremiumBps, t.ProtocolFeeBps)
	if takerPrice.Cmp(basePrice) <= 0 {
		return false
	}

	buyOverhead := fixedpoint.FromInt64(1)
	sellOverhead := fixedpoint.FromInt64(1)
	if estimator != nil {
		buyOverhead = buyOverhead.Add(estimator.Overhead(t.BuyTokenIndex))
		sellOverhead = sellOverhead.Add(estimator.Overhead(t.SellTokenIndex))
	}
	profitFactor := fixedpoint.FromInt64(1).Add(profitFraction)
	floor := basePrice.Mul(buyOverhead).Mul(sellOverhead).Mul(profitFactor)
	return takerPrice.Cmp(floor) > 0
}

func crossed(dir PriceDirection, price, threshold fixedpoint.Q) bool {
	if dir == PriceAbove {
		return price.Cmp(threshold) >= 0
	}
	return price.Cmp(threshold) <= 0
}

// takerPrice loads a TCS's premium and protocol fee (both in basis points)
// onto the observed base price.
func takerPrice(basePrice fixedpoint.Q, premiumBps, protocolFeeBps int64) fixedpoint.Q {
	bps := fixedpoint.FromInt64(10_000)
	premium, err := fixedpoint.FromInt64(10_000 + premiumBps).Div(bps)
	if err != nil {
		premium = fixedpoint.FromInt64(1)
	}
	fee, err := fixedpoint.FromInt64(10_000 + protocolFeeBps).Div(bps)
	if err != nil {
		fee = fixedpoint.FromInt64(1)
	}
	return basePrice.Mul(premium).Mul(fee)
}

// AvailableBorrowNative returns how much of the bank's remaining net-borrow
// window is available right now, converted from quote units to native token
// units at price. A just-rolled-over window (LastNetBorrowsWindowStartTs
// stale relative to windowSeconds) is treated as fully reset, matching §9's
// resolution of the "net-borrow window rollover" open question: a window
// that has fully elapsed imposes no carried-over usage.
func AvailableBorrowNative(netBorrowLimitPerWindowQuote, netBorrowsInWindow, price fixedpoint.Q, lastWindowStartTs, windowSeconds, nowTs int64) fixedpoint.Q {
	if netBorrowLimitPerWindowQuote.Sign() <= 0 || price.Sign() <= 0 {
		return fixedpoint.Zero()
	}
	used := netBorrowsInWindow
	if windowSeconds > 0 && nowTs-lastWindowStartTs >= windowSeconds {
		used = fixedpoint.Zero()
	}
	remainingQuote := fixedpoint.Max(netBorrowLimitPerWindowQuote.Sub(used), fixedpoint.Zero())
	native, err := remainingQuote.Div(price)
	if err != nil {
		return fixedpoint.Zero()
	}
	return native
}
