// Package health implements the cross-margin health cache: a value-typed
// snapshot of an account's weighted asset/liability value across spot
// tokens, order-book reservations, and perpetual futures positions, plus
// the max-swap and max-perp solvers used to bound user-initiated actions.
package health

import "marginrisk/pkg/fixedpoint"

// Type selects the weight/price regime a health computation is evaluated
// under. The three modes are ordered Init ≤ LiquidationEnd ≤ Maint.
type Type int

const (
	// Init uses scaled weights (accounting for bank-level deposit/borrow
	// caps) and stable-adjusted prices; it gates opening new positions.
	Init Type = iota
	// Maint uses maintenance weights (less conservative) and oracle
	// prices; liquidation begins when Maint health goes negative.
	Maint
	// LiquidationEnd uses un-scaled initial weights and oracle prices; a
	// liquidation in progress continues until this becomes non-negative.
	LiquidationEnd
)

func (t Type) String() string {
	switch t {
	case Init:
		return "init"
	case Maint:
		return "maint"
	case LiquidationEnd:
		return "liquidation_end"
	default:
		return "unknown"
	}
}

// Price pairs an oracle price with a smoothed stable price, both expressed
// as native-per-native exchange rates.
type Price struct {
	Oracle fixedpoint.Q
	Stable fixedpoint.Q
}

// Asset returns the price used to value a positive (asset-side) balance
// under health type t. Init applies the stable-price pessimism buffer by
// taking the lower of the two prices; Maint and LiquidationEnd always use
// the oracle price.
func (p Price) Asset(t Type) fixedpoint.Q {
	if t == Init {
		return fixedpoint.Min(p.Oracle, p.Stable)
	}
	return p.Oracle
}

// Liab returns the price used to value a negative (liability-side) balance
// under health type t, taking the higher of oracle/stable for Init.
func (p Price) Liab(t Type) fixedpoint.Q {
	if t == Init {
		return fixedpoint.Max(p.Oracle, p.Stable)
	}
	return p.Oracle
}
