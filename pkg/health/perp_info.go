package health

import "marginrisk/pkg/fixedpoint"

// PerpInfo is the per-market weighted snapshot captured at health-cache
// construction time for one active perp position (§3.6).
type PerpInfo struct {
	PerpMarketIndex uint16
	BaseLotSize     int64

	// BaseLots is base_lots + taker_base_lots, per §4.1.
	BaseLots     int64
	BidsBaseLots int64
	AsksBaseLots int64

	// QuotePositionNative is quote_position − unsettled_funding +
	// taker_quote, per §4.1.
	QuotePositionNative fixedpoint.Q

	Prices Price

	MaintBaseAssetWeight fixedpoint.Q
	MaintBaseLiabWeight  fixedpoint.Q
	InitBaseAssetWeight  fixedpoint.Q
	InitBaseLiabWeight   fixedpoint.Q

	MaintOverallAssetWeight fixedpoint.Q
	InitOverallAssetWeight  fixedpoint.Q

	HasOpenOrders bool
	HasOpenFills  bool
}

func (pi *PerpInfo) baseAssetWeight(t Type) fixedpoint.Q {
	if t == Maint {
		return pi.MaintBaseAssetWeight
	}
	return pi.InitBaseAssetWeight
}

func (pi *PerpInfo) baseLiabWeight(t Type) fixedpoint.Q {
	if t == Maint {
		return pi.MaintBaseLiabWeight
	}
	return pi.InitBaseLiabWeight
}

func (pi *PerpInfo) overallAssetWeight(t Type) fixedpoint.Q {
	if t == Maint {
		return pi.MaintOverallAssetWeight
	}
	return pi.InitOverallAssetWeight
}

// sideCase evaluates the §4.4 "case" formula for one hypothetical order-book
// direction: ordersBase is the signed base-lot delta from resting orders on
// that side (bids positive, asks negative), executionPrice the price at
// which those orders would fill.
func (pi *PerpInfo) sideCase(t Type, ordersBaseLots int64, executionPrice fixedpoint.Q) fixedpoint.Q {
	netBaseLots := pi.BaseLots + ordersBaseLots
	netBase := fixedpoint.FromInt64(netBaseLots).MulInt64(pi.BaseLotSize)

	var weight, price fixedpoint.Q
	if netBaseLots >= 0 {
		weight, price = pi.baseAssetWeight(t), pi.Prices.Asset(t)
	} else {
		weight, price = pi.baseLiabWeight(t), pi.Prices.Liab(t)
	}
	baseHealth := netBase.Mul(weight).Mul(price)

	orderQuote := fixedpoint.FromInt64(-ordersBaseLots).MulInt64(pi.BaseLotSize).Mul(executionPrice)
	return baseHealth.Add(orderQuote)
}

// UnweightedHealthContribution evaluates §4.4's quote + min(bids_case,
// asks_case), using the bid execution price (liab side, since filling bids
// adds base the account pays quote for at the liab price) for the
// bids case and the asset price for the asks case, matching the spec's
// "order_quote = −orders_base × execution_price (liab-side for bids,
// asset-side for asks)".
func (pi *PerpInfo) UnweightedHealthContribution(t Type) fixedpoint.Q {
	bidsCase := pi.sideCase(t, pi.BidsBaseLots, pi.Prices.Liab(t))
	asksCase := pi.sideCase(t, -pi.AsksBaseLots, pi.Prices.Asset(t))
	return pi.QuotePositionNative.Add(fixedpoint.Min(bidsCase, asksCase))
}

// WeighHealthContribution applies the overall asset weight to a positive
// unweighted contribution, leaving negative contributions (liabilities)
// unscaled, per §4.4.
func (pi *PerpInfo) WeighHealthContribution(unweighted fixedpoint.Q, t Type) fixedpoint.Q {
	if unweighted.Sign() > 0 {
		return unweighted.Mul(pi.overallAssetWeight(t))
	}
	return unweighted
}

// HealthContribution is the full weighted perp health contribution under t.
func (pi *PerpInfo) HealthContribution(t Type) fixedpoint.Q {
	return pi.WeighHealthContribution(pi.UnweightedHealthContribution(t), t)
}
