package health

import "marginrisk/pkg/fixedpoint"

// Serum3Info is the per-market order-book reservation snapshot captured at
// health-cache construction time (§3.5). ReservedBase/ReservedQuote are the
// amounts currently locked by the account's resting orders, as reported by
// the (opaque) order-book reservation source.
type Serum3Info struct {
	MarketIndex     uint16
	BaseTokenIndex  int // index into Cache.TokenInfos
	QuoteTokenIndex int // index into Cache.TokenInfos
	ReservedBase    fixedpoint.Q
	ReservedQuote   fixedpoint.Q
	HasZeroFunds    bool
}

// serum3Reserved is the per-market hypothetical-conversion pair computed by
// computeSerum3Reservations (§4.3).
type serum3Reserved struct {
	allReservedAsBase  fixedpoint.Q
	allReservedAsQuote fixedpoint.Q
}

// computeSerum3Reservations converts every market's reservation into both
// possible fill outcomes and sums the base-denominated and quote-denominated
// totals per token, matching the two formulas in §4.3.
func (c *Cache) computeSerum3Reservations(t Type) ([]fixedpoint.Q, []serum3Reserved) {
	return c.computeSerum3ReservationsWith(t, c.TokenInfos)
}

// computeSerum3ReservationsWith is computeSerum3Reservations generalized to
// an arbitrary token-info slice, so the max-swap solver can evaluate
// reservation health against hypothetical balances without mutating the
// cache (§4.5).
func (c *Cache) computeSerum3ReservationsWith(t Type, tokenInfos []TokenInfo) ([]fixedpoint.Q, []serum3Reserved) {
	tokenMaxReserved := make([]fixedpoint.Q, len(tokenInfos))
	for i := range tokenMaxReserved {
		tokenMaxReserved[i] = fixedpoint.Zero()
	}

	reserved := make([]serum3Reserved, len(c.Serum3Infos))
	for i := range c.Serum3Infos {
		info := &c.Serum3Infos[i]
		base := &tokenInfos[info.BaseTokenIndex]
		quote := &tokenInfos[info.QuoteTokenIndex]

		quoteAsset := quote.Prices.Asset(t)
		baseLiab := base.Prices.Liab(t)
		allAsBase := info.ReservedBase.Add(safeDiv(info.ReservedQuote.Mul(quoteAsset), baseLiab))

		baseAsset := base.Prices.Asset(t)
		quoteLiab := quote.Prices.Liab(t)
		allAsQuote := info.ReservedQuote.Add(safeDiv(info.ReservedBase.Mul(baseAsset), quoteLiab))

		tokenMaxReserved[info.BaseTokenIndex] = tokenMaxReserved[info.BaseTokenIndex].Add(allAsBase)
		tokenMaxReserved[info.QuoteTokenIndex] = tokenMaxReserved[info.QuoteTokenIndex].Add(allAsQuote)

		reserved[i] = serum3Reserved{allReservedAsBase: allAsBase, allReservedAsQuote: allAsQuote}
	}
	return tokenMaxReserved, reserved
}

// healthEffect models applying reserved (already included in tokenMaxReserved)
// to tokenInfo's balance as if it were added last, splitting the amount into
// an asset-weighted part below the zero crossing and a liab-weighted part
// above it (§4.3).
func healthEffect(t Type, tokenInfo *TokenInfo, tokenMaxReserved, reserved fixedpoint.Q) fixedpoint.Q {
	maxBalance := tokenInfo.Balance.Add(tokenMaxReserved)

	var assetPart, liabPart fixedpoint.Q
	switch {
	case maxBalance.Cmp(reserved) >= 0:
		assetPart, liabPart = reserved, fixedpoint.Zero()
	case maxBalance.Sign() < 0:
		assetPart, liabPart = fixedpoint.Zero(), reserved
	default:
		assetPart, liabPart = maxBalance, reserved.Sub(maxBalance)
	}

	assetWeight := tokenInfo.assetWeight(t)
	liabWeight := tokenInfo.liabWeight(t)
	assetPrice := tokenInfo.Prices.Asset(t)
	liabPrice := tokenInfo.Prices.Liab(t)
	return assetPart.Mul(assetWeight).Mul(assetPrice).Add(liabPart.Mul(liabWeight).Mul(liabPrice))
}

// serum3HealthContribution sums the per-market contributions of every
// order-book reservation under health type t (§4.3).
func (c *Cache) serum3HealthContribution(t Type) fixedpoint.Q {
	return c.serum3HealthContributionWith(t, c.TokenInfos)
}

// serum3HealthContributionWith is serum3HealthContribution generalized to an
// arbitrary token-info slice (§4.5).
func (c *Cache) serum3HealthContributionWith(t Type, tokenInfos []TokenInfo) fixedpoint.Q {
	tokenMaxReserved, reserved := c.computeSerum3ReservationsWith(t, tokenInfos)
	total := fixedpoint.Zero()
	for i := range c.Serum3Infos {
		info := &c.Serum3Infos[i]
		r := reserved[i]
		if r.allReservedAsBase.IsZero() || r.allReservedAsQuote.IsZero() {
			continue
		}
		base := &tokenInfos[info.BaseTokenIndex]
		quote := &tokenInfos[info.QuoteTokenIndex]
		healthBase := healthEffect(t, base, tokenMaxReserved[info.BaseTokenIndex], r.allReservedAsBase)
		healthQuote := healthEffect(t, quote, tokenMaxReserved[info.QuoteTokenIndex], r.allReservedAsQuote)
		total = total.Add(fixedpoint.Min(healthBase, healthQuote))
	}
	return total
}
