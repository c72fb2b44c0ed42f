package health

import (
	"marginrisk/pkg/fixedpoint"
	"marginrisk/pkg/riskerr"
)

// maxLots is the sentinel "unbounded" lot count returned when the final
// slope is favorable (§4.6).
const maxLots = int64(1) << 40

// perpSlope is the per-lot slope of health as a function of lots traded in
// direction (+1 to buy/go long, −1 to sell/go short), evaluated in the
// "far" regime where the resulting base position has settled to the same
// sign as direction — i.e. the regime §4.6 calls the final slope, used both
// to decide favorability and to seed the zero-crossing estimate.
func (c *Cache) perpSlope(t Type, perpIdx int, direction int64, tradePrice fixedpoint.Q) fixedpoint.Q {
	pi := &c.PerpInfos[perpIdx]
	var weight, price fixedpoint.Q
	if direction > 0 {
		weight, price = pi.baseAssetWeight(t), pi.Prices.Asset(t)
	} else {
		weight, price = pi.baseLiabWeight(t), pi.Prices.Liab(t)
	}
	perLot := weight.Mul(price).Sub(tradePrice)
	if direction < 0 {
		return perLot.Neg()
	}
	return perLot
}

// MaxPerpForHealthRatio returns the maximum number of base lots (always
// ≥ 0) that can be traded in direction (+1 to buy, −1 to sell) at
// tradePrice against perpMarketIndex while health type t's health ratio
// stays at or above minRatio (§4.6). Because the search variable is lots
// traded in direction starting from 0, it naturally covers both regimes
// the spec describes: first reducing any existing position of the opposite
// sign toward zero, then growing a position of direction's sign.
func (c *Cache) MaxPerpForHealthRatio(t Type, perpMarketIndex uint16, direction int64, tradePrice, minRatio fixedpoint.Q) (int64, error) {
	perpIdx, ok := c.PerpInfoIndex(perpMarketIndex)
	if !ok {
		return 0, riskerr.Wrap(riskerr.KindInputDomain, riskerr.ErrPerpPositionDoesNotExist)
	}
	if tradePrice.Sign() <= 0 {
		return 0, riskerr.Wrap(riskerr.KindInputDomain, riskerr.ErrInvalidPrice)
	}
	if direction < 0 {
		direction = -1
	} else {
		direction = 1
	}

	ratioAt := func(lots int64) fixedpoint.Q {
		infos := make([]PerpInfo, len(c.PerpInfos))
		copy(infos, c.PerpInfos)
		pi := &infos[perpIdx]
		delta := direction * lots
		pi.BaseLots += delta
		quoteDelta := fixedpoint.FromInt64(-delta).MulInt64(pi.BaseLotSize).Mul(tradePrice)
		pi.QuotePositionNative = pi.QuotePositionNative.Add(quoteDelta)

		assets, liabs := fixedpoint.Zero(), fixedpoint.Zero()
		add := func(v fixedpoint.Q) {
			if v.Sign() >= 0 {
				assets = assets.Add(v)
			} else {
				liabs = liabs.Add(v.Abs())
			}
		}
		for i := range c.TokenInfos {
			add(c.TokenInfos[i].HealthContribution(t))
		}
		add(c.serum3HealthContribution(t))
		for i := range infos {
			add(infos[i].HealthContribution(t))
		}
		if liabs.IsZero() {
			return fixedpoint.FromInt64(1 << 30)
		}
		ratio, _ := assets.Sub(liabs).MulInt64(100).Div(liabs)
		return ratio
	}

	startHealth := c.Health(t)
	slope := c.perpSlope(t, perpIdx, direction, tradePrice)
	if slope.Sign() >= 0 {
		return maxLots, nil
	}
	if ratioAt(0).Cmp(minRatio) <= 0 {
		return 0, nil
	}

	denom := slope.MulInt64(c.PerpInfos[perpIdx].BaseLotSize)
	estimate, err := startHealth.Div(denom)
	if err != nil {
		return 0, nil
	}
	estimateLots := estimate.Abs().CeilToInt64()
	if estimateLots < 1 {
		estimateLots = 1
	}

	for ratioAt(estimateLots).Cmp(minRatio) > 0 && estimateLots < maxLots {
		estimateLots *= 2
	}

	lotsToQ := func(lots int64) fixedpoint.Q { return fixedpoint.FromInt64(lots) }
	qToLots := func(q fixedpoint.Q) int64 { return q.FloorToInt64() }
	metric := func(q fixedpoint.Q) fixedpoint.Q { return ratioAt(qToLots(q)) }

	left, right := lotsToQ(0), lotsToQ(estimateLots)
	result := binarySearch(left, right, minRatio, fixedpoint.FromFloat64(0.1), 50, metric)
	lots := qToLots(result)
	if lots < 0 {
		lots = 0
	}
	return lots, nil
}
