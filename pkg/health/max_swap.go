package health

import (
	"marginrisk/pkg/fixedpoint"
	"marginrisk/pkg/riskerr"
)

// maxAmount is the sentinel "unbounded" result returned when the swap's
// final slope is favorable or zero (§4.5 step 1).
var maxAmount = fixedpoint.FromInt64(1 << 62)

// IsMaxAmount reports whether amount is the solver's unbounded sentinel.
func IsMaxAmount(amount fixedpoint.Q) bool {
	return amount.Cmp(maxAmount) >= 0
}

// healthAtSwap evaluates health type t as if amount of the source token's
// native units had been swapped into the target token at price (target
// native per source native), without mutating the cache. Negative amount
// models swapping in the opposite direction.
func (c *Cache) healthAtSwap(t Type, sourceIdx, targetIdx int, price, amount fixedpoint.Q) fixedpoint.Q {
	infos := make([]TokenInfo, len(c.TokenInfos))
	copy(infos, c.TokenInfos)
	infos[sourceIdx].Balance = infos[sourceIdx].Balance.Sub(amount)
	infos[targetIdx].Balance = infos[targetIdx].Balance.Add(amount.Mul(price))

	total := fixedpoint.Zero()
	for i := range infos {
		total = total.Add(infos[i].HealthContribution(t))
	}
	total = total.Add(c.serum3HealthContributionWith(t, infos))
	for i := range c.PerpInfos {
		total = total.Add(c.PerpInfos[i].HealthContribution(t))
	}
	return total
}

// healthRatioAtSwap is healthAtSwap's health-ratio counterpart (§4.5).
func (c *Cache) healthRatioAtSwap(t Type, sourceIdx, targetIdx int, price, amount fixedpoint.Q) fixedpoint.Q {
	infos := make([]TokenInfo, len(c.TokenInfos))
	copy(infos, c.TokenInfos)
	infos[sourceIdx].Balance = infos[sourceIdx].Balance.Sub(amount)
	infos[targetIdx].Balance = infos[targetIdx].Balance.Add(amount.Mul(price))

	assets, liabs := fixedpoint.Zero(), fixedpoint.Zero()
	add := func(v fixedpoint.Q) {
		if v.Sign() >= 0 {
			assets = assets.Add(v)
		} else {
			liabs = liabs.Add(v.Abs())
		}
	}
	for i := range infos {
		add(infos[i].HealthContribution(t))
	}
	add(c.serum3HealthContributionWith(t, infos))
	for i := range c.PerpInfos {
		add(c.PerpInfos[i].HealthContribution(t))
	}
	if liabs.IsZero() {
		return fixedpoint.FromInt64(1 << 30)
	}
	ratio, _ := assets.Sub(liabs).MulInt64(100).Div(liabs)
	return ratio
}

// finalSwapSlope is the slope of health(amount) once both the source and
// target balances have crossed zero: −source_liab_weight·liab_price +
// target_asset_weight·asset_price·price (§4.5 step 1).
func (c *Cache) finalSwapSlope(t Type, sourceIdx, targetIdx int, price fixedpoint.Q) fixedpoint.Q {
	source := &c.TokenInfos[sourceIdx]
	target := &c.TokenInfos[targetIdx]
	sourceSlope := source.liabWeight(t).Mul(source.Prices.Liab(t))
	targetSlope := target.assetWeight(t).Mul(target.Prices.Asset(t)).Mul(price)
	return targetSlope.Sub(sourceSlope)
}

// swapRightmost bounds the interior-maximum search at the point where both
// balances have certainly crossed zero (§4.5 step 2).
func (c *Cache) swapRightmost(sourceIdx, targetIdx int, price fixedpoint.Q) fixedpoint.Q {
	source := &c.TokenInfos[sourceIdx]
	target := &c.TokenInfos[targetIdx]
	sourceBound := source.Balance.Abs()
	targetBound, err := target.Balance.Abs().Div(price)
	if err != nil {
		return sourceBound
	}
	return fixedpoint.Max(sourceBound, targetBound)
}

// maxSwapSource implements §4.5's four-step algorithm against an arbitrary
// metric (health or health ratio), returning the maximum source-native
// amount swappable while metric stays at or above threshold.
func (c *Cache) maxSwapSource(t Type, sourceIdx, targetIdx int, price, threshold fixedpoint.Q, metric func(amount fixedpoint.Q) fixedpoint.Q) (fixedpoint.Q, error) {
	if price.Sign() <= 0 {
		return fixedpoint.Zero(), riskerr.Wrap(riskerr.KindInputDomain, riskerr.ErrInvalidPrice)
	}

	slope := c.finalSwapSlope(t, sourceIdx, targetIdx, price)
	if slope.Sign() >= 0 {
		return maxAmount, nil
	}

	rightmost := c.swapRightmost(sourceIdx, targetIdx, price)
	if rightmost.IsZero() {
		rightmost = fixedpoint.FromInt64(1)
	}
	minStep := fixedpoint.FromFloat64(0.1)
	argmax, maxVal := findMaximum(fixedpoint.Zero(), rightmost, minStep, metric)

	if maxVal.Cmp(threshold) <= 0 {
		return fixedpoint.Max(argmax, fixedpoint.Zero()), nil
	}

	zeroEstimate, err := maxVal.Sub(threshold).Neg().Div(slope)
	if err != nil {
		zeroEstimate = rightmost
	}
	start := argmax.Add(zeroEstimate.Abs())
	if start.Cmp(argmax) <= 0 {
		start = argmax.Add(minStep)
	}
	firstStep := fixedpoint.Max(start.Sub(argmax), minStep)

	left, right := scanRightUntilLessThan(start, firstStep, threshold, metric)
	targetError := fixedpoint.FromFloat64(0.1)
	result := binarySearch(left, right, threshold, targetError, 50, metric)
	return fixedpoint.Max(result, fixedpoint.Zero()), nil
}

// MaxSwapSourceForHealth returns the maximum amount of sourceTokenIndex's
// native units that can be swapped into targetTokenIndex at price while
// keeping health type t's health at or above minHealth (§4.5).
func (c *Cache) MaxSwapSourceForHealth(t Type, sourceTokenIndex, targetTokenIndex uint16, price, minHealth fixedpoint.Q) (fixedpoint.Q, error) {
	sourceIdx, ok := c.TokenInfoIndex(sourceTokenIndex)
	if !ok {
		return fixedpoint.Zero(), riskerr.Wrap(riskerr.KindInputDomain, riskerr.ErrTokenPositionDoesNotExist)
	}
	targetIdx, ok := c.TokenInfoIndex(targetTokenIndex)
	if !ok {
		return fixedpoint.Zero(), riskerr.Wrap(riskerr.KindInputDomain, riskerr.ErrTokenPositionDoesNotExist)
	}
	metric := func(amount fixedpoint.Q) fixedpoint.Q { return c.healthAtSwap(t, sourceIdx, targetIdx, price, amount) }
	return c.maxSwapSource(t, sourceIdx, targetIdx, price, minHealth, metric)
}

// MaxSwapSourceForHealthRatio is MaxSwapSourceForHealth against a minimum
// health-ratio threshold instead of an absolute health floor (§4.5).
func (c *Cache) MaxSwapSourceForHealthRatio(t Type, sourceTokenIndex, targetTokenIndex uint16, price, minRatio fixedpoint.Q) (fixedpoint.Q, error) {
	sourceIdx, ok := c.TokenInfoIndex(sourceTokenIndex)
	if !ok {
		return fixedpoint.Zero(), riskerr.Wrap(riskerr.KindInputDomain, riskerr.ErrTokenPositionDoesNotExist)
	}
	targetIdx, ok := c.TokenInfoIndex(targetTokenIndex)
	if !ok {
		return fixedpoint.Zero(), riskerr.Wrap(riskerr.KindInputDomain, riskerr.ErrTokenPositionDoesNotExist)
	}
	metric := func(amount fixedpoint.Q) fixedpoint.Q {
		return c.healthRatioAtSwap(t, sourceIdx, targetIdx, price, amount)
	}
	return c.maxSwapSource(t, sourceIdx, targetIdx, price, minRatio, metric)
}
