package health

import "marginrisk/pkg/fixedpoint"

// findMaximum performs a ternary-search-style bisection over [left, right]
// assuming f has a single interior maximum, stopping once the bracket
// shrinks below minStep (§4.5 step 2). Ties are broken toward the leftmost
// maximum.
func findMaximum(left, right fixedpoint.Q, minStep fixedpoint.Q, f func(fixedpoint.Q) fixedpoint.Q) (argmax, maxVal fixedpoint.Q) {
	const maxIterations = 50
	for i := 0; i < maxIterations; i++ {
		width := right.Sub(left)
		if width.Cmp(minStep) <= 0 {
			break
		}
		m1 := left.Add(width.DivInt64(3))
		m2 := right.Sub(width.DivInt64(3))
		f1, f2 := f(m1), f(m2)
		if f1.Cmp(f2) >= 0 {
			right = m2
		} else {
			left = m1
		}
	}
	mid := left.Add(right).DivInt64(2)
	return mid, f(mid)
}

// binarySearch locates x in [left, right] where f(x) crosses target,
// assuming f is monotonic over the bracket, stopping within targetError or
// after maxIterations (§4.5 step 4).
func binarySearch(left, right fixedpoint.Q, target fixedpoint.Q, targetError fixedpoint.Q, maxIterations int, f func(fixedpoint.Q) fixedpoint.Q) fixedpoint.Q {
	leftVal := f(left)
	increasing := leftVal.Cmp(f(right)) <= 0
	for i := 0; i < maxIterations; i++ {
		mid := left.Add(right).DivInt64(2)
		val := f(mid)
		diff := val.Sub(target)
		if diff.Abs().Cmp(targetError) <= 0 {
			return mid
		}
		if (diff.Sign() < 0) == increasing {
			left = mid
		} else {
			right = mid
		}
	}
	return left.Add(right).DivInt64(2)
}

// scanRightUntilLessThan doubles the step from start until f(x) no longer
// exceeds target, returning the bracket [prev, x] for a following binary
// search (§4.5 step 4).
func scanRightUntilLessThan(start, firstStep fixedpoint.Q, target fixedpoint.Q, f func(fixedpoint.Q) fixedpoint.Q) (left, right fixedpoint.Q) {
	const maxIterations = 20
	step := firstStep
	left = start
	x := start.Add(step)
	for i := 0; i < maxIterations; i++ {
		if f(x).Cmp(target) <= 0 {
			return left, x
		}
		left = x
		step = step.MulInt64(2)
		x = x.Add(step)
	}
	return left, x
}

// spotAmountGivenForHealthZero solves for the signed spot-token amount that
// must be added to balance (priced at assetWeightedPrice when the resulting
// balance is non-negative, liabWeightedPrice otherwise) to bring
// currentHealth to exactly zero, per §4.8's bankruptcy max_for_health step.
func spotAmountGivenForHealthZero(currentHealth, balance, assetWeightedPrice, liabWeightedPrice fixedpoint.Q) (fixedpoint.Q, error) {
	if currentHealth.Sign() >= 0 {
		return fixedpoint.Zero(), nil
	}
	needed := currentHealth.Neg()
	if balance.Sign() < 0 {
		closeAmount := balance.Neg()
		healthFromClose := closeAmount.Mul(liabWeightedPrice)
		if healthFromClose.Cmp(needed) >= 0 {
			return needed.Div(liabWeightedPrice)
		}
		remaining := needed.Sub(healthFromClose)
		extra, err := remaining.Div(assetWeightedPrice)
		if err != nil {
			return fixedpoint.Zero(), err
		}
		return closeAmount.Add(extra), nil
	}
	return needed.Div(assetWeightedPrice)
}

// SpotAmountGivenForHealthZero exports spotAmountGivenForHealthZero for
// callers outside the package that already hold the inputs directly — the
// bankruptcy step sizes its insurance draw against the settle bank's own
// init weights and oracle price rather than a TokenInfo already sitting in
// this cache (§4.8's max_for_health).
func SpotAmountGivenForHealthZero(currentHealth, balance, assetWeightedPrice, liabWeightedPrice fixedpoint.Q) (fixedpoint.Q, error) {
	return spotAmountGivenForHealthZero(currentHealth, balance, assetWeightedPrice, liabWeightedPrice)
}
