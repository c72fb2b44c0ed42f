package trigger_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marginrisk/pkg/fixedpoint"
	"marginrisk/pkg/trigger"
)

type flatEstimator struct {
	overhead fixedpoint.Q
}

func (f flatEstimator) Overhead(tokenIndex uint16) fixedpoint.Q { return f.overhead }

func TestInterestingExpiredOrderAlwaysFires(t *testing.T) {
	tcs := trigger.TCS{
		ExpiryTs:  100,
		Threshold: fixedpoint.FromInt64(1000), // unreachable, proves expiry alone decides it
		Direction: trigger.PriceAbove,
	}
	ok := trigger.Interesting(tcs, 200, fixedpoint.FromInt64(1), fixedpoint.FromInt64(1), fixedpoint.Zero(), nil)
	require.True(t, ok)
}

func TestInterestingRequiresThresholdCrossing(t *testing.T) {
	tcs := trigger.TCS{
		SellTokenIndex: 0,
		BuyTokenIndex:  1,
		Threshold:      fixedpoint.FromInt64(2),
		Direction:      trigger.PriceAbove,
		PremiumBps:     0,
		ProtocolFeeBps: 0,
	}
	// base price 1/1 = 1, below the threshold of 2: not interesting.
	ok := trigger.Interesting(tcs, 0, fixedpoint.FromInt64(1), fixedpoint.FromInt64(1), fixedpoint.Zero(), nil)
	require.False(t, ok)
}

func TestInterestingRejectsUnprofitableAfterOverhead(t *testing.T) {
	tcs := trigger.TCS{
		Threshold:      fixedpoint.FromInt64(1),
		Direction:      trigger.PriceAbove,
		PremiumBps:     10, // 0.1% premium: not enough to clear a 50% overhead floor
		ProtocolFeeBps: 0,
	}
	estimator := flatEstimator{overhead: fixedpoint.FromFloat64(0.5)}
	ok := trigger.Interesting(tcs, 0, fixedpoint.FromInt64(1), fixedpoint.FromInt64(1), fixedpoint.Zero(), estimator)
	require.False(t, ok)
}

func TestInterestingAcceptsProfitableCrossing(t *testing.T) {
	tcs := trigger.TCS{
		Threshold:      fixedpoint.FromInt64(1),
		Direction:      trigger.PriceAbove,
		PremiumBps:     500, // 5% premium clears a small profit bar
		ProtocolFeeBps: 0,
	}
	ok := trigger.Interesting(tcs, 0, fixedpoint.FromInt64(1), fixedpoint.FromInt64(1), fixedpoint.FromFloat64(0.01), nil)
	require.True(t, ok)
}

func TestAvailableBorrowNativeIgnoresExpiredWindow(t *testing.T) {
	// The window started 1000s ago and lasts 100s: fully elapsed, so prior
	// usage doesn't carry forward and the full limit is available.
	avail := trigger.AvailableBorrowNative(
		fixedpoint.FromInt64(1000),
		fixedpoint.FromInt64(900),
		fixedpoint.FromInt64(1),
		0, 100, 1000,
	)
	require.True(t, avail.Cmp(fixedpoint.FromInt64(1000)) == 0)
}

func TestAvailableBorrowNativeWithinWindowSubtractsUsage(t *testing.T) {
	avail := trigger.AvailableBorrowNative(
		fixedpoint.FromInt64(1000),
		fixedpoint.FromInt64(400),
		fixedpoint.FromInt64(1),
		0, 100, 50,
	)
	require.True(t, avail.Cmp(fixedpoint.FromInt64(600)) == 0)
}
