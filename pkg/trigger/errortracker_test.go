package trigger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marginrisk/pkg/trigger"
)

func TestErrorTrackerThrottlesAfterLimit(t *testing.T) {
	addr := tcsAddr(42)
	tracker := trigger.NewErrorTracker(time.Minute, 3)

	require.False(t, tracker.Throttled(addr))
	tracker.RecordFailure(addr)
	tracker.RecordFailure(addr)
	require.False(t, tracker.Throttled(addr))
	tracker.RecordFailure(addr)
	require.True(t, tracker.Throttled(addr))
}

func TestErrorTrackerIsolatesAccounts(t *testing.T) {
	a, b := tcsAddr(1), tcsAddr(2)
	tracker := trigger.NewErrorTracker(time.Minute, 1)

	tracker.RecordFailure(a)
	require.True(t, tracker.Throttled(a))
	require.False(t, tracker.Throttled(b))
}

func TestErrorTrackerRestoreSeedsState(t *testing.T) {
	addr := tcsAddr(7)
	tracker := trigger.NewErrorTracker(time.Hour, 2)

	now := time.Now()
	tracker.Restore(addr, []time.Time{now.Add(-time.Minute), now.Add(-30 * time.Second)})
	require.True(t, tracker.Throttled(addr))

	snapshot := tracker.Snapshot(addr)
	require.Len(t, snapshot, 2)
}
